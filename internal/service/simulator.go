package service

import (
	"context"
	"fmt"
	"math/rand"
	"time"

	"factory_events/internal/models"

	"github.com/google/uuid"
)

// ----------- Simulation constants -----------
const (
	defaultSimBatchSize = 50
	simMachines         = 10 // machines M-0..M-9
	simLines            = 5  // lines L-0..L-4
	simFactoryID        = "F-SIM"
	simMaxDurationMs    = 5000
	simMaxDefects       = 20

	// One in simSentinelEvery events reports an unknown defect count.
	simSentinelEvery = 7
	// One in simRepeatEvery events reuses the previous event id with a new
	// payload so the dedup/update paths see traffic too.
	simRepeatEvery = 10
)

// SimulatorService feeds synthetic machine events through the real ingestion
// engine at a fixed tick. It exists for local load checks only and is off by
// default.
type SimulatorService struct {
	ingestor  Ingestor
	batchSize int
	rng       *rand.Rand
}

// NewSimulatorService returns a simulator with defaults.
func NewSimulatorService(ingestor Ingestor) *SimulatorService {
	return &SimulatorService{
		ingestor:  ingestor,
		batchSize: defaultSimBatchSize,
		rng:       rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// Run ticks at the given interval until ctx is canceled.
func (s *SimulatorService) Run(ctx context.Context, tick time.Duration) {
	t := time.NewTicker(tick)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-t.C:
			batch := s.generateBatch(now.UTC())
			// Per-record outcomes are already in the result; only storage
			// failures surface here, and the loop just keeps ticking.
			_, _ = s.ingestor.IngestBatch(ctx, batch)
		}
	}
}

// generateBatch builds a batch of plausible raw events, including repeated
// ids with changed payloads and the occasional unknown defect count.
func (s *SimulatorService) generateBatch(now time.Time) []models.RawEvent {
	batch := make([]models.RawEvent, 0, s.batchSize)
	prevID := ""

	for i := 0; i < s.batchSize; i++ {
		id := "SIM-" + uuid.NewString()
		if prevID != "" && i%simRepeatEvery == 0 {
			id = prevID
		}

		eventTime := now.Add(-time.Duration(s.rng.Intn(3600)) * time.Second)
		duration := int64(s.rng.Intn(simMaxDurationMs)) + 1
		defects := s.rng.Intn(simMaxDefects)
		if i%simSentinelEvery == 0 {
			defects = -1
		}

		batch = append(batch, models.RawEvent{
			EventID:     id,
			EventTime:   &eventTime,
			MachineID:   fmt.Sprintf("M-%d", s.rng.Intn(simMachines)),
			DurationMs:  &duration,
			DefectCount: &defects,
			LineID:      fmt.Sprintf("L-%d", s.rng.Intn(simLines)),
			FactoryID:   simFactoryID,
		})
		prevID = id
	}
	return batch
}
