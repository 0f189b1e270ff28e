package service

import (
	"context"
	"time"

	"factory_events/internal/metrics"
	"factory_events/internal/models"
	"factory_events/internal/repository"
)

// Ingestor validates, reconciles and persists one batch of raw events.
type Ingestor interface {
	IngestBatch(ctx context.Context, batch []models.RawEvent) (models.BatchResult, error)
}

// Stats serves windowed statistics over the reconciled data.
type Stats interface {
	GetStats(ctx context.Context, machineID string, start, end time.Time) (models.MachineStats, error)
	GetTopDefectLines(ctx context.Context, factoryID string, from, to time.Time, limit int) ([]models.DefectLineStat, error)
}

// Simulator runs the background synthetic-load loop for local checks.
// Stop via context cancellation in main() for graceful shutdown.
type Simulator interface {
	Run(ctx context.Context, tick time.Duration)
}

// Service aggregates all sub-services.
type Service struct {
	Ingestor
	Stats
	Simulator
}

// NewService wires the repository layer into concrete services.
func NewService(repos *repository.Repository, m *metrics.IngestMetrics) *Service {
	ing := NewIngestService(repos.Events, m)
	return &Service{
		Ingestor:  ing,
		Stats:     NewStatsService(repos.Events),
		Simulator: NewSimulatorService(ing),
	}
}
