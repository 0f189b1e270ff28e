package handlers

import (
	"context"
	"sync"
	"time"

	"factory_events/internal/models"
	"factory_events/internal/service"

	"github.com/gin-gonic/gin"
)

// ---- Service Mocks ----

type mockIngestor struct {
	res models.BatchResult
	err error

	calls     int
	lastBatch []models.RawEvent
}

func (m *mockIngestor) IngestBatch(ctx context.Context, batch []models.RawEvent) (models.BatchResult, error) {
	m.calls++
	m.lastBatch = batch
	return m.res, m.err
}

type mockStats struct {
	stats    models.MachineStats
	statsErr error
	lines    []models.DefectLineStat
	linesErr error

	mu            sync.Mutex // the websocket handler calls from its own goroutine
	lastMachineID string
	lastStart     time.Time
	lastEnd       time.Time
	lastFactoryID string
	lastFrom      time.Time
	lastTo        time.Time
	lastLimit     int
}

func (m *mockStats) GetStats(ctx context.Context, machineID string, start, end time.Time) (models.MachineStats, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lastMachineID = machineID
	m.lastStart = start
	m.lastEnd = end
	return m.stats, m.statsErr
}

func (m *mockStats) GetTopDefectLines(ctx context.Context, factoryID string, from, to time.Time, limit int) ([]models.DefectLineStat, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lastFactoryID = factoryID
	m.lastFrom = from
	m.lastTo = to
	m.lastLimit = limit
	return m.lines, m.linesErr
}

func (m *mockStats) snapshot() (machineID string, start, end time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lastMachineID, m.lastStart, m.lastEnd
}

// ---- Shared Test Helpers ----

func newTestRouter(s *service.Service) *gin.Engine {
	h := NewHandler(s, nil)
	gin.SetMode(gin.TestMode)
	return h.InitRoutes()
}
