package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"factory_events/internal/models"
	"factory_events/internal/repository/db"
)

// EventRepo is the storage contract consumed by the ingestion engine and the
// stats aggregator. Lookups are indexed by event_id; window queries are
// half-open over event_time ([start, end)).
type EventRepo interface {
	// FindExisting returns the stored events whose id is in ids, keyed by
	// event_id. Missing ids are simply absent from the map.
	FindExisting(ctx context.Context, ids []string) (map[string]models.StoredEvent, error)

	// UpsertAll applies inserts (Version == 0) and updates (Version > 0) as
	// one transaction. Uniqueness or version-mismatch violations caused by a
	// concurrently committed writer are reported per record via
	// *ConflictError; every non-conflicting row is still applied. Any other
	// error aborts the whole call.
	UpsertAll(ctx context.Context, events []models.StoredEvent) error

	CountInWindow(ctx context.Context, machineID string, start, end time.Time) (int64, error)
	SumDefectsInWindow(ctx context.Context, machineID string, start, end time.Time) (int64, error)
	GroupDefectsByLine(ctx context.Context, factoryID string, from, to time.Time) ([]models.DefectLineStat, error)
}

// ConflictError reports the event ids that lost an optimistic-concurrency
// race during UpsertAll. It is a per-record signal, not a batch failure.
type ConflictError struct {
	EventIDs []string
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("write conflict on event ids: %s", strings.Join(e.EventIDs, ", "))
}

type Repository struct {
	Events EventRepo
}

func NewRepository(sqlDB *sql.DB) *Repository {
	return &Repository{
		Events: NewEventSQLite(sqlDB),
	}
}

// InitDB opens the SQLite database and ensures the schema exists.
func InitDB(path string) (*sql.DB, error) {
	return db.InitDB(path)
}
