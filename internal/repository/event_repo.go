package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"factory_events/internal/models"
)

type EventSQLite struct {
	db *sql.DB
}

func NewEventSQLite(db *sql.DB) *EventSQLite { return &EventSQLite{db: db} }

const (
	insertEventSQL = `
		INSERT INTO machine_events
			(event_id, event_time, received_time, machine_id, duration_ms, defect_count, line_id, factory_id, version, payload_hash)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, 1, ?)
		ON CONFLICT(event_id) DO NOTHING
	`

	// The version guard makes the update a compare-and-swap: zero rows
	// affected means a concurrent writer got there first.
	updateEventSQL = `
		UPDATE machine_events
		SET event_time = ?, received_time = ?, machine_id = ?, duration_ms = ?,
			defect_count = ?, line_id = ?, factory_id = ?, payload_hash = ?,
			version = version + 1
		WHERE event_id = ? AND version = ?
	`

	selectByEventIDsSQL = `
		SELECT event_id, event_time, received_time, machine_id, duration_ms,
			defect_count, line_id, factory_id, version, payload_hash
		FROM machine_events WHERE event_id IN (%s)
	`

	countInWindowSQL = `
		SELECT COUNT(*) FROM machine_events
		WHERE machine_id = ? AND event_time >= ? AND event_time < ?
	`

	sumDefectsInWindowSQL = `
		SELECT COALESCE(SUM(defect_count), 0) FROM machine_events
		WHERE machine_id = ? AND event_time >= ? AND event_time < ?
		AND defect_count >= 0
	`

	groupDefectsByLineSQL = `
		SELECT line_id,
			COALESCE(SUM(CASE WHEN defect_count >= 0 THEN defect_count ELSE 0 END), 0) AS total_defects,
			COUNT(*) AS event_count
		FROM machine_events
		WHERE factory_id = ? AND line_id IS NOT NULL
		AND event_time >= ? AND event_time < ?
		GROUP BY line_id
		ORDER BY total_defects DESC, line_id ASC
	`
)

// nullable maps an optional empty string to NULL so the line ranking can
// filter on line_id IS NOT NULL.
func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}

// FindExisting bulk-loads stored events by id in a single indexed query.
func (r *EventSQLite) FindExisting(ctx context.Context, ids []string) (map[string]models.StoredEvent, error) {
	out := make(map[string]models.StoredEvent, len(ids))
	if len(ids) == 0 {
		return out, nil
	}

	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(ids)), ",")
	args := make([]any, 0, len(ids))
	for _, id := range ids {
		args = append(args, id)
	}

	rows, err := r.db.QueryContext(ctx, fmt.Sprintf(selectByEventIDsSQL, placeholders), args...)
	if err != nil {
		return nil, fmt.Errorf("select events by id: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		ev, err := scanStoredEvent(rows)
		if err != nil {
			return nil, err
		}
		out[ev.EventID] = ev
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

func scanStoredEvent(rows *sql.Rows) (models.StoredEvent, error) {
	var (
		ev      models.StoredEvent
		lineID  sql.NullString
		factory sql.NullString
	)
	if err := rows.Scan(
		&ev.EventID,
		&ev.EventTime,
		&ev.ReceivedTime,
		&ev.MachineID,
		&ev.DurationMs,
		&ev.DefectCount,
		&lineID,
		&factory,
		&ev.Version,
		&ev.PayloadHash,
	); err != nil {
		return models.StoredEvent{}, err
	}
	ev.EventTime = ev.EventTime.UTC()
	ev.ReceivedTime = ev.ReceivedTime.UTC()
	ev.LineID = lineID.String
	ev.FactoryID = factory.String
	return ev, nil
}

// UpsertAll writes the batch's created and mutated events in one transaction.
// Events with Version == 0 are inserted; a uniqueness violation (another
// batch inserted the same id first) is collected as a conflict. Events with
// Version > 0 are updated under the version guard; a missed guard is likewise
// a conflict. Conflicts do not fail the transaction: the remaining rows
// commit and the conflicting ids are returned in a *ConflictError.
func (r *EventSQLite) UpsertAll(ctx context.Context, events []models.StoredEvent) error {
	if len(events) == 0 {
		return nil
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin upsert transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var conflicts []string
	for _, ev := range events {
		var res sql.Result
		if ev.Version == 0 {
			res, err = tx.ExecContext(ctx, insertEventSQL,
				ev.EventID,
				ev.EventTime.UTC(),
				ev.ReceivedTime.UTC(),
				ev.MachineID,
				ev.DurationMs,
				ev.DefectCount,
				nullable(ev.LineID),
				nullable(ev.FactoryID),
				ev.PayloadHash,
			)
		} else {
			res, err = tx.ExecContext(ctx, updateEventSQL,
				ev.EventTime.UTC(),
				ev.ReceivedTime.UTC(),
				ev.MachineID,
				ev.DurationMs,
				ev.DefectCount,
				nullable(ev.LineID),
				nullable(ev.FactoryID),
				ev.PayloadHash,
				ev.EventID,
				ev.Version,
			)
		}
		if err != nil {
			return fmt.Errorf("upsert event %s: %w", ev.EventID, err)
		}

		affected, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("upsert event %s: rows affected: %w", ev.EventID, err)
		}
		if affected == 0 {
			conflicts = append(conflicts, ev.EventID)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit upsert transaction: %w", err)
	}

	if len(conflicts) > 0 {
		return &ConflictError{EventIDs: conflicts}
	}
	return nil
}

// CountInWindow counts events for a machine with event_time in [start, end).
func (r *EventSQLite) CountInWindow(ctx context.Context, machineID string, start, end time.Time) (int64, error) {
	var count int64
	err := r.db.QueryRowContext(ctx, countInWindowSQL, machineID, start.UTC(), end.UTC()).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count events in window: %w", err)
	}
	return count, nil
}

// SumDefectsInWindow totals defect counts for a machine with event_time in
// [start, end), excluding the unknown-count sentinel (-1).
func (r *EventSQLite) SumDefectsInWindow(ctx context.Context, machineID string, start, end time.Time) (int64, error) {
	var sum int64
	err := r.db.QueryRowContext(ctx, sumDefectsInWindowSQL, machineID, start.UTC(), end.UTC()).Scan(&sum)
	if err != nil {
		return 0, fmt.Errorf("sum defects in window: %w", err)
	}
	return sum, nil
}

// GroupDefectsByLine ranks a factory's lines by total defects over [from, to),
// sentinel values excluded, ties broken by line id for a deterministic order.
func (r *EventSQLite) GroupDefectsByLine(ctx context.Context, factoryID string, from, to time.Time) ([]models.DefectLineStat, error) {
	rows, err := r.db.QueryContext(ctx, groupDefectsByLineSQL, factoryID, from.UTC(), to.UTC())
	if err != nil {
		return nil, fmt.Errorf("group defects by line: %w", err)
	}
	defer rows.Close()

	out := make([]models.DefectLineStat, 0, 16)
	for rows.Next() {
		var st models.DefectLineStat
		if err := rows.Scan(&st.LineID, &st.TotalDefects, &st.EventCount); err != nil {
			return nil, err
		}
		out = append(out, st)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}
