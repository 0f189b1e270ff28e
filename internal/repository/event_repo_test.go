package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"regexp"
	"testing"
	"time"

	"factory_events/internal/models"

	"github.com/DATA-DOG/go-sqlmock"
)

func ctx(t *testing.T) context.Context {
	t.Helper()
	c, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	t.Cleanup(cancel)
	return c
}

func newMockRepo(t *testing.T) (*EventSQLite, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock new: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return NewEventSQLite(db), mock
}

func storedColumns() []string {
	return []string{
		"event_id", "event_time", "received_time", "machine_id", "duration_ms",
		"defect_count", "line_id", "factory_id", "version", "payload_hash",
	}
}

func TestFindExisting_EmptyIDs(t *testing.T) {
	t.Parallel()

	repo, mock := newMockRepo(t)

	out, err := repo.FindExisting(ctx(t), nil)
	if err != nil {
		t.Fatalf("FindExisting: %v", err)
	}
	if len(out) != 0 {
		t.Fatalf("expected empty map, got %v", out)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("mock expectations: %v", err)
	}
}

func TestFindExisting_MapsRows(t *testing.T) {
	t.Parallel()

	repo, mock := newMockRepo(t)

	loc := time.FixedZone("UTC+5", 5*3600)
	eventTime := time.Date(2025, time.March, 1, 15, 0, 0, 0, loc)
	receivedTime := time.Date(2025, time.March, 1, 15, 1, 0, 0, loc)

	rows := sqlmock.NewRows(storedColumns()).
		AddRow("E-1", eventTime, receivedTime, "M-001", int64(1000), 5, nil, nil, int64(1), "hash-1").
		AddRow("E-2", eventTime, receivedTime, "M-002", int64(2000), -1, "L-1", "F-1", int64(3), "hash-2")

	mock.ExpectQuery(regexp.QuoteMeta(fmt.Sprintf(selectByEventIDsSQL, "?,?"))).
		WithArgs("E-1", "E-2").
		WillReturnRows(rows)

	out, err := repo.FindExisting(ctx(t), []string{"E-1", "E-2"})
	if err != nil {
		t.Fatalf("FindExisting: %v", err)
	}
	if len(out) != 2 {
		t.Fatalf("expected 2 events, got %d", len(out))
	}

	e1 := out["E-1"]
	if e1.LineID != "" || e1.FactoryID != "" {
		t.Fatalf("NULL line/factory must map to empty strings: %+v", e1)
	}
	if e1.EventTime.Location() != time.UTC || !e1.EventTime.Equal(eventTime) {
		t.Fatalf("event time must be normalized to UTC: %v", e1.EventTime)
	}

	e2 := out["E-2"]
	if e2.LineID != "L-1" || e2.FactoryID != "F-1" || e2.Version != 3 || e2.DefectCount != -1 {
		t.Fatalf("unexpected mapping: %+v", e2)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("mock expectations: %v", err)
	}
}

func TestFindExisting_QueryError(t *testing.T) {
	t.Parallel()

	repo, mock := newMockRepo(t)

	mock.ExpectQuery(regexp.QuoteMeta(fmt.Sprintf(selectByEventIDsSQL, "?"))).
		WithArgs("E-1").
		WillReturnError(errors.New("boom"))

	if _, err := repo.FindExisting(ctx(t), []string{"E-1"}); err == nil {
		t.Fatal("expected error")
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("mock expectations: %v", err)
	}
}

func storedEvent(id string, version int64) models.StoredEvent {
	at := time.Date(2025, time.March, 1, 10, 0, 0, 0, time.UTC)
	return models.StoredEvent{
		EventID:      id,
		EventTime:    at,
		ReceivedTime: at.Add(time.Minute),
		MachineID:    "M-001",
		DurationMs:   1000,
		DefectCount:  5,
		LineID:       "L-1",
		FactoryID:    "F-1",
		Version:      version,
		PayloadHash:  "hash-" + id,
	}
}

func TestUpsertAll_InsertsAndUpdates(t *testing.T) {
	t.Parallel()

	repo, mock := newMockRepo(t)

	created := storedEvent("E-1", 0)
	mutated := storedEvent("E-2", 2)

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta(insertEventSQL)).
		WithArgs("E-1", sqlmock.AnyArg(), sqlmock.AnyArg(), "M-001",
			int64(1000), 5, "L-1", "F-1", "hash-E-1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta(updateEventSQL)).
		WithArgs(sqlmock.AnyArg(), sqlmock.AnyArg(), "M-001",
			int64(1000), 5, "L-1", "F-1", "hash-E-2", "E-2", int64(2)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	if err := repo.UpsertAll(ctx(t), []models.StoredEvent{created, mutated}); err != nil {
		t.Fatalf("UpsertAll: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("mock expectations: %v", err)
	}
}

func TestUpsertAll_NullsEmptyLineAndFactory(t *testing.T) {
	t.Parallel()

	repo, mock := newMockRepo(t)

	ev := storedEvent("E-1", 0)
	ev.LineID = ""
	ev.FactoryID = ""

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta(insertEventSQL)).
		WithArgs("E-1", sqlmock.AnyArg(), sqlmock.AnyArg(), "M-001",
			int64(1000), 5, nil, nil, "hash-E-1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	if err := repo.UpsertAll(ctx(t), []models.StoredEvent{ev}); err != nil {
		t.Fatalf("UpsertAll: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("mock expectations: %v", err)
	}
}

// Conflicting rows must not poison the transaction: the rest commits and the
// caller gets the conflicting ids back.
func TestUpsertAll_CollectsConflicts(t *testing.T) {
	t.Parallel()

	repo, mock := newMockRepo(t)

	lostInsert := storedEvent("E-1", 0)
	lostUpdate := storedEvent("E-2", 2)
	fine := storedEvent("E-3", 0)

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta(insertEventSQL)).
		WillReturnResult(sqlmock.NewResult(0, 0)) // unique clash, DO NOTHING
	mock.ExpectExec(regexp.QuoteMeta(updateEventSQL)).
		WillReturnResult(sqlmock.NewResult(0, 0)) // version guard missed
	mock.ExpectExec(regexp.QuoteMeta(insertEventSQL)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	err := repo.UpsertAll(ctx(t), []models.StoredEvent{lostInsert, lostUpdate, fine})

	var conflict *ConflictError
	if !errors.As(err, &conflict) {
		t.Fatalf("expected *ConflictError, got %v", err)
	}
	if len(conflict.EventIDs) != 2 || conflict.EventIDs[0] != "E-1" || conflict.EventIDs[1] != "E-2" {
		t.Fatalf("unexpected conflict ids: %v", conflict.EventIDs)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("mock expectations: %v", err)
	}
}

func TestUpsertAll_ExecErrorRollsBack(t *testing.T) {
	t.Parallel()

	repo, mock := newMockRepo(t)

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta(insertEventSQL)).
		WillReturnError(errors.New("disk I/O error"))
	mock.ExpectRollback()

	err := repo.UpsertAll(ctx(t), []models.StoredEvent{storedEvent("E-1", 0)})
	if err == nil {
		t.Fatal("expected error")
	}
	var conflict *ConflictError
	if errors.As(err, &conflict) {
		t.Fatalf("a storage failure is not a conflict: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("mock expectations: %v", err)
	}
}

func TestUpsertAll_EmptyBatch(t *testing.T) {
	t.Parallel()

	repo, mock := newMockRepo(t)

	if err := repo.UpsertAll(ctx(t), nil); err != nil {
		t.Fatalf("UpsertAll: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("mock expectations: %v", err)
	}
}

func TestCountInWindow(t *testing.T) {
	t.Parallel()

	repo, mock := newMockRepo(t)
	start := time.Date(2025, time.March, 1, 10, 0, 0, 0, time.UTC)
	end := start.Add(time.Hour)

	mock.ExpectQuery(regexp.QuoteMeta(countInWindowSQL)).
		WithArgs("M-001", start, end).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(int64(7)))

	count, err := repo.CountInWindow(ctx(t), "M-001", start, end)
	if err != nil {
		t.Fatalf("CountInWindow: %v", err)
	}
	if count != 7 {
		t.Fatalf("count = %d; want 7", count)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("mock expectations: %v", err)
	}
}

func TestSumDefectsInWindow(t *testing.T) {
	t.Parallel()

	repo, mock := newMockRepo(t)
	start := time.Date(2025, time.March, 1, 10, 0, 0, 0, time.UTC)
	end := start.Add(time.Hour)

	mock.ExpectQuery(regexp.QuoteMeta(sumDefectsInWindowSQL)).
		WithArgs("M-001", start, end).
		WillReturnRows(sqlmock.NewRows([]string{"sum"}).AddRow(int64(12)))

	sum, err := repo.SumDefectsInWindow(ctx(t), "M-001", start, end)
	if err != nil {
		t.Fatalf("SumDefectsInWindow: %v", err)
	}
	if sum != 12 {
		t.Fatalf("sum = %d; want 12", sum)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("mock expectations: %v", err)
	}
}

func TestGroupDefectsByLine(t *testing.T) {
	t.Parallel()

	repo, mock := newMockRepo(t)
	from := time.Date(2025, time.March, 1, 0, 0, 0, 0, time.UTC)
	to := from.Add(24 * time.Hour)

	rows := sqlmock.NewRows([]string{"line_id", "total_defects", "event_count"}).
		AddRow("L-2", int64(12), int64(4)).
		AddRow("L-1", int64(3), int64(9))

	mock.ExpectQuery(regexp.QuoteMeta(groupDefectsByLineSQL)).
		WithArgs("F-1", from, to).
		WillReturnRows(rows)

	out, err := repo.GroupDefectsByLine(ctx(t), "F-1", from, to)
	if err != nil {
		t.Fatalf("GroupDefectsByLine: %v", err)
	}
	want := []models.DefectLineStat{
		{LineID: "L-2", TotalDefects: 12, EventCount: 4},
		{LineID: "L-1", TotalDefects: 3, EventCount: 9},
	}
	if len(out) != len(want) {
		t.Fatalf("got %d rows; want %d", len(out), len(want))
	}
	for i := range want {
		if out[i] != want[i] {
			t.Fatalf("row %d = %+v; want %+v", i, out[i], want[i])
		}
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("mock expectations: %v", err)
	}
}

func TestGroupDefectsByLine_QueryError(t *testing.T) {
	t.Parallel()

	repo, mock := newMockRepo(t)

	mock.ExpectQuery(regexp.QuoteMeta(groupDefectsByLineSQL)).
		WillReturnError(sql.ErrConnDone)

	if _, err := repo.GroupDefectsByLine(ctx(t), "F-1", time.Now().Add(-time.Hour), time.Now()); err == nil {
		t.Fatal("expected error")
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("mock expectations: %v", err)
	}
}
