package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"factory_events/internal/metrics"
	"factory_events/internal/models"
	"factory_events/internal/repository"
)

// Dispositions a record can end up with inside one batch.
const (
	dispAccepted = "accepted"
	dispDeduped  = "deduped"
	dispUpdated  = "updated"
	dispRejected = "rejected"
)

// IngestService reconciles incoming batches against stored state.
type IngestService struct {
	repo repository.EventRepo
	m    *metrics.IngestMetrics
}

func NewIngestService(repo repository.EventRepo, m *metrics.IngestMetrics) *IngestService {
	return &IngestService{repo: repo, m: m}
}

// storedFromRaw projects a validated raw record into its persisted shape,
// stamping the server-side received time and fingerprinting the business
// fields. Version 0 marks a not-yet-persisted event.
func storedFromRaw(e models.RawEvent, now time.Time) models.StoredEvent {
	st := models.StoredEvent{
		EventID:      e.EventID,
		EventTime:    e.EventTime.UTC(),
		ReceivedTime: now,
		MachineID:    e.MachineID,
		DurationMs:   *e.DurationMs,
		DefectCount:  *e.DefectCount,
		LineID:       e.LineID,
		FactoryID:    e.FactoryID,
	}
	st.PayloadHash = payloadHash(st.EventID, st.EventTime, st.MachineID, st.DurationMs, st.DefectCount, st.LineID, st.FactoryID)
	return st
}

// applyUpdate overwrites the target's business fields, received time and
// fingerprint in place, preserving Version for the commit-time CAS.
func applyUpdate(target *models.StoredEvent, from models.StoredEvent) {
	version := target.Version
	*target = from
	target.Version = version
}

// IngestBatch runs one batch through validation, intra- and cross-batch
// reconciliation, and a single bulk persist. Records are processed in input
// order; a batch-local map carries the winner-so-far per event id so that
// several records for the same id reconcile against each other, not just
// against pre-batch storage. The whole batch uses one `now` for validation
// and received-time stamping.
//
// Per-record problems (validation failures, commit-time write conflicts that
// survive one retry) land in the result; only storage failures return an
// error, and then no result is produced.
func (s *IngestService) IngestBatch(ctx context.Context, batch []models.RawEvent) (models.BatchResult, error) {
	started := time.Now()
	res := models.BatchResult{Rejections: []models.Rejection{}}
	now := time.Now().UTC()

	valid := make([]models.RawEvent, 0, len(batch))
	ids := make([]string, 0, len(batch))
	seen := make(map[string]struct{}, len(batch))
	for _, e := range batch {
		if reason := validateEvent(e, now); reason != "" {
			res.Rejected++
			res.Rejections = append(res.Rejections, models.Rejection{EventID: e.EventID, Reason: reason})
			continue
		}
		valid = append(valid, e)
		if _, ok := seen[e.EventID]; !ok {
			seen[e.EventID] = struct{}{}
			ids = append(ids, e.EventID)
		}
	}

	existing, err := s.repo.FindExisting(ctx, ids)
	if err != nil {
		return models.BatchResult{}, fmt.Errorf("load existing events: %w", err)
	}

	// Batch-local resolutions: the in-progress reconciled state per event id.
	local := make(map[string]*models.StoredEvent, len(valid))
	dirty := make(map[string]bool, len(valid))
	// Disposition of the record whose content the pending write carries;
	// needed to reclassify that one record if the commit later conflicts.
	finalDisp := make(map[string]string, len(valid))
	writeOrder := make([]string, 0, len(valid))

	for _, e := range valid {
		candidate := storedFromRaw(e, now)
		id := candidate.EventID

		target, ok := local[id]
		if !ok {
			if ex, found := existing[id]; found {
				cp := ex
				target = &cp
				local[id] = target
			}
		}

		switch {
		case target == nil:
			// Brand-new logical event.
			cp := candidate
			local[id] = &cp
			dirty[id] = true
			finalDisp[id] = dispAccepted
			writeOrder = append(writeOrder, id)
			res.Accepted++

		case target.PayloadHash == candidate.PayloadHash:
			// Identical content, no matter when it was received.
			res.Deduped++

		case candidate.ReceivedTime.After(target.ReceivedTime):
			// Strictly later report with different content supersedes.
			applyUpdate(target, candidate)
			if !dirty[id] {
				dirty[id] = true
				writeOrder = append(writeOrder, id)
			}
			finalDisp[id] = dispUpdated
			res.Updated++

		default:
			// Equal or earlier received time loses; first write wins.
			res.Deduped++
		}
	}

	toSave := make([]models.StoredEvent, 0, len(writeOrder))
	for _, id := range writeOrder {
		toSave = append(toSave, *local[id])
	}

	if err := s.repo.UpsertAll(ctx, toSave); err != nil {
		var conflict *repository.ConflictError
		if !errors.As(err, &conflict) {
			return models.BatchResult{}, fmt.Errorf("persist batch: %w", err)
		}
		for _, id := range conflict.EventIDs {
			if rerr := s.retryConflicted(ctx, *local[id], finalDisp[id], &res); rerr != nil {
				return models.BatchResult{}, rerr
			}
		}
	}

	s.m.ObserveBatch(res.Accepted, res.Deduped, res.Updated, res.Rejected, time.Since(started).Seconds())
	return res, nil
}

// retryConflicted re-reconciles one event that lost the commit-time race
// against freshly-read storage, retries the write once, and on a second
// conflict degrades that record to a CONCURRENT_WRITE_CONFLICT rejection.
func (s *IngestService) retryConflicted(ctx context.Context, ev models.StoredEvent, disp string, res *models.BatchResult) error {
	fresh, err := s.repo.FindExisting(ctx, []string{ev.EventID})
	if err != nil {
		return fmt.Errorf("reload conflicted event %s: %w", ev.EventID, err)
	}

	cur, found := fresh[ev.EventID]
	switch {
	case !found:
		// The racing row is gone; try the insert again.
		ev.Version = 0

	case cur.PayloadHash == ev.PayloadHash:
		// The racing writer stored identical content; ours is a dedup.
		moveCount(res, disp, dispDeduped)
		return nil

	case ev.ReceivedTime.After(cur.ReceivedTime):
		// Our report is still the latest; redo the write against the
		// winner's row under its current version.
		ev.Version = cur.Version
		if disp == dispAccepted {
			// What started as an insert is now an update of the racer's row.
			res.Accepted--
			res.Updated++
			disp = dispUpdated
		}

	default:
		// The racing writer holds equal-or-newer content; ours is stale.
		moveCount(res, disp, dispDeduped)
		return nil
	}

	if err := s.repo.UpsertAll(ctx, []models.StoredEvent{ev}); err != nil {
		var conflict *repository.ConflictError
		if !errors.As(err, &conflict) {
			return fmt.Errorf("retry conflicted event %s: %w", ev.EventID, err)
		}
		moveCount(res, disp, dispRejected)
		res.Rejections = append(res.Rejections, models.Rejection{EventID: ev.EventID, Reason: ReasonWriteConflict})
	}
	return nil
}

// moveCount reclassifies exactly one record's disposition, keeping the
// accepted+deduped+updated+rejected == batch-size invariant intact.
func moveCount(res *models.BatchResult, from, to string) {
	switch from {
	case dispAccepted:
		res.Accepted--
	case dispUpdated:
		res.Updated--
	}
	switch to {
	case dispDeduped:
		res.Deduped++
	case dispRejected:
		res.Rejected++
	}
}
