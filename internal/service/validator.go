package service

import (
	"time"

	"factory_events/internal/models"
)

// Rejection reason codes. Order of the checks in validateEvent is part of the
// contract: the first failing rule decides the single reported reason.
const (
	ReasonMissingEventID     = "MISSING_EVENT_ID"
	ReasonMissingMachineID   = "MISSING_MACHINE_ID"
	ReasonMissingEventTime   = "MISSING_EVENT_TIME"
	ReasonMissingDuration    = "MISSING_DURATION"
	ReasonMissingDefectCount = "MISSING_DEFECT_COUNT"
	ReasonInvalidDuration    = "INVALID_DURATION"
	ReasonFutureEventTime    = "FUTURE_EVENT_TIME"
	ReasonWriteConflict      = "CONCURRENT_WRITE_CONFLICT"
)

const (
	maxDurationMs = int64(6 * 60 * 60 * 1000) // 6 hours
	maxFutureSkew = 15 * time.Minute
)

// validateEvent checks a raw record against the ingestion rules, in strict
// precedence order. It returns "" for a valid record, otherwise the reason
// code of the first failing rule. Pure; no side effects.
func validateEvent(e models.RawEvent, now time.Time) string {
	if e.EventID == "" {
		return ReasonMissingEventID
	}
	if e.MachineID == "" {
		return ReasonMissingMachineID
	}
	if e.EventTime == nil {
		return ReasonMissingEventTime
	}
	if e.DurationMs == nil {
		return ReasonMissingDuration
	}
	if e.DefectCount == nil {
		return ReasonMissingDefectCount
	}
	if *e.DurationMs < 0 || *e.DurationMs > maxDurationMs {
		return ReasonInvalidDuration
	}
	if e.EventTime.After(now.Add(maxFutureSkew)) {
		return ReasonFutureEventTime
	}
	return ""
}
