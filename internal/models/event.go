package models

import "time"

// RawEvent is a single machine-reported record as submitted by a caller.
// EventTime, DurationMs and DefectCount are pointers so a missing field can
// be told apart from a zero value during validation. ReceivedTime is always
// overwritten by the server; any caller-supplied value is ignored.
type RawEvent struct {
	EventID      string     `json:"eventId"`
	EventTime    *time.Time `json:"eventTime"`
	ReceivedTime *time.Time `json:"receivedTime,omitempty"`
	MachineID    string     `json:"machineId"`
	DurationMs   *int64     `json:"durationMs"`
	DefectCount  *int       `json:"defectCount"`
	LineID       string     `json:"lineId,omitempty"`
	FactoryID    string     `json:"factoryId,omitempty"`
}

// StoredEvent is the persisted projection of a RawEvent. At most one row
// exists per EventID. Version backs the optimistic-concurrency check on
// concurrent writers; it is 0 for a not-yet-persisted event and incremented
// by the store on every successful write.
type StoredEvent struct {
	EventID      string    `json:"event_id"`
	EventTime    time.Time `json:"event_time"`
	ReceivedTime time.Time `json:"received_time"`
	MachineID    string    `json:"machine_id"`
	DurationMs   int64     `json:"duration_ms"`
	DefectCount  int       `json:"defect_count"`
	LineID       string    `json:"line_id,omitempty"`
	FactoryID    string    `json:"factory_id,omitempty"`
	Version      int64     `json:"-"`
	PayloadHash  string    `json:"-"`
}

// Rejection records why one record of a batch was not persisted.
type Rejection struct {
	EventID string `json:"eventId"`
	Reason  string `json:"reason"`
}

// BatchResult is the per-call outcome of one ingestion batch.
// Accepted+Deduped+Updated+Rejected always equals the input batch size.
type BatchResult struct {
	Accepted   int         `json:"accepted"`
	Deduped    int         `json:"deduped"`
	Updated    int         `json:"updated"`
	Rejected   int         `json:"rejected"`
	Rejections []Rejection `json:"rejections"`
}
