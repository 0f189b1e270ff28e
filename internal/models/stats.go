package models

import "time"

// MachineStats is the windowed health report for one machine.
// The window is half-open: EventTime in [Start, End).
type MachineStats struct {
	MachineID     string    `json:"machineId"`
	Start         time.Time `json:"start"`
	End           time.Time `json:"end"`
	EventsCount   int64     `json:"eventsCount"`
	DefectsCount  int64     `json:"defectsCount"`
	AvgDefectRate float64   `json:"avgDefectRate"`
	Status        string    `json:"status"` // Healthy | Warning
}

// DefectLineStat is one row of the ranked defect-line leaderboard.
// Defect totals exclude the unknown-count sentinel (-1).
type DefectLineStat struct {
	LineID         string  `json:"lineId"`
	TotalDefects   int64   `json:"totalDefects"`
	EventCount     int64   `json:"eventCount"`
	DefectsPercent float64 `json:"defectsPercent"`
}
