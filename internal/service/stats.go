package service

import (
	"context"
	"math"
	"time"

	"factory_events/internal/models"
	"factory_events/internal/repository"
)

const (
	statusHealthy = "Healthy"
	statusWarning = "Warning"

	// Defect rate (defects per hour) below which a machine counts as healthy.
	healthyDefectRateThreshold = 2.0
)

// StatsService aggregates windowed statistics from the event store.
type StatsService struct {
	repo repository.EventRepo
}

func NewStatsService(repo repository.EventRepo) *StatsService {
	return &StatsService{repo: repo}
}

// GetStats reports event count, defect total and defects-per-hour for one
// machine over [start, end). The rate is rounded half-up to one decimal; a
// non-positive window yields rate 0.
func (s *StatsService) GetStats(ctx context.Context, machineID string, start, end time.Time) (models.MachineStats, error) {
	start = start.UTC()
	end = end.UTC()

	events, err := s.repo.CountInWindow(ctx, machineID, start, end)
	if err != nil {
		return models.MachineStats{}, err
	}
	defects, err := s.repo.SumDefectsInWindow(ctx, machineID, start, end)
	if err != nil {
		return models.MachineStats{}, err
	}

	windowHours := end.Sub(start).Seconds() / 3600.0
	rate := 0.0
	if windowHours > 0 {
		rate = float64(defects) / windowHours
	}
	rate = math.Round(rate*10.0) / 10.0

	status := statusHealthy
	if rate >= healthyDefectRateThreshold {
		status = statusWarning
	}

	return models.MachineStats{
		MachineID:     machineID,
		Start:         start,
		End:           end,
		EventsCount:   events,
		DefectsCount:  defects,
		AvgDefectRate: rate,
		Status:        status,
	}, nil
}

// GetTopDefectLines returns a factory's lines ranked by total defects over
// [from, to), truncated to limit. A non-positive limit yields an empty list.
// defectsPercent is a two-decimal percentage of defects per event.
func (s *StatsService) GetTopDefectLines(ctx context.Context, factoryID string, from, to time.Time, limit int) ([]models.DefectLineStat, error) {
	if limit <= 0 {
		return []models.DefectLineStat{}, nil
	}

	ranked, err := s.repo.GroupDefectsByLine(ctx, factoryID, from.UTC(), to.UTC())
	if err != nil {
		return nil, err
	}
	if len(ranked) > limit {
		ranked = ranked[:limit]
	}

	out := make([]models.DefectLineStat, 0, len(ranked))
	for _, row := range ranked {
		if row.EventCount > 0 {
			row.DefectsPercent = math.Round(float64(row.TotalDefects)*10000.0/float64(row.EventCount)) / 100.0
		} else {
			row.DefectsPercent = 0.0
		}
		out = append(out, row)
	}
	return out, nil
}
