package services

import (
	"context"
	"time"

	"github.com/akmatori/incidentd/internal/database"
	"github.com/akmatori/incidentd/internal/utils"
)

// DurationStat is a mean duration over a sample of incidents
type DurationStat struct {
	Seconds    float64 `json:"seconds"`
	Human      string  `json:"human"`
	SampleSize int64   `json:"sample_size"`
}

// SREMetrics holds mean time to acknowledge and to resolve
type SREMetrics struct {
	MTTA          DurationStat `json:"mtta"`
	MTTR          DurationStat `json:"mttr"`
	OpenIncidents int64        `json:"open_incidents"`
	ComputedAt    time.Time    `json:"computed_at"`
}

type incidentTimes struct {
	CreatedAt      time.Time
	AcknowledgedAt *time.Time
	ResolvedAt     *time.Time
}

// ComputeSREMetrics averages acknowledged_at - created_at over acknowledged
// incidents and resolved_at - created_at over resolved ones
func (s *IncidentService) ComputeSREMetrics(ctx context.Context) (*SREMetrics, error) {
	var rows []incidentTimes
	err := s.db.WithContext(ctx).Model(&database.Incident{}).
		Select("created_at", "acknowledged_at", "resolved_at").
		Where("acknowledged_at IS NOT NULL OR resolved_at IS NOT NULL").
		Find(&rows).Error
	if err != nil {
		return nil, err
	}

	var ackTotal, resolveTotal time.Duration
	var ackCount, resolveCount int64
	for _, r := range rows {
		if r.AcknowledgedAt != nil {
			ackTotal += r.AcknowledgedAt.Sub(r.CreatedAt)
			ackCount++
		}
		if r.ResolvedAt != nil {
			resolveTotal += r.ResolvedAt.Sub(r.CreatedAt)
			resolveCount++
		}
	}

	var open int64
	err = s.db.WithContext(ctx).Model(&database.Incident{}).
		Where("status = ?", database.IncidentStatusOpen).
		Count(&open).Error
	if err != nil {
		return nil, err
	}

	return &SREMetrics{
		MTTA:          meanStat(ackTotal, ackCount),
		MTTR:          meanStat(resolveTotal, resolveCount),
		OpenIncidents: open,
		ComputedAt:    s.now(),
	}, nil
}

func meanStat(total time.Duration, n int64) DurationStat {
	if n == 0 {
		return DurationStat{Human: utils.FormatDuration(0)}
	}
	mean := total / time.Duration(n)
	return DurationStat{Seconds: mean.Seconds(), Human: utils.FormatDuration(mean), SampleSize: n}
}
