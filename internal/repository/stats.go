package repository

import (
	"context"
	"time"

	"github.com/kursadbilgin/lead-notify/internal/domain"
	"gorm.io/gorm"
)

// hourlyBucketMaxRange bounds the window for per-hour breakdowns; wider
// ranges skip bucketing to keep the scan cheap.
const hourlyBucketMaxRange = 24 * time.Hour

const topErrorCodeLimit = 5

type ErrorCodeCount struct {
	ErrorCode string `gorm:"column:error_code"`
	Count     int64  `gorm:"column:count"`
}

type HourlyBucket struct {
	Hour    time.Time `gorm:"column:hour"`
	Total   int64     `gorm:"column:total"`
	Sent    int64     `gorm:"column:sent"`
	Failed  int64     `gorm:"column:failed"`
	Skipped int64     `gorm:"column:skipped"`
}

// Stats is the aggregate view over a date range of audit records.
type Stats struct {
	Total   int64
	Sent    int64
	Failed  int64
	Skipped int64
	Pending int64

	SuccessRate            float64
	AvgResponseLatencyMs   float64
	AvgProcessingLatencyMs float64
	RecipientsTotal        int64

	TopErrorCodes []ErrorCodeCount
	Hourly        []HourlyBucket
}

type statusCount struct {
	Status domain.Status `gorm:"column:status"`
	Count  int64         `gorm:"column:count"`
}

type latencyAggregate struct {
	AvgResponseLatencyMs   *float64 `gorm:"column:avg_response_latency_ms"`
	AvgProcessingLatencyMs *float64 `gorm:"column:avg_processing_latency_ms"`
	RecipientsTotal        *int64   `gorm:"column:recipients_total"`
}

// Stats computes the success rate, latency averages, top error codes, and
// (for ranges up to 24h) hour-bucketed status breakdowns. The computation
// re-scans the range per call; pre-aggregation is an optimization left to
// a future migration.
func (r *GormLogRepo) Stats(ctx context.Context, from time.Time, to time.Time) (*Stats, error) {
	var counts []statusCount
	err := r.rangeQuery(ctx, from, to).
		Select("status, COUNT(*) as count").
		Group("status").
		Scan(&counts).Error
	if err != nil {
		return nil, err
	}

	stats := &Stats{}
	for _, c := range counts {
		stats.Total += c.Count
		switch c.Status {
		case domain.StatusSent:
			stats.Sent = c.Count
		case domain.StatusFailed:
			stats.Failed = c.Count
		case domain.StatusSkipped:
			stats.Skipped = c.Count
		case domain.StatusPending:
			stats.Pending = c.Count
		}
	}
	if stats.Total > 0 {
		stats.SuccessRate = 100 * float64(stats.Sent) / float64(stats.Total)
	}

	var latency latencyAggregate
	err = r.rangeQuery(ctx, from, to).
		Select(
			"AVG(response_latency_ms) as avg_response_latency_ms, " +
				"AVG(processing_latency_ms) as avg_processing_latency_ms, " +
				"COALESCE(SUM(recipients_total), 0) as recipients_total",
		).
		Scan(&latency).Error
	if err != nil {
		return nil, err
	}
	if latency.AvgResponseLatencyMs != nil {
		stats.AvgResponseLatencyMs = *latency.AvgResponseLatencyMs
	}
	if latency.AvgProcessingLatencyMs != nil {
		stats.AvgProcessingLatencyMs = *latency.AvgProcessingLatencyMs
	}
	if latency.RecipientsTotal != nil {
		stats.RecipientsTotal = *latency.RecipientsTotal
	}

	err = r.rangeQuery(ctx, from, to).
		Select("error_code, COUNT(*) as count").
		Where("error_code IS NOT NULL").
		Group("error_code").
		Order("count DESC").
		Limit(topErrorCodeLimit).
		Scan(&stats.TopErrorCodes).Error
	if err != nil {
		return nil, err
	}

	if to.Sub(from) <= hourlyBucketMaxRange {
		err = r.rangeQuery(ctx, from, to).
			Select(
				"date_trunc('hour', attempted_at) as hour, " +
					"COUNT(*) as total, " +
					"COUNT(*) FILTER (WHERE status = 'SENT') as sent, " +
					"COUNT(*) FILTER (WHERE status = 'FAILED') as failed, " +
					"COUNT(*) FILTER (WHERE status = 'SKIPPED') as skipped",
			).
			Group("hour").
			Order("hour ASC").
			Scan(&stats.Hourly).Error
		if err != nil {
			return nil, err
		}
	}

	return stats, nil
}

func (r *GormLogRepo) rangeQuery(ctx context.Context, from time.Time, to time.Time) *gorm.DB {
	return r.db.WithContext(ctx).
		Model(&NotificationLogModel{}).
		Where("attempted_at >= ? AND attempted_at <= ?", from, to)
}
