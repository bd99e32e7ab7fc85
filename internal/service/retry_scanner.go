package service

import (
	"context"
	"fmt"
	"time"

	"github.com/kursadbilgin/lead-notify/internal/queue"
	"github.com/kursadbilgin/lead-notify/internal/repository"
	"go.uber.org/zap"
)

const (
	defaultRetryScanInterval = 5 * time.Second
	defaultRetryScanLimit    = 100
)

// RetryScanner periodically re-enqueues pending records whose backoff delay
// has elapsed. The worker releases a failed attempt by stamping
// next_retry_at; this scanner hands it back to the queue no earlier than
// that time.
type RetryScanner struct {
	logs      repository.LogRepository
	publisher queue.Publisher
	logger    *zap.Logger
	interval  time.Duration
	limit     int
}

func NewRetryScanner(
	logs repository.LogRepository,
	publisher queue.Publisher,
	interval time.Duration,
	limit int,
	logger *zap.Logger,
) (*RetryScanner, error) {
	if logs == nil {
		return nil, fmt.Errorf("log repository is required")
	}
	if publisher == nil {
		return nil, fmt.Errorf("publisher is required")
	}
	if interval <= 0 {
		interval = defaultRetryScanInterval
	}
	if limit <= 0 {
		limit = defaultRetryScanLimit
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &RetryScanner{
		logs:      logs,
		publisher: publisher,
		logger:    logger,
		interval:  interval,
		limit:     limit,
	}, nil
}

func (s *RetryScanner) Start(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}

	// Run an initial scan so already-due retries do not wait for the first ticker edge.
	if err := s.scanDue(ctx); err != nil && ctx.Err() == nil {
		s.logger.Error("retry scanner initial scan failed", zap.Error(err))
	}

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if err := s.scanDue(ctx); err != nil {
				if ctx.Err() != nil {
					return nil
				}
				s.logger.Error("retry scanner scan failed", zap.Error(err))
			}
		}
	}
}

func (s *RetryScanner) scanDue(ctx context.Context) error {
	dueRecords, err := s.logs.GetDueForRetry(ctx, s.limit)
	if err != nil {
		return fmt.Errorf("failed to fetch due retries: %w", err)
	}

	for i := range dueRecords {
		record := dueRecords[i]
		msg := queue.DispatchMessage{
			RecordID:      record.ID,
			Email:         record.Email,
			CorrelationID: record.ID,
			Attempt:       record.AttemptNumber,
		}
		if record.LeadID != nil {
			msg.LeadID = *record.LeadID
		}

		if err := s.publisher.Publish(ctx, queue.WorkQueue, msg); err != nil {
			s.logger.Error("failed to enqueue retry attempt",
				zap.String("recordId", record.ID),
				zap.Error(err),
			)
			continue
		}

		if err := s.logs.ClearNextRetryAt(ctx, record.ID); err != nil {
			s.logger.Error("failed to clear next retry timestamp after enqueue",
				zap.String("recordId", record.ID),
				zap.Error(err),
			)
			continue
		}
	}

	return nil
}
