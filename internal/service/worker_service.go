package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/kursadbilgin/lead-notify/internal/domain"
	"github.com/kursadbilgin/lead-notify/internal/filter"
	"github.com/kursadbilgin/lead-notify/internal/observability"
	"github.com/kursadbilgin/lead-notify/internal/provider"
	"github.com/kursadbilgin/lead-notify/internal/queue"
	"github.com/kursadbilgin/lead-notify/internal/ratelimit"
	"github.com/kursadbilgin/lead-notify/internal/repository"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const (
	minWorkerConcurrency = 1

	// maxDeliveryAttempts bounds the automatic retry chain, first attempt
	// included.
	maxDeliveryAttempts = 3

	// attemptCeiling caps one whole attempt (filter + rate-limit wait +
	// provider call). A ceiling expiry surfaces as a timeout outcome and
	// consumes retry budget like any provider failure.
	attemptCeiling = 60 * time.Second

	rateLimitScope = "push"
)

// retryBackoff is indexed by the attempt number that just failed (1-based).
// Attempts past the table reuse the last entry.
var retryBackoff = []time.Duration{
	30 * time.Second,
	60 * time.Second,
	120 * time.Second,
}

// WorkerService consumes the delivery queue and runs the
// filter -> deliver -> classify -> mark/re-enqueue pipeline.
type WorkerService struct {
	logs        repository.LogRepository
	consumer    queue.Consumer
	provider    provider.Client
	eligibility *filter.Filter
	rateLimiter ratelimit.RateLimiter
	logger      *zap.Logger
	metrics     *observability.Metrics
	concurrency int
	now         func() time.Time
}

func NewWorkerService(
	logs repository.LogRepository,
	consumer queue.Consumer,
	providerClient provider.Client,
	eligibility *filter.Filter,
	rateLimiter ratelimit.RateLimiter,
	concurrency int,
	logger *zap.Logger,
) (*WorkerService, error) {
	if logs == nil {
		return nil, fmt.Errorf("log repository is required")
	}
	if providerClient == nil {
		return nil, fmt.Errorf("provider client is required")
	}
	if eligibility == nil {
		return nil, fmt.Errorf("eligibility filter is required")
	}
	if concurrency < minWorkerConcurrency {
		concurrency = minWorkerConcurrency
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &WorkerService{
		logs:        logs,
		consumer:    consumer,
		provider:    providerClient,
		eligibility: eligibility,
		rateLimiter: rateLimiter,
		logger:      logger,
		concurrency: concurrency,
		now:         time.Now,
	}, nil
}

func (s *WorkerService) SetMetrics(metrics *observability.Metrics) {
	if s == nil {
		return
	}
	s.metrics = metrics
}

// Start consumes the delivery queue until context cancellation.
func (s *WorkerService) Start(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}

	g, groupCtx := errgroup.WithContext(ctx)
	for i := 0; i < s.concurrency; i++ {
		workerID := i + 1

		g.Go(func() error {
			s.logger.Info("delivery worker started",
				zap.Int("workerId", workerID),
				zap.String("queue", queue.WorkQueue),
			)

			err := s.consumer.Consume(groupCtx, queue.WorkQueue, s.processMessage)
			if err != nil {
				s.logger.Error("delivery worker stopped with error",
					zap.Int("workerId", workerID),
					zap.Error(err),
				)
				return err
			}

			s.logger.Info("delivery worker stopped", zap.Int("workerId", workerID))
			return nil
		})
	}

	return g.Wait()
}

func (s *WorkerService) processMessage(ctx context.Context, msg queue.DispatchMessage) error {
	logger := observability.WithContextLogger(s.logger, ctx)

	record, err := s.logs.GetByID(ctx, msg.RecordID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			logger.Warn("audit record not found, dropping message",
				zap.String("recordId", msg.RecordID),
			)
			return nil
		}
		return fmt.Errorf("failed to load audit record: %w", err)
	}

	// Stale redelivery of an already-completed chain; ack and move on.
	if record.Status != domain.StatusPending {
		return nil
	}

	if s.metrics != nil {
		s.metrics.IncWorkerInFlight()
		defer s.metrics.DecWorkerInFlight()
	}

	attemptCtx, cancel := context.WithTimeout(ctx, attemptCeiling)
	defer cancel()

	processingStart := s.now()

	decision := s.eligibility.Check(record.Email)
	if !decision.Eligible {
		if err := s.logs.MarkSkipped(ctx, record.ID, decision.Reason, nil); err != nil {
			return fmt.Errorf("failed to mark record skipped: %w", err)
		}
		if s.metrics != nil {
			s.metrics.IncNotificationSkipped(decision.Reason)
		}
		logger.Info("delivery skipped",
			zap.String("recordId", record.ID),
			zap.String("reason", decision.Reason),
		)
		return nil
	}

	if s.rateLimiter != nil {
		if err := s.rateLimiter.Wait(attemptCtx, rateLimitScope); err != nil {
			return fmt.Errorf("rate limiter wait failed: %w", err)
		}
	}

	outcome := s.provider.Send(attemptCtx, deliveryRequestFromRecord(record))
	if s.metrics != nil {
		s.metrics.ObserveSendDuration(outcome.Latency)
	}

	processingLatency := s.now().Sub(processingStart)

	if outcome.Success {
		return s.completeSent(ctx, record, outcome, processingLatency)
	}
	return s.completeFailed(ctx, record, outcome, processingLatency)
}

func (s *WorkerService) completeSent(
	ctx context.Context,
	record *domain.NotificationLog,
	outcome provider.DeliveryOutcome,
	processingLatency time.Duration,
) error {
	err := s.logs.MarkSent(ctx, record.ID, sentResultFromOutcome(outcome, processingLatency))
	if err != nil {
		if errors.Is(err, domain.ErrInvalidTransition) {
			s.logger.Warn("record completed concurrently, keeping first terminal state",
				zap.String("recordId", record.ID),
			)
			return nil
		}
		return fmt.Errorf("failed to mark record sent: %w", err)
	}

	if s.metrics != nil {
		s.metrics.IncNotificationSent()
	}
	s.logger.Info("notification delivered",
		zap.String("recordId", record.ID),
		zap.String("providerNotificationId", outcome.NotificationID),
		zap.Int("attempt", record.AttemptNumber),
		zap.Duration("latency", outcome.Latency),
	)
	return nil
}

func (s *WorkerService) completeFailed(
	ctx context.Context,
	record *domain.NotificationLog,
	outcome provider.DeliveryOutcome,
	processingLatency time.Duration,
) error {
	retryable := provider.IsRetryable(outcome)

	if retryable && record.AttemptNumber < maxDeliveryAttempts {
		delay := backoffDelay(record.AttemptNumber)
		nextRetryAt := s.now().Add(delay)

		if err := s.logs.ScheduleRetry(ctx, record.ID, record.AttemptNumber+1, nextRetryAt); err != nil {
			if errors.Is(err, domain.ErrInvalidTransition) {
				return nil
			}
			return fmt.Errorf("failed to schedule retry: %w", err)
		}
		if s.metrics != nil {
			s.metrics.IncRetryScheduled()
		}
		s.logger.Warn("delivery failed, retry scheduled",
			zap.String("recordId", record.ID),
			zap.String("errorCode", outcome.ErrorCode),
			zap.Int("attempt", record.AttemptNumber),
			zap.Duration("delay", delay),
		)
		return nil
	}

	err := s.logs.MarkFailed(ctx, record.ID, failedResultFromOutcome(outcome, processingLatency))
	if err != nil {
		if errors.Is(err, domain.ErrInvalidTransition) {
			return nil
		}
		return fmt.Errorf("failed to mark record failed: %w", err)
	}

	reason := "permanent_error"
	if retryable {
		reason = "retry_exhausted"
	}
	if s.metrics != nil {
		s.metrics.IncNotificationFailed(reason)
	}
	s.logger.Error("notification permanently failed",
		zap.String("recordId", record.ID),
		zap.String("email", record.Email),
		zap.String("errorCode", outcome.ErrorCode),
		zap.String("errorMessage", outcome.ErrorMessage),
		zap.Int("attempt", record.AttemptNumber),
		zap.String("reason", reason),
	)
	return nil
}

// backoffDelay returns the wait before the next attempt, indexed by the
// attempt number that just failed. Indexes past the table clamp to the
// last entry.
func backoffDelay(attemptNumber int) time.Duration {
	idx := attemptNumber - 1
	if idx < 0 {
		idx = 0
	}
	if idx >= len(retryBackoff) {
		idx = len(retryBackoff) - 1
	}
	return retryBackoff[idx]
}

func deliveryRequestFromRecord(record *domain.NotificationLog) provider.DeliveryRequest {
	request := provider.DeliveryRequest{
		Title:       record.Title,
		Message:     record.Message,
		Payload:     record.Payload,
		LeadID:      record.LeadID,
		Email:       record.Email,
		SubmittedAt: record.AttemptedAt,
	}
	if record.RequestUserAgent != nil {
		request.UserAgent = *record.RequestUserAgent
	}
	if record.RequestIP != nil {
		request.ClientIP = *record.RequestIP
	}
	return request
}

func sentResultFromOutcome(outcome provider.DeliveryOutcome, processingLatency time.Duration) repository.SentResult {
	result := repository.SentResult{
		NotificationID:       outcome.NotificationID,
		RecipientsTotal:      ptr(outcome.Recipients.Total),
		RecipientsSuccessful: ptr(outcome.Recipients.Successful),
		RecipientsFailed:     ptr(outcome.Recipients.Failed),
		ResponseLatencyMs:    ptr(outcome.Latency.Milliseconds()),
		ProcessingLatencyMs:  ptr(processingLatency.Milliseconds()),
	}
	if outcome.RawBody != "" {
		result.RawResponse = ptr(outcome.RawBody)
	}
	return result
}

func failedResultFromOutcome(outcome provider.DeliveryOutcome, processingLatency time.Duration) repository.FailedResult {
	result := repository.FailedResult{
		ErrorCode:           outcome.ErrorCode,
		ErrorMessage:        outcome.ErrorMessage,
		ProcessingLatencyMs: ptr(processingLatency.Milliseconds()),
	}
	if outcome.ErrorDetail != "" {
		result.ErrorDetail = ptr(outcome.ErrorDetail)
	}
	if outcome.Latency > 0 {
		result.ResponseLatencyMs = ptr(outcome.Latency.Milliseconds())
	}
	return result
}
