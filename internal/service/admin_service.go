package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/kursadbilgin/lead-notify/internal/domain"
	"github.com/kursadbilgin/lead-notify/internal/provider"
	"github.com/kursadbilgin/lead-notify/internal/repository"
	"go.uber.org/zap"
)

const (
	defaultRetryActor = "admin"

	// testRecipientEmail deliberately avoids the test-suppression patterns:
	// operator test sends must reach the provider.
	testRecipientEmail = "operator@lead-notify.local"

	typeManualTest = "manual_test"

	defaultTestTitle   = "Delivery test"
	defaultTestMessage = "Manual delivery test triggered by an operator"

	defaultStatsWindow = 24 * time.Hour
)

// HealthStatus is the operator-facing provider health report.
type HealthStatus struct {
	Configured bool
	Enabled    bool
	Reachable  bool
	LatencyMs  int64
	Error      string
}

// AdminService hosts the operator console operations: manual retry, manual
// test send, provider health, and delivery analytics. Manual attempts run
// synchronously, bypass the eligibility filter, and are never auto-retried.
type AdminService struct {
	logs     repository.LogRepository
	provider provider.Client
	enabled  bool
	logger   *zap.Logger
	now      func() time.Time
}

func NewAdminService(
	logs repository.LogRepository,
	providerClient provider.Client,
	enabled bool,
	logger *zap.Logger,
) (*AdminService, error) {
	if logs == nil {
		return nil, fmt.Errorf("log repository is required")
	}
	if providerClient == nil {
		return nil, fmt.Errorf("provider client is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &AdminService{
		logs:     logs,
		provider: providerClient,
		enabled:  enabled,
		logger:   logger,
		now:      time.Now,
	}, nil
}

func (s *AdminService) GetByID(ctx context.Context, id string) (*domain.NotificationLog, error) {
	if strings.TrimSpace(id) == "" {
		return nil, fmt.Errorf("%w: record id is required", domain.ErrValidation)
	}
	return s.logs.GetByID(ctx, strings.TrimSpace(id))
}

func (s *AdminService) List(ctx context.Context, params repository.ListParams) ([]domain.NotificationLog, int64, error) {
	return s.logs.List(ctx, params)
}

// Retry re-drives a failed or skipped record. It creates a brand-new audit
// record (attempt chains are append-only) with the original's content, an
// incremented attempt number, and provenance metadata, then runs exactly
// one synchronous delivery attempt.
func (s *AdminService) Retry(ctx context.Context, recordID string, actor string) (*domain.NotificationLog, error) {
	if ctx == nil {
		ctx = context.Background()
	}

	original, err := s.GetByID(ctx, recordID)
	if err != nil {
		return nil, err
	}

	if original.Status != domain.StatusFailed && original.Status != domain.StatusSkipped {
		return nil, fmt.Errorf(
			"%w: only failed or skipped records can be retried (status %s)",
			domain.ErrConflict, original.Status,
		)
	}

	actor = strings.TrimSpace(actor)
	if actor == "" {
		actor = defaultRetryActor
	}

	now := s.now().UTC()
	metadata := make(map[string]any, len(original.Metadata)+3)
	for k, v := range original.Metadata {
		metadata[k] = v
	}
	metadata[domain.MetadataKeyRetriedFrom] = original.ID
	metadata[domain.MetadataKeyRetriedBy] = actor
	metadata[domain.MetadataKeyRetriedAt] = now.Format(time.RFC3339)

	record := &domain.NotificationLog{
		ID:               uuid.NewString(),
		LeadID:           original.LeadID,
		Email:            original.Email,
		Type:             original.Type,
		Title:            original.Title,
		Message:          original.Message,
		Payload:          original.Payload,
		Status:           domain.StatusPending,
		AttemptNumber:    original.AttemptNumber + 1,
		AttemptedAt:      now,
		RequestUserAgent: original.RequestUserAgent,
		RequestIP:        original.RequestIP,
		Metadata:         metadata,
	}

	if err := s.logs.CreateAttempt(ctx, record); err != nil {
		return nil, fmt.Errorf("failed to create retry record: %w", err)
	}

	s.logger.Info("manual retry started",
		zap.String("recordId", record.ID),
		zap.String("originalRecordId", original.ID),
		zap.String("actor", actor),
		zap.Int("attempt", record.AttemptNumber),
	)

	return s.deliverOnce(ctx, record)
}

// SendTest runs a standalone delivery attempt not tied to any lead, used to
// verify the provider integration independently of real traffic.
func (s *AdminService) SendTest(ctx context.Context, title string, message string, payload map[string]any) (*domain.NotificationLog, error) {
	if ctx == nil {
		ctx = context.Background()
	}

	title = strings.TrimSpace(title)
	if title == "" {
		title = defaultTestTitle
	}
	message = strings.TrimSpace(message)
	if message == "" {
		message = defaultTestMessage
	}

	record := &domain.NotificationLog{
		ID:            uuid.NewString(),
		Email:         testRecipientEmail,
		Type:          typeManualTest,
		Title:         title,
		Message:       message,
		Payload:       payload,
		Status:        domain.StatusPending,
		AttemptNumber: 1,
		AttemptedAt:   s.now().UTC(),
		Metadata:      map[string]any{"manual_test": true},
	}

	if err := s.logs.CreateAttempt(ctx, record); err != nil {
		return nil, fmt.Errorf("failed to create test record: %w", err)
	}

	return s.deliverOnce(ctx, record)
}

// Health reports the integration state. The provider is only contacted when
// credentials are present.
func (s *AdminService) Health(ctx context.Context) HealthStatus {
	status := HealthStatus{
		Configured: s.provider.IsConfigured(),
		Enabled:    s.enabled,
	}
	if !status.Configured {
		return status
	}

	outcome := s.provider.TestConnection(ctx)
	status.Reachable = outcome.Success
	status.LatencyMs = outcome.Latency.Milliseconds()
	if !outcome.Success {
		status.Error = outcome.ErrorMessage
	}
	return status
}

// Stats returns delivery aggregates for the range. A zero range defaults to
// the trailing 24 hours.
func (s *AdminService) Stats(ctx context.Context, from time.Time, to time.Time) (*repository.Stats, error) {
	if from.IsZero() && to.IsZero() {
		to = s.now().UTC()
		from = to.Add(-defaultStatsWindow)
	}
	if to.IsZero() {
		to = s.now().UTC()
	}
	if from.After(to) {
		return nil, fmt.Errorf("%w: from must not be after to", domain.ErrValidation)
	}
	return s.logs.Stats(ctx, from, to)
}

// deliverOnce runs a single synchronous attempt and terminal-marks the
// record. Manual attempts never re-enqueue, whatever the outcome.
func (s *AdminService) deliverOnce(ctx context.Context, record *domain.NotificationLog) (*domain.NotificationLog, error) {
	processingStart := s.now()

	outcome := s.provider.Send(ctx, deliveryRequestFromRecord(record))
	processingLatency := s.now().Sub(processingStart)

	if outcome.Success {
		err := s.logs.MarkSent(ctx, record.ID, sentResultFromOutcome(outcome, processingLatency))
		if err != nil {
			return nil, fmt.Errorf("failed to mark record sent: %w", err)
		}
		s.logger.Info("manual delivery succeeded",
			zap.String("recordId", record.ID),
			zap.String("providerNotificationId", outcome.NotificationID),
		)
	} else {
		err := s.logs.MarkFailed(ctx, record.ID, failedResultFromOutcome(outcome, processingLatency))
		if err != nil {
			return nil, fmt.Errorf("failed to mark record failed: %w", err)
		}
		s.logger.Error("manual delivery failed",
			zap.String("recordId", record.ID),
			zap.String("errorCode", outcome.ErrorCode),
			zap.String("errorMessage", outcome.ErrorMessage),
		)
	}

	return s.logs.GetByID(ctx, record.ID)
}
