package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/kursadbilgin/lead-notify/internal/domain"
	"github.com/kursadbilgin/lead-notify/internal/queue"
	"github.com/kursadbilgin/lead-notify/internal/repository"
	"go.uber.org/zap"
)

const (
	leadNotificationTitle = "New lead received"
)

// LeadSubmission is the inert fact handed over by the lead-creation flow.
// The pipeline owns everything that happens after it is emitted.
type LeadSubmission struct {
	LeadID      string
	Email       string
	UserAgent   string
	ClientIP    string
	SubmittedAt time.Time
	Payload     map[string]any
}

// DispatchService turns lead submissions into pending audit records on the
// dedicated delivery queue. It is fire-and-forget from the caller's view:
// queue failures are absorbed here and terminal-marked on the record, so a
// provider or broker outage can never fail the lead-creation response.
type DispatchService struct {
	logs      repository.LogRepository
	publisher queue.Publisher
	logger    *zap.Logger
	now       func() time.Time
}

func NewDispatchService(
	logs repository.LogRepository,
	publisher queue.Publisher,
	logger *zap.Logger,
) (*DispatchService, error) {
	if logs == nil {
		return nil, fmt.Errorf("log repository is required")
	}
	if publisher == nil {
		return nil, fmt.Errorf("publisher is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &DispatchService{
		logs:      logs,
		publisher: publisher,
		logger:    logger,
		now:       time.Now,
	}, nil
}

func (s *DispatchService) NotifyLeadSubmitted(ctx context.Context, submission LeadSubmission) (*domain.NotificationLog, error) {
	if ctx == nil {
		ctx = context.Background()
	}

	email := strings.TrimSpace(submission.Email)
	if email == "" {
		return nil, fmt.Errorf("%w: email is required", domain.ErrValidation)
	}

	record := s.buildRecord(submission, email)
	if err := record.Validate(); err != nil {
		return nil, err
	}

	if err := s.logs.CreateAttempt(ctx, record); err != nil {
		return nil, fmt.Errorf("failed to create audit record: %w", err)
	}

	msg := queue.DispatchMessage{
		RecordID:      record.ID,
		LeadID:        submission.LeadID,
		Email:         email,
		CorrelationID: record.ID,
		Attempt:       record.AttemptNumber,
	}
	if err := s.publisher.Publish(ctx, queue.WorkQueue, msg); err != nil {
		s.logger.Error("failed to enqueue lead notification",
			zap.String("recordId", record.ID),
			zap.String("email", email),
			zap.Error(err),
		)

		markErr := s.logs.MarkFailed(ctx, record.ID, repository.FailedResult{
			ErrorCode:    domain.ErrorCodeQueue,
			ErrorMessage: "failed to enqueue delivery attempt",
			ErrorDetail:  ptr(err.Error()),
		})
		if markErr != nil {
			s.logger.Error("failed to mark record after enqueue error",
				zap.String("recordId", record.ID),
				zap.Error(markErr),
			)
		}

		// Fire-and-forget boundary: the failure is recorded and visible
		// through the audit surface, never propagated to lead creation.
		refreshed, getErr := s.logs.GetByID(ctx, record.ID)
		if getErr == nil {
			return refreshed, nil
		}
		return record, nil
	}

	s.logger.Info("lead notification enqueued",
		zap.String("recordId", record.ID),
		zap.String("email", email),
	)

	return record, nil
}

func (s *DispatchService) buildRecord(submission LeadSubmission, email string) *domain.NotificationLog {
	now := s.now().UTC()

	record := &domain.NotificationLog{
		ID:            uuid.NewString(),
		Email:         email,
		Type:          domain.TypeLeadSubmission,
		Title:         leadNotificationTitle,
		Message:       fmt.Sprintf("A new lead was submitted by %s", email),
		Payload:       submission.Payload,
		Status:        domain.StatusPending,
		AttemptNumber: 1,
		AttemptedAt:   now,
		Metadata:      map[string]any{},
	}

	if leadID := strings.TrimSpace(submission.LeadID); leadID != "" {
		record.LeadID = &leadID
	}
	if ua := strings.TrimSpace(submission.UserAgent); ua != "" {
		record.RequestUserAgent = &ua
	}
	if ip := strings.TrimSpace(submission.ClientIP); ip != "" {
		record.RequestIP = &ip
	}
	if !submission.SubmittedAt.IsZero() {
		record.Metadata["submitted_at"] = submission.SubmittedAt.UTC().Format(time.RFC3339)
	}

	return record
}

func ptr[T any](v T) *T {
	return &v
}
