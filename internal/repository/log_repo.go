package repository

import (
	"context"
	"errors"
	"time"

	"github.com/kursadbilgin/lead-notify/internal/domain"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type ListParams struct {
	Status   *domain.Status
	Email    string
	Search   string
	From     *time.Time
	To       *time.Time
	Page     int
	PageSize int
}

// SentResult carries the success fields written by MarkSent.
type SentResult struct {
	NotificationID       string
	RecipientsTotal      *int
	RecipientsSuccessful *int
	RecipientsFailed     *int
	ResponseLatencyMs    *int64
	ProcessingLatencyMs  *int64
	RawResponse          *string
}

// FailedResult carries the failure fields written by MarkFailed.
type FailedResult struct {
	ErrorCode           string
	ErrorMessage        string
	ErrorDetail         *string
	ResponseLatencyMs   *int64
	ProcessingLatencyMs *int64
	RawResponse         *string
}

// LogRepository is the durable store for delivery attempt audit records.
// All mark-* operations transition a PENDING record exactly once; a second
// call on the same record fails with domain.ErrInvalidTransition.
type LogRepository interface {
	CreateAttempt(ctx context.Context, l *domain.NotificationLog) error
	GetByID(ctx context.Context, id string) (*domain.NotificationLog, error)
	List(ctx context.Context, params ListParams) ([]domain.NotificationLog, int64, error)
	MarkSent(ctx context.Context, id string, result SentResult) error
	MarkFailed(ctx context.Context, id string, result FailedResult) error
	MarkSkipped(ctx context.Context, id string, reason string, extraMetadata map[string]any) error
	ScheduleRetry(ctx context.Context, id string, attemptNumber int, nextRetryAt time.Time) error
	ClearNextRetryAt(ctx context.Context, id string) error
	GetDueForRetry(ctx context.Context, limit int) ([]domain.NotificationLog, error)
	Stats(ctx context.Context, from time.Time, to time.Time) (*Stats, error)
}

type GormLogRepo struct {
	db *gorm.DB
}

func NewGormLogRepo(db *gorm.DB) *GormLogRepo {
	return &GormLogRepo{db: db}
}

func (r *GormLogRepo) CreateAttempt(ctx context.Context, l *domain.NotificationLog) error {
	model := logModelFromDomain(l)
	if err := r.db.WithContext(ctx).Create(model).Error; err != nil {
		return err
	}
	if l != nil {
		*l = *logModelToDomain(model)
	}
	return nil
}

func (r *GormLogRepo) GetByID(ctx context.Context, id string) (*domain.NotificationLog, error) {
	var model NotificationLogModel
	err := r.db.WithContext(ctx).First(&model, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return logModelToDomain(&model), nil
}

func (r *GormLogRepo) List(ctx context.Context, params ListParams) ([]domain.NotificationLog, int64, error) {
	query := r.db.WithContext(ctx).Model(&NotificationLogModel{})

	if params.Status != nil {
		query = query.Where("status = ?", *params.Status)
	}
	if params.Email != "" {
		query = query.Where("email = ?", params.Email)
	}
	if params.Search != "" {
		like := "%" + params.Search + "%"
		query = query.Where(
			"email ILIKE ? OR title ILIKE ? OR message ILIKE ? OR provider_notification_id ILIKE ?",
			like, like, like, like,
		)
	}
	if params.From != nil {
		query = query.Where("attempted_at >= ?", *params.From)
	}
	if params.To != nil {
		query = query.Where("attempted_at <= ?", *params.To)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	page := max(params.Page, 1)
	pageSize := params.PageSize
	if pageSize < 1 {
		pageSize = 50
	}
	pageSize = min(pageSize, 100)

	var models []NotificationLogModel
	err := query.
		Order("attempted_at DESC").
		Offset((page - 1) * pageSize).
		Limit(pageSize).
		Find(&models).Error
	if err != nil {
		return nil, 0, err
	}

	logs := make([]domain.NotificationLog, 0, len(models))
	for i := range models {
		logs = append(logs, *logModelToDomain(&models[i]))
	}

	return logs, total, nil
}

func (r *GormLogRepo) MarkSent(ctx context.Context, id string, result SentResult) error {
	updates := map[string]any{
		"status":                   domain.StatusSent,
		"completed_at":             time.Now().UTC(),
		"next_retry_at":            nil,
		"provider_notification_id": result.NotificationID,
		"recipients_total":         result.RecipientsTotal,
		"recipients_successful":    result.RecipientsSuccessful,
		"recipients_failed":        result.RecipientsFailed,
		"response_latency_ms":      result.ResponseLatencyMs,
		"processing_latency_ms":    result.ProcessingLatencyMs,
		"raw_response":             result.RawResponse,
	}
	return r.completePending(ctx, id, updates)
}

func (r *GormLogRepo) MarkFailed(ctx context.Context, id string, result FailedResult) error {
	updates := map[string]any{
		"status":                domain.StatusFailed,
		"completed_at":          time.Now().UTC(),
		"next_retry_at":         nil,
		"error_code":            result.ErrorCode,
		"error_message":         result.ErrorMessage,
		"error_detail":          result.ErrorDetail,
		"response_latency_ms":   result.ResponseLatencyMs,
		"processing_latency_ms": result.ProcessingLatencyMs,
		"raw_response":          result.RawResponse,
	}
	return r.completePending(ctx, id, updates)
}

func (r *GormLogRepo) MarkSkipped(ctx context.Context, id string, reason string, extraMetadata map[string]any) error {
	existing, err := r.GetByID(ctx, id)
	if err != nil {
		return err
	}

	metadata := make(map[string]any, len(existing.Metadata)+len(extraMetadata)+1)
	for k, v := range existing.Metadata {
		metadata[k] = v
	}
	for k, v := range extraMetadata {
		metadata[k] = v
	}
	metadata[domain.MetadataKeySkipReason] = reason

	updates := map[string]any{
		"status":        domain.StatusSkipped,
		"completed_at":  time.Now().UTC(),
		"next_retry_at": nil,
		"error_message": reason,
		"metadata":      datatypes.JSONMap(metadata),
	}
	return r.completePending(ctx, id, updates)
}

// completePending performs the one-way PENDING -> terminal transition as a
// conditional update, so concurrent completions cannot overwrite history.
func (r *GormLogRepo) completePending(ctx context.Context, id string, updates map[string]any) error {
	result := r.db.WithContext(ctx).
		Model(&NotificationLogModel{}).
		Where("id = ? AND status = ?", id, domain.StatusPending).
		Updates(updates)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return r.classifyMissedUpdate(ctx, id)
	}
	return nil
}

func (r *GormLogRepo) classifyMissedUpdate(ctx context.Context, id string) error {
	var count int64
	if err := r.db.WithContext(ctx).
		Model(&NotificationLogModel{}).
		Where("id = ?", id).
		Count(&count).Error; err != nil {
		return err
	}
	if count == 0 {
		return domain.ErrNotFound
	}
	return domain.ErrInvalidTransition
}

func (r *GormLogRepo) ScheduleRetry(ctx context.Context, id string, attemptNumber int, nextRetryAt time.Time) error {
	result := r.db.WithContext(ctx).
		Model(&NotificationLogModel{}).
		Where("id = ? AND status = ?", id, domain.StatusPending).
		Updates(map[string]any{
			"attempt_number": attemptNumber,
			"next_retry_at":  nextRetryAt,
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return r.classifyMissedUpdate(ctx, id)
	}
	return nil
}

func (r *GormLogRepo) ClearNextRetryAt(ctx context.Context, id string) error {
	result := r.db.WithContext(ctx).
		Model(&NotificationLogModel{}).
		Where("id = ?", id).
		Update("next_retry_at", nil)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (r *GormLogRepo) GetDueForRetry(ctx context.Context, limit int) ([]domain.NotificationLog, error) {
	var models []NotificationLogModel
	err := r.db.WithContext(ctx).
		Where("status = ? AND next_retry_at IS NOT NULL AND next_retry_at <= ?", domain.StatusPending, time.Now()).
		Order("next_retry_at ASC").
		Limit(limit).
		Find(&models).Error
	if err != nil {
		return nil, err
	}

	logs := make([]domain.NotificationLog, 0, len(models))
	for i := range models {
		logs = append(logs, *logModelToDomain(&models[i]))
	}

	return logs, nil
}
