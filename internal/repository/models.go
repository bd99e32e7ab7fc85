package repository

import (
	"time"

	"github.com/kursadbilgin/lead-notify/internal/domain"
	"gorm.io/datatypes"
)

// NotificationLogModel is the persistence model for notification_logs.
type NotificationLogModel struct {
	ID      string            `gorm:"type:uuid;primaryKey"`
	LeadID  *string           `gorm:"type:uuid"`
	Email   string            `gorm:"type:varchar(255);not null"`
	Type    string            `gorm:"type:varchar(50);not null"`
	Title   string            `gorm:"type:varchar(255);not null"`
	Message string            `gorm:"type:text;not null"`
	Payload datatypes.JSONMap `gorm:"type:jsonb"`

	Status        domain.Status `gorm:"type:varchar(20);not null"`
	AttemptNumber int           `gorm:"not null;default:1"`
	AttemptedAt   time.Time     `gorm:"not null"`
	CompletedAt   *time.Time
	NextRetryAt   *time.Time

	ProviderNotificationID *string `gorm:"type:varchar(255)"`
	RecipientsTotal        *int
	RecipientsSuccessful   *int
	RecipientsFailed       *int
	ErrorCode              *string `gorm:"type:varchar(50)"`
	ErrorMessage           *string `gorm:"type:text"`
	ErrorDetail            *string `gorm:"type:text"`
	ResponseLatencyMs      *int64
	ProcessingLatencyMs    *int64
	RawResponse            *string `gorm:"type:text"`

	RequestUserAgent *string           `gorm:"type:text"`
	RequestIP        *string           `gorm:"type:varchar(45)"`
	Metadata         datatypes.JSONMap `gorm:"type:jsonb"`

	CreatedAt time.Time
	UpdatedAt time.Time
}

func (NotificationLogModel) TableName() string {
	return "notification_logs"
}

func logModelFromDomain(l *domain.NotificationLog) *NotificationLogModel {
	if l == nil {
		return nil
	}

	return &NotificationLogModel{
		ID:                     l.ID,
		LeadID:                 l.LeadID,
		Email:                  l.Email,
		Type:                   l.Type,
		Title:                  l.Title,
		Message:                l.Message,
		Payload:                datatypes.JSONMap(l.Payload),
		Status:                 l.Status,
		AttemptNumber:          l.AttemptNumber,
		AttemptedAt:            l.AttemptedAt,
		CompletedAt:            l.CompletedAt,
		NextRetryAt:            l.NextRetryAt,
		ProviderNotificationID: l.ProviderNotificationID,
		RecipientsTotal:        l.RecipientsTotal,
		RecipientsSuccessful:   l.RecipientsSuccessful,
		RecipientsFailed:       l.RecipientsFailed,
		ErrorCode:              l.ErrorCode,
		ErrorMessage:           l.ErrorMessage,
		ErrorDetail:            l.ErrorDetail,
		ResponseLatencyMs:      l.ResponseLatencyMs,
		ProcessingLatencyMs:    l.ProcessingLatencyMs,
		RawResponse:            l.RawResponse,
		RequestUserAgent:       l.RequestUserAgent,
		RequestIP:              l.RequestIP,
		Metadata:               datatypes.JSONMap(l.Metadata),
		CreatedAt:              l.CreatedAt,
		UpdatedAt:              l.UpdatedAt,
	}
}

func logModelToDomain(m *NotificationLogModel) *domain.NotificationLog {
	if m == nil {
		return nil
	}

	return &domain.NotificationLog{
		ID:                     m.ID,
		LeadID:                 m.LeadID,
		Email:                  m.Email,
		Type:                   m.Type,
		Title:                  m.Title,
		Message:                m.Message,
		Payload:                map[string]any(m.Payload),
		Status:                 m.Status,
		AttemptNumber:          m.AttemptNumber,
		AttemptedAt:            m.AttemptedAt,
		CompletedAt:            m.CompletedAt,
		NextRetryAt:            m.NextRetryAt,
		ProviderNotificationID: m.ProviderNotificationID,
		RecipientsTotal:        m.RecipientsTotal,
		RecipientsSuccessful:   m.RecipientsSuccessful,
		RecipientsFailed:       m.RecipientsFailed,
		ErrorCode:              m.ErrorCode,
		ErrorMessage:           m.ErrorMessage,
		ErrorDetail:            m.ErrorDetail,
		ResponseLatencyMs:      m.ResponseLatencyMs,
		ProcessingLatencyMs:    m.ProcessingLatencyMs,
		RawResponse:            m.RawResponse,
		RequestUserAgent:       m.RequestUserAgent,
		RequestIP:              m.RequestIP,
		Metadata:               map[string]any(m.Metadata),
		CreatedAt:              m.CreatedAt,
		UpdatedAt:              m.UpdatedAt,
	}
}
