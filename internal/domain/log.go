package domain

import (
	"fmt"
	"strings"
	"time"
)

// Status represents the lifecycle state of a notification log record.
type Status string

const (
	StatusPending Status = "PENDING"
	StatusSent    Status = "SENT"
	StatusFailed  Status = "FAILED"
	StatusSkipped Status = "SKIPPED"
)

func (s Status) String() string { return string(s) }

func (s Status) IsValid() bool {
	switch s {
	case StatusPending, StatusSent, StatusFailed, StatusSkipped:
		return true
	}
	return false
}

// IsTerminal reports whether the status allows no further transitions.
func (s Status) IsTerminal() bool {
	switch s {
	case StatusSent, StatusFailed, StatusSkipped:
		return true
	}
	return false
}

func ParseStatusFromString(s string) (Status, error) {
	st := Status(strings.ToUpper(strings.TrimSpace(s)))
	if !st.IsValid() {
		return "", fmt.Errorf("%w: invalid status %q", ErrValidation, s)
	}
	return st, nil
}

// TypeLeadSubmission is the default notification type tag.
const TypeLeadSubmission = "lead_submission"

// Metadata keys recorded on manually re-driven records.
const (
	MetadataKeyRetriedFrom = "retried_from"
	MetadataKeyRetriedBy   = "retried_by"
	MetadataKeyRetriedAt   = "retried_at"
	MetadataKeySkipReason  = "skip_reason"
)

// NotificationLog is the durable audit record for a delivery attempt chain.
// Automatic retries reuse the same record (AttemptNumber increments);
// a manual retry always creates a new record linked via metadata.
type NotificationLog struct {
	ID      string
	LeadID  *string
	Email   string
	Type    string
	Title   string
	Message string
	Payload map[string]any

	Status        Status
	AttemptNumber int
	AttemptedAt   time.Time
	CompletedAt   *time.Time
	NextRetryAt   *time.Time

	ProviderNotificationID *string
	RecipientsTotal        *int
	RecipientsSuccessful   *int
	RecipientsFailed       *int
	ErrorCode              *string
	ErrorMessage           *string
	ErrorDetail            *string
	ResponseLatencyMs      *int64
	ProcessingLatencyMs    *int64
	RawResponse            *string

	RequestUserAgent *string
	RequestIP        *string
	Metadata         map[string]any

	CreatedAt time.Time
	UpdatedAt time.Time
}

func (l *NotificationLog) Validate() error {
	if strings.TrimSpace(l.Email) == "" {
		return fmt.Errorf("%w: email is required", ErrValidation)
	}
	if strings.TrimSpace(l.Title) == "" {
		return fmt.Errorf("%w: title is required", ErrValidation)
	}
	if strings.TrimSpace(l.Message) == "" {
		return fmt.Errorf("%w: message is required", ErrValidation)
	}
	if !l.Status.IsValid() {
		return fmt.Errorf("%w: invalid status %q", ErrValidation, l.Status)
	}
	if l.AttemptNumber < 1 {
		return fmt.Errorf("%w: attempt number must be >= 1", ErrValidation)
	}
	return nil
}

// CheckConsistency verifies the record-level invariants:
// CompletedAt is set iff the status is terminal, and a SENT record
// carries a provider notification id.
func (l *NotificationLog) CheckConsistency() error {
	if l.Status.IsTerminal() && l.CompletedAt == nil {
		return fmt.Errorf("%w: terminal record without completed_at", ErrInvalidTransition)
	}
	if !l.Status.IsTerminal() && l.CompletedAt != nil {
		return fmt.Errorf("%w: pending record with completed_at set", ErrInvalidTransition)
	}
	if l.Status == StatusSent && l.ProviderNotificationID == nil {
		return fmt.Errorf("%w: sent record without provider notification id", ErrInvalidTransition)
	}
	return nil
}
