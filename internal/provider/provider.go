package provider

import (
	"context"
	"time"

	"github.com/kursadbilgin/lead-notify/internal/domain"
)

// Client is the outbound push-notification delivery port. Implementations
// never return Go errors for delivery failures: every call path yields a
// DeliveryOutcome so the caller has exactly one result shape to classify.
type Client interface {
	Send(ctx context.Context, request DeliveryRequest) DeliveryOutcome
	TestConnection(ctx context.Context) DeliveryOutcome
	IsConfigured() bool
}

// DeliveryRequest carries everything a single delivery attempt needs.
// It is constructed per attempt and never mutated.
type DeliveryRequest struct {
	Title       string
	Message     string
	Payload     map[string]any
	LeadID      *string
	Email       string
	UserAgent   string
	ClientIP    string
	SubmittedAt time.Time
}

// Recipients is the provider-reported delivery breakdown.
type Recipients struct {
	Total      int
	Successful int
	Failed     int
}

// DeliveryOutcome is the result of one provider call. Exactly one arm is
// populated: success fields when Success is true, error fields otherwise.
type DeliveryOutcome struct {
	Success bool
	Latency time.Duration

	NotificationID string
	Recipients     Recipients
	RawBody        string

	ErrorCode    string
	ErrorMessage string
	ErrorDetail  string
}

func SuccessOutcome(notificationID string, recipients Recipients, latency time.Duration, rawBody string) DeliveryOutcome {
	return DeliveryOutcome{
		Success:        true,
		NotificationID: notificationID,
		Recipients:     recipients,
		Latency:        latency,
		RawBody:        rawBody,
	}
}

func FailureOutcome(code string, message string, detail string, latency time.Duration) DeliveryOutcome {
	return DeliveryOutcome{
		ErrorCode:    code,
		ErrorMessage: message,
		ErrorDetail:  detail,
		Latency:      latency,
	}
}

// IsRetryable reports whether a failed outcome should be re-attempted.
// A successful outcome is never retryable; attempt budgets are the
// scheduler's concern.
func IsRetryable(outcome DeliveryOutcome) bool {
	if outcome.Success {
		return false
	}
	return domain.IsRetryableCode(outcome.ErrorCode)
}
