package provider

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/kursadbilgin/lead-notify/internal/domain"
)

const (
	defaultBaseURL         = "https://onesignal.com/api/v1"
	defaultProviderTimeout = 30 * time.Second
)

// Config holds the OneSignal integration settings, read once at construction.
// The enabled/disabled operator switch is not part of the client: the
// eligibility filter and the admin service own it.
type Config struct {
	AppID   string
	APIKey  string
	BaseURL string
	Timeout time.Duration
}

type oneSignalNotification struct {
	AppID            string            `json:"app_id"`
	IncludedSegments []string          `json:"included_segments"`
	Headings         map[string]string `json:"headings"`
	Contents         map[string]string `json:"contents"`
	Data             map[string]any    `json:"data,omitempty"`
}

type oneSignalResponse struct {
	ID         string `json:"id"`
	Recipients int    `json:"recipients"`
	Errors     []any  `json:"errors"`
}

// OneSignalClient delivers broadcast push notifications through the
// OneSignal REST API.
type OneSignalClient struct {
	client *resty.Client
	cfg    Config
	now    func() time.Time
}

func NewOneSignalClient(cfg Config) (*OneSignalClient, error) {
	client := resty.New()
	client.SetRetryCount(0)

	return NewOneSignalClientWithClient(cfg, client)
}

func NewOneSignalClientWithClient(cfg Config, client *resty.Client) (*OneSignalClient, error) {
	if client == nil {
		return nil, fmt.Errorf("resty client is required")
	}

	cfg.BaseURL = strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultBaseURL
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultProviderTimeout
	}

	client.SetBaseURL(cfg.BaseURL)
	client.SetTimeout(cfg.Timeout)
	client.SetRetryCount(0)

	return &OneSignalClient{
		client: client,
		cfg:    cfg,
		now:    time.Now,
	}, nil
}

// IsConfigured reports whether both credentials are present. Enabled/disabled
// is a separate switch handled by the eligibility filter.
func (c *OneSignalClient) IsConfigured() bool {
	if c == nil {
		return false
	}
	return strings.TrimSpace(c.cfg.AppID) != "" && strings.TrimSpace(c.cfg.APIKey) != ""
}

// Send pushes a broadcast notification for the request. It never returns an
// error: provider, transport, and internal failures all come back as a
// failure outcome with a normalized error code.
func (c *OneSignalClient) Send(ctx context.Context, request DeliveryRequest) (outcome DeliveryOutcome) {
	defer func() {
		if r := recover(); r != nil {
			outcome = FailureOutcome(
				domain.ErrorCodeUnexpected,
				"delivery client fault",
				fmt.Sprintf("%v", r),
				0,
			)
		}
	}()

	if !c.IsConfigured() {
		return FailureOutcome(
			domain.ErrorCodeConfiguration,
			"onesignal credentials are not configured",
			"",
			0,
		)
	}

	data := make(map[string]any, len(request.Payload)+3)
	for k, v := range request.Payload {
		data[k] = v
	}
	data["email"] = request.Email
	if request.LeadID != nil {
		data["lead_id"] = *request.LeadID
	}
	data["sent_at"] = c.now().UTC().Format(time.RFC3339)

	body := oneSignalNotification{
		AppID:            c.cfg.AppID,
		IncludedSegments: []string{"All"},
		Headings:         map[string]string{"en": request.Title},
		Contents:         map[string]string{"en": request.Message},
		Data:             data,
	}

	start := c.now()
	response, err := c.client.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetHeader("Authorization", "Basic "+c.cfg.APIKey).
		SetBody(body).
		Post("/notifications")
	latency := c.now().Sub(start)

	if err != nil {
		return transportFailure(err, latency)
	}

	return c.mapResponse(response, latency)
}

// TestConnection issues a read-only app metadata fetch. It shares the
// success/failure mapping with Send and is used for health checks only.
func (c *OneSignalClient) TestConnection(ctx context.Context) (outcome DeliveryOutcome) {
	defer func() {
		if r := recover(); r != nil {
			outcome = FailureOutcome(
				domain.ErrorCodeUnexpected,
				"delivery client fault",
				fmt.Sprintf("%v", r),
				0,
			)
		}
	}()

	if !c.IsConfigured() {
		return FailureOutcome(
			domain.ErrorCodeConfiguration,
			"onesignal credentials are not configured",
			"",
			0,
		)
	}

	start := c.now()
	response, err := c.client.R().
		SetContext(ctx).
		SetHeader("Authorization", "Basic "+c.cfg.APIKey).
		Get("/apps/" + c.cfg.AppID)
	latency := c.now().Sub(start)

	if err != nil {
		return transportFailure(err, latency)
	}

	return c.mapResponse(response, latency)
}

func (c *OneSignalClient) mapResponse(response *resty.Response, latency time.Duration) DeliveryOutcome {
	if response == nil {
		return FailureOutcome(
			domain.ErrorCodeConnection,
			"provider returned empty response",
			"",
			latency,
		)
	}

	statusCode := response.StatusCode()
	rawBody := strings.TrimSpace(response.String())

	if statusCode >= http.StatusOK && statusCode < http.StatusMultipleChoices {
		var parsed oneSignalResponse
		if rawBody != "" {
			// Tolerate non-JSON success bodies; the raw payload is kept either way.
			_ = json.Unmarshal([]byte(rawBody), &parsed)
		}

		recipients := Recipients{
			Total:      parsed.Recipients,
			Successful: parsed.Recipients,
		}
		return SuccessOutcome(parsed.ID, recipients, latency, rawBody)
	}

	return FailureOutcome(
		strconv.Itoa(statusCode),
		providerErrorMessage(statusCode, rawBody),
		rawBody,
		latency,
	)
}

func transportFailure(err error, latency time.Duration) DeliveryOutcome {
	code := domain.ErrorCodeConnection
	message := "provider request failed"

	if errors.Is(err, context.DeadlineExceeded) {
		code = domain.ErrorCodeTimeout
		message = "provider call timed out"
	} else {
		var netErr net.Error
		if errors.As(err, &netErr) && netErr.Timeout() {
			code = domain.ErrorCodeTimeout
			message = "provider call timed out"
		}
	}

	return FailureOutcome(code, message, err.Error(), latency)
}

func providerErrorMessage(statusCode int, rawBody string) string {
	base := fmt.Sprintf("provider returned status %d", statusCode)
	if rawBody == "" {
		return base
	}

	var parsed oneSignalResponse
	if err := json.Unmarshal([]byte(rawBody), &parsed); err == nil && len(parsed.Errors) > 0 {
		return fmt.Sprintf("%v", parsed.Errors[0])
	}

	return fmt.Sprintf("%s: %s", base, rawBody)
}
