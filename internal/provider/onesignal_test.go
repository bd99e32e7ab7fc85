package provider

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/kursadbilgin/lead-notify/internal/domain"
)

func testConfig(baseURL string) Config {
	return Config{
		AppID:   "app-1",
		APIKey:  "secret-key",
		BaseURL: baseURL,
		Timeout: 5 * time.Second,
	}
}

func TestOneSignalClientSendSuccess(t *testing.T) {
	t.Parallel()

	var gotBody oneSignalNotification
	var gotAuth string

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("method = %s, want POST", r.Method)
		}
		if r.URL.Path != "/notifications" {
			t.Errorf("path = %s, want /notifications", r.URL.Path)
		}
		gotAuth = r.Header.Get("Authorization")

		if err := json.NewDecoder(r.Body).Decode(&gotBody); err != nil {
			t.Fatalf("failed to decode request body: %v", err)
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"id":"abc-1","recipients":5}`))
	}))
	defer server.Close()

	client, err := NewOneSignalClient(testConfig(server.URL))
	if err != nil {
		t.Fatalf("NewOneSignalClient() error = %v", err)
	}

	leadID := "lead-42"
	outcome := client.Send(context.Background(), DeliveryRequest{
		Title:   "New lead",
		Message: "A new lead was submitted",
		Payload: map[string]any{"source": "landing-page"},
		LeadID:  &leadID,
		Email:   "lead@acme.org",
	})

	if !outcome.Success {
		t.Fatalf("Send() outcome = failure (%s: %s), want success", outcome.ErrorCode, outcome.ErrorMessage)
	}
	if outcome.NotificationID != "abc-1" {
		t.Fatalf("NotificationID = %q, want abc-1", outcome.NotificationID)
	}
	if outcome.Recipients.Total != 5 {
		t.Fatalf("Recipients.Total = %d, want 5", outcome.Recipients.Total)
	}
	if outcome.ErrorCode != "" {
		t.Fatalf("success outcome should not carry error code, got %q", outcome.ErrorCode)
	}

	if gotAuth != "Basic secret-key" {
		t.Fatalf("Authorization = %q, want Basic secret-key", gotAuth)
	}
	if gotBody.AppID != "app-1" {
		t.Fatalf("app_id = %q, want app-1", gotBody.AppID)
	}
	if len(gotBody.IncludedSegments) != 1 || gotBody.IncludedSegments[0] != "All" {
		t.Fatalf("included_segments = %v, want [All]", gotBody.IncludedSegments)
	}
	if gotBody.Headings["en"] != "New lead" {
		t.Fatalf("headings.en = %q, want New lead", gotBody.Headings["en"])
	}
	if gotBody.Contents["en"] != "A new lead was submitted" {
		t.Fatalf("contents.en = %q", gotBody.Contents["en"])
	}
	if gotBody.Data["lead_id"] != "lead-42" {
		t.Fatalf("data.lead_id = %v, want lead-42", gotBody.Data["lead_id"])
	}
	if gotBody.Data["source"] != "landing-page" {
		t.Fatalf("data.source = %v, want landing-page", gotBody.Data["source"])
	}
	if _, ok := gotBody.Data["sent_at"]; !ok {
		t.Fatal("data.sent_at should be set")
	}
}

func TestOneSignalClientSendHTTPFailure(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name          string
		statusCode    int
		body          string
		wantCode      string
		wantRetryable bool
		wantMessage   string
	}{
		{
			name:          "server error",
			statusCode:    http.StatusInternalServerError,
			body:          `{"errors":["something broke"]}`,
			wantCode:      "500",
			wantRetryable: true,
			wantMessage:   "something broke",
		},
		{
			name:          "rate limited",
			statusCode:    http.StatusTooManyRequests,
			body:          "",
			wantCode:      "429",
			wantRetryable: true,
			wantMessage:   "provider returned status 429",
		},
		{
			name:          "bad request is permanent",
			statusCode:    http.StatusBadRequest,
			body:          `{"errors":["app_id not found"]}`,
			wantCode:      "400",
			wantRetryable: false,
			wantMessage:   "app_id not found",
		},
		{
			name:          "unauthorized with raw body",
			statusCode:    http.StatusUnauthorized,
			body:          `not json`,
			wantCode:      "401",
			wantRetryable: false,
			wantMessage:   "provider returned status 401: not json",
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.statusCode)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer server.Close()

			client, err := NewOneSignalClient(testConfig(server.URL))
			if err != nil {
				t.Fatalf("NewOneSignalClient() error = %v", err)
			}

			outcome := client.Send(context.Background(), DeliveryRequest{
				Title:   "t",
				Message: "m",
				Email:   "lead@acme.org",
			})

			if outcome.Success {
				t.Fatal("Send() outcome = success, want failure")
			}
			if outcome.ErrorCode != tt.wantCode {
				t.Fatalf("ErrorCode = %q, want %q", outcome.ErrorCode, tt.wantCode)
			}
			if outcome.ErrorMessage != tt.wantMessage {
				t.Fatalf("ErrorMessage = %q, want %q", outcome.ErrorMessage, tt.wantMessage)
			}
			if got := IsRetryable(outcome); got != tt.wantRetryable {
				t.Fatalf("IsRetryable() = %v, want %v", got, tt.wantRetryable)
			}
		})
	}
}

func TestOneSignalClientSendConnectionError(t *testing.T) {
	t.Parallel()

	// Server closed before the call: no response ever arrives.
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	server.Close()

	client, err := NewOneSignalClient(testConfig(server.URL))
	if err != nil {
		t.Fatalf("NewOneSignalClient() error = %v", err)
	}

	outcome := client.Send(context.Background(), DeliveryRequest{
		Title:   "t",
		Message: "m",
		Email:   "lead@acme.org",
	})

	if outcome.Success {
		t.Fatal("Send() outcome = success, want failure")
	}
	if outcome.ErrorCode != domain.ErrorCodeConnection {
		t.Fatalf("ErrorCode = %q, want %q", outcome.ErrorCode, domain.ErrorCodeConnection)
	}
	if !IsRetryable(outcome) {
		t.Fatal("connection errors should be retryable")
	}
}

func TestOneSignalClientSendTimeout(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Drain the body first: the server only detects the client abort (and
		// cancels the request context) once the body is consumed. Without this,
		// Done never fires and server.Close deadlocks on this handler.
		_, _ = io.Copy(io.Discard, r.Body)
		<-r.Context().Done()
	}))
	defer server.Close()

	client, err := NewOneSignalClient(testConfig(server.URL))
	if err != nil {
		t.Fatalf("NewOneSignalClient() error = %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	outcome := client.Send(ctx, DeliveryRequest{
		Title:   "t",
		Message: "m",
		Email:   "lead@acme.org",
	})

	if outcome.Success {
		t.Fatal("Send() outcome = success, want failure")
	}
	if outcome.ErrorCode != domain.ErrorCodeTimeout {
		t.Fatalf("ErrorCode = %q, want %q", outcome.ErrorCode, domain.ErrorCodeTimeout)
	}
	if !IsRetryable(outcome) {
		t.Fatal("timeouts should be retryable")
	}
}

func TestOneSignalClientNotConfigured(t *testing.T) {
	t.Parallel()

	client, err := NewOneSignalClient(Config{})
	if err != nil {
		t.Fatalf("NewOneSignalClient() error = %v", err)
	}

	if client.IsConfigured() {
		t.Fatal("IsConfigured() = true, want false")
	}

	outcome := client.Send(context.Background(), DeliveryRequest{
		Title:   "t",
		Message: "m",
		Email:   "lead@acme.org",
	})

	if outcome.Success {
		t.Fatal("Send() outcome = success, want failure")
	}
	if outcome.ErrorCode != domain.ErrorCodeConfiguration {
		t.Fatalf("ErrorCode = %q, want %q", outcome.ErrorCode, domain.ErrorCodeConfiguration)
	}
	if IsRetryable(outcome) {
		t.Fatal("configuration errors should not be retryable")
	}
}

func TestOneSignalClientTestConnection(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			t.Errorf("method = %s, want GET", r.Method)
		}
		if r.URL.Path != "/apps/app-1" {
			t.Errorf("path = %s, want /apps/app-1", r.URL.Path)
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"id":"app-1","name":"lead-capture"}`))
	}))
	defer server.Close()

	restyClient := resty.New()
	client, err := NewOneSignalClientWithClient(testConfig(server.URL), restyClient)
	if err != nil {
		t.Fatalf("NewOneSignalClientWithClient() error = %v", err)
	}

	outcome := client.TestConnection(context.Background())
	if !outcome.Success {
		t.Fatalf("TestConnection() outcome = failure (%s), want success", outcome.ErrorCode)
	}
	if outcome.Latency < 0 {
		t.Fatal("latency should be non-negative")
	}
}

func TestIsRetryableNeverTrueForSuccess(t *testing.T) {
	t.Parallel()

	outcome := SuccessOutcome("abc-1", Recipients{Total: 1, Successful: 1}, time.Millisecond, "{}")
	if IsRetryable(outcome) {
		t.Fatal("successful outcome must never be retryable")
	}
}
