package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/kursadbilgin/lead-notify/internal/domain"
	"github.com/kursadbilgin/lead-notify/internal/queue"
	"go.uber.org/zap"
)

func TestNotifyLeadSubmittedCreatesAndEnqueues(t *testing.T) {
	t.Parallel()

	repo := newFakeLogRepo()
	publisher := &fakePublisher{}
	svc, err := NewDispatchService(repo, publisher, zap.NewNop())
	if err != nil {
		t.Fatalf("NewDispatchService() error = %v", err)
	}

	submitted := time.Date(2026, 8, 1, 10, 30, 0, 0, time.UTC)
	record, err := svc.NotifyLeadSubmitted(context.Background(), LeadSubmission{
		LeadID:      "lead-42",
		Email:       "buyer@acme.com",
		UserAgent:   "Mozilla/5.0",
		ClientIP:    "203.0.113.9",
		SubmittedAt: submitted,
		Payload:     map[string]any{"source": "landing-page"},
	})
	if err != nil {
		t.Fatalf("NotifyLeadSubmitted() error = %v", err)
	}

	if record.Status != domain.StatusPending {
		t.Fatalf("status = %s, want PENDING", record.Status)
	}
	if record.AttemptNumber != 1 {
		t.Fatalf("attempt = %d, want 1", record.AttemptNumber)
	}
	if record.Type != domain.TypeLeadSubmission {
		t.Fatalf("type = %s, want %s", record.Type, domain.TypeLeadSubmission)
	}
	if record.LeadID == nil || *record.LeadID != "lead-42" {
		t.Fatalf("lead id = %v, want lead-42", record.LeadID)
	}
	if record.CompletedAt != nil {
		t.Fatal("pending record must not carry completed_at")
	}
	if record.Metadata["submitted_at"] != "2026-08-01T10:30:00Z" {
		t.Fatalf("metadata submitted_at = %v", record.Metadata["submitted_at"])
	}

	msgs := publisher.messages()
	if len(msgs) != 1 {
		t.Fatalf("published messages = %d, want 1", len(msgs))
	}
	if msgs[0].queueName != queue.WorkQueue {
		t.Fatalf("queue = %s, want %s", msgs[0].queueName, queue.WorkQueue)
	}
	if msgs[0].msg.RecordID != record.ID {
		t.Fatalf("message record id = %s, want %s", msgs[0].msg.RecordID, record.ID)
	}
	if msgs[0].msg.Attempt != 1 {
		t.Fatalf("message attempt = %d, want 1", msgs[0].msg.Attempt)
	}
}

func TestNotifyLeadSubmittedAbsorbsPublishFailure(t *testing.T) {
	t.Parallel()

	repo := newFakeLogRepo()
	publisher := &fakePublisher{publishErr: errors.New("broker unreachable")}
	svc, err := NewDispatchService(repo, publisher, zap.NewNop())
	if err != nil {
		t.Fatalf("NewDispatchService() error = %v", err)
	}

	record, err := svc.NotifyLeadSubmitted(context.Background(), LeadSubmission{
		LeadID: "lead-7",
		Email:  "buyer@acme.com",
	})
	if err != nil {
		t.Fatalf("publish failure must not surface to the caller, got %v", err)
	}

	if record.Status != domain.StatusFailed {
		t.Fatalf("status = %s, want FAILED", record.Status)
	}
	result, ok := repo.failedResults[record.ID]
	if !ok {
		t.Fatal("record should be terminal-marked failed")
	}
	if result.ErrorCode != domain.ErrorCodeQueue {
		t.Fatalf("error code = %s, want %s", result.ErrorCode, domain.ErrorCodeQueue)
	}
}

func TestNotifyLeadSubmittedRejectsMissingEmail(t *testing.T) {
	t.Parallel()

	repo := newFakeLogRepo()
	svc, err := NewDispatchService(repo, &fakePublisher{}, zap.NewNop())
	if err != nil {
		t.Fatalf("NewDispatchService() error = %v", err)
	}

	_, err = svc.NotifyLeadSubmitted(context.Background(), LeadSubmission{LeadID: "lead-1", Email: "   "})
	if !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("error = %v, want %v", err, domain.ErrValidation)
	}
	if len(repo.records) != 0 {
		t.Fatal("no record should be created for invalid submissions")
	}
}

func TestNotifyLeadSubmittedStoreFailurePropagates(t *testing.T) {
	t.Parallel()

	repo := newFakeLogRepo()
	repo.createErr = errors.New("database down")
	publisher := &fakePublisher{}
	svc, err := NewDispatchService(repo, publisher, zap.NewNop())
	if err != nil {
		t.Fatalf("NewDispatchService() error = %v", err)
	}

	_, err = svc.NotifyLeadSubmitted(context.Background(), LeadSubmission{Email: "buyer@acme.com"})
	if err == nil {
		t.Fatal("expected error when the audit record cannot be created")
	}
	if len(publisher.messages()) != 0 {
		t.Fatal("nothing should be published without a persisted record")
	}
}
