package service

import (
	"context"
	"sync"
	"time"

	"github.com/kursadbilgin/lead-notify/internal/domain"
	"github.com/kursadbilgin/lead-notify/internal/provider"
	"github.com/kursadbilgin/lead-notify/internal/queue"
	"github.com/kursadbilgin/lead-notify/internal/repository"
)

type scheduledRetry struct {
	id            string
	attemptNumber int
	nextRetryAt   time.Time
}

// fakeLogRepo is an in-memory LogRepository that enforces the same one-way
// PENDING -> terminal transition semantics as the real store.
type fakeLogRepo struct {
	mu sync.Mutex

	records map[string]*domain.NotificationLog

	createErr error

	sentResults    map[string]repository.SentResult
	failedResults  map[string]repository.FailedResult
	skippedReasons map[string]string
	scheduled      []scheduledRetry
	cleared        []string

	dueRecords  []domain.NotificationLog
	statsResult *repository.Stats
}

func newFakeLogRepo() *fakeLogRepo {
	return &fakeLogRepo{
		records:        make(map[string]*domain.NotificationLog),
		sentResults:    make(map[string]repository.SentResult),
		failedResults:  make(map[string]repository.FailedResult),
		skippedReasons: make(map[string]string),
	}
}

func (f *fakeLogRepo) put(record *domain.NotificationLog) {
	f.mu.Lock()
	defer f.mu.Unlock()
	clone := *record
	f.records[record.ID] = &clone
}

func (f *fakeLogRepo) get(id string) *domain.NotificationLog {
	f.mu.Lock()
	defer f.mu.Unlock()
	record, ok := f.records[id]
	if !ok {
		return nil
	}
	clone := *record
	return &clone
}

func (f *fakeLogRepo) CreateAttempt(_ context.Context, l *domain.NotificationLog) error {
	if f.createErr != nil {
		return f.createErr
	}
	f.put(l)
	return nil
}

func (f *fakeLogRepo) GetByID(_ context.Context, id string) (*domain.NotificationLog, error) {
	record := f.get(id)
	if record == nil {
		return nil, domain.ErrNotFound
	}
	return record, nil
}

func (f *fakeLogRepo) List(_ context.Context, _ repository.ListParams) ([]domain.NotificationLog, int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	logs := make([]domain.NotificationLog, 0, len(f.records))
	for _, record := range f.records {
		logs = append(logs, *record)
	}
	return logs, int64(len(logs)), nil
}

func (f *fakeLogRepo) completePending(id string, status domain.Status) error {
	record, ok := f.records[id]
	if !ok {
		return domain.ErrNotFound
	}
	if record.Status != domain.StatusPending {
		return domain.ErrInvalidTransition
	}
	record.Status = status
	now := time.Now().UTC()
	record.CompletedAt = &now
	record.NextRetryAt = nil
	return nil
}

func (f *fakeLogRepo) MarkSent(_ context.Context, id string, result repository.SentResult) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.completePending(id, domain.StatusSent); err != nil {
		return err
	}
	record := f.records[id]
	record.ProviderNotificationID = &result.NotificationID
	record.RecipientsTotal = result.RecipientsTotal
	record.RecipientsSuccessful = result.RecipientsSuccessful
	record.RecipientsFailed = result.RecipientsFailed
	f.sentResults[id] = result
	return nil
}

func (f *fakeLogRepo) MarkFailed(_ context.Context, id string, result repository.FailedResult) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.completePending(id, domain.StatusFailed); err != nil {
		return err
	}
	record := f.records[id]
	record.ErrorCode = &result.ErrorCode
	record.ErrorMessage = &result.ErrorMessage
	f.failedResults[id] = result
	return nil
}

func (f *fakeLogRepo) MarkSkipped(_ context.Context, id string, reason string, _ map[string]any) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.completePending(id, domain.StatusSkipped); err != nil {
		return err
	}
	f.skippedReasons[id] = reason
	return nil
}

func (f *fakeLogRepo) ScheduleRetry(_ context.Context, id string, attemptNumber int, nextRetryAt time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	record, ok := f.records[id]
	if !ok {
		return domain.ErrNotFound
	}
	if record.Status != domain.StatusPending {
		return domain.ErrInvalidTransition
	}
	record.AttemptNumber = attemptNumber
	record.NextRetryAt = &nextRetryAt
	f.scheduled = append(f.scheduled, scheduledRetry{
		id:            id,
		attemptNumber: attemptNumber,
		nextRetryAt:   nextRetryAt,
	})
	return nil
}

func (f *fakeLogRepo) ClearNextRetryAt(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	record, ok := f.records[id]
	if !ok {
		return domain.ErrNotFound
	}
	record.NextRetryAt = nil
	f.cleared = append(f.cleared, id)
	return nil
}

func (f *fakeLogRepo) GetDueForRetry(_ context.Context, limit int) ([]domain.NotificationLog, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	due := f.dueRecords
	f.dueRecords = nil
	if len(due) > limit {
		due = due[:limit]
	}
	return due, nil
}

func (f *fakeLogRepo) Stats(_ context.Context, _ time.Time, _ time.Time) (*repository.Stats, error) {
	if f.statsResult != nil {
		return f.statsResult, nil
	}
	return &repository.Stats{}, nil
}

type publishedMessage struct {
	queueName string
	msg       queue.DispatchMessage
}

type fakePublisher struct {
	mu         sync.Mutex
	published  []publishedMessage
	publishErr error
}

func (f *fakePublisher) Publish(_ context.Context, queueName string, msg queue.DispatchMessage) error {
	if f.publishErr != nil {
		return f.publishErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.published = append(f.published, publishedMessage{queueName: queueName, msg: msg})
	return nil
}

func (f *fakePublisher) Close() error { return nil }

func (f *fakePublisher) messages() []publishedMessage {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]publishedMessage, len(f.published))
	copy(out, f.published)
	return out
}

// fakeConsumer delivers its preset messages to the handler once, then blocks
// until the context is cancelled.
type fakeConsumer struct {
	mu       sync.Mutex
	messages []queue.DispatchMessage
	errs     []error
}

func (f *fakeConsumer) Consume(ctx context.Context, _ string, handler queue.MessageHandler) error {
	f.mu.Lock()
	pending := f.messages
	f.messages = nil
	f.mu.Unlock()

	for _, msg := range pending {
		err := handler(ctx, msg)
		f.mu.Lock()
		f.errs = append(f.errs, err)
		f.mu.Unlock()
	}

	<-ctx.Done()
	return nil
}

func (f *fakeConsumer) Close() error { return nil }

func (f *fakeConsumer) handlerErrors() []error {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]error, len(f.errs))
	copy(out, f.errs)
	return out
}

type fakeProviderClient struct {
	mu sync.Mutex

	configured bool

	sendOutcome  provider.DeliveryOutcome
	sendOutcomes []provider.DeliveryOutcome
	sendCalls    int
	requests     []provider.DeliveryRequest

	testOutcome provider.DeliveryOutcome
	testCalls   int
}

func (f *fakeProviderClient) Send(_ context.Context, req provider.DeliveryRequest) provider.DeliveryOutcome {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sendCalls++
	f.requests = append(f.requests, req)
	if len(f.sendOutcomes) > 0 {
		outcome := f.sendOutcomes[0]
		f.sendOutcomes = f.sendOutcomes[1:]
		return outcome
	}
	return f.sendOutcome
}

func (f *fakeProviderClient) TestConnection(_ context.Context) provider.DeliveryOutcome {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.testCalls++
	return f.testOutcome
}

func (f *fakeProviderClient) IsConfigured() bool {
	return f.configured
}

func (f *fakeProviderClient) sendCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.sendCalls
}

type fakeRateLimiter struct {
	mu        sync.Mutex
	waitCalls int
	waitErr   error
	scopes    []string
}

func (f *fakeRateLimiter) Allow(_ context.Context, _ string) (bool, error) {
	return true, nil
}

func (f *fakeRateLimiter) Wait(_ context.Context, scope string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.waitCalls++
	f.scopes = append(f.scopes, scope)
	return f.waitErr
}
