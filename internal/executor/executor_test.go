package executor

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rezkam/greet/internal/domain"
	"github.com/rezkam/greet/internal/queue"
	"github.com/rezkam/greet/internal/webhook"
)

type fakeReader struct {
	findFunc func(ctx context.Context, id string) (*domain.Event, error)
}

func (f *fakeReader) FindEventByID(ctx context.Context, id string) (*domain.Event, error) {
	return f.findFunc(ctx, id)
}

type fakeFinalizer struct {
	completeFunc func(ctx context.Context, eventID string) error
	failFunc     func(ctx context.Context, eventID, reason string) error

	completed []string
	failed    []string
}

func (f *fakeFinalizer) Complete(ctx context.Context, eventID string) error {
	f.completed = append(f.completed, eventID)
	if f.completeFunc != nil {
		return f.completeFunc(ctx, eventID)
	}
	return nil
}

func (f *fakeFinalizer) Fail(ctx context.Context, eventID, reason string) error {
	f.failed = append(f.failed, eventID+": "+reason)
	if f.failFunc != nil {
		return f.failFunc(ctx, eventID, reason)
	}
	return nil
}

type fakeDeliverer struct {
	deliverFunc func(attempt int) error

	keys     []string
	attempts int
}

func (f *fakeDeliverer) Deliver(_ context.Context, key string, _ domain.DeliveryPayload) error {
	f.attempts++
	f.keys = append(f.keys, key)
	if f.deliverFunc != nil {
		return f.deliverFunc(f.attempts)
	}
	return nil
}

type fakeQueue struct {
	queue.Queue
	acked []string
}

func (f *fakeQueue) Ack(_ context.Context, msg queue.Message) error {
	f.acked = append(f.acked, msg.ReceiptHandle)
	return nil
}

func processingEvent() *domain.Event {
	return &domain.Event{
		ID:                 "ev-1",
		OwnerID:            "owner-1",
		Type:               domain.EventTypeBirthday,
		TargetTimestampUTC: time.Now().UTC().Add(-time.Second),
		Status:             domain.StatusProcessing,
		IdempotencyKey:     "event-0000000000000001",
		Payload: domain.DeliveryPayload{
			Message:    "Hey, John Doe it's your birthday",
			WebhookURL: "https://hooks.example.com/birthday",
		},
	}
}

func testMessage(e *domain.Event) queue.Message {
	return queue.Message{
		Descriptor: queue.Descriptor{
			EventID:        e.ID,
			EventType:      string(e.Type),
			IdempotencyKey: e.IdempotencyKey,
		},
		ReceiptHandle: "rh-1",
		ReceiveCount:  1,
	}
}

func newTestExecutor(reader EventReader, fin Finalizer, del Deliverer, q queue.Queue) *Executor {
	cfg := Config{
		Concurrency:        1,
		RetryBackoffs:      []time.Duration{0, 0, 0},
		LateExecutionGrace: 5 * time.Minute,
	}
	return New(reader, fin, del, q, cfg, clockwork.NewRealClock())
}

func TestProcess_SuccessCompletesAndAcks(t *testing.T) {
	event := processingEvent()
	reader := &fakeReader{findFunc: func(context.Context, string) (*domain.Event, error) { return event, nil }}
	fin := &fakeFinalizer{}
	del := &fakeDeliverer{}
	q := &fakeQueue{}

	newTestExecutor(reader, fin, del, q).process(context.Background(), testMessage(event))

	assert.Equal(t, []string{"ev-1"}, fin.completed)
	assert.Empty(t, fin.failed)
	assert.Equal(t, 1, del.attempts)
	assert.Equal(t, []string{"rh-1"}, q.acked)
}

func TestProcess_AlreadyFinalizedAcksWithoutDelivery(t *testing.T) {
	event := processingEvent()
	event.Status = domain.StatusCompleted
	reader := &fakeReader{findFunc: func(context.Context, string) (*domain.Event, error) { return event, nil }}
	fin := &fakeFinalizer{}
	del := &fakeDeliverer{}
	q := &fakeQueue{}

	newTestExecutor(reader, fin, del, q).process(context.Background(), testMessage(event))

	assert.Zero(t, del.attempts)
	assert.Empty(t, fin.completed)
	assert.Equal(t, []string{"rh-1"}, q.acked)
}

func TestProcess_MissingEventAcks(t *testing.T) {
	reader := &fakeReader{findFunc: func(context.Context, string) (*domain.Event, error) {
		return nil, domain.ErrEventNotFound
	}}
	del := &fakeDeliverer{}
	q := &fakeQueue{}

	newTestExecutor(reader, &fakeFinalizer{}, del, q).process(context.Background(), testMessage(processingEvent()))

	assert.Zero(t, del.attempts)
	assert.Equal(t, []string{"rh-1"}, q.acked)
}

func TestProcess_PermanentFailureFailsAndAcks(t *testing.T) {
	event := processingEvent()
	reader := &fakeReader{findFunc: func(context.Context, string) (*domain.Event, error) { return event, nil }}
	fin := &fakeFinalizer{}
	del := &fakeDeliverer{deliverFunc: func(int) error {
		return webhook.PermanentError{StatusCode: 410, Body: "gone"}
	}}
	q := &fakeQueue{}

	newTestExecutor(reader, fin, del, q).process(context.Background(), testMessage(event))

	assert.Equal(t, 1, del.attempts, "permanent failures are not retried")
	assert.Empty(t, fin.completed)
	require.Len(t, fin.failed, 1)
	assert.Contains(t, fin.failed[0], "gone")
	assert.Equal(t, []string{"rh-1"}, q.acked)
}

func TestProcess_TransientExhaustionLeavesUnacked(t *testing.T) {
	event := processingEvent()
	reader := &fakeReader{findFunc: func(context.Context, string) (*domain.Event, error) { return event, nil }}
	fin := &fakeFinalizer{}
	del := &fakeDeliverer{deliverFunc: func(int) error { return errors.New("connection reset") }}
	q := &fakeQueue{}

	newTestExecutor(reader, fin, del, q).process(context.Background(), testMessage(event))

	assert.Equal(t, 4, del.attempts, "initial attempt plus one per backoff")
	assert.Empty(t, fin.completed)
	assert.Empty(t, fin.failed)
	assert.Empty(t, q.acked, "unacked so the queue redelivers")
}

func TestProcess_TransientThenSuccess(t *testing.T) {
	event := processingEvent()
	reader := &fakeReader{findFunc: func(context.Context, string) (*domain.Event, error) { return event, nil }}
	fin := &fakeFinalizer{}
	del := &fakeDeliverer{deliverFunc: func(attempt int) error {
		if attempt < 3 {
			return errors.New("timeout")
		}
		return nil
	}}
	q := &fakeQueue{}

	newTestExecutor(reader, fin, del, q).process(context.Background(), testMessage(event))

	assert.Equal(t, 3, del.attempts)
	assert.Equal(t, []string{"ev-1"}, fin.completed)
	assert.Equal(t, []string{"rh-1"}, q.acked)
	for _, key := range del.keys {
		assert.Equal(t, event.IdempotencyKey, key, "key must not change across attempts")
	}
}

func TestProcess_ConflictOnCompleteStillAcks(t *testing.T) {
	event := processingEvent()
	reader := &fakeReader{findFunc: func(context.Context, string) (*domain.Event, error) { return event, nil }}
	fin := &fakeFinalizer{completeFunc: func(context.Context, string) error {
		return domain.ErrOptimisticLockConflict
	}}
	q := &fakeQueue{}

	newTestExecutor(reader, fin, &fakeDeliverer{}, q).process(context.Background(), testMessage(event))

	assert.Equal(t, []string{"rh-1"}, q.acked, "a concurrent finalize means the work is done")
}

func TestProcess_FinalizeErrorLeavesUnacked(t *testing.T) {
	event := processingEvent()
	reader := &fakeReader{findFunc: func(context.Context, string) (*domain.Event, error) { return event, nil }}
	fin := &fakeFinalizer{completeFunc: func(context.Context, string) error {
		return errors.New("database unavailable")
	}}
	q := &fakeQueue{}

	newTestExecutor(reader, fin, &fakeDeliverer{}, q).process(context.Background(), testMessage(event))

	assert.Empty(t, q.acked)
}
