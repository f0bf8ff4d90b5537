// Package queue abstracts the at-least-once work queue between the
// scheduler and the executor.
package queue

import (
	"context"
	"time"

	"github.com/rezkam/greet/internal/domain"
)

// Metadata lets the executor build the webhook call without a full re-read;
// the executor still re-reads the event before any terminal transition.
type Metadata struct {
	OwnerID            string                 `json:"ownerId"`
	TargetTimestampUTC time.Time              `json:"targetTimestampUTC"`
	DeliveryPayload    domain.DeliveryPayload `json:"deliveryPayload"`
}

// Descriptor is the small message published per claimed event.
type Descriptor struct {
	EventID        string   `json:"eventId"`
	EventType      string   `json:"eventType"`
	IdempotencyKey string   `json:"idempotencyKey"`
	Metadata       Metadata `json:"metadata"`
}

// Message is a received descriptor plus the backend's delivery bookkeeping.
type Message struct {
	Descriptor Descriptor
	// ReceiptHandle acknowledges this specific delivery.
	ReceiptHandle string
	// ReceiveCount is how many times this message has been delivered,
	// including this one.
	ReceiveCount int
}

// Queue is the narrow contract both backends satisfy. Delivery is
// at-least-once: a message not acknowledged within the visibility timeout is
// redelivered, and after the max receive count it moves to the dead-letter
// queue.
type Queue interface {
	// Publish enqueues descriptors, batching where the backend supports it.
	Publish(ctx context.Context, descriptors []Descriptor) error

	// Receive returns up to max messages, waiting up to wait for the first.
	Receive(ctx context.Context, max int, wait time.Duration) ([]Message, error)

	// Ack deletes a delivered message so it is never redelivered.
	Ack(ctx context.Context, msg Message) error
}
