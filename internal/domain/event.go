package domain

import (
	"fmt"
	"time"
)

// EventType tags the kind of scheduled event. The set is extensible; each
// value has a registered materialization strategy.
type EventType string

const (
	EventTypeBirthday EventType = "BIRTHDAY"
)

// NewEventType validates and creates an EventType.
func NewEventType(s string) (EventType, error) {
	switch EventType(s) {
	case EventTypeBirthday:
		return EventType(s), nil
	default:
		return "", fmt.Errorf("unknown event type: %s", s)
	}
}

// EventStatus is the lifecycle state of an event.
type EventStatus string

const (
	StatusPending    EventStatus = "PENDING"
	StatusProcessing EventStatus = "PROCESSING"
	StatusCompleted  EventStatus = "COMPLETED"
	StatusFailed     EventStatus = "FAILED"
)

// Terminal reports whether the status is absorbing.
func (s EventStatus) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// CanTransitionTo reports whether the edge s -> next is allowed.
// Allowed edges exactly: PENDING->PROCESSING, PROCESSING->COMPLETED,
// PROCESSING->FAILED.
func (s EventStatus) CanTransitionTo(next EventStatus) bool {
	switch s {
	case StatusPending:
		return next == StatusProcessing
	case StatusProcessing:
		return next == StatusCompleted || next == StatusFailed
	default:
		return false
	}
}

// DeliveryPayload is the message and destination captured at materialization
// time, so a delivery never depends on owner state at firing time.
type DeliveryPayload struct {
	Message    string `json:"message"`
	WebhookURL string `json:"webhookUrl"`
}

// Event is a durable record of a single scheduled delivery attempt-chain.
type Event struct {
	ID                 string
	OwnerID            string
	Type               EventType
	TargetTimestampUTC time.Time
	// TargetLocal is the wall time in TargetTimezone, kept for audit.
	TargetLocal    time.Time
	TargetTimezone string
	Status         EventStatus
	// Version starts at 0 and is incremented by the store on every update.
	Version        int64
	IdempotencyKey string
	Payload        DeliveryPayload
	ExecutedAt     *time.Time
	FailureReason  *string
	RetryCount     int
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// TransitionTo moves the event to the next status, rejecting any edge
// outside the state machine. Terminal transitions stamp ExecutedAt via the
// caller since the execution instant comes from the injected clock.
func (e *Event) TransitionTo(next EventStatus) error {
	if !e.Status.CanTransitionTo(next) {
		return fmt.Errorf("%w: %s -> %s (event %s)", ErrIllegalTransition, e.Status, next, e.ID)
	}
	e.Status = next
	return nil
}

// Fail moves the event to FAILED recording the reason.
func (e *Event) Fail(reason string, at time.Time) error {
	if err := e.TransitionTo(StatusFailed); err != nil {
		return err
	}
	e.FailureReason = &reason
	e.ExecutedAt = &at
	return nil
}

// Complete moves the event to COMPLETED recording the execution instant.
func (e *Event) Complete(at time.Time) error {
	if err := e.TransitionTo(StatusCompleted); err != nil {
		return err
	}
	e.ExecutedAt = &at
	return nil
}
