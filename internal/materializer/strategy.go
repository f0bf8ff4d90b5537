// Package materializer turns owner attributes into durable PENDING event
// rows and keeps them consistent when owners change.
package materializer

import (
	"fmt"
	"time"

	"github.com/rezkam/greet/internal/domain"
	"github.com/rezkam/greet/internal/occurrence"
)

// Strategy supplies the event-type specific rules. New event types register
// a Strategy; dispatch is a registry lookup keyed by the type tag.
type Strategy interface {
	Type() domain.EventType

	// NextOccurrence returns the next UTC firing instant after ref.
	NextOccurrence(owner *domain.Owner, ref time.Time) (time.Time, error)

	// ComposePayload captures the delivery message and destination at
	// materialization time.
	ComposePayload(owner *domain.Owner) domain.DeliveryPayload

	// IdempotencyKey derives the deterministic delivery key.
	IdempotencyKey(ownerID string, target time.Time) string
}

// Registry maps event types to their strategies.
type Registry struct {
	strategies map[domain.EventType]Strategy
}

// NewRegistry builds a registry from the given strategies.
func NewRegistry(strategies ...Strategy) *Registry {
	r := &Registry{strategies: make(map[domain.EventType]Strategy, len(strategies))}
	for _, s := range strategies {
		r.strategies[s.Type()] = s
	}
	return r
}

// Lookup returns the strategy for the event type.
func (r *Registry) Lookup(t domain.EventType) (Strategy, error) {
	s, ok := r.strategies[t]
	if !ok {
		return nil, fmt.Errorf("no strategy registered for event type %s", t)
	}
	return s, nil
}

// BirthdayStrategy materializes BIRTHDAY events: the owner's next birthday
// at the configured local delivery time in the owner's timezone.
type BirthdayStrategy struct {
	deliveryTime occurrence.TimeOfDay
	webhookURL   string
}

// NewBirthdayStrategy builds the strategy. deliveryTime is normally
// occurrence.DefaultDeliveryTime; tests and staging may override it.
func NewBirthdayStrategy(deliveryTime occurrence.TimeOfDay, webhookURL string) *BirthdayStrategy {
	return &BirthdayStrategy{deliveryTime: deliveryTime, webhookURL: webhookURL}
}

func (s *BirthdayStrategy) Type() domain.EventType {
	return domain.EventTypeBirthday
}

func (s *BirthdayStrategy) NextOccurrence(owner *domain.Owner, ref time.Time) (time.Time, error) {
	return occurrence.Next(owner.DateOfBirth, owner.Timezone, s.deliveryTime, ref)
}

func (s *BirthdayStrategy) ComposePayload(owner *domain.Owner) domain.DeliveryPayload {
	return domain.DeliveryPayload{
		Message:    fmt.Sprintf("Hey, %s it's your birthday", owner.FullName()),
		WebhookURL: s.webhookURL,
	}
}

func (s *BirthdayStrategy) IdempotencyKey(ownerID string, target time.Time) string {
	return domain.IdempotencyKey(ownerID, target)
}
