package agreements

import (
	"context"
	"time"
)

// StatusChangedEvent is handed to the notifier after a successful status
// write. Delivery is outside the engine; failures never affect the write.
type StatusChangedEvent struct {
	EventID     string    `json:"event_id"`
	EntityKind  string    `json:"entity_kind"`
	EntityID    int64     `json:"entity_id"`
	AgreementID int64     `json:"agreement_id"`
	Status      string    `json:"status"`
	ActorID     int64     `json:"actor_id"`
	OccurredAt  time.Time `json:"occurred_at"`
}

// Notifier receives status change events for external delivery (email,
// real-time push). Implementations must be safe to call concurrently.
type Notifier interface {
	StatusChanged(ctx context.Context, evt StatusChangedEvent) error
}

// NopNotifier discards events.
type NopNotifier struct{}

func (NopNotifier) StatusChanged(context.Context, StatusChangedEvent) error { return nil }

// SummaryInvalidator drops any cached summary for an agreement after the sync
// engine persists new derived state.
type SummaryInvalidator interface {
	Invalidate(ctx context.Context, agreementID int64)
}
