// Package notify bridges the sync engine's status change events onto the
// background job queue.
package notify

import (
	"context"
	"log/slog"

	"github.com/hibiken/asynq"

	"github.com/crewpact/crewpact/internal/agreements"
	"github.com/crewpact/crewpact/jobs"
)

// Enqueuer is the slice of the jobs client the dispatcher needs.
type Enqueuer interface {
	EnqueueStatusChanged(ctx context.Context, payload jobs.StatusChangedPayload) (*asynq.TaskInfo, error)
}

// Dispatcher implements agreements.Notifier by enqueueing one task per
// event. Enqueue failures are logged and swallowed so delivery problems
// never surface to the caller that performed the status write.
type Dispatcher struct {
	client Enqueuer
	logger *slog.Logger
}

// NewDispatcher constructs a Dispatcher.
func NewDispatcher(client Enqueuer, logger *slog.Logger) *Dispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Dispatcher{client: client, logger: logger}
}

// StatusChanged queues the event for background delivery.
func (d *Dispatcher) StatusChanged(ctx context.Context, evt agreements.StatusChangedEvent) error {
	payload := jobs.StatusChangedPayload{
		EventID:     evt.EventID,
		EntityKind:  evt.EntityKind,
		EntityID:    evt.EntityID,
		AgreementID: evt.AgreementID,
		Status:      evt.Status,
		ActorID:     evt.ActorID,
		OccurredAt:  evt.OccurredAt,
	}
	if _, err := d.client.EnqueueStatusChanged(ctx, payload); err != nil {
		d.logger.Warn("enqueue status changed",
			slog.String("event_id", evt.EventID),
			slog.Any("error", err))
	}
	return nil
}
