package jobs

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskTypeStatusChanged carries a status change event to external
	// notifiers.
	TaskTypeStatusChanged = "status:changed"
	// TaskTypeSendEmail is the task type for transactional emails.
	TaskTypeSendEmail = "mail:send"
)

// StatusChangedPayload mirrors the sync engine's status change event.
type StatusChangedPayload struct {
	EventID     string    `json:"event_id"`
	EntityKind  string    `json:"entity_kind"`
	EntityID    int64     `json:"entity_id"`
	AgreementID int64     `json:"agreement_id"`
	Status      string    `json:"status"`
	ActorID     int64     `json:"actor_id"`
	OccurredAt  time.Time `json:"occurred_at"`
}

// NewStatusChangedTask constructs an Asynq task for one status change.
func NewStatusChangedTask(payload StatusChangedPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskTypeStatusChanged, data), nil
}

// HandleStatusChangedTask delivers a status change to external subscribers.
// Delivery is currently a structured log line; email fan-out reuses the mail
// task.
func HandleStatusChangedTask(ctx context.Context, t *asynq.Task) error {
	var payload StatusChangedPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return asynq.SkipRetry
	}
	slog.Default().Info("status changed",
		slog.String("event_id", payload.EventID),
		slog.String("entity_kind", payload.EntityKind),
		slog.Int64("entity_id", payload.EntityID),
		slog.Int64("agreement_id", payload.AgreementID),
		slog.String("status", payload.Status))
	return nil
}

// SendEmailPayload describes the information required to send an email.
type SendEmailPayload struct {
	To      string `json:"to"`
	Subject string `json:"subject"`
	Body    string `json:"body"`
}

// NewSendEmailTask constructs an Asynq task.
func NewSendEmailTask(payload SendEmailPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskTypeSendEmail, data), nil
}

// HandleSendEmailTask processes TaskTypeSendEmail tasks.
func HandleSendEmailTask(ctx context.Context, t *asynq.Task) error {
	var payload SendEmailPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return asynq.SkipRetry
	}
	// SMTP relay wiring happens at deployment; log in its absence.
	slog.Default().Info("send email",
		slog.String("to", payload.To),
		slog.String("subject", payload.Subject))
	return nil
}
