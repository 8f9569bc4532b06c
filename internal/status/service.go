package status

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/crewpact/crewpact/internal/activity"
	"github.com/crewpact/crewpact/internal/shared"
)

// ActivityWriter persists audit trail entries. Failures are tolerated by the
// service; the authoritative status write never depends on them.
type ActivityWriter interface {
	Record(ctx context.Context, entry activity.Entry) error
}

// Service is the generic read/write facade over the status record store.
// It is the only write path into the audit trail.
type Service struct {
	repo     Repository
	activity ActivityWriter
	logger   *slog.Logger
}

// NewService constructs the entity status service.
func NewService(repo Repository, activityWriter ActivityWriter, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, activity: activityWriter, logger: logger}
}

// Current returns the most recent status record matching identity and scope.
// Returns shared.ErrNotFound when no record exists; callers must treat that
// as a distinct state, not a failure.
func (s *Service) Current(ctx context.Context, kind Kind, entityID int64, scope Scope) (Record, error) {
	return s.repo.Current(ctx, kind, entityID, scope)
}

// History returns status records newest first, bounded by limit. The query is
// restartable via offset.
func (s *Service) History(ctx context.Context, kind Kind, entityID int64, scope Scope, limit, offset int) ([]Record, error) {
	if limit <= 0 {
		limit = 20
	}
	if limit > 100 {
		limit = 100
	}
	if offset < 0 {
		offset = 0
	}
	return s.repo.History(ctx, kind, entityID, scope, limit, offset)
}

// VocabularyFor returns the allowed statuses and display metadata for kind.
func (s *Service) VocabularyFor(kind Kind) Vocabulary {
	return VocabularyFor(kind)
}

// NewRecord validates in against the kind's vocabulary and builds the record
// to append. No write happens here; callers that own a transaction insert the
// returned record through a transaction-scoped Repository so the append
// commits atomically with their other writes.
func NewRecord(in TransitionInput) (Record, error) {
	vocab := VocabularyFor(in.Kind)
	if !vocab.Allows(in.Status) {
		return Record{}, fmt.Errorf("%w: %q is not valid for kind %q", shared.ErrInvalidTransition, in.Status, in.Kind)
	}
	return Record{
		Kind:           in.Kind,
		EntityID:       in.EntityID,
		Status:         in.Status,
		CustomStatus:   in.CustomStatus,
		ParentID:       in.Scope.ParentID,
		CounterpartyID: in.Scope.CounterpartyID,
		OccursOn:       in.Scope.OccursOn,
		EffectiveAt:    in.EffectiveAt,
		Metadata:       in.Metadata,
	}, nil
}

// RecordTransition appends a new status record unconditionally. Callers decide
// beforehand whether a transition is a no-op; no dedup happens here.
//
// The target status is validated against the kind's vocabulary before any
// write. The activity record write is best effort: its failure is logged and
// reported on the result, never as an error.
func (s *Service) RecordTransition(ctx context.Context, in TransitionInput) (TransitionResult, error) {
	rec, err := NewRecord(in)
	if err != nil {
		return TransitionResult{}, err
	}
	inserted, err := s.repo.Insert(ctx, rec)
	if err != nil {
		return TransitionResult{}, err
	}

	result := TransitionResult{Record: inserted}
	result.ActivityErr = s.RecordActivity(ctx, in)
	return result, nil
}

// RecordActivity writes the audit trail entry for a transition whose status
// record has already been persisted. Used after commit by callers that append
// records inside their own transaction; a statement failure there would abort
// the whole transaction, which would break the best-effort contract. Failures
// are logged and returned, never fatal.
func (s *Service) RecordActivity(ctx context.Context, in TransitionInput) error {
	if s.activity == nil {
		return nil
	}
	entry := activity.Entry{
		ActorID:     in.ActorID,
		Action:      fmt.Sprintf("%s.status.%s", in.Kind, in.Status),
		EntityKind:  string(in.Kind),
		EntityID:    in.EntityID,
		Description: in.Description,
		Meta:        in.Metadata,
		At:          time.Now(),
	}
	if entry.Description == "" {
		entry.Description = fmt.Sprintf("%s %d transitioned to %s", in.Kind, in.EntityID, in.Status)
	}
	if err := s.activity.Record(ctx, entry); err != nil {
		s.logger.Warn("activity record write failed",
			slog.String("kind", string(in.Kind)),
			slog.Int64("entity_id", in.EntityID),
			slog.String("status", in.Status),
			slog.Any("error", err))
		return err
	}
	return nil
}
