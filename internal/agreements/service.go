package agreements

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/crewpact/crewpact/internal/shared"
	"github.com/crewpact/crewpact/internal/status"
)

var (
	// ErrNotIssuable indicates the agreement is not in a state that allows
	// issuing offers.
	ErrNotIssuable = errors.New("agreement is not in draft")
)

// StatusRecorder is the slice of the entity status service the engine needs.
// The engine appends status records through its own transaction; only the
// post-commit best-effort audit entry goes through the recorder.
type StatusRecorder interface {
	RecordActivity(ctx context.Context, in status.TransitionInput) error
}

// SyncMetrics observes engine activity. Implemented by observability.
type SyncMetrics interface {
	TransitionApplied(kind, newStatus string)
	DerivationChanged(kind string)
	CascadeFanout(levels int)
}

// Service is the hierarchical sync engine. It owns the derived status and
// count fields on agreements and sub-agreements; no other component writes
// them.
type Service struct {
	repo     Repository
	statuses StatusRecorder
	notifier Notifier
	cache    SummaryInvalidator
	metrics  SyncMetrics
	logger   *slog.Logger
}

// NewService constructs the sync engine. Notifier, cache and metrics are
// optional.
func NewService(repo Repository, statuses StatusRecorder, notifier Notifier, cache SummaryInvalidator, metrics SyncMetrics, logger *slog.Logger) *Service {
	if notifier == nil {
		notifier = NopNotifier{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, statuses: statuses, notifier: notifier, cache: cache, metrics: metrics, logger: logger}
}

// SyncResult reports the state of all three levels after a leaf transition.
// ActivityErr carries a failed best-effort audit write; the status records
// themselves are already committed when it is set.
type SyncResult struct {
	LineItem               LineItem
	SubAgreement           SubAgreement
	Agreement              Agreement
	NoOp                   bool
	SubStatusChanged       bool
	AgreementStatusChanged bool
	ActivityErr            error
}

// appendStatus validates in, writes its status record through tx and remembers
// the input so the activity entry can be written after commit.
func appendStatus(ctx context.Context, tx TxRepository, trail *[]status.TransitionInput, in status.TransitionInput) error {
	rec, err := status.NewRecord(in)
	if err != nil {
		return err
	}
	if _, err := tx.AppendStatusRecord(ctx, rec); err != nil {
		return err
	}
	*trail = append(*trail, in)
	return nil
}

// recordActivity writes the audit entries for transitions committed in a
// transaction. Best effort; the first failure is returned for reporting.
func (s *Service) recordActivity(ctx context.Context, trail []status.TransitionInput) error {
	var first error
	for _, in := range trail {
		if err := s.statuses.RecordActivity(ctx, in); err != nil && first == nil {
			first = err
		}
	}
	return first
}

// OfferItem is one dated unit of work offered to a counter-party.
type OfferItem struct {
	OccursOn time.Time
	Value    float64
}

// Offer is the set of dated items issued to one counter-party.
type Offer struct {
	CounterpartyID int64
	Items          []OfferItem
}

// CreateAgreement creates a draft agreement.
func (s *Service) CreateAgreement(ctx context.Context, title string, issuerID int64) (Agreement, error) {
	var (
		id    int64
		trail []status.TransitionInput
	)
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		id, err = tx.CreateAgreement(ctx, Agreement{Title: title, IssuerID: issuerID, Status: AgreementStatusDraft})
		if err != nil {
			return err
		}
		return appendStatus(ctx, tx, &trail, status.TransitionInput{
			Kind:        status.KindAgreement,
			EntityID:    id,
			Status:      string(AgreementStatusDraft),
			ActorID:     issuerID,
			Description: fmt.Sprintf("agreement %q created", title),
		})
	})
	if err != nil {
		return Agreement{}, err
	}
	_ = s.recordActivity(ctx, trail)
	return s.repo.GetAgreement(ctx, id)
}

// Issue creates the sub-agreements and line items for each counter-party and
// moves the agreement from draft to sent. One line item is created per
// offered date per counter-party, all pending.
func (s *Service) Issue(ctx context.Context, agreementID, actorID int64, offers []Offer) (Agreement, error) {
	if len(offers) == 0 {
		return Agreement{}, errors.New("agreements: issue requires at least one counter-party offer")
	}

	var trail []status.TransitionInput

	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		agr, err := tx.LockAgreement(ctx, agreementID)
		if err != nil {
			return err
		}
		if agr.Status != AgreementStatusDraft {
			return fmt.Errorf("%w: status is %s", ErrNotIssuable, agr.Status)
		}

		// Initial status records at every level ride in this transaction so
		// the audit trail covers the whole hierarchy from issue time, or not
		// at all.
		if err := appendStatus(ctx, tx, &trail, status.TransitionInput{
			Kind:        status.KindAgreement,
			EntityID:    agreementID,
			Status:      string(AgreementStatusSent),
			ActorID:     actorID,
			Description: fmt.Sprintf("agreement %d issued to %d counter-parties", agreementID, len(offers)),
		}); err != nil {
			return err
		}

		for _, offer := range offers {
			total := len(offer.Items)
			sub := SubAgreement{
				AgreementID:    agreementID,
				CounterpartyID: offer.CounterpartyID,
				Status:         SubStatusPending,
				PendingCount:   total,
				TotalCount:     total,
			}
			subID, err := tx.CreateSubAgreement(ctx, sub)
			if err != nil {
				return err
			}
			sub.ID = subID

			if err := appendStatus(ctx, tx, &trail, status.TransitionInput{
				Kind:     status.KindSubAgreement,
				EntityID: subID,
				Status:   string(SubStatusPending),
				ActorID:  actorID,
				Scope:    status.Scope{ParentID: &agreementID, CounterpartyID: &sub.CounterpartyID},
			}); err != nil {
				return err
			}

			for _, offerItem := range offer.Items {
				item := LineItem{
					SubAgreementID: subID,
					OccursOn:       offerItem.OccursOn,
					Value:          offerItem.Value,
					Status:         LineStatusPending,
				}
				itemID, err := tx.InsertLineItem(ctx, item)
				if err != nil {
					return err
				}
				item.ID = itemID

				if err := appendStatus(ctx, tx, &trail, status.TransitionInput{
					Kind:     status.KindLineItem,
					EntityID: itemID,
					Status:   string(LineStatusPending),
					ActorID:  actorID,
					Scope: status.Scope{
						ParentID:       &sub.ID,
						CounterpartyID: &sub.CounterpartyID,
						OccursOn:       &item.OccursOn,
					},
				}); err != nil {
					return err
				}
			}
		}

		return tx.UpdateAgreementStatus(ctx, agreementID, AgreementStatusSent)
	})
	if err != nil {
		return Agreement{}, err
	}

	_ = s.recordActivity(ctx, trail)

	s.publish(ctx, StatusChangedEvent{
		EventID:     uuid.NewString(),
		EntityKind:  string(status.KindAgreement),
		EntityID:    agreementID,
		AgreementID: agreementID,
		Status:      string(AgreementStatusSent),
		ActorID:     actorID,
		OccurredAt:  time.Now(),
	})
	s.invalidate(ctx, agreementID)

	return s.repo.GetAgreement(ctx, agreementID)
}

// SetLineItemStatus applies a counter-party response (or administrative
// reassignment) to one line item and reconciles the hierarchy above it.
//
// Calling with the status the item already has is a no-op: no status record
// and no count change. Otherwise the leaf status record, the count
// recomputation, the sub-agreement derivation and the upward propagation all
// commit in a single transaction serialized by row locks; a failure anywhere
// leaves no trace.
func (s *Service) SetLineItemStatus(ctx context.Context, lineItemID int64, newStatus LineItemStatus, actorID int64, responseNotes *string) (SyncResult, error) {
	item, err := s.repo.GetLineItem(ctx, lineItemID)
	if err != nil {
		return SyncResult{}, err
	}
	sub, err := s.repo.GetSubAgreement(ctx, item.SubAgreementID)
	if err != nil {
		return SyncResult{}, err
	}
	agreementID := sub.AgreementID

	if item.Status == newStatus {
		agr, err := s.repo.GetAgreement(ctx, agreementID)
		if err != nil {
			return SyncResult{}, err
		}
		return SyncResult{LineItem: item, SubAgreement: sub, Agreement: agr, NoOp: true}, nil
	}

	var (
		trail            []status.TransitionInput
		noOp             bool
		derivedSub       SubAgreementStatus
		derivedAgreement AgreementStatus
		subChanged       bool
		agreementChanged bool
	)
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		// Agreement row first, then sub-agreement. The cancellation cascade
		// locks top-down, so every writer takes locks in the same order.
		agr, err := tx.LockAgreement(ctx, agreementID)
		if err != nil {
			return err
		}
		locked, err := tx.LockSubAgreement(ctx, sub.ID)
		if err != nil {
			return err
		}

		// Re-check under the lock: the check above reads outside the
		// transaction and two identical concurrent responses could both
		// pass it.
		current, err := tx.GetLineItem(ctx, item.ID)
		if err != nil {
			return err
		}
		if current.Status == newStatus {
			noOp = true
			return nil
		}

		meta := map[string]any{"previous_status": string(current.Status)}
		if responseNotes != nil {
			meta["notes"] = *responseNotes
		}
		if err := appendStatus(ctx, tx, &trail, status.TransitionInput{
			Kind:     status.KindLineItem,
			EntityID: item.ID,
			Status:   string(newStatus),
			ActorID:  actorID,
			Scope: status.Scope{
				ParentID:       &sub.ID,
				CounterpartyID: &sub.CounterpartyID,
				OccursOn:       &item.OccursOn,
			},
			Metadata: meta,
		}); err != nil {
			return err
		}
		if err := tx.UpdateLineItemStatus(ctx, item.ID, newStatus, responseNotes); err != nil {
			return err
		}

		items, err := tx.ListLineItems(ctx, sub.ID)
		if err != nil {
			return err
		}
		counts := CountLineItems(items)
		if !counts.Sums() {
			return fmt.Errorf("%w: sub agreement %d counts %d+%d+%d != %d",
				shared.ErrConsistency, sub.ID, counts.Accepted, counts.Rejected, counts.Pending, counts.Total)
		}
		if err := tx.UpdateSubAgreementCounts(ctx, sub.ID, counts); err != nil {
			return err
		}

		derivedSub = DeriveSubAgreementStatus(counts)
		subChanged = derivedSub != locked.Status

		var completedAt *time.Time
		if counts.Pending == 0 && counts.Total > 0 && locked.CompletedAt == nil {
			now := time.Now()
			completedAt = &now
		}
		if subChanged || completedAt != nil {
			if err := tx.UpdateSubAgreementStatus(ctx, sub.ID, derivedSub, completedAt); err != nil {
				return err
			}
		}

		// Propagation one level up happens only when the sub-agreement
		// status actually changed.
		if !subChanged {
			return nil
		}
		if err := appendStatus(ctx, tx, &trail, status.TransitionInput{
			Kind:     status.KindSubAgreement,
			EntityID: sub.ID,
			Status:   string(derivedSub),
			ActorID:  actorID,
			Scope:    status.Scope{ParentID: &agreementID, CounterpartyID: &sub.CounterpartyID},
			Metadata: map[string]any{"derived": true},
		}); err != nil {
			return err
		}

		subs, err := tx.ListSubAgreements(ctx, agreementID)
		if err != nil {
			return err
		}
		statuses := make([]SubAgreementStatus, 0, len(subs))
		for _, sibling := range subs {
			statuses = append(statuses, sibling.Status)
		}
		derivedAgreement, agreementChanged = DeriveAgreementStatus(agr.Status, statuses)
		if !agreementChanged {
			return nil
		}
		if err := tx.UpdateAgreementStatus(ctx, agreementID, derivedAgreement); err != nil {
			return err
		}
		return appendStatus(ctx, tx, &trail, status.TransitionInput{
			Kind:     status.KindAgreement,
			EntityID: agreementID,
			Status:   string(derivedAgreement),
			ActorID:  actorID,
			Metadata: map[string]any{"derived": true},
		})
	})
	if err != nil {
		return SyncResult{}, err
	}

	if noOp {
		result := SyncResult{NoOp: true}
		if result.LineItem, err = s.repo.GetLineItem(ctx, lineItemID); err != nil {
			return SyncResult{}, err
		}
		if result.SubAgreement, err = s.repo.GetSubAgreement(ctx, sub.ID); err != nil {
			return SyncResult{}, err
		}
		if result.Agreement, err = s.repo.GetAgreement(ctx, agreementID); err != nil {
			return SyncResult{}, err
		}
		return result, nil
	}

	activityErr := s.recordActivity(ctx, trail)

	s.observe(string(status.KindLineItem), string(newStatus), subChanged, agreementChanged)
	now := time.Now()
	s.publish(ctx, StatusChangedEvent{
		EventID:     uuid.NewString(),
		EntityKind:  string(status.KindLineItem),
		EntityID:    item.ID,
		AgreementID: agreementID,
		Status:      string(newStatus),
		ActorID:     actorID,
		OccurredAt:  now,
	})
	if subChanged {
		s.publish(ctx, StatusChangedEvent{
			EventID:     uuid.NewString(),
			EntityKind:  string(status.KindSubAgreement),
			EntityID:    sub.ID,
			AgreementID: agreementID,
			Status:      string(derivedSub),
			ActorID:     actorID,
			OccurredAt:  now,
		})
	}
	if agreementChanged {
		s.publish(ctx, StatusChangedEvent{
			EventID:     uuid.NewString(),
			EntityKind:  string(status.KindAgreement),
			EntityID:    agreementID,
			AgreementID: agreementID,
			Status:      string(derivedAgreement),
			ActorID:     actorID,
			OccurredAt:  now,
		})
	}
	s.invalidate(ctx, agreementID)

	result := SyncResult{SubStatusChanged: subChanged, AgreementStatusChanged: agreementChanged, ActivityErr: activityErr}
	if result.LineItem, err = s.repo.GetLineItem(ctx, lineItemID); err != nil {
		return SyncResult{}, err
	}
	if result.SubAgreement, err = s.repo.GetSubAgreement(ctx, sub.ID); err != nil {
		return SyncResult{}, err
	}
	if result.Agreement, err = s.repo.GetAgreement(ctx, agreementID); err != nil {
		return SyncResult{}, err
	}
	return result, nil
}

// ReassignLineItem marks an item reassigned. A reassigned item keeps its slot
// open: it counts as pending for derivation and contributes no accepted value.
func (s *Service) ReassignLineItem(ctx context.Context, lineItemID, actorID int64, notes *string) (SyncResult, error) {
	return s.SetLineItemStatus(ctx, lineItemID, LineStatusReassigned, actorID, notes)
}

// CancelAgreement cancels the agreement and cascades the status to every
// sub-agreement and line item beneath it, each with its own status record.
// Cancellation is top-down and bypasses the derivation rules. Cancelling an
// already cancelled agreement is a no-op.
func (s *Service) CancelAgreement(ctx context.Context, agreementID, actorID int64, reason string) error {
	agr, err := s.repo.GetAgreement(ctx, agreementID)
	if err != nil {
		return err
	}
	if agr.Status == AgreementStatusCancelled {
		return nil
	}

	var (
		trail []status.TransitionInput
		noOp  bool
	)
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		locked, err := tx.LockAgreement(ctx, agreementID)
		if err != nil {
			return err
		}
		if locked.Status == AgreementStatusCancelled {
			noOp = true
			return nil
		}
		now := time.Now()
		if err := tx.MarkAgreementCancelled(ctx, agreementID, actorID, reason, now); err != nil {
			return err
		}
		if err := appendStatus(ctx, tx, &trail, status.TransitionInput{
			Kind:        status.KindAgreement,
			EntityID:    agreementID,
			Status:      string(AgreementStatusCancelled),
			ActorID:     actorID,
			Metadata:    map[string]any{"reason": reason},
			Description: fmt.Sprintf("agreement %d cancelled: %s", agreementID, reason),
		}); err != nil {
			return err
		}
		subs, err := tx.ListSubAgreements(ctx, agreementID)
		if err != nil {
			return err
		}
		for _, sub := range subs {
			if err := tx.UpdateSubAgreementStatus(ctx, sub.ID, SubStatusCancelled, nil); err != nil {
				return err
			}
			if err := appendStatus(ctx, tx, &trail, status.TransitionInput{
				Kind:     status.KindSubAgreement,
				EntityID: sub.ID,
				Status:   string(SubStatusCancelled),
				ActorID:  actorID,
				Scope:    status.Scope{ParentID: &agreementID, CounterpartyID: &sub.CounterpartyID},
				Metadata: map[string]any{"cascade": true},
			}); err != nil {
				return err
			}
			items, err := tx.ListLineItems(ctx, sub.ID)
			if err != nil {
				return err
			}
			for _, item := range items {
				if err := tx.UpdateLineItemStatus(ctx, item.ID, LineStatusCancelled, nil); err != nil {
					return err
				}
				if err := appendStatus(ctx, tx, &trail, status.TransitionInput{
					Kind:     status.KindLineItem,
					EntityID: item.ID,
					Status:   string(LineStatusCancelled),
					ActorID:  actorID,
					Scope: status.Scope{
						ParentID:       &sub.ID,
						CounterpartyID: &sub.CounterpartyID,
						OccursOn:       &item.OccursOn,
					},
					Metadata: map[string]any{"cascade": true},
				}); err != nil {
					return err
				}
			}
		}
		return nil
	})
	if err != nil {
		return err
	}
	if noOp {
		return nil
	}

	_ = s.recordActivity(ctx, trail)

	s.observe(string(status.KindAgreement), string(AgreementStatusCancelled), false, false)
	s.publish(ctx, StatusChangedEvent{
		EventID:     uuid.NewString(),
		EntityKind:  string(status.KindAgreement),
		EntityID:    agreementID,
		AgreementID: agreementID,
		Status:      string(AgreementStatusCancelled),
		ActorID:     actorID,
		OccurredAt:  time.Now(),
	})
	s.invalidate(ctx, agreementID)
	return nil
}

// GetAgreement returns one agreement.
func (s *Service) GetAgreement(ctx context.Context, id int64) (Agreement, error) {
	return s.repo.GetAgreement(ctx, id)
}

// GetSubAgreement returns one sub-agreement.
func (s *Service) GetSubAgreement(ctx context.Context, id int64) (SubAgreement, error) {
	return s.repo.GetSubAgreement(ctx, id)
}

// GetLineItem returns one line item.
func (s *Service) GetLineItem(ctx context.Context, id int64) (LineItem, error) {
	return s.repo.GetLineItem(ctx, id)
}

// publish hands an event to the notifier. Delivery failures are logged and
// never affect the status write.
func (s *Service) publish(ctx context.Context, evt StatusChangedEvent) {
	if err := s.notifier.StatusChanged(ctx, evt); err != nil {
		s.logger.Warn("notify status change failed",
			slog.String("entity_kind", evt.EntityKind),
			slog.Int64("entity_id", evt.EntityID),
			slog.String("status", evt.Status),
			slog.Any("error", err))
	}
}

func (s *Service) invalidate(ctx context.Context, agreementID int64) {
	if s.cache != nil {
		s.cache.Invalidate(ctx, agreementID)
	}
}

func (s *Service) observe(kind, newStatus string, subChanged, agreementChanged bool) {
	if s.metrics == nil {
		return
	}
	s.metrics.TransitionApplied(kind, newStatus)
	levels := 1
	if subChanged {
		levels++
		s.metrics.DerivationChanged(string(status.KindSubAgreement))
	}
	if agreementChanged {
		levels++
		s.metrics.DerivationChanged(string(status.KindAgreement))
	}
	s.metrics.CascadeFanout(levels)
}
