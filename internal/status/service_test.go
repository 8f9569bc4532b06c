package status

import (
	"context"
	"errors"
	"sort"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/crewpact/crewpact/internal/activity"
	"github.com/crewpact/crewpact/internal/shared"
)

type memoryRepo struct {
	records []Record
	nextID  int64
}

func (r *memoryRepo) Insert(ctx context.Context, rec Record) (Record, error) {
	r.nextID++
	rec.ID = r.nextID
	rec.RecordedAt = time.Now()
	if rec.EffectiveAt.IsZero() {
		rec.EffectiveAt = rec.RecordedAt
	}
	r.records = append(r.records, rec)
	return rec, nil
}

func (r *memoryRepo) matches(rec Record, kind Kind, entityID int64, scope Scope) bool {
	if rec.Kind != kind || rec.EntityID != entityID {
		return false
	}
	if scope.ParentID != nil && (rec.ParentID == nil || *rec.ParentID != *scope.ParentID) {
		return false
	}
	if scope.CounterpartyID != nil && (rec.CounterpartyID == nil || *rec.CounterpartyID != *scope.CounterpartyID) {
		return false
	}
	if scope.OccursOn != nil && (rec.OccursOn == nil || !rec.OccursOn.Equal(*scope.OccursOn)) {
		return false
	}
	return true
}

func (r *memoryRepo) Current(ctx context.Context, kind Kind, entityID int64, scope Scope) (Record, error) {
	rows, err := r.History(ctx, kind, entityID, scope, 1, 0)
	if err != nil {
		return Record{}, err
	}
	if len(rows) == 0 {
		return Record{}, shared.ErrNotFound
	}
	return rows[0], nil
}

func (r *memoryRepo) History(ctx context.Context, kind Kind, entityID int64, scope Scope, limit, offset int) ([]Record, error) {
	var out []Record
	for _, rec := range r.records {
		if r.matches(rec, kind, entityID, scope) {
			out = append(out, rec)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	if offset >= len(out) {
		return nil, nil
	}
	out = out[offset:]
	if limit < len(out) {
		out = out[:limit]
	}
	return out, nil
}

type activityStub struct {
	entries []activity.Entry
	err     error
}

func (a *activityStub) Record(ctx context.Context, entry activity.Entry) error {
	if a.err != nil {
		return a.err
	}
	a.entries = append(a.entries, entry)
	return nil
}

func TestRecordTransitionAppends(t *testing.T) {
	repo := &memoryRepo{}
	audit := &activityStub{}
	svc := NewService(repo, audit, nil)
	ctx := context.Background()

	parent := int64(5)
	result, err := svc.RecordTransition(ctx, TransitionInput{
		Kind:     KindSubAgreement,
		EntityID: 9,
		Status:   "accepted",
		ActorID:  3,
		Scope:    Scope{ParentID: &parent},
		Metadata: map[string]any{"derived": true},
	})
	require.NoError(t, err)
	require.NoError(t, result.ActivityErr)
	require.Equal(t, "accepted", result.Record.Status)
	require.NotZero(t, result.Record.ID)

	current, err := svc.Current(ctx, KindSubAgreement, 9, Scope{ParentID: &parent})
	require.NoError(t, err)
	require.Equal(t, result.Record.ID, current.ID)

	require.Len(t, audit.entries, 1)
	require.Equal(t, "sub_agreement.status.accepted", audit.entries[0].Action)
	require.Equal(t, int64(3), audit.entries[0].ActorID)
}

func TestRecordTransitionRejectsUnknownStatus(t *testing.T) {
	repo := &memoryRepo{}
	svc := NewService(repo, nil, nil)

	_, err := svc.RecordTransition(context.Background(), TransitionInput{
		Kind:     KindLineItem,
		EntityID: 1,
		Status:   "approved",
	})
	require.ErrorIs(t, err, shared.ErrInvalidTransition)
	require.Empty(t, repo.records)
}

func TestRecordTransitionSurvivesActivityFailure(t *testing.T) {
	repo := &memoryRepo{}
	audit := &activityStub{err: errors.New("activity store down")}
	svc := NewService(repo, audit, nil)

	result, err := svc.RecordTransition(context.Background(), TransitionInput{
		Kind:     KindAgreement,
		EntityID: 2,
		Status:   "sent",
		ActorID:  1,
	})
	require.NoError(t, err)
	require.Error(t, result.ActivityErr)
	require.Len(t, repo.records, 1)
}

func TestCurrentNotFound(t *testing.T) {
	svc := NewService(&memoryRepo{}, nil, nil)

	_, err := svc.Current(context.Background(), KindAgreement, 404, Scope{})
	require.ErrorIs(t, err, shared.ErrNotFound)
}

func TestHistoryScopeFiltersAndOrder(t *testing.T) {
	repo := &memoryRepo{}
	svc := NewService(repo, nil, nil)
	ctx := context.Background()

	cpA, cpB := int64(10), int64(11)
	for _, in := range []TransitionInput{
		{Kind: KindLineItem, EntityID: 1, Status: "pending", Scope: Scope{CounterpartyID: &cpA}},
		{Kind: KindLineItem, EntityID: 1, Status: "accepted", Scope: Scope{CounterpartyID: &cpA}},
		{Kind: KindLineItem, EntityID: 1, Status: "rejected", Scope: Scope{CounterpartyID: &cpB}},
	} {
		_, err := svc.RecordTransition(ctx, in)
		require.NoError(t, err)
	}

	// Scoped read sees only the matching counter-party, newest first.
	rows, err := svc.History(ctx, KindLineItem, 1, Scope{CounterpartyID: &cpA}, 10, 0)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	require.Equal(t, "accepted", rows[0].Status)
	require.Equal(t, "pending", rows[1].Status)

	// Nil scope fields are wildcards.
	rows, err = svc.History(ctx, KindLineItem, 1, Scope{}, 10, 0)
	require.NoError(t, err)
	require.Len(t, rows, 3)
}

func TestHistoryClampsLimit(t *testing.T) {
	repo := &memoryRepo{}
	svc := NewService(repo, nil, nil)
	ctx := context.Background()

	for i := 0; i < 30; i++ {
		st := "sent"
		if i%2 == 0 {
			st = "in-progress"
		}
		_, err := svc.RecordTransition(ctx, TransitionInput{Kind: KindAgreement, EntityID: 1, Status: st})
		require.NoError(t, err)
	}

	rows, err := svc.History(ctx, KindAgreement, 1, Scope{}, 0, 0)
	require.NoError(t, err)
	require.Len(t, rows, 20)

	rows, err = svc.History(ctx, KindAgreement, 1, Scope{}, 10, 25)
	require.NoError(t, err)
	require.Len(t, rows, 5)
}
