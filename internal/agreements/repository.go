package agreements

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/crewpact/crewpact/internal/platform/db"
	"github.com/crewpact/crewpact/internal/shared"
	"github.com/crewpact/crewpact/internal/status"
)

// Repository provides PostgreSQL backed persistence for the agreement
// hierarchy.
type Repository interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	GetAgreement(ctx context.Context, id int64) (Agreement, error)
	GetSubAgreement(ctx context.Context, id int64) (SubAgreement, error)
	GetLineItem(ctx context.Context, id int64) (LineItem, error)
	ListSubAgreements(ctx context.Context, agreementID int64) ([]SubAgreement, error)
	ListLineItems(ctx context.Context, subAgreementID int64) ([]LineItem, error)
}

// TxRepository exposes the mutations available inside a transaction. Lock
// methods take row locks so reconciliation is serialized per SubAgreement and
// per Agreement.
type TxRepository interface {
	LockAgreement(ctx context.Context, id int64) (Agreement, error)
	LockSubAgreement(ctx context.Context, id int64) (SubAgreement, error)
	GetLineItem(ctx context.Context, id int64) (LineItem, error)
	ListSubAgreements(ctx context.Context, agreementID int64) ([]SubAgreement, error)
	ListLineItems(ctx context.Context, subAgreementID int64) ([]LineItem, error)
	CreateAgreement(ctx context.Context, a Agreement) (int64, error)
	CreateSubAgreement(ctx context.Context, sub SubAgreement) (int64, error)
	InsertLineItem(ctx context.Context, item LineItem) (int64, error)
	UpdateLineItemStatus(ctx context.Context, id int64, newStatus LineItemStatus, notes *string) error
	UpdateSubAgreementCounts(ctx context.Context, id int64, counts Counts) error
	UpdateSubAgreementStatus(ctx context.Context, id int64, newStatus SubAgreementStatus, completedAt *time.Time) error
	UpdateAgreementStatus(ctx context.Context, id int64, newStatus AgreementStatus) error
	MarkAgreementCancelled(ctx context.Context, id int64, cancelledBy int64, reason string, at time.Time) error
	AppendStatusRecord(ctx context.Context, rec status.Record) (status.Record, error)
}

type dbtx interface {
	Exec(context.Context, string, ...interface{}) (pgconn.CommandTag, error)
	Query(context.Context, string, ...interface{}) (pgx.Rows, error)
	QueryRow(context.Context, string, ...interface{}) pgx.Row
}

type repository struct {
	db   dbtx
	pool *pgxpool.Pool
}

// NewRepository constructs a repository over the given pool.
func NewRepository(pool *pgxpool.Pool) Repository {
	return &repository{db: pool, pool: pool}
}

// WithTx wraps fn in a transaction. Row locks taken through the TxRepository
// provide the per-parent serialization; read committed isolation lets the
// post-lock rescan observe the latest committed line item statuses.
func (r *repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, &txRepo{db: tx})
	})
}

const agreementColumns = `id, title, issuer_id, status, cancelled_by, cancelled_at, cancellation_reason, created_at, updated_at`
const subAgreementColumns = `id, agreement_id, counterparty_id, status, accepted_count, rejected_count, pending_count, total_count, total_accepted_value, completed_at, created_at, updated_at`
const lineItemColumns = `id, sub_agreement_id, occurs_on, value, status, response_notes, created_at, updated_at`

func (r *repository) GetAgreement(ctx context.Context, id int64) (Agreement, error) {
	return getAgreement(ctx, r.db, id, "")
}

func (r *repository) GetSubAgreement(ctx context.Context, id int64) (SubAgreement, error) {
	return getSubAgreement(ctx, r.db, id, "")
}

func (r *repository) GetLineItem(ctx context.Context, id int64) (LineItem, error) {
	return getLineItem(ctx, r.db, id)
}

func (r *repository) ListSubAgreements(ctx context.Context, agreementID int64) ([]SubAgreement, error) {
	return listSubAgreements(ctx, r.db, agreementID)
}

func (r *repository) ListLineItems(ctx context.Context, subAgreementID int64) ([]LineItem, error) {
	return listLineItems(ctx, r.db, subAgreementID)
}

type txRepo struct {
	db dbtx
}

func (t *txRepo) LockAgreement(ctx context.Context, id int64) (Agreement, error) {
	return getAgreement(ctx, t.db, id, " FOR UPDATE")
}

func (t *txRepo) LockSubAgreement(ctx context.Context, id int64) (SubAgreement, error) {
	return getSubAgreement(ctx, t.db, id, " FOR UPDATE")
}

func (t *txRepo) GetLineItem(ctx context.Context, id int64) (LineItem, error) {
	return getLineItem(ctx, t.db, id)
}

func (t *txRepo) ListSubAgreements(ctx context.Context, agreementID int64) ([]SubAgreement, error) {
	return listSubAgreements(ctx, t.db, agreementID)
}

func (t *txRepo) ListLineItems(ctx context.Context, subAgreementID int64) ([]LineItem, error) {
	return listLineItems(ctx, t.db, subAgreementID)
}

func (t *txRepo) CreateAgreement(ctx context.Context, a Agreement) (int64, error) {
	var id int64
	err := t.db.QueryRow(ctx, `
		INSERT INTO agreements (title, issuer_id, status)
		VALUES ($1, $2, $3)
		RETURNING id`,
		a.Title, a.IssuerID, string(a.Status),
	).Scan(&id)
	if err != nil {
		return 0, shared.NewPersistenceError("create agreement", err)
	}
	return id, nil
}

func (t *txRepo) CreateSubAgreement(ctx context.Context, sub SubAgreement) (int64, error) {
	var id int64
	err := t.db.QueryRow(ctx, `
		INSERT INTO sub_agreements (agreement_id, counterparty_id, status, accepted_count, rejected_count, pending_count, total_count, total_accepted_value)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id`,
		sub.AgreementID, sub.CounterpartyID, string(sub.Status),
		sub.AcceptedCount, sub.RejectedCount, sub.PendingCount, sub.TotalCount, sub.TotalAcceptedValue,
	).Scan(&id)
	if err != nil {
		return 0, shared.NewPersistenceError("create sub agreement", err)
	}
	return id, nil
}

func (t *txRepo) InsertLineItem(ctx context.Context, item LineItem) (int64, error) {
	var id int64
	err := t.db.QueryRow(ctx, `
		INSERT INTO line_items (sub_agreement_id, occurs_on, value, status)
		VALUES ($1, $2, $3, $4)
		RETURNING id`,
		item.SubAgreementID, item.OccursOn, item.Value, string(item.Status),
	).Scan(&id)
	if err != nil {
		return 0, shared.NewPersistenceError("insert line item", err)
	}
	return id, nil
}

func (t *txRepo) UpdateLineItemStatus(ctx context.Context, id int64, newStatus LineItemStatus, notes *string) error {
	_, err := t.db.Exec(ctx, `
		UPDATE line_items
		SET status = $1,
		    response_notes = COALESCE($2, response_notes),
		    updated_at = NOW()
		WHERE id = $3`,
		string(newStatus), optText(notes), id,
	)
	if err != nil {
		return shared.NewPersistenceError("update line item status", err)
	}
	return nil
}

func (t *txRepo) UpdateSubAgreementCounts(ctx context.Context, id int64, counts Counts) error {
	_, err := t.db.Exec(ctx, `
		UPDATE sub_agreements
		SET accepted_count = $1,
		    rejected_count = $2,
		    pending_count = $3,
		    total_count = $4,
		    total_accepted_value = $5,
		    updated_at = NOW()
		WHERE id = $6`,
		counts.Accepted, counts.Rejected, counts.Pending, counts.Total, counts.AcceptedValue, id,
	)
	if err != nil {
		return shared.NewPersistenceError("update sub agreement counts", err)
	}
	return nil
}

func (t *txRepo) UpdateSubAgreementStatus(ctx context.Context, id int64, newStatus SubAgreementStatus, completedAt *time.Time) error {
	_, err := t.db.Exec(ctx, `
		UPDATE sub_agreements
		SET status = $1,
		    completed_at = COALESCE(completed_at, $2),
		    updated_at = NOW()
		WHERE id = $3`,
		string(newStatus), optTimestamptz(completedAt), id,
	)
	if err != nil {
		return shared.NewPersistenceError("update sub agreement status", err)
	}
	return nil
}

func (t *txRepo) UpdateAgreementStatus(ctx context.Context, id int64, newStatus AgreementStatus) error {
	_, err := t.db.Exec(ctx, `
		UPDATE agreements SET status = $1, updated_at = NOW() WHERE id = $2`,
		string(newStatus), id,
	)
	if err != nil {
		return shared.NewPersistenceError("update agreement status", err)
	}
	return nil
}

func (t *txRepo) MarkAgreementCancelled(ctx context.Context, id int64, cancelledBy int64, reason string, at time.Time) error {
	_, err := t.db.Exec(ctx, `
		UPDATE agreements
		SET status = $1,
		    cancelled_by = $2,
		    cancelled_at = $3,
		    cancellation_reason = $4,
		    updated_at = NOW()
		WHERE id = $5`,
		string(AgreementStatusCancelled), cancelledBy, at, reason, id,
	)
	if err != nil {
		return shared.NewPersistenceError("mark agreement cancelled", err)
	}
	return nil
}

// AppendStatusRecord writes into status_records through this transaction, so
// audit rows commit or roll back together with the hierarchy writes.
func (t *txRepo) AppendStatusRecord(ctx context.Context, rec status.Record) (status.Record, error) {
	return status.NewRepository(t.db).Insert(ctx, rec)
}

func getAgreement(ctx context.Context, db dbtx, id int64, suffix string) (Agreement, error) {
	row := db.QueryRow(ctx, "SELECT "+agreementColumns+" FROM agreements WHERE id = $1"+suffix, id)
	a, err := scanAgreement(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Agreement{}, shared.ErrNotFound
		}
		return Agreement{}, shared.NewPersistenceError("select agreement", err)
	}
	return a, nil
}

func getSubAgreement(ctx context.Context, db dbtx, id int64, suffix string) (SubAgreement, error) {
	row := db.QueryRow(ctx, "SELECT "+subAgreementColumns+" FROM sub_agreements WHERE id = $1"+suffix, id)
	sub, err := scanSubAgreement(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return SubAgreement{}, shared.ErrNotFound
		}
		return SubAgreement{}, shared.NewPersistenceError("select sub agreement", err)
	}
	return sub, nil
}

func getLineItem(ctx context.Context, db dbtx, id int64) (LineItem, error) {
	row := db.QueryRow(ctx, "SELECT "+lineItemColumns+" FROM line_items WHERE id = $1", id)
	item, err := scanLineItem(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return LineItem{}, shared.ErrNotFound
		}
		return LineItem{}, shared.NewPersistenceError("select line item", err)
	}
	return item, nil
}

func listSubAgreements(ctx context.Context, db dbtx, agreementID int64) ([]SubAgreement, error) {
	rows, err := db.Query(ctx, "SELECT "+subAgreementColumns+" FROM sub_agreements WHERE agreement_id = $1 ORDER BY id", agreementID)
	if err != nil {
		return nil, shared.NewPersistenceError("list sub agreements", err)
	}
	defer rows.Close()

	var subs []SubAgreement
	for rows.Next() {
		sub, err := scanSubAgreement(rows)
		if err != nil {
			return nil, shared.NewPersistenceError("scan sub agreement", err)
		}
		subs = append(subs, sub)
	}
	return subs, rows.Err()
}

func listLineItems(ctx context.Context, db dbtx, subAgreementID int64) ([]LineItem, error) {
	rows, err := db.Query(ctx, "SELECT "+lineItemColumns+" FROM line_items WHERE sub_agreement_id = $1 ORDER BY occurs_on, id", subAgreementID)
	if err != nil {
		return nil, shared.NewPersistenceError("list line items", err)
	}
	defer rows.Close()

	var items []LineItem
	for rows.Next() {
		item, err := scanLineItem(rows)
		if err != nil {
			return nil, shared.NewPersistenceError("scan line item", err)
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

func scanAgreement(row pgx.Row) (Agreement, error) {
	var (
		a           Agreement
		statusVal   string
		cancelledBy pgtype.Int8
		cancelledAt pgtype.Timestamptz
		reason      pgtype.Text
		createdAt   pgtype.Timestamptz
		updatedAt   pgtype.Timestamptz
	)
	if err := row.Scan(&a.ID, &a.Title, &a.IssuerID, &statusVal, &cancelledBy, &cancelledAt, &reason, &createdAt, &updatedAt); err != nil {
		return Agreement{}, err
	}
	a.Status = AgreementStatus(statusVal)
	if cancelledBy.Valid {
		val := cancelledBy.Int64
		a.CancelledBy = &val
	}
	if cancelledAt.Valid {
		val := cancelledAt.Time
		a.CancelledAt = &val
	}
	if reason.Valid {
		val := reason.String
		a.CancellationReason = &val
	}
	if createdAt.Valid {
		a.CreatedAt = createdAt.Time
	}
	if updatedAt.Valid {
		a.UpdatedAt = updatedAt.Time
	}
	return a, nil
}

func scanSubAgreement(row pgx.Row) (SubAgreement, error) {
	var (
		sub         SubAgreement
		statusVal   string
		value       pgtype.Numeric
		completedAt pgtype.Timestamptz
		createdAt   pgtype.Timestamptz
		updatedAt   pgtype.Timestamptz
	)
	err := row.Scan(&sub.ID, &sub.AgreementID, &sub.CounterpartyID, &statusVal,
		&sub.AcceptedCount, &sub.RejectedCount, &sub.PendingCount, &sub.TotalCount,
		&value, &completedAt, &createdAt, &updatedAt)
	if err != nil {
		return SubAgreement{}, err
	}
	sub.Status = SubAgreementStatus(statusVal)
	if value.Valid {
		f, _ := value.Float64Value()
		sub.TotalAcceptedValue = f.Float64
	}
	if completedAt.Valid {
		val := completedAt.Time
		sub.CompletedAt = &val
	}
	if createdAt.Valid {
		sub.CreatedAt = createdAt.Time
	}
	if updatedAt.Valid {
		sub.UpdatedAt = updatedAt.Time
	}
	return sub, nil
}

func scanLineItem(row pgx.Row) (LineItem, error) {
	var (
		item      LineItem
		occursOn  pgtype.Date
		value     pgtype.Numeric
		statusVal string
		notes     pgtype.Text
		createdAt pgtype.Timestamptz
		updatedAt pgtype.Timestamptz
	)
	if err := row.Scan(&item.ID, &item.SubAgreementID, &occursOn, &value, &statusVal, &notes, &createdAt, &updatedAt); err != nil {
		return LineItem{}, err
	}
	item.Status = LineItemStatus(statusVal)
	if occursOn.Valid {
		item.OccursOn = occursOn.Time
	}
	if value.Valid {
		f, _ := value.Float64Value()
		item.Value = f.Float64
	}
	if notes.Valid {
		val := notes.String
		item.ResponseNotes = &val
	}
	if createdAt.Valid {
		item.CreatedAt = createdAt.Time
	}
	if updatedAt.Valid {
		item.UpdatedAt = updatedAt.Time
	}
	return item, nil
}

func optText(s *string) pgtype.Text {
	if s == nil {
		return pgtype.Text{}
	}
	return pgtype.Text{String: *s, Valid: true}
}

func optTimestamptz(t *time.Time) pgtype.Timestamptz {
	if t == nil {
		return pgtype.Timestamptz{}
	}
	return pgtype.Timestamptz{Time: *t, Valid: true}
}
