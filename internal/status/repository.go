package status

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"

	"github.com/crewpact/crewpact/internal/shared"
)

// Repository provides access to the append-only status_records table.
// Existing rows are never updated or deleted.
type Repository interface {
	Insert(ctx context.Context, rec Record) (Record, error)
	Current(ctx context.Context, kind Kind, entityID int64, scope Scope) (Record, error)
	History(ctx context.Context, kind Kind, entityID int64, scope Scope, limit, offset int) ([]Record, error)
}

// DBTX is satisfied by both pgxpool.Pool and pgx.Tx. Callers that need a
// record append to commit atomically with their own writes construct a
// repository over their transaction.
type DBTX interface {
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
}

type repository struct {
	db DBTX
}

// NewRepository constructs a PostgreSQL backed repository.
func NewRepository(db DBTX) Repository {
	return &repository{db: db}
}

const recordColumns = `id, kind, entity_id, status, custom_status, parent_id, counterparty_id, occurs_on, effective_at, recorded_at, metadata`

func (r *repository) Insert(ctx context.Context, rec Record) (Record, error) {
	metaJSON, err := json.Marshal(rec.Metadata)
	if err != nil {
		return Record{}, fmt.Errorf("status: marshal metadata: %w", err)
	}
	if rec.EffectiveAt.IsZero() {
		rec.EffectiveAt = time.Now()
	}

	row := r.db.QueryRow(ctx, `
		INSERT INTO status_records (kind, entity_id, status, custom_status, parent_id, counterparty_id, occurs_on, effective_at, metadata)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING `+recordColumns,
		string(rec.Kind), rec.EntityID, rec.Status, optText(rec.CustomStatus),
		optInt8(rec.ParentID), optInt8(rec.CounterpartyID), optDate(rec.OccursOn),
		rec.EffectiveAt, metaJSON,
	)
	inserted, err := scanRecord(row)
	if err != nil {
		return Record{}, shared.NewPersistenceError("insert status record", err)
	}
	return inserted, nil
}

func (r *repository) Current(ctx context.Context, kind Kind, entityID int64, scope Scope) (Record, error) {
	query, args := selectRecords(kind, entityID, scope)
	query += " ORDER BY recorded_at DESC, id DESC LIMIT 1"

	rec, err := scanRecord(r.db.QueryRow(ctx, query, args...))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Record{}, shared.ErrNotFound
		}
		return Record{}, shared.NewPersistenceError("select current status", err)
	}
	return rec, nil
}

func (r *repository) History(ctx context.Context, kind Kind, entityID int64, scope Scope, limit, offset int) ([]Record, error) {
	query, args := selectRecords(kind, entityID, scope)
	query += fmt.Sprintf(" ORDER BY recorded_at DESC, id DESC LIMIT $%d OFFSET $%d", len(args)+1, len(args)+2)
	args = append(args, limit, offset)

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, shared.NewPersistenceError("select status history", err)
	}
	defer rows.Close()

	var records []Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, shared.NewPersistenceError("scan status history", err)
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, shared.NewPersistenceError("iterate status history", err)
	}
	return records, nil
}

// selectRecords builds the shared WHERE clause. Nil scope fields are
// wildcards.
func selectRecords(kind Kind, entityID int64, scope Scope) (string, []interface{}) {
	query := "SELECT " + recordColumns + " FROM status_records WHERE kind = $1 AND entity_id = $2"
	args := []interface{}{string(kind), entityID}
	if scope.ParentID != nil {
		args = append(args, *scope.ParentID)
		query += fmt.Sprintf(" AND parent_id = $%d", len(args))
	}
	if scope.CounterpartyID != nil {
		args = append(args, *scope.CounterpartyID)
		query += fmt.Sprintf(" AND counterparty_id = $%d", len(args))
	}
	if scope.OccursOn != nil {
		args = append(args, *scope.OccursOn)
		query += fmt.Sprintf(" AND occurs_on = $%d", len(args))
	}
	return query, args
}

func scanRecord(row pgx.Row) (Record, error) {
	var (
		rec            Record
		kind           string
		customStatus   pgtype.Text
		parentID       pgtype.Int8
		counterpartyID pgtype.Int8
		occursOn       pgtype.Date
		effectiveAt    pgtype.Timestamptz
		recordedAt     pgtype.Timestamptz
		metaJSON       []byte
	)
	err := row.Scan(
		&rec.ID, &kind, &rec.EntityID, &rec.Status, &customStatus,
		&parentID, &counterpartyID, &occursOn, &effectiveAt, &recordedAt, &metaJSON,
	)
	if err != nil {
		return Record{}, err
	}
	rec.Kind = Kind(kind)
	if customStatus.Valid {
		val := customStatus.String
		rec.CustomStatus = &val
	}
	if parentID.Valid {
		val := parentID.Int64
		rec.ParentID = &val
	}
	if counterpartyID.Valid {
		val := counterpartyID.Int64
		rec.CounterpartyID = &val
	}
	if occursOn.Valid {
		val := occursOn.Time
		rec.OccursOn = &val
	}
	if effectiveAt.Valid {
		rec.EffectiveAt = effectiveAt.Time
	}
	if recordedAt.Valid {
		rec.RecordedAt = recordedAt.Time
	}
	if len(metaJSON) > 0 {
		if err := json.Unmarshal(metaJSON, &rec.Metadata); err != nil {
			return Record{}, fmt.Errorf("status: unmarshal metadata: %w", err)
		}
	}
	return rec, nil
}

func optText(s *string) pgtype.Text {
	if s == nil {
		return pgtype.Text{}
	}
	return pgtype.Text{String: *s, Valid: true}
}

func optInt8(v *int64) pgtype.Int8 {
	if v == nil {
		return pgtype.Int8{}
	}
	return pgtype.Int8{Int64: *v, Valid: true}
}

func optDate(t *time.Time) pgtype.Date {
	if t == nil {
		return pgtype.Date{}
	}
	return pgtype.Date{Time: *t, Valid: true}
}
