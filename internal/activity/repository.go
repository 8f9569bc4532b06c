package activity

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/crewpact/crewpact/internal/shared"
)

// Repository persists and queries activity_records rows.
type Repository interface {
	Insert(ctx context.Context, entry Entry) error
	Window(ctx context.Context, filters TimelineFilters, limit, offset int) ([]Entry, error)
	All(ctx context.Context, filters TimelineFilters) ([]Entry, error)
}

type repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a PostgreSQL backed repository.
func NewRepository(pool *pgxpool.Pool) Repository {
	return &repository{pool: pool}
}

func (r *repository) Insert(ctx context.Context, entry Entry) error {
	metaJSON, err := json.Marshal(entry.Meta)
	if err != nil {
		return fmt.Errorf("activity: marshal meta: %w", err)
	}
	at := entry.At
	if at.IsZero() {
		at = time.Now()
	}
	_, err = r.pool.Exec(ctx, `
		INSERT INTO activity_records (actor_id, action, entity_kind, entity_id, description, meta, occurred_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		entry.ActorID, entry.Action, entry.EntityKind, entry.EntityID, entry.Description, metaJSON, at,
	)
	if err != nil {
		return shared.NewPersistenceError("insert activity record", err)
	}
	return nil
}

func (r *repository) Window(ctx context.Context, filters TimelineFilters, limit, offset int) ([]Entry, error) {
	query, args := buildTimelineQuery(filters)
	query += fmt.Sprintf(" ORDER BY occurred_at DESC, id DESC LIMIT $%d OFFSET $%d", len(args)+1, len(args)+2)
	args = append(args, limit, offset)
	return r.fetch(ctx, query, args)
}

func (r *repository) All(ctx context.Context, filters TimelineFilters) ([]Entry, error) {
	query, args := buildTimelineQuery(filters)
	query += " ORDER BY occurred_at DESC, id DESC"
	return r.fetch(ctx, query, args)
}

func (r *repository) fetch(ctx context.Context, query string, args []interface{}) ([]Entry, error) {
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, shared.NewPersistenceError("select activity timeline", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var (
			entry    Entry
			occurred pgtype.Timestamptz
			metaJSON []byte
		)
		if err := rows.Scan(&entry.ID, &entry.ActorID, &entry.Action, &entry.EntityKind, &entry.EntityID, &entry.Description, &metaJSON, &occurred); err != nil {
			return nil, shared.NewPersistenceError("scan activity record", err)
		}
		if occurred.Valid {
			entry.At = occurred.Time
		}
		if len(metaJSON) > 0 {
			if err := json.Unmarshal(metaJSON, &entry.Meta); err != nil {
				return nil, fmt.Errorf("activity: unmarshal meta: %w", err)
			}
		}
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, shared.NewPersistenceError("iterate activity timeline", err)
	}
	return entries, nil
}

func buildTimelineQuery(filters TimelineFilters) (string, []interface{}) {
	query := "SELECT id, actor_id, action, entity_kind, entity_id, description, meta, occurred_at FROM activity_records WHERE 1=1"
	var args []interface{}
	if !filters.From.IsZero() {
		args = append(args, filters.From)
		query += fmt.Sprintf(" AND occurred_at >= $%d", len(args))
	}
	if !filters.To.IsZero() {
		args = append(args, filters.To)
		query += fmt.Sprintf(" AND occurred_at <= $%d", len(args))
	}
	if filters.ActorID != 0 {
		args = append(args, filters.ActorID)
		query += fmt.Sprintf(" AND actor_id = $%d", len(args))
	}
	if filters.EntityKind != "" {
		args = append(args, filters.EntityKind)
		query += fmt.Sprintf(" AND entity_kind = $%d", len(args))
	}
	if filters.Action != "" {
		args = append(args, filters.Action)
		query += fmt.Sprintf(" AND action = $%d", len(args))
	}
	return query, args
}
