package activity

import (
	"context"
	"errors"
	"fmt"
)

// Service coordinates audit trail writes and timeline reads.
type Service struct {
	repo Repository
}

// NewService builds an activity service.
func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

// Record persists the audit entry.
func (s *Service) Record(ctx context.Context, entry Entry) error {
	if s == nil || s.repo == nil {
		return errors.New("activity: service not configured")
	}
	if entry.Action == "" || entry.EntityKind == "" || entry.EntityID == 0 {
		return errors.New("activity: entry requires action/entity_kind/entity_id")
	}
	return s.repo.Insert(ctx, entry)
}

// Timeline fetches activity entries with paging.
func (s *Service) Timeline(ctx context.Context, filters TimelineFilters) (Result, error) {
	if s.repo == nil {
		return Result{}, fmt.Errorf("activity: repository not configured")
	}
	pageSize := filters.PageSize
	if pageSize <= 0 {
		pageSize = 20
	}
	if pageSize > 50 {
		pageSize = 50
	}
	page := filters.Page
	if page <= 0 {
		page = 1
	}
	offset := (page - 1) * pageSize

	rows, err := s.repo.Window(ctx, filters, pageSize+1, offset)
	if err != nil {
		return Result{}, err
	}
	hasNext := len(rows) > pageSize
	if hasNext {
		rows = rows[:pageSize]
	}
	paging := PagingInfo{Page: page, PageSize: pageSize, HasNext: hasNext}
	if page > 1 {
		paging.PrevPage = page - 1
	}
	if hasNext {
		paging.NextPage = page + 1
	}
	return Result{Rows: rows, Paging: paging}, nil
}

// Export fetches the whole timeline without paging.
func (s *Service) Export(ctx context.Context, filters TimelineFilters) ([]Entry, error) {
	if s.repo == nil {
		return nil, fmt.Errorf("activity: repository not configured")
	}
	return s.repo.All(ctx, filters)
}
