package audit

import (
	"context"
	"fmt"
)

// RepositoryPort defines read/delete access to stored audit entries.
type RepositoryPort interface {
	ListEntries(ctx context.Context, filters Filters, limit, offset int) ([]Entry, error)
	GetEntry(ctx context.Context, id int64) (Entry, error)
	DeleteEntry(ctx context.Context, id int64) error
}

// Result wraps a listing with paging information.
type Result struct {
	Rows   []Entry
	Paging PagingInfo
}

// Service coordinates access to the audit trail.
type Service struct {
	repo RepositoryPort
}

// NewService builds a new audit service.
func NewService(repo RepositoryPort) *Service {
	return &Service{repo: repo}
}

// List returns audit entries newest first with paging.
func (s *Service) List(ctx context.Context, filters Filters) (Result, error) {
	if s.repo == nil {
		return Result{}, fmt.Errorf("audit: repository not configured")
	}
	pageSize := filters.PageSize
	if pageSize <= 0 {
		pageSize = 20
	}
	if pageSize > 100 {
		pageSize = 100
	}
	page := filters.Page
	if page <= 0 {
		page = 1
	}
	offset := (page - 1) * pageSize

	// Fetch one extra row to detect a next page without a count query.
	rows, err := s.repo.ListEntries(ctx, filters, pageSize+1, offset)
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

// Get fetches a single entry by id.
func (s *Service) Get(ctx context.Context, id int64) (Entry, error) {
	return s.repo.GetEntry(ctx, id)
}

// Delete removes an entry. This administrative escape hatch is deliberately
// NOT routed through the recorder: deleting an audit row does not produce an
// audit row about the deletion.
func (s *Service) Delete(ctx context.Context, id int64) error {
	return s.repo.DeleteEntry(ctx, id)
}
