package audit

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/custodia-app/custodia/internal/shared"
)

type memoryRepository struct {
	entries []Entry
}

func (m *memoryRepository) ListEntries(ctx context.Context, filters Filters, limit, offset int) ([]Entry, error) {
	var matched []Entry
	for _, e := range m.entries {
		if filters.Action != "" && e.Action != filters.Action {
			continue
		}
		if filters.Table != "" && e.Table != filters.Table {
			continue
		}
		matched = append(matched, e)
	}
	if offset >= len(matched) {
		return nil, nil
	}
	matched = matched[offset:]
	if len(matched) > limit {
		matched = matched[:limit]
	}
	return matched, nil
}

func (m *memoryRepository) GetEntry(ctx context.Context, id int64) (Entry, error) {
	for _, e := range m.entries {
		if e.ID == id {
			return e, nil
		}
	}
	return Entry{}, shared.ErrNotFound
}

func (m *memoryRepository) DeleteEntry(ctx context.Context, id int64) error {
	for i, e := range m.entries {
		if e.ID == id {
			m.entries = append(m.entries[:i], m.entries[i+1:]...)
			return nil
		}
	}
	return shared.ErrNotFound
}

func seedEntries(n int) []Entry {
	entries := make([]Entry, n)
	for i := range entries {
		entries[i] = Entry{
			ID:     int64(i + 1),
			Action: ActionSelect,
			Module: ModuleSeguridad,
			Table:  "usuarios",
			At:     time.Now(),
		}
	}
	return entries
}

func TestListDefaultsAndHasNext(t *testing.T) {
	service := NewService(&memoryRepository{entries: seedEntries(25)})

	result, err := service.List(context.Background(), Filters{})
	require.NoError(t, err)
	require.Len(t, result.Rows, 20)
	require.Equal(t, 1, result.Paging.Page)
	require.Equal(t, 20, result.Paging.PageSize)
	require.True(t, result.Paging.HasNext)
	require.Equal(t, 2, result.Paging.NextPage)
	require.Zero(t, result.Paging.PrevPage)

	result, err = service.List(context.Background(), Filters{Page: 2})
	require.NoError(t, err)
	require.Len(t, result.Rows, 5)
	require.False(t, result.Paging.HasNext)
	require.Equal(t, 1, result.Paging.PrevPage)
}

func TestListClampsPageSize(t *testing.T) {
	service := NewService(&memoryRepository{entries: seedEntries(150)})

	result, err := service.List(context.Background(), Filters{PageSize: 500})
	require.NoError(t, err)
	require.Equal(t, 100, result.Paging.PageSize)
	require.Len(t, result.Rows, 100)

	result, err = service.List(context.Background(), Filters{PageSize: -3})
	require.NoError(t, err)
	require.Equal(t, 20, result.Paging.PageSize)
}

func TestListAppliesFilters(t *testing.T) {
	repo := &memoryRepository{entries: []Entry{
		{ID: 1, Action: ActionInsert, Table: "usuarios"},
		{ID: 2, Action: ActionDelete, Table: "roles"},
		{ID: 3, Action: ActionInsert, Table: "roles"},
	}}
	service := NewService(repo)

	result, err := service.List(context.Background(), Filters{Action: ActionInsert, Table: "roles"})
	require.NoError(t, err)
	require.Len(t, result.Rows, 1)
	require.Equal(t, int64(3), result.Rows[0].ID)
}

func TestDeleteRemovesEntry(t *testing.T) {
	repo := &memoryRepository{entries: seedEntries(3)}
	service := NewService(repo)

	require.NoError(t, service.Delete(context.Background(), 2))

	_, err := service.Get(context.Background(), 2)
	require.ErrorIs(t, err, shared.ErrNotFound)

	err = service.Delete(context.Background(), 99)
	require.ErrorIs(t, err, shared.ErrNotFound)
}
