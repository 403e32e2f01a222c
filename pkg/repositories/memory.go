package repositories

import (
	"context"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ekaya-inc/ekaya-nlq/pkg/models"
)

// memoryHistoryRepository keeps history per data source in append order.
type memoryHistoryRepository struct {
	mu           sync.RWMutex
	byDatasource map[string][]*models.QueryHistory
	byID         map[uuid.UUID]*models.QueryHistory
	now          func() time.Time
}

// NewMemoryHistoryRepository creates an in-process QueryHistoryRepository.
func NewMemoryHistoryRepository() QueryHistoryRepository {
	return &memoryHistoryRepository{
		byDatasource: make(map[string][]*models.QueryHistory),
		byID:         make(map[uuid.UUID]*models.QueryHistory),
		now:          time.Now,
	}
}

var _ QueryHistoryRepository = (*memoryHistoryRepository)(nil)

func (r *memoryHistoryRepository) Append(_ context.Context, entry *models.QueryHistory) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if entry.ID == uuid.Nil {
		entry.ID = uuid.New()
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = r.now()
	}
	stored := cloneHistory(entry)
	r.byDatasource[entry.DatasourceID] = append(r.byDatasource[entry.DatasourceID], stored)
	r.byID[entry.ID] = stored
	return nil
}

func (r *memoryHistoryRepository) List(_ context.Context, datasourceID string, limit int) ([]*models.QueryHistory, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	entries := r.byDatasource[datasourceID]
	if limit > 0 && len(entries) > limit {
		entries = entries[len(entries)-limit:]
	}
	out := make([]*models.QueryHistory, len(entries))
	for i, e := range entries {
		out[i] = cloneHistory(e)
	}
	return out, nil
}

func (r *memoryHistoryRepository) Get(_ context.Context, id uuid.UUID) (*models.QueryHistory, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	e, ok := r.byID[id]
	if !ok {
		return nil, historyNotFound(id)
	}
	return cloneHistory(e), nil
}

func (r *memoryHistoryRepository) DeleteOlderThan(_ context.Context, datasourceID string, cutoff time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	entries := r.byDatasource[datasourceID]
	kept := entries[:0]
	var removed int64
	for _, e := range entries {
		if e.CreatedAt.Before(cutoff) {
			delete(r.byID, e.ID)
			removed++
			continue
		}
		kept = append(kept, e)
	}
	r.byDatasource[datasourceID] = kept
	return removed, nil
}

func cloneHistory(e *models.QueryHistory) *models.QueryHistory {
	cp := *e
	cp.Conversion = *e.Conversion.Clone()
	cp.TablesUsed = slices.Clone(e.TablesUsed)
	cp.AggregationsUsed = slices.Clone(e.AggregationsUsed)
	return &cp
}

// memorySavedQueryRepository keeps saved queries in a map.
type memorySavedQueryRepository struct {
	mu      sync.RWMutex
	queries map[uuid.UUID]*models.SavedQuery
	now     func() time.Time
}

// NewMemorySavedQueryRepository creates an in-process SavedQueryRepository.
func NewMemorySavedQueryRepository() SavedQueryRepository {
	return &memorySavedQueryRepository{
		queries: make(map[uuid.UUID]*models.SavedQuery),
		now:     time.Now,
	}
}

var _ SavedQueryRepository = (*memorySavedQueryRepository)(nil)

func (r *memorySavedQueryRepository) Create(_ context.Context, query *models.SavedQuery) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	query.ID = uuid.New()
	query.CreatedAt = now
	query.UpdatedAt = now
	r.queries[query.ID] = cloneSavedQuery(query)
	return nil
}

func (r *memorySavedQueryRepository) Get(_ context.Context, id uuid.UUID) (*models.SavedQuery, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	q, ok := r.queries[id]
	if !ok {
		return nil, savedQueryNotFound(id)
	}
	return cloneSavedQuery(q), nil
}

func (r *memorySavedQueryRepository) List(_ context.Context, datasourceID string) ([]*models.SavedQuery, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*models.SavedQuery, 0)
	for _, q := range r.queries {
		if q.DatasourceID == datasourceID {
			out = append(out, cloneSavedQuery(q))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID.String() < out[j].ID.String()
	})
	return out, nil
}

func (r *memorySavedQueryRepository) Update(_ context.Context, query *models.SavedQuery) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	existing, ok := r.queries[query.ID]
	if !ok {
		return savedQueryNotFound(query.ID)
	}
	query.CreatedAt = existing.CreatedAt
	query.UpdatedAt = r.now()
	r.queries[query.ID] = cloneSavedQuery(query)
	return nil
}

func (r *memorySavedQueryRepository) Delete(_ context.Context, id uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.queries[id]; !ok {
		return savedQueryNotFound(id)
	}
	delete(r.queries, id)
	return nil
}

func cloneSavedQuery(q *models.SavedQuery) *models.SavedQuery {
	cp := *q
	cp.Conversion = *q.Conversion.Clone()
	cp.Metadata = q.Metadata.Clone()
	return &cp
}
