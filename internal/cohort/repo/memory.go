package repo

import (
	"context"
	"database/sql"
	"sort"
	"sync"

	"github.com/ovaphlow/pitchfork/service-attendance-go/internal/cohort/entity"
)

type MemoryCohortRepo struct {
	mu   sync.RWMutex
	byID map[string]entity.Cohort
}

func NewMemoryCohortRepo() *MemoryCohortRepo {
	return &MemoryCohortRepo{byID: map[string]entity.Cohort{}}
}

func (r *MemoryCohortRepo) Create(_ context.Context, c *entity.Cohort) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, existing := range r.byID {
		if existing.Number == c.Number {
			return ErrDuplicate
		}
	}
	r.byID[c.ID] = *c
	return nil
}

func (r *MemoryCohortRepo) SetSize(_ context.Context, id string, size int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.byID[id]
	if !ok {
		return sql.ErrNoRows
	}
	c.Size = size
	r.byID[id] = c
	return nil
}

func (r *MemoryCohortRepo) Delete(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.byID, id)
	return nil
}

func (r *MemoryCohortRepo) GetByID(_ context.Context, id string) (*entity.Cohort, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.byID[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return &c, nil
}

func (r *MemoryCohortRepo) GetByNumber(_ context.Context, number int) (*entity.Cohort, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, c := range r.byID {
		if c.Number == number {
			return &c, nil
		}
	}
	return nil, sql.ErrNoRows
}

func (r *MemoryCohortRepo) List(_ context.Context) ([]*entity.Cohort, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*entity.Cohort, 0, len(r.byID))
	for _, c := range r.byID {
		c := c
		out = append(out, &c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Number < out[j].Number })
	return out, nil
}
