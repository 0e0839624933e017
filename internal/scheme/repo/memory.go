package repo

import (
	"context"
	"database/sql"
	"sort"
	"sync"

	"github.com/ovaphlow/pitchfork/service-attendance-go/internal/scheme/entity"
)

// MemoryRepo mirrors Repo in process memory.
type MemoryRepo struct {
	mu       sync.RWMutex
	byNumber map[int]*entity.Scheme
}

func NewMemoryRepo() *MemoryRepo {
	return &MemoryRepo{byNumber: map[int]*entity.Scheme{}}
}

func (r *MemoryRepo) Create(_ context.Context, s *entity.Scheme) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.byNumber[s.CohortNumber]; ok {
		return ErrDuplicate
	}
	if s.Version == 0 {
		s.Version = 1
	}
	r.byNumber[s.CohortNumber] = s.Clone()
	return nil
}

func (r *MemoryRepo) GetByCohortNumber(_ context.Context, number int) (*entity.Scheme, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.byNumber[number]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return s.Clone(), nil
}

func (r *MemoryRepo) List(_ context.Context) ([]*entity.Scheme, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*entity.Scheme, 0, len(r.byNumber))
	for _, s := range r.byNumber {
		out = append(out, s.Clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CohortNumber < out[j].CohortNumber })
	return out, nil
}

func (r *MemoryRepo) Update(_ context.Context, s *entity.Scheme, expected int64) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	cur, ok := r.byNumber[s.CohortNumber]
	if !ok || cur.ID != s.ID || cur.Version != expected {
		return 0, nil
	}
	r.byNumber[s.CohortNumber] = s.Clone()
	return 1, nil
}

func (r *MemoryRepo) Delete(_ context.Context, number int) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.byNumber[number]; !ok {
		return 0, nil
	}
	delete(r.byNumber, number)
	return 1, nil
}
