package repo

import (
	"context"
	"database/sql"
	"sort"
	"sync"
	"time"

	"github.com/ovaphlow/pitchfork/service-attendance-go/internal/attendance/entity"
)

// MemoryLedgerRepo keeps ledgers in process memory with the same
// compare-and-swap semantics as LedgerRepo. Ledgers are copied on the way in
// and out so callers never share state with the store.
type MemoryLedgerRepo struct {
	mu       sync.RWMutex
	byCohort map[string]*entity.Ledger
}

func NewMemoryLedgerRepo() *MemoryLedgerRepo {
	return &MemoryLedgerRepo{byCohort: map[string]*entity.Ledger{}}
}

func (r *MemoryLedgerRepo) Create(_ context.Context, l *entity.Ledger) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.byCohort[l.CohortID]; ok {
		return ErrDuplicate
	}
	if l.Version == 0 {
		l.Version = 1
	}
	r.byCohort[l.CohortID] = l.Clone()
	return nil
}

func (r *MemoryLedgerRepo) GetByCohort(_ context.Context, cohortID string) (*entity.Ledger, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	l, ok := r.byCohort[cohortID]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return l.Clone(), nil
}

func (r *MemoryLedgerRepo) ListByStudent(_ context.Context, studentID string) ([]*entity.Ledger, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []*entity.Ledger
	for _, l := range r.byCohort {
		if l.HasStudent(studentID) {
			out = append(out, l.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (r *MemoryLedgerRepo) Save(_ context.Context, l *entity.Ledger, expected int64) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	cur, ok := r.byCohort[l.CohortID]
	if !ok || cur.ID != l.ID {
		return false, sql.ErrNoRows
	}
	if cur.Version != expected {
		return false, nil
	}
	l.Version = expected + 1
	l.UpdatedAt = time.Now().UTC()
	r.byCohort[l.CohortID] = l.Clone()
	return true, nil
}
