package repo

import (
	"context"
	"database/sql"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/ovaphlow/pitchfork/service-attendance-go/internal/student/entity"
)

// MemoryStudentRepo mirrors StudentRepo in process memory.
type MemoryStudentRepo struct {
	mu   sync.RWMutex
	byID map[string]*entity.Student
}

func NewMemoryStudentRepo() *MemoryStudentRepo {
	return &MemoryStudentRepo{byID: map[string]*entity.Student{}}
}

func clone(s *entity.Student) *entity.Student {
	out := *s
	if s.Template != nil {
		t := *s.Template
		out.Template = &t
	}
	return &out
}

func (r *MemoryStudentRepo) Create(_ context.Context, s *entity.Student) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, cur := range r.byID {
		if cur.ID == s.ID || strings.EqualFold(cur.Email, s.Email) || cur.AdmissionCode == s.AdmissionCode {
			return ErrDuplicate
		}
	}
	r.byID[s.ID] = clone(s)
	return nil
}

func (r *MemoryStudentRepo) GetByID(_ context.Context, id string) (*entity.Student, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.byID[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return clone(s), nil
}

func (r *MemoryStudentRepo) GetByEmail(_ context.Context, email string) (*entity.Student, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, s := range r.byID {
		if strings.EqualFold(s.Email, email) {
			return clone(s), nil
		}
	}
	return nil, sql.ErrNoRows
}

func (r *MemoryStudentRepo) List(_ context.Context, cohortID string) ([]*entity.Student, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*entity.Student, 0, len(r.byID))
	for _, s := range r.byID {
		if cohortID == "" || s.CohortID == cohortID {
			out = append(out, clone(s))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (r *MemoryStudentRepo) SaveTemplate(_ context.Context, id string, t entity.Template) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.byID[id]
	if !ok {
		return false, sql.ErrNoRows
	}
	if s.HasTemplate() {
		return false, nil
	}
	s.Template = &t
	s.UpdatedAt = time.Now().UTC()
	return true, nil
}

func (r *MemoryStudentRepo) CompleteOnboarding(_ context.Context, id string, o entity.Onboarding) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.byID[id]
	if !ok {
		return false, sql.ErrNoRows
	}
	if s.Onboarded {
		return false, nil
	}
	s.FirstName, s.LastName, s.Stack, s.Gender = o.FirstName, o.LastName, o.Stack, o.Gender
	s.PasswordHash = o.PasswordHash
	s.Onboarded = true
	s.UpdatedAt = time.Now().UTC()
	return true, nil
}

func (r *MemoryStudentRepo) UpdatePasswordHash(_ context.Context, id, hash string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.byID[id]
	if !ok {
		return sql.ErrNoRows
	}
	s.PasswordHash = hash
	s.UpdatedAt = time.Now().UTC()
	return nil
}

func (r *MemoryStudentRepo) UpdateProfile(_ context.Context, id string, p entity.Profile) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.byID[id]
	if !ok {
		return sql.ErrNoRows
	}
	s.FirstName, s.LastName, s.Gender = p.FirstName, p.LastName, p.Gender
	s.UpdatedAt = time.Now().UTC()
	return nil
}

func (r *MemoryStudentRepo) SetStatus(_ context.Context, id, status string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.byID[id]
	if !ok {
		return sql.ErrNoRows
	}
	s.Status = status
	s.UpdatedAt = time.Now().UTC()
	return nil
}

func (r *MemoryStudentRepo) Delete(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.byID[id]; !ok {
		return sql.ErrNoRows
	}
	delete(r.byID, id)
	return nil
}

func (r *MemoryStudentRepo) BumpTokenVersion(_ context.Context, id string) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.byID[id]
	if !ok {
		return 0, sql.ErrNoRows
	}
	s.TokenVersion++
	return s.TokenVersion, nil
}

func (r *MemoryStudentRepo) DisplayNames(_ context.Context, ids []string) (map[string]string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make(map[string]string, len(ids))
	for _, id := range ids {
		if s, ok := r.byID[id]; ok {
			out[id] = s.DisplayName()
		}
	}
	return out, nil
}
