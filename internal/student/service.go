package student

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"database/sql"
	"encoding/hex"
	"errors"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/ovaphlow/pitchfork/service-attendance-go/internal/student/entity"
	"github.com/ovaphlow/pitchfork/service-attendance-go/internal/student/repo"
	"github.com/ovaphlow/pitchfork/service-attendance-go/pkg/utilities"
)

// PasswordHasher hashes and checks student passwords.
type PasswordHasher interface {
	Hash(pw string) (string, error)
	Verify(hash, pw string) bool
	NeedsRehash(hash string) bool
}

// BcryptHasher implementation.
type BcryptHasher struct{ Cost int }

func (b BcryptHasher) Hash(pw string) (string, error) {
	cost := b.Cost
	if cost == 0 {
		cost = bcrypt.DefaultCost
	}
	h, err := bcrypt.GenerateFromPassword([]byte(pw), cost)
	if err != nil {
		return "", err
	}
	return string(h), nil
}

func (b BcryptHasher) Verify(hash, pw string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(pw)) == nil
}

// NeedsRehash reports whether hash was made with a cost other than b.Cost.
func (b BcryptHasher) NeedsRehash(hash string) bool {
	want := b.Cost
	if want == 0 {
		want = bcrypt.DefaultCost
	}
	cost, err := bcrypt.Cost([]byte(hash))
	return err != nil || cost != want
}

// Store is the student persistence contract. Not-found is sql.ErrNoRows.
type Store interface {
	Create(ctx context.Context, s *entity.Student) error
	GetByID(ctx context.Context, id string) (*entity.Student, error)
	GetByEmail(ctx context.Context, email string) (*entity.Student, error)
	List(ctx context.Context, cohortID string) ([]*entity.Student, error)
	CompleteOnboarding(ctx context.Context, id string, o entity.Onboarding) (bool, error)
	UpdatePasswordHash(ctx context.Context, id, hash string) error
	UpdateProfile(ctx context.Context, id string, p entity.Profile) error
	SetStatus(ctx context.Context, id, status string) error
	Delete(ctx context.Context, id string) error
	BumpTokenVersion(ctx context.Context, id string) (int64, error)
}

var (
	ErrNotFound             = errors.New("student not found")
	ErrEmailExists          = errors.New("a student with this email already exists")
	ErrNotInvited           = errors.New("you have not been invited to this cohort, please contact admin")
	ErrAlreadyOnboarded     = errors.New("account already created, proceed to login")
	ErrInvalidAdmissionCode = errors.New("invalid admission code")
	ErrBadCredentials       = errors.New("incorrect email or password")
	ErrWrongPassword        = errors.New("your current password is wrong")
)

// Service orchestrates student enrolment, onboarding and authentication.
type Service struct {
	repo   Store
	hasher PasswordHasher
	logger *zap.SugaredLogger
}

func NewService(r Store, hasher PasswordHasher, logger *zap.SugaredLogger) *Service {
	if hasher == nil {
		hasher = BcryptHasher{Cost: 12}
	}
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &Service{repo: r, hasher: hasher, logger: logger}
}

// NewStudent is one roster row.
type NewStudent struct {
	CohortID     string
	CohortNumber int
	FirstName    string
	LastName     string
	Email        string
	Stack        string
	Gender       string
}

// Enroll creates a not-yet-onboarded student with a fresh admission code.
func (s *Service) Enroll(ctx context.Context, ns NewStudent) (*entity.Student, error) {
	code, err := admissionCode()
	if err != nil {
		return nil, err
	}
	now := time.Now().UTC()
	st := &entity.Student{
		ID:            utilities.NewID(),
		CohortID:      ns.CohortID,
		CohortNumber:  ns.CohortNumber,
		FirstName:     strings.TrimSpace(ns.FirstName),
		LastName:      strings.TrimSpace(ns.LastName),
		Email:         normalizeEmail(ns.Email),
		AdmissionCode: code,
		Stack:         ns.Stack,
		Gender:        ns.Gender,
		Status:        entity.StatusActive,
		TokenVersion:  1,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if err := s.repo.Create(ctx, st); err != nil {
		if errors.Is(err, repo.ErrDuplicate) {
			return nil, ErrEmailExists
		}
		return nil, err
	}
	return st, nil
}

// OnboardInput is what a student submits with the admission code received by mail.
type OnboardInput struct {
	Email         string
	AdmissionCode string
	FirstName     string
	LastName      string
	Stack         string
	Gender        string
	Password      string
}

// Onboard completes the account of an invited student.
func (s *Service) Onboard(ctx context.Context, in OnboardInput) (*entity.Student, error) {
	st, err := s.repo.GetByEmail(ctx, normalizeEmail(in.Email))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotInvited
		}
		return nil, err
	}
	if st.Onboarded {
		return nil, ErrAlreadyOnboarded
	}
	if subtle.ConstantTimeCompare([]byte(st.AdmissionCode), []byte(strings.TrimSpace(in.AdmissionCode))) != 1 {
		return nil, ErrInvalidAdmissionCode
	}
	hash, err := s.hasher.Hash(in.Password)
	if err != nil {
		return nil, err
	}
	o := entity.Onboarding{
		FirstName:    firstNonEmpty(in.FirstName, st.FirstName),
		LastName:     firstNonEmpty(in.LastName, st.LastName),
		Stack:        firstNonEmpty(in.Stack, st.Stack),
		Gender:       firstNonEmpty(in.Gender, st.Gender),
		PasswordHash: hash,
	}
	ok, err := s.repo.CompleteOnboarding(ctx, st.ID, o)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrAlreadyOnboarded
	}
	s.logger.Infow("student onboarded", "student_id", st.ID, "cohort", st.CohortNumber)
	return s.Get(ctx, st.ID)
}

// Login checks email and password of an onboarded student.
func (s *Service) Login(ctx context.Context, email, password string) (*entity.Student, error) {
	st, err := s.repo.GetByEmail(ctx, normalizeEmail(email))
	if err != nil {
		// same answer as a wrong password
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrBadCredentials
		}
		return nil, err
	}
	if !st.Onboarded || !st.Active() || st.PasswordHash == "" || !s.hasher.Verify(st.PasswordHash, password) {
		return nil, ErrBadCredentials
	}
	if s.hasher.NeedsRehash(st.PasswordHash) {
		if h, err := s.hasher.Hash(password); err == nil {
			if err := s.repo.UpdatePasswordHash(ctx, st.ID, h); err != nil {
				s.logger.Warnw("password rehash failed", "student_id", st.ID, "err", err)
			} else {
				st.PasswordHash = h
			}
		}
	}
	return st, nil
}

// Logout invalidates every token issued so far.
func (s *Service) Logout(ctx context.Context, id string) error {
	if _, err := s.repo.BumpTokenVersion(ctx, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return ErrNotFound
		}
		return err
	}
	return nil
}

// UpdatePassword replaces the password after checking the current one and
// revokes every token issued before. The returned student carries the new
// token version.
func (s *Service) UpdatePassword(ctx context.Context, id, current, next string) (*entity.Student, error) {
	st, err := s.activeStudent(ctx, id)
	if err != nil {
		return nil, err
	}
	if st.PasswordHash == "" || !s.hasher.Verify(st.PasswordHash, current) {
		return nil, ErrWrongPassword
	}
	hash, err := s.hasher.Hash(next)
	if err != nil {
		return nil, err
	}
	if err := s.repo.UpdatePasswordHash(ctx, id, hash); err != nil {
		return nil, err
	}
	v, err := s.repo.BumpTokenVersion(ctx, id)
	if err != nil {
		return nil, err
	}
	st.PasswordHash = hash
	st.TokenVersion = v
	s.logger.Infow("password changed", "student_id", id)
	return st, nil
}

// UpdateProfile changes name and gender. Blank fields keep their value.
func (s *Service) UpdateProfile(ctx context.Context, id string, p entity.Profile) (*entity.Student, error) {
	st, err := s.activeStudent(ctx, id)
	if err != nil {
		return nil, err
	}
	p = entity.Profile{
		FirstName: firstNonEmpty(p.FirstName, st.FirstName),
		LastName:  firstNonEmpty(p.LastName, st.LastName),
		Gender:    firstNonEmpty(p.Gender, st.Gender),
	}
	if err := s.repo.UpdateProfile(ctx, id, p); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return s.Get(ctx, id)
}

// Deactivate soft-deletes the account: the record stays for attendance
// history, but login and existing tokens stop working.
func (s *Service) Deactivate(ctx context.Context, id string) error {
	if err := s.repo.SetStatus(ctx, id, entity.StatusInactive); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return ErrNotFound
		}
		return err
	}
	if _, err := s.repo.BumpTokenVersion(ctx, id); err != nil {
		return err
	}
	s.logger.Infow("student deactivated", "student_id", id)
	return nil
}

// Remove deletes an enrolment outright. Cohort creation uses it to undo
// students it enrolled before a later step failed.
func (s *Service) Remove(ctx context.Context, id string) error {
	if err := s.repo.Delete(ctx, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return ErrNotFound
		}
		return err
	}
	return nil
}

func (s *Service) activeStudent(ctx context.Context, id string) (*entity.Student, error) {
	st, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if !st.Active() {
		return nil, ErrNotFound
	}
	return st, nil
}

func (s *Service) Get(ctx context.Context, id string) (*entity.Student, error) {
	st, err := s.repo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return st, nil
}

func (s *Service) List(ctx context.Context, cohortID string) ([]*entity.Student, error) {
	return s.repo.List(ctx, cohortID)
}

// TokenVersion implements auth.VersionLookup. Deactivated students have none.
func (s *Service) TokenVersion(ctx context.Context, id string) (int64, error) {
	st, err := s.activeStudent(ctx, id)
	if err != nil {
		return 0, err
	}
	return st.TokenVersion, nil
}

// admissionCode is 4 random bytes in hex.
func admissionCode() (string, error) {
	b := make([]byte, 4)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}

func normalizeEmail(e string) string { return strings.ToLower(strings.TrimSpace(e)) }

func firstNonEmpty(a, b string) string {
	if strings.TrimSpace(a) != "" {
		return strings.TrimSpace(a)
	}
	return b
}
