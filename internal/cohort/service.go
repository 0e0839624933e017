// Package cohort creates training intakes and fans a new cohort out to its
// students, scheme of work and attendance ledger.
package cohort

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	attendanceentity "github.com/ovaphlow/pitchfork/service-attendance-go/internal/attendance/entity"
	"github.com/ovaphlow/pitchfork/service-attendance-go/internal/cohort/entity"
	"github.com/ovaphlow/pitchfork/service-attendance-go/internal/cohort/repo"
	schemeentity "github.com/ovaphlow/pitchfork/service-attendance-go/internal/scheme/entity"
	"github.com/ovaphlow/pitchfork/service-attendance-go/internal/student"
	studententity "github.com/ovaphlow/pitchfork/service-attendance-go/internal/student/entity"
	"github.com/ovaphlow/pitchfork/service-attendance-go/pkg/utilities"
)

var (
	ErrNotFound      = errors.New("cohort not found")
	ErrCohortExists  = errors.New("cohort already exists")
	ErrInvalidCohort = errors.New("invalid cohort")
)

// Store is the cohort persistence contract. Not-found is sql.ErrNoRows.
type Store interface {
	Create(ctx context.Context, c *entity.Cohort) error
	SetSize(ctx context.Context, id string, size int) error
	Delete(ctx context.Context, id string) error
	GetByID(ctx context.Context, id string) (*entity.Cohort, error)
	GetByNumber(ctx context.Context, number int) (*entity.Cohort, error)
	List(ctx context.Context) ([]*entity.Cohort, error)
}

// Enroller creates students, and removes them again when the cohort they
// were enrolled into cannot be completed.
type Enroller interface {
	Enroll(ctx context.Context, ns student.NewStudent) (*studententity.Student, error)
	Remove(ctx context.Context, id string) error
}

type SchemeCreator interface {
	Create(ctx context.Context, cohortID string, number int) (*schemeentity.Scheme, error)
	Discard(ctx context.Context, number int) error
}

type LedgerInitializer interface {
	InitializeLedger(ctx context.Context, cohortID string, start, end time.Time, studentIDs []string) (*attendanceentity.Ledger, error)
}

// RosterEntry is one invited student.
type RosterEntry struct {
	FirstName string `json:"firstName" validate:"required"`
	LastName  string `json:"lastName" validate:"required"`
	Email     string `json:"email" validate:"required,email"`
	Stack     string `json:"stack" validate:"omitempty,oneof=frontend backend product-design"`
	Gender    string `json:"gender" validate:"omitempty,oneof=male female"`
}

type NewCohort struct {
	Number    int           `json:"number" validate:"gt=0"`
	StartDate time.Time     `json:"startDate" validate:"required"`
	EndDate   time.Time     `json:"endDate" validate:"required"`
	Roster    []RosterEntry `json:"roster" validate:"dive"`
}

type CreateResult struct {
	Cohort   *entity.Cohort `json:"cohort"`
	Enrolled int            `json:"enrolled"`
	Skipped  []string       `json:"skipped,omitempty"`
}

type Service struct {
	repo     Store
	students Enroller
	schemes  SchemeCreator
	ledgers  LedgerInitializer
	notifier Notifier
	logger   *zap.SugaredLogger
}

func NewService(r Store, students Enroller, schemes SchemeCreator, ledgers LedgerInitializer, notifier Notifier, logger *zap.SugaredLogger) *Service {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	if notifier == nil {
		notifier = LogNotifier{Logger: logger}
	}
	return &Service{repo: r, students: students, schemes: schemes, ledgers: ledgers, notifier: notifier, logger: logger}
}

// Create registers the cohort, enrols every roster row, starts an empty
// scheme and initializes the attendance ledger for the enrolled students.
// Rows whose email is already taken are skipped and reported. When a step
// fails, everything written before it is undone so the same cohort can be
// submitted again; admission codes go out only once every step succeeded.
func (s *Service) Create(ctx context.Context, in NewCohort) (_ *CreateResult, err error) {
	if err := utilities.Validate(in); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidCohort, err)
	}
	if in.EndDate.Before(in.StartDate) {
		return nil, fmt.Errorf("%w: end date precedes start date", ErrInvalidCohort)
	}
	if _, err := s.repo.GetByNumber(ctx, in.Number); err == nil {
		return nil, ErrCohortExists
	} else if !errors.Is(err, sql.ErrNoRows) {
		return nil, err
	}

	c := &entity.Cohort{
		ID:        utilities.NewID(),
		Number:    in.Number,
		StartDate: in.StartDate.UTC(),
		EndDate:   in.EndDate.UTC(),
		CreatedAt: time.Now().UTC(),
	}
	if err := s.repo.Create(ctx, c); err != nil {
		if errors.Is(err, repo.ErrDuplicate) {
			return nil, ErrCohortExists
		}
		return nil, err
	}

	var undo []func(context.Context) error
	undo = append(undo, func(ctx context.Context) error { return s.repo.Delete(ctx, c.ID) })
	defer func() {
		if err != nil {
			s.rollback(ctx, c, undo)
		}
	}()

	res := &CreateResult{Cohort: c}
	var ids []string
	var invites []Invitation
	for _, row := range in.Roster {
		st, err := s.students.Enroll(ctx, student.NewStudent{
			CohortID:     c.ID,
			CohortNumber: c.Number,
			FirstName:    row.FirstName,
			LastName:     row.LastName,
			Email:        row.Email,
			Stack:        row.Stack,
			Gender:       row.Gender,
		})
		if errors.Is(err, student.ErrEmailExists) {
			s.logger.Warnw("roster row skipped", "cohort", c.Number, "email", row.Email, "err", err)
			res.Skipped = append(res.Skipped, row.Email)
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("enrol %s: %w", row.Email, err)
		}
		id := st.ID
		undo = append(undo, func(ctx context.Context) error { return s.students.Remove(ctx, id) })
		ids = append(ids, st.ID)
		invites = append(invites, Invitation{
			Email:         st.Email,
			FirstName:     st.FirstName,
			CohortNumber:  c.Number,
			AdmissionCode: st.AdmissionCode,
		})
	}
	res.Enrolled = len(ids)
	c.Size = len(ids)
	if err := s.repo.SetSize(ctx, c.ID, c.Size); err != nil {
		return nil, err
	}

	if _, err := s.schemes.Create(ctx, c.ID, c.Number); err != nil {
		return nil, fmt.Errorf("create scheme: %w", err)
	}
	undo = append(undo, func(ctx context.Context) error { return s.schemes.Discard(ctx, c.Number) })
	if _, err := s.ledgers.InitializeLedger(ctx, c.ID, c.StartDate, c.EndDate, ids); err != nil {
		return nil, fmt.Errorf("initialize attendance: %w", err)
	}

	for _, inv := range invites {
		if err := s.notifier.SendAdmissionCode(ctx, inv); err != nil {
			s.logger.Warnw("admission code not delivered", "email", inv.Email, "err", err)
		}
	}
	s.logger.Infow("cohort created", "cohort_id", c.ID, "number", c.Number, "enrolled", res.Enrolled, "skipped", len(res.Skipped))
	return res, nil
}

// rollback runs the undo steps newest first. It keeps going past a failing
// step and runs even when ctx was cancelled.
func (s *Service) rollback(ctx context.Context, c *entity.Cohort, undo []func(context.Context) error) {
	ctx = context.WithoutCancel(ctx)
	failed := 0
	for i := len(undo) - 1; i >= 0; i-- {
		if err := undo[i](ctx); err != nil {
			failed++
			s.logger.Errorw("cohort rollback step failed", "cohort_id", c.ID, "number", c.Number, "err", err)
		}
	}
	s.logger.Warnw("cohort creation rolled back", "cohort_id", c.ID, "number", c.Number, "steps", len(undo), "failed", failed)
}

func (s *Service) Get(ctx context.Context, id string) (*entity.Cohort, error) {
	c, err := s.repo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return c, nil
}

func (s *Service) List(ctx context.Context) ([]*entity.Cohort, error) {
	return s.repo.List(ctx)
}
