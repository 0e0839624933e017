package attendance

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/ovaphlow/pitchfork/service-attendance-go/internal/attendance/entity"
	"github.com/ovaphlow/pitchfork/service-attendance-go/internal/attendance/repo"
	"github.com/ovaphlow/pitchfork/service-attendance-go/pkg/utilities"
)

var (
	ErrLedgerNotFound     = errors.New("attendance ledger not found")
	ErrLedgerExists       = errors.New("attendance ledger already exists for cohort")
	ErrClassDayNotFound   = errors.New("class day not found in attendance sheet")
	ErrStudentNotInRecord = errors.New("student not found in attendance entry")
	ErrAlreadyPresent     = errors.New("student is already marked present for this class day")
	ErrNoHistory          = errors.New("no attendance records found for this student")
	ErrVersionConflict    = errors.New("attendance ledger is being updated concurrently")
)

const (
	DefaultCheckInScore    = 20
	DefaultMaxSaveAttempts = 8
)

// DefaultWeekdays are the class days of a cohort week.
var DefaultWeekdays = []time.Weekday{time.Monday, time.Wednesday, time.Friday}

// Store is the ledger persistence contract. Not-found is sql.ErrNoRows.
type Store interface {
	Create(ctx context.Context, l *entity.Ledger) error
	GetByCohort(ctx context.Context, cohortID string) (*entity.Ledger, error)
	ListByStudent(ctx context.Context, studentID string) ([]*entity.Ledger, error)
	Save(ctx context.Context, l *entity.Ledger, expected int64) (bool, error)
}

// NameResolver maps student ids to display names for read views.
type NameResolver interface {
	DisplayNames(ctx context.Context, ids []string) (map[string]string, error)
}

// Service owns the attendance ledgers.
type Service struct {
	store  Store
	names  NameResolver
	logger *zap.SugaredLogger

	CheckInScore    int
	MaxSaveAttempts int
}

func NewService(store Store, names NameResolver, logger *zap.SugaredLogger) *Service {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &Service{
		store:           store,
		names:           names,
		logger:          logger,
		CheckInScore:    DefaultCheckInScore,
		MaxSaveAttempts: DefaultMaxSaveAttempts,
	}
}

// Schedule lists the dates between start and end (inclusive, by calendar
// day) that fall on one of weekdays, DefaultWeekdays when none are given.
func Schedule(start, end time.Time, weekdays ...time.Weekday) []time.Time {
	if len(weekdays) == 0 {
		weekdays = DefaultWeekdays
	}
	on := map[time.Weekday]bool{}
	for _, d := range weekdays {
		on[d] = true
	}
	first := time.Date(start.Year(), start.Month(), start.Day(), 0, 0, 0, 0, start.Location())
	last := time.Date(end.Year(), end.Month(), end.Day(), 0, 0, 0, 0, start.Location())
	var out []time.Time
	for d := first; !d.After(last); d = d.AddDate(0, 0, 1) {
		if on[d.Weekday()] {
			out = append(out, d)
		}
	}
	return out
}

// InitializeLedger creates the cohort's sheet with every student Absent on
// every scheduled class day.
func (s *Service) InitializeLedger(ctx context.Context, cohortID string, start, end time.Time, studentIDs []string) (*entity.Ledger, error) {
	now := time.Now().UTC()
	l := &entity.Ledger{
		ID:        utilities.NewID(),
		CohortID:  cohortID,
		Version:   1,
		CreatedAt: now,
		UpdatedAt: now,
	}
	for i, date := range Schedule(start, end) {
		cd := entity.ClassDay{Day: i + 1, Date: date, Students: make([]entity.StudentAttendance, 0, len(studentIDs))}
		for _, id := range studentIDs {
			cd.Students = append(cd.Students, entity.StudentAttendance{StudentID: id, Status: entity.StatusAbsent})
		}
		l.ClassDays = append(l.ClassDays, cd)
	}
	if err := s.store.Create(ctx, l); err != nil {
		if errors.Is(err, repo.ErrDuplicate) {
			return nil, ErrLedgerExists
		}
		return nil, err
	}
	s.logger.Infow("attendance ledger initialized", "cohort_id", cohortID, "class_days", len(l.ClassDays), "students", len(studentIDs))
	return l, nil
}

// MarkPresent moves the student's entry for day from Absent to Present. The
// ledger is written with a version check; when another writer wins, the
// ledger is reloaded and the transition re-evaluated, so a concurrent check-in
// of the same student ends in ErrAlreadyPresent and one of a different
// student is kept.
func (s *Service) MarkPresent(ctx context.Context, cohortID string, day int, studentID string, at time.Time) (*entity.StudentAttendance, error) {
	attempts := s.MaxSaveAttempts
	if attempts <= 0 {
		attempts = DefaultMaxSaveAttempts
	}
	for i := 0; i < attempts; i++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		l, err := s.load(ctx, cohortID)
		if err != nil {
			return nil, err
		}
		cd := l.ClassDay(day)
		if cd == nil {
			return nil, ErrClassDayNotFound
		}
		entry := cd.Entry(studentID)
		if entry == nil {
			return nil, ErrStudentNotInRecord
		}
		if entry.Status == entity.StatusPresent {
			return nil, ErrAlreadyPresent
		}
		checkIn := at.UTC()
		entry.Status = entity.StatusPresent
		entry.CheckInTime = &checkIn
		entry.Score = s.CheckInScore

		ok, err := s.store.Save(ctx, l, l.Version)
		if err != nil {
			return nil, fmt.Errorf("save ledger %s: %w", l.ID, err)
		}
		if ok {
			out := *entry
			return &out, nil
		}
		s.logger.Debugw("ledger version conflict, retrying", "cohort_id", cohortID, "day", day, "attempt", i+1)
	}
	return nil, ErrVersionConflict
}

func (s *Service) load(ctx context.Context, cohortID string) (*entity.Ledger, error) {
	l, err := s.store.GetByCohort(ctx, cohortID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrLedgerNotFound
		}
		return nil, err
	}
	return l, nil
}

// CohortAttendance returns the whole sheet of a cohort with names.
func (s *Service) CohortAttendance(ctx context.Context, cohortID string) (*entity.LedgerView, error) {
	l, err := s.load(ctx, cohortID)
	if err != nil {
		return nil, err
	}
	names, err := s.resolve(ctx, l.ClassDays...)
	if err != nil {
		return nil, err
	}
	out := &entity.LedgerView{ID: l.ID, CohortID: l.CohortID, ClassDays: make([]entity.ClassDayView, 0, len(l.ClassDays))}
	for _, cd := range l.ClassDays {
		out.ClassDays = append(out.ClassDays, classDayView(cd, names))
	}
	return out, nil
}

// ClassDayAttendance returns one class day of a cohort with names.
func (s *Service) ClassDayAttendance(ctx context.Context, cohortID string, day int) (*entity.ClassDayView, error) {
	l, err := s.load(ctx, cohortID)
	if err != nil {
		return nil, err
	}
	cd := l.ClassDay(day)
	if cd == nil {
		return nil, ErrClassDayNotFound
	}
	names, err := s.resolve(ctx, *cd)
	if err != nil {
		return nil, err
	}
	v := classDayView(*cd, names)
	return &v, nil
}

// StudentHistory flattens every class day the student appears in.
func (s *Service) StudentHistory(ctx context.Context, studentID string) ([]entity.HistoryEntry, error) {
	ledgers, err := s.store.ListByStudent(ctx, studentID)
	if err != nil {
		return nil, err
	}
	var out []entity.HistoryEntry
	for _, l := range ledgers {
		for i := range l.ClassDays {
			cd := &l.ClassDays[i]
			e := cd.Entry(studentID)
			if e == nil {
				continue
			}
			out = append(out, entity.HistoryEntry{
				CohortID:    l.CohortID,
				ClassDay:    cd.Day,
				Date:        cd.Date,
				Status:      e.Status,
				Score:       e.Score,
				CheckInTime: e.CheckInTime,
			})
		}
	}
	if len(out) == 0 {
		return nil, ErrNoHistory
	}
	return out, nil
}

func (s *Service) resolve(ctx context.Context, days ...entity.ClassDay) (map[string]string, error) {
	if s.names == nil {
		return map[string]string{}, nil
	}
	seen := map[string]bool{}
	var ids []string
	for _, cd := range days {
		for _, st := range cd.Students {
			if !seen[st.StudentID] {
				seen[st.StudentID] = true
				ids = append(ids, st.StudentID)
			}
		}
	}
	if len(ids) == 0 {
		return map[string]string{}, nil
	}
	return s.names.DisplayNames(ctx, ids)
}

func classDayView(cd entity.ClassDay, names map[string]string) entity.ClassDayView {
	v := entity.ClassDayView{Day: cd.Day, Date: cd.Date, Students: make([]entity.AttendanceEntry, 0, len(cd.Students))}
	for _, st := range cd.Students {
		v.Students = append(v.Students, entity.AttendanceEntry{
			StudentID:   st.StudentID,
			Name:        names[st.StudentID],
			Status:      st.Status,
			CheckInTime: st.CheckInTime,
			Score:       st.Score,
		})
	}
	return v
}
