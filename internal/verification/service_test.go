package verification

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/ovaphlow/pitchfork/service-attendance-go/internal/attendance"
	attendanceentity "github.com/ovaphlow/pitchfork/service-attendance-go/internal/attendance/entity"
	attendancerepo "github.com/ovaphlow/pitchfork/service-attendance-go/internal/attendance/repo"
	"github.com/ovaphlow/pitchfork/service-attendance-go/internal/biometric"
	"github.com/ovaphlow/pitchfork/service-attendance-go/internal/student"
	studententity "github.com/ovaphlow/pitchfork/service-attendance-go/internal/student/entity"
	studentrepo "github.com/ovaphlow/pitchfork/service-attendance-go/internal/student/repo"
)

type fixture struct {
	svc       *Service
	students  *studentrepo.MemoryStudentRepo
	ledgers   *attendancerepo.MemoryLedgerRepo
	subjectID string
	now       time.Time
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()
	students := studentrepo.NewMemoryStudentRepo()
	ledgers := attendancerepo.NewMemoryLedgerRepo()

	enrolled, err := student.NewService(students, student.BcryptHasher{Cost: bcrypt.MinCost}, nil).Enroll(ctx, student.NewStudent{
		CohortID: "c1", CohortNumber: 1, FirstName: "Ada", LastName: "Obi", Email: "ada@example.com",
	})
	require.NoError(t, err)

	att := attendance.NewService(ledgers, students, nil)
	_, err = att.InitializeLedger(ctx, "c1",
		time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC), time.Date(2024, 1, 5, 0, 0, 0, 0, time.UTC),
		[]string{enrolled.ID})
	require.NoError(t, err)

	c, err := biometric.NewCipher([]byte("0123456789abcdef0123456789abcdef"), 16)
	require.NoError(t, err)

	now := time.Date(2024, 1, 1, 9, 15, 0, 0, time.UTC)
	svc := NewService(students, att, c, biometric.NewScorer(biometric.DefaultMatchThreshold), nil)
	svc.Now = func() time.Time { return now }
	return &fixture{svc: svc, students: students, ledgers: ledgers, subjectID: enrolled.ID, now: now}
}

func (f *fixture) entry(t *testing.T, day int) attendanceentity.StudentAttendance {
	t.Helper()
	l, err := f.ledgers.GetByCohort(context.Background(), "c1")
	require.NoError(t, err)
	return *l.ClassDay(day).Entry(f.subjectID)
}

func TestVerifyAndMarkEndToEnd(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	require.NoError(t, f.svc.RegisterTemplate(ctx, EnrollRequest{SubjectID: f.subjectID, Descriptor: biometric.FeatureVector{0.1, 0.2, 0.3}}))

	st, err := f.students.GetByID(ctx, f.subjectID)
	require.NoError(t, err)
	require.True(t, st.HasTemplate())
	require.NotContains(t, st.Template.Ciphertext, "0.1")

	res, err := f.svc.VerifyAndMark(ctx, VerifyRequest{SubjectID: f.subjectID, Descriptor: biometric.FeatureVector{0.1, 0.2, 0.31}, ClassDay: 1})
	require.NoError(t, err)
	require.Equal(t, "Ada Obi", res.DisplayName)
	require.Equal(t, 20, res.Score)
	require.True(t, res.CheckInTime.Equal(f.now))
	require.InDelta(t, 0.01, res.Distance, 1e-9)

	e := f.entry(t, 1)
	require.Equal(t, attendanceentity.StatusPresent, e.Status)
	require.Equal(t, 20, e.Score)
	require.True(t, e.CheckInTime.Equal(f.now))

	_, err = f.svc.VerifyAndMark(ctx, VerifyRequest{SubjectID: f.subjectID, Descriptor: biometric.FeatureVector{0.1, 0.2, 0.3}, ClassDay: 1})
	require.ErrorIs(t, err, attendance.ErrAlreadyPresent)
	require.Equal(t, KindConflict, KindOf(err))
	require.True(t, f.entry(t, 1).CheckInTime.Equal(f.now))
}

func TestVerifyMismatchLeavesLedgerUntouched(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	require.NoError(t, f.svc.RegisterTemplate(ctx, EnrollRequest{SubjectID: f.subjectID, Descriptor: biometric.FeatureVector{0.1, 0.2, 0.3}}))

	_, err := f.svc.VerifyAndMark(ctx, VerifyRequest{SubjectID: f.subjectID, Descriptor: biometric.FeatureVector{0.9, 0.8, 0.7}, ClassDay: 1})
	require.ErrorIs(t, err, ErrFaceMismatch)
	require.Equal(t, KindSecurityFailure, KindOf(err))

	_, err = f.svc.VerifyAndMark(ctx, VerifyRequest{SubjectID: f.subjectID, Descriptor: biometric.FeatureVector{0.8, 0.2, 0.3}, ClassDay: 1})
	require.ErrorIs(t, err, ErrFaceMismatch)

	e := f.entry(t, 1)
	require.Equal(t, attendanceentity.StatusAbsent, e.Status)
	require.Zero(t, e.Score)
	require.Nil(t, e.CheckInTime)
}

func TestVerifyDimensionMismatch(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	require.NoError(t, f.svc.RegisterTemplate(ctx, EnrollRequest{SubjectID: f.subjectID, Descriptor: biometric.FeatureVector{0.1, 0.2, 0.3}}))

	_, err := f.svc.VerifyAndMark(ctx, VerifyRequest{SubjectID: f.subjectID, Descriptor: biometric.FeatureVector{0.1, 0.2}, ClassDay: 1})
	require.ErrorIs(t, err, biometric.ErrDimensionMismatch)
	require.Equal(t, KindInvalid, KindOf(err))
	require.Equal(t, attendanceentity.StatusAbsent, f.entry(t, 1).Status)
}

func TestVerifyLookupFailures(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	probe := biometric.FeatureVector{0.1, 0.2, 0.3}

	_, err := f.svc.VerifyAndMark(ctx, VerifyRequest{SubjectID: "missing", Descriptor: probe, ClassDay: 1})
	require.ErrorIs(t, err, ErrSubjectNotFound)

	_, err = f.svc.VerifyAndMark(ctx, VerifyRequest{SubjectID: f.subjectID, Descriptor: probe, ClassDay: 1})
	require.ErrorIs(t, err, ErrTemplateNotRegistered)
	require.Equal(t, KindNotFound, KindOf(err))

	require.NoError(t, f.svc.RegisterTemplate(ctx, EnrollRequest{SubjectID: f.subjectID, Descriptor: probe}))
	_, err = f.svc.VerifyAndMark(ctx, VerifyRequest{SubjectID: f.subjectID, Descriptor: probe, ClassDay: 99})
	require.ErrorIs(t, err, attendance.ErrClassDayNotFound)
	require.Equal(t, KindNotFound, KindOf(err))
}

func TestVerifyCorruptTemplate(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	nonce, err := biometric.GenerateNonce(16)
	require.NoError(t, err)
	ok, err := f.students.SaveTemplate(ctx, f.subjectID, studententity.Template{Ciphertext: "AAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAA", InitVector: string(nonce)})
	require.NoError(t, err)
	require.True(t, ok)

	_, err = f.svc.VerifyAndMark(ctx, VerifyRequest{SubjectID: f.subjectID, Descriptor: biometric.FeatureVector{0.1}, ClassDay: 1})
	require.ErrorIs(t, err, ErrTemplateCorrupt)
	require.ErrorIs(t, err, biometric.ErrDecryption)
	require.Equal(t, KindSecurityFailure, KindOf(err))
	require.Equal(t, attendanceentity.StatusAbsent, f.entry(t, 1).Status)
}

func TestRegisterTemplateIsExclusive(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	require.NoError(t, f.svc.RegisterTemplate(ctx, EnrollRequest{SubjectID: f.subjectID, Descriptor: biometric.FeatureVector{0.1, 0.2, 0.3}}))
	original, err := f.students.GetByID(ctx, f.subjectID)
	require.NoError(t, err)

	err = f.svc.RegisterTemplate(ctx, EnrollRequest{SubjectID: f.subjectID, Descriptor: biometric.FeatureVector{0.4, 0.5, 0.6}})
	require.ErrorIs(t, err, ErrAlreadyRegistered)
	require.Equal(t, KindConflict, KindOf(err))

	after, err := f.students.GetByID(ctx, f.subjectID)
	require.NoError(t, err)
	require.Equal(t, *original.Template, *after.Template)

	require.ErrorIs(t, f.svc.RegisterTemplate(ctx, EnrollRequest{SubjectID: "missing", Descriptor: biometric.FeatureVector{1}}), ErrSubjectNotFound)
	require.ErrorIs(t, f.svc.RegisterTemplate(ctx, EnrollRequest{SubjectID: f.subjectID, Descriptor: nil}), biometric.ErrMalformedDescriptor)
}

func TestRegisterTemplateConcurrent(t *testing.T) {
	f := newFixture(t)
	const n = 8
	var wg sync.WaitGroup
	var wins, conflicts atomic.Int32
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			err := f.svc.RegisterTemplate(context.Background(), EnrollRequest{SubjectID: f.subjectID, Descriptor: biometric.FeatureVector{float64(i), 0.2, 0.3}})
			switch {
			case err == nil:
				wins.Add(1)
			case KindOf(err) == KindConflict:
				conflicts.Add(1)
			}
		}(i)
	}
	wg.Wait()
	require.Equal(t, int32(1), wins.Load())
	require.Equal(t, int32(n-1), conflicts.Load())
}

func TestKindOfUnknown(t *testing.T) {
	require.Equal(t, KindInternal, KindOf(context.DeadlineExceeded))
	require.Equal(t, "internal", KindInternal.String())
}
