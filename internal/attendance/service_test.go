package attendance

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/ovaphlow/pitchfork/service-attendance-go/internal/attendance/entity"
	"github.com/ovaphlow/pitchfork/service-attendance-go/internal/attendance/repo"
)

type staticNames map[string]string

func (n staticNames) DisplayNames(_ context.Context, ids []string) (map[string]string, error) {
	out := map[string]string{}
	for _, id := range ids {
		if name, ok := n[id]; ok {
			out[id] = name
		}
	}
	return out, nil
}

// 2024-01-01 is a Monday; the first week has class days on 1, 3 and 5 Jan.
var (
	weekStart = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	weekEnd   = time.Date(2024, 1, 7, 0, 0, 0, 0, time.UTC)
)

func newTestService(t *testing.T, students ...string) (*Service, *repo.MemoryLedgerRepo) {
	t.Helper()
	store := repo.NewMemoryLedgerRepo()
	svc := NewService(store, staticNames{"s1": "Ada Obi", "s2": "Tunde Bello"}, nil)
	_, err := svc.InitializeLedger(context.Background(), "c1", weekStart, weekEnd, students)
	require.NoError(t, err)
	return svc, store
}

func entryOf(t *testing.T, store *repo.MemoryLedgerRepo, day int, studentID string) entity.StudentAttendance {
	t.Helper()
	l, err := store.GetByCohort(context.Background(), "c1")
	require.NoError(t, err)
	cd := l.ClassDay(day)
	require.NotNil(t, cd)
	e := cd.Entry(studentID)
	require.NotNil(t, e)
	return *e
}

func TestSchedule(t *testing.T) {
	days := Schedule(weekStart, time.Date(2024, 1, 14, 0, 0, 0, 0, time.UTC))
	require.Len(t, days, 6)
	want := []int{1, 3, 5, 8, 10, 12}
	for i, d := range days {
		require.Equal(t, want[i], d.Day())
	}

	tuesdays := Schedule(weekStart, weekEnd, time.Tuesday)
	require.Len(t, tuesdays, 1)
	require.Equal(t, 2, tuesdays[0].Day())

	require.Empty(t, Schedule(weekEnd, weekStart))
}

func TestInitializeLedger(t *testing.T) {
	svc, store := newTestService(t, "s1", "s2")

	l, err := store.GetByCohort(context.Background(), "c1")
	require.NoError(t, err)
	require.Len(t, l.ClassDays, 3)
	for i, cd := range l.ClassDays {
		require.Equal(t, i+1, cd.Day)
		require.Len(t, cd.Students, 2)
		require.Equal(t, "s1", cd.Students[0].StudentID)
		require.Equal(t, "s2", cd.Students[1].StudentID)
		for _, st := range cd.Students {
			require.Equal(t, entity.StatusAbsent, st.Status)
			require.Zero(t, st.Score)
			require.Nil(t, st.CheckInTime)
		}
	}

	_, err = svc.InitializeLedger(context.Background(), "c1", weekStart, weekEnd, nil)
	require.ErrorIs(t, err, ErrLedgerExists)
}

func TestMarkPresentIsIdempotent(t *testing.T) {
	svc, store := newTestService(t, "s1", "s2")
	ctx := context.Background()
	first := time.Date(2024, 1, 1, 9, 0, 0, 0, time.UTC)

	got, err := svc.MarkPresent(ctx, "c1", 1, "s1", first)
	require.NoError(t, err)
	require.Equal(t, entity.StatusPresent, got.Status)
	require.Equal(t, DefaultCheckInScore, got.Score)
	require.True(t, got.CheckInTime.Equal(first))

	_, err = svc.MarkPresent(ctx, "c1", 1, "s1", first.Add(time.Hour))
	require.ErrorIs(t, err, ErrAlreadyPresent)

	e := entryOf(t, store, 1, "s1")
	require.Equal(t, entity.StatusPresent, e.Status)
	require.Equal(t, 20, e.Score)
	require.True(t, e.CheckInTime.Equal(first))

	other := entryOf(t, store, 1, "s2")
	require.Equal(t, entity.StatusAbsent, other.Status)
	require.Equal(t, entity.StatusAbsent, entryOf(t, store, 2, "s1").Status)
}

func TestMarkPresentNotFound(t *testing.T) {
	svc, _ := newTestService(t, "s1")
	ctx := context.Background()
	now := time.Now()

	_, err := svc.MarkPresent(ctx, "missing", 1, "s1", now)
	require.ErrorIs(t, err, ErrLedgerNotFound)

	_, err = svc.MarkPresent(ctx, "c1", 42, "s1", now)
	require.ErrorIs(t, err, ErrClassDayNotFound)

	_, err = svc.MarkPresent(ctx, "c1", 1, "nobody", now)
	require.ErrorIs(t, err, ErrStudentNotInRecord)
}

func TestMarkPresentHonoursCancellation(t *testing.T) {
	svc, store := newTestService(t, "s1")
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := svc.MarkPresent(ctx, "c1", 1, "s1", time.Now())
	require.ErrorIs(t, err, context.Canceled)
	require.Equal(t, entity.StatusAbsent, entryOf(t, store, 1, "s1").Status)
}

func TestMarkPresentConcurrentDistinctStudents(t *testing.T) {
	const n = 16
	ids := make([]string, n)
	for i := range ids {
		ids[i] = fmt.Sprintf("s%02d", i)
	}
	svc, store := newTestService(t, ids...)
	svc.MaxSaveAttempts = n

	var wg sync.WaitGroup
	errs := make(chan error, n)
	for _, id := range ids {
		wg.Add(1)
		go func(id string) {
			defer wg.Done()
			_, err := svc.MarkPresent(context.Background(), "c1", 1, id, time.Now())
			errs <- err
		}(id)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}
	for _, id := range ids {
		e := entryOf(t, store, 1, id)
		require.Equal(t, entity.StatusPresent, e.Status, id)
		require.Equal(t, 20, e.Score, id)
	}
}

func TestMarkPresentConcurrentSameStudent(t *testing.T) {
	const n = 8
	svc, store := newTestService(t, "s1")
	svc.MaxSaveAttempts = n

	var wg sync.WaitGroup
	results := make(chan error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.MarkPresent(context.Background(), "c1", 1, "s1", time.Now())
			results <- err
		}()
	}
	wg.Wait()
	close(results)

	var wins, already int
	for err := range results {
		switch {
		case err == nil:
			wins++
		case errors.Is(err, ErrAlreadyPresent):
			already++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	require.Equal(t, 1, wins)
	require.Equal(t, n-1, already)
	require.Equal(t, 20, entryOf(t, store, 1, "s1").Score)
}

func TestReadViews(t *testing.T) {
	svc, _ := newTestService(t, "s1", "s2")
	ctx := context.Background()
	at := time.Date(2024, 1, 3, 9, 30, 0, 0, time.UTC)
	_, err := svc.MarkPresent(ctx, "c1", 2, "s2", at)
	require.NoError(t, err)

	all, err := svc.CohortAttendance(ctx, "c1")
	require.NoError(t, err)
	require.Len(t, all.ClassDays, 3)
	require.Equal(t, "Ada Obi", all.ClassDays[0].Students[0].Name)

	day, err := svc.ClassDayAttendance(ctx, "c1", 2)
	require.NoError(t, err)
	require.Equal(t, 2, day.Day)
	require.Equal(t, "Tunde Bello", day.Students[1].Name)
	require.Equal(t, entity.StatusPresent, day.Students[1].Status)

	_, err = svc.ClassDayAttendance(ctx, "c1", 9)
	require.ErrorIs(t, err, ErrClassDayNotFound)

	history, err := svc.StudentHistory(ctx, "s2")
	require.NoError(t, err)
	require.Len(t, history, 3)
	require.Equal(t, entity.StatusAbsent, history[0].Status)
	require.Equal(t, entity.StatusPresent, history[1].Status)
	require.Equal(t, 20, history[1].Score)

	_, err = svc.StudentHistory(ctx, "nobody")
	require.ErrorIs(t, err, ErrNoHistory)

	_, err = svc.CohortAttendance(ctx, "missing")
	require.ErrorIs(t, err, ErrLedgerNotFound)
}

func TestReadViewsDoNotMutate(t *testing.T) {
	svc, store := newTestService(t, "s1")
	ctx := context.Background()
	before, err := store.GetByCohort(ctx, "c1")
	require.NoError(t, err)

	view, err := svc.ClassDayAttendance(ctx, "c1", 1)
	require.NoError(t, err)
	view.Students[0].Status = entity.StatusPresent

	after, err := store.GetByCohort(ctx, "c1")
	require.NoError(t, err)
	require.Equal(t, before.Version, after.Version)
	require.Equal(t, entity.StatusAbsent, after.ClassDays[0].Students[0].Status)
}
