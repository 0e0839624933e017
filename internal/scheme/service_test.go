package scheme

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/ovaphlow/pitchfork/service-attendance-go/internal/scheme/entity"
	"github.com/ovaphlow/pitchfork/service-attendance-go/internal/scheme/repo"
)

func TestCreateAndAddEntry(t *testing.T) {
	ctx := context.Background()
	svc := NewService(repo.NewMemoryRepo(), nil)

	sc, err := svc.Create(ctx, "c1", 4)
	require.NoError(t, err)
	require.Len(t, sc.Tracks, 3)
	require.Empty(t, sc.Tracks[entity.TrackBackend])

	_, err = svc.Create(ctx, "c1", 4)
	require.ErrorIs(t, err, ErrExists)

	_, err = svc.AddEntry(ctx, 4, entity.TrackBackend, entity.Entry{Day: 2, Subject: "HTTP"})
	require.NoError(t, err)
	sc, err = svc.AddEntry(ctx, 4, entity.TrackBackend, entity.Entry{Day: 1, Subject: "Go basics"})
	require.NoError(t, err)
	require.Equal(t, int64(3), sc.Version)
	require.Equal(t, []int{1, 2}, []int{sc.Tracks[entity.TrackBackend][0].Day, sc.Tracks[entity.TrackBackend][1].Day})

	sc, err = svc.AddEntry(ctx, 4, entity.TrackBackend, entity.Entry{Day: 1, Subject: "Go tooling"})
	require.NoError(t, err)
	require.Len(t, sc.Tracks[entity.TrackBackend], 2)
	require.Equal(t, "Go tooling", sc.Tracks[entity.TrackBackend][0].Subject)

	_, err = svc.AddEntry(ctx, 4, "devops", entity.Entry{Day: 1, Subject: "x"})
	require.ErrorIs(t, err, ErrUnknownTrack)
	_, err = svc.AddEntry(ctx, 4, entity.TrackFrontend, entity.Entry{Day: 0, Subject: "x"})
	require.ErrorIs(t, err, ErrInvalidEntry)
	_, err = svc.AddEntry(ctx, 9, entity.TrackFrontend, entity.Entry{Day: 1, Subject: "x"})
	require.ErrorIs(t, err, ErrNotFound)
}

// staleStore hands out an old version on every read.
type staleStore struct {
	*repo.MemoryRepo
	stale *entity.Scheme
}

func (s staleStore) GetByCohortNumber(context.Context, int) (*entity.Scheme, error) {
	return s.stale.Clone(), nil
}

func TestAddEntryVersionConflict(t *testing.T) {
	ctx := context.Background()
	mem := repo.NewMemoryRepo()
	svc := NewService(mem, nil)
	sc, err := svc.Create(ctx, "c1", 1)
	require.NoError(t, err)
	stale := sc.Clone()
	_, err = svc.AddEntry(ctx, 1, entity.TrackFrontend, entity.Entry{Day: 1, Subject: "HTML"})
	require.NoError(t, err)

	_, err = NewService(staleStore{mem, stale}, nil).AddEntry(ctx, 1, entity.TrackFrontend, entity.Entry{Day: 2, Subject: "CSS"})
	require.ErrorIs(t, err, ErrVersionConflict)

	got, err := svc.GetByCohortNumber(ctx, 1)
	require.NoError(t, err)
	require.Len(t, got.Tracks[entity.TrackFrontend], 1)
}

func TestListAndDiscard(t *testing.T) {
	ctx := context.Background()
	svc := NewService(repo.NewMemoryRepo(), nil)
	for _, n := range []int{3, 1, 2} {
		_, err := svc.Create(ctx, "c", n)
		require.NoError(t, err)
	}
	list, err := svc.List(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, list[0].CohortNumber)

	require.NoError(t, svc.Discard(ctx, 2))
	require.ErrorIs(t, svc.Discard(ctx, 2), ErrNotFound)
	list, err = svc.List(ctx)
	require.NoError(t, err)
	require.Len(t, list, 2)
}

func TestClearTrackKeepsScheme(t *testing.T) {
	ctx := context.Background()
	svc := NewService(repo.NewMemoryRepo(), nil)
	_, err := svc.Create(ctx, "c1", 5)
	require.NoError(t, err)
	_, err = svc.AddEntry(ctx, 5, entity.TrackBackend, entity.Entry{Day: 1, Subject: "Go"})
	require.NoError(t, err)
	_, err = svc.AddEntry(ctx, 5, entity.TrackFrontend, entity.Entry{Day: 1, Subject: "HTML"})
	require.NoError(t, err)

	sc, err := svc.ClearTrack(ctx, 5, entity.TrackBackend)
	require.NoError(t, err)
	require.Empty(t, sc.Tracks[entity.TrackBackend])
	require.Len(t, sc.Tracks[entity.TrackFrontend], 1)
	require.Equal(t, int64(3), sc.Version)

	// the scheme survives, so the track can be refilled
	sc, err = svc.AddEntry(ctx, 5, entity.TrackBackend, entity.Entry{Day: 1, Subject: "Go again"})
	require.NoError(t, err)
	require.Equal(t, "Go again", sc.Tracks[entity.TrackBackend][0].Subject)

	_, err = svc.ClearTrack(ctx, 5, "devops")
	require.ErrorIs(t, err, ErrUnknownTrack)
	_, err = svc.ClearTrack(ctx, 6, entity.TrackBackend)
	require.ErrorIs(t, err, ErrNotFound)
}

func TestTrackLookup(t *testing.T) {
	ctx := context.Background()
	svc := NewService(repo.NewMemoryRepo(), nil)
	_, err := svc.Create(ctx, "c1", 2)
	require.NoError(t, err)
	_, err = svc.AddEntry(ctx, 2, entity.TrackProductDesign, entity.Entry{Day: 1, Subject: "Figma"})
	require.NoError(t, err)

	entries, err := svc.Track(ctx, 2, entity.TrackProductDesign)
	require.NoError(t, err)
	require.Equal(t, []entity.Entry{{Day: 1, Subject: "Figma"}}, entries)

	entries, err = svc.Track(ctx, 2, entity.TrackFrontend)
	require.NoError(t, err)
	require.Empty(t, entries)

	_, err = svc.Track(ctx, 2, "ops")
	require.ErrorIs(t, err, ErrUnknownTrack)
}

func TestHandlerRoutes(t *testing.T) {
	svc := NewService(repo.NewMemoryRepo(), nil)
	_, err := svc.Create(context.Background(), "c1", 7)
	require.NoError(t, err)
	h := NewHandler(svc, zap.NewNop().Sugar())
	mux := http.NewServeMux()
	mux.HandleFunc("GET /schemes/{cohortNumber}", h.Get)
	mux.HandleFunc("POST /schemes/{cohortNumber}/entries", h.AddEntry)
	mux.HandleFunc("DELETE /schemes/{cohortNumber}/tracks/{track}", h.ClearTrack)

	do := func(method, path, body string) *httptest.ResponseRecorder {
		rec := httptest.NewRecorder()
		mux.ServeHTTP(rec, httptest.NewRequest(method, path, strings.NewReader(body)))
		return rec
	}

	require.Equal(t, http.StatusOK, do(http.MethodGet, "/schemes/7", "").Code)
	require.Equal(t, http.StatusNotFound, do(http.MethodGet, "/schemes/8", "").Code)
	require.Equal(t, http.StatusBadRequest, do(http.MethodGet, "/schemes/abc", "").Code)

	rec := do(http.MethodPost, "/schemes/7/entries", `{"track":"backend","day":1,"subject":"Go"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), `"subject":"Go"`)
	require.Equal(t, http.StatusBadRequest, do(http.MethodPost, "/schemes/7/entries", `{"track":"ops","day":1,"subject":"Go"}`).Code)

	rec = do(http.MethodGet, "/schemes/7?track=backend", "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), `"entries":[{"day":1,"subject":"Go"`)
	require.Equal(t, http.StatusBadRequest, do(http.MethodGet, "/schemes/7?track=ops", "").Code)

	rec = do(http.MethodDelete, "/schemes/7/tracks/backend", "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), `"backend":[]`)
	require.Equal(t, http.StatusBadRequest, do(http.MethodDelete, "/schemes/7/tracks/ops", "").Code)
	require.Equal(t, http.StatusNotFound, do(http.MethodDelete, "/schemes/8/tracks/backend", "").Code)

	// still there after the clear
	require.Equal(t, http.StatusOK, do(http.MethodPost, "/schemes/7/entries", `{"track":"backend","day":2,"subject":"SQL"}`).Code)
}
