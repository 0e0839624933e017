package auth

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestIssueAndParse(t *testing.T) {
	svc := NewTokenService([]byte("secret"), "test", time.Hour)

	tok, exp, err := svc.Issue("s1", 3)
	require.NoError(t, err)
	require.WithinDuration(t, time.Now().Add(time.Hour), exp, 5*time.Second)

	claims, err := svc.Parse(tok)
	require.NoError(t, err)
	require.Equal(t, "s1", claims.Subject)
	require.Equal(t, int64(3), claims.Version)
}

func TestParseRejects(t *testing.T) {
	svc := NewTokenService([]byte("secret"), "test", time.Hour)
	tok, _, err := svc.Issue("s1", 1)
	require.NoError(t, err)

	other := NewTokenService([]byte("other-secret"), "test", time.Hour)
	_, err = other.Parse(tok)
	require.ErrorIs(t, err, ErrInvalidToken)

	wrongIssuer := NewTokenService([]byte("secret"), "someone-else", time.Hour)
	_, err = wrongIssuer.Parse(tok)
	require.ErrorIs(t, err, ErrInvalidToken)

	expired := NewTokenService([]byte("secret"), "test", time.Hour)
	expired.now = func() time.Time { return time.Now().Add(-2 * time.Hour) }
	old, _, err := expired.Issue("s1", 1)
	require.NoError(t, err)
	_, err = svc.Parse(old)
	require.ErrorIs(t, err, ErrInvalidToken)

	_, err = svc.Parse("not-a-token")
	require.ErrorIs(t, err, ErrInvalidToken)
}

type versions map[string]int64

func (v versions) TokenVersion(_ context.Context, id string) (int64, error) {
	n, ok := v[id]
	if !ok {
		return 0, errors.New("not found")
	}
	return n, nil
}

func TestMiddleware(t *testing.T) {
	svc := NewTokenService([]byte("secret"), "test", time.Hour)
	current := versions{"s1": 2}
	h := Middleware(svc, current, zap.NewNop().Sugar())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id, ok := StudentID(r.Context())
		require.True(t, ok)
		_, _ = w.Write([]byte(id))
	}))

	do := func(header string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodGet, "/me", nil)
		if header != "" {
			req.Header.Set("Authorization", header)
		}
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		return rec
	}

	require.Equal(t, http.StatusUnauthorized, do("").Code)
	require.Equal(t, http.StatusUnauthorized, do("Basic abc").Code)

	stale, _, err := svc.Issue("s1", 1)
	require.NoError(t, err)
	require.Equal(t, http.StatusUnauthorized, do("Bearer "+stale).Code)

	fresh, _, err := svc.Issue("s1", 2)
	require.NoError(t, err)
	rec := do("Bearer " + fresh)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "s1", rec.Body.String())
}
