package student

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/ovaphlow/pitchfork/service-attendance-go/internal/auth"
)

func TestHandlerSessionFlow(t *testing.T) {
	svc := newTestService()
	code := enroll(t, svc)
	logger := zap.NewNop().Sugar()
	tokens := auth.NewTokenService([]byte("secret"), "test", time.Hour)
	h := NewHandler(svc, tokens, logger)
	protect := auth.Middleware(tokens, svc, logger)

	mux := http.NewServeMux()
	mux.HandleFunc("POST /onboard", h.Onboard)
	mux.HandleFunc("POST /login", h.Login)
	mux.Handle("GET /me", protect(http.HandlerFunc(h.Me)))
	mux.Handle("POST /logout", protect(http.HandlerFunc(h.Logout)))

	do := func(method, path, body, token string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(method, path, strings.NewReader(body))
		if token != "" {
			req.Header.Set("Authorization", "Bearer "+token)
		}
		rec := httptest.NewRecorder()
		mux.ServeHTTP(rec, req)
		return rec
	}
	tokenOf := func(rec *httptest.ResponseRecorder) string {
		var body struct {
			Data TokenResponse `json:"data"`
		}
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
		require.NotEmpty(t, body.Data.Token)
		return body.Data.Token
	}

	rec := do(http.MethodPost, "/onboard", `{"email":"ada@example.com","admissionCode":"`+code+`","firstName":"Ada","lastName":"Obi",
		"password":"supersecret","confirmPassword":"different"}`, "")
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(http.MethodPost, "/onboard", `{"email":"ada@example.com","admissionCode":"`+code+`","firstName":"Ada","lastName":"Obi",
		"password":"supersecret","confirmPassword":"supersecret"}`, "")
	require.Equal(t, http.StatusCreated, rec.Code)
	require.NotContains(t, rec.Body.String(), "password_hash")
	first := tokenOf(rec)

	rec = do(http.MethodPost, "/login", `{"email":"ada@example.com","password":"nope"}`, "")
	require.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = do(http.MethodPost, "/login", `{"email":"ada@example.com","password":"supersecret"}`, "")
	require.Equal(t, http.StatusOK, rec.Code)
	second := tokenOf(rec)

	rec = do(http.MethodGet, "/me", "", second)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), `"email":"ada@example.com"`)

	require.Equal(t, http.StatusOK, do(http.MethodPost, "/logout", "", first).Code)

	// logout revokes every token issued before it
	require.Equal(t, http.StatusUnauthorized, do(http.MethodGet, "/me", "", first).Code)
	require.Equal(t, http.StatusUnauthorized, do(http.MethodGet, "/me", "", second).Code)
}

func TestHandlerSelfService(t *testing.T) {
	svc := newTestService()
	st := onboarded(t, svc)
	logger := zap.NewNop().Sugar()
	tokens := auth.NewTokenService([]byte("secret"), "test", time.Hour)
	h := NewHandler(svc, tokens, logger)
	protect := auth.Middleware(tokens, svc, logger)

	mux := http.NewServeMux()
	mux.HandleFunc("POST /login", h.Login)
	mux.Handle("GET /me", protect(http.HandlerFunc(h.Me)))
	mux.Handle("PATCH /me", protect(http.HandlerFunc(h.UpdateMe)))
	mux.Handle("PATCH /me/password", protect(http.HandlerFunc(h.UpdatePassword)))
	mux.Handle("DELETE /me", protect(http.HandlerFunc(h.DeleteMe)))

	do := func(method, path, body, token string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(method, path, strings.NewReader(body))
		if token != "" {
			req.Header.Set("Authorization", "Bearer "+token)
		}
		rec := httptest.NewRecorder()
		mux.ServeHTTP(rec, req)
		return rec
	}
	old, _, err := tokens.Issue(st.ID, st.TokenVersion)
	require.NoError(t, err)

	rec := do(http.MethodPatch, "/me", `{"firstName":"Adaeze","password":"x"}`, old)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.Contains(t, rec.Body.String(), "not for password updates")

	rec = do(http.MethodPatch, "/me", `{"firstName":"Adaeze"}`, old)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), `"first_name":"Adaeze"`)
	require.Contains(t, rec.Body.String(), `"last_name":"Obi"`)

	rec = do(http.MethodPatch, "/me/password", `{"currentPassword":"wrong","password":"brand-new-pw","confirmPassword":"brand-new-pw"}`, old)
	require.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = do(http.MethodPatch, "/me/password", `{"currentPassword":"supersecret","password":"brand-new-pw","confirmPassword":"brand-new-pw"}`, old)
	require.Equal(t, http.StatusOK, rec.Code)
	var body struct {
		Data TokenResponse `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	fresh := body.Data.Token
	require.NotEmpty(t, fresh)

	// the change revokes the token it was made with
	require.Equal(t, http.StatusUnauthorized, do(http.MethodGet, "/me", "", old).Code)
	require.Equal(t, http.StatusOK, do(http.MethodGet, "/me", "", fresh).Code)

	require.Equal(t, http.StatusNoContent, do(http.MethodDelete, "/me", "", fresh).Code)
	require.Equal(t, http.StatusUnauthorized, do(http.MethodGet, "/me", "", fresh).Code)
	require.Equal(t, http.StatusUnauthorized, do(http.MethodPost, "/login", `{"email":"ada@example.com","password":"brand-new-pw"}`, "").Code)
}
