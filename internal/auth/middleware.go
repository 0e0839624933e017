package auth

import (
	"context"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/ovaphlow/pitchfork/service-attendance-go/pkg/utilities"
)

type ctxKey struct{}

// VersionLookup returns the student's current token version.
type VersionLookup interface {
	TokenVersion(ctx context.Context, studentID string) (int64, error)
}

// Middleware rejects requests without a valid bearer token, or whose token
// was issued before the student's last logout.
func Middleware(tokens *TokenService, versions VersionLookup, logger *zap.SugaredLogger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			h := r.Header.Get("Authorization")
			if h == "" || !strings.HasPrefix(strings.ToLower(h), "bearer ") {
				utilities.Fail(w, http.StatusUnauthorized, "missing token")
				return
			}
			claims, err := tokens.Parse(strings.TrimSpace(h[len("bearer "):]))
			if err != nil {
				utilities.Fail(w, http.StatusUnauthorized, err.Error())
				return
			}
			v, err := versions.TokenVersion(r.Context(), claims.Subject)
			if err != nil || v != claims.Version {
				logger.Debugw("token rejected", "sub", claims.Subject, "err", err)
				utilities.Fail(w, http.StatusUnauthorized, ErrInvalidToken.Error())
				return
			}
			next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), ctxKey{}, claims.Subject)))
		})
	}
}

// StudentID returns the authenticated student id set by Middleware.
func StudentID(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(ctxKey{}).(string)
	return id, ok && id != ""
}
