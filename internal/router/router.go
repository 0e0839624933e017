package router

import (
	"context"
	"net/http"
	"time"

	"github.com/rs/cors"
	"go.uber.org/zap"

	"github.com/ovaphlow/pitchfork/service-attendance-go/internal/attendance"
	"github.com/ovaphlow/pitchfork/service-attendance-go/internal/cohort"
	"github.com/ovaphlow/pitchfork/service-attendance-go/internal/scheme"
	"github.com/ovaphlow/pitchfork/service-attendance-go/internal/student"
	"github.com/ovaphlow/pitchfork/service-attendance-go/internal/verification"
	"github.com/ovaphlow/pitchfork/service-attendance-go/pkg/utilities"
)

// loggingResponseWriter records the status and body size of a response.
type loggingResponseWriter struct {
	http.ResponseWriter
	status int
	size   int
}

func (lrw *loggingResponseWriter) WriteHeader(code int) {
	lrw.status = code
	lrw.ResponseWriter.WriteHeader(code)
}

func (lrw *loggingResponseWriter) Write(b []byte) (int, error) {
	if lrw.status == 0 {
		lrw.status = http.StatusOK
	}
	n, err := lrw.ResponseWriter.Write(b)
	lrw.size += n
	return n, err
}

// LoggingMiddleware logs each request at debug level, and at warn level
// when the handler answered with a server error.
func LoggingMiddleware(logger *zap.SugaredLogger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			lrw := &loggingResponseWriter{ResponseWriter: w}
			next.ServeHTTP(lrw, r)
			status := lrw.status
			if status == 0 {
				status = http.StatusOK
			}
			log := logger.Debugw
			if status >= http.StatusInternalServerError {
				log = logger.Warnw
			}
			log("http request",
				"method", r.Method,
				"path", r.URL.Path,
				"remote", clientIP(r),
				"status", status,
				"duration_ms", float64(time.Since(start).Microseconds())/1000.0,
				"size", lrw.size,
			)
		})
	}
}

// SecurityHeadersMiddleware sets conservative security headers on every
// response. The API serves JSON only, so the CSP denies everything.
func SecurityHeadersMiddleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			h := w.Header()
			h.Set("X-Content-Type-Options", "nosniff")
			h.Set("X-Frame-Options", "DENY")
			h.Set("Referrer-Policy", "no-referrer")
			h.Set("Permissions-Policy", "camera=(), microphone=(), geolocation=()")
			h.Set("Cross-Origin-Resource-Policy", "same-site")
			if h.Get("Content-Security-Policy") == "" {
				h.Set("Content-Security-Policy", "default-src 'none'; frame-ancestors 'none'")
			}
			if r.TLS != nil {
				h.Set("Strict-Transport-Security", "max-age=15552000; includeSubDomains")
			}
			next.ServeHTTP(w, r)
		})
	}
}

// Deps are the feature handlers mounted by RegisterRoutes.
type Deps struct {
	Logger *zap.SugaredLogger

	// Ready reports whether backing stores are reachable; nil means always ready.
	Ready func(ctx context.Context) error

	Auth         func(http.Handler) http.Handler
	Attendance   *attendance.Handler
	Verification *verification.Handler
	Cohorts      *cohort.Handler
	Students     *student.Handler
	Schemes      *scheme.Handler

	CORSOrigins []string

	// zero values fall back to DefaultRateLimit and StrictRateLimit
	RateLimit       RateLimit
	StrictRateLimit RateLimit
}

const prefix = "/api/v1"

// RegisterRoutes mounts every feature under /api/v1 on a standard library
// ServeMux and wraps it in the shared middleware chain.
func RegisterRoutes(d Deps) http.Handler {
	logger := d.Logger
	if d.RateLimit.Burst == 0 {
		d.RateLimit = DefaultRateLimit
	}
	if d.StrictRateLimit.Burst == 0 {
		d.StrictRateLimit = StrictRateLimit
	}
	strict := RateLimitMiddleware(d.StrictRateLimit)
	mux := http.NewServeMux()

	mux.HandleFunc("GET "+prefix+"/health", func(w http.ResponseWriter, r *http.Request) {
		if d.Ready != nil {
			ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
			defer cancel()
			if err := d.Ready(ctx); err != nil {
				logger.Warnw("health check failed", "err", err)
				utilities.Fail(w, http.StatusServiceUnavailable, "unavailable")
				return
			}
		}
		utilities.Success(w, http.StatusOK, map[string]any{"message": "ok"})
	})

	// attendance
	mux.Handle("POST "+prefix+"/attendance/register-face", d.Auth(http.HandlerFunc(d.Verification.Register)))
	mux.Handle("POST "+prefix+"/attendance/verify-face", strict(http.HandlerFunc(d.Verification.Verify)))
	mux.HandleFunc("GET "+prefix+"/attendance", d.Attendance.Cohort)
	mux.HandleFunc("GET "+prefix+"/attendance/class-day", d.Attendance.ClassDay)
	mux.HandleFunc("GET "+prefix+"/attendance/student", d.Attendance.Student)

	// cohorts
	mux.HandleFunc("POST "+prefix+"/cohorts", d.Cohorts.Create)
	mux.HandleFunc("GET "+prefix+"/cohorts", d.Cohorts.List)
	mux.HandleFunc("GET "+prefix+"/cohorts/{id}", d.Cohorts.Get)

	// students
	mux.HandleFunc("POST "+prefix+"/students/onboard", d.Students.Onboard)
	mux.Handle("POST "+prefix+"/students/login", strict(http.HandlerFunc(d.Students.Login)))
	mux.HandleFunc("GET "+prefix+"/students", d.Students.List)
	mux.Handle("GET "+prefix+"/students/me", d.Auth(http.HandlerFunc(d.Students.Me)))
	mux.Handle("PATCH "+prefix+"/students/me", d.Auth(http.HandlerFunc(d.Students.UpdateMe)))
	mux.Handle("PATCH "+prefix+"/students/me/password", d.Auth(http.HandlerFunc(d.Students.UpdatePassword)))
	mux.Handle("DELETE "+prefix+"/students/me", d.Auth(http.HandlerFunc(d.Students.DeleteMe)))
	mux.Handle("POST "+prefix+"/students/logout", d.Auth(http.HandlerFunc(d.Students.Logout)))

	// schemes
	mux.HandleFunc("GET "+prefix+"/schemes", d.Schemes.List)
	mux.HandleFunc("GET "+prefix+"/schemes/{cohortNumber}", d.Schemes.Get)
	mux.HandleFunc("POST "+prefix+"/schemes/{cohortNumber}/entries", d.Schemes.AddEntry)
	mux.HandleFunc("DELETE "+prefix+"/schemes/{cohortNumber}/tracks/{track}", d.Schemes.ClearTrack)

	c := cors.New(cors.Options{
		AllowedOrigins:   d.CORSOrigins,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodPatch, http.MethodDelete, http.MethodOptions},
		AllowedHeaders:   []string{"Authorization", "Content-Type"},
		AllowCredentials: !allowsAny(d.CORSOrigins),
		MaxAge:           600,
	})

	// logging -> security headers -> cors -> rate limit -> mux
	var handler http.Handler = mux
	handler = RateLimitMiddleware(d.RateLimit)(handler)
	handler = c.Handler(handler)
	handler = SecurityHeadersMiddleware()(handler)
	handler = LoggingMiddleware(logger)(handler)
	return handler
}

func allowsAny(origins []string) bool {
	for _, o := range origins {
		if o == "*" {
			return true
		}
	}
	return false
}
