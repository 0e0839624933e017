package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/ovaphlow/pitchfork/service-attendance-go/internal/attendance"
	attendancerepo "github.com/ovaphlow/pitchfork/service-attendance-go/internal/attendance/repo"
	"github.com/ovaphlow/pitchfork/service-attendance-go/internal/auth"
	"github.com/ovaphlow/pitchfork/service-attendance-go/internal/biometric"
	"github.com/ovaphlow/pitchfork/service-attendance-go/internal/cohort"
	cohortrepo "github.com/ovaphlow/pitchfork/service-attendance-go/internal/cohort/repo"
	"github.com/ovaphlow/pitchfork/service-attendance-go/internal/config"
	"github.com/ovaphlow/pitchfork/service-attendance-go/internal/router"
	"github.com/ovaphlow/pitchfork/service-attendance-go/internal/scheme"
	schemerepo "github.com/ovaphlow/pitchfork/service-attendance-go/internal/scheme/repo"
	"github.com/ovaphlow/pitchfork/service-attendance-go/internal/student"
	studentrepo "github.com/ovaphlow/pitchfork/service-attendance-go/internal/student/repo"
	"github.com/ovaphlow/pitchfork/service-attendance-go/internal/verification"
	"github.com/ovaphlow/pitchfork/service-attendance-go/pkg/database"
	"github.com/ovaphlow/pitchfork/service-attendance-go/pkg/utilities"
)

type stores struct {
	students studentStore
	ledgers  attendance.Store
	schemes  scheme.Store
	cohorts  cohort.Store
	ready    func(ctx context.Context) error
}

// studentStore is what the student, attendance and verification services
// need from one student repository.
type studentStore interface {
	student.Store
	attendance.NameResolver
	verification.SubjectStore
}

func postgresStores(db *sqlx.DB) stores {
	return stores{
		students: studentrepo.NewStudentRepo(db),
		ledgers:  attendancerepo.NewLedgerRepo(db),
		schemes:  schemerepo.NewRepo(db),
		cohorts:  cohortrepo.NewCohortRepo(db),
		ready:    db.PingContext,
	}
}

func memoryStores() stores {
	return stores{
		students: studentrepo.NewMemoryStudentRepo(),
		ledgers:  attendancerepo.NewMemoryLedgerRepo(),
		schemes:  schemerepo.NewMemoryRepo(),
		cohorts:  cohortrepo.NewMemoryCohortRepo(),
	}
}

func main() {
	// best-effort: without a .env the real environment is used as is
	_ = godotenv.Load()

	lg, err := utilities.Init(utilities.ConfigFromEnv())
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to init logger: %v\n", err)
		os.Exit(1)
	}
	defer lg.Sync()
	sugar := lg.Sugar()

	cfg, err := config.ConfigFromEnv()
	if err != nil {
		sugar.Fatalf("config: %v", err)
	}
	sugar.Infow("starting service-attendance-go", "config", cfg.String())

	var st stores
	switch cfg.StoreDriver {
	case "memory":
		sugar.Warn("using in-memory stores; data is lost on exit")
		st = memoryStores()
	default:
		db, err := database.Connect(database.ConfigFromEnv())
		if err != nil {
			sugar.Fatalf("db connect: %v", err)
		}
		defer db.Close()
		st = postgresStores(db)
	}

	handler, err := build(cfg, st, sugar)
	if err != nil {
		sugar.Fatalf("build: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		sugar.Infow("http server listening", "addr", cfg.HTTPAddr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			sugar.Fatalf("http server failed: %v", err)
		}
	}()

	<-ctx.Done()
	sugar.Info("shutting down")

	doneCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(doneCtx); err != nil {
		sugar.Warnf("http server shutdown failed: %v", err)
	}
	sugar.Info("goodbye")
}

func build(cfg config.Config, st stores, logger *zap.SugaredLogger) (http.Handler, error) {
	c, err := biometric.NewCipher(cfg.CipherKey, cfg.NonceLength)
	if err != nil {
		return nil, fmt.Errorf("cipher: %w", err)
	}
	tokens := auth.NewTokenService(cfg.JWTSecret, cfg.JWTIssuer, cfg.TokenTTL)

	studentSvc := student.NewService(st.students, student.BcryptHasher{Cost: cfg.BcryptCost}, logger)
	attendanceSvc := attendance.NewService(st.ledgers, st.students, logger)
	attendanceSvc.CheckInScore = cfg.CheckInScore
	schemeSvc := scheme.NewService(st.schemes, logger)
	if cfg.LogAdmissionCodes {
		logger.Warn("LOG_ADMISSION_CODES is on, admission codes are written to the log in full")
	}
	notifier := cohort.LogNotifier{Logger: logger, FullCode: cfg.LogAdmissionCodes}
	cohortSvc := cohort.NewService(st.cohorts, studentSvc, schemeSvc, attendanceSvc, notifier, logger)
	verifySvc := verification.NewService(st.students, attendanceSvc, c, biometric.NewScorer(cfg.MatchThreshold), logger)

	return router.RegisterRoutes(router.Deps{
		Logger:       logger,
		Ready:        st.ready,
		Auth:         auth.Middleware(tokens, studentSvc, logger),
		Attendance:   attendance.NewHandler(attendanceSvc, logger),
		Verification: verification.NewHandler(verifySvc, logger),
		Cohorts:      cohort.NewHandler(cohortSvc, logger),
		Students:     student.NewHandler(studentSvc, tokens, logger),
		Schemes:      scheme.NewHandler(schemeSvc, logger),
		CORSOrigins:  cfg.CORSOrigins,
	}), nil
}
