// Command migrate creates the service's tables and indexes. Every step is
// idempotent, so it is safe to run on each deploy.
package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"

	attendancerepo "github.com/ovaphlow/pitchfork/service-attendance-go/internal/attendance/repo"
	cohortrepo "github.com/ovaphlow/pitchfork/service-attendance-go/internal/cohort/repo"
	schemerepo "github.com/ovaphlow/pitchfork/service-attendance-go/internal/scheme/repo"
	studentrepo "github.com/ovaphlow/pitchfork/service-attendance-go/internal/student/repo"
	"github.com/ovaphlow/pitchfork/service-attendance-go/pkg/database"
	"github.com/ovaphlow/pitchfork/service-attendance-go/pkg/utilities"
)

type tableEnsurer interface {
	EnsureTable(ctx context.Context) error
}

func main() {
	_ = godotenv.Load()

	lg, err := utilities.Init(utilities.ConfigFromEnv())
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to init logger: %v\n", err)
		os.Exit(1)
	}
	defer lg.Sync()
	sugar := lg.Sugar()

	db, err := database.Connect(database.ConfigFromEnv())
	if err != nil {
		sugar.Fatalf("db connect: %v", err)
	}
	defer db.Close()

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	steps := []struct {
		name string
		repo tableEnsurer
	}{
		{"cohorts", cohortrepo.NewCohortRepo(db)},
		{"students", studentrepo.NewStudentRepo(db)},
		{"schemes", schemerepo.NewRepo(db)},
		{"attendance_ledgers", attendancerepo.NewLedgerRepo(db)},
	}
	for _, s := range steps {
		if err := s.repo.EnsureTable(ctx); err != nil {
			sugar.Fatalf("ensure %s: %v", s.name, err)
		}
		sugar.Infow("table ready", "table", s.name)
	}
	sugar.Info("migration complete")
}
