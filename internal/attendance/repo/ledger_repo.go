package repo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/ovaphlow/pitchfork/service-attendance-go/internal/attendance/entity"
)

// ErrDuplicate is returned by Create when the cohort already has a ledger.
var ErrDuplicate = errors.New("ledger already exists")

// LedgerRepo stores one attendance ledger per cohort in PostgreSQL. Class
// days live in a JSONB column so a ledger is read and written as a single
// row; Save is a compare-and-swap on the version column.
type LedgerRepo struct {
	db *sqlx.DB
}

func NewLedgerRepo(db *sqlx.DB) *LedgerRepo { return &LedgerRepo{db: db} }

// EnsureTable creates the attendance_ledgers table if not exists (idempotent).
func (r *LedgerRepo) EnsureTable(ctx context.Context) error {
	const ddl = `
CREATE TABLE IF NOT EXISTS attendance_ledgers (
  id varchar(32) PRIMARY KEY,
  cohort_id varchar(32) NOT NULL UNIQUE,
  class_days JSONB NOT NULL DEFAULT '[]'::jsonb,
  version BIGINT NOT NULL DEFAULT 1,
  created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
  updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
CREATE INDEX IF NOT EXISTS idx_attendance_ledgers_class_days ON attendance_ledgers USING GIN (class_days jsonb_path_ops);
`
	_, err := r.db.ExecContext(ctx, ddl)
	return err
}

type ledgerRow struct {
	ID        string    `db:"id"`
	CohortID  string    `db:"cohort_id"`
	ClassDays []byte    `db:"class_days"`
	Version   int64     `db:"version"`
	CreatedAt time.Time `db:"created_at"`
	UpdatedAt time.Time `db:"updated_at"`
}

func (row ledgerRow) toEntity() (*entity.Ledger, error) {
	l := &entity.Ledger{
		ID:        row.ID,
		CohortID:  row.CohortID,
		Version:   row.Version,
		CreatedAt: row.CreatedAt,
		UpdatedAt: row.UpdatedAt,
	}
	if err := json.Unmarshal(row.ClassDays, &l.ClassDays); err != nil {
		return nil, fmt.Errorf("decode class_days of ledger %s: %w", row.ID, err)
	}
	return l, nil
}

// Create inserts a new ledger. Version starts at 1.
func (r *LedgerRepo) Create(ctx context.Context, l *entity.Ledger) error {
	days, err := json.Marshal(l.ClassDays)
	if err != nil {
		return err
	}
	if l.Version == 0 {
		l.Version = 1
	}
	const q = `INSERT INTO attendance_ledgers (id, cohort_id, class_days, version, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)`
	_, err = r.db.ExecContext(ctx, q, l.ID, l.CohortID, days, l.Version, l.CreatedAt, l.UpdatedAt)
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code == "23505" {
		return ErrDuplicate
	}
	return err
}

// GetByCohort returns the cohort's ledger or sql.ErrNoRows.
func (r *LedgerRepo) GetByCohort(ctx context.Context, cohortID string) (*entity.Ledger, error) {
	const q = `SELECT id, cohort_id, class_days, version, created_at, updated_at
		FROM attendance_ledgers WHERE cohort_id=$1`
	var row ledgerRow
	if err := r.db.GetContext(ctx, &row, q, cohortID); err != nil {
		return nil, err
	}
	return row.toEntity()
}

// ListByStudent returns every ledger with at least one entry for the student.
func (r *LedgerRepo) ListByStudent(ctx context.Context, studentID string) ([]*entity.Ledger, error) {
	probe, err := json.Marshal([]map[string]any{
		{"students": []map[string]string{{"student_id": studentID}}},
	})
	if err != nil {
		return nil, err
	}
	const q = `SELECT id, cohort_id, class_days, version, created_at, updated_at
		FROM attendance_ledgers WHERE class_days @> $1::jsonb ORDER BY created_at`
	var rows []ledgerRow
	if err := r.db.SelectContext(ctx, &rows, q, string(probe)); err != nil {
		return nil, err
	}
	out := make([]*entity.Ledger, 0, len(rows))
	for _, row := range rows {
		l, err := row.toEntity()
		if err != nil {
			return nil, err
		}
		out = append(out, l)
	}
	return out, nil
}

// Save writes l if the stored version still equals expected. It reports
// false without error when another writer got there first. On success
// l.Version is advanced to the stored value.
func (r *LedgerRepo) Save(ctx context.Context, l *entity.Ledger, expected int64) (bool, error) {
	days, err := json.Marshal(l.ClassDays)
	if err != nil {
		return false, err
	}
	now := time.Now().UTC()
	const q = `UPDATE attendance_ledgers SET class_days=$3, version=version+1, updated_at=$4
		WHERE id=$1 AND version=$2`
	res, err := r.db.ExecContext(ctx, q, l.ID, expected, days, now)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	if n == 0 {
		return false, nil
	}
	l.Version = expected + 1
	l.UpdatedAt = now
	return true, nil
}
