package repo

import (
	"context"
	"errors"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/ovaphlow/pitchfork/service-attendance-go/internal/cohort/entity"
)

// ErrDuplicate is returned by Create when the cohort number is taken.
var ErrDuplicate = errors.New("cohort already exists")

type CohortRepo struct {
	db *sqlx.DB
}

func NewCohortRepo(db *sqlx.DB) *CohortRepo { return &CohortRepo{db: db} }

// EnsureTable creates the cohorts table if not exists (idempotent).
func (r *CohortRepo) EnsureTable(ctx context.Context) error {
	const ddl = `
CREATE TABLE IF NOT EXISTS cohorts (
  id varchar(32) PRIMARY KEY,
  number INT NOT NULL UNIQUE,
  start_date DATE NOT NULL,
  end_date DATE NOT NULL,
  size INT NOT NULL DEFAULT 0,
  created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
`
	_, err := r.db.ExecContext(ctx, ddl)
	return err
}

func (r *CohortRepo) Create(ctx context.Context, c *entity.Cohort) error {
	_, err := r.db.NamedExecContext(ctx, `INSERT INTO cohorts (id, number, start_date, end_date, size, created_at)
		VALUES (:id, :number, :start_date, :end_date, :size, :created_at)`, c)
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code == "23505" {
		return ErrDuplicate
	}
	return err
}

func (r *CohortRepo) SetSize(ctx context.Context, id string, size int) error {
	_, err := r.db.ExecContext(ctx, `UPDATE cohorts SET size=$2 WHERE id=$1`, id, size)
	return err
}

// GetByID returns the cohort or sql.ErrNoRows.
// Delete removes a cohort row. It is only used to undo a failed creation.
func (r *CohortRepo) Delete(ctx context.Context, id string) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM cohorts WHERE id=$1`, id)
	return err
}

func (r *CohortRepo) GetByID(ctx context.Context, id string) (*entity.Cohort, error) {
	var c entity.Cohort
	if err := r.db.GetContext(ctx, &c, `SELECT id, number, start_date, end_date, size, created_at FROM cohorts WHERE id=$1`, id); err != nil {
		return nil, err
	}
	return &c, nil
}

// GetByNumber returns the cohort or sql.ErrNoRows.
func (r *CohortRepo) GetByNumber(ctx context.Context, number int) (*entity.Cohort, error) {
	var c entity.Cohort
	if err := r.db.GetContext(ctx, &c, `SELECT id, number, start_date, end_date, size, created_at FROM cohorts WHERE number=$1`, number); err != nil {
		return nil, err
	}
	return &c, nil
}

func (r *CohortRepo) List(ctx context.Context) ([]*entity.Cohort, error) {
	var out []*entity.Cohort
	err := r.db.SelectContext(ctx, &out, `SELECT id, number, start_date, end_date, size, created_at FROM cohorts ORDER BY number`)
	return out, err
}
