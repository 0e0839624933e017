package repo

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/ovaphlow/pitchfork/service-attendance-go/internal/scheme/entity"
)

// ErrDuplicate is returned by Create when the cohort number already has a scheme.
var ErrDuplicate = errors.New("scheme already exists")

// Repo is the repository implementation for schemes backed by PostgreSQL.
type Repo struct {
	db *sqlx.DB
}

func NewRepo(db *sqlx.DB) *Repo {
	return &Repo{db: db}
}

// EnsureTable ensures the schemes table and its index exist.
// Fields:
// - id varchar(32) PRIMARY KEY
// - cohort_number int (unique)
// - tracks jsonb, track name to ordered entries
// - version bigint, bumped on every update
func (r *Repo) EnsureTable(ctx context.Context) error {
	var tblName sql.NullString
	if err := r.db.QueryRowContext(ctx, "SELECT to_regclass('public.schemes')").Scan(&tblName); err != nil {
		return err
	}
	if !tblName.Valid {
		createTable := `CREATE TABLE schemes (
			id varchar(32) PRIMARY KEY,
			cohort_id varchar(32) NOT NULL,
			cohort_number int NOT NULL UNIQUE,
			tracks jsonb NOT NULL DEFAULT '{}'::jsonb,
			version bigint NOT NULL DEFAULT 1,
			created_at timestamptz NOT NULL DEFAULT NOW(),
			updated_at timestamptz NOT NULL DEFAULT NOW()
		)`
		if _, err := r.db.ExecContext(ctx, createTable); err != nil {
			return err
		}
	}

	var idxName sql.NullString
	if err := r.db.QueryRowContext(ctx, "SELECT to_regclass('public.idx_schemes_cohort_id')").Scan(&idxName); err != nil {
		return err
	}
	if !idxName.Valid {
		if _, err := r.db.ExecContext(ctx, `CREATE INDEX idx_schemes_cohort_id ON schemes (cohort_id)`); err != nil {
			return err
		}
	}
	return nil
}

type schemeRow struct {
	ID           string    `db:"id"`
	CohortID     string    `db:"cohort_id"`
	CohortNumber int       `db:"cohort_number"`
	Tracks       []byte    `db:"tracks"`
	Version      int64     `db:"version"`
	CreatedAt    time.Time `db:"created_at"`
	UpdatedAt    time.Time `db:"updated_at"`
}

func (row schemeRow) toEntity() (*entity.Scheme, error) {
	s := &entity.Scheme{
		ID:           row.ID,
		CohortID:     row.CohortID,
		CohortNumber: row.CohortNumber,
		Version:      row.Version,
		CreatedAt:    row.CreatedAt,
		UpdatedAt:    row.UpdatedAt,
	}
	if err := json.Unmarshal(row.Tracks, &s.Tracks); err != nil {
		return nil, fmt.Errorf("decode tracks of scheme %s: %w", row.ID, err)
	}
	return s, nil
}

const schemeColumns = `id, cohort_id, cohort_number, tracks, version, created_at, updated_at`

func (r *Repo) Create(ctx context.Context, s *entity.Scheme) error {
	tracks, err := json.Marshal(s.Tracks)
	if err != nil {
		return err
	}
	if s.Version == 0 {
		s.Version = 1
	}
	q := `INSERT INTO schemes (` + schemeColumns + `) VALUES ($1, $2, $3, $4, $5, $6, $7)`
	_, err = r.db.ExecContext(ctx, q, s.ID, s.CohortID, s.CohortNumber, tracks, s.Version, s.CreatedAt, s.UpdatedAt)
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code == "23505" {
		return ErrDuplicate
	}
	return err
}

// GetByCohortNumber returns the scheme or sql.ErrNoRows.
func (r *Repo) GetByCohortNumber(ctx context.Context, number int) (*entity.Scheme, error) {
	var row schemeRow
	if err := r.db.GetContext(ctx, &row, `SELECT `+schemeColumns+` FROM schemes WHERE cohort_number=$1`, number); err != nil {
		return nil, err
	}
	return row.toEntity()
}

func (r *Repo) List(ctx context.Context) ([]*entity.Scheme, error) {
	var rows []schemeRow
	if err := r.db.SelectContext(ctx, &rows, `SELECT `+schemeColumns+` FROM schemes ORDER BY cohort_number`); err != nil {
		return nil, err
	}
	out := make([]*entity.Scheme, 0, len(rows))
	for _, row := range rows {
		s, err := row.toEntity()
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, nil
}

// Update writes s when the stored version equals expected and returns the
// number of rows changed; zero means the version moved on.
func (r *Repo) Update(ctx context.Context, s *entity.Scheme, expected int64) (int64, error) {
	tracks, err := json.Marshal(s.Tracks)
	if err != nil {
		return 0, err
	}
	res, err := r.db.ExecContext(ctx,
		`UPDATE schemes SET tracks=$3, version=$4, updated_at=$5 WHERE id=$1 AND version=$2`,
		s.ID, expected, tracks, s.Version, s.UpdatedAt)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (r *Repo) Delete(ctx context.Context, number int) (int64, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM schemes WHERE cohort_number=$1`, number)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
