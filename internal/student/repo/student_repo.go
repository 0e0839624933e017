package repo

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/ovaphlow/pitchfork/service-attendance-go/internal/student/entity"
)

// ErrDuplicate is returned by Create on an email or admission code clash.
var ErrDuplicate = errors.New("student already exists")

// StudentRepo provides data access for the students table using sqlx.
type StudentRepo struct {
	db *sqlx.DB
}

func NewStudentRepo(db *sqlx.DB) *StudentRepo { return &StudentRepo{db: db} }

// EnsureTable creates the students table if not exists (idempotent).
func (r *StudentRepo) EnsureTable(ctx context.Context) error {
	const ddl = `
CREATE EXTENSION IF NOT EXISTS citext;
CREATE TABLE IF NOT EXISTS students (
  id varchar(32) PRIMARY KEY,
  cohort_id varchar(32) NOT NULL,
  cohort_number INT NOT NULL,
  first_name TEXT NOT NULL,
  last_name TEXT NOT NULL,
  email CITEXT NOT NULL UNIQUE,
  admission_code TEXT NOT NULL UNIQUE,
  stack TEXT NOT NULL DEFAULT '',
  gender TEXT NOT NULL DEFAULT '',
  status TEXT NOT NULL DEFAULT 'active',
  password_hash TEXT NOT NULL DEFAULT '',
  onboarded BOOLEAN NOT NULL DEFAULT false,
  token_version BIGINT NOT NULL DEFAULT 1,
  face_descriptor TEXT,
  init_vector TEXT,
  created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
  updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
CREATE INDEX IF NOT EXISTS idx_students_cohort_id ON students(cohort_id);
`
	_, err := r.db.ExecContext(ctx, ddl)
	return err
}

const studentColumns = `id, cohort_id, cohort_number, first_name, last_name, email, admission_code,
	stack, gender, status, password_hash, onboarded, token_version, face_descriptor, init_vector,
	created_at, updated_at`

type studentRow struct {
	entity.Student
	FaceDescriptor sql.NullString `db:"face_descriptor"`
	InitVector     sql.NullString `db:"init_vector"`
}

func (row *studentRow) toEntity() *entity.Student {
	s := row.Student
	if row.FaceDescriptor.Valid && row.FaceDescriptor.String != "" {
		s.Template = &entity.Template{Ciphertext: row.FaceDescriptor.String, InitVector: row.InitVector.String}
	}
	return &s
}

// Create inserts a new student row.
func (r *StudentRepo) Create(ctx context.Context, s *entity.Student) error {
	const q = `INSERT INTO students (id, cohort_id, cohort_number, first_name, last_name, email, admission_code,
		stack, gender, status, password_hash, onboarded, token_version, created_at, updated_at)
		VALUES (:id, :cohort_id, :cohort_number, :first_name, :last_name, :email, :admission_code,
		:stack, :gender, :status, :password_hash, :onboarded, :token_version, :created_at, :updated_at)`
	_, err := r.db.NamedExecContext(ctx, q, s)
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code == "23505" {
		return ErrDuplicate
	}
	return err
}

// GetByID returns a student or sql.ErrNoRows.
func (r *StudentRepo) GetByID(ctx context.Context, id string) (*entity.Student, error) {
	var row studentRow
	if err := r.db.GetContext(ctx, &row, `SELECT `+studentColumns+` FROM students WHERE id=$1`, id); err != nil {
		return nil, err
	}
	return row.toEntity(), nil
}

// GetByEmail matches case-insensitively (citext) or returns sql.ErrNoRows.
func (r *StudentRepo) GetByEmail(ctx context.Context, email string) (*entity.Student, error) {
	var row studentRow
	if err := r.db.GetContext(ctx, &row, `SELECT `+studentColumns+` FROM students WHERE email=$1`, email); err != nil {
		return nil, err
	}
	return row.toEntity(), nil
}

// List returns all students, optionally restricted to one cohort.
func (r *StudentRepo) List(ctx context.Context, cohortID string) ([]*entity.Student, error) {
	q := `SELECT ` + studentColumns + ` FROM students`
	args := []any{}
	if cohortID != "" {
		q += ` WHERE cohort_id=$1`
		args = append(args, cohortID)
	}
	q += ` ORDER BY created_at, id`
	var rows []studentRow
	if err := r.db.SelectContext(ctx, &rows, q, args...); err != nil {
		return nil, err
	}
	out := make([]*entity.Student, 0, len(rows))
	for i := range rows {
		out = append(out, rows[i].toEntity())
	}
	return out, nil
}

// SaveTemplate stores the template only if the student has none yet. It
// reports false when a template already exists and sql.ErrNoRows when the
// student does not.
func (r *StudentRepo) SaveTemplate(ctx context.Context, id string, t entity.Template) (bool, error) {
	const q = `UPDATE students SET face_descriptor=$2, init_vector=$3, updated_at=NOW()
		WHERE id=$1 AND face_descriptor IS NULL RETURNING 1`
	var one int
	err := r.db.GetContext(ctx, &one, q, id, t.Ciphertext, t.InitVector)
	if err == nil {
		return true, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return false, err
	}
	var exists bool
	if err := r.db.GetContext(ctx, &exists, `SELECT EXISTS(SELECT 1 FROM students WHERE id=$1)`, id); err != nil {
		return false, err
	}
	if !exists {
		return false, sql.ErrNoRows
	}
	return false, nil
}

// CompleteOnboarding sets the profile and password if not yet onboarded.
// It reports false when the student had already onboarded.
func (r *StudentRepo) CompleteOnboarding(ctx context.Context, id string, o entity.Onboarding) (bool, error) {
	const q = `UPDATE students SET first_name=$2, last_name=$3, stack=$4, gender=$5, password_hash=$6,
		onboarded=true, updated_at=NOW() WHERE id=$1 AND onboarded=false`
	res, err := r.db.ExecContext(ctx, q, id, o.FirstName, o.LastName, o.Stack, o.Gender, o.PasswordHash)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

// UpdatePasswordHash replaces the stored hash, e.g. after a cost change.
func (r *StudentRepo) UpdatePasswordHash(ctx context.Context, id, hash string) error {
	_, err := r.db.ExecContext(ctx, `UPDATE students SET password_hash=$2, updated_at=NOW() WHERE id=$1`, id, hash)
	return err
}

// UpdateProfile overwrites the self-editable fields.
func (r *StudentRepo) UpdateProfile(ctx context.Context, id string, p entity.Profile) error {
	const q = `UPDATE students SET first_name=$2, last_name=$3, gender=$4, updated_at=NOW() WHERE id=$1`
	return expectOne(r.db.ExecContext(ctx, q, id, p.FirstName, p.LastName, p.Gender))
}

func (r *StudentRepo) SetStatus(ctx context.Context, id, status string) error {
	return expectOne(r.db.ExecContext(ctx, `UPDATE students SET status=$2, updated_at=NOW() WHERE id=$1`, id, status))
}

// Delete removes the row for good. Used to undo an enrolment.
func (r *StudentRepo) Delete(ctx context.Context, id string) error {
	return expectOne(r.db.ExecContext(ctx, `DELETE FROM students WHERE id=$1`, id))
}

// expectOne maps "no row touched" to sql.ErrNoRows.
func expectOne(res sql.Result, err error) error {
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// BumpTokenVersion increments token_version and returns the new value.
func (r *StudentRepo) BumpTokenVersion(ctx context.Context, id string) (int64, error) {
	const q = `UPDATE students SET token_version = token_version + 1, updated_at=NOW() WHERE id=$1 RETURNING token_version`
	var v int64
	if err := r.db.GetContext(ctx, &v, q, id); err != nil {
		return 0, err
	}
	return v, nil
}

// DisplayNames resolves "first last" for each known id.
func (r *StudentRepo) DisplayNames(ctx context.Context, ids []string) (map[string]string, error) {
	out := make(map[string]string, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	var rows []struct {
		ID        string `db:"id"`
		FirstName string `db:"first_name"`
		LastName  string `db:"last_name"`
	}
	const q = `SELECT id, first_name, last_name FROM students WHERE id = ANY($1)`
	if err := r.db.SelectContext(ctx, &rows, q, pq.Array(ids)); err != nil {
		return nil, err
	}
	for _, row := range rows {
		out[row.ID] = strings.TrimSpace(row.FirstName + " " + row.LastName)
	}
	return out, nil
}
