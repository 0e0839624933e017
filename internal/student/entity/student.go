package entity

import (
	"strings"
	"time"
)

const (
	StatusActive   = "active"
	StatusInactive = "inactive"
)

// Student is a cohort member. PasswordHash is empty until onboarding.
type Student struct {
	ID            string    `json:"id" db:"id"`
	CohortID      string    `json:"cohort_id" db:"cohort_id"`
	CohortNumber  int       `json:"cohort_number" db:"cohort_number"`
	FirstName     string    `json:"first_name" db:"first_name"`
	LastName      string    `json:"last_name" db:"last_name"`
	Email         string    `json:"email" db:"email"`
	AdmissionCode string    `json:"-" db:"admission_code"`
	Stack         string    `json:"stack,omitempty" db:"stack"`
	Gender        string    `json:"gender,omitempty" db:"gender"`
	Status        string    `json:"status" db:"status"`
	PasswordHash  string    `json:"-" db:"password_hash"`
	Onboarded     bool      `json:"onboarded" db:"onboarded"`
	TokenVersion  int64     `json:"-" db:"token_version"`
	Template      *Template `json:"-" db:"-"`
	CreatedAt     time.Time `json:"created_at" db:"created_at"`
	UpdatedAt     time.Time `json:"updated_at" db:"updated_at"`
}

// Template is the encrypted face descriptor of a student, both fields base64.
type Template struct {
	Ciphertext string
	InitVector string
}

func (s *Student) DisplayName() string {
	return strings.TrimSpace(s.FirstName + " " + s.LastName)
}

// Active is false once the student deactivated the account.
func (s *Student) Active() bool { return s.Status != StatusInactive }

// HasTemplate reports whether a face descriptor was registered.
func (s *Student) HasTemplate() bool { return s.Template != nil && s.Template.Ciphertext != "" }

// Onboarding carries the profile fields a student fills in on first sign-up.
type Onboarding struct {
	FirstName    string
	LastName     string
	Stack        string
	Gender       string
	PasswordHash string
}

// Profile is the part of a student record the student may edit.
type Profile struct {
	FirstName string
	LastName  string
	Gender    string
}
