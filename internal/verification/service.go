// Package verification enrols face templates and checks students in by
// matching a probe descriptor against their enrolled template.
package verification

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/ovaphlow/pitchfork/service-attendance-go/internal/attendance/entity"
	"github.com/ovaphlow/pitchfork/service-attendance-go/internal/biometric"
	studententity "github.com/ovaphlow/pitchfork/service-attendance-go/internal/student/entity"
)

// SubjectStore is the part of the student store the orchestrator needs.
// Not-found is sql.ErrNoRows; SaveTemplate reports false when a template
// already exists.
type SubjectStore interface {
	GetByID(ctx context.Context, id string) (*studententity.Student, error)
	SaveTemplate(ctx context.Context, id string, t studententity.Template) (bool, error)
}

// Ledger performs the Absent -> Present transition.
type Ledger interface {
	MarkPresent(ctx context.Context, cohortID string, day int, studentID string, at time.Time) (*entity.StudentAttendance, error)
}

type EnrollRequest struct {
	SubjectID  string
	Descriptor biometric.FeatureVector
}

type VerifyRequest struct {
	SubjectID  string
	Descriptor biometric.FeatureVector
	ClassDay   int
}

type VerifyResult struct {
	SubjectID   string    `json:"subject_id"`
	DisplayName string    `json:"display_name"`
	ClassDay    int       `json:"class_day"`
	CheckInTime time.Time `json:"check_in_time"`
	Score       int       `json:"score"`
	Distance    float64   `json:"distance"`
}

type Service struct {
	subjects SubjectStore
	ledger   Ledger
	cipher   *biometric.Cipher
	scorer   biometric.Scorer
	logger   *zap.SugaredLogger

	Now func() time.Time
}

func NewService(subjects SubjectStore, ledger Ledger, c *biometric.Cipher, scorer biometric.Scorer, logger *zap.SugaredLogger) *Service {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &Service{subjects: subjects, ledger: ledger, cipher: c, scorer: scorer, logger: logger, Now: time.Now}
}

// RegisterTemplate encrypts the descriptor under a fresh nonce and stores it
// for a student who has none yet.
func (s *Service) RegisterTemplate(ctx context.Context, req EnrollRequest) error {
	if err := biometric.Validate(req.Descriptor); err != nil {
		return err
	}
	subject, err := s.subject(ctx, req.SubjectID)
	if err != nil {
		return err
	}
	if subject.HasTemplate() {
		return ErrAlreadyRegistered
	}
	nonce, err := s.cipher.NewNonce()
	if err != nil {
		return fmt.Errorf("generate nonce: %w", err)
	}
	ct, err := s.cipher.Encrypt(req.Descriptor, nonce)
	if err != nil {
		return err
	}
	ok, err := s.subjects.SaveTemplate(ctx, subject.ID, studententity.Template{Ciphertext: ct.String(), InitVector: string(nonce)})
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return ErrSubjectNotFound
		}
		return fmt.Errorf("save template: %w", err)
	}
	if !ok {
		return ErrAlreadyRegistered
	}
	s.logger.Infow("face template registered", "student_id", subject.ID, "dims", len(req.Descriptor))
	return nil
}

// VerifyAndMark matches the probe against the student's template and, on a
// match, marks the student present for the class day of their cohort.
func (s *Service) VerifyAndMark(ctx context.Context, req VerifyRequest) (*VerifyResult, error) {
	if err := biometric.Validate(req.Descriptor); err != nil {
		return nil, err
	}
	subject, err := s.subject(ctx, req.SubjectID)
	if err != nil {
		return nil, err
	}
	if !subject.HasTemplate() {
		return nil, ErrTemplateNotRegistered
	}
	template, err := s.decrypt(subject.Template)
	if err != nil {
		s.logger.Warnw("template decrypt failed", "student_id", subject.ID, "err", err)
		return nil, err
	}
	distance, err := biometric.Distance(req.Descriptor, template)
	if err != nil {
		return nil, err
	}
	if !s.scorer.IsMatch(distance) {
		s.logger.Infow("face mismatch", "student_id", subject.ID, "class_day", req.ClassDay, "distance", distance)
		return nil, ErrFaceMismatch
	}
	entry, err := s.ledger.MarkPresent(ctx, subject.CohortID, req.ClassDay, subject.ID, s.Now())
	if err != nil {
		s.logger.Infow("check-in refused", "student_id", subject.ID, "class_day", req.ClassDay, "err", err)
		return nil, err
	}
	s.logger.Infow("student checked in", "student_id", subject.ID, "class_day", req.ClassDay, "distance", distance)
	res := &VerifyResult{
		SubjectID:   subject.ID,
		DisplayName: subject.DisplayName(),
		ClassDay:    req.ClassDay,
		Score:       entry.Score,
		Distance:    distance,
	}
	if entry.CheckInTime != nil {
		res.CheckInTime = *entry.CheckInTime
	}
	return res, nil
}

func (s *Service) subject(ctx context.Context, id string) (*studententity.Student, error) {
	st, err := s.subjects.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrSubjectNotFound
		}
		return nil, err
	}
	return st, nil
}

func (s *Service) decrypt(t *studententity.Template) (biometric.FeatureVector, error) {
	ct, err := biometric.ParseCiphertext(t.Ciphertext)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrTemplateCorrupt, err)
	}
	v, err := s.cipher.Decrypt(ct, biometric.Nonce(t.InitVector))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrTemplateCorrupt, err)
	}
	return v, nil
}
