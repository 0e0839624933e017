// Package scheme keeps each cohort's scheme of work: the subject taught on
// every class day, per track.
package scheme

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/ovaphlow/pitchfork/service-attendance-go/internal/scheme/entity"
	"github.com/ovaphlow/pitchfork/service-attendance-go/internal/scheme/repo"
	"github.com/ovaphlow/pitchfork/service-attendance-go/pkg/utilities"
)

var (
	ErrNotFound        = errors.New("scheme not found")
	ErrExists          = errors.New("scheme already exists")
	ErrUnknownTrack    = errors.New("unknown track")
	ErrInvalidEntry    = errors.New("entry needs a positive day and a subject")
	ErrVersionConflict = errors.New("version conflict")
)

// Store is implemented by repo.Repo and repo.MemoryRepo. Not-found is
// sql.ErrNoRows.
type Store interface {
	Create(ctx context.Context, s *entity.Scheme) error
	GetByCohortNumber(ctx context.Context, number int) (*entity.Scheme, error)
	List(ctx context.Context) ([]*entity.Scheme, error)
	Update(ctx context.Context, s *entity.Scheme, expected int64) (int64, error)
	Delete(ctx context.Context, number int) (int64, error)
}

type Service struct {
	repo   Store
	logger *zap.SugaredLogger
}

func NewService(r Store, logger *zap.SugaredLogger) *Service {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &Service{repo: r, logger: logger}
}

// Create starts an empty scheme for a cohort.
func (s *Service) Create(ctx context.Context, cohortID string, number int) (*entity.Scheme, error) {
	sc := entity.NewScheme(utilities.NewID(), cohortID, number, time.Now().UTC())
	if err := s.repo.Create(ctx, sc); err != nil {
		if errors.Is(err, repo.ErrDuplicate) {
			return nil, ErrExists
		}
		return nil, err
	}
	return sc, nil
}

func (s *Service) GetByCohortNumber(ctx context.Context, number int) (*entity.Scheme, error) {
	sc, err := s.repo.GetByCohortNumber(ctx, number)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return sc, nil
}

func (s *Service) List(ctx context.Context) ([]*entity.Scheme, error) {
	return s.repo.List(ctx)
}

// AddEntry sets the subject for a class day on one track.
func (s *Service) AddEntry(ctx context.Context, number int, track entity.Track, e entity.Entry) (*entity.Scheme, error) {
	if !track.Valid() {
		return nil, fmt.Errorf("%w: %q", ErrUnknownTrack, track)
	}
	if e.Day <= 0 || e.Subject == "" {
		return nil, ErrInvalidEntry
	}
	sc, err := s.edit(ctx, number, func(sc *entity.Scheme) { sc.Put(track, e) })
	if err != nil {
		return nil, err
	}
	s.logger.Debugw("scheme entry saved", "cohort_number", number, "track", track, "day", e.Day)
	return sc, nil
}

// ClearTrack empties one track and keeps the scheme itself, so entries can
// be added again afterwards.
func (s *Service) ClearTrack(ctx context.Context, number int, track entity.Track) (*entity.Scheme, error) {
	if !track.Valid() {
		return nil, fmt.Errorf("%w: %q", ErrUnknownTrack, track)
	}
	sc, err := s.edit(ctx, number, func(sc *entity.Scheme) { sc.Clear(track) })
	if err != nil {
		return nil, err
	}
	s.logger.Infow("scheme track cleared", "cohort_number", number, "track", track)
	return sc, nil
}

// Track returns the entries of a single track.
func (s *Service) Track(ctx context.Context, number int, track entity.Track) ([]entity.Entry, error) {
	if !track.Valid() {
		return nil, fmt.Errorf("%w: %q", ErrUnknownTrack, track)
	}
	sc, err := s.GetByCohortNumber(ctx, number)
	if err != nil {
		return nil, err
	}
	entries := sc.Tracks[track]
	if entries == nil {
		entries = []entity.Entry{}
	}
	return entries, nil
}

// Discard removes the whole scheme. Only cohort creation calls it, to undo a
// scheme it made before a later step failed.
func (s *Service) Discard(ctx context.Context, number int) error {
	rows, err := s.repo.Delete(ctx, number)
	if err != nil {
		return err
	}
	if rows == 0 {
		return ErrNotFound
	}
	return nil
}

// edit applies fn to the stored scheme and writes it back guarded by the
// version read here; a concurrent edit yields ErrVersionConflict.
func (s *Service) edit(ctx context.Context, number int, fn func(*entity.Scheme)) (*entity.Scheme, error) {
	sc, err := s.GetByCohortNumber(ctx, number)
	if err != nil {
		return nil, err
	}
	expected := sc.Version
	fn(sc)
	sc.Version = expected + 1
	sc.UpdatedAt = time.Now().UTC()
	rows, err := s.repo.Update(ctx, sc, expected)
	if err != nil {
		return nil, err
	}
	if rows == 0 {
		return nil, ErrVersionConflict
	}
	return sc, nil
}
