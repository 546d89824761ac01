package vaccination

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

type Notifier interface {
	VaccinationRecorded(ctx context.Context, v *Vaccination) error
}

type Service struct {
	repo     Repository
	notifier Notifier
	logger   zerolog.Logger
	now      func() time.Time
}

func NewService(repo Repository, logger zerolog.Logger) *Service {
	return &Service{repo: repo, logger: logger, now: time.Now}
}

func (s *Service) SetNotifier(n Notifier) { s.notifier = n }

// RecordVaccination appends an outcome. PerformedAt defaults to now.
func (s *Service) RecordVaccination(ctx context.Context, v *Vaccination) error {
	if v.PerformedAt.IsZero() {
		v.PerformedAt = s.now()
	}
	if err := v.Validate(); err != nil {
		return err
	}
	if err := s.repo.Create(ctx, v); err != nil {
		return err
	}
	if s.notifier != nil {
		if err := s.notifier.VaccinationRecorded(ctx, v); err != nil {
			s.logger.Warn().Err(err).Str("vaccination_id", v.ID.String()).Msg("vaccination confirmation failed")
		}
	}
	return nil
}

func (s *Service) GetVaccination(ctx context.Context, id uuid.UUID) (*Vaccination, error) {
	return s.repo.GetByID(ctx, id)
}

func (s *Service) ListBySession(ctx context.Context, sessionID uuid.UUID) ([]*Vaccination, error) {
	return s.repo.ListBySession(ctx, sessionID)
}
