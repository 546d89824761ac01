package triage

import (
	"context"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/ehr/schoolvax/internal/platform/db"
)

type Notifier interface {
	TriageRecorded(ctx context.Context, t *Triage) error
}

type Service struct {
	repo     Repository
	tx       db.Transactor
	notifier Notifier
	logger   zerolog.Logger
}

func NewService(repo Repository, tx db.Transactor, logger zerolog.Logger) *Service {
	return &Service{repo: repo, tx: tx, logger: logger}
}

func (s *Service) SetNotifier(n Notifier) { s.notifier = n }

// RecordTriage supersedes any active triage for the patient and programme.
func (s *Service) RecordTriage(ctx context.Context, t *Triage) error {
	if err := t.Validate(); err != nil {
		return err
	}
	err := s.tx.WithinTx(ctx, func(ctx context.Context) error {
		ids, progs := []uuid.UUID{t.PatientID}, []uuid.UUID{t.ProgrammeID}
		if _, err := s.repo.InvalidateActive(ctx, ids, progs); err != nil {
			return err
		}
		return s.repo.Create(ctx, t)
	})
	if err != nil {
		return err
	}
	if s.notifier != nil {
		if err := s.notifier.TriageRecorded(ctx, t); err != nil {
			s.logger.Warn().Err(err).Str("triage_id", t.ID.String()).Msg("triage confirmation failed")
		}
	}
	return nil
}

func (s *Service) GetTriage(ctx context.Context, id uuid.UUID) (*Triage, error) {
	return s.repo.GetByID(ctx, id)
}

func (s *Service) ListByPatient(ctx context.Context, patientID, programmeID uuid.UUID) ([]*Triage, error) {
	return s.repo.ListByPatients(ctx, []uuid.UUID{patientID}, []uuid.UUID{programmeID})
}
