package consent

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/ehr/schoolvax/internal/domain/programme"
	"github.com/ehr/schoolvax/internal/platform/db"
)

// TriageInvalidator clears active triage when its consent inputs change.
type TriageInvalidator interface {
	InvalidateActive(ctx context.Context, patientIDs, programmeIDs []uuid.UUID) (int, error)
}

type ProgrammeGetter interface {
	GetByID(ctx context.Context, id uuid.UUID) (*programme.Programme, error)
}

// Notifier is told about consents after they are committed.
type Notifier interface {
	ConsentRecorded(ctx context.Context, c *Consent) error
}

type Service struct {
	repo       Repository
	programmes ProgrammeGetter
	triages    TriageInvalidator
	tx         db.Transactor
	notifier   Notifier
	logger     zerolog.Logger
	now        func() time.Time
}

func NewService(repo Repository, programmes ProgrammeGetter, triages TriageInvalidator, tx db.Transactor, logger zerolog.Logger) *Service {
	return &Service{repo: repo, programmes: programmes, triages: triages, tx: tx, logger: logger, now: time.Now}
}

// SetNotifier wires the confirmation sender. Without one, nothing is sent.
func (s *Service) SetNotifier(n Notifier) { s.notifier = n }

func (s *Service) GetConsent(ctx context.Context, id uuid.UUID) (*Consent, error) {
	return s.repo.GetByID(ctx, id)
}

func (s *Service) ListByPatient(ctx context.Context, patientID uuid.UUID) ([]*Consent, error) {
	return s.repo.ListByPatient(ctx, patientID)
}

// RecordConsent stores and records a complete consent in one step.
func (s *Service) RecordConsent(ctx context.Context, c *Consent) error {
	if err := c.Record(s.now()); err != nil {
		return err
	}
	err := s.tx.WithinTx(ctx, func(ctx context.Context) error {
		if err := s.repo.Create(ctx, c); err != nil {
			return err
		}
		return s.invalidateTriage(ctx, c)
	})
	if err != nil {
		c.RecordedAt = nil
		return err
	}
	s.notify(ctx, c)
	return nil
}

// CreateDraft stores an unrecorded consent. Without health answers it
// starts with the programme's questions unanswered.
func (s *Service) CreateDraft(ctx context.Context, c *Consent) error {
	if c.Recorded() {
		return ErrAlreadyRecorded
	}
	if err := c.ValidateDraft(); err != nil {
		return err
	}
	if len(c.HealthAnswers) == 0 {
		p, err := s.programmes.GetByID(ctx, c.ProgrammeID)
		if err != nil {
			return fmt.Errorf("load programme: %w", err)
		}
		c.HealthAnswers = QuestionsFor(p.Type)
	}
	return s.repo.Create(ctx, c)
}

func (s *Service) UpdateHealthAnswer(ctx context.Context, id uuid.UUID, index int, response Answer, notes *string) (*Consent, error) {
	var c *Consent
	err := s.tx.WithinTx(ctx, func(ctx context.Context) error {
		var err error
		c, err = s.repo.GetByID(ctx, id)
		if err != nil {
			return err
		}
		if err := c.SetHealthAnswer(index, response, notes); err != nil {
			return err
		}
		return s.repo.Update(ctx, c)
	})
	if err != nil {
		return nil, err
	}
	return c, nil
}

// RecordDraft records a previously created draft.
func (s *Service) RecordDraft(ctx context.Context, id uuid.UUID, recordedBy string) (*Consent, error) {
	var c *Consent
	err := s.tx.WithinTx(ctx, func(ctx context.Context) error {
		var err error
		c, err = s.repo.GetByID(ctx, id)
		if err != nil {
			return err
		}
		if err := c.Record(s.now()); err != nil {
			return err
		}
		c.RecordedBy = recordedBy
		if err := s.repo.Update(ctx, c); err != nil {
			return err
		}
		return s.invalidateTriage(ctx, c)
	})
	if err != nil {
		return nil, err
	}
	s.notify(ctx, c)
	return c, nil
}

func (s *Service) Withdraw(ctx context.Context, id uuid.UUID, reason ReasonForRefusal, notes string) (*Consent, error) {
	return s.change(ctx, id, func(c *Consent) error {
		return c.Withdraw(reason, notes, s.now())
	})
}

func (s *Service) Invalidate(ctx context.Context, id uuid.UUID, notes string) (*Consent, error) {
	return s.change(ctx, id, func(c *Consent) error {
		return c.Invalidate(notes, s.now())
	})
}

func (s *Service) change(ctx context.Context, id uuid.UUID, fn func(c *Consent) error) (*Consent, error) {
	var c *Consent
	err := s.tx.WithinTx(ctx, func(ctx context.Context) error {
		var err error
		c, err = s.repo.GetByID(ctx, id)
		if err != nil {
			return err
		}
		if err := fn(c); err != nil {
			return err
		}
		if err := s.repo.Update(ctx, c); err != nil {
			return err
		}
		return s.invalidateTriage(ctx, c)
	})
	if err != nil {
		return nil, err
	}
	return c, nil
}

func (s *Service) invalidateTriage(ctx context.Context, c *Consent) error {
	n, err := s.triages.InvalidateActive(ctx, []uuid.UUID{c.PatientID}, []uuid.UUID{c.ProgrammeID})
	if err != nil {
		return err
	}
	if n > 0 {
		s.logger.Info().
			Str("consent_id", c.ID.String()).
			Str("patient_id", c.PatientID.String()).
			Int("triages", n).
			Msg("triage invalidated by consent change")
	}
	return nil
}

func (s *Service) notify(ctx context.Context, c *Consent) {
	if s.notifier == nil {
		return
	}
	if err := s.notifier.ConsentRecorded(ctx, c); err != nil {
		s.logger.Warn().Err(err).Str("consent_id", c.ID.String()).Msg("consent confirmation failed")
	}
}
