package triage

import (
	"context"

	"github.com/google/uuid"
)

type Repository interface {
	Create(ctx context.Context, t *Triage) error
	GetByID(ctx context.Context, id uuid.UUID) (*Triage, error)
	ListByPatients(ctx context.Context, patientIDs, programmeIDs []uuid.UUID) ([]*Triage, error)
	// InvalidateActive stamps every active triage of the patients in the
	// programmes and returns how many changed.
	InvalidateActive(ctx context.Context, patientIDs, programmeIDs []uuid.UUID) (int, error)
}
