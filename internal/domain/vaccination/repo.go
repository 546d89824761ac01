package vaccination

import (
	"context"

	"github.com/google/uuid"
)

type Repository interface {
	Create(ctx context.Context, v *Vaccination) error
	GetByID(ctx context.Context, id uuid.UUID) (*Vaccination, error)
	ListByPatients(ctx context.Context, patientIDs, programmeIDs []uuid.UUID) ([]*Vaccination, error)
	ListBySession(ctx context.Context, sessionID uuid.UUID) ([]*Vaccination, error)
}
