package consent

import (
	"context"

	"github.com/google/uuid"
)

type Repository interface {
	Create(ctx context.Context, c *Consent) error
	GetByID(ctx context.Context, id uuid.UUID) (*Consent, error)
	Update(ctx context.Context, c *Consent) error
	ListByPatient(ctx context.Context, patientID uuid.UUID) ([]*Consent, error)
	// ListByPatients returns every consent, draft or not, for the given
	// patients in the given programmes.
	ListByPatients(ctx context.Context, patientIDs, programmeIDs []uuid.UUID) ([]*Consent, error)
}
