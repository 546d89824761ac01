package programme

import (
	"context"

	"github.com/google/uuid"
)

type Repository interface {
	GetByID(ctx context.Context, id uuid.UUID) (*Programme, error)
	ListByIDs(ctx context.Context, ids []uuid.UUID) ([]*Programme, error)
	ListByOrganisation(ctx context.Context, organisationID uuid.UUID) ([]*Programme, error)
}
