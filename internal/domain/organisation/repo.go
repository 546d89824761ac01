package organisation

import (
	"context"

	"github.com/google/uuid"
)

type Repository interface {
	GetByID(ctx context.Context, id uuid.UUID) (*Organisation, error)
	Create(ctx context.Context, o *Organisation, programmeIDs []uuid.UUID) error
}
