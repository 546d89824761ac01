package patient

import (
	"context"
	"time"

	"github.com/google/uuid"
)

type Repository interface {
	Create(ctx context.Context, p *Patient) error
	GetByID(ctx context.Context, id uuid.UUID) (*Patient, error)
	Update(ctx context.Context, p *Patient) error
	FindByNHSNumber(ctx context.Context, nhsNumber string) (*Patient, error)
	FindByNameDOBPostcode(ctx context.Context, givenName, familyName string, dob time.Time, postcode string) ([]*Patient, error)
	ListByCohortOrganisation(ctx context.Context, organisationID uuid.UUID) ([]*Patient, error)
	ListByIDs(ctx context.Context, ids []uuid.UUID) ([]*Patient, error)
}

type ParentRepository interface {
	FindByNameEmail(ctx context.Context, fullName, email string) (*Parent, error)
	Create(ctx context.Context, p *Parent) error
	Update(ctx context.Context, p *Parent) error
	ListByPatient(ctx context.Context, patientID uuid.UUID) ([]*Parent, error)
	UpsertRelationship(ctx context.Context, r *ParentRelationship) error
	ListRelationships(ctx context.Context, patientID uuid.UUID) ([]*ParentRelationship, error)
}
