package session

import (
	"context"
	"time"

	"github.com/google/uuid"
)

type LocationRepository interface {
	Create(ctx context.Context, l *Location) error
	GetByID(ctx context.Context, id uuid.UUID) (*Location, error)
	FindSchoolByURN(ctx context.Context, urn string) (*Location, error)
	FindGenericClinic(ctx context.Context, organisationID uuid.UUID, odsCode string) (*Location, error)
}

type Repository interface {
	Create(ctx context.Context, s *Session) error
	GetByID(ctx context.Context, id uuid.UUID) (*Session, error)
	// ListOpen returns the organisation's sessions in the academic year
	// that are not closed, oldest first.
	ListOpen(ctx context.Context, organisationID uuid.UUID, academicYear int) ([]*Session, error)
	FindOpenByLocation(ctx context.Context, organisationID, locationID uuid.UUID, academicYear int) (*Session, error)
	// MarkClosed sets closed_at only while the session is open and
	// reports whether this call closed it.
	MarkClosed(ctx context.Context, id uuid.UUID, closedAt time.Time) (bool, error)
	// LockOrganisation blocks until the caller's transaction holds the
	// organisation's lock for the academic year. The lock is released at
	// commit or rollback.
	LockOrganisation(ctx context.Context, organisationID uuid.UUID, academicYear int) error
}

type MembershipRepository interface {
	ListBySession(ctx context.Context, sessionID uuid.UUID) ([]*Membership, error)
	ListByPatient(ctx context.Context, patientID uuid.UUID) ([]*Membership, error)
	// Add is a no-op when the patient is already a member.
	Add(ctx context.Context, m *Membership) error
	Remove(ctx context.Context, sessionID, patientID uuid.UUID) error
}

type ProposalRepository interface {
	Create(ctx context.Context, p *Proposal) error
	GetByID(ctx context.Context, id uuid.UUID) (*Proposal, error)
	ListByTarget(ctx context.Context, sessionID uuid.UUID) ([]*Proposal, error)
	Delete(ctx context.Context, id uuid.UUID) error
}
