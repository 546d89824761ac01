package patient

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/ehr/schoolvax/internal/platform/db"
)

type Service struct {
	patients Repository
	parents  ParentRepository
	tx       db.Transactor
}

func NewService(patients Repository, parents ParentRepository, tx db.Transactor) *Service {
	return &Service{patients: patients, parents: parents, tx: tx}
}

func (s *Service) GetPatient(ctx context.Context, id uuid.UUID) (*Patient, error) {
	return s.patients.GetByID(ctx, id)
}

// ParentContact is a parent as seen from one child.
type ParentContact struct {
	*Parent
	Relationship Relationship `json:"relationship"`
	Label        string       `json:"relationship_label"`
}

func (s *Service) ListParents(ctx context.Context, patientID uuid.UUID) ([]ParentContact, error) {
	parents, err := s.parents.ListByPatient(ctx, patientID)
	if err != nil {
		return nil, err
	}
	rels, err := s.parents.ListRelationships(ctx, patientID)
	if err != nil {
		return nil, err
	}
	byParent := make(map[uuid.UUID]*ParentRelationship, len(rels))
	for _, r := range rels {
		byParent[r.ParentID] = r
	}
	out := make([]ParentContact, 0, len(parents))
	for _, p := range parents {
		pc := ParentContact{Parent: p, Relationship: RelationshipOther}
		if r, ok := byParent[p.ID]; ok {
			pc.Relationship = r.Type
			pc.Label = r.Label()
		}
		out = append(out, pc)
	}
	return out, nil
}

// ApplyPendingChanges makes the staged values authoritative.
func (s *Service) ApplyPendingChanges(ctx context.Context, id uuid.UUID) (*Patient, error) {
	var p *Patient
	err := s.tx.WithinTx(ctx, func(ctx context.Context) error {
		var err error
		p, err = s.patients.GetByID(ctx, id)
		if err != nil {
			return err
		}
		if p.PendingChanges.IsEmpty() {
			return nil
		}
		if err := p.ApplyPendingChanges(); err != nil {
			return fmt.Errorf("apply pending changes: %w", err)
		}
		return s.patients.Update(ctx, p)
	})
	if err != nil {
		return nil, err
	}
	return p, nil
}

// DiscardPendingChanges drops the staged values and keeps the live record.
func (s *Service) DiscardPendingChanges(ctx context.Context, id uuid.UUID) (*Patient, error) {
	var p *Patient
	err := s.tx.WithinTx(ctx, func(ctx context.Context) error {
		var err error
		p, err = s.patients.GetByID(ctx, id)
		if err != nil {
			return err
		}
		if p.PendingChanges.IsEmpty() {
			return nil
		}
		p.DiscardPendingChanges()
		return s.patients.Update(ctx, p)
	})
	if err != nil {
		return nil, err
	}
	return p, nil
}
