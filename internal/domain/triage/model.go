package triage

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

var ErrNotFound = errors.New("triage not found")

// Status is a clinician's verdict after reviewing health answers.
type Status string

const (
	StatusReadyToVaccinate Status = "ready_to_vaccinate"
	StatusDoNotVaccinate   Status = "do_not_vaccinate"
	StatusNeedsFollowUp    Status = "needs_follow_up"
	StatusDelayVaccination Status = "delay_vaccination"
)

var validStatuses = map[Status]bool{
	StatusReadyToVaccinate: true, StatusDoNotVaccinate: true,
	StatusNeedsFollowUp: true, StatusDelayVaccination: true,
}

func (s Status) Valid() bool { return validStatuses[s] }

type Triage struct {
	ID             uuid.UUID  `json:"id"`
	OrganisationID uuid.UUID  `json:"organisation_id"`
	PatientID      uuid.UUID  `json:"patient_id"`
	ProgrammeID    uuid.UUID  `json:"programme_id"`
	Status         Status     `json:"status"`
	Notes          string     `json:"notes,omitempty"`
	PerformedBy    string     `json:"performed_by,omitempty"`
	InvalidatedAt  *time.Time `json:"invalidated_at,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
}

func (t *Triage) Active() bool { return t.InvalidatedAt == nil }

func (t *Triage) Validate() error {
	if t.PatientID == uuid.Nil {
		return fmt.Errorf("patient_id is required")
	}
	if t.ProgrammeID == uuid.Nil {
		return fmt.Errorf("programme_id is required")
	}
	if !t.Status.Valid() {
		return fmt.Errorf("invalid status: %q", t.Status)
	}
	return nil
}

// Latest returns the most recent active triage, or nil.
func Latest(triages []*Triage) *Triage {
	var latest *Triage
	for _, t := range triages {
		if !t.Active() {
			continue
		}
		if latest == nil || t.CreatedAt.After(latest.CreatedAt) ||
			(t.CreatedAt.Equal(latest.CreatedAt) && t.ID.String() > latest.ID.String()) {
			latest = t
		}
	}
	return latest
}
