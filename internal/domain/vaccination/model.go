package vaccination

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/ehr/schoolvax/pkg/academicyear"
)

var ErrNotFound = errors.New("vaccination not found")

// Reason explains why a vaccination was not administered.
type Reason string

const (
	ReasonRefused         Reason = "refused"
	ReasonAlreadyHad      Reason = "already_had"
	ReasonContraindicated Reason = "contraindicated"
	ReasonAbsent          Reason = "absent_from_session"
	ReasonUnwell          Reason = "not_well"
	ReasonOther           Reason = "other"
)

var validReasons = map[Reason]bool{
	ReasonRefused: true, ReasonAlreadyHad: true, ReasonContraindicated: true,
	ReasonAbsent: true, ReasonUnwell: true, ReasonOther: true,
}

func (r Reason) Valid() bool { return validReasons[r] }

// Vaccination is the outcome of one attempt to vaccinate a patient in a
// session.
type Vaccination struct {
	ID             uuid.UUID `json:"id"`
	OrganisationID uuid.UUID `json:"organisation_id"`
	PatientID      uuid.UUID `json:"patient_id"`
	ProgrammeID    uuid.UUID `json:"programme_id"`
	SessionID      uuid.UUID `json:"session_id"`
	Administered   bool      `json:"administered"`
	Reason         Reason    `json:"reason,omitempty"`
	LotNumber      string    `json:"lot_number,omitempty"`
	Notes          string    `json:"notes,omitempty"`
	PerformedBy    string    `json:"performed_by,omitempty"`
	PerformedAt    time.Time `json:"performed_at"`
	CreatedAt      time.Time `json:"created_at"`
}

func (v *Vaccination) AlreadyHad() bool {
	return !v.Administered && v.Reason == ReasonAlreadyHad
}

// Satisfies reports whether the outcome means nothing more is needed for
// the programme in academicYear.
func (v *Vaccination) Satisfies(programmeID uuid.UUID, academicYear int) bool {
	if v.ProgrammeID != programmeID || academicyear.Of(v.PerformedAt) != academicYear {
		return false
	}
	return v.Administered || v.AlreadyHad()
}

func (v *Vaccination) Validate() error {
	if v.PatientID == uuid.Nil {
		return fmt.Errorf("patient_id is required")
	}
	if v.ProgrammeID == uuid.Nil {
		return fmt.Errorf("programme_id is required")
	}
	if v.SessionID == uuid.Nil {
		return fmt.Errorf("session_id is required")
	}
	if v.PerformedAt.IsZero() {
		return fmt.Errorf("performed_at is required")
	}
	if v.Administered {
		if v.Reason != "" {
			return fmt.Errorf("an administered vaccination has no reason")
		}
		return nil
	}
	if !v.Reason.Valid() {
		return fmt.Errorf("invalid reason: %q", v.Reason)
	}
	return nil
}

// Satisfying returns the most recent outcome that satisfies the programme
// in academicYear, or nil.
func Satisfying(vs []*Vaccination, programmeID uuid.UUID, academicYear int) *Vaccination {
	var found *Vaccination
	for _, v := range vs {
		if !v.Satisfies(programmeID, academicYear) {
			continue
		}
		if found == nil || v.PerformedAt.After(found.PerformedAt) ||
			(v.PerformedAt.Equal(found.PerformedAt) && v.ID.String() > found.ID.String()) {
			found = v
		}
	}
	return found
}

// SatisfiesAll reports whether every programme is satisfied.
func SatisfiesAll(vs []*Vaccination, programmeIDs []uuid.UUID, academicYear int) bool {
	for _, id := range programmeIDs {
		if Satisfying(vs, id, academicYear) == nil {
			return false
		}
	}
	return len(programmeIDs) > 0
}

// ByPatient groups outcomes by patient.
func ByPatient(vs []*Vaccination) map[uuid.UUID][]*Vaccination {
	out := make(map[uuid.UUID][]*Vaccination)
	for _, v := range vs {
		out[v.PatientID] = append(out[v.PatientID], v)
	}
	return out
}
