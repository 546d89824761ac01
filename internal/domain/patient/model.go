package patient

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/ehr/schoolvax/pkg/academicyear"
)

var ErrNotFound = errors.New("patient not found")

type Gender string

const (
	GenderMale         Gender = "male"
	GenderFemale       Gender = "female"
	GenderNotSpecified Gender = "not_specified"
	GenderNotKnown     Gender = "not_known"
)

var validGenders = map[Gender]bool{
	GenderMale: true, GenderFemale: true, GenderNotSpecified: true, GenderNotKnown: true,
}

func (g Gender) Valid() bool { return validGenders[g] }

type Address struct {
	Line1    string `json:"line_1,omitempty"`
	Line2    string `json:"line_2,omitempty"`
	Town     string `json:"town,omitempty"`
	Postcode string `json:"postcode,omitempty"`
}

func (a Address) IsZero() bool { return a == Address{} }

// Education records where a child is taught: at a school, home educated,
// or unknown. A child is never both at a school and home educated.
type Education struct {
	SchoolID     *uuid.UUID `json:"school_id,omitempty"`
	HomeEducated bool       `json:"home_educated"`
}

func AtSchool(schoolID uuid.UUID) Education { return Education{SchoolID: &schoolID} }

func HomeEducated() Education { return Education{HomeEducated: true} }

func UnknownSchool() Education { return Education{} }

// Known reports whether the school or home education is recorded.
func (e Education) Known() bool { return e.SchoolID != nil || e.HomeEducated }

func (e Education) Equal(o Education) bool {
	if e.HomeEducated != o.HomeEducated {
		return false
	}
	if e.SchoolID == nil || o.SchoolID == nil {
		return e.SchoolID == nil && o.SchoolID == nil
	}
	return *e.SchoolID == *o.SchoolID
}

func (e Education) Validate() error {
	if e.SchoolID != nil && e.HomeEducated {
		return fmt.Errorf("a patient cannot have a school and be home educated")
	}
	return nil
}

// AttendsSchool reports whether the child is recorded at schoolID.
func (e Education) AttendsSchool(schoolID uuid.UUID) bool {
	return e.SchoolID != nil && *e.SchoolID == schoolID
}

// Cohort groups patients of one organisation by birth academic year.
type Cohort struct {
	OrganisationID    uuid.UUID `json:"organisation_id"`
	BirthAcademicYear int       `json:"birth_academic_year"`
}

type Patient struct {
	ID                  uuid.UUID      `json:"id"`
	NHSNumber           string         `json:"nhs_number,omitempty"`
	GivenName           string         `json:"given_name"`
	FamilyName          string         `json:"family_name"`
	PreferredGivenName  string         `json:"preferred_given_name,omitempty"`
	PreferredFamilyName string         `json:"preferred_family_name,omitempty"`
	DateOfBirth         time.Time      `json:"date_of_birth"`
	Gender              Gender         `json:"gender"`
	Address             Address        `json:"address"`
	Education           Education      `json:"education"`
	Registration        string         `json:"registration,omitempty"`
	Cohort              *Cohort        `json:"cohort,omitempty"`
	PendingChanges      PendingChanges `json:"pending_changes"`
	DateOfDeath         *time.Time     `json:"date_of_death,omitempty"`
	InvalidatedAt       *time.Time     `json:"invalidated_at,omitempty"`
	Restricted          bool           `json:"restricted"`
	CreatedAt           time.Time      `json:"created_at"`
	UpdatedAt           time.Time      `json:"updated_at"`
}

func (p *Patient) Deceased() bool { return p.DateOfDeath != nil }

func (p *Patient) Invalidated() bool { return p.InvalidatedAt != nil }

// Excluded patients are left out of every clinical workflow.
func (p *Patient) Excluded() bool {
	return p.Deceased() || p.Invalidated() || p.Restricted
}

// Enrollable patients may be added to sessions. Restricted patients are
// still enrolled; only their records are access limited.
func (p *Patient) Enrollable() bool {
	return !p.Deceased() && !p.Invalidated()
}

func (p *Patient) BirthAcademicYear() int {
	if p.Cohort != nil {
		return p.Cohort.BirthAcademicYear
	}
	return academicyear.BirthAcademicYear(p.DateOfBirth)
}

// YearGroup returns the patient's school year during academicYear.
func (p *Patient) YearGroup(academicYear int) int {
	return academicyear.YearGroup(p.BirthAcademicYear(), academicYear)
}

// AssignCohort places the patient in organisationID's cohort for their
// date of birth.
func (p *Patient) AssignCohort(organisationID uuid.UUID) {
	p.Cohort = &Cohort{
		OrganisationID:    organisationID,
		BirthAcademicYear: academicyear.BirthAcademicYear(p.DateOfBirth),
	}
}

// ValidNHSNumber checks the ten digit format.
func ValidNHSNumber(s string) bool {
	if len(s) != 10 {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

func (p *Patient) Validate() error {
	if p.GivenName == "" {
		return fmt.Errorf("given_name is required")
	}
	if p.FamilyName == "" {
		return fmt.Errorf("family_name is required")
	}
	if p.DateOfBirth.IsZero() {
		return fmt.Errorf("date_of_birth is required")
	}
	if p.NHSNumber != "" && !ValidNHSNumber(p.NHSNumber) {
		return fmt.Errorf("invalid nhs_number: %q", p.NHSNumber)
	}
	if p.Gender != "" && !p.Gender.Valid() {
		return fmt.Errorf("invalid gender: %s", p.Gender)
	}
	return p.Education.Validate()
}

func sameDate(a, b time.Time) bool {
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	return ay == by && am == bm && ad == bd
}
