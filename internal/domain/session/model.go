package session

import (
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
)

var (
	ErrNotFound         = errors.New("session not found")
	ErrLocationNotFound = errors.New("location not found")
	ErrProposalNotFound = errors.New("proposal not found")
	ErrSessionClosed    = errors.New("session is closed")
	ErrNotEnrollable    = errors.New("patient cannot be enrolled")
)

type LocationType string

const (
	LocationSchool        LocationType = "school"
	LocationGenericClinic LocationType = "generic_clinic"
)

// GenericClinicName names the catch-all clinic every organisation gets.
const GenericClinicName = "Community clinics"

// Location is where a session runs. Schools are identified by URN and
// clinics by the owning organisation's ODS code.
type Location struct {
	ID             uuid.UUID    `json:"id"`
	OrganisationID *uuid.UUID   `json:"organisation_id,omitempty"`
	Name           string       `json:"name"`
	Type           LocationType `json:"type"`
	URN            string       `json:"urn,omitempty"`
	ODSCode        string       `json:"ods_code,omitempty"`
	CreatedAt      time.Time    `json:"created_at"`
}

func (l *Location) GenericClinic() bool { return l.Type == LocationGenericClinic }

// State is where a session is in its lifecycle on a given day.
type State string

const (
	StateUnscheduled State = "unscheduled"
	StateScheduled   State = "scheduled"
	StateToday       State = "today"
	StateCompleted   State = "completed"
	StateClosed      State = "closed"
)

type Session struct {
	ID             uuid.UUID   `json:"id"`
	OrganisationID uuid.UUID   `json:"organisation_id"`
	LocationID     uuid.UUID   `json:"location_id"`
	ProgrammeIDs   []uuid.UUID `json:"programme_ids"`
	AcademicYear   int         `json:"academic_year"`
	Dates          []time.Time `json:"dates"`
	ClosedAt       *time.Time  `json:"closed_at,omitempty"`
	CreatedAt      time.Time   `json:"created_at"`
	UpdatedAt      time.Time   `json:"updated_at"`
}

func (s *Session) Closed() bool { return s.ClosedAt != nil }

func (s *Session) Open() bool { return s.ClosedAt == nil }

func (s *Session) Unscheduled() bool { return len(s.Dates) == 0 }

func day(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func (s *Session) sortedDates() []time.Time {
	out := make([]time.Time, len(s.Dates))
	for i, d := range s.Dates {
		out[i] = day(d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Before(out[j]) })
	return out
}

// TodayOrFutureDates returns the session dates on or after now's day.
func (s *Session) TodayOrFutureDates(now time.Time) []time.Time {
	today := day(now)
	var out []time.Time
	for _, d := range s.sortedDates() {
		if !d.Before(today) {
			out = append(out, d)
		}
	}
	return out
}

func (s *Session) State(now time.Time) State {
	if s.Closed() {
		return StateClosed
	}
	if s.Unscheduled() {
		return StateUnscheduled
	}
	today := day(now)
	for _, d := range s.sortedDates() {
		if d.Equal(today) {
			return StateToday
		}
	}
	if len(s.TodayOrFutureDates(now)) == 0 {
		return StateCompleted
	}
	return StateScheduled
}

// CloseConsentAt is the day before the last session date; nil when
// unscheduled.
func (s *Session) CloseConsentAt() *time.Time {
	if s.Unscheduled() {
		return nil
	}
	dates := s.sortedDates()
	at := dates[len(dates)-1].AddDate(0, 0, -1)
	return &at
}

// OpenForConsent reports whether parents can still respond on now's day.
func (s *Session) OpenForConsent(now time.Time) bool {
	closeAt := s.CloseConsentAt()
	return s.Open() && closeAt != nil && !closeAt.Before(day(now))
}

func (s *Session) HasProgramme(id uuid.UUID) bool {
	for _, p := range s.ProgrammeIDs {
		if p == id {
			return true
		}
	}
	return false
}

// SharesProgramme reports whether the sessions have a programme in common.
func (s *Session) SharesProgramme(other *Session) bool {
	for _, p := range other.ProgrammeIDs {
		if s.HasProgramme(p) {
			return true
		}
	}
	return false
}

func (s *Session) Validate() error {
	if s.OrganisationID == uuid.Nil {
		return fmt.Errorf("organisation_id is required")
	}
	if s.LocationID == uuid.Nil {
		return fmt.Errorf("location_id is required")
	}
	if len(s.ProgrammeIDs) == 0 {
		return fmt.Errorf("at least one programme is required")
	}
	if s.AcademicYear < 2000 {
		return fmt.Errorf("invalid academic_year: %d", s.AcademicYear)
	}
	return nil
}

// Membership enrols a patient in a session.
type Membership struct {
	ID        uuid.UUID `json:"id"`
	SessionID uuid.UUID `json:"session_id"`
	PatientID uuid.UUID `json:"patient_id"`
	CreatedAt time.Time `json:"created_at"`
}

// Proposal suggests moving a patient from a session they belong to into
// another one. Staff confirm or decline it.
type Proposal struct {
	ID            uuid.UUID `json:"id"`
	PatientID     uuid.UUID `json:"patient_id"`
	FromSessionID uuid.UUID `json:"from_session_id"`
	ToSessionID   uuid.UUID `json:"to_session_id"`
	CreatedAt     time.Time `json:"created_at"`
}
