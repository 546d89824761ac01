package consent

import (
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
)

var (
	ErrNotFound         = errors.New("consent not found")
	ErrAlreadyRecorded  = errors.New("consent is already recorded")
	ErrCannotWithdraw   = errors.New("only a recorded, given consent can be withdrawn")
	ErrCannotInvalidate = errors.New("consent is not recorded or already invalidated")
	ErrNoSuchAnswer     = errors.New("health answer does not exist")
)

type Response string

const (
	ResponseGiven       Response = "given"
	ResponseRefused     Response = "refused"
	ResponseNotProvided Response = "not_provided"
)

var validResponses = map[Response]bool{
	ResponseGiven: true, ResponseRefused: true, ResponseNotProvided: true,
}

func (r Response) Valid() bool { return validResponses[r] }

type Route string

const (
	RouteVerbal  Route = "verbal"
	RoutePaper   Route = "paper"
	RouteWebsite Route = "website"
	RouteSelf    Route = "self_consent"
)

var validRoutes = map[Route]bool{
	RouteVerbal: true, RoutePaper: true, RouteWebsite: true, RouteSelf: true,
}

func (r Route) Valid() bool { return validRoutes[r] }

// InvalidatedOnSessionClose says which routes lose their consent when the
// session the child was seen in closes. Only a child's own consent is
// tied to the session; a parent's is not.
var InvalidatedOnSessionClose = map[Route]bool{
	RouteVerbal:  false,
	RoutePaper:   false,
	RouteWebsite: false,
	RouteSelf:    true,
}

type ReasonForRefusal string

const (
	RefusalContainsGelatine     ReasonForRefusal = "contains_gelatine"
	RefusalAlreadyVaccinated    ReasonForRefusal = "already_vaccinated"
	RefusalWillBeVaccinatedElse ReasonForRefusal = "will_be_vaccinated_elsewhere"
	RefusalMedicalReasons       ReasonForRefusal = "medical_reasons"
	RefusalPersonalChoice       ReasonForRefusal = "personal_choice"
	RefusalOther                ReasonForRefusal = "other"
)

var validRefusalReasons = map[ReasonForRefusal]bool{
	RefusalContainsGelatine: true, RefusalAlreadyVaccinated: true, RefusalWillBeVaccinatedElse: true,
	RefusalMedicalReasons: true, RefusalPersonalChoice: true, RefusalOther: true,
}

func (r ReasonForRefusal) Valid() bool { return validRefusalReasons[r] }

const triageReason = "Health questions need triage"

// Consent is one response for a patient and programme, given by a parent
// or by the child. Once RecordedAt is set the response, route and answers
// do not change; withdrawal and invalidation are stamped on top.
type Consent struct {
	ID               uuid.UUID        `json:"id"`
	OrganisationID   uuid.UUID        `json:"organisation_id"`
	PatientID        uuid.UUID        `json:"patient_id"`
	ProgrammeID      uuid.UUID        `json:"programme_id"`
	ParentID         *uuid.UUID       `json:"parent_id,omitempty"`
	Response         Response         `json:"response"`
	Route            Route            `json:"route"`
	ReasonForRefusal ReasonForRefusal `json:"reason_for_refusal,omitempty"`
	Notes            string           `json:"notes,omitempty"`
	HealthAnswers    HealthAnswers    `json:"health_answers"`
	RecordedBy       string           `json:"recorded_by,omitempty"`
	RecordedAt       *time.Time       `json:"recorded_at,omitempty"`
	WithdrawnAt      *time.Time       `json:"withdrawn_at,omitempty"`
	InvalidatedAt    *time.Time       `json:"invalidated_at,omitempty"`
	CreatedAt        time.Time        `json:"created_at"`
	UpdatedAt        time.Time        `json:"updated_at"`
}

func (c *Consent) Recorded() bool { return c.RecordedAt != nil }

func (c *Consent) Withdrawn() bool { return c.WithdrawnAt != nil }

func (c *Consent) Invalidated() bool { return c.InvalidatedAt != nil }

// Active consents count towards a patient's status.
func (c *Consent) Active() bool {
	return c.Recorded() && !c.Withdrawn() && !c.Invalidated()
}

// SelfConsent reports whether the child answered for themselves.
func (c *Consent) SelfConsent() bool { return c.Route == RouteSelf }

// TriageNeeded is true for a given consent with any flagged health answer.
func (c *Consent) TriageNeeded() bool {
	return c.Response == ResponseGiven && c.HealthAnswers.AnyFlagged()
}

// ReasonsTriageNeeded lists why a clinician must review the consent.
func (c *Consent) ReasonsTriageNeeded() []string {
	var reasons []string
	if c.TriageNeeded() {
		reasons = append(reasons, triageReason)
	}
	return reasons
}

// Responder identifies who gave the consent. Self consents share uuid.Nil.
func (c *Consent) Responder() uuid.UUID {
	if c.ParentID == nil {
		return uuid.Nil
	}
	return *c.ParentID
}

// ValidateDraft checks the fields a draft must carry from the start.
func (c *Consent) ValidateDraft() error {
	if c.PatientID == uuid.Nil {
		return fmt.Errorf("patient_id is required")
	}
	if c.ProgrammeID == uuid.Nil {
		return fmt.Errorf("programme_id is required")
	}
	if !c.Route.Valid() {
		return fmt.Errorf("invalid route: %q", c.Route)
	}
	if c.SelfConsent() && c.ParentID != nil {
		return fmt.Errorf("a self consent cannot have a parent")
	}
	if !c.SelfConsent() && c.ParentID == nil {
		return fmt.Errorf("parent_id is required")
	}
	return c.HealthAnswers.Validate()
}

func (c *Consent) Validate() error {
	if err := c.ValidateDraft(); err != nil {
		return err
	}
	if !c.Response.Valid() {
		return fmt.Errorf("invalid response: %q", c.Response)
	}
	if c.Response == ResponseRefused {
		if c.ReasonForRefusal == "" {
			return fmt.Errorf("reason_for_refusal is required")
		}
		if !c.ReasonForRefusal.Valid() {
			return fmt.Errorf("invalid reason_for_refusal: %q", c.ReasonForRefusal)
		}
	}
	if c.Response == ResponseGiven {
		for i, h := range c.HealthAnswers {
			if h.Response == "" {
				return fmt.Errorf("health_answers[%d].response is required", i)
			}
		}
	}
	return nil
}

// Record validates the consent and fixes it at now.
func (c *Consent) Record(now time.Time) error {
	if c.Recorded() {
		return ErrAlreadyRecorded
	}
	if err := c.Validate(); err != nil {
		return err
	}
	c.RecordedAt = &now
	return nil
}

// SetHealthAnswer edits one answer of a draft.
func (c *Consent) SetHealthAnswer(index int, response Answer, notes *string) error {
	if c.Recorded() {
		return ErrAlreadyRecorded
	}
	if index < 0 || index >= len(c.HealthAnswers) {
		return fmt.Errorf("%w: %d", ErrNoSuchAnswer, index)
	}
	if !response.Valid() {
		return fmt.Errorf("response must be yes or no")
	}
	h := &c.HealthAnswers[index]
	if notes != nil {
		h.Notes = *notes
	}
	h.SetResponse(response)
	return nil
}

// Withdraw marks a given consent as withdrawn with a refusal reason.
func (c *Consent) Withdraw(reason ReasonForRefusal, notes string, now time.Time) error {
	if !c.Active() || c.Response != ResponseGiven {
		return ErrCannotWithdraw
	}
	if !reason.Valid() {
		return fmt.Errorf("invalid reason_for_refusal: %q", reason)
	}
	c.ReasonForRefusal = reason
	c.Notes = notes
	c.WithdrawnAt = &now
	return nil
}

func (c *Consent) Invalidate(notes string, now time.Time) error {
	if !c.Recorded() || c.Invalidated() {
		return ErrCannotInvalidate
	}
	if notes != "" {
		c.Notes = notes
	}
	c.InvalidatedAt = &now
	return nil
}

// LatestPerResponder keeps the active consents, one per responder, most
// recent first. Ties on RecordedAt are broken by ID so the result does
// not depend on input order.
func LatestPerResponder(consents []*Consent) []*Consent {
	active := make([]*Consent, 0, len(consents))
	for _, c := range consents {
		if c.Active() {
			active = append(active, c)
		}
	}
	sort.Slice(active, func(i, j int) bool {
		a, b := active[i], active[j]
		if !a.RecordedAt.Equal(*b.RecordedAt) {
			return a.RecordedAt.After(*b.RecordedAt)
		}
		return a.ID.String() > b.ID.String()
	})
	seen := make(map[uuid.UUID]bool)
	out := active[:0]
	for _, c := range active {
		if seen[c.Responder()] {
			continue
		}
		seen[c.Responder()] = true
		out = append(out, c)
	}
	return out
}
