// Package notification carries the named triggers the eligibility engine
// fires towards parents and the dispatchers that hand them to delivery.
// Message content and delivery channels live outside this service.
package notification

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Trigger names the kind of message a downstream sender should produce.
type Trigger string

const (
	TriggerTriageConfirmation      Trigger = "triage_confirmation"
	TriggerVaccinationConfirmation Trigger = "vaccination_confirmation"
	TriggerConsentRequest          Trigger = "consent_request"
	TriggerConsentReminder         Trigger = "consent_reminder"
)

// Variant refines a trigger. Triage confirmations select one from the
// patient's next step; vaccination confirmations from the outcome.
type Variant string

const (
	VariantNone                       Variant = ""
	VariantConsentConfirmationGiven   Variant = "consent_confirmation_given"
	VariantConsentConfirmationTriage  Variant = "consent_confirmation_triage"
	VariantConsentConfirmationRefused Variant = "consent_confirmation_refused"
	VariantVaccinationWillHappen      Variant = "triage_vaccination_will_happen"
	VariantVaccinationWontHappen      Variant = "triage_vaccination_wont_happen"
	VariantVaccinationAtClinic        Variant = "triage_vaccination_at_clinic"
	VariantAdministered               Variant = "administered"
	VariantNotAdministered            Variant = "not_administered"
)

// Event is one trigger firing for one patient and programme.
type Event struct {
	ID             uuid.UUID  `json:"id"`
	Trigger        Trigger    `json:"trigger"`
	Variant        Variant    `json:"variant,omitempty"`
	OrganisationID uuid.UUID  `json:"organisation_id"`
	PatientID      uuid.UUID  `json:"patient_id"`
	ProgrammeID    uuid.UUID  `json:"programme_id"`
	SessionID      *uuid.UUID `json:"session_id,omitempty"`
	ConsentID      *uuid.UUID `json:"consent_id,omitempty"`
	ParentID       *uuid.UUID `json:"parent_id,omitempty"`
	VaccinationID  *uuid.UUID `json:"vaccination_id,omitempty"`
	OccurredAt     time.Time  `json:"occurred_at"`
}

// TemplateID is the key downstream senders use to pick message content.
func (e Event) TemplateID() string {
	if e.Variant == VariantNone {
		return string(e.Trigger)
	}
	return string(e.Trigger) + "." + string(e.Variant)
}

// Dispatcher hands events to delivery. Implementations must be safe for
// concurrent use.
type Dispatcher interface {
	Dispatch(ctx context.Context, evt Event) error
}

// prepare fills the id and timestamp when the caller left them empty.
func prepare(evt Event) Event {
	if evt.ID == uuid.Nil {
		evt.ID = uuid.New()
	}
	if evt.OccurredAt.IsZero() {
		evt.OccurredAt = time.Now().UTC()
	}
	return evt
}

// Fanout dispatches to every dispatcher in order and returns the first error.
type Fanout []Dispatcher

func (f Fanout) Dispatch(ctx context.Context, evt Event) error {
	evt = prepare(evt)
	var first error
	for _, d := range f {
		if err := d.Dispatch(ctx, evt); err != nil && first == nil {
			first = err
		}
	}
	return first
}

// Recorder keeps dispatched events in memory. Used by tests across the
// domain packages.
type Recorder struct {
	mu     sync.Mutex
	events []Event
	Err    error
}

func (r *Recorder) Dispatch(_ context.Context, evt Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.Err != nil {
		return r.Err
	}
	r.events = append(r.events, prepare(evt))
	return nil
}

// Events returns a copy of the recorded events.
func (r *Recorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Event, len(r.events))
	copy(out, r.events)
	return out
}
