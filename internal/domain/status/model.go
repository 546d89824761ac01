package status

import (
	"github.com/google/uuid"

	"github.com/ehr/schoolvax/internal/domain/consent"
	"github.com/ehr/schoolvax/internal/domain/patient"
	"github.com/ehr/schoolvax/internal/domain/triage"
	"github.com/ehr/schoolvax/internal/domain/vaccination"
)

// NextStep is what a clinician should do next for a patient and
// programme.
type NextStep string

const (
	NoConsent         NextStep = "no_consent"
	ConsentRefused    NextStep = "consent_refused"
	ConsentConflicts  NextStep = "consent_conflicts"
	TriageNeeded      NextStep = "triage_needed"
	ReadyToVaccinate  NextStep = "ready_to_vaccinate"
	DelayVaccination  NextStep = "delay_vaccination"
	DoNotVaccinate    NextStep = "do_not_vaccinate"
	Vaccinated        NextStep = "vaccinated"
	AlreadyVaccinated NextStep = "already_vaccinated"
	None              NextStep = "none"

	// ConditionalConsent is reserved for consent given with conditions.
	// Resolve never returns it.
	ConditionalConsent NextStep = "conditional_consent"
)

// AllNextSteps lists every step in display order.
var AllNextSteps = []NextStep{
	NoConsent, ConditionalConsent, ConsentRefused, ConsentConflicts,
	TriageNeeded, ReadyToVaccinate, DelayVaccination, DoNotVaccinate,
	Vaccinated, AlreadyVaccinated, None,
}

var validSteps = func() map[NextStep]bool {
	m := make(map[NextStep]bool, len(AllNextSteps))
	for _, s := range AllNextSteps {
		m[s] = true
	}
	return m
}()

func (s NextStep) Valid() bool { return validSteps[s] }

// Actionable reports whether staff still have something to do.
func (s NextStep) Actionable() bool {
	switch s {
	case None, Vaccinated, AlreadyVaccinated, DoNotVaccinate, ConsentRefused:
		return false
	}
	return true
}

var triageSteps = map[triage.Status]NextStep{
	triage.StatusReadyToVaccinate: ReadyToVaccinate,
	triage.StatusDoNotVaccinate:   DoNotVaccinate,
	triage.StatusNeedsFollowUp:    TriageNeeded,
	triage.StatusDelayVaccination: DelayVaccination,
}

// Input is everything Resolve reads. Records for other patients or
// programmes are ignored.
type Input struct {
	Patient      *patient.Patient
	ProgrammeID  uuid.UUID
	AcademicYear int
	Consents     []*consent.Consent
	Triages      []*triage.Triage
	Vaccinations []*vaccination.Vaccination
}

// Resolve returns the next step. It is pure and does not depend on the
// order of the input slices.
func Resolve(in Input) NextStep {
	p := in.Patient
	if p == nil || p.Excluded() {
		return None
	}

	var vs []*vaccination.Vaccination
	for _, v := range in.Vaccinations {
		if v.PatientID == p.ID {
			vs = append(vs, v)
		}
	}
	if v := vaccination.Satisfying(vs, in.ProgrammeID, in.AcademicYear); v != nil {
		if v.AlreadyHad() {
			return AlreadyVaccinated
		}
		return Vaccinated
	}

	var cs []*consent.Consent
	for _, c := range in.Consents {
		if c.PatientID == p.ID && c.ProgrammeID == in.ProgrammeID {
			cs = append(cs, c)
		}
	}
	latest := consent.LatestPerResponder(cs)

	var given, refused []*consent.Consent
	for _, c := range latest {
		switch c.Response {
		case consent.ResponseGiven:
			given = append(given, c)
		case consent.ResponseRefused:
			refused = append(refused, c)
		}
	}
	switch {
	case len(given) == 0 && len(refused) == 0:
		return NoConsent
	case len(given) > 0 && len(refused) > 0:
		return ConsentConflicts
	case len(refused) > 0:
		return ConsentRefused
	}

	var ts []*triage.Triage
	for _, t := range in.Triages {
		if t.PatientID == p.ID && t.ProgrammeID == in.ProgrammeID {
			ts = append(ts, t)
		}
	}
	if t := triage.Latest(ts); t != nil {
		if step, ok := triageSteps[t.Status]; ok {
			return step
		}
	}
	for _, c := range given {
		if c.TriageNeeded() {
			return TriageNeeded
		}
	}
	return ReadyToVaccinate
}
