package status

import (
	"github.com/ehr/schoolvax/internal/domain/consent"
	"github.com/ehr/schoolvax/internal/domain/patient"
	"github.com/ehr/schoolvax/internal/domain/vaccination"
	"github.com/ehr/schoolvax/internal/platform/notification"
)

// TriageConfirmationVariant picks the message a parent gets once their
// consent has been recorded or triaged. ok is false when nothing should
// be sent.
func TriageConfirmationVariant(p *patient.Patient, c *consent.Consent, step NextStep) (v notification.Variant, ok bool) {
	if p.Excluded() || c.SelfConsent() {
		return notification.VariantNone, false
	}
	switch {
	case step == ReadyToVaccinate && c.TriageNeeded():
		return notification.VariantVaccinationWillHappen, true
	case step == DoNotVaccinate:
		return notification.VariantVaccinationWontHappen, true
	case step == DelayVaccination:
		return notification.VariantVaccinationAtClinic, true
	case step == TriageNeeded && c.Response == consent.ResponseGiven:
		return notification.VariantConsentConfirmationTriage, true
	case c.Response == consent.ResponseRefused:
		return notification.VariantConsentConfirmationRefused, true
	case c.Response == consent.ResponseGiven:
		return notification.VariantConsentConfirmationGiven, true
	}
	return notification.VariantNone, false
}

func VaccinationVariant(v *vaccination.Vaccination) notification.Variant {
	if v.Administered {
		return notification.VariantAdministered
	}
	return notification.VariantNotAdministered
}
