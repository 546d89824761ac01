package patient

import (
	"testing"
	"time"

	"github.com/google/uuid"
)

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func existingPatient() *Patient {
	school := uuid.New()
	return &Patient{
		ID:          uuid.New(),
		NHSNumber:   "9449306168",
		GivenName:   "Ada",
		FamilyName:  "Smith",
		DateOfBirth: date(2012, time.October, 1),
		Gender:      GenderFemale,
		Address:     Address{Line1: "1 High Street", Town: "Leeds", Postcode: "LS1 4AP"},
		Education:   AtSchool(school),
		Cohort:      &Cohort{OrganisationID: uuid.New(), BirthAcademicYear: 2012},
	}
}

func incomingFrom(p *Patient) *Patient {
	in := *p
	in.ID = uuid.Nil
	in.PendingChanges = PendingChanges{}
	return &in
}

func TestEducation_Exclusive(t *testing.T) {
	school := uuid.New()
	if err := (Education{SchoolID: &school, HomeEducated: true}).Validate(); err == nil {
		t.Error("expected error when both school and home educated are set")
	}
	for _, e := range []Education{AtSchool(school), HomeEducated(), UnknownSchool()} {
		if err := e.Validate(); err != nil {
			t.Errorf("unexpected error for %+v: %v", e, err)
		}
	}
}

func TestEducation_Equal(t *testing.T) {
	a, b := uuid.New(), uuid.New()
	if !AtSchool(a).Equal(AtSchool(a)) {
		t.Error("same school should be equal")
	}
	if AtSchool(a).Equal(AtSchool(b)) {
		t.Error("different schools should differ")
	}
	if AtSchool(a).Equal(UnknownSchool()) || HomeEducated().Equal(UnknownSchool()) {
		t.Error("known education should differ from unknown")
	}
}

func TestStageChanges_ExactDuplicate(t *testing.T) {
	p := existingPatient()
	if p.StageChanges(incomingFrom(p)) {
		t.Error("expected no change for identical data")
	}
	if !p.PendingChanges.IsEmpty() {
		t.Errorf("expected no pending changes, got %v", p.PendingChanges.Fields())
	}
}

func TestStageChanges_FamilyNameIsStaged(t *testing.T) {
	p := existingPatient()
	in := incomingFrom(p)
	in.FamilyName = "Jones"

	if !p.StageChanges(in) {
		t.Fatal("expected a change")
	}
	if p.FamilyName != "Smith" {
		t.Errorf("live family name must stay Smith, got %s", p.FamilyName)
	}
	if p.PendingChanges.FamilyName == nil || *p.PendingChanges.FamilyName != "Jones" {
		t.Errorf("expected pending family_name Jones, got %v", p.PendingChanges.FamilyName)
	}
	if fields := p.PendingChanges.Fields(); len(fields) != 1 || fields[0] != "family_name" {
		t.Errorf("expected only family_name staged, got %v", fields)
	}
}

func TestStageChanges_SchoolAppliedWhenNoneKnown(t *testing.T) {
	p := existingPatient()
	p.Education = UnknownSchool()
	in := incomingFrom(p)
	school := uuid.New()
	in.Education = AtSchool(school)

	if !p.StageChanges(in) {
		t.Fatal("expected a change")
	}
	if !p.Education.AttendsSchool(school) {
		t.Error("expected school to be applied directly")
	}
	if p.PendingChanges.Education != nil {
		t.Error("school must not be staged when the patient had none")
	}
}

func TestStageChanges_SchoolStagedWhenKnown(t *testing.T) {
	p := existingPatient()
	original := *p.Education.SchoolID
	in := incomingFrom(p)
	in.Education = AtSchool(uuid.New())

	p.StageChanges(in)
	if !p.Education.AttendsSchool(original) {
		t.Error("existing school must stay live")
	}
	if p.PendingChanges.Education == nil {
		t.Fatal("expected school change to be staged")
	}
}

func TestStageChanges_HomeEducatedIsHighRisk(t *testing.T) {
	p := existingPatient()
	p.Education = HomeEducated()
	in := incomingFrom(p)
	in.Education = AtSchool(uuid.New())

	p.StageChanges(in)
	if !p.Education.HomeEducated {
		t.Error("home educated flag must stay live")
	}
	if p.PendingChanges.Education == nil {
		t.Error("expected school to be staged over home educated")
	}
}

func TestStageChanges_UnknownSchoolDoesNotClearKnown(t *testing.T) {
	p := existingPatient()
	in := incomingFrom(p)
	in.Education = UnknownSchool()

	if p.StageChanges(in) {
		t.Error("an unknown school in the import should not change anything")
	}
}

func TestStageChanges_LowRiskFields(t *testing.T) {
	p := existingPatient()
	p.NHSNumber = ""
	p.Cohort = nil
	in := incomingFrom(p)
	in.NHSNumber = "9449310475"
	in.Registration = "8AB"
	in.Cohort = &Cohort{OrganisationID: uuid.New(), BirthAcademicYear: 2012}

	if !p.StageChanges(in) {
		t.Fatal("expected a change")
	}
	if p.NHSNumber != "9449310475" || p.Registration != "8AB" || p.Cohort == nil {
		t.Errorf("expected low-risk fields applied, got %+v", p)
	}
	if !p.PendingChanges.IsEmpty() {
		t.Errorf("expected nothing staged, got %v", p.PendingChanges.Fields())
	}
}

func TestStageChanges_DifferentNHSNumberIsStaged(t *testing.T) {
	p := existingPatient()
	in := incomingFrom(p)
	in.NHSNumber = "9449310475"

	p.StageChanges(in)
	if p.NHSNumber != "9449306168" {
		t.Error("existing NHS number must stay live")
	}
	if p.PendingChanges.NHSNumber == nil || *p.PendingChanges.NHSNumber != "9449310475" {
		t.Error("expected NHS number staged")
	}
}

func TestStageChanges_HighRiskFields(t *testing.T) {
	p := existingPatient()
	in := incomingFrom(p)
	in.GivenName = "Adeline"
	in.PreferredGivenName = "Addy"
	in.DateOfBirth = date(2012, time.November, 2)
	in.Gender = GenderNotSpecified
	in.Address = Address{Line1: "2 Low Road", Town: "Leeds", Postcode: "LS2 7EW"}

	p.StageChanges(in)

	want := []string{"given_name", "preferred_given_name", "date_of_birth", "gender", "address"}
	got := p.PendingChanges.Fields()
	if len(got) != len(want) {
		t.Fatalf("expected %v staged, got %v", want, got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("expected %v staged, got %v", want, got)
		}
	}
	if p.GivenName != "Ada" || !sameDate(p.DateOfBirth, date(2012, time.October, 1)) {
		t.Error("live values must not change")
	}
}

func TestStageChanges_BlankValuesIgnored(t *testing.T) {
	p := existingPatient()
	in := incomingFrom(p)
	in.PreferredFamilyName = ""
	in.Gender = GenderNotKnown
	in.Address = Address{}

	if p.StageChanges(in) {
		t.Error("blank incoming values must not stage removals")
	}
}

func TestStageChanges_MatchingValueClearsStaged(t *testing.T) {
	p := existingPatient()
	jones := "Jones"
	p.PendingChanges.FamilyName = &jones

	if !p.StageChanges(incomingFrom(p)) {
		t.Error("clearing a staged value is a change")
	}
	if p.PendingChanges.FamilyName != nil {
		t.Error("a staged value equal to the live value must be removed")
	}
}

func TestStageChanges_RepeatedImportIsStable(t *testing.T) {
	p := existingPatient()
	in := incomingFrom(p)
	in.FamilyName = "Jones"

	p.StageChanges(in)
	if p.StageChanges(in) {
		t.Error("re-staging the same value should not count as a change")
	}
}

func TestApplyPendingChanges(t *testing.T) {
	p := existingPatient()
	in := incomingFrom(p)
	in.FamilyName = "Jones"
	in.DateOfBirth = date(2013, time.March, 3)
	p.StageChanges(in)

	if err := p.ApplyPendingChanges(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if p.FamilyName != "Jones" {
		t.Errorf("expected Jones, got %s", p.FamilyName)
	}
	if p.Cohort.BirthAcademicYear != 2012 {
		t.Errorf("born March 2013 is birth academic year 2012, got %d", p.Cohort.BirthAcademicYear)
	}
	if !p.PendingChanges.IsEmpty() {
		t.Error("expected pending changes cleared")
	}
}

func TestApplyPendingChanges_CohortFollowsDOB(t *testing.T) {
	p := existingPatient()
	dob := date(2013, time.October, 5)
	p.PendingChanges.DateOfBirth = &dob

	if err := p.ApplyPendingChanges(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if p.Cohort.BirthAcademicYear != 2013 {
		t.Errorf("expected cohort 2013, got %d", p.Cohort.BirthAcademicYear)
	}
}

func TestDiscardPendingChanges(t *testing.T) {
	p := existingPatient()
	jones := "Jones"
	p.PendingChanges.FamilyName = &jones
	p.DiscardPendingChanges()
	if !p.PendingChanges.IsEmpty() || p.FamilyName != "Smith" {
		t.Error("expected staged values dropped and live kept")
	}
}

func TestPatient_YearGroup(t *testing.T) {
	p := &Patient{DateOfBirth: date(2012, time.October, 1)}
	if got := p.YearGroup(2024); got != 7 {
		t.Errorf("expected year 7, got %d", got)
	}
}

func TestPatient_Validate(t *testing.T) {
	p := existingPatient()
	if err := p.Validate(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	p.NHSNumber = "12345"
	if err := p.Validate(); err == nil {
		t.Error("expected invalid NHS number error")
	}
}

func TestPatient_Excluded(t *testing.T) {
	now := time.Now()
	tests := []struct {
		name       string
		p          Patient
		excluded   bool
		enrollable bool
	}{
		{"active", Patient{}, false, true},
		{"deceased", Patient{DateOfDeath: &now}, true, false},
		{"invalidated", Patient{InvalidatedAt: &now}, true, false},
		{"restricted", Patient{Restricted: true}, true, true},
	}
	for _, tt := range tests {
		if got := tt.p.Excluded(); got != tt.excluded {
			t.Errorf("%s: Excluded() = %v", tt.name, got)
		}
		if got := tt.p.Enrollable(); got != tt.enrollable {
			t.Errorf("%s: Enrollable() = %v", tt.name, got)
		}
	}
}
