package patient

import "time"

// PendingChanges holds imported values for high-risk fields that differ
// from the live record. Nothing here is authoritative until applied.
type PendingChanges struct {
	NHSNumber           *string    `json:"nhs_number,omitempty"`
	GivenName           *string    `json:"given_name,omitempty"`
	FamilyName          *string    `json:"family_name,omitempty"`
	PreferredGivenName  *string    `json:"preferred_given_name,omitempty"`
	PreferredFamilyName *string    `json:"preferred_family_name,omitempty"`
	DateOfBirth         *time.Time `json:"date_of_birth,omitempty"`
	Gender              *Gender    `json:"gender,omitempty"`
	Address             *Address   `json:"address,omitempty"`
	Education           *Education `json:"education,omitempty"`
}

func (pc PendingChanges) IsEmpty() bool {
	return len(pc.Fields()) == 0
}

// Fields lists the staged field names in a fixed order.
func (pc PendingChanges) Fields() []string {
	var out []string
	add := func(set bool, name string) {
		if set {
			out = append(out, name)
		}
	}
	add(pc.NHSNumber != nil, "nhs_number")
	add(pc.GivenName != nil, "given_name")
	add(pc.FamilyName != nil, "family_name")
	add(pc.PreferredGivenName != nil, "preferred_given_name")
	add(pc.PreferredFamilyName != nil, "preferred_family_name")
	add(pc.DateOfBirth != nil, "date_of_birth")
	add(pc.Gender != nil, "gender")
	add(pc.Address != nil, "address")
	add(pc.Education != nil, "education")
	return out
}

// stageString stages incoming against live. An empty incoming value is
// treated as not supplied. A value equal to live clears any staged one.
func stageString(pending **string, live, incoming string) bool {
	if incoming == "" {
		return false
	}
	if incoming == live {
		if *pending != nil {
			*pending = nil
			return true
		}
		return false
	}
	if *pending != nil && **pending == incoming {
		return false
	}
	v := incoming
	*pending = &v
	return true
}

func stageDate(pending **time.Time, live, incoming time.Time) bool {
	if incoming.IsZero() {
		return false
	}
	if sameDate(incoming, live) {
		if *pending != nil {
			*pending = nil
			return true
		}
		return false
	}
	if *pending != nil && sameDate(**pending, incoming) {
		return false
	}
	v := incoming
	*pending = &v
	return true
}

func stageGender(pending **Gender, live, incoming Gender) bool {
	if incoming == "" || incoming == GenderNotKnown {
		return false
	}
	if incoming == live {
		if *pending != nil {
			*pending = nil
			return true
		}
		return false
	}
	if *pending != nil && **pending == incoming {
		return false
	}
	v := incoming
	*pending = &v
	return true
}

func stageAddress(pending **Address, live, incoming Address) bool {
	if incoming.IsZero() {
		return false
	}
	if incoming == live {
		if *pending != nil {
			*pending = nil
			return true
		}
		return false
	}
	if *pending != nil && **pending == incoming {
		return false
	}
	v := incoming
	*pending = &v
	return true
}

func stageEducation(pending **Education, live, incoming Education) bool {
	if incoming.Equal(live) {
		if *pending != nil {
			*pending = nil
			return true
		}
		return false
	}
	if *pending != nil && (*pending).Equal(incoming) {
		return false
	}
	v := incoming
	*pending = &v
	return true
}

// StageChanges merges an imported version of the patient into p.
//
// Filling an empty field cannot overwrite a verified value, so the NHS
// number when p has none, the registration, the school when p has no
// school and is not home educated, and the cohort when p has none are
// applied directly. Names, date of birth, gender, address, a differing
// NHS number and a change to known education are staged in
// PendingChanges. It reports whether p changed in any way.
func (p *Patient) StageChanges(in *Patient) bool {
	changed := false
	pc := &p.PendingChanges

	if in.NHSNumber != "" {
		if p.NHSNumber == "" {
			p.NHSNumber = in.NHSNumber
			pc.NHSNumber = nil
			changed = true
		} else if stageString(&pc.NHSNumber, p.NHSNumber, in.NHSNumber) {
			changed = true
		}
	}

	if in.Registration != "" && in.Registration != p.Registration {
		p.Registration = in.Registration
		changed = true
	}

	if p.Cohort == nil && in.Cohort != nil {
		c := *in.Cohort
		p.Cohort = &c
		changed = true
	}

	if in.Education.Known() {
		if !p.Education.Known() {
			p.Education = in.Education
			pc.Education = nil
			changed = true
		} else if stageEducation(&pc.Education, p.Education, in.Education) {
			changed = true
		}
	}

	for _, staged := range []bool{
		stageString(&pc.GivenName, p.GivenName, in.GivenName),
		stageString(&pc.FamilyName, p.FamilyName, in.FamilyName),
		stageString(&pc.PreferredGivenName, p.PreferredGivenName, in.PreferredGivenName),
		stageString(&pc.PreferredFamilyName, p.PreferredFamilyName, in.PreferredFamilyName),
		stageDate(&pc.DateOfBirth, p.DateOfBirth, in.DateOfBirth),
		stageGender(&pc.Gender, p.Gender, in.Gender),
		stageAddress(&pc.Address, p.Address, in.Address),
	} {
		changed = changed || staged
	}
	return changed
}

// ApplyPendingChanges copies staged values onto the live record and
// clears them. The cohort follows a changed date of birth.
func (p *Patient) ApplyPendingChanges() error {
	pc := p.PendingChanges
	if pc.Education != nil {
		if err := pc.Education.Validate(); err != nil {
			return err
		}
	}
	if pc.NHSNumber != nil {
		p.NHSNumber = *pc.NHSNumber
	}
	if pc.GivenName != nil {
		p.GivenName = *pc.GivenName
	}
	if pc.FamilyName != nil {
		p.FamilyName = *pc.FamilyName
	}
	if pc.PreferredGivenName != nil {
		p.PreferredGivenName = *pc.PreferredGivenName
	}
	if pc.PreferredFamilyName != nil {
		p.PreferredFamilyName = *pc.PreferredFamilyName
	}
	if pc.DateOfBirth != nil {
		p.DateOfBirth = *pc.DateOfBirth
		if p.Cohort != nil {
			p.AssignCohort(p.Cohort.OrganisationID)
		}
	}
	if pc.Gender != nil {
		p.Gender = *pc.Gender
	}
	if pc.Address != nil {
		p.Address = *pc.Address
	}
	if pc.Education != nil {
		p.Education = *pc.Education
	}
	p.PendingChanges = PendingChanges{}
	return nil
}

func (p *Patient) DiscardPendingChanges() {
	p.PendingChanges = PendingChanges{}
}
