// Package cohortimport turns rows of a cohort CSV into patients, parents
// and parent relationships, merging them into the existing records.
package cohortimport

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/nyaruka/phonenumbers"

	"github.com/ehr/schoolvax/internal/domain/patient"
	"github.com/ehr/schoolvax/internal/domain/programme"
	"github.com/ehr/schoolvax/internal/domain/session"
	"github.com/ehr/schoolvax/pkg/academicyear"
)

const (
	ColNHSNumber           = "CHILD_NHS_NUMBER"
	ColGivenName           = "CHILD_FIRST_NAME"
	ColFamilyName          = "CHILD_LAST_NAME"
	ColPreferredGivenName  = "CHILD_PREFERRED_GIVEN_NAME"
	ColPreferredFamilyName = "CHILD_PREFERRED_FAMILY_NAME"
	ColDateOfBirth         = "CHILD_DATE_OF_BIRTH"
	ColGender              = "CHILD_GENDER"
	ColAddressLine1        = "CHILD_ADDRESS_LINE_1"
	ColAddressLine2        = "CHILD_ADDRESS_LINE_2"
	ColTown                = "CHILD_TOWN"
	ColPostcode            = "CHILD_POSTCODE"
	ColRegistration        = "CHILD_REGISTRATION"
	ColSchoolURN           = "CHILD_SCHOOL_URN"
)

// RequiredColumns must appear in the header of every cohort file.
var RequiredColumns = []string{ColGivenName, ColFamilyName, ColDateOfBirth}

// Special school URNs.
const (
	URNHomeEducated = "999999"
	URNUnknown      = "888888"
)

const (
	msgMissing      = "is required but missing"
	msgNotProgramme = "is not part of this programme"
)

// PhoneRegion is the default region for parent phone numbers.
const PhoneRegion = "GB"

func parentColumn(n int, field string) string {
	return fmt.Sprintf("PARENT_%d_%s", n, field)
}

var genders = map[string]patient.Gender{
	"":              patient.GenderNotKnown,
	"male":          patient.GenderMale,
	"female":        patient.GenderFemale,
	"not specified": patient.GenderNotSpecified,
	"not known":     patient.GenderNotKnown,
}

// Row is one data line of the file keyed by column name. Number is the
// line in the file, counting the header as line 1.
type Row struct {
	Number int
	Data   map[string]string
}

func (r Row) get(col string) string { return strings.TrimSpace(r.Data[col]) }

// FieldError attributes a validation failure to a column.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

func (e FieldError) Error() string { return e.Field + " " + e.Message }

// RowError collects every failure on one row. The row is not imported.
type RowError struct {
	Row    int          `json:"row"`
	Errors []FieldError `json:"errors"`
}

func (e *RowError) Error() string {
	msgs := make([]string, len(e.Errors))
	for i, fe := range e.Errors {
		msgs[i] = fe.Error()
	}
	return fmt.Sprintf("row %d: %s", e.Row, strings.Join(msgs, "; "))
}

func (e *RowError) add(field, message string) {
	e.Errors = append(e.Errors, FieldError{Field: field, Message: message})
}

// ParentData is a parent block of a row.
type ParentData struct {
	FullName     string
	Email        string
	Phone        string
	Relationship patient.Relationship
	OtherName    string
}

// Record is a validated row.
type Record struct {
	Row                 int
	NHSNumber           string
	GivenName           string
	FamilyName          string
	PreferredGivenName  string
	PreferredFamilyName string
	DateOfBirth         time.Time
	Gender              patient.Gender
	Address             patient.Address
	Registration        string
	Education           patient.Education
	Parents             []ParentData
}

// SchoolFinder resolves a school URN to its location.
type SchoolFinder interface {
	FindSchoolByURN(ctx context.Context, urn string) (*session.Location, error)
}

// Parser validates rows for one organisation's programmes in an academic
// year.
type Parser struct {
	programmes   []*programme.Programme
	academicYear int
	schools      SchoolFinder
	validate     *validator.Validate
}

func NewParser(programmes []*programme.Programme, academicYear int, schools SchoolFinder) *Parser {
	return &Parser{
		programmes:   programmes,
		academicYear: academicYear,
		schools:      schools,
		validate:     validator.New(),
	}
}

// Parse validates a row. Validation failures come back as *RowError;
// any other error is a lookup failure.
func (p *Parser) Parse(ctx context.Context, row Row) (*Record, error) {
	rowErr := &RowError{Row: row.Number}
	rec := &Record{
		Row:                 row.Number,
		NHSNumber:           strings.ReplaceAll(row.get(ColNHSNumber), " ", ""),
		GivenName:           row.get(ColGivenName),
		FamilyName:          row.get(ColFamilyName),
		PreferredGivenName:  row.get(ColPreferredGivenName),
		PreferredFamilyName: row.get(ColPreferredFamilyName),
		Registration:        row.get(ColRegistration),
		Address: patient.Address{
			Line1:    row.get(ColAddressLine1),
			Line2:    row.get(ColAddressLine2),
			Town:     row.get(ColTown),
			Postcode: strings.ToUpper(row.get(ColPostcode)),
		},
	}

	if rec.GivenName == "" {
		rowErr.add("given_name", msgMissing)
	}
	if rec.FamilyName == "" {
		rowErr.add("family_name", msgMissing)
	}
	if rec.NHSNumber != "" && !patient.ValidNHSNumber(rec.NHSNumber) {
		rowErr.add("nhs_number", "should be a valid NHS number with 10 characters")
	}

	dob, err := time.Parse(time.DateOnly, row.get(ColDateOfBirth))
	if err != nil {
		rowErr.add("date_of_birth", msgMissing)
	} else {
		rec.DateOfBirth = dob
		yg := academicyear.YearGroup(academicyear.BirthAcademicYear(dob), p.academicYear)
		if !programme.AnyEligible(p.programmes, yg) {
			rowErr.add("year_group", msgNotProgramme)
		}
	}

	gender, ok := genders[strings.ToLower(row.get(ColGender))]
	if !ok {
		rowErr.add("gender", "is not a valid gender")
	}
	rec.Gender = gender

	edu, err := p.education(ctx, row.get(ColSchoolURN))
	switch {
	case errors.Is(err, session.ErrLocationNotFound):
		rowErr.add("school_urn", "is not a known school")
	case err != nil:
		return nil, fmt.Errorf("row %d: find school: %w", row.Number, err)
	}
	rec.Education = edu

	for n := 1; n <= 2; n++ {
		if pd, ok := p.parent(row, n, rowErr); ok {
			rec.Parents = append(rec.Parents, pd)
		}
	}

	if len(rowErr.Errors) > 0 {
		return nil, rowErr
	}
	return rec, nil
}

func (p *Parser) education(ctx context.Context, urn string) (patient.Education, error) {
	switch urn {
	case "", URNUnknown:
		return patient.UnknownSchool(), nil
	case URNHomeEducated:
		return patient.HomeEducated(), nil
	}
	loc, err := p.schools.FindSchoolByURN(ctx, urn)
	if err != nil {
		return patient.UnknownSchool(), err
	}
	return patient.AtSchool(loc.ID), nil
}

// parent reads parent block n. A block with no name and no email is
// absent.
func (p *Parser) parent(row Row, n int, rowErr *RowError) (ParentData, bool) {
	pd := ParentData{
		FullName: row.get(parentColumn(n, "NAME")),
		Email:    strings.ToLower(row.get(parentColumn(n, "EMAIL"))),
	}
	phone := row.get(parentColumn(n, "PHONE"))
	label := row.get(parentColumn(n, "RELATIONSHIP"))
	if pd.FullName == "" && pd.Email == "" && phone == "" {
		return pd, false
	}
	prefix := strings.ToLower(fmt.Sprintf("parent_%d_", n))
	if pd.FullName == "" {
		rowErr.add(prefix+"name", msgMissing)
	}
	if pd.Email != "" && p.validate.Var(pd.Email, "email") != nil {
		rowErr.add(prefix+"email", "should be a valid email address")
	}
	if phone != "" {
		formatted, err := FormatPhone(phone)
		if err != nil {
			rowErr.add(prefix+"phone", "should be a valid phone number")
		}
		pd.Phone = formatted
	}
	pd.Relationship, pd.OtherName = patient.ParseRelationship(label)
	return pd, true
}

// FormatPhone normalises a number to national format, for example
// "07412 345678".
func FormatPhone(raw string) (string, error) {
	num, err := phonenumbers.Parse(raw, PhoneRegion)
	if err != nil {
		return "", err
	}
	if !phonenumbers.IsValidNumber(num) {
		return "", fmt.Errorf("invalid phone number %q", raw)
	}
	return phonenumbers.Format(num, phonenumbers.NATIONAL), nil
}

// Patient builds the incoming patient for the record, in organisationID's
// cohort.
func (r *Record) Patient(organisationID uuid.UUID) *patient.Patient {
	p := &patient.Patient{
		NHSNumber:           r.NHSNumber,
		GivenName:           r.GivenName,
		FamilyName:          r.FamilyName,
		PreferredGivenName:  r.PreferredGivenName,
		PreferredFamilyName: r.PreferredFamilyName,
		DateOfBirth:         r.DateOfBirth,
		Gender:              r.Gender,
		Address:             r.Address,
		Registration:        r.Registration,
		Education:           r.Education,
	}
	p.AssignCohort(organisationID)
	return p
}
