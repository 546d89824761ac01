package cohortimport

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/ehr/schoolvax/internal/domain/patient"
	"github.com/ehr/schoolvax/internal/domain/programme"
	"github.com/ehr/schoolvax/internal/domain/session"
	"github.com/ehr/schoolvax/internal/platform/blobstore"
	"github.com/ehr/schoolvax/internal/platform/db"
	"github.com/ehr/schoolvax/internal/platform/identity"
	"github.com/ehr/schoolvax/pkg/academicyear"
)

var (
	ErrAmbiguousMatch = errors.New("row matches more than one existing patient")
	ErrFileTooLarge   = errors.New("cohort file is too large")
)

// Outcome is what importing a row did to the patient records.
type Outcome string

const (
	OutcomeNew       Outcome = "new"
	OutcomeChanged   Outcome = "changed"
	OutcomeDuplicate Outcome = "duplicate"
)

// lookupConcurrency bounds identity searches in flight per import.
const lookupConcurrency = 4

type ProgrammeLister interface {
	ListByOrganisation(ctx context.Context, organisationID uuid.UUID) ([]*programme.Programme, error)
}

type Enroller interface {
	Enroll(ctx context.Context, sessionID uuid.UUID) (*session.EnrollResult, error)
}

// Deps are the importer's collaborators. Identity, Blobs and Enroller
// are optional.
type Deps struct {
	Patients   patient.Repository
	Parents    patient.ParentRepository
	Schools    SchoolFinder
	Programmes ProgrammeLister
	Identity   identity.Lookup
	Blobs      blobstore.BlobStore
	Enroller   Enroller
	Tx         db.Transactor
}

type Importer struct {
	Deps
	logger zerolog.Logger
	now    func() time.Time
}

func NewImporter(deps Deps, logger zerolog.Logger) *Importer {
	return &Importer{Deps: deps, logger: logger, now: time.Now}
}

// Request is one uploaded cohort file.
type Request struct {
	OrganisationID uuid.UUID
	SessionID      *uuid.UUID
	Content        io.Reader
}

type Result struct {
	ImportID   uuid.UUID             `json:"import_id"`
	BlobKey    string                `json:"blob_key,omitempty"`
	Rows       int                   `json:"rows"`
	New        int                   `json:"new"`
	Changed    int                   `json:"changed"`
	Duplicate  int                   `json:"duplicate"`
	Errors     []*RowError           `json:"errors,omitempty"`
	Enrollment *session.EnrollResult `json:"enrollment,omitempty"`
	// EnrollmentError is set when the rows were imported but the session
	// could not be re-enrolled.
	EnrollmentError string `json:"enrollment_error,omitempty"`
}

func (r *Result) count(o Outcome) {
	switch o {
	case OutcomeNew:
		r.New++
	case OutcomeChanged:
		r.Changed++
	case OutcomeDuplicate:
		r.Duplicate++
	}
}

// BlobKey is where an import's file is archived.
func BlobKey(organisationID, importID uuid.UUID) string {
	return fmt.Sprintf("cohort-imports/%s/%s.csv", organisationID, importID)
}

// Import reads, validates and merges a cohort file. Each row commits on
// its own; a rejected row leaves nothing behind and does not stop the
// rest. When a session is given it is re-enrolled afterwards.
func (im *Importer) Import(ctx context.Context, req Request) (*Result, error) {
	if req.OrganisationID == uuid.Nil {
		return nil, fmt.Errorf("organisation_id is required")
	}
	data, err := io.ReadAll(io.LimitReader(req.Content, blobstore.MaxFileSize+1))
	if err != nil {
		return nil, fmt.Errorf("read upload: %w", err)
	}
	if len(data) > blobstore.MaxFileSize {
		return nil, ErrFileTooLarge
	}
	rows, err := ReadRows(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}

	res := &Result{ImportID: uuid.New(), Rows: len(rows)}
	if im.Blobs != nil {
		key := BlobKey(req.OrganisationID, res.ImportID)
		if _, err := im.Blobs.Put(ctx, key, "text/csv", bytes.NewReader(data)); err != nil {
			return nil, fmt.Errorf("archive upload: %w", err)
		}
		res.BlobKey = key
	}

	progs, err := im.Programmes.ListByOrganisation(ctx, req.OrganisationID)
	if err != nil {
		return nil, fmt.Errorf("load programmes: %w", err)
	}
	parser := NewParser(progs, academicyear.Current(im.now()), im.Schools)

	var records []*Record
	for _, row := range rows {
		rec, err := parser.Parse(ctx, row)
		var rowErr *RowError
		if errors.As(err, &rowErr) {
			res.Errors = append(res.Errors, rowErr)
			continue
		}
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}

	im.lookupNHSNumbers(ctx, records)

	cache := newParentCache()
	for _, rec := range records {
		outcome, err := im.importRecord(ctx, req.OrganisationID, rec, cache)
		if errors.Is(err, ErrAmbiguousMatch) {
			res.Errors = append(res.Errors, &RowError{
				Row:    rec.Row,
				Errors: []FieldError{{Field: "patient", Message: "matches more than one existing patient"}},
			})
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("row %d: %w", rec.Row, err)
		}
		res.count(outcome)
	}

	im.logger.Info().
		Str("organisation_id", req.OrganisationID.String()).
		Str("import_id", res.ImportID.String()).
		Int("rows", res.Rows).
		Int("new", res.New).
		Int("changed", res.Changed).
		Int("duplicate", res.Duplicate).
		Int("rejected", len(res.Errors)).
		Msg("cohort import complete")

	if req.SessionID != nil && im.Enroller != nil {
		enrolled, err := im.Enroller.Enroll(ctx, *req.SessionID)
		if err != nil {
			im.logger.Warn().Err(err).Str("session_id", req.SessionID.String()).Msg("enroll after cohort import failed")
			res.EnrollmentError = err.Error()
			return res, nil
		}
		res.Enrollment = enrolled
	}
	return res, nil
}

// lookupNHSNumbers fills in NHS numbers for records without one. A
// failed lookup is logged and the record is matched without it.
func (im *Importer) lookupNHSNumbers(ctx context.Context, records []*Record) {
	if im.Identity == nil {
		return
	}
	var g errgroup.Group
	g.SetLimit(lookupConcurrency)
	for _, rec := range records {
		if rec.NHSNumber != "" {
			continue
		}
		rec := rec
		g.Go(func() error {
			found, err := im.Identity.Search(ctx, identity.Query{
				FamilyName:  rec.FamilyName,
				GivenName:   rec.GivenName,
				DateOfBirth: rec.DateOfBirth,
				Postcode:    rec.Address.Postcode,
			})
			if err != nil {
				im.logger.Warn().Err(err).Int("row", rec.Row).Msg("identity lookup failed")
				return nil
			}
			if found != nil {
				rec.NHSNumber = found.NHSNumber
			}
			return nil
		})
	}
	_ = g.Wait()
}

func (im *Importer) importRecord(ctx context.Context, organisationID uuid.UUID, rec *Record, cache *parentCache) (Outcome, error) {
	var outcome Outcome
	err := im.Tx.WithinTx(ctx, func(ctx context.Context) error {
		p, o, err := im.ToPatient(ctx, organisationID, rec)
		if err != nil {
			return err
		}
		parents, err := im.ToParents(ctx, rec, cache)
		if err != nil {
			return err
		}
		for _, rel := range ToParentRelationships(rec, parents, p) {
			if err := im.Parents.UpsertRelationship(ctx, rel); err != nil {
				return fmt.Errorf("link parent: %w", err)
			}
		}
		outcome = o
		return nil
	})
	if err != nil {
		cache.rollback()
		return "", err
	}
	cache.commit()
	return outcome, nil
}

// ToPatient creates the record's patient, or merges it into the matching
// existing one. Risky differences are staged for review.
func (im *Importer) ToPatient(ctx context.Context, organisationID uuid.UUID, rec *Record) (*patient.Patient, Outcome, error) {
	incoming := rec.Patient(organisationID)
	existing, err := im.match(ctx, rec)
	if err != nil {
		return nil, "", err
	}
	if existing == nil {
		if err := im.Patients.Create(ctx, incoming); err != nil {
			return nil, "", fmt.Errorf("create patient: %w", err)
		}
		return incoming, OutcomeNew, nil
	}
	if !existing.StageChanges(incoming) {
		return existing, OutcomeDuplicate, nil
	}
	if err := im.Patients.Update(ctx, existing); err != nil {
		return nil, "", fmt.Errorf("update patient: %w", err)
	}
	return existing, OutcomeChanged, nil
}

// match finds the existing patient by NHS number, then by exact name,
// date of birth and postcode.
func (im *Importer) match(ctx context.Context, rec *Record) (*patient.Patient, error) {
	if rec.NHSNumber != "" {
		p, err := im.Patients.FindByNHSNumber(ctx, rec.NHSNumber)
		if err == nil {
			return p, nil
		}
		if !errors.Is(err, patient.ErrNotFound) {
			return nil, fmt.Errorf("match by nhs number: %w", err)
		}
	}
	if rec.Address.Postcode == "" {
		return nil, nil
	}
	ps, err := im.Patients.FindByNameDOBPostcode(ctx, rec.GivenName, rec.FamilyName, rec.DateOfBirth, rec.Address.Postcode)
	if err != nil {
		return nil, fmt.Errorf("match by name: %w", err)
	}
	switch len(ps) {
	case 0:
		return nil, nil
	case 1:
		return ps[0], nil
	}
	return nil, ErrAmbiguousMatch
}

// ToParents returns the record's parents, reusing any parent already
// known by name and email. Existing parents keep their contact
// preferences.
func (im *Importer) ToParents(ctx context.Context, rec *Record, cache *parentCache) ([]*patient.Parent, error) {
	var out []*patient.Parent
	for _, pd := range rec.Parents {
		key := patient.MatchKey(pd.FullName, pd.Email)
		if p := cache.get(key); p != nil {
			out = append(out, p)
			continue
		}
		p, err := im.Parents.FindByNameEmail(ctx, pd.FullName, pd.Email)
		switch {
		case err == nil:
			if pd.Phone != "" && pd.Phone != p.Phone {
				p.Phone = pd.Phone
				if err := im.Parents.Update(ctx, p); err != nil {
					return nil, fmt.Errorf("update parent: %w", err)
				}
			}
		case errors.Is(err, patient.ErrParentNotFound):
			p = &patient.Parent{FullName: pd.FullName, Email: pd.Email, Phone: pd.Phone}
			if err := im.Parents.Create(ctx, p); err != nil {
				return nil, fmt.Errorf("create parent: %w", err)
			}
		default:
			return nil, fmt.Errorf("find parent: %w", err)
		}
		cache.put(p)
		out = append(out, p)
	}
	return out, nil
}

// ToParentRelationships links each parent to the patient with the row's
// relationship. parents is in the order ToParents returned.
func ToParentRelationships(rec *Record, parents []*patient.Parent, p *patient.Patient) []*patient.ParentRelationship {
	out := make([]*patient.ParentRelationship, 0, len(parents))
	for i, parent := range parents {
		if i >= len(rec.Parents) {
			break
		}
		pd := rec.Parents[i]
		out = append(out, &patient.ParentRelationship{
			ParentID:  parent.ID,
			PatientID: p.ID,
			Type:      pd.Relationship,
			OtherName: pd.OtherName,
		})
	}
	return out
}

// parentCache makes identical parents on different rows resolve to one
// record. Entries from a row become visible to later rows only once the
// row commits.
type parentCache struct {
	committed map[string]*patient.Parent
	pending   map[string]*patient.Parent
}

func newParentCache() *parentCache {
	return &parentCache{committed: map[string]*patient.Parent{}, pending: map[string]*patient.Parent{}}
}

func (c *parentCache) get(key string) *patient.Parent {
	if p, ok := c.pending[key]; ok {
		return p
	}
	return c.committed[key]
}

func (c *parentCache) put(p *patient.Parent) { c.pending[p.MatchKey()] = p }

func (c *parentCache) commit() {
	for k, p := range c.pending {
		c.committed[k] = p
	}
	c.pending = map[string]*patient.Parent{}
}

func (c *parentCache) rollback() { c.pending = map[string]*patient.Parent{} }
