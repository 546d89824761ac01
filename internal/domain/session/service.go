package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/ehr/schoolvax/internal/domain/consent"
	"github.com/ehr/schoolvax/internal/domain/organisation"
	"github.com/ehr/schoolvax/internal/domain/patient"
	"github.com/ehr/schoolvax/internal/domain/programme"
	"github.com/ehr/schoolvax/internal/domain/vaccination"
	"github.com/ehr/schoolvax/internal/platform/db"
	"github.com/ehr/schoolvax/pkg/academicyear"
)

// Options are feature toggles supplied at wiring time.
type Options struct {
	// StrictProgrammeOverlap only proposes a move when the patient's
	// existing session shares a programme with the new one. When false,
	// membership of any other open session produces a proposal.
	StrictProgrammeOverlap bool
}

type PatientLister interface {
	ListByCohortOrganisation(ctx context.Context, organisationID uuid.UUID) ([]*patient.Patient, error)
	ListByIDs(ctx context.Context, ids []uuid.UUID) ([]*patient.Patient, error)
}

type ProgrammeLister interface {
	ListByIDs(ctx context.Context, ids []uuid.UUID) ([]*programme.Programme, error)
	ListByOrganisation(ctx context.Context, organisationID uuid.UUID) ([]*programme.Programme, error)
}

type OrganisationGetter interface {
	GetByID(ctx context.Context, id uuid.UUID) (*organisation.Organisation, error)
}

type VaccinationLister interface {
	ListByPatients(ctx context.Context, patientIDs, programmeIDs []uuid.UUID) ([]*vaccination.Vaccination, error)
}

type ConsentStore interface {
	ListByPatients(ctx context.Context, patientIDs, programmeIDs []uuid.UUID) ([]*consent.Consent, error)
	Update(ctx context.Context, c *consent.Consent) error
}

type TriageInvalidator interface {
	InvalidateActive(ctx context.Context, patientIDs, programmeIDs []uuid.UUID) (int, error)
}

// Deps bundles the collaborators the session service reads and writes.
type Deps struct {
	Sessions      Repository
	Locations     LocationRepository
	Memberships   MembershipRepository
	Proposals     ProposalRepository
	Patients      PatientLister
	Programmes    ProgrammeLister
	Organisations OrganisationGetter
	Vaccinations  VaccinationLister
	Consents      ConsentStore
	Triages       TriageInvalidator
	Tx            db.Transactor
}

type Service struct {
	Deps
	opts   Options
	logger zerolog.Logger
	now    func() time.Time
}

func NewService(deps Deps, opts Options, logger zerolog.Logger) *Service {
	return &Service{Deps: deps, opts: opts, logger: logger, now: time.Now}
}

// EnrollResult counts what an enrollment run changed.
type EnrollResult struct {
	SessionID uuid.UUID `json:"session_id"`
	Added     int       `json:"added"`
	Proposed  int       `json:"proposed"`
}

// CloseResult describes a close call. AlreadyClosed calls change nothing.
type CloseResult struct {
	SessionID           uuid.UUID  `json:"session_id"`
	ClosedAt            time.Time  `json:"closed_at"`
	AlreadyClosed       bool       `json:"already_closed"`
	ClinicSessionID     *uuid.UUID `json:"clinic_session_id,omitempty"`
	MovedToClinic       int        `json:"moved_to_clinic"`
	ConsentsInvalidated int        `json:"consents_invalidated"`
	TriagesInvalidated  int        `json:"triages_invalidated"`
}

func (s *Service) CreateSession(ctx context.Context, sess *Session) error {
	if err := sess.Validate(); err != nil {
		return err
	}
	if _, err := s.Locations.GetByID(ctx, sess.LocationID); err != nil {
		return err
	}
	return s.Sessions.Create(ctx, sess)
}

func (s *Service) GetSession(ctx context.Context, id uuid.UUID) (*Session, error) {
	return s.Sessions.GetByID(ctx, id)
}

func (s *Service) ListMembers(ctx context.Context, sessionID uuid.UUID) ([]*Membership, error) {
	return s.Memberships.ListBySession(ctx, sessionID)
}

func (s *Service) ListProposals(ctx context.Context, sessionID uuid.UUID) ([]*Proposal, error) {
	return s.Proposals.ListByTarget(ctx, sessionID)
}

// Enroll adds every eligible patient of the session's organisation to the
// session. A patient already in another open session is proposed for a
// move instead of being added. Running it again with unchanged data adds
// nothing.
func (s *Service) Enroll(ctx context.Context, sessionID uuid.UUID) (*EnrollResult, error) {
	res := &EnrollResult{SessionID: sessionID}
	err := s.Tx.WithinTx(ctx, func(ctx context.Context) error {
		sess, err := s.lockedSession(ctx, sessionID)
		if err != nil {
			return err
		}
		if sess.Closed() {
			return ErrSessionClosed
		}
		return s.enroll(ctx, sess, res)
	})
	if err != nil {
		return nil, err
	}
	s.logger.Info().
		Str("session_id", sessionID.String()).
		Int("added", res.Added).
		Int("proposed", res.Proposed).
		Msg("session enrollment complete")
	return res, nil
}

func (s *Service) enroll(ctx context.Context, sess *Session, res *EnrollResult) error {
	loc, err := s.Locations.GetByID(ctx, sess.LocationID)
	if err != nil {
		return fmt.Errorf("load location: %w", err)
	}
	progs, err := s.Programmes.ListByIDs(ctx, sess.ProgrammeIDs)
	if err != nil {
		return fmt.Errorf("load programmes: %w", err)
	}
	candidates, err := s.candidates(ctx, sess, progs)
	if err != nil {
		return err
	}
	if len(candidates) == 0 {
		return nil
	}

	open, err := s.Sessions.ListOpen(ctx, sess.OrganisationID, sess.AcademicYear)
	if err != nil {
		return fmt.Errorf("list open sessions: %w", err)
	}
	members, err := s.memberSet(ctx, sess.ID)
	if err != nil {
		return err
	}
	proposed, err := s.proposedSet(ctx, sess.ID)
	if err != nil {
		return err
	}
	elsewhere, err := s.otherSessionsByPatient(ctx, sess, open)
	if err != nil {
		return err
	}

	for _, p := range candidates {
		if !s.belongsAt(sess, loc, open, p) {
			continue
		}
		if members[p.ID] || proposed[p.ID] {
			continue
		}
		if others := elsewhere[p.ID]; len(others) > 0 {
			prop := &Proposal{PatientID: p.ID, FromSessionID: others[0].ID, ToSessionID: sess.ID}
			if err := s.Proposals.Create(ctx, prop); err != nil {
				return fmt.Errorf("propose move: %w", err)
			}
			res.Proposed++
			continue
		}
		if err := s.Memberships.Add(ctx, &Membership{SessionID: sess.ID, PatientID: p.ID}); err != nil {
			return fmt.Errorf("add member: %w", err)
		}
		res.Added++
	}
	return nil
}

// candidates are the organisation's enrollable patients in an eligible
// year group who still need at least one of the session's programmes.
func (s *Service) candidates(ctx context.Context, sess *Session, progs []*programme.Programme) ([]*patient.Patient, error) {
	all, err := s.Patients.ListByCohortOrganisation(ctx, sess.OrganisationID)
	if err != nil {
		return nil, fmt.Errorf("list cohort: %w", err)
	}
	var eligible []*patient.Patient
	var ids []uuid.UUID
	for _, p := range all {
		if !p.Enrollable() || !programme.AnyEligible(progs, p.YearGroup(sess.AcademicYear)) {
			continue
		}
		eligible = append(eligible, p)
		ids = append(ids, p.ID)
	}
	if len(eligible) == 0 {
		return nil, nil
	}
	vs, err := s.Vaccinations.ListByPatients(ctx, ids, sess.ProgrammeIDs)
	if err != nil {
		return nil, fmt.Errorf("list vaccinations: %w", err)
	}
	byPatient := vaccination.ByPatient(vs)
	out := eligible[:0]
	for _, p := range eligible {
		if vaccination.SatisfiesAll(byPatient[p.ID], sess.ProgrammeIDs, sess.AcademicYear) {
			continue
		}
		out = append(out, p)
	}
	return out, nil
}

// belongsAt decides whether a patient's education places them at the
// session's location. A generic clinic takes every child without a
// school session of their own.
func (s *Service) belongsAt(sess *Session, loc *Location, open []*Session, p *patient.Patient) bool {
	if !loc.GenericClinic() {
		return p.Education.AttendsSchool(loc.ID)
	}
	if p.Education.HomeEducated || p.Education.SchoolID == nil {
		return true
	}
	school := *p.Education.SchoolID
	for _, o := range open {
		if o.ID != sess.ID && o.LocationID == school && o.SharesProgramme(sess) {
			return false
		}
	}
	return true
}

func (s *Service) memberSet(ctx context.Context, sessionID uuid.UUID) (map[uuid.UUID]bool, error) {
	ms, err := s.Memberships.ListBySession(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("list members: %w", err)
	}
	set := make(map[uuid.UUID]bool, len(ms))
	for _, m := range ms {
		set[m.PatientID] = true
	}
	return set, nil
}

func (s *Service) proposedSet(ctx context.Context, sessionID uuid.UUID) (map[uuid.UUID]bool, error) {
	ps, err := s.Proposals.ListByTarget(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("list proposals: %w", err)
	}
	set := make(map[uuid.UUID]bool, len(ps))
	for _, p := range ps {
		set[p.PatientID] = true
	}
	return set, nil
}

// otherSessionsByPatient maps each patient to the other open sessions
// they belong to, in the order ListOpen returns them.
func (s *Service) otherSessionsByPatient(ctx context.Context, sess *Session, open []*Session) (map[uuid.UUID][]*Session, error) {
	out := make(map[uuid.UUID][]*Session)
	for _, o := range open {
		if o.ID == sess.ID {
			continue
		}
		if s.opts.StrictProgrammeOverlap && !o.SharesProgramme(sess) {
			continue
		}
		ms, err := s.Memberships.ListBySession(ctx, o.ID)
		if err != nil {
			return nil, fmt.Errorf("list members of %s: %w", o.ID, err)
		}
		for _, m := range ms {
			out[m.PatientID] = append(out[m.PatientID], o)
		}
	}
	return out, nil
}

// Close closes the session. Unvaccinated members move to the
// organisation's generic clinic session, and consents given on a route
// tied to the session are invalidated along with the patients' triage.
// Closing a closed session changes nothing.
func (s *Service) Close(ctx context.Context, sessionID uuid.UUID) (*CloseResult, error) {
	res := &CloseResult{SessionID: sessionID}
	err := s.Tx.WithinTx(ctx, func(ctx context.Context) error {
		sess, err := s.lockedSession(ctx, sessionID)
		if err != nil {
			return err
		}
		if sess.Closed() {
			res.AlreadyClosed = true
			res.ClosedAt = *sess.ClosedAt
			return nil
		}
		now := s.now()
		closed, err := s.Sessions.MarkClosed(ctx, sess.ID, now)
		if err != nil {
			return fmt.Errorf("close session: %w", err)
		}
		if !closed {
			current, err := s.Sessions.GetByID(ctx, sessionID)
			if err != nil {
				return err
			}
			res.AlreadyClosed = true
			if current.ClosedAt != nil {
				res.ClosedAt = *current.ClosedAt
			}
			return nil
		}
		sess.ClosedAt = &now
		res.ClosedAt = now
		return s.afterClose(ctx, sess, res)
	})
	if err != nil {
		return nil, err
	}
	if res.AlreadyClosed {
		s.logger.Warn().Str("session_id", sessionID.String()).Msg("session already closed")
		return res, nil
	}
	s.logger.Info().
		Str("session_id", sessionID.String()).
		Int("moved_to_clinic", res.MovedToClinic).
		Int("consents_invalidated", res.ConsentsInvalidated).
		Int("triages_invalidated", res.TriagesInvalidated).
		Msg("session closed")
	return res, nil
}

// lockedSession loads the session once its organisation's lock for the
// academic year is held. Membership changes in that year are serialised
// behind the lock.
func (s *Service) lockedSession(ctx context.Context, id uuid.UUID) (*Session, error) {
	sess, err := s.Sessions.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.Sessions.LockOrganisation(ctx, sess.OrganisationID, sess.AcademicYear); err != nil {
		return nil, fmt.Errorf("lock organisation: %w", err)
	}
	return s.Sessions.GetByID(ctx, id)
}

func (s *Service) afterClose(ctx context.Context, sess *Session, res *CloseResult) error {
	ms, err := s.Memberships.ListBySession(ctx, sess.ID)
	if err != nil {
		return fmt.Errorf("list members: %w", err)
	}
	if len(ms) == 0 {
		return nil
	}
	ids := make([]uuid.UUID, len(ms))
	for i, m := range ms {
		ids[i] = m.PatientID
	}

	if err := s.moveUnvaccinatedToClinic(ctx, sess, ids, res); err != nil {
		return err
	}

	consents, err := s.Consents.ListByPatients(ctx, ids, sess.ProgrammeIDs)
	if err != nil {
		return fmt.Errorf("list consents: %w", err)
	}
	var affected []uuid.UUID
	seen := make(map[uuid.UUID]bool)
	for _, c := range consents {
		if !c.Active() || !consent.InvalidatedOnSessionClose[c.Route] {
			continue
		}
		if err := c.Invalidate("", res.ClosedAt); err != nil {
			return err
		}
		if err := s.Consents.Update(ctx, c); err != nil {
			return fmt.Errorf("invalidate consent: %w", err)
		}
		res.ConsentsInvalidated++
		if !seen[c.PatientID] {
			seen[c.PatientID] = true
			affected = append(affected, c.PatientID)
		}
	}
	if len(affected) == 0 {
		return nil
	}
	n, err := s.Triages.InvalidateActive(ctx, affected, sess.ProgrammeIDs)
	if err != nil {
		return fmt.Errorf("invalidate triage: %w", err)
	}
	res.TriagesInvalidated = n
	return nil
}

func (s *Service) moveUnvaccinatedToClinic(ctx context.Context, sess *Session, ids []uuid.UUID, res *CloseResult) error {
	loc, err := s.Locations.GetByID(ctx, sess.LocationID)
	if err != nil {
		return fmt.Errorf("load location: %w", err)
	}
	if loc.GenericClinic() {
		return nil
	}
	patients, err := s.Patients.ListByIDs(ctx, ids)
	if err != nil {
		return fmt.Errorf("load members: %w", err)
	}
	vs, err := s.Vaccinations.ListByPatients(ctx, ids, sess.ProgrammeIDs)
	if err != nil {
		return fmt.Errorf("list vaccinations: %w", err)
	}
	byPatient := vaccination.ByPatient(vs)

	var moving []*patient.Patient
	for _, p := range patients {
		if !p.Enrollable() {
			continue
		}
		if vaccination.SatisfiesAll(byPatient[p.ID], sess.ProgrammeIDs, sess.AcademicYear) {
			continue
		}
		moving = append(moving, p)
	}
	if len(moving) == 0 {
		return nil
	}

	year := academicyear.Of(res.ClosedAt)
	if year != sess.AcademicYear {
		// older year already held, so locks are always taken oldest first
		if err := s.Sessions.LockOrganisation(ctx, sess.OrganisationID, year); err != nil {
			return fmt.Errorf("lock organisation: %w", err)
		}
	}
	clinic, err := s.genericClinicSession(ctx, sess.OrganisationID, year)
	if err != nil {
		return err
	}
	res.ClinicSessionID = &clinic.ID
	already, err := s.memberSet(ctx, clinic.ID)
	if err != nil {
		return err
	}
	for _, p := range moving {
		if already[p.ID] {
			continue
		}
		if err := s.Memberships.Add(ctx, &Membership{SessionID: clinic.ID, PatientID: p.ID}); err != nil {
			return fmt.Errorf("add to clinic: %w", err)
		}
		res.MovedToClinic++
	}
	return nil
}

// genericClinicSession finds or creates the organisation's community
// clinic location and its open session for the academic year.
func (s *Service) genericClinicSession(ctx context.Context, organisationID uuid.UUID, year int) (*Session, error) {
	org, err := s.Organisations.GetByID(ctx, organisationID)
	if err != nil {
		return nil, fmt.Errorf("load organisation: %w", err)
	}
	loc, err := s.Locations.FindGenericClinic(ctx, organisationID, org.ODSCode)
	if errors.Is(err, ErrLocationNotFound) {
		loc = &Location{
			OrganisationID: &organisationID,
			Name:           GenericClinicName,
			Type:           LocationGenericClinic,
			ODSCode:        org.ODSCode,
		}
		err = s.Locations.Create(ctx, loc)
	}
	if err != nil {
		return nil, fmt.Errorf("generic clinic: %w", err)
	}

	clinic, err := s.Sessions.FindOpenByLocation(ctx, organisationID, loc.ID, year)
	if err == nil {
		return clinic, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return nil, fmt.Errorf("find clinic session: %w", err)
	}
	progs, err := s.Programmes.ListByOrganisation(ctx, organisationID)
	if err != nil {
		return nil, fmt.Errorf("load organisation programmes: %w", err)
	}
	clinic = &Session{
		OrganisationID: organisationID,
		LocationID:     loc.ID,
		ProgrammeIDs:   programme.IDs(progs),
		AcademicYear:   year,
	}
	if err := s.Sessions.Create(ctx, clinic); err != nil {
		return nil, fmt.Errorf("create clinic session: %w", err)
	}
	s.logger.Info().
		Str("organisation_id", organisationID.String()).
		Str("session_id", clinic.ID.String()).
		Msg("generic clinic session created")
	return clinic, nil
}

func (s *Service) proposalFor(ctx context.Context, sessionID, proposalID uuid.UUID) (*Proposal, error) {
	prop, err := s.Proposals.GetByID(ctx, proposalID)
	if err != nil {
		return nil, err
	}
	if prop.ToSessionID != sessionID {
		return nil, ErrProposalNotFound
	}
	return prop, nil
}

// ConfirmProposal moves the patient out of the session they were in and
// into the proposed one. A proposal for a patient who can no longer be
// enrolled is discarded without moving them and ErrNotEnrollable is
// returned.
func (s *Service) ConfirmProposal(ctx context.Context, sessionID, proposalID uuid.UUID) (*Proposal, error) {
	var (
		prop      *Proposal
		discarded bool
	)
	err := s.Tx.WithinTx(ctx, func(ctx context.Context) error {
		var err error
		prop, err = s.proposalFor(ctx, sessionID, proposalID)
		if err != nil {
			return err
		}
		target, err := s.lockedSession(ctx, prop.ToSessionID)
		if err != nil {
			return err
		}
		if target.Closed() {
			return ErrSessionClosed
		}
		ok, err := s.enrollable(ctx, prop.PatientID)
		if err != nil {
			return err
		}
		if !ok {
			discarded = true
			return s.Proposals.Delete(ctx, prop.ID)
		}
		if err := s.Memberships.Remove(ctx, prop.FromSessionID, prop.PatientID); err != nil {
			return err
		}
		if err := s.Memberships.Add(ctx, &Membership{SessionID: prop.ToSessionID, PatientID: prop.PatientID}); err != nil {
			return err
		}
		return s.Proposals.Delete(ctx, prop.ID)
	})
	if err != nil {
		return nil, err
	}
	if discarded {
		s.logger.Warn().
			Str("proposal_id", proposalID.String()).
			Str("patient_id", prop.PatientID.String()).
			Msg("proposal discarded, patient not enrollable")
		return prop, ErrNotEnrollable
	}
	return prop, nil
}

func (s *Service) enrollable(ctx context.Context, patientID uuid.UUID) (bool, error) {
	ps, err := s.Patients.ListByIDs(ctx, []uuid.UUID{patientID})
	if err != nil {
		return false, fmt.Errorf("load patient: %w", err)
	}
	for _, p := range ps {
		if p.ID == patientID {
			return p.Enrollable(), nil
		}
	}
	return false, nil
}

// DeclineProposal discards the proposal and leaves membership unchanged.
func (s *Service) DeclineProposal(ctx context.Context, sessionID, proposalID uuid.UUID) error {
	return s.Tx.WithinTx(ctx, func(ctx context.Context) error {
		if _, err := s.proposalFor(ctx, sessionID, proposalID); err != nil {
			return err
		}
		return s.Proposals.Delete(ctx, proposalID)
	})
}
