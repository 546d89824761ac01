package status

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/ehr/schoolvax/internal/domain/consent"
	"github.com/ehr/schoolvax/internal/domain/patient"
	"github.com/ehr/schoolvax/internal/domain/programme"
	"github.com/ehr/schoolvax/internal/domain/session"
	"github.com/ehr/schoolvax/internal/domain/triage"
	"github.com/ehr/schoolvax/internal/domain/vaccination"
	"github.com/ehr/schoolvax/internal/platform/notification"
	"github.com/ehr/schoolvax/pkg/academicyear"
)

var (
	ErrNotMember     = errors.New("patient is not a member of the session")
	ErrConsentClosed = errors.New("session is not open for consent")
)

type PatientStore interface {
	GetByID(ctx context.Context, id uuid.UUID) (*patient.Patient, error)
	ListByIDs(ctx context.Context, ids []uuid.UUID) ([]*patient.Patient, error)
}

type ConsentLister interface {
	ListByPatients(ctx context.Context, patientIDs, programmeIDs []uuid.UUID) ([]*consent.Consent, error)
}

type TriageLister interface {
	ListByPatients(ctx context.Context, patientIDs, programmeIDs []uuid.UUID) ([]*triage.Triage, error)
}

type VaccinationLister interface {
	ListByPatients(ctx context.Context, patientIDs, programmeIDs []uuid.UUID) ([]*vaccination.Vaccination, error)
}

type SessionGetter interface {
	GetByID(ctx context.Context, id uuid.UUID) (*session.Session, error)
}

type MembershipLister interface {
	ListBySession(ctx context.Context, sessionID uuid.UUID) ([]*session.Membership, error)
	ListByPatient(ctx context.Context, patientID uuid.UUID) ([]*session.Membership, error)
}

type ProgrammeLister interface {
	ListByIDs(ctx context.Context, ids []uuid.UUID) ([]*programme.Programme, error)
}

type Deps struct {
	Patients     PatientStore
	Consents     ConsentLister
	Triages      TriageLister
	Vaccinations VaccinationLister
	Sessions     SessionGetter
	Memberships  MembershipLister
	Programmes   ProgrammeLister
	Dispatcher   notification.Dispatcher
}

// Service reads patient state for staff and fires the parent-facing
// triggers. It implements the consent, triage and vaccination notifiers.
type Service struct {
	Deps
	logger zerolog.Logger
	now    func() time.Time
}

func NewService(deps Deps, logger zerolog.Logger) *Service {
	return &Service{Deps: deps, logger: logger, now: time.Now}
}

type ProgrammeStatus struct {
	ProgrammeID    uuid.UUID `json:"programme_id"`
	NextStep       NextStep  `json:"next_step"`
	ActionRequired bool      `json:"action_required"`
	TriageReasons  []string  `json:"triage_reasons,omitempty"`
}

type PatientStatus struct {
	PatientID  uuid.UUID         `json:"patient_id"`
	SessionID  uuid.UUID         `json:"session_id"`
	Programmes []ProgrammeStatus `json:"programmes"`
}

type ConsentRequestResult struct {
	SessionID uuid.UUID            `json:"session_id"`
	Trigger   notification.Trigger `json:"trigger"`
	Sent      int                  `json:"sent"`
	Failed    int                  `json:"failed"`
}

// records holds one batch load grouped by patient.
type records struct {
	consents     map[uuid.UUID][]*consent.Consent
	triages      map[uuid.UUID][]*triage.Triage
	vaccinations map[uuid.UUID][]*vaccination.Vaccination
}

func (r *records) input(p *patient.Patient, programmeID uuid.UUID, academicYear int) Input {
	return Input{
		Patient:      p,
		ProgrammeID:  programmeID,
		AcademicYear: academicYear,
		Consents:     r.consents[p.ID],
		Triages:      r.triages[p.ID],
		Vaccinations: r.vaccinations[p.ID],
	}
}

func (s *Service) load(ctx context.Context, patientIDs, programmeIDs []uuid.UUID) (*records, error) {
	cs, err := s.Consents.ListByPatients(ctx, patientIDs, programmeIDs)
	if err != nil {
		return nil, fmt.Errorf("list consents: %w", err)
	}
	ts, err := s.Triages.ListByPatients(ctx, patientIDs, programmeIDs)
	if err != nil {
		return nil, fmt.Errorf("list triages: %w", err)
	}
	vs, err := s.Vaccinations.ListByPatients(ctx, patientIDs, programmeIDs)
	if err != nil {
		return nil, fmt.Errorf("list vaccinations: %w", err)
	}
	r := &records{
		consents:     make(map[uuid.UUID][]*consent.Consent),
		triages:      make(map[uuid.UUID][]*triage.Triage),
		vaccinations: vaccination.ByPatient(vs),
	}
	for _, c := range cs {
		r.consents[c.PatientID] = append(r.consents[c.PatientID], c)
	}
	for _, t := range ts {
		r.triages[t.PatientID] = append(r.triages[t.PatientID], t)
	}
	return r, nil
}

// PatientStatus resolves the next step for each of the session's
// programmes.
func (s *Service) PatientStatus(ctx context.Context, sessionID, patientID uuid.UUID) (*PatientStatus, error) {
	sess, err := s.Sessions.GetByID(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	ms, err := s.Memberships.ListByPatient(ctx, patientID)
	if err != nil {
		return nil, err
	}
	member := false
	for _, m := range ms {
		if m.SessionID == sessionID {
			member = true
			break
		}
	}
	if !member {
		return nil, ErrNotMember
	}
	p, err := s.Patients.GetByID(ctx, patientID)
	if err != nil {
		return nil, err
	}
	recs, err := s.load(ctx, []uuid.UUID{p.ID}, sess.ProgrammeIDs)
	if err != nil {
		return nil, err
	}

	out := &PatientStatus{PatientID: p.ID, SessionID: sess.ID}
	for _, progID := range sess.ProgrammeIDs {
		in := recs.input(p, progID, sess.AcademicYear)
		step := Resolve(in)
		ps := ProgrammeStatus{ProgrammeID: progID, NextStep: step, ActionRequired: step.Actionable()}
		if step == TriageNeeded {
			ps.TriageReasons = triageReasons(in)
		}
		out.Programmes = append(out.Programmes, ps)
	}
	return out, nil
}

func triageReasons(in Input) []string {
	var cs []*consent.Consent
	for _, c := range in.Consents {
		if c.ProgrammeID == in.ProgrammeID {
			cs = append(cs, c)
		}
	}
	seen := map[string]bool{}
	var out []string
	for _, c := range consent.LatestPerResponder(cs) {
		for _, r := range c.ReasonsTriageNeeded() {
			if !seen[r] {
				seen[r] = true
				out = append(out, r)
			}
		}
	}
	return out
}

// sessionFor returns the first open session the patient belongs to that
// runs the programme, or nil.
func (s *Service) sessionFor(ctx context.Context, patientID, programmeID uuid.UUID) (*session.Session, error) {
	ms, err := s.Memberships.ListByPatient(ctx, patientID)
	if err != nil {
		return nil, err
	}
	for _, m := range ms {
		sess, err := s.Sessions.GetByID(ctx, m.SessionID)
		if err != nil {
			return nil, err
		}
		if sess.Open() && sess.HasProgramme(programmeID) {
			return sess, nil
		}
	}
	return nil, nil
}

// target is who and where a notification is about.
type target struct {
	patient      *patient.Patient
	session      *session.Session
	academicYear int
}

func (s *Service) targetFor(ctx context.Context, patientID, programmeID uuid.UUID) (*target, error) {
	p, err := s.Patients.GetByID(ctx, patientID)
	if err != nil {
		return nil, err
	}
	if p.Excluded() {
		return nil, nil
	}
	sess, err := s.sessionFor(ctx, patientID, programmeID)
	if err != nil {
		return nil, err
	}
	t := &target{patient: p, session: sess, academicYear: academicyear.Current(s.now())}
	if sess != nil {
		t.academicYear = sess.AcademicYear
	}
	return t, nil
}

func (t *target) sessionID() *uuid.UUID {
	if t.session == nil {
		return nil
	}
	id := t.session.ID
	return &id
}

func (s *Service) confirm(ctx context.Context, t *target, c *consent.Consent, step NextStep) error {
	variant, ok := TriageConfirmationVariant(t.patient, c, step)
	if !ok {
		return nil
	}
	id := c.ID
	return s.Dispatcher.Dispatch(ctx, notification.Event{
		Trigger:        notification.TriggerTriageConfirmation,
		Variant:        variant,
		OrganisationID: c.OrganisationID,
		PatientID:      c.PatientID,
		ProgrammeID:    c.ProgrammeID,
		SessionID:      t.sessionID(),
		ConsentID:      &id,
		ParentID:       c.ParentID,
	})
}

// ConsentRecorded confirms a newly recorded consent to its parent.
func (s *Service) ConsentRecorded(ctx context.Context, c *consent.Consent) error {
	t, err := s.targetFor(ctx, c.PatientID, c.ProgrammeID)
	if err != nil || t == nil {
		return err
	}
	recs, err := s.load(ctx, []uuid.UUID{c.PatientID}, []uuid.UUID{c.ProgrammeID})
	if err != nil {
		return err
	}
	step := Resolve(recs.input(t.patient, c.ProgrammeID, t.academicYear))
	return s.confirm(ctx, t, c, step)
}

// TriageRecorded tells every responding parent the triage decision.
func (s *Service) TriageRecorded(ctx context.Context, tr *triage.Triage) error {
	t, err := s.targetFor(ctx, tr.PatientID, tr.ProgrammeID)
	if err != nil || t == nil {
		return err
	}
	recs, err := s.load(ctx, []uuid.UUID{tr.PatientID}, []uuid.UUID{tr.ProgrammeID})
	if err != nil {
		return err
	}
	step := Resolve(recs.input(t.patient, tr.ProgrammeID, t.academicYear))
	var first error
	for _, c := range consent.LatestPerResponder(recs.consents[tr.PatientID]) {
		if err := s.confirm(ctx, t, c, step); err != nil && first == nil {
			first = err
		}
	}
	return first
}

func (s *Service) VaccinationRecorded(ctx context.Context, v *vaccination.Vaccination) error {
	p, err := s.Patients.GetByID(ctx, v.PatientID)
	if err != nil {
		return err
	}
	if p.Excluded() {
		return nil
	}
	sessionID, vaccinationID := v.SessionID, v.ID
	return s.Dispatcher.Dispatch(ctx, notification.Event{
		Trigger:        notification.TriggerVaccinationConfirmation,
		Variant:        VaccinationVariant(v),
		OrganisationID: v.OrganisationID,
		PatientID:      v.PatientID,
		ProgrammeID:    v.ProgrammeID,
		SessionID:      &sessionID,
		VaccinationID:  &vaccinationID,
	})
}

// SendConsentRequests fires a consent request, or a reminder, for every
// member and eligible programme still without consent. Dispatch failures
// are counted and logged; the rest of the batch carries on.
func (s *Service) SendConsentRequests(ctx context.Context, sessionID uuid.UUID, reminder bool) (*ConsentRequestResult, error) {
	sess, err := s.Sessions.GetByID(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if !sess.OpenForConsent(s.now()) {
		return nil, ErrConsentClosed
	}
	res := &ConsentRequestResult{SessionID: sess.ID, Trigger: notification.TriggerConsentRequest}
	if reminder {
		res.Trigger = notification.TriggerConsentReminder
	}

	ms, err := s.Memberships.ListBySession(ctx, sess.ID)
	if err != nil {
		return nil, fmt.Errorf("list members: %w", err)
	}
	if len(ms) == 0 {
		return res, nil
	}
	ids := make([]uuid.UUID, len(ms))
	for i, m := range ms {
		ids[i] = m.PatientID
	}
	patients, err := s.Patients.ListByIDs(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("load members: %w", err)
	}
	progs, err := s.Programmes.ListByIDs(ctx, sess.ProgrammeIDs)
	if err != nil {
		return nil, fmt.Errorf("load programmes: %w", err)
	}
	recs, err := s.load(ctx, ids, sess.ProgrammeIDs)
	if err != nil {
		return nil, err
	}

	sid := sess.ID
	for _, p := range patients {
		yg := p.YearGroup(sess.AcademicYear)
		for _, prog := range progs {
			if !prog.Eligible(yg) || Resolve(recs.input(p, prog.ID, sess.AcademicYear)) != NoConsent {
				continue
			}
			err := s.Dispatcher.Dispatch(ctx, notification.Event{
				Trigger:        res.Trigger,
				OrganisationID: sess.OrganisationID,
				PatientID:      p.ID,
				ProgrammeID:    prog.ID,
				SessionID:      &sid,
			})
			if err != nil {
				res.Failed++
				s.logger.Warn().Err(err).
					Str("patient_id", p.ID.String()).
					Str("programme_id", prog.ID.String()).
					Msg("consent request not sent")
				continue
			}
			res.Sent++
		}
	}
	s.logger.Info().
		Str("session_id", sess.ID.String()).
		Str("trigger", string(res.Trigger)).
		Int("sent", res.Sent).
		Int("failed", res.Failed).
		Msg("consent requests dispatched")
	return res, nil
}
