package session

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/ehr/schoolvax/internal/domain/consent"
	"github.com/ehr/schoolvax/internal/domain/organisation"
	"github.com/ehr/schoolvax/internal/domain/patient"
	"github.com/ehr/schoolvax/internal/domain/programme"
	"github.com/ehr/schoolvax/internal/domain/vaccination"
)

type inlineTx struct{}

func (inlineTx) WithinTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return fn(ctx)
}

// =========== Sessions ===========

type lockCall struct {
	organisationID uuid.UUID
	academicYear   int
}

type mockSessions struct {
	store map[uuid.UUID]*Session
	order []uuid.UUID
	calls []string
	locks []lockCall
	// onLock runs while the lock is being taken, standing in for a
	// transaction that committed just before it was granted.
	onLock func()
	// onMarkClosed runs before the guarded update is applied.
	onMarkClosed func()
}

func newMockSessions() *mockSessions {
	return &mockSessions{store: map[uuid.UUID]*Session{}}
}

func (m *mockSessions) Create(_ context.Context, s *Session) error {
	s.ID = uuid.New()
	s.CreatedAt = time.Now()
	m.store[s.ID] = s
	m.order = append(m.order, s.ID)
	return nil
}

func (m *mockSessions) GetByID(_ context.Context, id uuid.UUID) (*Session, error) {
	m.calls = append(m.calls, "get")
	s, ok := m.store[id]
	if !ok {
		return nil, ErrNotFound
	}
	return s, nil
}

func (m *mockSessions) ListOpen(_ context.Context, organisationID uuid.UUID, academicYear int) ([]*Session, error) {
	var out []*Session
	for _, id := range m.order {
		s := m.store[id]
		if s.OrganisationID == organisationID && s.AcademicYear == academicYear && s.Open() {
			out = append(out, s)
		}
	}
	return out, nil
}

func (m *mockSessions) FindOpenByLocation(ctx context.Context, organisationID, locationID uuid.UUID, academicYear int) (*Session, error) {
	open, _ := m.ListOpen(ctx, organisationID, academicYear)
	for _, s := range open {
		if s.LocationID == locationID {
			return s, nil
		}
	}
	return nil, ErrNotFound
}

func (m *mockSessions) MarkClosed(_ context.Context, id uuid.UUID, closedAt time.Time) (bool, error) {
	m.calls = append(m.calls, "mark_closed")
	if m.onMarkClosed != nil {
		m.onMarkClosed()
	}
	s, ok := m.store[id]
	if !ok {
		return false, ErrNotFound
	}
	if s.ClosedAt != nil {
		return false, nil
	}
	s.ClosedAt = &closedAt
	return true, nil
}

func (m *mockSessions) LockOrganisation(_ context.Context, organisationID uuid.UUID, academicYear int) error {
	m.calls = append(m.calls, "lock")
	m.locks = append(m.locks, lockCall{organisationID, academicYear})
	if m.onLock != nil {
		m.onLock()
	}
	return nil
}

// =========== Locations ===========

type mockLocations struct {
	store map[uuid.UUID]*Location
}

func (m *mockLocations) Create(_ context.Context, l *Location) error {
	l.ID = uuid.New()
	m.store[l.ID] = l
	return nil
}

func (m *mockLocations) GetByID(_ context.Context, id uuid.UUID) (*Location, error) {
	l, ok := m.store[id]
	if !ok {
		return nil, ErrLocationNotFound
	}
	return l, nil
}

func (m *mockLocations) FindSchoolByURN(_ context.Context, urn string) (*Location, error) {
	for _, l := range m.store {
		if l.Type == LocationSchool && l.URN == urn {
			return l, nil
		}
	}
	return nil, ErrLocationNotFound
}

func (m *mockLocations) FindGenericClinic(_ context.Context, organisationID uuid.UUID, odsCode string) (*Location, error) {
	for _, l := range m.store {
		if l.GenericClinic() && l.ODSCode == odsCode && l.OrganisationID != nil && *l.OrganisationID == organisationID {
			return l, nil
		}
	}
	return nil, ErrLocationNotFound
}

// =========== Memberships ===========

type mockMemberships struct {
	rows []*Membership
}

func (m *mockMemberships) ListBySession(_ context.Context, sessionID uuid.UUID) ([]*Membership, error) {
	var out []*Membership
	for _, r := range m.rows {
		if r.SessionID == sessionID {
			out = append(out, r)
		}
	}
	return out, nil
}

func (m *mockMemberships) ListByPatient(_ context.Context, patientID uuid.UUID) ([]*Membership, error) {
	var out []*Membership
	for _, r := range m.rows {
		if r.PatientID == patientID {
			out = append(out, r)
		}
	}
	return out, nil
}

func (m *mockMemberships) Add(_ context.Context, ms *Membership) error {
	for _, r := range m.rows {
		if r.SessionID == ms.SessionID && r.PatientID == ms.PatientID {
			return nil
		}
	}
	ms.ID = uuid.New()
	m.rows = append(m.rows, ms)
	return nil
}

func (m *mockMemberships) Remove(_ context.Context, sessionID, patientID uuid.UUID) error {
	kept := m.rows[:0]
	for _, r := range m.rows {
		if r.SessionID == sessionID && r.PatientID == patientID {
			continue
		}
		kept = append(kept, r)
	}
	m.rows = kept
	return nil
}

func (m *mockMemberships) isMember(sessionID, patientID uuid.UUID) bool {
	for _, r := range m.rows {
		if r.SessionID == sessionID && r.PatientID == patientID {
			return true
		}
	}
	return false
}

// =========== Proposals ===========

type mockProposals struct {
	store map[uuid.UUID]*Proposal
	order []uuid.UUID
}

func (m *mockProposals) Create(_ context.Context, p *Proposal) error {
	p.ID = uuid.New()
	m.store[p.ID] = p
	m.order = append(m.order, p.ID)
	return nil
}

func (m *mockProposals) GetByID(_ context.Context, id uuid.UUID) (*Proposal, error) {
	p, ok := m.store[id]
	if !ok {
		return nil, ErrProposalNotFound
	}
	return p, nil
}

func (m *mockProposals) ListByTarget(_ context.Context, sessionID uuid.UUID) ([]*Proposal, error) {
	var out []*Proposal
	for _, id := range m.order {
		if p, ok := m.store[id]; ok && p.ToSessionID == sessionID {
			out = append(out, p)
		}
	}
	return out, nil
}

func (m *mockProposals) Delete(_ context.Context, id uuid.UUID) error {
	if _, ok := m.store[id]; !ok {
		return ErrProposalNotFound
	}
	delete(m.store, id)
	return nil
}

// =========== Collaborators ===========

type mockPatients struct {
	all []*patient.Patient
}

func (m *mockPatients) ListByCohortOrganisation(_ context.Context, organisationID uuid.UUID) ([]*patient.Patient, error) {
	var out []*patient.Patient
	for _, p := range m.all {
		if p.Cohort != nil && p.Cohort.OrganisationID == organisationID {
			out = append(out, p)
		}
	}
	return out, nil
}

func (m *mockPatients) ListByIDs(_ context.Context, ids []uuid.UUID) ([]*patient.Patient, error) {
	want := idSet(ids)
	var out []*patient.Patient
	for _, p := range m.all {
		if want[p.ID] {
			out = append(out, p)
		}
	}
	return out, nil
}

type mockProgrammes struct {
	all   []*programme.Programme
	byOrg map[uuid.UUID][]uuid.UUID
}

func (m *mockProgrammes) ListByIDs(_ context.Context, ids []uuid.UUID) ([]*programme.Programme, error) {
	want := idSet(ids)
	var out []*programme.Programme
	for _, p := range m.all {
		if want[p.ID] {
			out = append(out, p)
		}
	}
	return out, nil
}

func (m *mockProgrammes) ListByOrganisation(ctx context.Context, organisationID uuid.UUID) ([]*programme.Programme, error) {
	return m.ListByIDs(ctx, m.byOrg[organisationID])
}

type mockOrganisations struct {
	store map[uuid.UUID]*organisation.Organisation
}

func (m *mockOrganisations) GetByID(_ context.Context, id uuid.UUID) (*organisation.Organisation, error) {
	o, ok := m.store[id]
	if !ok {
		return nil, organisation.ErrNotFound
	}
	return o, nil
}

type mockVaccinations struct {
	all []*vaccination.Vaccination
}

func (m *mockVaccinations) ListByPatients(_ context.Context, patientIDs, programmeIDs []uuid.UUID) ([]*vaccination.Vaccination, error) {
	pids, progs := idSet(patientIDs), idSet(programmeIDs)
	var out []*vaccination.Vaccination
	for _, v := range m.all {
		if pids[v.PatientID] && progs[v.ProgrammeID] {
			out = append(out, v)
		}
	}
	return out, nil
}

type mockConsents struct {
	all     []*consent.Consent
	updates int
}

func (m *mockConsents) ListByPatients(_ context.Context, patientIDs, programmeIDs []uuid.UUID) ([]*consent.Consent, error) {
	pids, progs := idSet(patientIDs), idSet(programmeIDs)
	var out []*consent.Consent
	for _, c := range m.all {
		if pids[c.PatientID] && progs[c.ProgrammeID] {
			out = append(out, c)
		}
	}
	return out, nil
}

func (m *mockConsents) Update(_ context.Context, _ *consent.Consent) error {
	m.updates++
	return nil
}

type triageRow struct {
	patientID, programmeID uuid.UUID
	active                 bool
}

type mockTriages struct {
	rows []*triageRow
}

func (m *mockTriages) InvalidateActive(_ context.Context, patientIDs, programmeIDs []uuid.UUID) (int, error) {
	pids, progs := idSet(patientIDs), idSet(programmeIDs)
	n := 0
	for _, r := range m.rows {
		if r.active && pids[r.patientID] && progs[r.programmeID] {
			r.active = false
			n++
		}
	}
	return n, nil
}

func idSet(ids []uuid.UUID) map[uuid.UUID]bool {
	set := make(map[uuid.UUID]bool, len(ids))
	for _, id := range ids {
		set[id] = true
	}
	return set
}
