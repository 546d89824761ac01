package session

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ehr/schoolvax/internal/platform/db"
)

// advisory locks taken outside a transaction are released at once
var errLockOutsideTx = errors.New("organisation lock needs a transaction")

// =========== Location Repository ===========

type locationRepoPG struct{ pool *pgxpool.Pool }

func NewLocationRepoPG(pool *pgxpool.Pool) LocationRepository {
	return &locationRepoPG{pool: pool}
}

const locationCols = `id, organisation_id, name, type, COALESCE(urn, ''), COALESCE(ods_code, ''), created_at`

func scanLocation(row pgx.Row) (*Location, error) {
	var l Location
	err := row.Scan(&l.ID, &l.OrganisationID, &l.Name, &l.Type, &l.URN, &l.ODSCode, &l.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrLocationNotFound
	}
	if err != nil {
		return nil, err
	}
	return &l, nil
}

func (r *locationRepoPG) Create(ctx context.Context, l *Location) error {
	if l.ID == uuid.Nil {
		l.ID = uuid.New()
	}
	return db.Conn(ctx, r.pool).QueryRow(ctx, `
		INSERT INTO location (id, organisation_id, name, type, urn, ods_code)
		VALUES ($1, $2, $3, $4, NULLIF($5, ''), NULLIF($6, ''))
		RETURNING created_at`,
		l.ID, l.OrganisationID, l.Name, l.Type, l.URN, l.ODSCode,
	).Scan(&l.CreatedAt)
}

func (r *locationRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*Location, error) {
	return scanLocation(db.Conn(ctx, r.pool).QueryRow(ctx,
		`SELECT `+locationCols+` FROM location WHERE id = $1`, id))
}

func (r *locationRepoPG) FindSchoolByURN(ctx context.Context, urn string) (*Location, error) {
	return scanLocation(db.Conn(ctx, r.pool).QueryRow(ctx,
		`SELECT `+locationCols+` FROM location WHERE type = 'school' AND urn = $1`, urn))
}

func (r *locationRepoPG) FindGenericClinic(ctx context.Context, organisationID uuid.UUID, odsCode string) (*Location, error) {
	return scanLocation(db.Conn(ctx, r.pool).QueryRow(ctx,
		`SELECT `+locationCols+` FROM location
		WHERE type = 'generic_clinic' AND organisation_id = $1 AND ods_code = $2`,
		organisationID, odsCode))
}

// =========== Session Repository ===========

type repoPG struct{ pool *pgxpool.Pool }

func NewRepoPG(pool *pgxpool.Pool) Repository {
	return &repoPG{pool: pool}
}

const sessionCols = `id, organisation_id, location_id, programme_ids, academic_year,
	dates, closed_at, created_at, updated_at`

func scanSession(row pgx.Row) (*Session, error) {
	var s Session
	var year int32
	err := row.Scan(&s.ID, &s.OrganisationID, &s.LocationID, &s.ProgrammeIDs, &year,
		&s.Dates, &s.ClosedAt, &s.CreatedAt, &s.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	s.AcademicYear = int(year)
	return &s, nil
}

func (r *repoPG) Create(ctx context.Context, s *Session) error {
	if s.ID == uuid.Nil {
		s.ID = uuid.New()
	}
	return db.Conn(ctx, r.pool).QueryRow(ctx, `
		INSERT INTO session (id, organisation_id, location_id, programme_ids, academic_year, dates, closed_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING created_at, updated_at`,
		s.ID, s.OrganisationID, s.LocationID, s.ProgrammeIDs, int32(s.AcademicYear), s.Dates, s.ClosedAt,
	).Scan(&s.CreatedAt, &s.UpdatedAt)
}

func (r *repoPG) GetByID(ctx context.Context, id uuid.UUID) (*Session, error) {
	return scanSession(db.Conn(ctx, r.pool).QueryRow(ctx,
		`SELECT `+sessionCols+` FROM session WHERE id = $1`, id))
}

func (r *repoPG) ListOpen(ctx context.Context, organisationID uuid.UUID, academicYear int) ([]*Session, error) {
	rows, err := db.Conn(ctx, r.pool).Query(ctx, `SELECT `+sessionCols+` FROM session
		WHERE organisation_id = $1 AND academic_year = $2 AND closed_at IS NULL
		ORDER BY created_at, id`, organisationID, int32(academicYear))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []*Session
	for rows.Next() {
		s, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, s)
	}
	return items, rows.Err()
}

func (r *repoPG) FindOpenByLocation(ctx context.Context, organisationID, locationID uuid.UUID, academicYear int) (*Session, error) {
	return scanSession(db.Conn(ctx, r.pool).QueryRow(ctx, `SELECT `+sessionCols+` FROM session
		WHERE organisation_id = $1 AND location_id = $2 AND academic_year = $3 AND closed_at IS NULL
		ORDER BY created_at LIMIT 1`, organisationID, locationID, int32(academicYear)))
}

func (r *repoPG) MarkClosed(ctx context.Context, id uuid.UUID, closedAt time.Time) (bool, error) {
	tag, err := db.Conn(ctx, r.pool).Exec(ctx, `
		UPDATE session SET closed_at = $2, updated_at = NOW()
		WHERE id = $1 AND closed_at IS NULL`, id, closedAt)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

func (r *repoPG) LockOrganisation(ctx context.Context, organisationID uuid.UUID, academicYear int) error {
	if db.TxFromContext(ctx) == nil {
		return errLockOutsideTx
	}
	_, err := db.Conn(ctx, r.pool).Exec(ctx,
		`SELECT pg_advisory_xact_lock(hashtext($1), $2)`, organisationID.String(), int32(academicYear))
	return err
}

// =========== Membership Repository ===========

type membershipRepoPG struct{ pool *pgxpool.Pool }

func NewMembershipRepoPG(pool *pgxpool.Pool) MembershipRepository {
	return &membershipRepoPG{pool: pool}
}

func (r *membershipRepoPG) list(ctx context.Context, query string, arg uuid.UUID) ([]*Membership, error) {
	rows, err := db.Conn(ctx, r.pool).Query(ctx, query, arg)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []*Membership
	for rows.Next() {
		var m Membership
		if err := rows.Scan(&m.ID, &m.SessionID, &m.PatientID, &m.CreatedAt); err != nil {
			return nil, err
		}
		items = append(items, &m)
	}
	return items, rows.Err()
}

func (r *membershipRepoPG) ListBySession(ctx context.Context, sessionID uuid.UUID) ([]*Membership, error) {
	return r.list(ctx, `SELECT id, session_id, patient_id, created_at FROM session_membership
		WHERE session_id = $1 ORDER BY created_at, id`, sessionID)
}

func (r *membershipRepoPG) ListByPatient(ctx context.Context, patientID uuid.UUID) ([]*Membership, error) {
	return r.list(ctx, `SELECT id, session_id, patient_id, created_at FROM session_membership
		WHERE patient_id = $1 ORDER BY created_at, id`, patientID)
}

func (r *membershipRepoPG) Add(ctx context.Context, m *Membership) error {
	if m.ID == uuid.Nil {
		m.ID = uuid.New()
	}
	_, err := db.Conn(ctx, r.pool).Exec(ctx, `
		INSERT INTO session_membership (id, session_id, patient_id)
		VALUES ($1, $2, $3)
		ON CONFLICT (session_id, patient_id) DO NOTHING`,
		m.ID, m.SessionID, m.PatientID)
	return err
}

func (r *membershipRepoPG) Remove(ctx context.Context, sessionID, patientID uuid.UUID) error {
	_, err := db.Conn(ctx, r.pool).Exec(ctx,
		`DELETE FROM session_membership WHERE session_id = $1 AND patient_id = $2`, sessionID, patientID)
	return err
}

// =========== Proposal Repository ===========

type proposalRepoPG struct{ pool *pgxpool.Pool }

func NewProposalRepoPG(pool *pgxpool.Pool) ProposalRepository {
	return &proposalRepoPG{pool: pool}
}

func (r *proposalRepoPG) Create(ctx context.Context, p *Proposal) error {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	_, err := db.Conn(ctx, r.pool).Exec(ctx, `
		INSERT INTO session_proposal (id, patient_id, from_session_id, to_session_id)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (patient_id, to_session_id) DO NOTHING`,
		p.ID, p.PatientID, p.FromSessionID, p.ToSessionID)
	return err
}

func (r *proposalRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*Proposal, error) {
	var p Proposal
	err := db.Conn(ctx, r.pool).QueryRow(ctx, `
		SELECT id, patient_id, from_session_id, to_session_id, created_at
		FROM session_proposal WHERE id = $1`, id,
	).Scan(&p.ID, &p.PatientID, &p.FromSessionID, &p.ToSessionID, &p.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrProposalNotFound
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (r *proposalRepoPG) ListByTarget(ctx context.Context, sessionID uuid.UUID) ([]*Proposal, error) {
	rows, err := db.Conn(ctx, r.pool).Query(ctx, `
		SELECT id, patient_id, from_session_id, to_session_id, created_at
		FROM session_proposal WHERE to_session_id = $1 ORDER BY created_at, id`, sessionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []*Proposal
	for rows.Next() {
		var p Proposal
		if err := rows.Scan(&p.ID, &p.PatientID, &p.FromSessionID, &p.ToSessionID, &p.CreatedAt); err != nil {
			return nil, err
		}
		items = append(items, &p)
	}
	return items, rows.Err()
}

func (r *proposalRepoPG) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := db.Conn(ctx, r.pool).Exec(ctx, `DELETE FROM session_proposal WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrProposalNotFound
	}
	return nil
}
