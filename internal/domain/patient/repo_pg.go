package patient

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ehr/schoolvax/internal/platform/db"
)

// =========== Patient Repository ===========

type repoPG struct{ pool *pgxpool.Pool }

func NewRepoPG(pool *pgxpool.Pool) Repository {
	return &repoPG{pool: pool}
}

const patientCols = `id, COALESCE(nhs_number, ''), given_name, family_name,
	preferred_given_name, preferred_family_name, date_of_birth, gender,
	address_line_1, address_line_2, address_town, address_postcode,
	school_id, home_educated, registration,
	cohort_organisation_id, cohort_birth_academic_year, pending_changes,
	date_of_death, invalidated_at, restricted, created_at, updated_at`

func scanPatient(row pgx.Row) (*Patient, error) {
	var p Patient
	var cohortOrg *uuid.UUID
	var cohortYear *int32
	err := row.Scan(&p.ID, &p.NHSNumber, &p.GivenName, &p.FamilyName,
		&p.PreferredGivenName, &p.PreferredFamilyName, &p.DateOfBirth, &p.Gender,
		&p.Address.Line1, &p.Address.Line2, &p.Address.Town, &p.Address.Postcode,
		&p.Education.SchoolID, &p.Education.HomeEducated, &p.Registration,
		&cohortOrg, &cohortYear, &p.PendingChanges,
		&p.DateOfDeath, &p.InvalidatedAt, &p.Restricted, &p.CreatedAt, &p.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if cohortOrg != nil && cohortYear != nil {
		p.Cohort = &Cohort{OrganisationID: *cohortOrg, BirthAcademicYear: int(*cohortYear)}
	}
	return &p, nil
}

func cohortArgs(c *Cohort) (*uuid.UUID, *int32) {
	if c == nil {
		return nil, nil
	}
	org := c.OrganisationID
	year := int32(c.BirthAcademicYear)
	return &org, &year
}

func (r *repoPG) Create(ctx context.Context, p *Patient) error {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	cohortOrg, cohortYear := cohortArgs(p.Cohort)
	return db.Conn(ctx, r.pool).QueryRow(ctx, `
		INSERT INTO patient (id, nhs_number, given_name, family_name,
			preferred_given_name, preferred_family_name, date_of_birth, gender,
			address_line_1, address_line_2, address_town, address_postcode,
			school_id, home_educated, registration,
			cohort_organisation_id, cohort_birth_academic_year, pending_changes,
			date_of_death, invalidated_at, restricted)
		VALUES ($1, NULLIF($2, ''), $3, $4, $5, $6, $7, $8, $9, $10, $11, $12,
			$13, $14, $15, $16, $17, $18, $19, $20, $21)
		RETURNING created_at, updated_at`,
		p.ID, p.NHSNumber, p.GivenName, p.FamilyName,
		p.PreferredGivenName, p.PreferredFamilyName, p.DateOfBirth, p.Gender,
		p.Address.Line1, p.Address.Line2, p.Address.Town, p.Address.Postcode,
		p.Education.SchoolID, p.Education.HomeEducated, p.Registration,
		cohortOrg, cohortYear, p.PendingChanges,
		p.DateOfDeath, p.InvalidatedAt, p.Restricted,
	).Scan(&p.CreatedAt, &p.UpdatedAt)
}

func (r *repoPG) GetByID(ctx context.Context, id uuid.UUID) (*Patient, error) {
	return scanPatient(db.Conn(ctx, r.pool).QueryRow(ctx,
		`SELECT `+patientCols+` FROM patient WHERE id = $1`, id))
}

func (r *repoPG) Update(ctx context.Context, p *Patient) error {
	cohortOrg, cohortYear := cohortArgs(p.Cohort)
	return db.Conn(ctx, r.pool).QueryRow(ctx, `
		UPDATE patient SET nhs_number = NULLIF($2, ''), given_name = $3, family_name = $4,
			preferred_given_name = $5, preferred_family_name = $6, date_of_birth = $7, gender = $8,
			address_line_1 = $9, address_line_2 = $10, address_town = $11, address_postcode = $12,
			school_id = $13, home_educated = $14, registration = $15,
			cohort_organisation_id = $16, cohort_birth_academic_year = $17, pending_changes = $18,
			date_of_death = $19, invalidated_at = $20, restricted = $21, updated_at = NOW()
		WHERE id = $1
		RETURNING updated_at`,
		p.ID, p.NHSNumber, p.GivenName, p.FamilyName,
		p.PreferredGivenName, p.PreferredFamilyName, p.DateOfBirth, p.Gender,
		p.Address.Line1, p.Address.Line2, p.Address.Town, p.Address.Postcode,
		p.Education.SchoolID, p.Education.HomeEducated, p.Registration,
		cohortOrg, cohortYear, p.PendingChanges,
		p.DateOfDeath, p.InvalidatedAt, p.Restricted,
	).Scan(&p.UpdatedAt)
}

func (r *repoPG) FindByNHSNumber(ctx context.Context, nhsNumber string) (*Patient, error) {
	return scanPatient(db.Conn(ctx, r.pool).QueryRow(ctx,
		`SELECT `+patientCols+` FROM patient WHERE nhs_number = $1`, nhsNumber))
}

func (r *repoPG) FindByNameDOBPostcode(ctx context.Context, givenName, familyName string, dob time.Time, postcode string) ([]*Patient, error) {
	return r.list(ctx, `SELECT `+patientCols+` FROM patient
		WHERE lower(given_name) = lower($1) AND lower(family_name) = lower($2)
			AND date_of_birth = $3
			AND upper(replace(address_postcode, ' ', '')) = upper(replace($4, ' ', ''))
		ORDER BY created_at`,
		givenName, familyName, dob, postcode)
}

func (r *repoPG) ListByCohortOrganisation(ctx context.Context, organisationID uuid.UUID) ([]*Patient, error) {
	return r.list(ctx, `SELECT `+patientCols+` FROM patient
		WHERE cohort_organisation_id = $1 ORDER BY family_name, given_name, id`, organisationID)
}

func (r *repoPG) ListByIDs(ctx context.Context, ids []uuid.UUID) ([]*Patient, error) {
	return r.list(ctx, `SELECT `+patientCols+` FROM patient WHERE id = ANY($1) ORDER BY id`, ids)
}

func (r *repoPG) list(ctx context.Context, sql string, args ...interface{}) ([]*Patient, error) {
	rows, err := db.Conn(ctx, r.pool).Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []*Patient
	for rows.Next() {
		p, err := scanPatient(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, p)
	}
	return items, rows.Err()
}

// =========== Parent Repository ===========

type parentRepoPG struct{ pool *pgxpool.Pool }

func NewParentRepoPG(pool *pgxpool.Pool) ParentRepository {
	return &parentRepoPG{pool: pool}
}

const parentCols = `id, full_name, email, phone, phone_receive_updates, created_at, updated_at`

func scanParent(row pgx.Row) (*Parent, error) {
	var p Parent
	err := row.Scan(&p.ID, &p.FullName, &p.Email, &p.Phone, &p.PhoneReceiveUpdates, &p.CreatedAt, &p.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrParentNotFound
	}
	return &p, err
}

func (r *parentRepoPG) FindByNameEmail(ctx context.Context, fullName, email string) (*Parent, error) {
	return scanParent(db.Conn(ctx, r.pool).QueryRow(ctx, `SELECT `+parentCols+` FROM parent
		WHERE lower(full_name) = lower($1) AND lower(email) = lower($2)
		ORDER BY created_at LIMIT 1`, fullName, email))
}

func (r *parentRepoPG) Create(ctx context.Context, p *Parent) error {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	return db.Conn(ctx, r.pool).QueryRow(ctx, `
		INSERT INTO parent (id, full_name, email, phone, phone_receive_updates)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING created_at, updated_at`,
		p.ID, p.FullName, p.Email, p.Phone, p.PhoneReceiveUpdates,
	).Scan(&p.CreatedAt, &p.UpdatedAt)
}

func (r *parentRepoPG) Update(ctx context.Context, p *Parent) error {
	_, err := db.Conn(ctx, r.pool).Exec(ctx, `
		UPDATE parent SET full_name = $2, email = $3, phone = $4,
			phone_receive_updates = $5, updated_at = NOW()
		WHERE id = $1`,
		p.ID, p.FullName, p.Email, p.Phone, p.PhoneReceiveUpdates)
	return err
}

func (r *parentRepoPG) ListByPatient(ctx context.Context, patientID uuid.UUID) ([]*Parent, error) {
	rows, err := db.Conn(ctx, r.pool).Query(ctx, `
		SELECT p.id, p.full_name, p.email, p.phone, p.phone_receive_updates, p.created_at, p.updated_at
		FROM parent p
		JOIN parent_relationship pr ON pr.parent_id = p.id
		WHERE pr.patient_id = $1
		ORDER BY pr.created_at`, patientID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []*Parent
	for rows.Next() {
		p, err := scanParent(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, p)
	}
	return items, rows.Err()
}

// UpsertRelationship keeps one relationship per parent and patient; a
// repeated import updates the label.
func (r *parentRepoPG) UpsertRelationship(ctx context.Context, rel *ParentRelationship) error {
	if rel.ID == uuid.Nil {
		rel.ID = uuid.New()
	}
	return db.Conn(ctx, r.pool).QueryRow(ctx, `
		INSERT INTO parent_relationship (id, parent_id, patient_id, type, other_name)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (parent_id, patient_id)
		DO UPDATE SET type = EXCLUDED.type, other_name = EXCLUDED.other_name
		RETURNING id, created_at`,
		rel.ID, rel.ParentID, rel.PatientID, rel.Type, rel.OtherName,
	).Scan(&rel.ID, &rel.CreatedAt)
}

func (r *parentRepoPG) ListRelationships(ctx context.Context, patientID uuid.UUID) ([]*ParentRelationship, error) {
	rows, err := db.Conn(ctx, r.pool).Query(ctx, `
		SELECT id, parent_id, patient_id, type, other_name, created_at
		FROM parent_relationship WHERE patient_id = $1 ORDER BY created_at`, patientID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []*ParentRelationship
	for rows.Next() {
		var rel ParentRelationship
		if err := rows.Scan(&rel.ID, &rel.ParentID, &rel.PatientID, &rel.Type, &rel.OtherName, &rel.CreatedAt); err != nil {
			return nil, err
		}
		items = append(items, &rel)
	}
	return items, rows.Err()
}
