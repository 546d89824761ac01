package consent

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ehr/schoolvax/internal/platform/db"
)

type repoPG struct{ pool *pgxpool.Pool }

func NewRepoPG(pool *pgxpool.Pool) Repository {
	return &repoPG{pool: pool}
}

const consentCols = `id, organisation_id, patient_id, programme_id, parent_id,
	COALESCE(response, ''), route, COALESCE(reason_for_refusal, ''), notes,
	health_answers, COALESCE(recorded_by, ''), recorded_at, withdrawn_at,
	invalidated_at, created_at, updated_at`

func scanConsent(row pgx.Row) (*Consent, error) {
	var c Consent
	err := row.Scan(&c.ID, &c.OrganisationID, &c.PatientID, &c.ProgrammeID, &c.ParentID,
		&c.Response, &c.Route, &c.ReasonForRefusal, &c.Notes,
		&c.HealthAnswers, &c.RecordedBy, &c.RecordedAt, &c.WithdrawnAt,
		&c.InvalidatedAt, &c.CreatedAt, &c.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &c, nil
}

func (r *repoPG) Create(ctx context.Context, c *Consent) error {
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	if c.HealthAnswers == nil {
		c.HealthAnswers = HealthAnswers{}
	}
	return db.Conn(ctx, r.pool).QueryRow(ctx, `
		INSERT INTO consent (id, organisation_id, patient_id, programme_id, parent_id,
			response, route, reason_for_refusal, notes, health_answers, recorded_by,
			recorded_at, withdrawn_at, invalidated_at)
		VALUES ($1, $2, $3, $4, $5, NULLIF($6, ''), $7, NULLIF($8, ''), $9, $10,
			NULLIF($11, ''), $12, $13, $14)
		RETURNING created_at, updated_at`,
		c.ID, c.OrganisationID, c.PatientID, c.ProgrammeID, c.ParentID,
		c.Response, c.Route, c.ReasonForRefusal, c.Notes, c.HealthAnswers, c.RecordedBy,
		c.RecordedAt, c.WithdrawnAt, c.InvalidatedAt,
	).Scan(&c.CreatedAt, &c.UpdatedAt)
}

func (r *repoPG) GetByID(ctx context.Context, id uuid.UUID) (*Consent, error) {
	return scanConsent(db.Conn(ctx, r.pool).QueryRow(ctx,
		`SELECT `+consentCols+` FROM consent WHERE id = $1`, id))
}

func (r *repoPG) Update(ctx context.Context, c *Consent) error {
	return db.Conn(ctx, r.pool).QueryRow(ctx, `
		UPDATE consent SET response = NULLIF($2, ''), reason_for_refusal = NULLIF($3, ''),
			notes = $4, health_answers = $5, recorded_by = NULLIF($6, ''), recorded_at = $7,
			withdrawn_at = $8, invalidated_at = $9, updated_at = NOW()
		WHERE id = $1
		RETURNING updated_at`,
		c.ID, c.Response, c.ReasonForRefusal, c.Notes, c.HealthAnswers, c.RecordedBy,
		c.RecordedAt, c.WithdrawnAt, c.InvalidatedAt,
	).Scan(&c.UpdatedAt)
}

func (r *repoPG) ListByPatient(ctx context.Context, patientID uuid.UUID) ([]*Consent, error) {
	return r.list(ctx, `SELECT `+consentCols+` FROM consent
		WHERE patient_id = $1 ORDER BY created_at`, patientID)
}

func (r *repoPG) ListByPatients(ctx context.Context, patientIDs, programmeIDs []uuid.UUID) ([]*Consent, error) {
	return r.list(ctx, `SELECT `+consentCols+` FROM consent
		WHERE patient_id = ANY($1) AND programme_id = ANY($2)
		ORDER BY created_at`, patientIDs, programmeIDs)
}

func (r *repoPG) list(ctx context.Context, query string, args ...interface{}) ([]*Consent, error) {
	rows, err := db.Conn(ctx, r.pool).Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []*Consent
	for rows.Next() {
		c, err := scanConsent(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, c)
	}
	return items, rows.Err()
}
