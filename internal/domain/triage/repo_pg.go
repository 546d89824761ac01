package triage

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

const triageCols = `id, organisation_id, patient_id, programme_id, status, notes,
	COALESCE(performed_by, ''), invalidated_at, created_at`

func scanTriage(row pgx.Row) (*Triage, error) {
	var t Triage
	err := row.Scan(&t.ID, &t.OrganisationID, &t.PatientID, &t.ProgrammeID, &t.Status,
		&t.Notes, &t.PerformedBy, &t.InvalidatedAt, &t.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func (r *repoPG) Create(ctx context.Context, t *Triage) error {
	if t.ID == uuid.Nil {
		t.ID = uuid.New()
	}
	return db.Conn(ctx, r.pool).QueryRow(ctx, `
		INSERT INTO triage (id, organisation_id, patient_id, programme_id, status, notes, performed_by)
		VALUES ($1, $2, $3, $4, $5, $6, NULLIF($7, ''))
		RETURNING created_at`,
		t.ID, t.OrganisationID, t.PatientID, t.ProgrammeID, t.Status, t.Notes, t.PerformedBy,
	).Scan(&t.CreatedAt)
}

func (r *repoPG) GetByID(ctx context.Context, id uuid.UUID) (*Triage, error) {
	return scanTriage(db.Conn(ctx, r.pool).QueryRow(ctx,
		`SELECT `+triageCols+` FROM triage WHERE id = $1`, id))
}

func (r *repoPG) ListByPatients(ctx context.Context, patientIDs, programmeIDs []uuid.UUID) ([]*Triage, error) {
	rows, err := db.Conn(ctx, r.pool).Query(ctx, `SELECT `+triageCols+` FROM triage
		WHERE patient_id = ANY($1) AND programme_id = ANY($2)
		ORDER BY created_at`, patientIDs, programmeIDs)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []*Triage
	for rows.Next() {
		t, err := scanTriage(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, t)
	}
	return items, rows.Err()
}

func (r *repoPG) InvalidateActive(ctx context.Context, patientIDs, programmeIDs []uuid.UUID) (int, error) {
	tag, err := db.Conn(ctx, r.pool).Exec(ctx, `
		UPDATE triage SET invalidated_at = NOW()
		WHERE patient_id = ANY($1) AND programme_id = ANY($2) AND invalidated_at IS NULL`,
		patientIDs, programmeIDs)
	if err != nil {
		return 0, err
	}
	return int(tag.RowsAffected()), nil
}
