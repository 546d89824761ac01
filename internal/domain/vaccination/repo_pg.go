package vaccination

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

const vaccinationCols = `id, organisation_id, patient_id, programme_id, session_id,
	administered, COALESCE(reason, ''), lot_number, notes, COALESCE(performed_by, ''),
	performed_at, created_at`

func scanVaccination(row pgx.Row) (*Vaccination, error) {
	var v Vaccination
	err := row.Scan(&v.ID, &v.OrganisationID, &v.PatientID, &v.ProgrammeID, &v.SessionID,
		&v.Administered, &v.Reason, &v.LotNumber, &v.Notes, &v.PerformedBy,
		&v.PerformedAt, &v.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &v, nil
}

func (r *repoPG) Create(ctx context.Context, v *Vaccination) error {
	if v.ID == uuid.Nil {
		v.ID = uuid.New()
	}
	return db.Conn(ctx, r.pool).QueryRow(ctx, `
		INSERT INTO vaccination (id, organisation_id, patient_id, programme_id, session_id,
			administered, reason, lot_number, notes, performed_by, performed_at)
		VALUES ($1, $2, $3, $4, $5, $6, NULLIF($7, ''), $8, $9, NULLIF($10, ''), $11)
		RETURNING created_at`,
		v.ID, v.OrganisationID, v.PatientID, v.ProgrammeID, v.SessionID,
		v.Administered, v.Reason, v.LotNumber, v.Notes, v.PerformedBy, v.PerformedAt,
	).Scan(&v.CreatedAt)
}

func (r *repoPG) GetByID(ctx context.Context, id uuid.UUID) (*Vaccination, error) {
	return scanVaccination(db.Conn(ctx, r.pool).QueryRow(ctx,
		`SELECT `+vaccinationCols+` FROM vaccination WHERE id = $1`, id))
}

func (r *repoPG) ListByPatients(ctx context.Context, patientIDs, programmeIDs []uuid.UUID) ([]*Vaccination, error) {
	return r.list(ctx, `SELECT `+vaccinationCols+` FROM vaccination
		WHERE patient_id = ANY($1) AND programme_id = ANY($2)
		ORDER BY performed_at`, patientIDs, programmeIDs)
}

func (r *repoPG) ListBySession(ctx context.Context, sessionID uuid.UUID) ([]*Vaccination, error) {
	return r.list(ctx, `SELECT `+vaccinationCols+` FROM vaccination
		WHERE session_id = $1 ORDER BY performed_at`, sessionID)
}

func (r *repoPG) list(ctx context.Context, query string, args ...interface{}) ([]*Vaccination, error) {
	rows, err := db.Conn(ctx, r.pool).Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []*Vaccination
	for rows.Next() {
		v, err := scanVaccination(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, v)
	}
	return items, rows.Err()
}
