package organisation

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

func (r *repoPG) GetByID(ctx context.Context, id uuid.UUID) (*Organisation, error) {
	var o Organisation
	err := db.Conn(ctx, r.pool).QueryRow(ctx,
		`SELECT id, name, ods_code, created_at FROM organisation WHERE id = $1`, id,
	).Scan(&o.ID, &o.Name, &o.ODSCode, &o.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	return &o, err
}

// Create inserts the organisation and links its programmes.
func (r *repoPG) Create(ctx context.Context, o *Organisation, programmeIDs []uuid.UUID) error {
	if o.ID == uuid.Nil {
		o.ID = uuid.New()
	}
	q := db.Conn(ctx, r.pool)
	if err := q.QueryRow(ctx,
		`INSERT INTO organisation (id, name, ods_code) VALUES ($1, $2, $3) RETURNING created_at`,
		o.ID, o.Name, o.ODSCode,
	).Scan(&o.CreatedAt); err != nil {
		return err
	}
	for _, pid := range programmeIDs {
		if _, err := q.Exec(ctx,
			`INSERT INTO organisation_programme (organisation_id, programme_id) VALUES ($1, $2)`,
			o.ID, pid,
		); err != nil {
			return err
		}
	}
	return nil
}
