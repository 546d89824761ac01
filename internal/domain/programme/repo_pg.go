package programme

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

const cols = `id, type, year_groups, created_at`

func scan(row pgx.Row) (*Programme, error) {
	var p Programme
	var yearGroups []int32
	if err := row.Scan(&p.ID, &p.Type, &yearGroups, &p.CreatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	for _, yg := range yearGroups {
		p.YearGroups = append(p.YearGroups, int(yg))
	}
	return &p, nil
}

func (r *repoPG) GetByID(ctx context.Context, id uuid.UUID) (*Programme, error) {
	return scan(db.Conn(ctx, r.pool).QueryRow(ctx, `SELECT `+cols+` FROM programme WHERE id = $1`, id))
}

func (r *repoPG) ListByIDs(ctx context.Context, ids []uuid.UUID) ([]*Programme, error) {
	return r.list(ctx, `SELECT `+cols+` FROM programme WHERE id = ANY($1) ORDER BY type`, ids)
}

func (r *repoPG) ListByOrganisation(ctx context.Context, organisationID uuid.UUID) ([]*Programme, error) {
	return r.list(ctx, `
		SELECT p.id, p.type, p.year_groups, p.created_at
		FROM programme p
		JOIN organisation_programme op ON op.programme_id = p.id
		WHERE op.organisation_id = $1
		ORDER BY p.type`, organisationID)
}

func (r *repoPG) list(ctx context.Context, sql string, args ...interface{}) ([]*Programme, error) {
	rows, err := db.Conn(ctx, r.pool).Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []*Programme
	for rows.Next() {
		p, err := scan(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, p)
	}
	return items, rows.Err()
}
