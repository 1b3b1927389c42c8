package analysis

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/clinlab/clinlab/internal/errs"
	"github.com/clinlab/clinlab/internal/platform/db"
)

type repoPG struct{ pool *pgxpool.Pool }

func NewRepoPG(pool *pgxpool.Pool) Repository {
	return &repoPG{pool: pool}
}

func (r *repoPG) conn(ctx context.Context) db.Queryer {
	if tx := db.TxFromContext(ctx); tx != nil {
		return tx
	}
	return r.pool
}

const typeCols = `id, code, name, ref_min, ref_max, unit, created_at, updated_at`

func (r *repoPG) scanType(row pgx.Row) (*Type, error) {
	var t Type
	err := row.Scan(&t.ID, &t.Code, &t.Name, &t.RefMin, &t.RefMax, &t.Unit, &t.CreatedAt, &t.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, errs.NotFoundf("analysis type")
	}
	return &t, err
}

func (r *repoPG) Create(ctx context.Context, t *Type) error {
	t.ID = uuid.New()
	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO analysis_types (id, code, name, ref_min, ref_max, unit)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		t.ID, t.Code, t.Name, t.RefMin, t.RefMax, t.Unit)
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return errs.Conflictf("analysis type code %s already exists", t.Code)
	}
	return err
}

func (r *repoPG) GetByID(ctx context.Context, id uuid.UUID) (*Type, error) {
	return r.scanType(r.conn(ctx).QueryRow(ctx, `SELECT `+typeCols+` FROM analysis_types WHERE id = $1`, id))
}

func (r *repoPG) GetByCode(ctx context.Context, code string) (*Type, error) {
	return r.scanType(r.conn(ctx).QueryRow(ctx, `SELECT `+typeCols+` FROM analysis_types WHERE code = $1`, code))
}

func (r *repoPG) UpdateInterval(ctx context.Context, id uuid.UUID, min, max *float64) error {
	tag, err := r.conn(ctx).Exec(ctx, `
		UPDATE analysis_types SET ref_min = $2, ref_max = $3, updated_at = NOW()
		WHERE id = $1`, id, min, max)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return errs.NotFoundf("analysis type")
	}
	return nil
}

func (r *repoPG) List(ctx context.Context) ([]*Type, error) {
	rows, err := r.conn(ctx).Query(ctx, `SELECT `+typeCols+` FROM analysis_types ORDER BY name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var types []*Type
	for rows.Next() {
		t, err := r.scanType(rows)
		if err != nil {
			return nil, err
		}
		types = append(types, t)
	}
	return types, rows.Err()
}
