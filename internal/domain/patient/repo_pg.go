package patient

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
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

const recordCols = `id, name_enc, national_id_enc, date_of_birth, phone_enc, created_at`

func scanRecord(row pgx.Row) (*Record, error) {
	var rec Record
	err := row.Scan(&rec.ID, &rec.NameEnc, &rec.NationalIDEnc, &rec.DateOfBirth, &rec.PhoneEnc, &rec.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, errs.NotFoundf("patient")
	}
	return &rec, err
}

func (r *repoPG) Insert(ctx context.Context, rec *Record) error {
	rec.ID = uuid.New()
	return r.conn(ctx).QueryRow(ctx, `
		INSERT INTO patients (id, name_enc, national_id_enc, date_of_birth, phone_enc)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING created_at`,
		rec.ID, rec.NameEnc, rec.NationalIDEnc, rec.DateOfBirth, rec.PhoneEnc,
	).Scan(&rec.CreatedAt)
}

func (r *repoPG) GetByID(ctx context.Context, id uuid.UUID) (*Record, error) {
	return scanRecord(r.conn(ctx).QueryRow(ctx, `SELECT `+recordCols+` FROM patients WHERE id = $1`, id))
}

func (r *repoPG) UpdateEncrypted(ctx context.Context, id uuid.UUID, nameEnc, phoneEnc []byte) error {
	tag, err := r.conn(ctx).Exec(ctx, `
		UPDATE patients SET name_enc = $2, phone_enc = $3 WHERE id = $1`,
		id, nameEnc, phoneEnc)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return errs.NotFoundf("patient")
	}
	return nil
}

func (r *repoPG) ForEach(ctx context.Context, fn func(rec *Record) error) error {
	rows, err := r.conn(ctx).Query(ctx, `SELECT `+recordCols+` FROM patients ORDER BY created_at`)
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return err
		}
		if err := fn(rec); err != nil {
			return err
		}
	}
	return rows.Err()
}

func (r *repoPG) Count(ctx context.Context) (int, error) {
	var n int
	err := r.conn(ctx).QueryRow(ctx, `SELECT COUNT(*) FROM patients`).Scan(&n)
	return n, err
}

func (r *repoPG) DeleteAll(ctx context.Context) error {
	_, err := r.conn(ctx).Exec(ctx, `DELETE FROM patients`)
	return err
}
