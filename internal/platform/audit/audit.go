// Package audit writes the append-only audit trail. Every business mutation
// records its entry through the caller's open transaction, so the entry and
// the mutation commit or roll back as one atomic unit.
package audit

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/clinlab/clinlab/internal/platform/db"
)

// Action tags for audit entries.
const (
	ActionCreate = "CREATE"
	ActionUpdate = "UPDATE"
	ActionCancel = "CANCEL"
)

// Entry is one immutable audit record. Entries reference their subject by
// (table, record id) only and survive deletion of the subject.
type Entry struct {
	ID         uuid.UUID `json:"id"`
	Table      string    `json:"table"`
	RecordID   uuid.UUID `json:"record_id"`
	Action     string    `json:"action"`
	Actor      string    `json:"actor"`
	Detail     string    `json:"detail"`
	OriginAddr *string   `json:"origin_addr,omitempty"`
	RecordedAt time.Time `json:"recorded_at"`
}

// Recorder appends audit entries and serves the read-only query surface.
type Recorder struct {
	pool *pgxpool.Pool
}

func NewRecorder(pool *pgxpool.Pool) *Recorder {
	return &Recorder{pool: pool}
}

// Record appends e inside the caller's open transaction. Calling it outside a
// transaction is a programming error and fails: audit entries must never
// commit independently of the mutation they document.
func (r *Recorder) Record(ctx context.Context, e *Entry) error {
	tx := db.TxFromContext(ctx)
	if tx == nil {
		return fmt.Errorf("audit: record called outside a transaction")
	}

	if e.RecordedAt.IsZero() {
		e.RecordedAt = time.Now().UTC()
	}

	return tx.QueryRow(ctx, `
		INSERT INTO audit_log (table_name, record_id, action, actor, detail, origin_addr, recorded_at)
		VALUES ($1, $2, $3, $4, $5, $6::inet, $7)
		RETURNING id`,
		e.Table, e.RecordID, e.Action, e.Actor, e.Detail, e.OriginAddr, e.RecordedAt,
	).Scan(&e.ID)
}

// Query returns the audit trail for one record, newest first. Read-only; runs
// on a pool connection outside any transaction.
func (r *Recorder) Query(ctx context.Context, table string, recordID uuid.UUID, limit, offset int) ([]*Entry, int, error) {
	var total int
	if err := r.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM audit_log WHERE table_name = $1 AND record_id = $2`,
		table, recordID,
	).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("audit: count entries: %w", err)
	}

	rows, err := r.pool.Query(ctx, `
		SELECT id, table_name, record_id, action, actor, detail, origin_addr, recorded_at
		FROM audit_log
		WHERE table_name = $1 AND record_id = $2
		ORDER BY recorded_at DESC
		LIMIT $3 OFFSET $4`,
		table, recordID, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("audit: query entries: %w", err)
	}
	defer rows.Close()

	var entries []*Entry
	for rows.Next() {
		var e Entry
		if err := rows.Scan(&e.ID, &e.Table, &e.RecordID, &e.Action, &e.Actor,
			&e.Detail, &e.OriginAddr, &e.RecordedAt); err != nil {
			return nil, 0, fmt.Errorf("audit: scan entry: %w", err)
		}
		entries = append(entries, &e)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("audit: iterate entries: %w", err)
	}

	return entries, total, nil
}
