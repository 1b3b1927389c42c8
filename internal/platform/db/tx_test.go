package db

import (
	"context"
	"testing"

	"github.com/jackc/pgx/v5"
)

// fakeTx satisfies pgx.Tx for context plumbing tests; no method is ever called.
type fakeTx struct {
	pgx.Tx
	id int
}

var _ pgx.Tx = (*fakeTx)(nil)

func TestTxFromContextEmpty(t *testing.T) {
	if tx := TxFromContext(context.Background()); tx != nil {
		t.Errorf("expected nil outside a transaction, got %v", tx)
	}
}

func TestWithTestTxRoundTrip(t *testing.T) {
	tx := &fakeTx{id: 1}
	ctx := WithTestTx(context.Background(), tx)

	got := TxFromContext(ctx)
	if got != pgx.Tx(tx) {
		t.Errorf("got %v, want the injected transaction", got)
	}

	// Nested injection shadows the outer transaction.
	inner := &fakeTx{id: 2}
	if got := TxFromContext(WithTestTx(ctx, inner)); got != pgx.Tx(inner) {
		t.Errorf("got %v, want the inner transaction", got)
	}
}

// Compile-time check that a transaction satisfies Queryer.
var _ Queryer = pgx.Tx(nil)
