package order

import (
	"context"
	"time"

	"github.com/google/uuid"
)

type Repository interface {
	InsertOrder(ctx context.Context, o *Order) error
	GetOrder(ctx context.Context, id uuid.UUID) (*Order, error)
	UpdateOrderStatus(ctx context.Context, id uuid.UUID, status Status) error
	ListByPatient(ctx context.Context, patientID uuid.UUID, limit, offset int) ([]*Order, int, error)

	InsertResult(ctx context.Context, res *Result) error
	GetResult(ctx context.Context, id uuid.UUID) (*Result, error)
	ResultsByOrder(ctx context.Context, orderID uuid.UUID) ([]*Result, error)
	SetResultValue(ctx context.Context, id uuid.UUID, value float64, resultedAt time.Time, outOfRange bool, loadedBy string) error
	// CountUnvalued returns how many results of the order still have a NULL
	// value. The completion rollup re-derives order state from this fresh
	// count inside the posting transaction.
	CountUnvalued(ctx context.Context, orderID uuid.UUID) (int, error)

	PatientExists(ctx context.Context, patientID uuid.UUID) (bool, error)
}
