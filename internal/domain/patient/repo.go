package patient

import (
	"context"

	"github.com/google/uuid"
)

type Repository interface {
	Insert(ctx context.Context, rec *Record) error
	GetByID(ctx context.Context, id uuid.UUID) (*Record, error)
	UpdateEncrypted(ctx context.Context, id uuid.UUID, nameEnc, phoneEnc []byte) error
	// ForEach streams every stored record to fn in insertion order, stopping
	// at the first error. The encrypted lookups are built on this: randomized
	// encryption rules out any index, so equality search is a full scan.
	ForEach(ctx context.Context, fn func(rec *Record) error) error
	Count(ctx context.Context) (int, error)
	DeleteAll(ctx context.Context) error
}
