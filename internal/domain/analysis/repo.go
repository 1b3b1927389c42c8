package analysis

import (
	"context"

	"github.com/google/uuid"
)

type Repository interface {
	Create(ctx context.Context, t *Type) error
	GetByID(ctx context.Context, id uuid.UUID) (*Type, error)
	GetByCode(ctx context.Context, code string) (*Type, error)
	UpdateInterval(ctx context.Context, id uuid.UUID, min, max *float64) error
	List(ctx context.Context) ([]*Type, error)
}
