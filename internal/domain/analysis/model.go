package analysis

import (
	"time"

	"github.com/google/uuid"
)

// Type is a catalog entry for one kind of analysis: its code, display name,
// reference interval and unit. The interval is mutable by administrative
// action; results cache the classification computed at post time.
type Type struct {
	ID        uuid.UUID `json:"id"`
	Code      string    `json:"code"`
	Name      string    `json:"name"`
	RefMin    *float64  `json:"ref_min"`
	RefMax    *float64  `json:"ref_max"`
	Unit      string    `json:"unit"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}
