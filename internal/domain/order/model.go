package order

import (
	"time"

	"github.com/google/uuid"
)

// Status of an order. PENDING on creation; COMPLETED once every owned result
// has a value; CANCELLED is terminal and reachable from any prior state.
type Status string

const (
	StatusPending   Status = "PENDING"
	StatusCompleted Status = "COMPLETED"
	StatusCancelled Status = "CANCELLED"
)

type Order struct {
	ID        uuid.UUID `json:"id"`
	PatientID uuid.UUID `json:"patient_id"`
	Status    Status    `json:"status"`
	CreatedBy string    `json:"created_by"`
	CreatedAt time.Time `json:"created_at"`
}

// Result is one requested analysis on an order. Value and ResultedAt stay
// NULL until the result is posted; OutOfRange caches the classification
// computed against the reference interval in force at post time.
type Result struct {
	ID             uuid.UUID  `json:"id"`
	OrderID        uuid.UUID  `json:"order_id"`
	AnalysisTypeID uuid.UUID  `json:"analysis_type_id"`
	Value          *float64   `json:"value"`
	ResultedAt     *time.Time `json:"resulted_at"`
	OutOfRange     bool       `json:"out_of_range"`
	LoadedBy       string     `json:"loaded_by"`
}
