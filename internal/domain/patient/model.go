package patient

import (
	"time"

	"github.com/google/uuid"
)

// Patient is the decrypted view handed to callers. It never touches the
// database in this form.
type Patient struct {
	ID          uuid.UUID `json:"id"`
	Name        string    `json:"name"`
	NationalID  string    `json:"national_id"`
	DateOfBirth time.Time `json:"date_of_birth"`
	Phone       *string   `json:"phone,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

// Record is the stored shape: PII columns hold randomized ciphertext. Date of
// birth is plaintext by design (needed for age computations and not a direct
// identifier on its own).
type Record struct {
	ID            uuid.UUID
	NameEnc       []byte
	NationalIDEnc []byte
	DateOfBirth   time.Time
	PhoneEnc      []byte
	CreatedAt     time.Time
}
