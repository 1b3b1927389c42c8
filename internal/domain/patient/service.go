package patient

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/clinlab/clinlab/internal/errs"
	"github.com/clinlab/clinlab/internal/platform/audit"
	"github.com/clinlab/clinlab/internal/platform/crypto"
	"github.com/clinlab/clinlab/internal/platform/db"
)

// AuditRecorder is the slice of the audit trail the service needs.
type AuditRecorder interface {
	Record(ctx context.Context, e *audit.Entry) error
}

type Service struct {
	patients Repository
	txm      db.TxRunner
	cipher   *crypto.FieldCipher
	audit    AuditRecorder
}

func NewService(patients Repository, txm db.TxRunner, cipher *crypto.FieldCipher, recorder AuditRecorder) *Service {
	return &Service{patients: patients, txm: txm, cipher: cipher, audit: recorder}
}

// RegisterInput carries the plaintext fields for a new patient.
type RegisterInput struct {
	Name        string
	NationalID  string
	DateOfBirth time.Time
	Phone       *string
}

// stopScan ends a ForEach early once the scan found what it was looking for.
var stopScan = errors.New("stop scan")

// Register encrypts the PII fields, inserts the patient, and writes the
// CREATE audit entry, all in one transaction. National-ID uniqueness is
// advisory: a decrypt-scan inside the transaction rejects known duplicates,
// but randomized encryption makes a database constraint impossible.
func (s *Service) Register(ctx context.Context, in RegisterInput, actor string, origin *string) (*Patient, error) {
	in.Name = strings.TrimSpace(in.Name)
	in.NationalID = strings.TrimSpace(in.NationalID)
	if in.Name == "" {
		return nil, errs.Validationf("name is required")
	}
	if in.NationalID == "" {
		return nil, errs.Validationf("national id is required")
	}
	if in.DateOfBirth.IsZero() {
		return nil, errs.Validationf("date of birth is required")
	}

	rec := &Record{DateOfBirth: in.DateOfBirth}

	err := s.txm.WithTx(ctx, func(ctx context.Context) error {
		dup, err := s.scanForNationalID(ctx, in.NationalID)
		if err != nil {
			return errs.Step("duplicate check", err)
		}
		if dup != nil {
			return errs.Conflictf("national id already registered")
		}

		if rec.NameEnc, err = s.cipher.Encrypt(in.Name); err != nil {
			return errs.Step("encrypt name", err)
		}
		if rec.NationalIDEnc, err = s.cipher.Encrypt(in.NationalID); err != nil {
			return errs.Step("encrypt national id", err)
		}
		if rec.PhoneEnc, err = s.cipher.EncryptOptional(in.Phone); err != nil {
			return errs.Step("encrypt phone", err)
		}

		if err := s.patients.Insert(ctx, rec); err != nil {
			return errs.Step("insert patient", err)
		}

		entry := &audit.Entry{
			Table:      "patients",
			RecordID:   rec.ID,
			Action:     audit.ActionCreate,
			Actor:      actor,
			Detail:     "new patient registered",
			OriginAddr: origin,
		}
		if err := s.audit.Record(ctx, entry); err != nil {
			return errs.Step("audit patient", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return &Patient{
		ID:          rec.ID,
		Name:        in.Name,
		NationalID:  in.NationalID,
		DateOfBirth: in.DateOfBirth,
		Phone:       in.Phone,
		CreatedAt:   rec.CreatedAt,
	}, nil
}

// Update re-encrypts the supplied fields of an existing patient and writes an
// UPDATE audit entry. Nil fields are left untouched.
func (s *Service) Update(ctx context.Context, id uuid.UUID, name, phone *string, actor string) error {
	if name == nil && phone == nil {
		return errs.Validationf("nothing to update")
	}
	if name != nil && strings.TrimSpace(*name) == "" {
		return errs.Validationf("name must not be empty")
	}

	return s.txm.WithTx(ctx, func(ctx context.Context) error {
		rec, err := s.patients.GetByID(ctx, id)
		if err != nil {
			return errs.Step("load patient", err)
		}

		var changed []string
		nameEnc, phoneEnc := rec.NameEnc, rec.PhoneEnc
		if name != nil {
			if nameEnc, err = s.cipher.Encrypt(strings.TrimSpace(*name)); err != nil {
				return errs.Step("encrypt name", err)
			}
			changed = append(changed, "name")
		}
		if phone != nil {
			if phoneEnc, err = s.cipher.Encrypt(*phone); err != nil {
				return errs.Step("encrypt phone", err)
			}
			changed = append(changed, "phone")
		}

		if err := s.patients.UpdateEncrypted(ctx, id, nameEnc, phoneEnc); err != nil {
			return errs.Step("update patient", err)
		}

		entry := &audit.Entry{
			Table:    "patients",
			RecordID: id,
			Action:   audit.ActionUpdate,
			Actor:    actor,
			Detail:   fmt.Sprintf("patient fields updated: %s", strings.Join(changed, ", ")),
		}
		if err := s.audit.Record(ctx, entry); err != nil {
			return errs.Step("audit patient update", err)
		}
		return nil
	})
}

// Get loads and decrypts one patient.
func (s *Service) Get(ctx context.Context, id uuid.UUID) (*Patient, error) {
	rec, err := s.patients.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	return s.decrypt(rec)
}

// FindByNationalID scans every patient row, decrypting the national-ID column
// and comparing exactly (case-sensitive). O(n) per call: randomized
// encryption precludes any index over the ciphertext, and switching to
// deterministic encryption would leak equality relationships.
func (s *Service) FindByNationalID(ctx context.Context, nationalID string) (*Patient, error) {
	rec, err := s.scanForNationalID(ctx, nationalID)
	if err != nil {
		return nil, err
	}
	if rec == nil {
		return nil, errs.NotFoundf("patient with national id")
	}
	return s.decrypt(rec)
}

func (s *Service) scanForNationalID(ctx context.Context, nationalID string) (*Record, error) {
	var found *Record
	err := s.patients.ForEach(ctx, func(rec *Record) error {
		plain, err := s.cipher.Decrypt(rec.NationalIDEnc)
		if err != nil {
			return err
		}
		if plain == nationalID {
			found = rec
			return stopScan
		}
		return nil
	})
	if err != nil && !errors.Is(err, stopScan) {
		return nil, err
	}
	return found, nil
}

// SearchByName scans every patient row and accumulates case-insensitive
// substring matches on the decrypted name. Same full-scan cost profile as
// FindByNationalID.
func (s *Service) SearchByName(ctx context.Context, text string) ([]*Patient, error) {
	needle := strings.ToLower(strings.TrimSpace(text))
	if needle == "" {
		return nil, errs.Validationf("search text is required")
	}

	var matches []*Patient
	err := s.patients.ForEach(ctx, func(rec *Record) error {
		name, err := s.cipher.Decrypt(rec.NameEnc)
		if err != nil {
			return err
		}
		if strings.Contains(strings.ToLower(name), needle) {
			p, err := s.decrypt(rec)
			if err != nil {
				return err
			}
			matches = append(matches, p)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return matches, nil
}

func (s *Service) decrypt(rec *Record) (*Patient, error) {
	name, err := s.cipher.Decrypt(rec.NameEnc)
	if err != nil {
		return nil, err
	}
	nationalID, err := s.cipher.Decrypt(rec.NationalIDEnc)
	if err != nil {
		return nil, err
	}
	phone, err := s.cipher.DecryptOptional(rec.PhoneEnc)
	if err != nil {
		return nil, err
	}

	return &Patient{
		ID:          rec.ID,
		Name:        name,
		NationalID:  nationalID,
		DateOfBirth: rec.DateOfBirth,
		Phone:       phone,
		CreatedAt:   rec.CreatedAt,
	}, nil
}
