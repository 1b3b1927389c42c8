package patient

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/clinlab/clinlab/internal/errs"
	"github.com/clinlab/clinlab/internal/platform/audit"
	"github.com/clinlab/clinlab/internal/platform/crypto"
)

// -- Mocks --

type mockPatientRepo struct {
	recs []*Record
}

func newMockPatientRepo() *mockPatientRepo {
	return &mockPatientRepo{}
}

func (m *mockPatientRepo) Insert(_ context.Context, rec *Record) error {
	rec.ID = uuid.New()
	rec.CreatedAt = time.Now()
	m.recs = append(m.recs, rec)
	return nil
}

func (m *mockPatientRepo) GetByID(_ context.Context, id uuid.UUID) (*Record, error) {
	for _, rec := range m.recs {
		if rec.ID == id {
			return rec, nil
		}
	}
	return nil, errs.NotFoundf("patient %s", id)
}

func (m *mockPatientRepo) UpdateEncrypted(_ context.Context, id uuid.UUID, nameEnc, phoneEnc []byte) error {
	for _, rec := range m.recs {
		if rec.ID == id {
			rec.NameEnc = nameEnc
			rec.PhoneEnc = phoneEnc
			return nil
		}
	}
	return errs.NotFoundf("patient %s", id)
}

func (m *mockPatientRepo) ForEach(_ context.Context, fn func(rec *Record) error) error {
	for _, rec := range m.recs {
		if err := fn(rec); err != nil {
			return err
		}
	}
	return nil
}

func (m *mockPatientRepo) Count(_ context.Context) (int, error) {
	return len(m.recs), nil
}

func (m *mockPatientRepo) DeleteAll(_ context.Context) error {
	m.recs = nil
	return nil
}

// mockTxRunner runs fn directly and counts commits and rollbacks. The
// transaction either commits as a whole (fn returned nil) or rolls back.
type mockTxRunner struct {
	commits   int
	rollbacks int
}

func (m *mockTxRunner) WithTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if err := fn(ctx); err != nil {
		m.rollbacks++
		return err
	}
	m.commits++
	return nil
}

type mockAudit struct {
	entries []*audit.Entry
	failErr error
}

func (m *mockAudit) Record(_ context.Context, e *audit.Entry) error {
	if m.failErr != nil {
		return m.failErr
	}
	m.entries = append(m.entries, e)
	return nil
}

func newTestService(t *testing.T) (*Service, *mockPatientRepo, *mockTxRunner, *mockAudit) {
	t.Helper()
	key := make([]byte, crypto.KeySize)
	for i := range key {
		key[i] = byte(i)
	}
	cipher, err := crypto.NewFieldCipher(key)
	if err != nil {
		t.Fatalf("NewFieldCipher failed: %v", err)
	}
	repo := newMockPatientRepo()
	txm := &mockTxRunner{}
	rec := &mockAudit{}
	return NewService(repo, txm, cipher, rec), repo, txm, rec
}

// -- Tests --

func TestRegisterEncryptsAndAudits(t *testing.T) {
	svc, repo, txm, rec := newTestService(t)
	ctx := context.Background()

	phone := "+1-555-0100"
	p, err := svc.Register(ctx, RegisterInput{
		Name:        "Maria Garcia",
		NationalID:  "12345678-9",
		DateOfBirth: time.Date(1980, 3, 15, 0, 0, 0, 0, time.UTC),
		Phone:       &phone,
	}, "dr.lopez", nil)
	if err != nil {
		t.Fatalf("Register failed: %v", err)
	}
	if p.ID == uuid.Nil {
		t.Error("registered patient has no id")
	}
	if p.Name != "Maria Garcia" || p.NationalID != "12345678-9" {
		t.Errorf("returned view does not echo the input: %+v", p)
	}

	// Stored form must not contain the plaintext.
	stored := repo.recs[0]
	if string(stored.NameEnc) == "Maria Garcia" {
		t.Error("name stored in plaintext")
	}
	if string(stored.NationalIDEnc) == "12345678-9" {
		t.Error("national id stored in plaintext")
	}
	if stored.PhoneEnc == nil {
		t.Error("phone was not stored")
	}

	if txm.commits != 1 {
		t.Errorf("commits = %d, want 1", txm.commits)
	}
	if len(rec.entries) != 1 {
		t.Fatalf("audit entries = %d, want 1", len(rec.entries))
	}
	e := rec.entries[0]
	if e.Table != "patients" || e.Action != audit.ActionCreate || e.Actor != "dr.lopez" {
		t.Errorf("unexpected audit entry: %+v", e)
	}
	if e.RecordID != p.ID {
		t.Errorf("audit record id = %s, want %s", e.RecordID, p.ID)
	}
}

func TestRegisterValidation(t *testing.T) {
	svc, _, txm, _ := newTestService(t)
	ctx := context.Background()
	dob := time.Date(1980, 3, 15, 0, 0, 0, 0, time.UTC)

	tests := []struct {
		name string
		in   RegisterInput
	}{
		{"missing name", RegisterInput{NationalID: "1", DateOfBirth: dob}},
		{"blank name", RegisterInput{Name: "   ", NationalID: "1", DateOfBirth: dob}},
		{"missing national id", RegisterInput{Name: "A", DateOfBirth: dob}},
		{"missing date of birth", RegisterInput{Name: "A", NationalID: "1"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.Register(ctx, tt.in, "tester", nil)
			if !errors.Is(err, errs.ErrValidation) {
				t.Errorf("got %v, want ErrValidation", err)
			}
		})
	}
	if txm.commits != 0 {
		t.Errorf("validation failures must not open transactions; commits = %d", txm.commits)
	}
}

func TestRegisterDuplicateNationalID(t *testing.T) {
	svc, _, txm, rec := newTestService(t)
	ctx := context.Background()
	dob := time.Date(1990, 1, 1, 0, 0, 0, 0, time.UTC)

	if _, err := svc.Register(ctx, RegisterInput{Name: "First", NationalID: "DUP-1", DateOfBirth: dob}, "tester", nil); err != nil {
		t.Fatalf("first Register failed: %v", err)
	}

	_, err := svc.Register(ctx, RegisterInput{Name: "Second", NationalID: "DUP-1", DateOfBirth: dob}, "tester", nil)
	if !errors.Is(err, errs.ErrConflict) {
		t.Fatalf("got %v, want ErrConflict", err)
	}
	if txm.rollbacks != 1 {
		t.Errorf("rollbacks = %d, want 1", txm.rollbacks)
	}
	if len(rec.entries) != 1 {
		t.Errorf("rejected duplicate must not add an audit entry; entries = %d", len(rec.entries))
	}
}

func TestRegisterRollsBackWhenAuditFails(t *testing.T) {
	svc, _, txm, rec := newTestService(t)
	rec.failErr = fmt.Errorf("audit table unavailable")
	ctx := context.Background()

	_, err := svc.Register(ctx, RegisterInput{
		Name:        "Maria Garcia",
		NationalID:  "12345678-9",
		DateOfBirth: time.Date(1980, 3, 15, 0, 0, 0, 0, time.UTC),
	}, "tester", nil)
	if err == nil {
		t.Fatal("expected Register to fail when the audit write fails")
	}
	if txm.commits != 0 || txm.rollbacks != 1 {
		t.Errorf("commits = %d rollbacks = %d, want 0/1", txm.commits, txm.rollbacks)
	}
}

func TestFindByNationalID(t *testing.T) {
	svc, _, _, _ := newTestService(t)
	ctx := context.Background()
	dob := time.Date(1975, 6, 1, 0, 0, 0, 0, time.UTC)

	for i := 0; i < 5; i++ {
		in := RegisterInput{
			Name:        fmt.Sprintf("Patient %d", i),
			NationalID:  fmt.Sprintf("ID-%03d", i),
			DateOfBirth: dob,
		}
		if _, err := svc.Register(ctx, in, "tester", nil); err != nil {
			t.Fatalf("Register %d failed: %v", i, err)
		}
	}

	p, err := svc.FindByNationalID(ctx, "ID-003")
	if err != nil {
		t.Fatalf("FindByNationalID failed: %v", err)
	}
	if p.Name != "Patient 3" {
		t.Errorf("found %q, want %q", p.Name, "Patient 3")
	}

	// Exact match only.
	if _, err := svc.FindByNationalID(ctx, "id-003"); !errors.Is(err, errs.ErrNotFound) {
		t.Errorf("case-insensitive match must not be found; got %v", err)
	}
	if _, err := svc.FindByNationalID(ctx, "ID-999"); !errors.Is(err, errs.ErrNotFound) {
		t.Errorf("got %v, want ErrNotFound", err)
	}
}

func TestSearchByName(t *testing.T) {
	svc, _, _, _ := newTestService(t)
	ctx := context.Background()
	dob := time.Date(1975, 6, 1, 0, 0, 0, 0, time.UTC)

	names := []string{"Maria Garcia", "Mario Rossi", "Ana Lopez"}
	for i, name := range names {
		in := RegisterInput{Name: name, NationalID: fmt.Sprintf("S-%d", i), DateOfBirth: dob}
		if _, err := svc.Register(ctx, in, "tester", nil); err != nil {
			t.Fatalf("Register failed: %v", err)
		}
	}

	matches, err := svc.SearchByName(ctx, "mari")
	if err != nil {
		t.Fatalf("SearchByName failed: %v", err)
	}
	if len(matches) != 2 {
		t.Fatalf("got %d matches, want 2", len(matches))
	}

	matches, err = svc.SearchByName(ctx, "GARCIA")
	if err != nil {
		t.Fatalf("SearchByName failed: %v", err)
	}
	if len(matches) != 1 || matches[0].Name != "Maria Garcia" {
		t.Errorf("case-insensitive search failed: %+v", matches)
	}

	if _, err := svc.SearchByName(ctx, "  "); !errors.Is(err, errs.ErrValidation) {
		t.Errorf("blank search text: got %v, want ErrValidation", err)
	}
}

func TestFindAbortsOnUndecryptableRow(t *testing.T) {
	svc, repo, _, _ := newTestService(t)
	ctx := context.Background()

	if _, err := svc.Register(ctx, RegisterInput{
		Name:        "Good Row",
		NationalID:  "OK-1",
		DateOfBirth: time.Date(1990, 1, 1, 0, 0, 0, 0, time.UTC),
	}, "tester", nil); err != nil {
		t.Fatalf("Register failed: %v", err)
	}

	// A row written under some other key.
	repo.recs = append([]*Record{{
		ID:            uuid.New(),
		NameEnc:       []byte("garbage"),
		NationalIDEnc: []byte("garbage"),
		DateOfBirth:   time.Date(1990, 1, 1, 0, 0, 0, 0, time.UTC),
	}}, repo.recs...)

	_, err := svc.FindByNationalID(ctx, "OK-1")
	var dErr *crypto.DecryptionError
	if !errors.As(err, &dErr) {
		t.Errorf("got %v, want *crypto.DecryptionError", err)
	}

	_, err = svc.SearchByName(ctx, "good")
	if !errors.As(err, &dErr) {
		t.Errorf("got %v, want *crypto.DecryptionError", err)
	}
}

func TestUpdateReencryptsSelectedFields(t *testing.T) {
	svc, repo, _, rec := newTestService(t)
	ctx := context.Background()

	p, err := svc.Register(ctx, RegisterInput{
		Name:        "Old Name",
		NationalID:  "U-1",
		DateOfBirth: time.Date(1985, 2, 2, 0, 0, 0, 0, time.UTC),
	}, "tester", nil)
	if err != nil {
		t.Fatalf("Register failed: %v", err)
	}
	oldNationalIDEnc := repo.recs[0].NationalIDEnc

	newName := "New Name"
	if err := svc.Update(ctx, p.ID, &newName, nil, "tester"); err != nil {
		t.Fatalf("Update failed: %v", err)
	}

	got, err := svc.Get(ctx, p.ID)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if got.Name != "New Name" {
		t.Errorf("name = %q, want %q", got.Name, "New Name")
	}
	if got.NationalID != "U-1" {
		t.Errorf("national id changed: %q", got.NationalID)
	}
	if string(repo.recs[0].NationalIDEnc) != string(oldNationalIDEnc) {
		t.Error("untouched field was re-encrypted")
	}

	last := rec.entries[len(rec.entries)-1]
	if last.Action != audit.ActionUpdate || last.Detail != "patient fields updated: name" {
		t.Errorf("unexpected audit entry: %+v", last)
	}

	if err := svc.Update(ctx, p.ID, nil, nil, "tester"); !errors.Is(err, errs.ErrValidation) {
		t.Errorf("empty update: got %v, want ErrValidation", err)
	}
}
