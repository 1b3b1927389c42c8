package analysis

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/clinlab/clinlab/internal/errs"
	"github.com/clinlab/clinlab/internal/platform/audit"
)

// -- Mocks --

type mockTypeRepo struct {
	types map[uuid.UUID]*Type
}

func newMockTypeRepo() *mockTypeRepo {
	return &mockTypeRepo{types: make(map[uuid.UUID]*Type)}
}

func (m *mockTypeRepo) Create(_ context.Context, t *Type) error {
	for _, existing := range m.types {
		if existing.Code == t.Code {
			return errs.Conflictf("code %s already exists", t.Code)
		}
	}
	t.ID = uuid.New()
	t.CreatedAt = time.Now()
	t.UpdatedAt = t.CreatedAt
	m.types[t.ID] = t
	return nil
}

func (m *mockTypeRepo) GetByID(_ context.Context, id uuid.UUID) (*Type, error) {
	t, ok := m.types[id]
	if !ok {
		return nil, errs.NotFoundf("analysis type")
	}
	return t, nil
}

func (m *mockTypeRepo) GetByCode(_ context.Context, code string) (*Type, error) {
	for _, t := range m.types {
		if t.Code == code {
			return t, nil
		}
	}
	return nil, errs.NotFoundf("analysis type")
}

func (m *mockTypeRepo) UpdateInterval(_ context.Context, id uuid.UUID, min, max *float64) error {
	t, ok := m.types[id]
	if !ok {
		return errs.NotFoundf("analysis type")
	}
	t.RefMin = min
	t.RefMax = max
	return nil
}

func (m *mockTypeRepo) List(_ context.Context) ([]*Type, error) {
	var out []*Type
	for _, t := range m.types {
		out = append(out, t)
	}
	return out, nil
}

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
}

func (m *mockAudit) Record(_ context.Context, e *audit.Entry) error {
	m.entries = append(m.entries, e)
	return nil
}

func ptr(f float64) *float64 { return &f }

// -- Tests --

func TestCreateType(t *testing.T) {
	repo := newMockTypeRepo()
	txm := &mockTxRunner{}
	rec := &mockAudit{}
	svc := NewService(repo, txm, rec)
	ctx := context.Background()

	typ := &Type{Code: " GLU ", Name: "Glucose", RefMin: ptr(70), RefMax: ptr(110), Unit: "mg/dL"}
	if err := svc.CreateType(ctx, typ, "admin"); err != nil {
		t.Fatalf("CreateType failed: %v", err)
	}
	if typ.Code != "GLU" {
		t.Errorf("code not trimmed: %q", typ.Code)
	}
	if txm.commits != 1 {
		t.Errorf("commits = %d, want 1", txm.commits)
	}
	if len(rec.entries) != 1 || rec.entries[0].Table != "analysis_types" || rec.entries[0].Action != audit.ActionCreate {
		t.Errorf("unexpected audit entries: %+v", rec.entries)
	}
}

func TestCreateTypeValidation(t *testing.T) {
	svc := NewService(newMockTypeRepo(), &mockTxRunner{}, &mockAudit{})
	ctx := context.Background()

	tests := []struct {
		name string
		typ  *Type
	}{
		{"missing code", &Type{Name: "Glucose"}},
		{"missing name", &Type{Code: "GLU"}},
		{"min without max", &Type{Code: "GLU", Name: "Glucose", RefMin: ptr(70)}},
		{"max without min", &Type{Code: "GLU", Name: "Glucose", RefMax: ptr(110)}},
		{"min above max", &Type{Code: "GLU", Name: "Glucose", RefMin: ptr(110), RefMax: ptr(70)}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := svc.CreateType(ctx, tt.typ, "admin"); !errors.Is(err, errs.ErrValidation) {
				t.Errorf("got %v, want ErrValidation", err)
			}
		})
	}
}

func TestUpdateInterval(t *testing.T) {
	repo := newMockTypeRepo()
	txm := &mockTxRunner{}
	rec := &mockAudit{}
	svc := NewService(repo, txm, rec)
	ctx := context.Background()

	typ := &Type{Code: "GLU", Name: "Glucose", RefMin: ptr(70), RefMax: ptr(110), Unit: "mg/dL"}
	if err := svc.CreateType(ctx, typ, "admin"); err != nil {
		t.Fatalf("CreateType failed: %v", err)
	}

	if err := svc.UpdateInterval(ctx, typ.ID, ptr(65), ptr(100), "admin"); err != nil {
		t.Fatalf("UpdateInterval failed: %v", err)
	}
	got, err := svc.GetType(ctx, typ.ID)
	if err != nil {
		t.Fatalf("GetType failed: %v", err)
	}
	if *got.RefMin != 65 || *got.RefMax != 100 {
		t.Errorf("interval = [%g, %g], want [65, 100]", *got.RefMin, *got.RefMax)
	}

	last := rec.entries[len(rec.entries)-1]
	if last.Action != audit.ActionUpdate {
		t.Errorf("action = %s, want UPDATE", last.Action)
	}
	if want := "reference interval set to [65, 100]"; last.Detail != want {
		t.Errorf("audit detail = %q, want %q", last.Detail, want)
	}

	// Clearing the interval entirely is allowed.
	if err := svc.UpdateInterval(ctx, typ.ID, nil, nil, "admin"); err != nil {
		t.Fatalf("UpdateInterval to nil failed: %v", err)
	}

	if err := svc.UpdateInterval(ctx, typ.ID, ptr(10), nil, "admin"); !errors.Is(err, errs.ErrValidation) {
		t.Errorf("half interval: got %v, want ErrValidation", err)
	}
	if err := svc.UpdateInterval(ctx, uuid.New(), ptr(1), ptr(2), "admin"); !errors.Is(err, errs.ErrNotFound) {
		t.Errorf("unknown id: got %v, want ErrNotFound", err)
	}
}
