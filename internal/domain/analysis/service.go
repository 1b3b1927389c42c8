package analysis

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/clinlab/clinlab/internal/errs"
	"github.com/clinlab/clinlab/internal/platform/audit"
	"github.com/clinlab/clinlab/internal/platform/db"
)

// AuditRecorder is the slice of the audit trail the service needs.
type AuditRecorder interface {
	Record(ctx context.Context, e *audit.Entry) error
}

type Service struct {
	types Repository
	txm   db.TxRunner
	audit AuditRecorder
}

func NewService(types Repository, txm db.TxRunner, recorder AuditRecorder) *Service {
	return &Service{types: types, txm: txm, audit: recorder}
}

// CreateType adds a new analysis type to the catalog.
func (s *Service) CreateType(ctx context.Context, t *Type, actor string) error {
	t.Code = strings.TrimSpace(t.Code)
	t.Name = strings.TrimSpace(t.Name)
	if t.Code == "" {
		return errs.Validationf("code is required")
	}
	if t.Name == "" {
		return errs.Validationf("name is required")
	}
	if err := validateInterval(t.RefMin, t.RefMax); err != nil {
		return err
	}

	return s.txm.WithTx(ctx, func(ctx context.Context) error {
		if err := s.types.Create(ctx, t); err != nil {
			return errs.Step("insert analysis type", err)
		}
		entry := &audit.Entry{
			Table:    "analysis_types",
			RecordID: t.ID,
			Action:   audit.ActionCreate,
			Actor:    actor,
			Detail:   fmt.Sprintf("analysis type %s (%s) added", t.Code, t.Name),
		}
		if err := s.audit.Record(ctx, entry); err != nil {
			return errs.Step("audit analysis type", err)
		}
		return nil
	})
}

// UpdateInterval changes the reference interval of an analysis type. Results
// already posted keep the out-of-range flag computed against the interval in
// force at post time.
func (s *Service) UpdateInterval(ctx context.Context, id uuid.UUID, min, max *float64, actor string) error {
	if err := validateInterval(min, max); err != nil {
		return err
	}

	return s.txm.WithTx(ctx, func(ctx context.Context) error {
		if err := s.types.UpdateInterval(ctx, id, min, max); err != nil {
			return errs.Step("update reference interval", err)
		}
		entry := &audit.Entry{
			Table:    "analysis_types",
			RecordID: id,
			Action:   audit.ActionUpdate,
			Actor:    actor,
			Detail:   fmt.Sprintf("reference interval set to %s", intervalText(min, max)),
		}
		if err := s.audit.Record(ctx, entry); err != nil {
			return errs.Step("audit interval update", err)
		}
		return nil
	})
}

func (s *Service) GetType(ctx context.Context, id uuid.UUID) (*Type, error) {
	return s.types.GetByID(ctx, id)
}

func (s *Service) ListTypes(ctx context.Context) ([]*Type, error) {
	return s.types.List(ctx)
}

func validateInterval(min, max *float64) error {
	if (min == nil) != (max == nil) {
		return errs.Validationf("reference interval requires both bounds or neither")
	}
	if min != nil && *min > *max {
		return errs.Validationf("reference interval min %g exceeds max %g", *min, *max)
	}
	return nil
}

func intervalText(min, max *float64) string {
	if min == nil || max == nil {
		return "undefined"
	}
	return fmt.Sprintf("[%g, %g]", *min, *max)
}
