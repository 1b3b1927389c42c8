package order

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/clinlab/clinlab/internal/domain/analysis"
	"github.com/clinlab/clinlab/internal/errs"
	"github.com/clinlab/clinlab/internal/platform/audit"
	"github.com/clinlab/clinlab/internal/platform/db"
)

// AuditRecorder is the slice of the audit trail the service needs.
type AuditRecorder interface {
	Record(ctx context.Context, e *audit.Entry) error
}

// TypeLoader resolves analysis types; satisfied by analysis.Repository.
type TypeLoader interface {
	GetByID(ctx context.Context, id uuid.UUID) (*analysis.Type, error)
}

type Service struct {
	orders Repository
	types  TypeLoader
	txm    db.TxRunner
	audit  AuditRecorder
}

func NewService(orders Repository, types TypeLoader, txm db.TxRunner, recorder AuditRecorder) *Service {
	return &Service{orders: orders, types: types, txm: txm, audit: recorder}
}

// Create inserts a PENDING order plus one unvalued result per requested
// analysis type, then the CREATE audit entry, as a single transaction. The
// returned result ids follow the input order. A failure on any single result
// insert rolls back the whole order: a partial order is never visible.
func (s *Service) Create(ctx context.Context, patientID uuid.UUID, analysisTypeIDs []uuid.UUID, actor string) (*Order, []uuid.UUID, error) {
	if patientID == uuid.Nil {
		return nil, nil, errs.Validationf("patient id is required")
	}
	if len(analysisTypeIDs) == 0 {
		return nil, nil, errs.Validationf("at least one analysis type is required")
	}

	o := &Order{PatientID: patientID, Status: StatusPending, CreatedBy: actor}
	resultIDs := make([]uuid.UUID, 0, len(analysisTypeIDs))

	err := s.txm.WithTx(ctx, func(ctx context.Context) error {
		exists, err := s.orders.PatientExists(ctx, patientID)
		if err != nil {
			return errs.Step("verify patient", err)
		}
		if !exists {
			return errs.NotFoundf("patient %s", patientID)
		}

		if err := s.orders.InsertOrder(ctx, o); err != nil {
			return errs.Step("insert order", err)
		}

		for _, typeID := range analysisTypeIDs {
			res := &Result{OrderID: o.ID, AnalysisTypeID: typeID, LoadedBy: actor}
			if err := s.orders.InsertResult(ctx, res); err != nil {
				return errs.Step("insert result", err)
			}
			resultIDs = append(resultIDs, res.ID)
		}

		entry := &audit.Entry{
			Table:    "orders",
			RecordID: o.ID,
			Action:   audit.ActionCreate,
			Actor:    actor,
			Detail:   fmt.Sprintf("order with %d analyses", len(analysisTypeIDs)),
		}
		if err := s.audit.Record(ctx, entry); err != nil {
			return errs.Step("audit order", err)
		}
		return nil
	})
	if err != nil {
		return nil, nil, err
	}

	return o, resultIDs, nil
}

// PostOutcome reports what posting a result decided inside its transaction.
type PostOutcome struct {
	Classification analysis.Classification `json:"classification"`
	OrderCompleted bool                    `json:"order_completed"`
}

// Post writes a value onto a result: it classifies the value against the
// analysis type's current reference interval, stamps the result, and, when no
// unvalued results remain, completes the owning order in the same commit. The
// UPDATE audit entry rides the same transaction.
func (s *Service) Post(ctx context.Context, resultID uuid.UUID, value float64, actor string, origin *string) (*PostOutcome, error) {
	var outcome PostOutcome

	err := s.txm.WithTx(ctx, func(ctx context.Context) error {
		res, err := s.orders.GetResult(ctx, resultID)
		if err != nil {
			return errs.Step("load result", err)
		}

		at, err := s.types.GetByID(ctx, res.AnalysisTypeID)
		if err != nil {
			return errs.Step("load analysis type", err)
		}

		outcome.Classification = analysis.Classify(value, at.RefMin, at.RefMax)
		now := time.Now().UTC()

		if err := s.orders.SetResultValue(ctx, resultID, value, now, outcome.Classification.OutOfRange, actor); err != nil {
			return errs.Step("store result value", err)
		}

		// Fresh recount inside the same transaction; concurrent posts on
		// sibling results each mutate only their own row.
		unvalued, err := s.orders.CountUnvalued(ctx, res.OrderID)
		if err != nil {
			return errs.Step("count unvalued results", err)
		}
		if unvalued == 0 {
			o, err := s.orders.GetOrder(ctx, res.OrderID)
			if err != nil {
				return errs.Step("load order", err)
			}
			if o.Status == StatusPending {
				if err := s.orders.UpdateOrderStatus(ctx, res.OrderID, StatusCompleted); err != nil {
					return errs.Step("complete order", err)
				}
				outcome.OrderCompleted = true
			}
		}

		detail := fmt.Sprintf("%s: %g %s", at.Name, value, at.Unit)
		if outcome.Classification.OutOfRange {
			detail += " [OUT OF RANGE]"
		}
		entry := &audit.Entry{
			Table:      "results",
			RecordID:   resultID,
			Action:     audit.ActionUpdate,
			Actor:      actor,
			Detail:     strings.TrimSpace(detail),
			OriginAddr: origin,
		}
		if err := s.audit.Record(ctx, entry); err != nil {
			return errs.Step("audit result", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return &outcome, nil
}

// Cancel overwrites the order state to CANCELLED regardless of its current
// state; cancellation is not blocked by COMPLETED. The prior state is
// preserved in the CANCEL audit detail.
func (s *Service) Cancel(ctx context.Context, orderID uuid.UUID, actor, reason string) error {
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return errs.Validationf("cancellation reason is required")
	}

	return s.txm.WithTx(ctx, func(ctx context.Context) error {
		o, err := s.orders.GetOrder(ctx, orderID)
		if err != nil {
			return errs.Step("load order", err)
		}

		if err := s.orders.UpdateOrderStatus(ctx, orderID, StatusCancelled); err != nil {
			return errs.Step("cancel order", err)
		}

		entry := &audit.Entry{
			Table:    "orders",
			RecordID: orderID,
			Action:   audit.ActionCancel,
			Actor:    actor,
			Detail:   fmt.Sprintf("reason: %s (was %s)", reason, o.Status),
		}
		if err := s.audit.Record(ctx, entry); err != nil {
			return errs.Step("audit cancellation", err)
		}
		return nil
	})
}

// Get returns one order with its results.
func (s *Service) Get(ctx context.Context, id uuid.UUID) (*Order, []*Result, error) {
	o, err := s.orders.GetOrder(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	results, err := s.orders.ResultsByOrder(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	return o, results, nil
}

// ListByPatient returns a patient's orders, newest first.
func (s *Service) ListByPatient(ctx context.Context, patientID uuid.UUID, limit, offset int) ([]*Order, int, error) {
	return s.orders.ListByPatient(ctx, patientID, limit, offset)
}
