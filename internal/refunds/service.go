// Package refunds issues money back against captured payments. Every refund
// is bounded by what its payment captured.
package refunds

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/angelmondragon/orderflow/internal/ledger"
	"github.com/angelmondragon/orderflow/internal/validation"
	"github.com/angelmondragon/orderflow/pkg/db"
	"github.com/angelmondragon/orderflow/pkg/db/models"
	"github.com/angelmondragon/orderflow/pkg/enums"
	pkgerrors "github.com/angelmondragon/orderflow/pkg/errors"
	"github.com/angelmondragon/orderflow/pkg/logger"
	"github.com/angelmondragon/orderflow/pkg/metrics"
	"github.com/angelmondragon/orderflow/pkg/outbox"
	"github.com/angelmondragon/orderflow/pkg/outbox/payloads"
)

// DefaultReasonName is the immutable reason attached to engine-issued refunds.
const DefaultReasonName = "Return processing"

const (
	KeyAmountNotPositive     = "amount_must_be_greater_than_zero"
	KeyAmountExceedsCaptured = "amount_exceeds_captured_amount"
	KeyPaymentNotCompleted   = "payment_not_completed"
)

type outboxPublisher interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

// Service issues refunds. Methods taking a tx run on it; a nil tx uses the
// service's own connection.
type Service interface {
	Create(ctx context.Context, tx *gorm.DB, input CreateRefundInput) (*models.Refund, error)
	Plan(ctx context.Context, tx *gorm.DB, orderID uuid.UUID, amount decimal.Decimal) ([]Allocation, decimal.Decimal, error)
	Distribute(ctx context.Context, tx *gorm.DB, input DistributeInput) ([]*models.Refund, decimal.Decimal, error)
	TotalForReimbursement(ctx context.Context, tx *gorm.DB, reimbursementID uuid.UUID) (decimal.Decimal, error)
	TotalForOrder(ctx context.Context, tx *gorm.DB, orderID uuid.UUID) (decimal.Decimal, error)
	RemainingCapacity(ctx context.Context, tx *gorm.DB, payment *models.Payment) (decimal.Decimal, error)
}

// CreateRefundInput describes one refund against one payment. ReasonID
// defaults to the "Return processing" reason.
type CreateRefundInput struct {
	PaymentID        uuid.UUID       `json:"payment_id" validate:"required"`
	Amount           decimal.Decimal `json:"amount"`
	ReasonID         *uuid.UUID      `json:"refund_reason_id"`
	ReimbursementID  *uuid.UUID      `json:"reimbursement_id"`
	CustomerReturnID *uuid.UUID      `json:"customer_return_id"`
}

// DistributeInput refunds Amount across the order's completed payments.
type DistributeInput struct {
	OrderID          uuid.UUID       `json:"order_id" validate:"required"`
	Amount           decimal.Decimal `json:"amount"`
	ReimbursementID  *uuid.UUID      `json:"reimbursement_id"`
	CustomerReturnID *uuid.UUID      `json:"customer_return_id"`
}

// Allocation is a planned refund amount against one payment.
type Allocation struct {
	Payment models.Payment
	Amount  decimal.Decimal
}

// ServiceParams groups dependencies for the refund service.
type ServiceParams struct {
	Repo    Repository
	DB      *gorm.DB
	Gateway Gateway
	Ledger  ledger.Service
	Outbox  outboxPublisher
	Logger  *logger.Logger
	Metrics *metrics.EngineMetrics
}

type service struct {
	repo    Repository
	db      *gorm.DB
	gateway Gateway
	ledger  ledger.Service
	outbox  outboxPublisher
	logg    *logger.Logger
	metrics *metrics.EngineMetrics
}

func NewService(params ServiceParams) (Service, error) {
	if params.Repo == nil {
		return nil, fmt.Errorf("refunds repository required")
	}
	if params.Ledger == nil {
		return nil, fmt.Errorf("ledger service required")
	}
	if params.Outbox == nil {
		return nil, fmt.Errorf("outbox publisher required")
	}
	gateway := params.Gateway
	if gateway == nil {
		gateway = NoopGateway{}
	}
	return &service{
		repo:    params.Repo,
		db:      params.DB,
		gateway: gateway,
		ledger:  params.Ledger,
		outbox:  params.Outbox,
		logg:    params.Logger,
		metrics: params.Metrics,
	}, nil
}

func (s *service) Create(ctx context.Context, tx *gorm.DB, input CreateRefundInput) (*models.Refund, error) {
	if err := validation.Struct(input); err != nil {
		return nil, err
	}
	amount := input.Amount.Round(2)
	if !amount.IsPositive() {
		return nil, pkgerrors.Validation(pkgerrors.FieldError{Field: "amount", Key: KeyAmountNotPositive, Message: "must be greater than 0"})
	}

	repo := s.repo.WithTx(tx)
	payment, err := repo.FindPayment(ctx, input.PaymentID)
	if err != nil {
		if db.IsNotFound(err) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "payment not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load payment")
	}
	if payment.State != enums.PaymentCompleted {
		return nil, pkgerrors.Validation(pkgerrors.FieldError{Field: "payment", Key: KeyPaymentNotCompleted, Message: "must be completed"})
	}
	remaining, err := s.remaining(ctx, repo, payment)
	if err != nil {
		return nil, err
	}
	if amount.GreaterThan(remaining) {
		return nil, pkgerrors.Validation(pkgerrors.FieldError{
			Field:   "amount",
			Key:     KeyAmountExceedsCaptured,
			Message: fmt.Sprintf("exceeds the remaining captured amount of %s", remaining.StringFixed(2)),
		})
	}

	reasonID, err := s.reasonID(ctx, repo, input.ReasonID)
	if err != nil {
		return nil, err
	}

	transactionID, err := s.gateway.Refund(ctx, payment, amount)
	if err != nil {
		s.logg.Error(s.logg.WithField(s.logg.WithOrderID(ctx, payment.OrderID.String()), "payment_id", payment.ID.String()), "refund gateway failed", err)
		return nil, err
	}

	refund := &models.Refund{
		PaymentID:        payment.ID,
		ReimbursementID:  input.ReimbursementID,
		CustomerReturnID: input.CustomerReturnID,
		Amount:           amount,
		RefundReasonID:   reasonID,
		TransactionID:    transactionID,
	}
	if err := repo.Create(ctx, refund); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "create refund")
	}

	if err := s.record(ctx, tx, payment, refund); err != nil {
		return nil, err
	}

	s.metrics.AddRefunded(amount.InexactFloat64())
	logCtx := s.logg.WithFields(s.logg.WithOrderID(ctx, payment.OrderID.String()), map[string]any{
		"payment_id": payment.ID.String(),
		"amount":     amount.StringFixed(2),
	})
	s.logg.Info(logCtx, "refund issued")
	return refund, nil
}

func (s *service) record(ctx context.Context, tx *gorm.DB, payment *models.Payment, refund *models.Refund) error {
	metadata, err := json.Marshal(map[string]any{
		"payment_id":     payment.ID,
		"transaction_id": refund.TransactionID,
	})
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "encode ledger metadata")
	}
	if _, err := s.ledger.WithTx(tx).RecordEvent(ctx, ledger.RecordLedgerEventInput{
		OrderID:     payment.OrderID,
		ReferenceID: refund.ID,
		Type:        enums.LedgerEventRefundIssued,
		Amount:      refund.Amount,
		Metadata:    metadata,
	}); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "record refund ledger event")
	}

	return s.outbox.Emit(ctx, s.handle(tx), outbox.DomainEvent{
		EventType:     enums.EventRefundIssued,
		AggregateType: enums.AggregateRefund,
		AggregateID:   refund.ID,
		Data: payloads.RefundIssuedEvent{
			OrderID:         payment.OrderID,
			PaymentID:       payment.ID,
			ReimbursementID: refund.ReimbursementID,
			Amount:          refund.Amount,
			TransactionID:   refund.TransactionID,
		},
	})
}

// Plan splits amount over the order's completed payments without issuing
// anything. A single payment able to cover the whole amount is preferred;
// otherwise payments are drained oldest first. The second result is the part
// no payment can absorb.
func (s *service) Plan(ctx context.Context, tx *gorm.DB, orderID uuid.UUID, amount decimal.Decimal) ([]Allocation, decimal.Decimal, error) {
	amount = amount.Round(2)
	if !amount.IsPositive() {
		return nil, decimal.Zero, nil
	}
	repo := s.repo.WithTx(tx)
	payments, err := repo.CompletedPayments(ctx, orderID)
	if err != nil {
		return nil, decimal.Zero, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load payments")
	}

	capacities := make([]decimal.Decimal, len(payments))
	for i := range payments {
		capacities[i], err = s.remaining(ctx, repo, &payments[i])
		if err != nil {
			return nil, decimal.Zero, err
		}
	}

	for i := range payments {
		if capacities[i].GreaterThanOrEqual(amount) {
			return []Allocation{{Payment: payments[i], Amount: amount}}, decimal.Zero, nil
		}
	}

	var plan []Allocation
	left := amount
	for i := range payments {
		if !left.IsPositive() {
			break
		}
		if !capacities[i].IsPositive() {
			continue
		}
		take := decimal.Min(left, capacities[i])
		plan = append(plan, Allocation{Payment: payments[i], Amount: take})
		left = left.Sub(take)
	}
	return plan, left, nil
}

// Distribute issues the planned refunds and returns them with the unrefunded
// remainder.
func (s *service) Distribute(ctx context.Context, tx *gorm.DB, input DistributeInput) ([]*models.Refund, decimal.Decimal, error) {
	if err := validation.Struct(input); err != nil {
		return nil, decimal.Zero, err
	}
	plan, left, err := s.Plan(ctx, tx, input.OrderID, input.Amount)
	if err != nil {
		return nil, decimal.Zero, err
	}
	refunds := make([]*models.Refund, 0, len(plan))
	for _, alloc := range plan {
		refund, err := s.Create(ctx, tx, CreateRefundInput{
			PaymentID:        alloc.Payment.ID,
			Amount:           alloc.Amount,
			ReimbursementID:  input.ReimbursementID,
			CustomerReturnID: input.CustomerReturnID,
		})
		if err != nil {
			return refunds, decimal.Zero, err
		}
		refunds = append(refunds, refund)
	}
	return refunds, left, nil
}

func (s *service) TotalForReimbursement(ctx context.Context, tx *gorm.DB, reimbursementID uuid.UUID) (decimal.Decimal, error) {
	amounts, err := s.repo.WithTx(tx).AmountsForReimbursement(ctx, reimbursementID)
	if err != nil {
		return decimal.Zero, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "sum reimbursement refunds")
	}
	return sum(amounts), nil
}

func (s *service) TotalForOrder(ctx context.Context, tx *gorm.DB, orderID uuid.UUID) (decimal.Decimal, error) {
	amounts, err := s.repo.WithTx(tx).AmountsForOrder(ctx, orderID)
	if err != nil {
		return decimal.Zero, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "sum order refunds")
	}
	return sum(amounts), nil
}

func (s *service) RemainingCapacity(ctx context.Context, tx *gorm.DB, payment *models.Payment) (decimal.Decimal, error) {
	return s.remaining(ctx, s.repo.WithTx(tx), payment)
}

func (s *service) remaining(ctx context.Context, repo Repository, payment *models.Payment) (decimal.Decimal, error) {
	amounts, err := repo.AmountsForPayment(ctx, payment.ID)
	if err != nil {
		return decimal.Zero, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "sum payment refunds")
	}
	left := payment.Amount.Sub(sum(amounts))
	if left.IsNegative() {
		return decimal.Zero, nil
	}
	return left, nil
}

func (s *service) reasonID(ctx context.Context, repo Repository, requested *uuid.UUID) (uuid.UUID, error) {
	if requested != nil && *requested != uuid.Nil {
		return *requested, nil
	}
	reason, err := repo.FindOrCreateReason(ctx, DefaultReasonName)
	if err != nil {
		return uuid.Nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load default refund reason")
	}
	return reason.ID, nil
}

func (s *service) handle(tx *gorm.DB) *gorm.DB {
	if tx != nil {
		return tx
	}
	return s.db
}
