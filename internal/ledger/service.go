package ledger

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/angelmondragon/orderflow/pkg/db/models"
	"github.com/angelmondragon/orderflow/pkg/enums"
)

// Service defines operations that record ledger events.
type Service interface {
	WithTx(tx *gorm.DB) Service
	RecordEvent(ctx context.Context, input RecordLedgerEventInput) (*models.LedgerEvent, error)
	Statement(ctx context.Context, orderID uuid.UUID) (*Statement, error)
}

// Statement is the money history of one order with per-kind totals.
type Statement struct {
	OrderID    uuid.UUID       `json:"order_id"`
	Refunded   decimal.Decimal `json:"refunded"`
	Reimbursed decimal.Decimal `json:"reimbursed"`
	Errored    int             `json:"errored_reimbursements"`
	Events     []Entry         `json:"events"`
}

type Entry struct {
	Type        enums.LedgerEventType `json:"type"`
	Amount      decimal.Decimal       `json:"amount"`
	ReferenceID uuid.UUID             `json:"reference_id"`
	Metadata    json.RawMessage       `json:"metadata,omitempty"`
	CreatedAt   time.Time             `json:"created_at"`
}

type service struct {
	repo Repository
}

// RecordLedgerEventInput captures the immutable data a ledger event requires.
// ReferenceID points at the refund or reimbursement that moved the money.
type RecordLedgerEventInput struct {
	OrderID     uuid.UUID             `json:"order_id"`
	ReferenceID uuid.UUID             `json:"reference_id"`
	Type        enums.LedgerEventType `json:"type"`
	Amount      decimal.Decimal       `json:"amount"`
	Metadata    json.RawMessage       `json:"metadata"`
}

// NewService wires a ledger service with the provided repository.
func NewService(repo Repository) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("ledger repository required")
	}
	return &service{repo: repo}, nil
}

func (s *service) WithTx(tx *gorm.DB) Service {
	return &service{repo: s.repo.WithTx(tx)}
}

func (s *service) RecordEvent(ctx context.Context, input RecordLedgerEventInput) (*models.LedgerEvent, error) {
	if input.OrderID == uuid.Nil {
		return nil, fmt.Errorf("order id is required")
	}
	if input.ReferenceID == uuid.Nil {
		return nil, fmt.Errorf("reference id is required")
	}
	if !input.Type.IsValid() {
		return nil, fmt.Errorf("invalid ledger event type %q", input.Type)
	}
	if input.Amount.IsNegative() {
		return nil, fmt.Errorf("ledger amount must not be negative")
	}

	event := &models.LedgerEvent{
		OrderID:     input.OrderID,
		ReferenceID: input.ReferenceID,
		Type:        input.Type,
		Amount:      input.Amount.Round(2),
		Metadata:    input.Metadata,
	}

	if err := s.repo.Create(ctx, event); err != nil {
		return nil, err
	}
	return event, nil
}

func (s *service) Statement(ctx context.Context, orderID uuid.UUID) (*Statement, error) {
	if orderID == uuid.Nil {
		return nil, fmt.Errorf("order id is required")
	}

	events, err := s.repo.ListByOrderID(ctx, orderID)
	if err != nil {
		return nil, fmt.Errorf("list ledger events: %w", err)
	}
	refunded, err := s.repo.SumByType(ctx, orderID, enums.LedgerEventRefundIssued)
	if err != nil {
		return nil, fmt.Errorf("sum refunds: %w", err)
	}
	reimbursed, err := s.repo.SumByType(ctx, orderID, enums.LedgerEventReimbursementSettled)
	if err != nil {
		return nil, fmt.Errorf("sum reimbursements: %w", err)
	}

	stmt := &Statement{OrderID: orderID, Refunded: refunded, Reimbursed: reimbursed, Events: make([]Entry, 0, len(events))}
	for _, event := range events {
		if event.Type == enums.LedgerEventReimbursementErrored {
			stmt.Errored++
		}
		stmt.Events = append(stmt.Events, Entry{
			Type:        event.Type,
			Amount:      event.Amount,
			ReferenceID: event.ReferenceID,
			Metadata:    event.Metadata,
			CreatedAt:   event.CreatedAt,
		})
	}
	return stmt, nil
}
