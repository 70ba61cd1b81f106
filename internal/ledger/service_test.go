package ledger

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/angelmondragon/orderflow/internal/testdb"
	"github.com/angelmondragon/orderflow/pkg/db/models"
	"github.com/angelmondragon/orderflow/pkg/enums"
)

type fakeRepository struct {
	createFn func(ctx context.Context, event *models.LedgerEvent) error
	events   []models.LedgerEvent
	sumErr   error
}

func (f *fakeRepository) WithTx(tx *gorm.DB) Repository {
	return f
}

func (f *fakeRepository) Create(ctx context.Context, event *models.LedgerEvent) error {
	if f.createFn != nil {
		return f.createFn(ctx, event)
	}
	return nil
}

func (f *fakeRepository) ListByOrderID(ctx context.Context, orderID uuid.UUID) ([]models.LedgerEvent, error) {
	return f.events, nil
}

func (f *fakeRepository) SumByType(ctx context.Context, orderID uuid.UUID, eventType enums.LedgerEventType) (decimal.Decimal, error) {
	if f.sumErr != nil {
		return decimal.Zero, f.sumErr
	}
	total := decimal.Zero
	for _, e := range f.events {
		if e.OrderID == orderID && e.Type == eventType {
			total = total.Add(e.Amount)
		}
	}
	return total, nil
}

func TestService_RecordEvent(t *testing.T) {
	repo := &fakeRepository{}
	svc, err := NewService(repo)
	if err != nil {
		t.Fatalf("unexpected service error: %v", err)
	}

	metadata := json.RawMessage(`{"payment_id":"p-1"}`)
	input := RecordLedgerEventInput{
		OrderID:     uuid.New(),
		ReferenceID: uuid.New(),
		Type:        enums.LedgerEventRefundIssued,
		Amount:      decimal.RequireFromString("10.004"),
		Metadata:    metadata,
	}

	var created *models.LedgerEvent
	repo.createFn = func(ctx context.Context, event *models.LedgerEvent) error {
		created = event
		return nil
	}

	got, err := svc.RecordEvent(context.Background(), input)
	if err != nil {
		t.Fatalf("RecordEvent error: %v", err)
	}
	if created == nil {
		t.Fatal("expected ledger event to be created")
	}
	if created.OrderID != input.OrderID || created.Type != input.Type || created.ReferenceID != input.ReferenceID {
		t.Fatalf("unexpected ledger event data: %v", created)
	}
	if !created.Amount.Equal(decimal.RequireFromString("10.00")) {
		t.Fatalf("amount should be rounded to cents, got %s", created.Amount)
	}
	if string(created.Metadata) != string(metadata) {
		t.Fatalf("metadata mismatch: %s", created.Metadata)
	}
	if got != created {
		t.Fatalf("service should return created event")
	}
}

func TestService_RecordEventValidation(t *testing.T) {
	svc, err := NewService(&fakeRepository{})
	if err != nil {
		t.Fatalf("unexpected service error: %v", err)
	}

	tests := []struct {
		name  string
		input RecordLedgerEventInput
	}{
		{
			name:  "missing order id",
			input: RecordLedgerEventInput{ReferenceID: uuid.New(), Type: enums.LedgerEventRefundIssued},
		},
		{
			name:  "missing reference",
			input: RecordLedgerEventInput{OrderID: uuid.New(), Type: enums.LedgerEventRefundIssued},
		},
		{
			name:  "invalid type",
			input: RecordLedgerEventInput{OrderID: uuid.New(), ReferenceID: uuid.New(), Type: enums.LedgerEventType("not_real")},
		},
		{
			name: "negative amount",
			input: RecordLedgerEventInput{
				OrderID:     uuid.New(),
				ReferenceID: uuid.New(),
				Type:        enums.LedgerEventReimbursementSettled,
				Amount:      decimal.NewFromInt(-1),
			},
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := svc.RecordEvent(context.Background(), tc.input); err == nil {
				t.Fatalf("expected validation error for %s", tc.name)
			}
		})
	}
}

func TestService_RecordEventRepoError(t *testing.T) {
	repo := &fakeRepository{}
	svc, err := NewService(repo)
	if err != nil {
		t.Fatalf("unexpected service error: %v", err)
	}

	expectedErr := errors.New("boom")
	repo.createFn = func(ctx context.Context, event *models.LedgerEvent) error {
		return expectedErr
	}

	if _, err := svc.RecordEvent(context.Background(), RecordLedgerEventInput{
		OrderID:     uuid.New(),
		ReferenceID: uuid.New(),
		Type:        enums.LedgerEventReimbursementErrored,
		Amount:      decimal.NewFromInt(1),
	}); !errors.Is(err, expectedErr) {
		t.Fatalf("expected repo error to bubble up, got %v", err)
	}
}

func TestService_Statement(t *testing.T) {
	orderID := uuid.New()
	repo := &fakeRepository{events: []models.LedgerEvent{
		{OrderID: orderID, Type: enums.LedgerEventRefundIssued, Amount: decimal.RequireFromString("4.00")},
		{OrderID: orderID, Type: enums.LedgerEventReimbursementErrored, Amount: decimal.RequireFromString("1.00")},
		{OrderID: orderID, Type: enums.LedgerEventReimbursementSettled, Amount: decimal.RequireFromString("10.00")},
		{OrderID: orderID, Type: enums.LedgerEventRefundIssued, Amount: decimal.RequireFromString("6.00")},
	}}
	svc, _ := NewService(repo)

	stmt, err := svc.Statement(context.Background(), orderID)
	if err != nil {
		t.Fatalf("Statement error: %v", err)
	}
	if !stmt.Refunded.Equal(decimal.RequireFromString("10.00")) {
		t.Fatalf("expected refunded 10.00, got %s", stmt.Refunded)
	}
	if !stmt.Reimbursed.Equal(decimal.RequireFromString("10.00")) {
		t.Fatalf("expected reimbursed 10.00, got %s", stmt.Reimbursed)
	}
	if stmt.Errored != 1 || len(stmt.Events) != 4 {
		t.Fatalf("unexpected statement %+v", stmt)
	}

	if _, err := svc.Statement(context.Background(), uuid.Nil); err == nil {
		t.Fatal("expected error for nil order id")
	}
	repo.sumErr = errors.New("db down")
	if _, err := svc.Statement(context.Background(), orderID); !errors.Is(err, repo.sumErr) {
		t.Fatalf("expected sum error to bubble up, got %v", err)
	}
}

func TestRepository_PersistsWithinTransaction(t *testing.T) {
	client := testdb.Open(t)
	svc, _ := NewService(NewRepository(client.DB()))
	orderID := uuid.New()

	err := client.WithTx(context.Background(), func(tx *gorm.DB) error {
		for _, amount := range []string{"3.50", "1.25"} {
			if _, err := svc.WithTx(tx).RecordEvent(context.Background(), RecordLedgerEventInput{
				OrderID:     orderID,
				ReferenceID: uuid.New(),
				Type:        enums.LedgerEventRefundIssued,
				Amount:      decimal.RequireFromString(amount),
			}); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		t.Fatalf("tx error: %v", err)
	}

	stmt, err := svc.Statement(context.Background(), orderID)
	if err != nil {
		t.Fatalf("Statement error: %v", err)
	}
	if !stmt.Refunded.Equal(decimal.RequireFromString("4.75")) || len(stmt.Events) != 2 {
		t.Fatalf("unexpected statement refunded=%s events=%d", stmt.Refunded, len(stmt.Events))
	}
	if !stmt.Reimbursed.IsZero() {
		t.Fatalf("expected no reimbursements, got %s", stmt.Reimbursed)
	}
}
