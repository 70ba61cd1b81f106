package refunds

import (
	"context"
	"errors"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/angelmondragon/orderflow/internal/ledger"
	"github.com/angelmondragon/orderflow/internal/testdb"
	"github.com/angelmondragon/orderflow/pkg/db"
	"github.com/angelmondragon/orderflow/pkg/db/models"
	"github.com/angelmondragon/orderflow/pkg/enums"
	pkgerrors "github.com/angelmondragon/orderflow/pkg/errors"
	"github.com/angelmondragon/orderflow/pkg/outbox"
)

func newService(t *testing.T, client *db.Client, gateway Gateway) Service {
	t.Helper()
	ledgerSvc, err := ledger.NewService(ledger.NewRepository(client.DB()))
	require.NoError(t, err)
	svc, err := NewService(ServiceParams{
		Repo:    NewRepository(client.DB()),
		DB:      client.DB(),
		Gateway: gateway,
		Ledger:  ledgerSvc,
		Outbox:  outbox.NewService(nil, nil),
	})
	require.NoError(t, err)
	return svc
}

func inTx(t *testing.T, client *db.Client, fn func(tx *gorm.DB) error) error {
	t.Helper()
	return client.WithTx(context.Background(), fn)
}

func TestCreateRoundsAndRecords(t *testing.T) {
	client := testdb.Open(t)
	fx := testdb.NewFixture(t, client)
	order := fx.Order(testdb.Line{Variant: fx.Variant("SHIRT", "10.00", true), Quantity: 1})
	payment := fx.Payment(order, "10.00")
	svc := newService(t, client, nil)

	var refund *models.Refund
	err := inTx(t, client, func(tx *gorm.DB) error {
		var err error
		refund, err = svc.Create(context.Background(), tx, CreateRefundInput{PaymentID: payment.ID, Amount: testdb.D("4.004")})
		return err
	})
	require.NoError(t, err)
	assert.True(t, refund.Amount.Equal(testdb.D("4.00")))
	assert.NotEmpty(t, refund.TransactionID)

	var reason models.RefundReason
	require.NoError(t, fx.DB.First(&reason, "id = ?", refund.RefundReasonID).Error)
	assert.Equal(t, DefaultReasonName, reason.Name)
	assert.False(t, reason.Mutable)

	var ledgerRows []models.LedgerEvent
	require.NoError(t, fx.DB.Where("reference_id = ?", refund.ID).Find(&ledgerRows).Error)
	require.Len(t, ledgerRows, 1)
	assert.Equal(t, enums.LedgerEventRefundIssued, ledgerRows[0].Type)

	events, err := outbox.NewRepository().ListForAggregate(fx.DB, refund.ID)
	require.NoError(t, err)
	assert.Len(t, events, 1)

	remaining, err := svc.RemainingCapacity(context.Background(), nil, payment)
	require.NoError(t, err)
	assert.True(t, remaining.Equal(testdb.D("6.00")))
}

func TestCreateRejectsOverRefund(t *testing.T) {
	client := testdb.Open(t)
	fx := testdb.NewFixture(t, client)
	order := fx.Order(testdb.Line{Variant: fx.Variant("SHIRT", "10.00", true), Quantity: 1})
	payment := fx.Payment(order, "10.00")
	fx.Refund(payment, fx.RefundReason("damaged"), "8.00")
	svc := newService(t, client, nil)

	err := inTx(t, client, func(tx *gorm.DB) error {
		_, err := svc.Create(context.Background(), tx, CreateRefundInput{PaymentID: payment.ID, Amount: testdb.D("2.01")})
		return err
	})
	assert.True(t, pkgerrors.HasValidationKey(err, KeyAmountExceedsCaptured))

	err = inTx(t, client, func(tx *gorm.DB) error {
		_, err := svc.Create(context.Background(), tx, CreateRefundInput{PaymentID: payment.ID, Amount: testdb.D("2.00")})
		return err
	})
	assert.NoError(t, err, "refunding exactly the remaining amount is allowed")
}

func TestCreateValidation(t *testing.T) {
	client := testdb.Open(t)
	fx := testdb.NewFixture(t, client)
	order := fx.Order(testdb.Line{Variant: fx.Variant("SHIRT", "10.00", true), Quantity: 1})
	payment := fx.Payment(order, "10.00")
	pending := fx.Payment(order, "5.00")
	require.NoError(t, fx.DB.Model(pending).Update("state", enums.PaymentPending).Error)
	svc := newService(t, client, nil)
	ctx := context.Background()

	_, err := svc.Create(ctx, nil, CreateRefundInput{Amount: testdb.D("1.00")})
	assert.True(t, pkgerrors.HasValidationKey(err, "required"))

	_, err = svc.Create(ctx, nil, CreateRefundInput{PaymentID: payment.ID, Amount: testdb.D("0.004")})
	assert.True(t, pkgerrors.HasValidationKey(err, KeyAmountNotPositive))

	_, err = svc.Create(ctx, nil, CreateRefundInput{PaymentID: pending.ID, Amount: testdb.D("1.00")})
	assert.True(t, pkgerrors.HasValidationKey(err, KeyPaymentNotCompleted))
}

func TestCreatePropagatesGatewayError(t *testing.T) {
	client := testdb.Open(t)
	fx := testdb.NewFixture(t, client)
	order := fx.Order(testdb.Line{Variant: fx.Variant("SHIRT", "10.00", true), Quantity: 1})
	payment := fx.Payment(order, "10.00")
	declined := errors.New("declined")
	svc := newService(t, client, GatewayFunc(func(context.Context, *models.Payment, decimal.Decimal) (string, error) {
		return "", declined
	}))

	err := inTx(t, client, func(tx *gorm.DB) error {
		_, err := svc.Create(context.Background(), tx, CreateRefundInput{PaymentID: payment.ID, Amount: testdb.D("1.00")})
		return err
	})
	assert.Same(t, declined, err)

	total, err := svc.TotalForOrder(context.Background(), nil, order.ID)
	require.NoError(t, err)
	assert.True(t, total.IsZero())
}

func TestPlanPrefersSinglePayment(t *testing.T) {
	client := testdb.Open(t)
	fx := testdb.NewFixture(t, client)
	order := fx.Order(testdb.Line{Variant: fx.Variant("SHIRT", "25.00", true), Quantity: 1})
	small := fx.Payment(order, "5.00")
	large := fx.Payment(order, "20.00")
	svc := newService(t, client, nil)

	plan, left, err := svc.Plan(context.Background(), nil, order.ID, testdb.D("10.00"))
	require.NoError(t, err)
	require.Len(t, plan, 1)
	assert.Equal(t, large.ID, plan[0].Payment.ID)
	assert.True(t, left.IsZero())

	plan, left, err = svc.Plan(context.Background(), nil, order.ID, testdb.D("27.00"))
	require.NoError(t, err)
	require.Len(t, plan, 2)
	assert.ElementsMatch(t, []string{small.ID.String(), large.ID.String()}, []string{plan[0].Payment.ID.String(), plan[1].Payment.ID.String()})
	assert.True(t, left.Equal(testdb.D("2.00")))
}

func TestDistributeIssuesRefundsAndTotals(t *testing.T) {
	client := testdb.Open(t)
	fx := testdb.NewFixture(t, client)
	order := fx.Order(testdb.Line{Variant: fx.Variant("SHIRT", "8.00", true), Quantity: 1})
	fx.Payment(order, "5.00")
	fx.Payment(order, "3.00")
	reimbursement := &models.Reimbursement{Number: "RI000000001", OrderID: order.ID}
	require.NoError(t, fx.DB.Create(reimbursement).Error)
	svc := newService(t, client, nil)

	var issued []*models.Refund
	var left decimal.Decimal
	err := inTx(t, client, func(tx *gorm.DB) error {
		var err error
		issued, left, err = svc.Distribute(context.Background(), tx, DistributeInput{OrderID: order.ID, Amount: testdb.D("9.00"), ReimbursementID: &reimbursement.ID})
		return err
	})
	require.NoError(t, err)
	assert.Len(t, issued, 2)
	assert.True(t, left.Equal(testdb.D("1.00")))

	byReimbursement, err := svc.TotalForReimbursement(context.Background(), nil, reimbursement.ID)
	require.NoError(t, err)
	assert.True(t, byReimbursement.Equal(testdb.D("8.00")))

	byOrder, err := svc.TotalForOrder(context.Background(), nil, order.ID)
	require.NoError(t, err)
	assert.True(t, byOrder.Equal(testdb.D("8.00")))
}
