package refunds

import (
	"context"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/angelmondragon/orderflow/pkg/db/models"
	"github.com/angelmondragon/orderflow/pkg/enums"
)

// Repository persists refunds and reads the payments they draw on.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, refund *models.Refund) error
	FindPayment(ctx context.Context, paymentID uuid.UUID) (*models.Payment, error)
	CompletedPayments(ctx context.Context, orderID uuid.UUID) ([]models.Payment, error)
	AmountsForPayment(ctx context.Context, paymentID uuid.UUID) ([]decimal.Decimal, error)
	AmountsForReimbursement(ctx context.Context, reimbursementID uuid.UUID) ([]decimal.Decimal, error)
	AmountsForOrder(ctx context.Context, orderID uuid.UUID) ([]decimal.Decimal, error)
	FindOrCreateReason(ctx context.Context, name string) (*models.RefundReason, error)
}

type repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) Create(ctx context.Context, refund *models.Refund) error {
	return r.db.WithContext(ctx).Omit(clause.Associations).Create(refund).Error
}

func (r *repository) FindPayment(ctx context.Context, paymentID uuid.UUID) (*models.Payment, error) {
	var payment models.Payment
	if err := r.db.WithContext(ctx).Where("id = ?", paymentID).First(&payment).Error; err != nil {
		return nil, err
	}
	return &payment, nil
}

func (r *repository) CompletedPayments(ctx context.Context, orderID uuid.UUID) ([]models.Payment, error) {
	var payments []models.Payment
	err := r.db.WithContext(ctx).
		Where("order_id = ? AND state = ?", orderID, enums.PaymentCompleted).
		Order("created_at ASC, id ASC").
		Find(&payments).Error
	return payments, err
}

// Amounts are summed in Go so that decimal precision does not depend on the
// driver's aggregate types.
func (r *repository) AmountsForPayment(ctx context.Context, paymentID uuid.UUID) ([]decimal.Decimal, error) {
	var amounts []decimal.Decimal
	err := r.db.WithContext(ctx).Model(&models.Refund{}).Where("payment_id = ?", paymentID).Pluck("amount", &amounts).Error
	return amounts, err
}

func (r *repository) AmountsForReimbursement(ctx context.Context, reimbursementID uuid.UUID) ([]decimal.Decimal, error) {
	var amounts []decimal.Decimal
	err := r.db.WithContext(ctx).Model(&models.Refund{}).Where("reimbursement_id = ?", reimbursementID).Pluck("amount", &amounts).Error
	return amounts, err
}

func (r *repository) AmountsForOrder(ctx context.Context, orderID uuid.UUID) ([]decimal.Decimal, error) {
	var amounts []decimal.Decimal
	err := r.db.WithContext(ctx).
		Model(&models.Refund{}).
		Joins("JOIN payments ON payments.id = refunds.payment_id").
		Where("payments.order_id = ?", orderID).
		Pluck("refunds.amount", &amounts).Error
	return amounts, err
}

// FindOrCreateReason returns the named reason, creating it immutable and active
// when missing.
func (r *repository) FindOrCreateReason(ctx context.Context, name string) (*models.RefundReason, error) {
	var reason models.RefundReason
	err := r.db.WithContext(ctx).
		Where(models.RefundReason{Name: name}).
		Attrs(models.RefundReason{Active: true, Mutable: false}).
		FirstOrCreate(&reason).Error
	if err != nil {
		return nil, err
	}
	return &reason, nil
}

func sum(amounts []decimal.Decimal) decimal.Decimal {
	total := decimal.Zero
	for _, a := range amounts {
		total = total.Add(a)
	}
	return total
}
