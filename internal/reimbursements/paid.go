package reimbursements

import (
	"context"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/angelmondragon/orderflow/internal/refunds"
	"github.com/angelmondragon/orderflow/pkg/db/models"
)

// PaidSource reports how much of a reimbursement one payout channel has
// already covered.
type PaidSource interface {
	Paid(ctx context.Context, tx *gorm.DB, r *models.Reimbursement) (decimal.Decimal, error)
}

// RefundsPaid counts refunds issued for the reimbursement.
type RefundsPaid struct {
	Refunds refunds.Service
}

func (p RefundsPaid) Paid(ctx context.Context, tx *gorm.DB, r *models.Reimbursement) (decimal.Decimal, error) {
	return p.Refunds.TotalForReimbursement(ctx, tx, r.ID)
}

// ExchangesPaid counts items already settled with a replacement unit.
type ExchangesPaid struct{}

func (ExchangesPaid) Paid(_ context.Context, _ *gorm.DB, r *models.Reimbursement) (decimal.Decimal, error) {
	total := decimal.Zero
	for _, item := range r.ReturnItems {
		if item.ExchangeInventoryUnitID != nil {
			total = total.Add(item.Total())
		}
	}
	return total.RoundDown(2), nil
}

func paidTotal(ctx context.Context, tx *gorm.DB, sources []PaidSource, r *models.Reimbursement) (decimal.Decimal, error) {
	paid := decimal.Zero
	for _, source := range sources {
		amount, err := source.Paid(ctx, tx, r)
		if err != nil {
			return decimal.Zero, err
		}
		paid = paid.Add(amount)
	}
	return paid, nil
}
