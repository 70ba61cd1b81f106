package reimbursements

import (
	"context"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/angelmondragon/orderflow/internal/refunds"
	"github.com/angelmondragon/orderflow/pkg/db"
	"github.com/angelmondragon/orderflow/pkg/db/models"
	"github.com/angelmondragon/orderflow/pkg/enums"
	pkgerrors "github.com/angelmondragon/orderflow/pkg/errors"
)

// Performer pays a reimbursement out. Perform has side effects inside tx;
// Simulate only reports what Perform would do.
type Performer interface {
	Perform(ctx context.Context, tx *gorm.DB, r *models.Reimbursement) error
	Simulate(ctx context.Context, tx *gorm.DB, r *models.Reimbursement) ([]Payout, error)
}

type PayoutKind string

const (
	PayoutRefund   PayoutKind = "refund"
	PayoutExchange PayoutKind = "exchange"
)

// Payout is one planned movement: a refund against a payment or a
// replacement unit for a return item.
type Payout struct {
	Kind         PayoutKind      `json:"kind"`
	PaymentID    *uuid.UUID      `json:"payment_id,omitempty"`
	ReturnItemID *uuid.UUID      `json:"return_item_id,omitempty"`
	VariantID    *uuid.UUID      `json:"variant_id,omitempty"`
	Amount       decimal.Decimal `json:"amount"`
}

// ExchangePacker packs new units into shipments inside the caller's
// transaction.
type ExchangePacker interface {
	PackUnits(ctx context.Context, tx *gorm.DB, order *models.Order, units []*models.InventoryUnit) ([]*models.Shipment, error)
}

// DefaultPerformer ships replacement units for exchange items and refunds
// whatever is still unpaid against the order's completed payments.
type DefaultPerformer struct {
	repo    Repository
	refunds refunds.Service
	packer  ExchangePacker
	sources []PaidSource
}

func NewDefaultPerformer(repo Repository, refundSvc refunds.Service, packer ExchangePacker, sources []PaidSource) *DefaultPerformer {
	return &DefaultPerformer{repo: repo, refunds: refundSvc, packer: packer, sources: sources}
}

func (p *DefaultPerformer) Perform(ctx context.Context, tx *gorm.DB, r *models.Reimbursement) error {
	if err := p.exchange(ctx, tx, r); err != nil {
		return err
	}
	paid, err := paidTotal(ctx, tx, p.sources, r)
	if err != nil {
		return err
	}
	due := r.Total.Sub(paid)
	if !due.IsPositive() {
		return nil
	}
	_, _, err = p.refunds.Distribute(ctx, tx, refunds.DistributeInput{
		OrderID:         r.OrderID,
		Amount:          due,
		ReimbursementID: &r.ID,
	})
	return err
}

func (p *DefaultPerformer) Simulate(ctx context.Context, tx *gorm.DB, r *models.Reimbursement) ([]Payout, error) {
	var payouts []Payout
	pending := decimal.Zero
	for _, item := range pendingExchanges(r) {
		itemID := item.ID
		payouts = append(payouts, Payout{
			Kind:         PayoutExchange,
			ReturnItemID: &itemID,
			VariantID:    item.ExchangeVariantID,
			Amount:       item.Total(),
		})
		pending = pending.Add(item.Total())
	}

	paid, err := paidTotal(ctx, tx, p.sources, r)
	if err != nil {
		return nil, err
	}
	due := r.Total.Sub(paid).Sub(pending.RoundDown(2))
	if !due.IsPositive() {
		return payouts, nil
	}
	plan, _, err := p.refunds.Plan(ctx, tx, r.OrderID, due)
	if err != nil {
		return nil, err
	}
	for _, alloc := range plan {
		paymentID := alloc.Payment.ID
		payouts = append(payouts, Payout{Kind: PayoutRefund, PaymentID: &paymentID, Amount: alloc.Amount})
	}
	return payouts, nil
}

// exchange creates a replacement unit for every exchange item without one and
// packs the new units into shipments.
func (p *DefaultPerformer) exchange(ctx context.Context, tx *gorm.DB, r *models.Reimbursement) error {
	pending := pendingExchanges(r)
	if len(pending) == 0 || p.packer == nil {
		return nil
	}
	repo := p.repo.WithTx(tx)
	order, err := repo.FindOrder(ctx, r.OrderID)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load order for exchange")
	}

	units := make([]*models.InventoryUnit, 0, len(pending))
	for _, item := range pending {
		variant, err := repo.FindVariant(ctx, *item.ExchangeVariantID)
		if err != nil {
			if db.IsNotFound(err) {
				return pkgerrors.New(pkgerrors.CodeNotFound, "exchange variant not found")
			}
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load exchange variant")
		}
		itemID := item.ID
		unit := &models.InventoryUnit{
			OrderID:              r.OrderID,
			VariantID:            variant.ID,
			Variant:              variant,
			LineItemID:           item.InventoryUnit.LineItemID,
			State:                enums.InventoryUnitOnHand,
			OriginalReturnItemID: &itemID,
		}
		if err := repo.CreateUnit(ctx, unit); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "create exchange unit")
		}
		if err := repo.SetExchangeUnit(ctx, item.ID, unit.ID); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "link exchange unit")
		}
		item.ExchangeInventoryUnitID = &unit.ID
		units = append(units, unit)
	}

	_, err = p.packer.PackUnits(ctx, tx, order, units)
	return err
}

func pendingExchanges(r *models.Reimbursement) []*models.ReturnItem {
	var out []*models.ReturnItem
	for i := range r.ReturnItems {
		item := &r.ReturnItems[i]
		if item.ExchangeRequested() && item.ExchangeInventoryUnitID == nil && item.InventoryUnit != nil {
			out = append(out, item)
		}
	}
	return out
}
