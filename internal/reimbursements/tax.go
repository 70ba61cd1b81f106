package reimbursements

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/angelmondragon/orderflow/pkg/db/models"
	pkgerrors "github.com/angelmondragon/orderflow/pkg/errors"
)

// TaxCalculator sets AdditionalTaxTotal and IncludedTaxTotal on each item in
// place. Calling it twice on unchanged items yields the same amounts.
type TaxCalculator interface {
	Apply(ctx context.Context, items []*models.ReturnItem) error
}

type TaxCalculatorFunc func(ctx context.Context, items []*models.ReturnItem) error

func (f TaxCalculatorFunc) Apply(ctx context.Context, items []*models.ReturnItem) error {
	return f(ctx, items)
}

// ProportionalTaxCalculator gives each item the share of its line item's tax
// totals that its pre-tax amount represents, rounded to cents.
type ProportionalTaxCalculator struct{}

func (ProportionalTaxCalculator) Apply(_ context.Context, items []*models.ReturnItem) error {
	for _, item := range items {
		if item.InventoryUnit == nil || item.InventoryUnit.LineItem == nil {
			return pkgerrors.New(pkgerrors.CodeInternal, fmt.Sprintf("return item %s has no line item loaded", item.ID))
		}
		li := item.InventoryUnit.LineItem
		base := li.PreTaxAmount()
		if base.IsZero() {
			item.AdditionalTaxTotal = decimal.Zero
			item.IncludedTaxTotal = decimal.Zero
			continue
		}
		share := item.PreTaxAmount.Div(base)
		item.AdditionalTaxTotal = li.AdditionalTaxTotal.Mul(share).Round(2)
		item.IncludedTaxTotal = li.IncludedTaxTotal.Mul(share).Round(2)
	}
	return nil
}
