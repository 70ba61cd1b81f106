package returns

import (
	"context"
	"fmt"
	"time"

	"github.com/angelmondragon/orderflow/pkg/db/models"
)

const DefaultReturnWindow = 365 * 24 * time.Hour

// Decision is the outcome of evaluating one return item. Errors maps a rule
// key to a readable message and is persisted onto the item.
type Decision struct {
	Eligible     bool
	ManualReview bool
	Errors       map[string]string
}

// EligibilityValidator decides whether a return item may be accepted. The
// item is expected to carry its inventory unit and line item.
type EligibilityValidator interface {
	Evaluate(ctx context.Context, item *models.ReturnItem, order *models.Order) Decision
}

// Rule is one eligibility check. It reports ok=false with a message when the
// item fails it.
type Rule struct {
	Key          string
	ManualReview bool
	Check        func(item *models.ReturnItem, order *models.Order, now time.Time) (ok bool, message string)
}

// RuleValidator evaluates a fixed list of rules. An item failing any rule is
// not eligible; it is routed to manual review when every failed rule is a
// manual review rule.
type RuleValidator struct {
	Rules []Rule
	Now   func() time.Time
}

// NewDefaultValidator checks that the unit shipped, that the item came through
// a return authorization and that the order completed within window. Items
// claiming more than the unit's paid price are held for manual review.
func NewDefaultValidator(window time.Duration) *RuleValidator {
	if window <= 0 {
		window = DefaultReturnWindow
	}
	return &RuleValidator{
		Rules: []Rule{
			{Key: "inventory_unit_shipped", Check: unitShipped},
			{Key: "return_authorization_required", Check: authorizationPresent},
			{Key: "time_since_purchase", Check: withinWindow(window)},
			{Key: "pre_tax_amount_exceeds_price", ManualReview: true, Check: withinPaidPrice},
		},
		Now: time.Now,
	}
}

func (v *RuleValidator) Evaluate(_ context.Context, item *models.ReturnItem, order *models.Order) Decision {
	now := time.Now()
	if v.Now != nil {
		now = v.Now()
	}
	errs := make(map[string]string)
	hardFailure := false
	for _, rule := range v.Rules {
		ok, message := rule.Check(item, order, now)
		if ok {
			continue
		}
		errs[rule.Key] = message
		if !rule.ManualReview {
			hardFailure = true
		}
	}
	if len(errs) == 0 {
		return Decision{Eligible: true, Errors: map[string]string{}}
	}
	return Decision{ManualReview: !hardFailure, Errors: errs}
}

func unitShipped(item *models.ReturnItem, _ *models.Order, _ time.Time) (bool, string) {
	if item.InventoryUnit == nil {
		return false, "inventory unit missing"
	}
	if !item.InventoryUnit.State.IsShippedOrLater() {
		return false, fmt.Sprintf("inventory unit is %s and has not shipped", item.InventoryUnit.State)
	}
	return true, ""
}

func authorizationPresent(item *models.ReturnItem, _ *models.Order, _ time.Time) (bool, string) {
	if item.ReturnAuthorizationID == nil {
		return false, "return item requires a return authorization"
	}
	return true, ""
}

func withinWindow(window time.Duration) func(*models.ReturnItem, *models.Order, time.Time) (bool, string) {
	return func(_ *models.ReturnItem, order *models.Order, now time.Time) (bool, string) {
		if order == nil || order.CompletedAt == nil {
			return false, "order has not been completed"
		}
		if now.Sub(*order.CompletedAt) > window {
			return false, fmt.Sprintf("return window of %s has passed", window)
		}
		return true, ""
	}
}

func withinPaidPrice(item *models.ReturnItem, _ *models.Order, _ time.Time) (bool, string) {
	if item.InventoryUnit == nil || item.InventoryUnit.LineItem == nil {
		return true, ""
	}
	price := item.InventoryUnit.LineItem.Price
	if item.PreTaxAmount.GreaterThan(price) {
		return false, fmt.Sprintf("pre-tax amount %s exceeds paid price %s", item.PreTaxAmount.StringFixed(2), price.StringFixed(2))
	}
	return true, ""
}
