// Package shipping prices packages for the shipping methods configured in the
// store. Carrier-specific logic stays behind the remote calculator.
package shipping

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/orderflow/pkg/db/models"
	"github.com/angelmondragon/orderflow/pkg/enums"
	pkgerrors "github.com/angelmondragon/orderflow/pkg/errors"
)

// Request is the package summary a calculator prices.
type Request struct {
	OrderID         uuid.UUID
	StockLocationID uuid.UUID
	Country         string
	Currency        enums.Currency
	UnitCount       int
	ItemTotal       decimal.Decimal
}

type Calculator interface {
	Compute(ctx context.Context, method *models.ShippingMethod, req Request) (decimal.Decimal, error)
}

type CalculatorFunc func(ctx context.Context, method *models.ShippingMethod, req Request) (decimal.Decimal, error)

func (f CalculatorFunc) Compute(ctx context.Context, method *models.ShippingMethod, req Request) (decimal.Decimal, error) {
	return f(ctx, method, req)
}

// FlatRate charges the method's amount once per package.
var FlatRate = CalculatorFunc(func(_ context.Context, method *models.ShippingMethod, _ Request) (decimal.Decimal, error) {
	return method.CalculatorAmount, nil
})

// PerItem charges the method's amount for every unit in the package.
var PerItem = CalculatorFunc(func(_ context.Context, method *models.ShippingMethod, req Request) (decimal.Decimal, error) {
	return method.CalculatorAmount.Mul(decimal.NewFromInt(int64(req.UnitCount))), nil
})

// Registry resolves the calculator for a method's kind.
type Registry struct {
	calculators map[enums.CalculatorKind]Calculator
}

// NewRegistry registers the local calculators plus remote, when supplied.
func NewRegistry(remote Calculator) *Registry {
	r := &Registry{calculators: map[enums.CalculatorKind]Calculator{
		enums.CalculatorFlatRate: FlatRate,
		enums.CalculatorPerItem:  PerItem,
	}}
	if remote != nil {
		r.calculators[enums.CalculatorRemote] = remote
	}
	return r
}

func (r *Registry) Register(kind enums.CalculatorKind, calc Calculator) {
	r.calculators[kind] = calc
}

func (r *Registry) For(kind enums.CalculatorKind) (Calculator, error) {
	calc, ok := r.calculators[kind]
	if !ok {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("no calculator registered for %q", kind))
	}
	return calc, nil
}

// Compute prices req with the calculator matching method's kind.
func (r *Registry) Compute(ctx context.Context, method *models.ShippingMethod, req Request) (decimal.Decimal, error) {
	calc, err := r.For(method.CalculatorKind)
	if err != nil {
		return decimal.Zero, err
	}
	return calc.Compute(ctx, method, req)
}
