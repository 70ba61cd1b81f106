package stock

import (
	"context"
	"sort"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/angelmondragon/orderflow/internal/shipping"
	"github.com/angelmondragon/orderflow/pkg/db/models"
)

// ShippingMethodSource lists the configured shipping methods.
type ShippingMethodSource interface {
	ShippingMethods(ctx context.Context) ([]models.ShippingMethod, error)
}

// RateCalculator prices one method for one package.
type RateCalculator interface {
	Compute(ctx context.Context, method *models.ShippingMethod, req shipping.Request) (decimal.Decimal, error)
}

// Estimator ranks the shipping methods available to a package. It never
// changes the package contents.
type Estimator struct {
	methods    ShippingMethodSource
	calculator RateCalculator
}

func NewEstimator(methods ShippingMethodSource, calculator RateCalculator) *Estimator {
	return &Estimator{methods: methods, calculator: calculator}
}

// WithSource rebinds the estimator to another method source, typically one
// scoped to a transaction.
func (e *Estimator) WithSource(methods ShippingMethodSource) *Estimator {
	return &Estimator{methods: methods, calculator: e.calculator}
}

// Rates returns the available rates cheapest first with the cheapest selected.
// An empty slice means no method serves the package's location and country.
func (e *Estimator) Rates(ctx context.Context, order *models.Order, pkg *Package) ([]Rate, error) {
	methods, err := e.methods.ShippingMethods(ctx)
	if err != nil {
		return nil, err
	}

	country := order.ShipAddress.CountryCode()
	req := shipping.Request{
		OrderID:         order.ID,
		StockLocationID: pkg.StockLocation.ID,
		Country:         country,
		Currency:        order.Currency,
		UnitCount:       len(pkg.Contents),
		ItemTotal:       pkg.ItemTotal(),
	}

	var rates []Rate
	for i := range methods {
		method := &methods[i]
		if !available(method, pkg.StockLocation, country) {
			continue
		}
		cost, err := e.calculator.Compute(ctx, method, req)
		if err != nil {
			return nil, err
		}
		rates = append(rates, Rate{ShippingMethod: method, Cost: cost})
	}

	sort.SliceStable(rates, func(i, j int) bool {
		return rates[i].Cost.LessThan(rates[j].Cost)
	})
	if len(rates) > 0 {
		rates[0].Selected = true
	}
	return rates, nil
}

func available(method *models.ShippingMethod, location *models.StockLocation, country string) bool {
	if !method.StockLocationIDs.Allows(location.ID) {
		return false
	}
	if len(method.Countries) == 0 {
		return true
	}
	for _, c := range method.Countries {
		if strings.EqualFold(c, country) {
			return true
		}
	}
	return false
}
