package stock

import (
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/orderflow/pkg/db/models"
	"github.com/angelmondragon/orderflow/pkg/enums"
)

// ContentItem is one unit placed in a package, either on hand or backordered.
type ContentItem struct {
	Unit  *models.InventoryUnit
	State enums.InventoryUnitState
}

// Rate is a priced shipping option for a package.
type Rate struct {
	ShippingMethod *models.ShippingMethod
	Cost           decimal.Decimal
	Selected       bool
}

// Package is a transient grouping of units leaving one stock location. It
// becomes a Shipment once the allocation run commits.
type Package struct {
	StockLocation *models.StockLocation
	Contents      []ContentItem
	Rates         []Rate
}

func NewPackage(location *models.StockLocation) *Package {
	return &Package{StockLocation: location}
}

func (p *Package) Add(unit *models.InventoryUnit, state enums.InventoryUnitState) {
	p.Contents = append(p.Contents, ContentItem{Unit: unit, State: state})
}

// Quantity counts contents, optionally restricted to one state.
func (p *Package) Quantity(states ...enums.InventoryUnitState) int {
	if len(states) == 0 {
		return len(p.Contents)
	}
	n := 0
	for _, item := range p.Contents {
		for _, s := range states {
			if item.State == s {
				n++
				break
			}
		}
	}
	return n
}

func (p *Package) OnHand() []ContentItem {
	return p.filter(enums.InventoryUnitOnHand)
}

func (p *Package) Backordered() []ContentItem {
	return p.filter(enums.InventoryUnitBackordered)
}

func (p *Package) filter(state enums.InventoryUnitState) []ContentItem {
	var out []ContentItem
	for _, item := range p.Contents {
		if item.State == state {
			out = append(out, item)
		}
	}
	return out
}

func (p *Package) Empty() bool {
	return len(p.Contents) == 0
}

// Find returns the index of unitID in the given state, or -1.
func (p *Package) Find(unitID uuid.UUID, state enums.InventoryUnitState) int {
	for i, item := range p.Contents {
		if item.Unit.ID == unitID && item.State == state {
			return i
		}
	}
	return -1
}

func (p *Package) Remove(unitID uuid.UUID) {
	kept := p.Contents[:0]
	for _, item := range p.Contents {
		if item.Unit.ID != unitID {
			kept = append(kept, item)
		}
	}
	p.Contents = kept
}

// ItemTotal sums the paid price of every unit in the package.
func (p *Package) ItemTotal() decimal.Decimal {
	total := decimal.Zero
	for _, item := range p.Contents {
		switch {
		case item.Unit.LineItem != nil:
			total = total.Add(item.Unit.LineItem.Price)
		case item.Unit.Variant != nil:
			total = total.Add(item.Unit.Variant.Price)
		}
	}
	return total
}

// SelectedRate returns the rate marked selected, if any.
func (p *Package) SelectedRate() *Rate {
	for i := range p.Rates {
		if p.Rates[i].Selected {
			return &p.Rates[i]
		}
	}
	return nil
}

// ToShipment converts the package into an unsaved shipment for order. Units
// carry the state they were packed with.
func (p *Package) ToShipment(order *models.Order) *models.Shipment {
	shipment := &models.Shipment{
		OrderID:         order.ID,
		StockLocationID: p.StockLocation.ID,
		Address:         order.ShipAddress,
		State:           enums.ShipmentPending,
		Cost:            decimal.Zero,
	}
	if p.Quantity(enums.InventoryUnitBackordered) == len(p.Contents) && len(p.Contents) > 0 {
		shipment.State = enums.ShipmentBackorder
	}
	for _, item := range p.Contents {
		unit := *item.Unit
		unit.State = item.State
		shipment.InventoryUnits = append(shipment.InventoryUnits, unit)
	}
	for _, rate := range p.Rates {
		sr := models.ShippingRate{
			ShippingMethodID: rate.ShippingMethod.ID,
			ShippingMethod:   rate.ShippingMethod,
			Cost:             rate.Cost,
			Selected:         rate.Selected,
		}
		shipment.ShippingRates = append(shipment.ShippingRates, sr)
		if rate.Selected {
			shipment.Cost = rate.Cost
		}
	}
	return shipment
}
