package stock

import (
	"context"

	"github.com/google/uuid"

	"github.com/angelmondragon/orderflow/pkg/db/models"
	"github.com/angelmondragon/orderflow/pkg/enums"
)

// Packer partitions the units one stock location can supply into on-hand and
// backordered contents, then runs the splitter chain over the result.
type Packer struct {
	location       *models.StockLocation
	items          map[uuid.UUID]models.StockItem
	units          []*models.InventoryUnit
	splitters      []Splitter
	trackInventory bool
}

func NewPacker(location *models.StockLocation, items []models.StockItem, units []*models.InventoryUnit, splitters []Splitter, trackInventory bool) *Packer {
	byVariant := make(map[uuid.UUID]models.StockItem, len(items))
	for _, item := range items {
		byVariant[item.VariantID] = item
	}
	return &Packer{
		location:       location,
		items:          byVariant,
		units:          units,
		splitters:      splitters,
		trackInventory: trackInventory,
	}
}

// Packages returns the split packages, never including an empty one.
func (p *Packer) Packages(ctx context.Context) ([]*Package, error) {
	pkg := p.DefaultPackage()
	if pkg.Empty() {
		return nil, nil
	}
	packages := []*Package{pkg}
	for _, splitter := range p.splitters {
		var err error
		packages, err = splitter.Split(ctx, packages)
		if err != nil {
			return nil, err
		}
	}
	return packages, nil
}

// DefaultPackage fills, per variant, the first count_on_hand units from stock
// and backorders the rest when the stock item allows it. Units the location
// cannot supply are left out.
func (p *Packer) DefaultPackage() *Package {
	pkg := NewPackage(p.location)

	var order []uuid.UUID
	grouped := make(map[uuid.UUID][]*models.InventoryUnit)
	for _, unit := range p.units {
		if _, seen := grouped[unit.VariantID]; !seen {
			order = append(order, unit.VariantID)
		}
		grouped[unit.VariantID] = append(grouped[unit.VariantID], unit)
	}

	for _, variantID := range order {
		units := grouped[variantID]
		item, ok := p.items[variantID]
		if !ok {
			continue
		}
		onHand, backordered := p.fillStatus(item, units[0].Variant, len(units))
		for i, unit := range units {
			switch {
			case i < onHand:
				pkg.Add(unit, enums.InventoryUnitOnHand)
			case i < onHand+backordered:
				pkg.Add(unit, enums.InventoryUnitBackordered)
			}
		}
	}
	return pkg
}

func (p *Packer) fillStatus(item models.StockItem, variant *models.Variant, quantity int) (onHand, backordered int) {
	if !p.trackInventory || (variant != nil && !variant.TrackInventory) {
		return quantity, 0
	}
	onHand = item.CountOnHand
	if onHand < 0 {
		onHand = 0
	}
	if onHand >= quantity {
		return quantity, 0
	}
	if item.Backorderable {
		backordered = quantity - onHand
	}
	return onHand, backordered
}
