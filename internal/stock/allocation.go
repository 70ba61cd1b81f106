package stock

import (
	"sort"

	"github.com/google/uuid"

	"github.com/angelmondragon/orderflow/pkg/db/models"
)

// stockLevel is what one location can still promise of one variant.
type stockLevel struct {
	onHand        int
	backorderable bool
}

// allocator hands each unit to exactly one location. Stock on hand anywhere is
// used up before any location backorders.
type allocator struct {
	trackInventory bool
	levels         map[uuid.UUID]map[uuid.UUID]*stockLevel
	assigned       map[uuid.UUID][]*models.InventoryUnit
}

func newAllocator(locations []LocationStock, trackInventory bool) *allocator {
	a := &allocator{
		trackInventory: trackInventory,
		levels:         make(map[uuid.UUID]map[uuid.UUID]*stockLevel, len(locations)),
		assigned:       make(map[uuid.UUID][]*models.InventoryUnit, len(locations)),
	}
	for _, ls := range locations {
		byVariant := make(map[uuid.UUID]*stockLevel, len(ls.Items))
		for _, item := range ls.Items {
			byVariant[item.VariantID] = &stockLevel{onHand: max(item.CountOnHand, 0), backorderable: item.Backorderable}
		}
		a.levels[ls.Location.ID] = byVariant
	}
	return a
}

func (a *allocator) tracked(unit *models.InventoryUnit) bool {
	return a.trackInventory && (unit.Variant == nil || unit.Variant.TrackInventory)
}

func (a *allocator) takeOnHand(locationID uuid.UUID, unit *models.InventoryUnit) bool {
	level := a.levels[locationID][unit.VariantID]
	if level == nil {
		return false
	}
	if a.tracked(unit) {
		if level.onHand == 0 {
			return false
		}
		level.onHand--
	}
	a.assigned[locationID] = append(a.assigned[locationID], unit)
	return true
}

func (a *allocator) backorder(locationID uuid.UUID, unit *models.InventoryUnit) bool {
	level := a.levels[locationID][unit.VariantID]
	if level == nil || !level.backorderable {
		return false
	}
	a.assigned[locationID] = append(a.assigned[locationID], unit)
	return true
}

// coverage counts how many of units the location could still ship on hand.
func (a *allocator) coverage(locationID uuid.UUID, units []*models.InventoryUnit) int {
	spare := make(map[uuid.UUID]int)
	covered := 0
	for _, unit := range units {
		level := a.levels[locationID][unit.VariantID]
		if level == nil {
			continue
		}
		if !a.tracked(unit) {
			covered++
			continue
		}
		left, seen := spare[unit.VariantID]
		if !seen {
			left = level.onHand
		}
		if left > 0 {
			covered++
			left--
		}
		spare[unit.VariantID] = left
	}
	return covered
}

// allocate assigns units to locations. Units pinned by a preference only ever
// go to that location. Free units fill stock on hand at the locations able to
// cover most of them first; what is left is backordered at the first location
// that allows it. Units no location can supply are left out.
func allocate(locations []LocationStock, prefs []models.LineItemStockLocation, units []*models.InventoryUnit, trackInventory bool) map[uuid.UUID][]*models.InventoryUnit {
	a := newAllocator(locations, trackInventory)
	pins := pinnedLocations(a, prefs, units)

	type pinnedUnit struct {
		unit       *models.InventoryUnit
		locationID uuid.UUID
	}
	var free []*models.InventoryUnit
	var pinnedShort []pinnedUnit
	for _, unit := range units {
		locationID, pinned := pins[unit.ID]
		if !pinned {
			free = append(free, unit)
			continue
		}
		if !a.takeOnHand(locationID, unit) {
			pinnedShort = append(pinnedShort, pinnedUnit{unit: unit, locationID: locationID})
		}
	}

	ordered := append([]LocationStock(nil), locations...)
	covered := make(map[uuid.UUID]int, len(ordered))
	for _, ls := range ordered {
		covered[ls.Location.ID] = a.coverage(ls.Location.ID, free)
	}
	sort.SliceStable(ordered, func(i, j int) bool {
		return covered[ordered[i].Location.ID] > covered[ordered[j].Location.ID]
	})

	var short []*models.InventoryUnit
	for _, unit := range free {
		placed := false
		for _, ls := range ordered {
			if a.takeOnHand(ls.Location.ID, unit) {
				placed = true
				break
			}
		}
		if !placed {
			short = append(short, unit)
		}
	}

	for _, p := range pinnedShort {
		a.backorder(p.locationID, p.unit)
	}
	for _, unit := range short {
		for _, ls := range ordered {
			if a.backorder(ls.Location.ID, unit) {
				break
			}
		}
	}
	return a.assigned
}

// pinnedLocations maps unit ids to the stocking location a preference pins
// them to, honouring each preference's quantity.
func pinnedLocations(a *allocator, prefs []models.LineItemStockLocation, units []*models.InventoryUnit) map[uuid.UUID]uuid.UUID {
	pins := make(map[uuid.UUID]uuid.UUID)
	for _, pref := range prefs {
		if _, stocking := a.levels[pref.StockLocationID]; !stocking {
			continue
		}
		remaining := pref.Quantity
		for _, unit := range units {
			if remaining == 0 {
				break
			}
			if _, taken := pins[unit.ID]; taken || unit.VariantID != pref.VariantID {
				continue
			}
			pins[unit.ID] = pref.StockLocationID
			remaining--
		}
	}
	return pins
}
