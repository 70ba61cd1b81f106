package stock

import (
	"sort"

	"github.com/google/uuid"

	"github.com/angelmondragon/orderflow/pkg/enums"
)

// Prioritizer reorders packages gathered from every location and assigns each
// unit to exactly one of them. Implementations must be idempotent and must not
// lose units.
type Prioritizer interface {
	Prioritize(packages []*Package) []*Package
}

type PrioritizerFunc func(packages []*Package) []*Package

func (f PrioritizerFunc) Prioritize(packages []*Package) []*Package {
	return f(packages)
}

// DefaultPrioritizer favours packages that can ship entirely from stock, then
// locations holding the largest share of the order on hand. A unit stays in
// the first package that has it on hand, falling back to the first that has it
// backordered; it is removed from every other package.
var DefaultPrioritizer = PrioritizerFunc(func(packages []*Package) []*Package {
	sortPackages(packages)

	for _, pkg := range packages {
		for _, item := range append([]ContentItem(nil), pkg.Contents...) {
			assign(packages, item)
		}
	}

	kept := packages[:0]
	for _, pkg := range packages {
		if !pkg.Empty() {
			kept = append(kept, pkg)
		}
	}
	sortPackages(kept)
	return kept
})

func assign(packages []*Package, item ContentItem) {
	owner, state := -1, enums.InventoryUnitOnHand
	for i, pkg := range packages {
		if pkg.Find(item.Unit.ID, enums.InventoryUnitOnHand) >= 0 {
			owner = i
			break
		}
	}
	if owner < 0 {
		state = enums.InventoryUnitBackordered
		for i, pkg := range packages {
			if pkg.Find(item.Unit.ID, state) >= 0 {
				owner = i
				break
			}
		}
	}
	if owner < 0 {
		return
	}
	for i, pkg := range packages {
		if i == owner {
			keepOne(pkg, item.Unit.ID, state)
			continue
		}
		pkg.Remove(item.Unit.ID)
	}
}

// keepOne drops duplicate or differently-stated entries of a unit inside the
// owning package.
func keepOne(pkg *Package, unitID uuid.UUID, state enums.InventoryUnitState) {
	seen := false
	kept := pkg.Contents[:0]
	for _, item := range pkg.Contents {
		if item.Unit.ID == unitID {
			if seen || item.State != state {
				continue
			}
			seen = true
		}
		kept = append(kept, item)
	}
	pkg.Contents = kept
}

func sortPackages(packages []*Package) {
	sort.SliceStable(packages, func(i, j int) bool {
		a, b := packages[i], packages[j]
		aFull := len(a.Backordered()) == 0
		bFull := len(b.Backordered()) == 0
		if aFull != bFull {
			return aFull
		}
		if an, bn := a.Quantity(enums.InventoryUnitOnHand), b.Quantity(enums.InventoryUnitOnHand); an != bn {
			return an > bn
		}
		if len(a.Contents) != len(b.Contents) {
			return len(a.Contents) > len(b.Contents)
		}
		if al, bl := a.StockLocation.ID.String(), b.StockLocation.ID.String(); al != bl {
			return al < bl
		}
		return firstUnitID(a) < firstUnitID(b)
	})
}

func firstUnitID(pkg *Package) string {
	if pkg.Empty() {
		return ""
	}
	return pkg.Contents[0].Unit.ID.String()
}
