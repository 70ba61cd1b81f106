package stock

import (
	"context"

	"github.com/angelmondragon/orderflow/pkg/enums"
)

// Splitter is one link of the chain a Packer runs over a location's default
// package. Each splitter receives the output of the previous one.
type Splitter interface {
	Split(ctx context.Context, packages []*Package) ([]*Package, error)
}

type SplitterFunc func(ctx context.Context, packages []*Package) ([]*Package, error)

func (f SplitterFunc) Split(ctx context.Context, packages []*Package) ([]*Package, error) {
	return f(ctx, packages)
}

// DefaultSplitters is the chain used when none is configured.
func DefaultSplitters() []Splitter {
	return []Splitter{BackorderSplitter{}}
}

// BackorderSplitter separates on-hand units from backordered ones so a
// location yields at most one package of each.
type BackorderSplitter struct{}

func (BackorderSplitter) Split(_ context.Context, packages []*Package) ([]*Package, error) {
	out := make([]*Package, 0, len(packages))
	for _, pkg := range packages {
		onHand := NewPackage(pkg.StockLocation)
		backordered := NewPackage(pkg.StockLocation)
		for _, item := range pkg.Contents {
			if item.State == enums.InventoryUnitBackordered {
				backordered.Contents = append(backordered.Contents, item)
				continue
			}
			onHand.Contents = append(onHand.Contents, item)
		}
		for _, candidate := range []*Package{onHand, backordered} {
			if !candidate.Empty() {
				out = append(out, candidate)
			}
		}
	}
	return out, nil
}

// MaxUnitsSplitter caps the number of units per package.
type MaxUnitsSplitter struct {
	Max int
}

func (s MaxUnitsSplitter) Split(_ context.Context, packages []*Package) ([]*Package, error) {
	if s.Max <= 0 {
		return packages, nil
	}
	out := make([]*Package, 0, len(packages))
	for _, pkg := range packages {
		for start := 0; start < len(pkg.Contents); start += s.Max {
			end := start + s.Max
			if end > len(pkg.Contents) {
				end = len(pkg.Contents)
			}
			chunk := NewPackage(pkg.StockLocation)
			chunk.Contents = append(chunk.Contents, pkg.Contents[start:end]...)
			out = append(out, chunk)
		}
	}
	return out, nil
}
