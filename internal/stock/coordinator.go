package stock

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/orderflow/pkg/db/models"
	"github.com/angelmondragon/orderflow/pkg/logger"
	"github.com/angelmondragon/orderflow/pkg/metrics"
)

// Coordinator decides which stock locations fulfil which inventory units and
// turns the result into shipments.
type Coordinator struct {
	repo           Repository
	estimator      *Estimator
	prioritizer    Prioritizer
	splitters      []Splitter
	trackInventory bool
	logg           *logger.Logger
	metrics        *metrics.EngineMetrics
}

type Option func(*Coordinator)

func WithSplitters(splitters ...Splitter) Option {
	return func(c *Coordinator) {
		c.splitters = splitters
	}
}

func WithPrioritizer(p Prioritizer) Option {
	return func(c *Coordinator) {
		if p != nil {
			c.prioritizer = p
		}
	}
}

// WithInventoryTracking toggles stock level checks globally. When off every
// unit is packed on hand.
func WithInventoryTracking(enabled bool) Option {
	return func(c *Coordinator) {
		c.trackInventory = enabled
	}
}

func WithLogger(logg *logger.Logger) Option {
	return func(c *Coordinator) {
		c.logg = logg
	}
}

func WithMetrics(m *metrics.EngineMetrics) Option {
	return func(c *Coordinator) {
		c.metrics = m
	}
}

func NewCoordinator(repo Repository, calculator RateCalculator, opts ...Option) (*Coordinator, error) {
	if repo == nil {
		return nil, errors.New("stock repository required")
	}
	if calculator == nil {
		return nil, errors.New("rate calculator required")
	}
	c := &Coordinator{
		repo:           repo,
		estimator:      NewEstimator(repo, calculator),
		prioritizer:    DefaultPrioritizer,
		splitters:      DefaultSplitters(),
		trackInventory: true,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// WithTx returns a coordinator reading through tx.
func (c *Coordinator) WithTx(tx *gorm.DB) *Coordinator {
	clone := *c
	clone.repo = c.repo.WithTx(tx)
	clone.estimator = c.estimator.WithSource(clone.repo)
	return &clone
}

// Shipments packs units (or the order's unshipped units when nil) and converts
// every package into an unsaved shipment carrying the order's ship address.
func (c *Coordinator) Shipments(ctx context.Context, order *models.Order, units []*models.InventoryUnit) ([]*models.Shipment, error) {
	packages, err := c.Packages(ctx, order, units)
	if err != nil {
		return nil, err
	}
	shipments := make([]*models.Shipment, 0, len(packages))
	for _, pkg := range packages {
		shipments = append(shipments, pkg.ToShipment(order))
	}
	return shipments, nil
}

// Packages builds, prioritizes and prices packages. No supplying location
// yields an empty result rather than an error.
func (c *Coordinator) Packages(ctx context.Context, order *models.Order, units []*models.InventoryUnit) ([]*Package, error) {
	start := time.Now()
	defer func() { c.metrics.ObserveDuration("allocate", time.Since(start)) }()

	if units == nil {
		units = unpacked(order)
	}
	if len(units) == 0 {
		return nil, nil
	}

	packages, err := c.buildPackages(ctx, order, units)
	if err != nil {
		return nil, err
	}
	packages = c.prioritizer.Prioritize(packages)

	for _, pkg := range packages {
		rates, err := c.estimator.Rates(ctx, order, pkg)
		if err != nil {
			return nil, err
		}
		pkg.Rates = rates
	}

	c.metrics.AddPackages(len(packages))
	logCtx := c.logg.WithFields(c.logg.WithOrderID(ctx, order.ID.String()), map[string]any{
		"units":    len(units),
		"packages": len(packages),
	})
	c.logg.Info(logCtx, "stock allocated")
	return packages, nil
}

func (c *Coordinator) buildPackages(ctx context.Context, order *models.Order, units []*models.InventoryUnit) ([]*Package, error) {
	locations, err := c.repo.StockingLocations(ctx, variantIDs(units))
	if err != nil {
		return nil, err
	}
	if len(locations) == 0 {
		return nil, nil
	}

	prefs, err := c.repo.PreferredLocations(ctx, order.ID)
	if err != nil {
		return nil, err
	}
	assigned := allocate(locations, prefs, units, c.trackInventory)

	var packages []*Package
	for _, ls := range locations {
		locUnits := assigned[ls.Location.ID]
		if len(locUnits) == 0 {
			continue
		}
		packer := NewPacker(ls.Location, ls.Items, locUnits, c.splitters, c.trackInventory)
		built, err := packer.Packages(ctx)
		if err != nil {
			return nil, err
		}
		packages = append(packages, built...)
	}
	return packages, nil
}

func unpacked(order *models.Order) []*models.InventoryUnit {
	var out []*models.InventoryUnit
	for i := range order.InventoryUnits {
		if order.InventoryUnits[i].ShipmentID == nil {
			out = append(out, &order.InventoryUnits[i])
		}
	}
	return out
}

func variantIDs(units []*models.InventoryUnit) []uuid.UUID {
	seen := make(map[uuid.UUID]bool)
	var out []uuid.UUID
	for _, unit := range units {
		if !seen[unit.VariantID] {
			seen[unit.VariantID] = true
			out = append(out, unit.VariantID)
		}
	}
	return out
}
