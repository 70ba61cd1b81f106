package orders

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/orderflow/internal/numbering"
	"github.com/angelmondragon/orderflow/internal/orderlock"
	"github.com/angelmondragon/orderflow/internal/stock"
	"github.com/angelmondragon/orderflow/pkg/db"
	"github.com/angelmondragon/orderflow/pkg/db/models"
	"github.com/angelmondragon/orderflow/pkg/enums"
	pkgerrors "github.com/angelmondragon/orderflow/pkg/errors"
	"github.com/angelmondragon/orderflow/pkg/logger"
	"github.com/angelmondragon/orderflow/pkg/metrics"
	"github.com/angelmondragon/orderflow/pkg/outbox"
	"github.com/angelmondragon/orderflow/pkg/outbox/payloads"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type outboxPublisher interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

// Service packs completed orders into shipments and ships them.
type Service interface {
	Allocate(ctx context.Context, orderNumber string) ([]*models.Shipment, error)
	ShipShipment(ctx context.Context, shipmentNumber string) (*models.Shipment, error)
	FindByNumber(ctx context.Context, orderNumber string) (*models.Order, error)
	PackUnits(ctx context.Context, tx *gorm.DB, order *models.Order, units []*models.InventoryUnit) ([]*models.Shipment, error)
}

// ServiceParams groups dependencies for the orders service.
type ServiceParams struct {
	Repo           Repository
	StockRepo      stock.Repository
	Coordinator    *stock.Coordinator
	Numbers        *numbering.Generator
	Locker         orderlock.Locker
	Tx             txRunner
	Outbox         outboxPublisher
	TrackInventory bool
	Logger         *logger.Logger
	Metrics        *metrics.EngineMetrics
}

type service struct {
	repo           Repository
	stockRepo      stock.Repository
	coordinator    *stock.Coordinator
	numbers        *numbering.Generator
	locker         orderlock.Locker
	tx             txRunner
	outbox         outboxPublisher
	trackInventory bool
	logg           *logger.Logger
	metrics        *metrics.EngineMetrics
}

// NewService builds the orders service with the required dependencies.
func NewService(params ServiceParams) (Service, error) {
	if params.Repo == nil {
		return nil, fmt.Errorf("orders repository required")
	}
	if params.StockRepo == nil {
		return nil, fmt.Errorf("stock repository required")
	}
	if params.Coordinator == nil {
		return nil, fmt.Errorf("stock coordinator required")
	}
	if params.Locker == nil {
		return nil, fmt.Errorf("order locker required")
	}
	if params.Tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if params.Outbox == nil {
		return nil, fmt.Errorf("outbox publisher required")
	}
	numbers := params.Numbers
	if numbers == nil {
		numbers = numbering.NewGenerator()
	}
	return &service{
		repo:           params.Repo,
		stockRepo:      params.StockRepo,
		coordinator:    params.Coordinator,
		numbers:        numbers,
		locker:         params.Locker,
		tx:             params.Tx,
		outbox:         params.Outbox,
		trackInventory: params.TrackInventory,
		logg:           params.Logger,
		metrics:        params.Metrics,
	}, nil
}

// Allocate packs every unpacked unit of the order into new shipments. An order
// whose units are all packed yields no shipments.
func (s *service) Allocate(ctx context.Context, orderNumber string) ([]*models.Shipment, error) {
	orderNumber = strings.TrimSpace(orderNumber)
	if orderNumber == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order number required")
	}
	order, err := s.loadOrder(ctx, s.repo, orderNumber)
	if err != nil {
		return nil, err
	}

	var shipments []*models.Shipment
	err = s.locker.WithLock(ctx, order.ID, func(ctx context.Context) error {
		return s.tx.WithTx(ctx, func(tx *gorm.DB) error {
			repo := s.repo.WithTx(tx)
			order, err := s.loadOrder(ctx, repo, orderNumber)
			if err != nil {
				return err
			}
			if order.State != enums.OrderStateComplete {
				return pkgerrors.New(pkgerrors.CodeStateConflict, fmt.Sprintf("order %s is %s, not complete", order.Number, order.State))
			}

			shipments, err = s.PackUnits(ctx, tx, order, nil)
			return err
		})
	})
	if err != nil {
		return nil, err
	}
	return shipments, nil
}

// PackUnits packs units (or every unpacked unit of order when nil) into new
// shipments inside tx. The caller holds the order lock.
func (s *service) PackUnits(ctx context.Context, tx *gorm.DB, order *models.Order, units []*models.InventoryUnit) ([]*models.Shipment, error) {
	if tx == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "transaction required")
	}
	shipments, err := s.coordinator.WithTx(tx).Shipments(ctx, order, units)
	if err != nil {
		return nil, err
	}
	if len(shipments) == 0 {
		return nil, nil
	}
	if err := s.persistShipments(ctx, tx, s.repo.WithTx(tx), order, shipments); err != nil {
		return nil, err
	}
	return shipments, nil
}

func (s *service) persistShipments(ctx context.Context, tx *gorm.DB, repo Repository, order *models.Order, shipments []*models.Shipment) error {
	event := payloads.ShipmentsAllocatedEvent{OrderID: order.ID}
	for _, shipment := range shipments {
		number, err := s.numbers.Generate(ctx, tx, numbering.Shipment, &models.Shipment{})
		if err != nil {
			return err
		}
		shipment.Number = number
		if err := repo.CreateShipment(ctx, shipment); err != nil {
			if db.IsUniqueViolation(err, "") {
				return pkgerrors.Wrap(pkgerrors.CodeConflict, err, "shipment number taken")
			}
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "create shipment")
		}
		for i := range shipment.InventoryUnits {
			unit := &shipment.InventoryUnits[i]
			if err := repo.AssignUnit(ctx, unit.ID, shipment.ID, unit.State); err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "assign unit to shipment")
			}
			unit.ShipmentID = &shipment.ID
		}
		event.ShipmentIDs = append(event.ShipmentIDs, shipment.ID)
		event.ShipmentNumbers = append(event.ShipmentNumbers, shipment.Number)
		event.UnitCount += len(shipment.InventoryUnits)
	}
	if err := repo.MarkPreferencesFulfilled(ctx, order.ID); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "fulfil stock location preferences")
	}

	logCtx := s.logg.WithFields(s.logg.WithOrderID(ctx, order.ID.String()), map[string]any{
		"shipments": event.ShipmentNumbers,
		"units":     event.UnitCount,
	})
	s.logg.Info(logCtx, "order allocated")

	return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
		EventType:     enums.EventShipmentsAllocated,
		AggregateType: enums.AggregateOrder,
		AggregateID:   order.ID,
		Data:          event,
	})
}

// ShipShipment moves a pending or ready shipment to shipped, marking its units
// shipped and taking them out of the location's stock.
func (s *service) ShipShipment(ctx context.Context, shipmentNumber string) (*models.Shipment, error) {
	shipmentNumber = strings.TrimSpace(shipmentNumber)
	if shipmentNumber == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "shipment number required")
	}
	start := time.Now()
	defer func() { s.metrics.ObserveDuration("ship", time.Since(start)) }()

	shipment, err := s.loadShipment(ctx, s.repo, shipmentNumber)
	if err != nil {
		return nil, err
	}

	err = s.locker.WithLock(ctx, shipment.OrderID, func(ctx context.Context) error {
		return s.tx.WithTx(ctx, func(tx *gorm.DB) error {
			repo := s.repo.WithTx(tx)
			shipment, err = s.loadShipment(ctx, repo, shipmentNumber)
			if err != nil {
				return err
			}
			if err := shippable(shipment); err != nil {
				return err
			}

			unitIDs := make([]uuid.UUID, 0, len(shipment.InventoryUnits))
			for _, unit := range shipment.InventoryUnits {
				unitIDs = append(unitIDs, unit.ID)
			}
			if err := repo.UpdateUnitsState(ctx, unitIDs, enums.InventoryUnitShipped); err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "mark units shipped")
			}
			if err := s.unstock(ctx, tx, shipment); err != nil {
				return err
			}

			now := time.Now().UTC()
			if err := repo.MarkShipped(ctx, shipment.ID, now); err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "mark shipment shipped")
			}
			shipment.State = enums.ShipmentShipped
			shipment.ShippedAt = &now
			for i := range shipment.InventoryUnits {
				shipment.InventoryUnits[i].State = enums.InventoryUnitShipped
			}

			s.logg.Info(s.logg.WithField(s.logg.WithOrderID(ctx, shipment.OrderID.String()), "shipment", shipment.Number), "shipment shipped")
			return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
				EventType:     enums.EventShipmentShipped,
				AggregateType: enums.AggregateShipment,
				AggregateID:   shipment.ID,
				Data: payloads.ShipmentShippedEvent{
					OrderID:   shipment.OrderID,
					Number:    shipment.Number,
					ShippedAt: now,
				},
			})
		})
	})
	if err != nil {
		return nil, err
	}
	return shipment, nil
}

func shippable(shipment *models.Shipment) error {
	switch shipment.State {
	case enums.ShipmentPending, enums.ShipmentReady:
	default:
		return pkgerrors.New(pkgerrors.CodeStateConflict, fmt.Sprintf("shipment %s is %s", shipment.Number, shipment.State))
	}
	for _, unit := range shipment.InventoryUnits {
		if unit.State != enums.InventoryUnitOnHand {
			return pkgerrors.New(pkgerrors.CodeStateConflict, fmt.Sprintf("shipment %s holds %s units", shipment.Number, unit.State))
		}
	}
	return nil
}

// unstock decrements count_on_hand once per shipped unit of a tracked variant.
// Variants without a stock item at the location are skipped.
func (s *service) unstock(ctx context.Context, tx *gorm.DB, shipment *models.Shipment) error {
	if !s.trackInventory {
		return nil
	}
	stockRepo := s.stockRepo.WithTx(tx)
	counts := make(map[uuid.UUID]int)
	var variants []uuid.UUID
	for _, unit := range shipment.InventoryUnits {
		if unit.Variant != nil && !unit.Variant.TrackInventory {
			continue
		}
		if counts[unit.VariantID] == 0 {
			variants = append(variants, unit.VariantID)
		}
		counts[unit.VariantID]++
	}
	for _, variantID := range variants {
		item, err := stockRepo.StockItem(ctx, shipment.StockLocationID, variantID)
		if err != nil {
			if db.IsNotFound(err) {
				continue
			}
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load stock item")
		}
		if err := stockRepo.AdjustCountOnHand(ctx, item.ID, -counts[variantID]); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "decrement stock")
		}
	}
	return nil
}

func (s *service) FindByNumber(ctx context.Context, orderNumber string) (*models.Order, error) {
	return s.loadOrder(ctx, s.repo, strings.TrimSpace(orderNumber))
}

func (s *service) loadOrder(ctx context.Context, repo Repository, number string) (*models.Order, error) {
	order, err := repo.FindOrderByNumber(ctx, number)
	if err != nil {
		if db.IsNotFound(err) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load order")
	}
	return order, nil
}

func (s *service) loadShipment(ctx context.Context, repo Repository, number string) (*models.Shipment, error) {
	shipment, err := repo.FindShipmentByNumber(ctx, number)
	if err != nil {
		if db.IsNotFound(err) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "shipment not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load shipment")
	}
	return shipment, nil
}
