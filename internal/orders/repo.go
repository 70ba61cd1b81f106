package orders

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/angelmondragon/orderflow/pkg/db/models"
	"github.com/angelmondragon/orderflow/pkg/enums"
)

type repository struct {
	db *gorm.DB
}

// NewRepository builds an orders repository bound to the provided DB.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) withUnits(ctx context.Context) *gorm.DB {
	return r.db.WithContext(ctx).
		Preload("LineItems").
		Preload("InventoryUnits", func(db *gorm.DB) *gorm.DB { return db.Order("created_at ASC, id ASC") }).
		Preload("InventoryUnits.Variant").
		Preload("InventoryUnits.LineItem").
		Preload("Payments")
}

func (r *repository) FindOrderByNumber(ctx context.Context, number string) (*models.Order, error) {
	var order models.Order
	if err := r.withUnits(ctx).Where("number = ?", number).First(&order).Error; err != nil {
		return nil, err
	}
	return &order, nil
}

func (r *repository) FindOrder(ctx context.Context, orderID uuid.UUID) (*models.Order, error) {
	var order models.Order
	if err := r.withUnits(ctx).Where("id = ?", orderID).First(&order).Error; err != nil {
		return nil, err
	}
	return &order, nil
}

func (r *repository) FindShipmentByNumber(ctx context.Context, number string) (*models.Shipment, error) {
	var shipment models.Shipment
	err := r.db.WithContext(ctx).
		Preload("InventoryUnits", func(db *gorm.DB) *gorm.DB { return db.Order("created_at ASC, id ASC") }).
		Preload("InventoryUnits.Variant").
		Where("number = ?", number).
		First(&shipment).Error
	if err != nil {
		return nil, err
	}
	return &shipment, nil
}

// CreateShipment inserts the shipment and its rates. Units are attached
// separately through AssignUnit.
func (r *repository) CreateShipment(ctx context.Context, shipment *models.Shipment) error {
	if err := r.db.WithContext(ctx).Omit(clause.Associations).Create(shipment).Error; err != nil {
		return err
	}
	for i := range shipment.ShippingRates {
		rate := &shipment.ShippingRates[i]
		rate.ShipmentID = shipment.ID
		if err := r.db.WithContext(ctx).Omit(clause.Associations).Create(rate).Error; err != nil {
			return err
		}
	}
	return nil
}

func (r *repository) AssignUnit(ctx context.Context, unitID, shipmentID uuid.UUID, state enums.InventoryUnitState) error {
	return r.db.WithContext(ctx).
		Model(&models.InventoryUnit{}).
		Where("id = ?", unitID).
		Updates(map[string]any{"shipment_id": shipmentID, "state": state}).Error
}

func (r *repository) UpdateUnitsState(ctx context.Context, unitIDs []uuid.UUID, state enums.InventoryUnitState) error {
	if len(unitIDs) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).
		Model(&models.InventoryUnit{}).
		Where("id IN ?", unitIDs).
		Update("state", state).Error
}

func (r *repository) MarkPreferencesFulfilled(ctx context.Context, orderID uuid.UUID) error {
	return r.db.WithContext(ctx).
		Model(&models.LineItemStockLocation{}).
		Where("order_id = ? AND shipment_fulfilled = ?", orderID, false).
		Update("shipment_fulfilled", true).Error
}

func (r *repository) MarkShipped(ctx context.Context, shipmentID uuid.UUID, at time.Time) error {
	return r.db.WithContext(ctx).
		Model(&models.Shipment{}).
		Where("id = ?", shipmentID).
		Updates(map[string]any{"state": enums.ShipmentShipped, "shipped_at": at}).Error
}

func (r *repository) UpdateOrderState(ctx context.Context, orderID uuid.UUID, state enums.OrderState) error {
	return r.db.WithContext(ctx).
		Model(&models.Order{}).
		Where("id = ?", orderID).
		Update("state", state).Error
}
