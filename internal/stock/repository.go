package stock

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/orderflow/pkg/db/models"
)

// LocationStock is an active location with its stock items for the requested
// variants.
type LocationStock struct {
	Location *models.StockLocation
	Items    []models.StockItem
}

// Repository reads the stock and shipping configuration allocation relies on.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	StockingLocations(ctx context.Context, variantIDs []uuid.UUID) ([]LocationStock, error)
	PreferredLocations(ctx context.Context, orderID uuid.UUID) ([]models.LineItemStockLocation, error)
	ShippingMethods(ctx context.Context) ([]models.ShippingMethod, error)
	StockItem(ctx context.Context, locationID, variantID uuid.UUID) (*models.StockItem, error)
	AdjustCountOnHand(ctx context.Context, stockItemID uuid.UUID, delta int) error
}

type repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

// StockingLocations skips locations holding no stock item for any of the
// variants.
func (r *repository) StockingLocations(ctx context.Context, variantIDs []uuid.UUID) ([]LocationStock, error) {
	if len(variantIDs) == 0 {
		return nil, nil
	}
	var locations []models.StockLocation
	err := r.db.WithContext(ctx).
		Where("active = ?", true).
		Preload("StockItems", "variant_id IN ?", variantIDs).
		Order("name ASC").
		Find(&locations).Error
	if err != nil {
		return nil, err
	}

	out := make([]LocationStock, 0, len(locations))
	for i := range locations {
		if len(locations[i].StockItems) == 0 {
			continue
		}
		out = append(out, LocationStock{Location: &locations[i], Items: locations[i].StockItems})
	}
	return out, nil
}

// PreferredLocations returns the order's unfulfilled location preferences in
// insertion order.
func (r *repository) PreferredLocations(ctx context.Context, orderID uuid.UUID) ([]models.LineItemStockLocation, error) {
	var rows []models.LineItemStockLocation
	err := r.db.WithContext(ctx).
		Where("order_id = ? AND shipment_fulfilled = ?", orderID, false).
		Order("created_at ASC").
		Find(&rows).Error
	return rows, err
}

func (r *repository) ShippingMethods(ctx context.Context) ([]models.ShippingMethod, error) {
	var rows []models.ShippingMethod
	err := r.db.WithContext(ctx).Order("code ASC").Find(&rows).Error
	return rows, err
}

func (r *repository) StockItem(ctx context.Context, locationID, variantID uuid.UUID) (*models.StockItem, error) {
	var item models.StockItem
	err := r.db.WithContext(ctx).
		Where("stock_location_id = ? AND variant_id = ?", locationID, variantID).
		First(&item).Error
	if err != nil {
		return nil, err
	}
	return &item, nil
}

// AdjustCountOnHand moves count_on_hand by delta atomically in SQL.
func (r *repository) AdjustCountOnHand(ctx context.Context, stockItemID uuid.UUID, delta int) error {
	return r.db.WithContext(ctx).
		Model(&models.StockItem{}).
		Where("id = ?", stockItemID).
		Update("count_on_hand", gorm.Expr("count_on_hand + ?", delta)).Error
}
