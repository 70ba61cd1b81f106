package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// Variant is a purchasable SKU.
type Variant struct {
	ID             uuid.UUID       `gorm:"column:id;type:uuid;primaryKey"`
	SKU            string          `gorm:"column:sku;not null;uniqueIndex"`
	Price          decimal.Decimal `gorm:"column:price;type:numeric(12,2);not null"`
	TrackInventory bool            `gorm:"column:track_inventory;not null"`
	CreatedAt      time.Time       `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt      time.Time       `gorm:"column:updated_at;autoUpdateTime"`
}

func (v *Variant) BeforeCreate(*gorm.DB) error {
	ensureID(&v.ID)
	return nil
}

// StockLocation is a warehouse or fulfillment point.
type StockLocation struct {
	ID         uuid.UUID   `gorm:"column:id;type:uuid;primaryKey"`
	Name       string      `gorm:"column:name;not null;uniqueIndex"`
	Active     bool        `gorm:"column:active;not null"`
	Country    string      `gorm:"column:country"`
	StockItems []StockItem `gorm:"foreignKey:StockLocationID"`
	CreatedAt  time.Time   `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt  time.Time   `gorm:"column:updated_at;autoUpdateTime"`
}

func (l *StockLocation) BeforeCreate(*gorm.DB) error {
	ensureID(&l.ID)
	return nil
}

// StockItem is the count of one variant held at one location.
type StockItem struct {
	ID              uuid.UUID `gorm:"column:id;type:uuid;primaryKey"`
	StockLocationID uuid.UUID `gorm:"column:stock_location_id;type:uuid;not null;uniqueIndex:idx_stock_items_location_variant"`
	VariantID       uuid.UUID `gorm:"column:variant_id;type:uuid;not null;uniqueIndex:idx_stock_items_location_variant"`
	CountOnHand     int       `gorm:"column:count_on_hand;not null"`
	Backorderable   bool      `gorm:"column:backorderable;not null"`
	CreatedAt       time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt       time.Time `gorm:"column:updated_at;autoUpdateTime"`
}

func (s *StockItem) BeforeCreate(*gorm.DB) error {
	ensureID(&s.ID)
	return nil
}
