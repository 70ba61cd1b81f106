package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	dbtypes "github.com/angelmondragon/orderflow/pkg/db/types"
	"github.com/angelmondragon/orderflow/pkg/enums"
	"github.com/angelmondragon/orderflow/pkg/types"
)

type Shipment struct {
	ID              uuid.UUID           `gorm:"column:id;type:uuid;primaryKey"`
	Number          string              `gorm:"column:number;not null;uniqueIndex"`
	OrderID         uuid.UUID           `gorm:"column:order_id;type:uuid;not null;index"`
	StockLocationID uuid.UUID           `gorm:"column:stock_location_id;type:uuid;not null"`
	Address         types.Address       `gorm:"column:address;type:jsonb"`
	State           enums.ShipmentState `gorm:"column:state;type:text;not null"`
	Cost            decimal.Decimal     `gorm:"column:cost;type:numeric(12,2);not null"`
	ShippedAt       *time.Time          `gorm:"column:shipped_at"`
	InventoryUnits  []InventoryUnit     `gorm:"foreignKey:ShipmentID"`
	ShippingRates   []ShippingRate      `gorm:"foreignKey:ShipmentID"`
	CreatedAt       time.Time           `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt       time.Time           `gorm:"column:updated_at;autoUpdateTime"`
}

func (s *Shipment) BeforeCreate(*gorm.DB) error {
	ensureID(&s.ID)
	return nil
}

// SelectedRate returns the rate marked selected, if any.
func (s *Shipment) SelectedRate() *ShippingRate {
	for i := range s.ShippingRates {
		if s.ShippingRates[i].Selected {
			return &s.ShippingRates[i]
		}
	}
	return nil
}

// ShippingMethod prices packages with a calculator. Empty StockLocationIDs or
// Countries mean the method is available everywhere.
type ShippingMethod struct {
	ID               uuid.UUID            `gorm:"column:id;type:uuid;primaryKey"`
	Name             string               `gorm:"column:name;not null"`
	Code             string               `gorm:"column:code;not null;uniqueIndex"`
	CalculatorKind   enums.CalculatorKind `gorm:"column:calculator_kind;type:text;not null"`
	CalculatorAmount decimal.Decimal      `gorm:"column:calculator_amount;type:numeric(12,2);not null"`
	StockLocationIDs dbtypes.UUIDArray    `gorm:"column:stock_location_ids;type:text"`
	Countries        []string             `gorm:"column:countries;type:jsonb;serializer:json"`
	CreatedAt        time.Time            `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt        time.Time            `gorm:"column:updated_at;autoUpdateTime"`
}

func (m *ShippingMethod) BeforeCreate(*gorm.DB) error {
	ensureID(&m.ID)
	return nil
}

type ShippingRate struct {
	ID               uuid.UUID       `gorm:"column:id;type:uuid;primaryKey"`
	ShipmentID       uuid.UUID       `gorm:"column:shipment_id;type:uuid;not null;index"`
	ShippingMethodID uuid.UUID       `gorm:"column:shipping_method_id;type:uuid;not null"`
	ShippingMethod   *ShippingMethod `gorm:"foreignKey:ShippingMethodID"`
	Cost             decimal.Decimal `gorm:"column:cost;type:numeric(12,2);not null"`
	Selected         bool            `gorm:"column:selected;not null"`
	CreatedAt        time.Time       `gorm:"column:created_at;autoCreateTime"`
}

func (r *ShippingRate) BeforeCreate(*gorm.DB) error {
	ensureID(&r.ID)
	return nil
}
