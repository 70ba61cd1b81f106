package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/angelmondragon/orderflow/pkg/enums"
	"github.com/angelmondragon/orderflow/pkg/types"
)

type Order struct {
	ID             uuid.UUID        `gorm:"column:id;type:uuid;primaryKey"`
	Number         string           `gorm:"column:number;not null;uniqueIndex"`
	State          enums.OrderState `gorm:"column:state;type:text;not null"`
	Currency       enums.Currency   `gorm:"column:currency;type:text;not null"`
	ShipAddress    types.Address    `gorm:"column:ship_address;type:jsonb"`
	Total          decimal.Decimal  `gorm:"column:total;type:numeric(12,2);not null"`
	CompletedAt    *time.Time       `gorm:"column:completed_at"`
	LineItems      []LineItem       `gorm:"foreignKey:OrderID"`
	InventoryUnits []InventoryUnit  `gorm:"foreignKey:OrderID"`
	Shipments      []Shipment       `gorm:"foreignKey:OrderID"`
	Payments       []Payment        `gorm:"foreignKey:OrderID"`
	CreatedAt      time.Time        `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt      time.Time        `gorm:"column:updated_at;autoUpdateTime"`
}

func (o *Order) BeforeCreate(*gorm.DB) error {
	ensureID(&o.ID)
	return nil
}

type LineItem struct {
	ID                 uuid.UUID       `gorm:"column:id;type:uuid;primaryKey"`
	OrderID            uuid.UUID       `gorm:"column:order_id;type:uuid;not null;index"`
	VariantID          uuid.UUID       `gorm:"column:variant_id;type:uuid;not null"`
	Variant            *Variant        `gorm:"foreignKey:VariantID"`
	Quantity           int             `gorm:"column:quantity;not null"`
	Price              decimal.Decimal `gorm:"column:price;type:numeric(12,2);not null"`
	AdditionalTaxTotal decimal.Decimal `gorm:"column:additional_tax_total;type:numeric(12,2);not null"`
	IncludedTaxTotal   decimal.Decimal `gorm:"column:included_tax_total;type:numeric(12,2);not null"`
	CreatedAt          time.Time       `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt          time.Time       `gorm:"column:updated_at;autoUpdateTime"`
}

func (l *LineItem) BeforeCreate(*gorm.DB) error {
	ensureID(&l.ID)
	return nil
}

// PreTaxAmount is the line's price times quantity, before exclusive tax.
func (l LineItem) PreTaxAmount() decimal.Decimal {
	return l.Price.Mul(decimal.NewFromInt(int64(l.Quantity)))
}

// LineItemStockLocation pins part of a line item's quantity to a preferred
// stock location.
type LineItemStockLocation struct {
	ID                uuid.UUID `gorm:"column:id;type:uuid;primaryKey"`
	OrderID           uuid.UUID `gorm:"column:order_id;type:uuid;not null;index"`
	VariantID         uuid.UUID `gorm:"column:variant_id;type:uuid;not null"`
	StockLocationID   uuid.UUID `gorm:"column:stock_location_id;type:uuid;not null"`
	Quantity          int       `gorm:"column:quantity;not null"`
	ShipmentFulfilled bool      `gorm:"column:shipment_fulfilled;not null"`
	CreatedAt         time.Time `gorm:"column:created_at;autoCreateTime"`
}

func (LineItemStockLocation) TableName() string { return "order_stock_locations" }

func (l *LineItemStockLocation) BeforeCreate(*gorm.DB) error {
	ensureID(&l.ID)
	return nil
}

// InventoryUnit is one physical unit of a purchased variant. Units are never
// deleted.
type InventoryUnit struct {
	ID                   uuid.UUID                `gorm:"column:id;type:uuid;primaryKey"`
	OrderID              uuid.UUID                `gorm:"column:order_id;type:uuid;not null;index"`
	VariantID            uuid.UUID                `gorm:"column:variant_id;type:uuid;not null"`
	Variant              *Variant                 `gorm:"foreignKey:VariantID"`
	LineItemID           uuid.UUID                `gorm:"column:line_item_id;type:uuid;not null"`
	LineItem             *LineItem                `gorm:"foreignKey:LineItemID"`
	ShipmentID           *uuid.UUID               `gorm:"column:shipment_id;type:uuid;index"`
	State                enums.InventoryUnitState `gorm:"column:state;type:text;not null"`
	OriginalReturnItemID *uuid.UUID               `gorm:"column:original_return_item_id;type:uuid"`
	CreatedAt            time.Time                `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt            time.Time                `gorm:"column:updated_at;autoUpdateTime"`
}

func (u *InventoryUnit) BeforeCreate(*gorm.DB) error {
	ensureID(&u.ID)
	return nil
}

// Payment is a captured amount against an order. Amount is the captured total.
type Payment struct {
	ID            uuid.UUID          `gorm:"column:id;type:uuid;primaryKey"`
	OrderID       uuid.UUID          `gorm:"column:order_id;type:uuid;not null;index"`
	Amount        decimal.Decimal    `gorm:"column:amount;type:numeric(12,2);not null"`
	State         enums.PaymentState `gorm:"column:state;type:text;not null"`
	PaymentMethod string             `gorm:"column:payment_method"`
	Refunds       []Refund           `gorm:"foreignKey:PaymentID"`
	CreatedAt     time.Time          `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt     time.Time          `gorm:"column:updated_at;autoUpdateTime"`
}

func (p *Payment) BeforeCreate(*gorm.DB) error {
	ensureID(&p.ID)
	return nil
}
