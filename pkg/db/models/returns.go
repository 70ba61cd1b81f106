package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/angelmondragon/orderflow/pkg/enums"
)

type ReturnAuthorizationReason struct {
	ID        uuid.UUID `gorm:"column:id;type:uuid;primaryKey"`
	Name      string    `gorm:"column:name;not null;uniqueIndex"`
	Active    bool      `gorm:"column:active;not null"`
	Mutable   bool      `gorm:"column:mutable;not null"`
	CreatedAt time.Time `gorm:"column:created_at;autoCreateTime"`
}

func (r *ReturnAuthorizationReason) BeforeCreate(*gorm.DB) error {
	ensureID(&r.ID)
	return nil
}

// ReturnAuthorization is permission to send back shipped units of one order.
type ReturnAuthorization struct {
	ID              uuid.UUID                      `gorm:"column:id;type:uuid;primaryKey"`
	Number          string                         `gorm:"column:number;not null;uniqueIndex"`
	OrderID         uuid.UUID                      `gorm:"column:order_id;type:uuid;not null;index"`
	StockLocationID uuid.UUID                      `gorm:"column:stock_location_id;type:uuid;not null"`
	ReasonID        *uuid.UUID                     `gorm:"column:return_authorization_reason_id;type:uuid"`
	Memo            string                         `gorm:"column:memo"`
	State           enums.ReturnAuthorizationState `gorm:"column:state;type:text;not null"`
	ReturnItems     []ReturnItem                   `gorm:"foreignKey:ReturnAuthorizationID"`
	CreatedAt       time.Time                      `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt       time.Time                      `gorm:"column:updated_at;autoUpdateTime"`
}

func (r *ReturnAuthorization) BeforeCreate(*gorm.DB) error {
	ensureID(&r.ID)
	return nil
}

// ReturnItem is the per-unit return record. Reception and acceptance are two
// independent state machines. Amounts keep four decimal places so that
// fractional minor units survive until the reimbursement total is rounded.
type ReturnItem struct {
	ID                      uuid.UUID              `gorm:"column:id;type:uuid;primaryKey"`
	ReturnAuthorizationID   *uuid.UUID             `gorm:"column:return_authorization_id;type:uuid;uniqueIndex:idx_return_items_authorization_unit"`
	InventoryUnitID         uuid.UUID              `gorm:"column:inventory_unit_id;type:uuid;not null;uniqueIndex:idx_return_items_authorization_unit"`
	InventoryUnit           *InventoryUnit         `gorm:"foreignKey:InventoryUnitID"`
	CustomerReturnID        *uuid.UUID             `gorm:"column:customer_return_id;type:uuid;index"`
	ReimbursementID         *uuid.UUID             `gorm:"column:reimbursement_id;type:uuid;index"`
	ExchangeVariantID       *uuid.UUID             `gorm:"column:exchange_variant_id;type:uuid"`
	ExchangeInventoryUnitID *uuid.UUID             `gorm:"column:exchange_inventory_unit_id;type:uuid"`
	PreTaxAmount            decimal.Decimal        `gorm:"column:pre_tax_amount;type:numeric(12,4);not null"`
	AdditionalTaxTotal      decimal.Decimal        `gorm:"column:additional_tax_total;type:numeric(12,4);not null"`
	IncludedTaxTotal        decimal.Decimal        `gorm:"column:included_tax_total;type:numeric(12,4);not null"`
	ReceptionStatus         enums.ReceptionStatus  `gorm:"column:reception_status;type:text;not null"`
	AcceptanceStatus        enums.AcceptanceStatus `gorm:"column:acceptance_status;type:text;not null"`
	AcceptanceStatusErrors  map[string]string      `gorm:"column:acceptance_status_errors;type:jsonb;serializer:json"`
	CreatedAt               time.Time              `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt               time.Time              `gorm:"column:updated_at;autoUpdateTime"`
}

func (r *ReturnItem) BeforeCreate(*gorm.DB) error {
	ensureID(&r.ID)
	if r.ReceptionStatus == "" {
		r.ReceptionStatus = enums.ReceptionAwaiting
	}
	if r.AcceptanceStatus == "" {
		r.AcceptanceStatus = enums.AcceptancePending
	}
	return nil
}

// Total is the amount owed for the item: pre-tax plus exclusive tax.
func (r ReturnItem) Total() decimal.Decimal {
	return r.PreTaxAmount.Add(r.AdditionalTaxTotal)
}

// ExchangeRequested reports whether the customer asked for a replacement.
func (r ReturnItem) ExchangeRequested() bool {
	return r.ExchangeVariantID != nil
}

// CustomerReturn records units physically received together at one location.
// Its order is derived from the items.
type CustomerReturn struct {
	ID              uuid.UUID    `gorm:"column:id;type:uuid;primaryKey"`
	Number          string       `gorm:"column:number;not null;uniqueIndex"`
	StockLocationID uuid.UUID    `gorm:"column:stock_location_id;type:uuid;not null"`
	RefundedAt      *time.Time   `gorm:"column:refunded_at"`
	ReturnItems     []ReturnItem `gorm:"foreignKey:CustomerReturnID"`
	CreatedAt       time.Time    `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt       time.Time    `gorm:"column:updated_at;autoUpdateTime"`
}

func (c *CustomerReturn) BeforeCreate(*gorm.DB) error {
	ensureID(&c.ID)
	return nil
}

// PreTaxTotal sums the items' pre-tax amounts.
func (c CustomerReturn) PreTaxTotal() decimal.Decimal {
	total := decimal.Zero
	for _, item := range c.ReturnItems {
		total = total.Add(item.PreTaxAmount)
	}
	return total
}
