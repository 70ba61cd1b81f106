package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/angelmondragon/orderflow/pkg/enums"
)

// Reimbursement settles accepted return items of one order. Total is only ever
// recomputed from the items.
type Reimbursement struct {
	ID               uuid.UUID                 `gorm:"column:id;type:uuid;primaryKey"`
	Number           string                    `gorm:"column:number;not null;uniqueIndex"`
	OrderID          uuid.UUID                 `gorm:"column:order_id;type:uuid;not null;index"`
	CustomerReturnID *uuid.UUID                `gorm:"column:customer_return_id;type:uuid"`
	Total            decimal.Decimal           `gorm:"column:total;type:numeric(12,2);not null"`
	Status           enums.ReimbursementStatus `gorm:"column:reimbursement_status;type:text;not null"`
	ReturnItems      []ReturnItem              `gorm:"foreignKey:ReimbursementID"`
	Refunds          []Refund                  `gorm:"foreignKey:ReimbursementID"`
	CreatedAt        time.Time                 `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt        time.Time                 `gorm:"column:updated_at;autoUpdateTime"`
}

func (r *Reimbursement) BeforeCreate(*gorm.DB) error {
	ensureID(&r.ID)
	if r.Status == "" {
		r.Status = enums.ReimbursementPending
	}
	return nil
}

type RefundReason struct {
	ID        uuid.UUID `gorm:"column:id;type:uuid;primaryKey"`
	Name      string    `gorm:"column:name;not null;uniqueIndex"`
	Active    bool      `gorm:"column:active;not null"`
	Mutable   bool      `gorm:"column:mutable;not null"`
	CreatedAt time.Time `gorm:"column:created_at;autoCreateTime"`
}

func (r *RefundReason) BeforeCreate(*gorm.DB) error {
	ensureID(&r.ID)
	return nil
}

// Refund is money returned against one payment. Amount has two decimal places.
type Refund struct {
	ID               uuid.UUID       `gorm:"column:id;type:uuid;primaryKey"`
	PaymentID        uuid.UUID       `gorm:"column:payment_id;type:uuid;not null;index"`
	ReimbursementID  *uuid.UUID      `gorm:"column:reimbursement_id;type:uuid;index"`
	CustomerReturnID *uuid.UUID      `gorm:"column:customer_return_id;type:uuid"`
	Amount           decimal.Decimal `gorm:"column:amount;type:numeric(12,2);not null"`
	RefundReasonID   uuid.UUID       `gorm:"column:refund_reason_id;type:uuid;not null"`
	TransactionID    string          `gorm:"column:transaction_id"`
	CreatedAt        time.Time       `gorm:"column:created_at;autoCreateTime"`
}

func (r *Refund) BeforeCreate(*gorm.DB) error {
	ensureID(&r.ID)
	return nil
}
