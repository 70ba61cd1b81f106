package payloads

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/orderflow/pkg/enums"
)

// ShipmentsAllocatedEvent is emitted when an order's units are packed.
type ShipmentsAllocatedEvent struct {
	OrderID         uuid.UUID   `json:"order_id"`
	ShipmentNumbers []string    `json:"shipment_numbers"`
	ShipmentIDs     []uuid.UUID `json:"shipment_ids"`
	UnitCount       int         `json:"unit_count"`
}

type ShipmentShippedEvent struct {
	OrderID   uuid.UUID `json:"order_id"`
	Number    string    `json:"number"`
	ShippedAt time.Time `json:"shipped_at"`
}

// ReturnAuthorizationEvent covers authorization and cancellation.
type ReturnAuthorizationEvent struct {
	OrderID   uuid.UUID                      `json:"order_id"`
	Number    string                         `json:"number"`
	State     enums.ReturnAuthorizationState `json:"state"`
	ItemCount int                            `json:"item_count"`
}

type CustomerReturnReceivedEvent struct {
	OrderID       uuid.UUID       `json:"order_id"`
	Number        string          `json:"number"`
	ReturnItemIDs []uuid.UUID     `json:"return_item_ids"`
	PreTaxTotal   decimal.Decimal `json:"pre_tax_total"`
}

// ReimbursementSettledEvent is emitted for both reimbursed and errored outcomes.
type ReimbursementSettledEvent struct {
	OrderID uuid.UUID                 `json:"order_id"`
	Number  string                    `json:"number"`
	Status  enums.ReimbursementStatus `json:"status"`
	Total   decimal.Decimal           `json:"total"`
	Unpaid  decimal.Decimal           `json:"unpaid"`
}

type RefundIssuedEvent struct {
	OrderID         uuid.UUID       `json:"order_id"`
	PaymentID       uuid.UUID       `json:"payment_id"`
	ReimbursementID *uuid.UUID      `json:"reimbursement_id,omitempty"`
	Amount          decimal.Decimal `json:"amount"`
	TransactionID   string          `json:"transaction_id"`
}
