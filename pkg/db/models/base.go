package models

import "github.com/google/uuid"

func ensureID(id *uuid.UUID) {
	if *id == uuid.Nil {
		*id = uuid.New()
	}
}

// All lists every persisted model, in dependency order.
func All() []any {
	return []any{
		&Variant{},
		&StockLocation{},
		&StockItem{},
		&Order{},
		&LineItem{},
		&LineItemStockLocation{},
		&Payment{},
		&ShippingMethod{},
		&Shipment{},
		&ShippingRate{},
		&InventoryUnit{},
		&ReturnAuthorizationReason{},
		&ReturnAuthorization{},
		&CustomerReturn{},
		&Reimbursement{},
		&ReturnItem{},
		&RefundReason{},
		&Refund{},
		&LedgerEvent{},
		&OutboxEvent{},
	}
}
