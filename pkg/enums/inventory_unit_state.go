package enums

import "fmt"

// InventoryUnitState is persisted on every inventory unit and relied upon by
// downstream consumers; values must not change.
type InventoryUnitState string

const (
	InventoryUnitOnHand      InventoryUnitState = "on_hand"
	InventoryUnitBackordered InventoryUnitState = "backordered"
	InventoryUnitShipped     InventoryUnitState = "shipped"
	InventoryUnitReturned    InventoryUnitState = "returned"
	InventoryUnitDelivered   InventoryUnitState = "delivered"
)

var validInventoryUnitStates = []InventoryUnitState{
	InventoryUnitOnHand,
	InventoryUnitBackordered,
	InventoryUnitShipped,
	InventoryUnitReturned,
	InventoryUnitDelivered,
}

func (i InventoryUnitState) String() string {
	return string(i)
}

// IsValid reports whether the value is a known InventoryUnitState.
func (i InventoryUnitState) IsValid() bool {
	for _, candidate := range validInventoryUnitStates {
		if candidate == i {
			return true
		}
	}
	return false
}

// ParseInventoryUnitState converts raw input into a InventoryUnitState.
func ParseInventoryUnitState(value string) (InventoryUnitState, error) {
	for _, candidate := range validInventoryUnitStates {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid inventory unit state %q", value)
}

// IsShippedOrLater reports whether the unit has left a stock location.
func (i InventoryUnitState) IsShippedOrLater() bool {
	switch i {
	case InventoryUnitShipped, InventoryUnitReturned, InventoryUnitDelivered:
		return true
	}
	return false
}
