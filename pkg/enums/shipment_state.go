package enums

import "fmt"

// ShipmentState tracks a shipment from allocation to dispatch.
type ShipmentState string

const (
	ShipmentPending   ShipmentState = "pending"
	ShipmentReady     ShipmentState = "ready"
	ShipmentBackorder ShipmentState = "backorder"
	ShipmentShipped   ShipmentState = "shipped"
	ShipmentCanceled  ShipmentState = "canceled"
)

var validShipmentStates = []ShipmentState{
	ShipmentPending,
	ShipmentReady,
	ShipmentBackorder,
	ShipmentShipped,
	ShipmentCanceled,
}

func (s ShipmentState) String() string {
	return string(s)
}

// IsValid reports whether the value is a known ShipmentState.
func (s ShipmentState) IsValid() bool {
	for _, candidate := range validShipmentStates {
		if candidate == s {
			return true
		}
	}
	return false
}

// ParseShipmentState converts raw input into a ShipmentState.
func ParseShipmentState(value string) (ShipmentState, error) {
	for _, candidate := range validShipmentStates {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid shipment state %q", value)
}
