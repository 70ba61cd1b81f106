package enums

import "fmt"

// OrderState is the coarse lifecycle of an order.
type OrderState string

const (
	OrderStateCart           OrderState = "cart"
	OrderStateComplete       OrderState = "complete"
	OrderStateCanceled       OrderState = "canceled"
	OrderStateAwaitingReturn OrderState = "awaiting_return"
	OrderStateReturned       OrderState = "returned"
)

var validOrderStates = []OrderState{
	OrderStateCart,
	OrderStateComplete,
	OrderStateCanceled,
	OrderStateAwaitingReturn,
	OrderStateReturned,
}

func (o OrderState) String() string {
	return string(o)
}

// IsValid reports whether the value is a known OrderState.
func (o OrderState) IsValid() bool {
	for _, candidate := range validOrderStates {
		if candidate == o {
			return true
		}
	}
	return false
}

// ParseOrderState converts raw input into a OrderState.
func ParseOrderState(value string) (OrderState, error) {
	for _, candidate := range validOrderStates {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid order state %q", value)
}
