package enums

import "fmt"

// PaymentState tracks a captured payment.
type PaymentState string

const (
	PaymentCheckout  PaymentState = "checkout"
	PaymentPending   PaymentState = "pending"
	PaymentCompleted PaymentState = "completed"
	PaymentFailed    PaymentState = "failed"
	PaymentVoid      PaymentState = "void"
)

var validPaymentStates = []PaymentState{
	PaymentCheckout,
	PaymentPending,
	PaymentCompleted,
	PaymentFailed,
	PaymentVoid,
}

func (p PaymentState) String() string {
	return string(p)
}

// IsValid reports whether the value is a known PaymentState.
func (p PaymentState) IsValid() bool {
	for _, candidate := range validPaymentStates {
		if candidate == p {
			return true
		}
	}
	return false
}

// ParsePaymentState converts raw input into a PaymentState.
func ParsePaymentState(value string) (PaymentState, error) {
	for _, candidate := range validPaymentStates {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid payment state %q", value)
}
