package enums

import "fmt"

// ReceptionStatus is the physical-custody state of a returned unit.
type ReceptionStatus string

const (
	ReceptionAwaiting        ReceptionStatus = "awaiting"
	ReceptionReceived        ReceptionStatus = "received"
	ReceptionCancelled       ReceptionStatus = "cancelled"
	ReceptionGivenToCustomer ReceptionStatus = "given_to_customer"
)

var validReceptionStatuses = []ReceptionStatus{
	ReceptionAwaiting,
	ReceptionReceived,
	ReceptionCancelled,
	ReceptionGivenToCustomer,
}

func (r ReceptionStatus) String() string {
	return string(r)
}

// IsValid reports whether the value is a known ReceptionStatus.
func (r ReceptionStatus) IsValid() bool {
	for _, candidate := range validReceptionStatuses {
		if candidate == r {
			return true
		}
	}
	return false
}

// ParseReceptionStatus converts raw input into a ReceptionStatus.
func ParseReceptionStatus(value string) (ReceptionStatus, error) {
	for _, candidate := range validReceptionStatuses {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid reception status %q", value)
}
