package enums

import "fmt"

// AcceptanceStatus is the eligibility decision for a returned unit. It evolves
// independently from ReceptionStatus.
type AcceptanceStatus string

const (
	AcceptancePending                    AcceptanceStatus = "pending"
	AcceptanceAccepted                   AcceptanceStatus = "accepted"
	AcceptanceRejected                   AcceptanceStatus = "rejected"
	AcceptanceManualInterventionRequired AcceptanceStatus = "manual_intervention_required"
)

var validAcceptanceStatuses = []AcceptanceStatus{
	AcceptancePending,
	AcceptanceAccepted,
	AcceptanceRejected,
	AcceptanceManualInterventionRequired,
}

func (a AcceptanceStatus) String() string {
	return string(a)
}

// IsValid reports whether the value is a known AcceptanceStatus.
func (a AcceptanceStatus) IsValid() bool {
	for _, candidate := range validAcceptanceStatuses {
		if candidate == a {
			return true
		}
	}
	return false
}

// ParseAcceptanceStatus converts raw input into a AcceptanceStatus.
func ParseAcceptanceStatus(value string) (AcceptanceStatus, error) {
	for _, candidate := range validAcceptanceStatuses {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid acceptance status %q", value)
}
