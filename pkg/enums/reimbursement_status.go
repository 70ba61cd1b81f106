package enums

import "fmt"

// ReimbursementStatus is the settlement state of a reimbursement.
type ReimbursementStatus string

const (
	ReimbursementPending    ReimbursementStatus = "pending"
	ReimbursementErrored    ReimbursementStatus = "errored"
	ReimbursementReimbursed ReimbursementStatus = "reimbursed"
)

var validReimbursementStatuses = []ReimbursementStatus{
	ReimbursementPending,
	ReimbursementErrored,
	ReimbursementReimbursed,
}

func (r ReimbursementStatus) String() string {
	return string(r)
}

// IsValid reports whether the value is a known ReimbursementStatus.
func (r ReimbursementStatus) IsValid() bool {
	for _, candidate := range validReimbursementStatuses {
		if candidate == r {
			return true
		}
	}
	return false
}

// ParseReimbursementStatus converts raw input into a ReimbursementStatus.
func ParseReimbursementStatus(value string) (ReimbursementStatus, error) {
	for _, candidate := range validReimbursementStatuses {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid reimbursement status %q", value)
}
