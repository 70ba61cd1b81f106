package enums

import "fmt"

// LedgerEventType classifies the money movements recorded for an order.
type LedgerEventType string

const (
	LedgerEventRefundIssued         LedgerEventType = "refund_issued"
	LedgerEventReimbursementSettled LedgerEventType = "reimbursement_settled"
	LedgerEventReimbursementErrored LedgerEventType = "reimbursement_errored"
)

var validLedgerEventTypes = []LedgerEventType{
	LedgerEventRefundIssued,
	LedgerEventReimbursementSettled,
	LedgerEventReimbursementErrored,
}

func (l LedgerEventType) String() string {
	return string(l)
}

// IsValid reports whether the value is a known LedgerEventType.
func (l LedgerEventType) IsValid() bool {
	for _, candidate := range validLedgerEventTypes {
		if candidate == l {
			return true
		}
	}
	return false
}

// ParseLedgerEventType converts raw input into a LedgerEventType.
func ParseLedgerEventType(value string) (LedgerEventType, error) {
	for _, candidate := range validLedgerEventTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid ledger event type %q", value)
}
