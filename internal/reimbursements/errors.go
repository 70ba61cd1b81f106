package reimbursements

import (
	"fmt"

	"github.com/shopspring/decimal"

	pkgerrors "github.com/angelmondragon/orderflow/pkg/errors"
)

// IncompleteReimbursementError reports a reimbursement that could not be paid
// in full. The reimbursement is left errored and may be performed again.
type IncompleteReimbursementError struct {
	Number string
	Unpaid decimal.Decimal
}

func (e *IncompleteReimbursementError) Error() string {
	return fmt.Sprintf("reimbursement %s incomplete: %s unpaid", e.Number, e.Unpaid.StringFixed(2))
}

// Unwrap exposes the coded form so pkgerrors.HasCode matches
// CodeIncompleteReimbursement.
func (e *IncompleteReimbursementError) Unwrap() error {
	return pkgerrors.New(pkgerrors.CodeIncompleteReimbursement, e.Error()).WithDetails(map[string]any{
		"number": e.Number,
		"unpaid": e.Unpaid.StringFixed(2),
	})
}
