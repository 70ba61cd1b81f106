package reimbursements

import (
	"fmt"
	"slices"

	"github.com/angelmondragon/orderflow/pkg/db/models"
	"github.com/angelmondragon/orderflow/pkg/enums"
	pkgerrors "github.com/angelmondragon/orderflow/pkg/errors"
)

// statusTransitions lists the statuses settlement may move a reimbursement to.
// A reimbursed one is final. A retry of an errored one that still cannot pay
// in full stays errored.
var statusTransitions = map[enums.ReimbursementStatus][]enums.ReimbursementStatus{
	enums.ReimbursementPending: {enums.ReimbursementReimbursed, enums.ReimbursementErrored},
	enums.ReimbursementErrored: {enums.ReimbursementReimbursed, enums.ReimbursementErrored},
}

// checkSettleable rejects reimbursements settlement can no longer move.
func checkSettleable(r *models.Reimbursement) error {
	if _, ok := statusTransitions[r.Status]; !ok {
		return illegalStatus(r, "")
	}
	return nil
}

// transitionStatus moves r to status in memory.
func transitionStatus(r *models.Reimbursement, status enums.ReimbursementStatus) error {
	if !slices.Contains(statusTransitions[r.Status], status) {
		return illegalStatus(r, status)
	}
	r.Status = status
	return nil
}

func illegalStatus(r *models.Reimbursement, to enums.ReimbursementStatus) error {
	msg := fmt.Sprintf("reimbursement %s is already %s", r.Number, r.Status)
	if to != "" {
		msg = fmt.Sprintf("reimbursement %s cannot move from %s to %s", r.Number, r.Status, to)
	}
	return pkgerrors.New(pkgerrors.CodeStateConflict, msg).
		WithDetails(map[string]any{"event": "perform", "state": string(r.Status), "to": string(to)})
}
