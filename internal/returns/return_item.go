package returns

import (
	"fmt"

	"github.com/google/uuid"

	"github.com/angelmondragon/orderflow/pkg/db/models"
	"github.com/angelmondragon/orderflow/pkg/enums"
	pkgerrors "github.com/angelmondragon/orderflow/pkg/errors"
)

// ReceptionEvent moves a return item through physical custody.
type ReceptionEvent string

const (
	EventReceive ReceptionEvent = "receive"
	EventCancel  ReceptionEvent = "cancel"
	EventGive    ReceptionEvent = "give"
)

// AcceptanceEvent moves a return item through the eligibility decision.
type AcceptanceEvent string

const (
	EventAttemptAccept             AcceptanceEvent = "attempt_accept"
	EventAccept                    AcceptanceEvent = "accept"
	EventReject                    AcceptanceEvent = "reject"
	EventRequireManualIntervention AcceptanceEvent = "require_manual_intervention"
)

const KeyNotAccepted = "cannot_be_associated_unless_accepted"

type receptionTransition struct {
	from []enums.ReceptionStatus
	to   enums.ReceptionStatus
}

var receptionTransitions = map[ReceptionEvent]receptionTransition{
	EventReceive: {from: []enums.ReceptionStatus{enums.ReceptionAwaiting}, to: enums.ReceptionReceived},
	EventCancel:  {from: []enums.ReceptionStatus{enums.ReceptionAwaiting}, to: enums.ReceptionCancelled},
	EventGive:    {from: []enums.ReceptionStatus{enums.ReceptionAwaiting}, to: enums.ReceptionGivenToCustomer},
}

type acceptanceTransition struct {
	from []enums.AcceptanceStatus
	to   enums.AcceptanceStatus
}

var reviewable = []enums.AcceptanceStatus{enums.AcceptancePending, enums.AcceptanceManualInterventionRequired}

// attempt_accept has no fixed target; the validator picks it.
var acceptanceTransitions = map[AcceptanceEvent]acceptanceTransition{
	EventAttemptAccept:             {from: []enums.AcceptanceStatus{enums.AcceptancePending}},
	EventAccept:                    {from: reviewable, to: enums.AcceptanceAccepted},
	EventReject:                    {from: reviewable, to: enums.AcceptanceRejected},
	EventRequireManualIntervention: {from: []enums.AcceptanceStatus{enums.AcceptancePending}, to: enums.AcceptanceManualInterventionRequired},
}

// FireReception applies a reception event to item in memory.
func FireReception(item *models.ReturnItem, event ReceptionEvent) error {
	transition, ok := receptionTransitions[event]
	if !ok {
		return pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("unknown reception event %q", event))
	}
	if !containsReception(transition.from, item.ReceptionStatus) {
		return illegal(item, string(event), string(item.ReceptionStatus))
	}
	item.ReceptionStatus = transition.to
	return nil
}

// FireAcceptance applies an acceptance event to item in memory. For
// attempt_accept the decision picks the target state; other events ignore it.
// The decision's errors replace the item's persisted acceptance errors.
func FireAcceptance(item *models.ReturnItem, event AcceptanceEvent, decision Decision) error {
	transition, ok := acceptanceTransitions[event]
	if !ok {
		return pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("unknown acceptance event %q", event))
	}
	if !containsAcceptance(transition.from, item.AcceptanceStatus) {
		return illegal(item, string(event), string(item.AcceptanceStatus))
	}

	target := transition.to
	if event == EventAttemptAccept {
		switch {
		case decision.Eligible:
			target = enums.AcceptanceAccepted
		case decision.ManualReview:
			target = enums.AcceptanceManualInterventionRequired
		default:
			target = enums.AcceptanceRejected
		}
	}
	item.AcceptanceStatus = target
	item.AcceptanceStatusErrors = decision.Errors
	return nil
}

// AttachToReimbursement links item to a reimbursement. Only accepted items
// may be linked.
func AttachToReimbursement(item *models.ReturnItem, reimbursementID uuid.UUID) error {
	if item.AcceptanceStatus != enums.AcceptanceAccepted {
		return pkgerrors.Validation(pkgerrors.FieldError{
			Field:   "reimbursement",
			Key:     KeyNotAccepted,
			Message: fmt.Sprintf("cannot be associated unless accepted (return item %s is %s)", item.ID, item.AcceptanceStatus),
		})
	}
	item.ReimbursementID = &reimbursementID
	return nil
}

func illegal(item *models.ReturnItem, event, state string) error {
	return pkgerrors.New(pkgerrors.CodeStateConflict, fmt.Sprintf("cannot %s return item %s from %s", event, item.ID, state)).
		WithDetails(map[string]any{"event": event, "state": state})
}

func containsReception(states []enums.ReceptionStatus, s enums.ReceptionStatus) bool {
	for _, candidate := range states {
		if candidate == s {
			return true
		}
	}
	return false
}

func containsAcceptance(states []enums.AcceptanceStatus, s enums.AcceptanceStatus) bool {
	for _, candidate := range states {
		if candidate == s {
			return true
		}
	}
	return false
}
