package returns

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/orderflow/pkg/db/models"
	"github.com/angelmondragon/orderflow/pkg/enums"
	pkgerrors "github.com/angelmondragon/orderflow/pkg/errors"
)

func TestFireReceptionOnlyLeavesAwaiting(t *testing.T) {
	tests := []struct {
		event ReceptionEvent
		want  enums.ReceptionStatus
	}{
		{EventReceive, enums.ReceptionReceived},
		{EventCancel, enums.ReceptionCancelled},
		{EventGive, enums.ReceptionGivenToCustomer},
	}
	for _, tt := range tests {
		t.Run(string(tt.event), func(t *testing.T) {
			item := &models.ReturnItem{ReceptionStatus: enums.ReceptionAwaiting}
			require.NoError(t, FireReception(item, tt.event))
			assert.Equal(t, tt.want, item.ReceptionStatus)

			err := FireReception(item, tt.event)
			assert.True(t, pkgerrors.HasCode(err, pkgerrors.CodeStateConflict))
			assert.Equal(t, tt.want, item.ReceptionStatus, "failed transition leaves the state alone")
		})
	}
}

func TestAttemptAcceptFollowsDecision(t *testing.T) {
	tests := []struct {
		name     string
		decision Decision
		want     enums.AcceptanceStatus
	}{
		{"eligible", Decision{Eligible: true}, enums.AcceptanceAccepted},
		{"manual review", Decision{ManualReview: true, Errors: map[string]string{"pre_tax_amount_exceeds_price": "too much"}}, enums.AcceptanceManualInterventionRequired},
		{"ineligible", Decision{Errors: map[string]string{"time_since_purchase": "too late"}}, enums.AcceptanceRejected},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			item := &models.ReturnItem{AcceptanceStatus: enums.AcceptancePending}
			require.NoError(t, FireAcceptance(item, EventAttemptAccept, tt.decision))
			assert.Equal(t, tt.want, item.AcceptanceStatus)
			assert.Equal(t, tt.decision.Errors, item.AcceptanceStatusErrors)
		})
	}
}

func TestAttemptAcceptOnlyFromPending(t *testing.T) {
	item := &models.ReturnItem{AcceptanceStatus: enums.AcceptanceManualInterventionRequired}
	err := FireAcceptance(item, EventAttemptAccept, Decision{Eligible: true})
	assert.True(t, pkgerrors.HasCode(err, pkgerrors.CodeStateConflict))
}

func TestManualAcceptanceEvents(t *testing.T) {
	item := &models.ReturnItem{AcceptanceStatus: enums.AcceptanceManualInterventionRequired}
	require.NoError(t, FireAcceptance(item, EventAccept, Decision{}))
	assert.Equal(t, enums.AcceptanceAccepted, item.AcceptanceStatus)

	err := FireAcceptance(item, EventReject, Decision{})
	assert.True(t, pkgerrors.HasCode(err, pkgerrors.CodeStateConflict), "accepted items are final")

	item = &models.ReturnItem{AcceptanceStatus: enums.AcceptancePending}
	require.NoError(t, FireAcceptance(item, EventRequireManualIntervention, Decision{}))
	assert.Equal(t, enums.AcceptanceManualInterventionRequired, item.AcceptanceStatus)
	require.NoError(t, FireAcceptance(item, EventReject, Decision{}))
	assert.Equal(t, enums.AcceptanceRejected, item.AcceptanceStatus)
}

func TestAttachToReimbursementRequiresAcceptance(t *testing.T) {
	reimbursementID := uuid.New()
	for _, status := range []enums.AcceptanceStatus{
		enums.AcceptancePending,
		enums.AcceptanceRejected,
		enums.AcceptanceManualInterventionRequired,
	} {
		item := &models.ReturnItem{ID: uuid.New(), AcceptanceStatus: status}
		err := AttachToReimbursement(item, reimbursementID)
		assert.True(t, pkgerrors.HasValidationKey(err, KeyNotAccepted), status)
		assert.Nil(t, item.ReimbursementID)
	}

	item := &models.ReturnItem{ID: uuid.New(), AcceptanceStatus: enums.AcceptanceAccepted}
	require.NoError(t, AttachToReimbursement(item, reimbursementID))
	assert.Equal(t, reimbursementID, *item.ReimbursementID)
}
