package enums

import "fmt"

// OutboxAggregateType identifies the entity an outbox event refers to.
type OutboxAggregateType string

const (
	AggregateOrder               OutboxAggregateType = "order"
	AggregateShipment            OutboxAggregateType = "shipment"
	AggregateReturnAuthorization OutboxAggregateType = "return_authorization"
	AggregateCustomerReturn      OutboxAggregateType = "customer_return"
	AggregateReimbursement       OutboxAggregateType = "reimbursement"
	AggregateRefund              OutboxAggregateType = "refund"
)

var validAggregateTypes = []OutboxAggregateType{
	AggregateOrder,
	AggregateShipment,
	AggregateReturnAuthorization,
	AggregateCustomerReturn,
	AggregateReimbursement,
	AggregateRefund,
}

// IsValid reports whether the value matches a known aggregate type.
func (a OutboxAggregateType) IsValid() bool {
	for _, candidate := range validAggregateTypes {
		if candidate == a {
			return true
		}
	}
	return false
}

// ParseOutboxAggregateType converts raw input into OutboxAggregateType.
func ParseOutboxAggregateType(value string) (OutboxAggregateType, error) {
	for _, candidate := range validAggregateTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid aggregate type %q", value)
}

// OutboxEventType names the domain event carried by an outbox row.
type OutboxEventType string

const (
	EventShipmentsAllocated          OutboxEventType = "shipments_allocated"
	EventShipmentShipped             OutboxEventType = "shipment_shipped"
	EventReturnAuthorized            OutboxEventType = "return_authorized"
	EventReturnAuthorizationCanceled OutboxEventType = "return_authorization_canceled"
	EventCustomerReturnReceived      OutboxEventType = "customer_return_received"
	EventReimbursementReimbursed     OutboxEventType = "reimbursement_reimbursed"
	EventReimbursementErrored        OutboxEventType = "reimbursement_errored"
	EventRefundIssued                OutboxEventType = "refund_issued"
)

var validOutboxEventTypes = []OutboxEventType{
	EventShipmentsAllocated,
	EventShipmentShipped,
	EventReturnAuthorized,
	EventReturnAuthorizationCanceled,
	EventCustomerReturnReceived,
	EventReimbursementReimbursed,
	EventReimbursementErrored,
	EventRefundIssued,
}

// IsValid reports whether the value matches a known event type.
func (e OutboxEventType) IsValid() bool {
	for _, candidate := range validOutboxEventTypes {
		if candidate == e {
			return true
		}
	}
	return false
}

// ParseOutboxEventType converts raw input into OutboxEventType.
func ParseOutboxEventType(value string) (OutboxEventType, error) {
	for _, candidate := range validOutboxEventTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid event type %q", value)
}
