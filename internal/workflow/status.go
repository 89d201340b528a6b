package workflow

import (
	"github.com/fleetdash/fleetdash/internal/shared"
)

// Status is the wire value stored on a quote. It belongs to exactly one of
// the two tracks below.
type Status string

// PreApprovalStatus values are set by explicit user actions before fulfillment.
type PreApprovalStatus string

const (
	StatusDraft               PreApprovalStatus = "Draft"
	StatusSent                PreApprovalStatus = "Sent"
	StatusClientApproved      PreApprovalStatus = "Client Approved"
	StatusAwaitingBankRef     PreApprovalStatus = "Awaiting Bank Ref"
	StatusAwaitingInspection  PreApprovalStatus = "Awaiting Inspection"
	StatusPreDeliveryJobCard  PreApprovalStatus = "Pre Delivery Job Card"
	StatusApplyForFinance     PreApprovalStatus = "Apply For Finance"
	StatusWaitingForStock     PreApprovalStatus = "Waiting For Stock"
	StatusLicenseAndReg       PreApprovalStatus = "License And Reg"
	StatusPreApprovalComplete PreApprovalStatus = "Completed"
)

// FulfillmentStatus values are kanban columns derived from workflow stages.
type FulfillmentStatus string

const (
	ColumnNewOrders             FulfillmentStatus = "new_orders"
	ColumnAwaitingDelivery      FulfillmentStatus = "awaiting_delivery"
	ColumnPreDeliveryInspection FulfillmentStatus = "pre_delivery_inspection"
	ColumnAwaitingBank          FulfillmentStatus = "awaiting_bank"
	ColumnCompleted             FulfillmentStatus = "completed"
)

var preApprovalColumns = map[PreApprovalStatus]FulfillmentStatus{
	StatusDraft:               ColumnNewOrders,
	StatusSent:                ColumnNewOrders,
	StatusClientApproved:      ColumnNewOrders,
	StatusAwaitingBankRef:     ColumnAwaitingBank,
	StatusApplyForFinance:     ColumnAwaitingBank,
	StatusAwaitingInspection:  ColumnPreDeliveryInspection,
	StatusPreDeliveryJobCard:  ColumnPreDeliveryInspection,
	StatusLicenseAndReg:       ColumnPreDeliveryInspection,
	StatusWaitingForStock:     ColumnAwaitingDelivery,
	StatusPreApprovalComplete: ColumnCompleted,
}

// FulfillmentColumns lists kanban columns in board order.
var FulfillmentColumns = []FulfillmentStatus{
	ColumnNewOrders,
	ColumnAwaitingDelivery,
	ColumnPreDeliveryInspection,
	ColumnAwaitingBank,
	ColumnCompleted,
}

// IsValid reports whether the value is a member of the pre-approval track.
func (s PreApprovalStatus) IsValid() bool {
	_, ok := preApprovalColumns[s]
	return ok
}

// Fulfillment maps a pre-approval status onto its kanban column.
func (s PreApprovalStatus) Fulfillment() FulfillmentStatus {
	if col, ok := preApprovalColumns[s]; ok {
		return col
	}
	return ColumnNewOrders
}

// IsValid reports whether the value is a kanban column.
func (s FulfillmentStatus) IsValid() bool {
	switch s {
	case ColumnNewOrders, ColumnAwaitingDelivery, ColumnPreDeliveryInspection, ColumnAwaitingBank, ColumnCompleted:
		return true
	}
	return false
}

// ParsePreApproval validates a pre-approval status value. Matching is case-sensitive.
func ParsePreApproval(value string) (PreApprovalStatus, error) {
	s := PreApprovalStatus(value)
	if !s.IsValid() {
		return "", &shared.InvalidStatusError{Value: value, Reason: "not a pre-approval status"}
	}
	return s, nil
}

// ParseFulfillment validates a kanban column value. Matching is case-sensitive.
func ParseFulfillment(value string) (FulfillmentStatus, error) {
	s := FulfillmentStatus(value)
	if !s.IsValid() {
		return "", &shared.InvalidStatusError{Value: value, Reason: "not a fulfillment status"}
	}
	return s, nil
}

// ParseStatus accepts a value from either track.
func ParseStatus(value string) (Status, error) {
	if PreApprovalStatus(value).IsValid() || FulfillmentStatus(value).IsValid() {
		return Status(value), nil
	}
	return "", &shared.InvalidStatusError{Value: value}
}

// PreApproval returns the pre-approval value when s belongs to that track.
func (s Status) PreApproval() (PreApprovalStatus, bool) {
	p := PreApprovalStatus(s)
	return p, p.IsValid()
}

// Fulfillment returns the kanban value when s belongs to that track.
func (s Status) Fulfillment() (FulfillmentStatus, bool) {
	f := FulfillmentStatus(s)
	return f, f.IsValid()
}

// Column resolves any status to the kanban column it is displayed in.
func (s Status) Column() FulfillmentStatus {
	if f, ok := s.Fulfillment(); ok {
		return f
	}
	p, _ := s.PreApproval()
	return p.Fulfillment()
}

// IsCompleted reports whether s sits in the completed column.
func (s Status) IsCompleted() bool {
	return s.Column() == ColumnCompleted
}
