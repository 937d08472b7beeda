package models

import "time"

// AuditAction constants represent protocol mutations to be logged.
const (
	AuditActionCreate               = "CREATE"
	AuditActionStatusChange         = "STATUS_CHANGE"
	AuditActionBudgetApproval       = "BUDGET_APPROVAL"
	AuditActionCustomerConfirmation = "CUSTOMER_CONFIRMATION"
	AuditActionEdit                 = "EDIT"
	AuditActionDualApproval         = "DUAL_APPROVAL"
)

// AuditEntry is one immutable line of a protocol's audit trail.
type AuditEntry struct {
	Timestamp time.Time `json:"timestamp"`
	User      string    `json:"user"`
	Action    string    `json:"action"`
	Details   string    `json:"details"`
}
