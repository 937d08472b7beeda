package models

import (
	"strings"
	"time"
)

// ProcessStatus is the 4-stage protocol workflow state.
type ProcessStatus string

const (
	StatusRequested             ProcessStatus = "REQUESTED"
	StatusSent                  ProcessStatus = "SENT"
	StatusApprovedForProduction ProcessStatus = "APPROVED_FOR_PRODUCTION"
	StatusDelivered             ProcessStatus = "DELIVERED"
)

// ProcessStatuses lists the workflow stages in order.
var ProcessStatuses = []ProcessStatus{
	StatusRequested,
	StatusSent,
	StatusApprovedForProduction,
	StatusDelivered,
}

// Stage returns the 1-based stage number, or 0 for an unknown status.
func (s ProcessStatus) Stage() int {
	for i, status := range ProcessStatuses {
		if s == status {
			return i + 1
		}
	}
	return 0
}

// Valid reports whether the status is one of the defined stages.
func (s ProcessStatus) Valid() bool {
	return s.Stage() > 0
}

// Label returns the display form used in audit trails and exports.
func (s ProcessStatus) Label() string {
	switch s {
	case StatusRequested:
		return "1. Quote Requested"
	case StatusSent:
		return "2. Quote Sent"
	case StatusApprovedForProduction:
		return "3. Quote Approved - Start Production"
	case StatusDelivered:
		return "4. Delivered to Client"
	default:
		return string(s)
	}
}

// ApprovalState is the state of one approval field.
type ApprovalState string

const (
	ApprovalPending   ApprovalState = "PENDING"
	ApprovalApproved  ApprovalState = "APPROVED"
	ApprovalConfirmed ApprovalState = "CONFIRMED"
)

// ApprovalField names one of the two approval slots on a protocol.
type ApprovalField string

const (
	ApprovalFieldBudget   ApprovalField = "budget"
	ApprovalFieldCustomer ApprovalField = "customer"
)

// Approval carries an approval state together with who set it and when.
type Approval struct {
	State ApprovalState `json:"state"`
	By    *string       `json:"by,omitempty"`
	At    *time.Time    `json:"at,omitempty"`
}

// ResponsibleUnassigned is the sentinel for protocols without a responsible party.
const ResponsibleUnassigned = "unassigned"

// Protocol is a tracked customer quote/order record.
type Protocol struct {
	ID                   string        `json:"id"`
	Code                 string        `json:"code"`
	CustomerEmail        string        `json:"customer_email"`
	Subject              string        `json:"subject"`
	Details              string        `json:"details,omitempty"`
	Responsible          string        `json:"responsible"`
	CreatedBy            string        `json:"created_by"`
	Status               ProcessStatus `json:"status"`
	BudgetApproval       Approval      `json:"budget_approval"`
	CustomerConfirmation Approval      `json:"customer_confirmation"`
	CreatedAt            time.Time     `json:"created_at"`
	UpdatedAt            time.Time     `json:"updated_at"`
	Attachments          []Attachment  `json:"attachments"`
	AuditLog             []AuditEntry  `json:"audit_log"`
}

// DualApproved reports whether both approval slots are satisfied.
func (p *Protocol) DualApproved() bool {
	return p.BudgetApproval.State == ApprovalApproved &&
		p.CustomerConfirmation.State == ApprovalConfirmed
}

// StatusFilterAll matches every workflow stage.
const StatusFilterAll = "all"

// ProtocolFilter narrows List results.
type ProtocolFilter struct {
	Status string
	Search string
}

// Matches reports whether the protocol passes the filter.
func (f ProtocolFilter) Matches(p *Protocol) bool {
	if f.Status != "" && !strings.EqualFold(f.Status, StatusFilterAll) {
		if !strings.EqualFold(f.Status, string(p.Status)) {
			return false
		}
	}
	if term := strings.ToLower(strings.TrimSpace(f.Search)); term != "" {
		if !strings.Contains(strings.ToLower(p.Code), term) &&
			!strings.Contains(strings.ToLower(p.CustomerEmail), term) &&
			!strings.Contains(strings.ToLower(p.Subject), term) {
			return false
		}
	}
	return true
}
