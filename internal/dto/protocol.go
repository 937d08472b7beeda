package dto

// CreateProtocolRequest carries the fields required to open a protocol.
// Email format is intentionally not validated; only presence is enforced.
type CreateProtocolRequest struct {
	CustomerEmail string `json:"customer_email" form:"customer_email" validate:"required"`
	Subject       string `json:"subject" form:"subject" validate:"required"`
	Details       string `json:"details" form:"details"`
	Responsible   string `json:"responsible" form:"responsible"`
}

// UpdateStatusRequest advances or rewinds the workflow stage manually.
type UpdateStatusRequest struct {
	Status string `json:"status" validate:"required"`
}

// UpdateApprovalRequest sets one of the two approval slots.
type UpdateApprovalRequest struct {
	Field string `json:"field" validate:"required,oneof=budget customer"`
	Value string `json:"value" validate:"required"`
}

// EditProtocolRequest applies a partial update; nil fields are left untouched.
type EditProtocolRequest struct {
	CustomerEmail *string `json:"customer_email"`
	Subject       *string `json:"subject"`
	Responsible   *string `json:"responsible"`
	Details       *string `json:"details"`
}

// ProtocolQuery filters list and export output.
type ProtocolQuery struct {
	Status string `form:"status"`
	Search string `form:"q"`
}
