package models

// Identity is the caller resolved from the bearer token.
type Identity struct {
	DeviceID string `json:"device_id"`
	UserID   int64  `json:"user_id"`

	// OperatorID is set for supervisor tokens that may review conflicts.
	OperatorID string `json:"operator_id,omitempty"`
}

// Operator reports whether the caller may review and resolve conflicts.
func (i Identity) Operator() bool {
	return i.OperatorID != ""
}
