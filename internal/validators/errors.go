package validators

import "errors"

var (
	ErrUnsupportedType = errors.New("unsupported type for validation")
	ErrUnknownField    = errors.New("unknown field for validation")

	ErrInvalidMutationID    = errors.New("mutation id must be a UUID")
	ErrInvalidOperation     = errors.New("invalid operation")
	ErrInvalidEntity        = errors.New("invalid entity")
	ErrEmptyEntityID        = errors.New("entity id is required")
	ErrInvalidPriority      = errors.New("invalid priority")
	ErrEmptyClientTS        = errors.New("client_ts is required")
	ErrMissingBaseVersion   = errors.New("base_version is required for update and delete")
	ErrUnexpectedBase       = errors.New("base_version must be empty for create")
	ErrInvalidDependency    = errors.New("dependency id must not be empty")
	ErrInvalidChecksum      = errors.New("checksum must be 64 hex characters")
	ErrEmptyPayload         = errors.New("payload is required")
	ErrUnexpectedPayload    = errors.New("payload must be empty for delete")
	ErrMissingRequiredField = errors.New("required payload field is missing")
	ErrEmptyField           = errors.New("payload field must not be empty")
	ErrInvalidAmount        = errors.New("amount must not be negative")
	ErrInvalidQuantity      = errors.New("item quantity must be positive")
	ErrTotalMismatch        = errors.New("total does not match items")
	ErrEmptyItems           = errors.New("sale must have at least one item")

	ErrBatchTooLarge      = errors.New("batch exceeds the maximum size")
	ErrInvalidSessionType = errors.New("invalid session type")
	ErrInvalidResolution  = errors.New("resolution must be keep-local, use-server or merge")
	ErrEmptyOperatorID    = errors.New("operator_id is required")
	ErrEmptyConflictID    = errors.New("conflict id is required")
	ErrPayloadNotMerge    = errors.New("payload is only accepted for merge")
)
