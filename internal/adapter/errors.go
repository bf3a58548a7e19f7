package adapter

import "errors"

var (
	ErrBadRequest          = errors.New("bad request")
	ErrUnauthorized        = errors.New("device unauthorized")
	ErrForbidden           = errors.New("forbidden")
	ErrNotFound            = errors.New("not found")
	ErrSessionClosed       = errors.New("sync session is closed or aborted")
	ErrPayloadTooLarge     = errors.New("batch is too large")
	ErrUnprocessable       = errors.New("request cannot be processed")
	ErrDeviceBusy          = errors.New("another session of this device is running")
	ErrInternalServerError = errors.New("internal server error")
	ErrServerUnavailable   = errors.New("sync server unavailable")
)
