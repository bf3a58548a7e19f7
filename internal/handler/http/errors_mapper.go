package http

import (
	"errors"
	"net/http"

	"github.com/MKhiriev/go-pos-sync/internal/logger"
	"github.com/MKhiriev/go-pos-sync/internal/service"
	"github.com/MKhiriev/go-pos-sync/internal/store"
	"github.com/MKhiriev/go-pos-sync/internal/utils"
	"github.com/MKhiriev/go-pos-sync/internal/validators"
)

type errorStatus struct {
	err    error
	status int
}

// errorStatuses is matched in order: service errors wrap validator and store
// errors, so the more specific entries come first.
var errorStatuses = []errorStatus{
	{validators.ErrBatchTooLarge, http.StatusRequestEntityTooLarge},
	{utils.ErrRequestBodyTooLarge, http.StatusRequestEntityTooLarge},

	{service.ErrStoreUnavailable, http.StatusServiceUnavailable},
	{store.ErrStoreUnavailable, http.StatusServiceUnavailable},
	{service.ErrTokenIsExpiredOrInvalid, http.StatusUnauthorized},
	{errNoIdentity, http.StatusUnauthorized},
	{service.ErrDeviceMismatch, http.StatusForbidden},
	{service.ErrSessionNotOwned, http.StatusForbidden},
	{service.ErrOperatorRequired, http.StatusForbidden},
	{service.ErrOperatorMismatch, http.StatusForbidden},
	{service.ErrSessionClosed, http.StatusConflict},
	{service.ErrSessionAborted, http.StatusConflict},
	{service.ErrDeviceBusy, http.StatusTooManyRequests},
	{service.ErrMergeRequiresPayload, http.StatusUnprocessableEntity},
	{service.ErrInvalidDataProvided, http.StatusBadRequest},
	{errInvalidLimit, http.StatusBadRequest},
	{errEmptyPathParam, http.StatusBadRequest},
	{errInvalidBody, http.StatusBadRequest},

	{store.ErrSessionNotFound, http.StatusNotFound},
	{store.ErrConflictNotFound, http.StatusNotFound},
	{store.ErrMutationNotFound, http.StatusNotFound},
	{store.ErrConflictAlreadyResolved, http.StatusConflict},
	{store.ErrSessionCompleted, http.StatusConflict},
}

func statusFromError(err error) int {
	for _, e := range errorStatuses {
		if errors.Is(err, e.err) {
			return e.status
		}
	}
	return http.StatusInternalServerError
}

// writeError maps err to its status and writes it as an error body. The
// message of an internal error is not disclosed.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFromError(err)
	log := logger.FromRequest(r)

	message := err.Error()
	if status >= http.StatusInternalServerError {
		log.Err(err).Int("status", status).Msg("request failed")
		if status == http.StatusInternalServerError {
			message = http.StatusText(status)
		}
	} else {
		log.Debug().Err(err).Int("status", status).Msg("request rejected")
	}

	utils.WriteError(w, message, status)
}
