package http

import (
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/MKhiriev/go-pos-sync/internal/logger"
	"github.com/MKhiriev/go-pos-sync/internal/utils"
	"github.com/MKhiriev/go-pos-sync/models"
)

func (h *Handler) openSession(w http.ResponseWriter, r *http.Request) {
	identity, ok := utils.GetIdentityFromContext(r.Context())
	if !ok {
		writeError(w, r, errNoIdentity)
		return
	}

	var req models.OpenSessionRequest
	if _, err := h.decode(r, &req, true); err != nil {
		writeError(w, r, err)
		return
	}

	resp, err := h.services.SyncSessionService.OpenSession(r.Context(), identity, req)
	if err != nil {
		writeError(w, r, err)
		return
	}

	_, _ = utils.WriteJSON(w, resp, http.StatusCreated)
}

func (h *Handler) getSession(w http.ResponseWriter, r *http.Request) {
	identity, ok := utils.GetIdentityFromContext(r.Context())
	if !ok {
		writeError(w, r, errNoIdentity)
		return
	}
	sessionID, err := pathParam(r, sessionIDParam)
	if err != nil {
		writeError(w, r, err)
		return
	}

	session, err := h.services.SyncSessionService.GetSession(r.Context(), identity, sessionID)
	if err != nil {
		writeError(w, r, err)
		return
	}

	_, _ = utils.WriteJSON(w, session, http.StatusOK)
}

// ingestBatch answers 200 with per-mutation outcomes even when some of the
// mutations failed. Only session level failures produce an error status.
func (h *Handler) ingestBatch(w http.ResponseWriter, r *http.Request) {
	identity, ok := utils.GetIdentityFromContext(r.Context())
	if !ok {
		writeError(w, r, errNoIdentity)
		return
	}
	sessionID, err := pathParam(r, sessionIDParam)
	if err != nil {
		writeError(w, r, err)
		return
	}

	var batch models.BatchRequest
	n, err := h.decode(r, &batch, false)
	if err != nil {
		writeError(w, r, err)
		return
	}
	batch.Bytes = n

	result, err := h.services.SyncSessionService.IngestBatch(r.Context(), identity, sessionID, batch)
	if err != nil {
		writeError(w, r, err)
		return
	}

	logger.FromRequest(r).Debug().
		Str("func", "*Handler.ingestBatch").
		Str("session_id", sessionID).
		Int("received", result.Summary.Received).
		Int("applied", result.Summary.Applied).
		Msg("batch ingested")

	_, _ = utils.WriteJSON(w, result, http.StatusOK)
}

func (h *Handler) closeSession(w http.ResponseWriter, r *http.Request) {
	identity, ok := utils.GetIdentityFromContext(r.Context())
	if !ok {
		writeError(w, r, errNoIdentity)
		return
	}
	sessionID, err := pathParam(r, sessionIDParam)
	if err != nil {
		writeError(w, r, err)
		return
	}

	summary, err := h.services.SyncSessionService.CloseSession(r.Context(), identity, sessionID)
	if err != nil {
		writeError(w, r, err)
		return
	}

	_, _ = utils.WriteJSON(w, summary, http.StatusOK)
}

// decode reads the JSON body of r into v and returns the number of bytes
// read. With allowEmpty an absent body leaves v untouched.
func (h *Handler) decode(r *http.Request, v any, allowEmpty bool) (int64, error) {
	if r.Body == nil || r.Body == http.NoBody {
		if allowEmpty {
			return 0, nil
		}
		return 0, fmt.Errorf("%w: request body is required", errInvalidBody)
	}

	n, err := utils.DecodeJSON(r.Body, v, h.maxBodyBytes)
	switch {
	case err == nil:
		return n, nil
	case errors.Is(err, utils.ErrRequestBodyTooLarge):
		return n, err
	case allowEmpty && n == 0 && errors.Is(err, io.EOF):
		return 0, nil
	}
	return n, fmt.Errorf("%w: %w", errInvalidBody, err)
}

func pathParam(r *http.Request, name string) (string, error) {
	value := chi.URLParam(r, name)
	if value == "" {
		return "", fmt.Errorf("%w: %s", errEmptyPathParam, name)
	}
	return value, nil
}
