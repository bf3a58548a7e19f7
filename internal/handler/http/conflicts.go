package http

import (
	"fmt"
	"net/http"
	"strconv"

	"github.com/MKhiriev/go-pos-sync/internal/utils"
	"github.com/MKhiriev/go-pos-sync/models"
)

// resolveConflict carries out an operator decision on a pending conflict.
// The decision is recorded under the operator of the bearer token.
func (h *Handler) resolveConflict(w http.ResponseWriter, r *http.Request) {
	identity, ok := utils.GetIdentityFromContext(r.Context())
	if !ok {
		writeError(w, r, errNoIdentity)
		return
	}
	conflictID, err := pathParam(r, conflictIDParam)
	if err != nil {
		writeError(w, r, err)
		return
	}

	var req models.ResolveConflictRequest
	if _, err = h.decode(r, &req, false); err != nil {
		writeError(w, r, err)
		return
	}
	req.ConflictID = conflictID

	resp, err := h.services.ConflictService.ResolveConflict(r.Context(), identity, req)
	if err != nil {
		writeError(w, r, err)
		return
	}

	_, _ = utils.WriteJSON(w, resp, http.StatusOK)
}

// listConflicts serves the review queue. Query parameters: resolution
// (default pending), device_id, entity and limit.
func (h *Handler) listConflicts(w http.ResponseWriter, r *http.Request) {
	identity, ok := utils.GetIdentityFromContext(r.Context())
	if !ok {
		writeError(w, r, errNoIdentity)
		return
	}
	q := r.URL.Query()
	limit, err := parseLimit(q.Get("limit"))
	if err != nil {
		writeError(w, r, err)
		return
	}

	conflicts, err := h.services.ConflictService.ListConflicts(r.Context(), identity, models.ConflictFilter{
		Resolution: models.Resolution(q.Get("resolution")),
		DeviceID:   q.Get("device_id"),
		Entity:     models.EntityName(q.Get("entity")),
		Limit:      limit,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}

	_, _ = utils.WriteJSON(w, conflicts, http.StatusOK)
}

func (h *Handler) listFailedMutations(w http.ResponseWriter, r *http.Request) {
	identity, ok := utils.GetIdentityFromContext(r.Context())
	if !ok {
		writeError(w, r, errNoIdentity)
		return
	}
	q := r.URL.Query()
	limit, err := parseLimit(q.Get("limit"))
	if err != nil {
		writeError(w, r, err)
		return
	}

	records, err := h.services.ConflictService.ListPermanentFailures(r.Context(), identity, q.Get("device_id"), limit)
	if err != nil {
		writeError(w, r, err)
		return
	}

	_, _ = utils.WriteJSON(w, records, http.StatusOK)
}

// parseLimit returns 0 for an empty value, leaving the default to the
// service.
func parseLimit(raw string) (uint64, error) {
	if raw == "" {
		return 0, nil
	}
	limit, err := strconv.ParseUint(raw, 10, 64)
	if err != nil || limit == 0 {
		return 0, fmt.Errorf("%w: %q", errInvalidLimit, raw)
	}
	return limit, nil
}
