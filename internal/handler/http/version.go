package http

import (
	"net/http"

	"github.com/MKhiriev/go-pos-sync/internal/utils"
)

func (h *Handler) getServerVersion(w http.ResponseWriter, r *http.Request) {
	info, err := h.services.AppInfoService.GetAppInfo(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}

	_, _ = utils.WriteJSON(w, info, http.StatusOK)
}
