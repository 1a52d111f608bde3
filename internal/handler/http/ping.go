package http

import (
	"net/http"

	"github.com/therappio/clinsync/internal/utils"
)

// ping is the unauthenticated liveness probe; it also reports the running
// application version.
//
// GET /api/ping
func (h *Handler) ping(w http.ResponseWriter, _ *http.Request) {
	utils.WriteJSON(w, map[string]string{
		"status":  "ok",
		"version": h.appCfg.Version,
	}, http.StatusOK)
}
