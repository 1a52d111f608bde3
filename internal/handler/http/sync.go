package http

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/therappio/clinsync/internal/logger"
	"github.com/therappio/clinsync/internal/utils"
	"github.com/therappio/clinsync/models"
)

// push accepts a device's batch of pending changes.
//
// POST /api/sync/push
func (h *Handler) push(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := logger.FromRequest(r)

	userID, ok := utils.GetUserIDFromContext(ctx)
	if !ok {
		http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
		return
	}

	var request models.PushRequest
	if err := json.NewDecoder(r.Body).Decode(&request); err != nil {
		log.Err(err).Msg("invalid JSON was passed")
		http.Error(w, "invalid JSON was passed", http.StatusBadRequest)
		return
	}

	response, err := h.services.SyncService.Push(ctx, userID, &request)
	if err != nil {
		log.Err(err).Msg("push failed")
		h.writeError(w, err)
		return
	}

	utils.WriteJSON(w, response, http.StatusOK)
}

// pull serves foreign changes since the caller's checkpoint.
//
// GET /api/sync/pull?since=<RFC3339>&device_id=<id>&entity_types=patient,session
func (h *Handler) pull(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := logger.FromRequest(r)

	userID, ok := utils.GetUserIDFromContext(ctx)
	if !ok {
		http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
		return
	}

	sinceParam := r.URL.Query().Get("since")
	if sinceParam == "" {
		log.Warn().Msg("pull request without since parameter")
		http.Error(w, ErrMissingSince.Error(), http.StatusBadRequest)
		return
	}

	since, err := time.Parse(time.RFC3339, sinceParam)
	if err != nil {
		log.Err(err).Str("since", sinceParam).Msg("unparseable since parameter")
		http.Error(w, fmt.Sprintf("invalid `since` value %q, expected RFC3339", sinceParam), http.StatusBadRequest)
		return
	}

	entityTypes, err := parseEntityTypes(r.URL.Query().Get("entity_types"))
	if err != nil {
		log.Err(err).Msg("invalid entity_types parameter")
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	response, err := h.services.SyncService.Pull(ctx, userID, r.URL.Query().Get("device_id"), since, entityTypes)
	if err != nil {
		log.Err(err).Msg("pull failed")
		h.writeError(w, err)
		return
	}

	utils.WriteJSON(w, response, http.StatusOK)
}

// resolveConflict settles one unresolved conflict.
//
// POST /api/sync/conflicts/resolve
func (h *Handler) resolveConflict(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := logger.FromRequest(r)

	userID, ok := utils.GetUserIDFromContext(ctx)
	if !ok {
		http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
		return
	}

	var request models.ResolveRequest
	if err := json.NewDecoder(r.Body).Decode(&request); err != nil {
		log.Err(err).Msg("invalid JSON was passed")
		http.Error(w, "invalid JSON was passed", http.StatusBadRequest)
		return
	}

	conflict, err := h.services.SyncService.Resolve(ctx, userID, &request)
	if err != nil {
		log.Err(err).Str("conflict_id", request.ConflictID).Msg("conflict resolution failed")
		h.writeError(w, err)
		return
	}

	utils.WriteJSON(w, conflict, http.StatusOK)
}

// parseEntityTypes parses the optional comma-separated entity_types filter.
func parseEntityTypes(param string) ([]models.EntityType, error) {
	if param == "" {
		return nil, nil
	}

	parts := strings.Split(param, ",")
	entityTypes := make([]models.EntityType, 0, len(parts))
	for _, part := range parts {
		entityType := models.EntityType(strings.TrimSpace(part))
		if !entityType.Valid() {
			return nil, fmt.Errorf("unknown entity type %q", entityType)
		}
		entityTypes = append(entityTypes, entityType)
	}

	return entityTypes, nil
}

// writeError maps the error onto an HTTP status and writes the uniform JSON
// error body.
func (h *Handler) writeError(w http.ResponseWriter, err error) {
	status := statusFromError(err)

	message := err.Error()
	if status == http.StatusInternalServerError {
		// Internal details stay in the logs.
		message = http.StatusText(http.StatusInternalServerError)
	}

	utils.WriteJSON(w, models.ErrorResponse{Error: message}, status)
}
