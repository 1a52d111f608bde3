package http

import (
	"encoding/json"
	"net/http"

	"github.com/therappio/clinsync/internal/logger"
	"github.com/therappio/clinsync/internal/utils"
	"github.com/therappio/clinsync/models"
)

// appVersionHeader carries the client application version checked by the
// rollout's minimum-version gate.
const appVersionHeader = "X-App-Version"

// migrationStatus returns the caller's migration view.
//
// GET /api/migration/status
func (h *Handler) migrationStatus(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := logger.FromRequest(r)

	userID, ok := utils.GetUserIDFromContext(ctx)
	if !ok {
		http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
		return
	}
	role, _ := utils.GetRoleFromContext(ctx)

	status, err := h.services.RolloutService.Status(ctx, userID, role, r.Header.Get(appVersionHeader))
	if err != nil {
		log.Err(err).Msg("failed to load migration status")
		h.writeError(w, err)
		return
	}

	utils.WriteJSON(w, status, http.StatusOK)
}

// requestMigration queues the caller for migration.
//
// POST /api/migration/request
func (h *Handler) requestMigration(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := logger.FromRequest(r)

	userID, ok := utils.GetUserIDFromContext(ctx)
	if !ok {
		http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
		return
	}
	role, _ := utils.GetRoleFromContext(ctx)

	// The body is optional; an empty body means default priority.
	var request models.MigrationRequest
	if r.Body != nil && r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&request); err != nil {
			log.Err(err).Msg("invalid JSON was passed")
			http.Error(w, "invalid JSON was passed", http.StatusBadRequest)
			return
		}
	}

	response, err := h.services.RolloutService.RequestMigration(ctx, userID, role, r.Header.Get(appVersionHeader), request.Priority)
	if err != nil {
		log.Err(err).Msg("migration request failed")
		h.writeError(w, err)
		return
	}

	status := http.StatusAccepted
	if !response.Accepted {
		status = http.StatusForbidden
	}

	utils.WriteJSON(w, response, status)
}

// executeMigration runs a migration for the named user immediately,
// bypassing the queue. Privileged.
//
// POST /api/migration/execute
func (h *Handler) executeMigration(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := logger.FromRequest(r)

	var request models.MigrationExecuteRequest
	if err := json.NewDecoder(r.Body).Decode(&request); err != nil {
		log.Err(err).Msg("invalid JSON was passed")
		http.Error(w, "invalid JSON was passed", http.StatusBadRequest)
		return
	}

	targetID := request.UserID
	if targetID == 0 {
		if callerID, ok := utils.GetUserIDFromContext(ctx); ok {
			targetID = callerID
		}
	}

	// Same retry policy as queue-driven migrations.
	opts := models.MigrationOptions{
		DryRun:          request.DryRun,
		BackupLocalData: true,
		MaxRetries:      h.migrationCfg.MaxRetries,
		RetryDelay:      h.migrationCfg.RetryDelay,
	}

	result, err := h.services.MigrationService.MigrateUserData(ctx, targetID, opts)
	if err != nil {
		log.Err(err).Int64("target_user_id", targetID).Msg("migration execution failed")
		h.writeError(w, err)
		return
	}

	utils.WriteJSON(w, result, http.StatusOK)
}

// rollbackMigration restores the named user's entity store from the most
// recent backup. Privileged.
//
// POST /api/migration/rollback
func (h *Handler) rollbackMigration(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := logger.FromRequest(r)

	var request models.MigrationRollbackRequest
	if err := json.NewDecoder(r.Body).Decode(&request); err != nil {
		log.Err(err).Msg("invalid JSON was passed")
		http.Error(w, "invalid JSON was passed", http.StatusBadRequest)
		return
	}

	targetID := request.UserID
	if targetID == 0 {
		if callerID, ok := utils.GetUserIDFromContext(ctx); ok {
			targetID = callerID
		}
	}

	if err := h.services.MigrationService.Rollback(ctx, targetID); err != nil {
		log.Err(err).Int64("target_user_id", targetID).Msg("rollback failed")
		h.writeError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
