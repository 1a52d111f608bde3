package http

import (
	"errors"
	"net/http"

	"github.com/therappio/clinsync/internal/service"
	"github.com/therappio/clinsync/internal/store"
	"github.com/therappio/clinsync/models"
)

var errorStatusMap = map[error]int{
	models.ErrInvalidChange:          http.StatusBadRequest,
	service.ErrValidationNoDeviceID:  http.StatusBadRequest,
	service.ErrValidationNoUserID:    http.StatusBadRequest,
	service.ErrInvalidStrategy:       http.StatusBadRequest,
	service.ErrResolvedValueRequired: http.StatusBadRequest,
	service.ErrRolloutDisabled:       http.StatusNotFound,
	service.ErrNotEligible:           http.StatusForbidden,

	store.ErrChangeRecordNotFound:    http.StatusNotFound,
	store.ErrConflictNotFound:        http.StatusNotFound,
	store.ErrConflictAlreadyOpen:     http.StatusConflict,
	store.ErrConflictAlreadyResolved: http.StatusConflict,
	store.ErrEntityNotFound:          http.StatusNotFound,
	store.ErrEntityAlreadyExists:     http.StatusConflict,
	store.ErrMigrationAlreadyQueued:  http.StatusConflict,
	store.ErrNoBackupFound:           http.StatusNotFound,

	store.ErrBuildingSQLQuery:     http.StatusInternalServerError,
	store.ErrExecutingQuery:       http.StatusInternalServerError,
	store.ErrBeginningTransaction: http.StatusInternalServerError,
	store.ErrCommitingTransaction: http.StatusInternalServerError,
	store.ErrScanningRow:          http.StatusInternalServerError,
	store.ErrScanningRows:         http.StatusInternalServerError,
	store.ErrEncodingPayload:      http.StatusInternalServerError,
}

func statusFromError(err error) int {
	for target, status := range errorStatusMap {
		if errors.Is(err, target) {
			return status
		}
	}
	return http.StatusInternalServerError
}
