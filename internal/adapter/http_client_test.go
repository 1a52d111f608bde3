package adapter

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/therappio/clinsync/internal/logger"
	"github.com/therappio/clinsync/models"
)

func testContext() context.Context {
	l := zerolog.Nop()
	return l.WithContext(context.Background())
}

func newTestGateway(t *testing.T, handler http.HandlerFunc) ServerGateway {
	t.Helper()

	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	gateway, err := NewHTTPServerGateway(GatewayConfig{HTTPAddress: server.URL, RequestTimeout: time.Second}, logger.Nop())
	require.NoError(t, err)

	return gateway
}

func TestNormalizeBaseURL(t *testing.T) {
	tests := []struct {
		name    string
		raw     string
		want    string
		wantErr bool
	}{
		{"plain host gets a scheme", "localhost:8080", "http://localhost:8080", false},
		{"https is kept", "https://sync.example.com", "https://sync.example.com", false},
		{"trailing slash is trimmed", "http://sync.example.com/", "http://sync.example.com", false},
		{"empty address", "  ", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := normalizeBaseURL(tt.raw)

			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestHTTPServerGateway_Ping(t *testing.T) {
	gateway := newTestGateway(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, "/api/ping", r.URL.Path)

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]string{"status": "ok", "version": "1.2.3"})
	})

	version, err := gateway.Ping(testContext())

	require.NoError(t, err)
	assert.Equal(t, "1.2.3", version)
}

func TestHTTPServerGateway_Push(t *testing.T) {
	gateway := newTestGateway(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/sync/push", r.URL.Path)
		assert.Equal(t, "Bearer test-token", r.Header.Get("Authorization"))

		var request models.PushRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&request))
		assert.Equal(t, "device-a", request.DeviceID)

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(models.PushResponse{ProcessedChanges: len(request.Changes)})
	})
	gateway.SetToken("test-token")

	response, err := gateway.Push(testContext(), models.PushRequest{
		DeviceID: "device-a",
		Changes:  []models.ChangeRecord{{ChangeID: "chg-1"}},
	})

	require.NoError(t, err)
	assert.Equal(t, 1, response.ProcessedChanges)
}

func TestHTTPServerGateway_Push_Unauthorized(t *testing.T) {
	gateway := newTestGateway(t, func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "invalid token", http.StatusUnauthorized)
	})

	_, err := gateway.Push(testContext(), models.PushRequest{DeviceID: "device-a"})

	require.ErrorIs(t, err, ErrUnauthorized)
	assert.Contains(t, err.Error(), "invalid token")
}

func TestHTTPServerGateway_Pull_QueryParameters(t *testing.T) {
	since := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	gateway := newTestGateway(t, func(w http.ResponseWriter, r *http.Request) {
		query := r.URL.Query()
		assert.Equal(t, since.Format(time.RFC3339Nano), query.Get("since"))
		assert.Equal(t, "device-a", query.Get("device_id"))
		assert.Equal(t, "patient,session", query.Get("entity_types"))

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(models.PullResponse{TotalChanges: 2, ServerTime: since})
	})
	gateway.SetToken("test-token")

	response, err := gateway.Pull(testContext(), "device-a", since, []models.EntityType{models.EntityPatient, models.EntitySession})

	require.NoError(t, err)
	assert.Equal(t, 2, response.TotalChanges)
}

func TestHTTPServerGateway_Resolve_Conflict(t *testing.T) {
	gateway := newTestGateway(t, func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "sync conflict is already resolved", http.StatusConflict)
	})
	gateway.SetToken("test-token")

	_, err := gateway.Resolve(testContext(), models.ResolveRequest{ConflictID: "conf-1"})

	require.ErrorIs(t, err, ErrConflict)
}

func TestHTTPServerGateway_MigrationStatus(t *testing.T) {
	gateway := newTestGateway(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/migration/status", r.URL.Path)
		assert.Equal(t, "1.4.0", r.Header.Get("X-App-Version"))

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(models.MigrationStatusResponse{Eligible: true, Migrated: false})
	})
	gateway.SetToken("test-token")

	status, err := gateway.MigrationStatus(testContext(), "1.4.0")

	require.NoError(t, err)
	assert.True(t, status.Eligible)
}

func TestHTTPServerGateway_RequestMigration_RejectionIsNotAnError(t *testing.T) {
	gateway := newTestGateway(t, func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusForbidden)
		_ = json.NewEncoder(w).Encode(models.MigrationRequestResponse{
			Accepted: false,
			Reason:   "outside the rollout percentage",
		})
	})
	gateway.SetToken("test-token")

	response, err := gateway.RequestMigration(testContext(), models.MigrationRequest{}, "1.4.0")

	require.NoError(t, err)
	assert.False(t, response.Accepted)
	assert.Equal(t, "outside the rollout percentage", response.Reason)
}

func TestHTTPServerGateway_RequestMigration_Accepted(t *testing.T) {
	gateway := newTestGateway(t, func(w http.ResponseWriter, r *http.Request) {
		var request models.MigrationRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&request))
		assert.Equal(t, 10, request.Priority)

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusAccepted)
		_ = json.NewEncoder(w).Encode(models.MigrationRequestResponse{Accepted: true})
	})
	gateway.SetToken("test-token")

	response, err := gateway.RequestMigration(testContext(), models.MigrationRequest{Priority: 10}, "")

	require.NoError(t, err)
	assert.True(t, response.Accepted)
}

func TestMapHTTPError_Statuses(t *testing.T) {
	tests := []struct {
		status int
		want   error
	}{
		{http.StatusBadRequest, ErrBadRequest},
		{http.StatusUnauthorized, ErrUnauthorized},
		{http.StatusForbidden, ErrForbidden},
		{http.StatusNotFound, ErrNotFound},
		{http.StatusConflict, ErrConflict},
		{http.StatusTooManyRequests, ErrTooManyRequests},
		{http.StatusInternalServerError, ErrInternalServerError},
		{http.StatusBadGateway, ErrBadGateway},
	}

	for _, tt := range tests {
		t.Run(http.StatusText(tt.status), func(t *testing.T) {
			gateway := newTestGateway(t, func(w http.ResponseWriter, _ *http.Request) {
				http.Error(w, "nope", tt.status)
			})

			_, err := gateway.Ping(testContext())

			require.ErrorIs(t, err, tt.want)
		})
	}
}

func TestHTTPServerGateway_TokenRoundTrip(t *testing.T) {
	gateway, err := NewHTTPServerGateway(GatewayConfig{HTTPAddress: "localhost:8080"}, logger.Nop())
	require.NoError(t, err)

	assert.Empty(t, gateway.Token())

	gateway.SetToken("  spaced-token  ")
	assert.Equal(t, "spaced-token", gateway.Token())
}
