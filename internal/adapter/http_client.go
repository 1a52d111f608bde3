package adapter

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/therappio/clinsync/internal/logger"
	"github.com/therappio/clinsync/models"
)

const appVersionHeader = "X-App-Version"

// GatewayConfig holds connection settings for the HTTP server gateway.
type GatewayConfig struct {
	HTTPAddress    string
	RequestTimeout time.Duration
}

type httpServerGateway struct {
	client *resty.Client

	token string

	logger *logger.Logger
}

// NewHTTPServerGateway constructs an HTTP/REST implementation of
// [ServerGateway]. It normalises and validates the base URL from
// cfg.HTTPAddress and configures the underlying resty client with the resolved
// base URL and request timeout.
//
// Returns an error if cfg.HTTPAddress is empty or cannot be parsed as a valid
// URL.
func NewHTTPServerGateway(cfg GatewayConfig, log *logger.Logger) (ServerGateway, error) {
	baseURL, err := normalizeBaseURL(cfg.HTTPAddress)
	if err != nil {
		return nil, fmt.Errorf("invalid gateway http address: %w", err)
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = 15 * time.Second
	}

	client := resty.New().
		SetBaseURL(baseURL).
		SetTimeout(cfg.RequestTimeout)

	return &httpServerGateway{client: client, logger: log}, nil
}

func normalizeBaseURL(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", fmt.Errorf("empty address")
	}

	if !strings.Contains(raw, "://") {
		raw = "http://" + raw
	}

	u, err := url.Parse(raw)
	if err != nil {
		return "", err
	}
	if u.Scheme == "" || u.Host == "" {
		return "", fmt.Errorf("address must include host and scheme")
	}

	return strings.TrimRight(u.String(), "/"), nil
}

// SetToken implements [ServerGateway]. It stores token (whitespace-trimmed)
// for use in the Authorization header of all subsequent authenticated
// requests.
func (h *httpServerGateway) SetToken(token string) {
	h.token = strings.TrimSpace(token)
}

// Token implements [ServerGateway]. It returns the bearer token currently held
// by the gateway, or an empty string if none has been set.
func (h *httpServerGateway) Token() string {
	return h.token
}

// Ping implements [ServerGateway]. It GETs /api/ping and returns the version
// string reported by the server.
func (h *httpServerGateway) Ping(ctx context.Context) (string, error) {
	resp, err := h.client.R().SetContext(ctx).Get("/api/ping")
	if err != nil {
		return "", fmt.Errorf("ping request: %w", err)
	}
	if err = mapHTTPError(resp); err != nil {
		return "", err
	}

	var body struct {
		Status  string `json:"status"`
		Version string `json:"version"`
	}
	if err = json.Unmarshal(resp.Body(), &body); err != nil {
		return "", fmt.Errorf("decode ping response: %w", err)
	}

	return body.Version, nil
}

// Push implements [ServerGateway]. It POSTs the change batch to
// POST /api/sync/push and decodes the per-change outcome. Requires a valid
// bearer token.
func (h *httpServerGateway) Push(ctx context.Context, req models.PushRequest) (*models.PushResponse, error) {
	resp, err := h.authedRequest(ctx).
		SetHeader("Content-Type", "application/json").
		SetBody(req).
		Post("/api/sync/push")
	if err != nil {
		return nil, fmt.Errorf("push request: %w", err)
	}
	if err = mapHTTPError(resp); err != nil {
		return nil, err
	}

	var pushResponse models.PushResponse
	if err = json.Unmarshal(resp.Body(), &pushResponse); err != nil {
		return nil, fmt.Errorf("decode push response: %w", err)
	}

	return &pushResponse, nil
}

// Pull implements [ServerGateway]. It GETs /api/sync/pull with the since
// checkpoint, the requesting device and the optional entity-type filter as
// query parameters. Requires a valid bearer token.
func (h *httpServerGateway) Pull(ctx context.Context, deviceID string, since time.Time, entityTypes []models.EntityType) (*models.PullResponse, error) {
	req := h.authedRequest(ctx).
		SetQueryParam("since", since.UTC().Format(time.RFC3339Nano))
	if deviceID != "" {
		req.SetQueryParam("device_id", deviceID)
	}
	if len(entityTypes) > 0 {
		names := make([]string, 0, len(entityTypes))
		for _, entityType := range entityTypes {
			names = append(names, string(entityType))
		}
		req.SetQueryParam("entity_types", strings.Join(names, ","))
	}

	resp, err := req.Get("/api/sync/pull")
	if err != nil {
		return nil, fmt.Errorf("pull request: %w", err)
	}
	if err = mapHTTPError(resp); err != nil {
		return nil, err
	}

	var pullResponse models.PullResponse
	if err = json.Unmarshal(resp.Body(), &pullResponse); err != nil {
		return nil, fmt.Errorf("decode pull response: %w", err)
	}

	return &pullResponse, nil
}

// Resolve implements [ServerGateway]. It POSTs the resolution to
// POST /api/sync/conflicts/resolve. Returns [ErrConflict] (wrapped) if the
// conflict is already resolved. Requires a valid bearer token.
func (h *httpServerGateway) Resolve(ctx context.Context, req models.ResolveRequest) (*models.SyncConflict, error) {
	resp, err := h.authedRequest(ctx).
		SetHeader("Content-Type", "application/json").
		SetBody(req).
		Post("/api/sync/conflicts/resolve")
	if err != nil {
		return nil, fmt.Errorf("resolve request: %w", err)
	}
	if err = mapHTTPError(resp); err != nil {
		return nil, err
	}

	var conflict models.SyncConflict
	if err = json.Unmarshal(resp.Body(), &conflict); err != nil {
		return nil, fmt.Errorf("decode resolve response: %w", err)
	}

	return &conflict, nil
}

// MigrationStatus implements [ServerGateway]. It GETs /api/migration/status
// with the app version in the X-App-Version header. Requires a valid bearer
// token.
func (h *httpServerGateway) MigrationStatus(ctx context.Context, appVersion string) (*models.MigrationStatusResponse, error) {
	req := h.authedRequest(ctx)
	if appVersion != "" {
		req.SetHeader(appVersionHeader, appVersion)
	}

	resp, err := req.Get("/api/migration/status")
	if err != nil {
		return nil, fmt.Errorf("migration status request: %w", err)
	}
	if err = mapHTTPError(resp); err != nil {
		return nil, err
	}

	var status models.MigrationStatusResponse
	if err = json.Unmarshal(resp.Body(), &status); err != nil {
		return nil, fmt.Errorf("decode migration status response: %w", err)
	}

	return &status, nil
}

// RequestMigration implements [ServerGateway]. It POSTs the migration request
// to POST /api/migration/request. A rejected request is not an error: the
// response carries Accepted=false and the gating reason. Requires a valid
// bearer token.
func (h *httpServerGateway) RequestMigration(ctx context.Context, req models.MigrationRequest, appVersion string) (*models.MigrationRequestResponse, error) {
	httpReq := h.authedRequest(ctx).
		SetHeader("Content-Type", "application/json").
		SetBody(req)
	if appVersion != "" {
		httpReq.SetHeader(appVersionHeader, appVersion)
	}

	resp, err := httpReq.Post("/api/migration/request")
	if err != nil {
		return nil, fmt.Errorf("request migration request: %w", err)
	}
	// 403 carries the rejection payload, not an error condition.
	if resp.StatusCode() != http.StatusForbidden {
		if err = mapHTTPError(resp); err != nil {
			return nil, err
		}
	}

	var requestResponse models.MigrationRequestResponse
	if err = json.Unmarshal(resp.Body(), &requestResponse); err != nil {
		return nil, fmt.Errorf("decode request migration response: %w", err)
	}

	return &requestResponse, nil
}

func (h *httpServerGateway) authedRequest(ctx context.Context) *resty.Request {
	req := h.client.R().SetContext(ctx)
	if token := h.Token(); token != "" {
		req.SetHeader("Authorization", "Bearer "+token)
	}
	return req
}
