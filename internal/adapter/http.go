package adapter

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/MKhiriev/go-pos-sync/internal/config"
	"github.com/MKhiriev/go-pos-sync/internal/logger"
	"github.com/MKhiriev/go-pos-sync/internal/utils"
	"github.com/MKhiriev/go-pos-sync/models"
)

type httpSyncAdapter struct {
	client *utils.HTTPClient
	logger *logger.Logger
}

// NewHTTPSyncAdapter constructs the HTTP/REST implementation of
// [SyncAdapter]. The base URL is normalized from cfg.ServerURL, every request
// carries cfg.Token as bearer token and is bounded by cfg.RequestTimeout.
//
// Returns an error if cfg.ServerURL is empty or is not a valid URL.
func NewHTTPSyncAdapter(cfg config.ClientConfig, logger *logger.Logger) (SyncAdapter, error) {
	baseURL, err := normalizeBaseURL(cfg.ServerURL)
	if err != nil {
		return nil, fmt.Errorf("invalid server url: %w", err)
	}

	client := utils.NewHTTPClient(baseURL, cfg.RequestTimeout)
	if token := strings.TrimSpace(cfg.Token); token != "" {
		client.WithToken(token)
	}
	return &httpSyncAdapter{client: client, logger: logger}, nil
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

// OpenSession implements [SyncAdapter] with POST /sync/sessions.
func (h *httpSyncAdapter) OpenSession(ctx context.Context, req models.OpenSessionRequest) (models.OpenSessionResponse, error) {
	var opened models.OpenSessionResponse

	resp, err := h.client.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetBody(req).
		SetResult(&opened).
		Post("/sync/sessions")
	if err != nil {
		return models.OpenSessionResponse{}, fmt.Errorf("open session request: %w", err)
	}
	if err = mapHTTPError(resp); err != nil {
		return models.OpenSessionResponse{}, err
	}
	if opened.SessionID == "" {
		return models.OpenSessionResponse{}, fmt.Errorf("open session: server returned no session id")
	}
	return opened, nil
}

// SendBatch implements [SyncAdapter] with POST /sync/sessions/{id}/batch.
// A failed request may be repeated safely: the server deduplicates by
// mutation id and checksum.
func (h *httpSyncAdapter) SendBatch(ctx context.Context, sessionID string, batch models.BatchRequest) (models.BatchResult, error) {
	var result models.BatchResult

	resp, err := h.client.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetPathParam("sessionID", sessionID).
		SetBody(batch).
		SetResult(&result).
		Post("/sync/sessions/{sessionID}/batch")
	if err != nil {
		return models.BatchResult{}, fmt.Errorf("send batch request: %w", err)
	}
	if err = mapHTTPError(resp); err != nil {
		return models.BatchResult{}, err
	}

	logger.FromContext(ctx).Debug().
		Str("func", "*httpSyncAdapter.SendBatch").
		Str("session_id", sessionID).
		Int("sent", len(batch.Mutations)).
		Int("results", len(result.Results)).
		Int("server_changes", len(result.ServerChanges)).
		Msg("batch acknowledged")
	return result, nil
}

// CloseSession implements [SyncAdapter] with POST /sync/sessions/{id}/close.
func (h *httpSyncAdapter) CloseSession(ctx context.Context, sessionID string) (models.SyncSummary, error) {
	var summary models.SyncSummary

	resp, err := h.client.R().
		SetContext(ctx).
		SetPathParam("sessionID", sessionID).
		SetResult(&summary).
		Post("/sync/sessions/{sessionID}/close")
	if err != nil {
		return models.SyncSummary{}, fmt.Errorf("close session request: %w", err)
	}
	if err = mapHTTPError(resp); err != nil {
		return models.SyncSummary{}, err
	}
	return summary, nil
}

// Version implements [SyncAdapter] with GET /api/version.
func (h *httpSyncAdapter) Version(ctx context.Context) (models.AppBuildInfo, error) {
	var info models.AppBuildInfo

	resp, err := h.client.R().
		SetContext(ctx).
		SetResult(&info).
		Get("/api/version")
	if err != nil {
		return models.AppBuildInfo{}, fmt.Errorf("version request: %w", err)
	}
	if err = mapHTTPError(resp); err != nil {
		return models.AppBuildInfo{}, err
	}
	return info, nil
}
