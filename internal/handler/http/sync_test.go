package http

import (
	"bytes"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/MKhiriev/go-pos-sync/internal/service"
	"github.com/MKhiriev/go-pos-sync/internal/store"
	"github.com/MKhiriev/go-pos-sync/internal/validators"
	"github.com/MKhiriev/go-pos-sync/models"
)

func TestOpenSession(t *testing.T) {
	started := time.Date(2026, 10, 1, 9, 0, 0, 0, time.UTC)

	tests := []struct {
		name string
		body string
		want models.OpenSessionRequest
	}{
		{"empty body", "", models.OpenSessionRequest{}},
		{"typed", `{"type":"full"}`, models.OpenSessionRequest{Type: models.SessionTypeFull}},
		{"with device", `{"device_id":"caja-norte","type":"initial"}`,
			models.OpenSessionRequest{DeviceID: "caja-norte", Type: models.SessionTypeInitial}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h, deps := newTestHandler(t)
			deps.sessions.EXPECT().OpenSession(gomock.Any(), cajaNorte, tt.want).
				Return(models.OpenSessionResponse{SessionID: "s-1", Type: models.SessionTypeIncremental, StartedAt: started}, nil)

			rec := serve(h, httptest.NewRequest(http.MethodPost, "/sync/sessions", strings.NewReader(tt.body)))

			require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
			assert.Equal(t, "s-1", decodeInto[models.OpenSessionResponse](t, rec).SessionID)
		})
	}
}

func TestOpenSession_Errors(t *testing.T) {
	tests := []struct {
		name   string
		body   string
		err    error
		status int
	}{
		{"unknown field", `{"kind":"full"}`, nil, http.StatusBadRequest},
		{"malformed", `{"type":`, nil, http.StatusBadRequest},
		{"device mismatch", `{"device_id":"caja-sur"}`, service.ErrDeviceMismatch, http.StatusForbidden},
		{"invalid type", `{"type":"weekly"}`,
			fmt.Errorf("%w: %w", service.ErrInvalidDataProvided, validators.ErrInvalidSessionType), http.StatusBadRequest},
		{"store down", `{}`, fmt.Errorf("%w: ping", service.ErrStoreUnavailable), http.StatusServiceUnavailable},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h, deps := newTestHandler(t)
			if tt.err != nil {
				deps.sessions.EXPECT().OpenSession(gomock.Any(), cajaNorte, gomock.Any()).Return(models.OpenSessionResponse{}, tt.err)
			}

			rec := serve(h, httptest.NewRequest(http.MethodPost, "/sync/sessions", strings.NewReader(tt.body)))
			assert.Equal(t, tt.status, rec.Code, rec.Body.String())
			assert.NotEmpty(t, errorMessage(t, rec))
		})
	}
}

func TestIngestBatch(t *testing.T) {
	h, deps := newTestHandler(t)

	body := `{"mutations":[{"id":"00000000-0000-4000-8000-000000000001","operation":"create","entity":"cliente",` +
		`"entity_id":"cliente-7","payload":{"nombre":"Ana Pérez","cedula_rnc":"001-0000007-1"},"client_ts":"2026-10-01T08:00:00Z"}]}`

	deps.sessions.EXPECT().IngestBatch(gomock.Any(), cajaNorte, "s-1", gomock.Any()).
		DoAndReturn(func(_ any, _ models.Identity, _ string, batch models.BatchRequest) (models.BatchResult, error) {
			require.Len(t, batch.Mutations, 1)
			assert.Equal(t, models.EntityCliente, batch.Mutations[0].Entity)
			assert.Equal(t, int64(len(body)), batch.Bytes)
			return models.BatchResult{
				SessionID: "s-1",
				Results: []models.MutationResult{
					{MutationID: batch.Mutations[0].ID, Outcome: models.OutcomeApplied},
				},
				ServerChanges: []models.ServerChange{},
				Summary:       models.BatchSummary{Received: 1, Applied: 1},
			}, nil
		})

	rec := serve(h, httptest.NewRequest(http.MethodPost, "/sync/sessions/s-1/batch", strings.NewReader(body)))

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	got := decodeInto[models.BatchResult](t, rec)
	require.Len(t, got.Results, 1)
	assert.Equal(t, models.OutcomeApplied, got.Results[0].Outcome)
}

func TestIngestBatch_Errors(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
	}{
		{"not found", store.ErrSessionNotFound, http.StatusNotFound},
		{"not owned", service.ErrSessionNotOwned, http.StatusForbidden},
		{"closed", service.ErrSessionClosed, http.StatusConflict},
		{"aborted", service.ErrSessionAborted, http.StatusConflict},
		{"busy", service.ErrDeviceBusy, http.StatusTooManyRequests},
		{"too large", fmt.Errorf("%w: %w", service.ErrInvalidDataProvided, validators.ErrBatchTooLarge), http.StatusRequestEntityTooLarge},
		{"store down", fmt.Errorf("%w: %w", service.ErrStoreUnavailable, store.ErrStoreUnavailable), http.StatusServiceUnavailable},
		{"internal", assert.AnError, http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h, deps := newTestHandler(t)
			deps.sessions.EXPECT().IngestBatch(gomock.Any(), cajaNorte, "s-1", gomock.Any()).Return(models.BatchResult{}, tt.err)

			rec := serve(h, httptest.NewRequest(http.MethodPost, "/sync/sessions/s-1/batch", strings.NewReader(`{"mutations":[]}`)))
			assert.Equal(t, tt.status, rec.Code)
		})
	}
}

func TestIngestBatch_InternalErrorIsNotDisclosed(t *testing.T) {
	h, deps := newTestHandler(t)
	deps.sessions.EXPECT().IngestBatch(gomock.Any(), cajaNorte, "s-1", gomock.Any()).
		Return(models.BatchResult{}, fmt.Errorf("pq: password authentication failed"))

	rec := serve(h, httptest.NewRequest(http.MethodPost, "/sync/sessions/s-1/batch", strings.NewReader(`{"mutations":[]}`)))
	require.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, http.StatusText(http.StatusInternalServerError), errorMessage(t, rec))
}

func TestIngestBatch_BodyRequired(t *testing.T) {
	h, _ := newTestHandler(t)

	rec := serve(h, httptest.NewRequest(http.MethodPost, "/sync/sessions/s-1/batch", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestIngestBatch_BodyTooLarge(t *testing.T) {
	h, _ := newTestHandler(t)
	h.maxBodyBytes = 16

	rec := serve(h, httptest.NewRequest(http.MethodPost, "/sync/sessions/s-1/batch",
		bytes.NewReader([]byte(`{"mutations":[],"padding":"xxxxxxxxxxxxxxxx"}`))))
	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
}

func TestGetSession(t *testing.T) {
	h, deps := newTestHandler(t)
	deps.sessions.EXPECT().GetSession(gomock.Any(), cajaNorte, "s-1").Return(models.SyncSession{
		ID:       "s-1",
		DeviceID: cajaNorte.DeviceID,
		Status:   models.SessionStatusPending,
	}, nil)

	rec := serve(h, httptest.NewRequest(http.MethodGet, "/sync/sessions/s-1", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, models.SessionStatusPending, decodeInto[models.SyncSession](t, rec).Status)
}

func TestCloseSession(t *testing.T) {
	h, deps := newTestHandler(t)
	deps.sessions.EXPECT().CloseSession(gomock.Any(), cajaNorte, "s-1").Return(models.SyncSummary{
		SessionID:       "s-1",
		Status:          models.SessionStatusCompleted,
		RecordsReceived: 3,
		SuccessRatio:    1,
		Errors:          []models.SessionError{},
	}, nil)

	rec := serve(h, httptest.NewRequest(http.MethodPost, "/sync/sessions/s-1/close", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	got := decodeInto[models.SyncSummary](t, rec)
	assert.Equal(t, models.SessionStatusCompleted, got.Status)
	assert.Equal(t, 3, got.RecordsReceived)
}

func TestSyncRoutes_RequireToken(t *testing.T) {
	tests := []struct {
		name   string
		header string
	}{
		{"missing", ""},
		{"no scheme", testToken},
		{"empty token", "Bearer "},
		{"wrong token", "Bearer forged"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h, _ := newTestHandler(t)
			req := httptest.NewRequest(http.MethodPost, "/sync/sessions", nil)
			req.Header.Set("Authorization", tt.header)

			rec := serve(h, req)
			assert.Equal(t, http.StatusUnauthorized, rec.Code)
		})
	}
}
