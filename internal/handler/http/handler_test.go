package http

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/MKhiriev/go-pos-sync/internal/logger"
	"github.com/MKhiriev/go-pos-sync/internal/mock"
	"github.com/MKhiriev/go-pos-sync/internal/service"
	"github.com/MKhiriev/go-pos-sync/internal/utils"
	"github.com/MKhiriev/go-pos-sync/models"
)

const (
	testToken     = "caja-norte-token"
	operatorToken = "supervisora-token"
)

var (
	cajaNorte   = models.Identity{DeviceID: "caja-norte", UserID: 7}
	supervisora = models.Identity{DeviceID: "caja-central", UserID: 3, OperatorID: "supervisora-maria"}
)

type testDeps struct {
	sessions  *mock.MockSyncSessionService
	conflicts *mock.MockConflictService
	auth      *mock.MockAuthService
	info      *mock.MockAppInfoService
}

func newTestHandler(t *testing.T) (*Handler, testDeps) {
	t.Helper()
	ctrl := gomock.NewController(t)
	deps := testDeps{
		sessions:  mock.NewMockSyncSessionService(ctrl),
		conflicts: mock.NewMockConflictService(ctrl),
		auth:      mock.NewMockAuthService(ctrl),
		info:      mock.NewMockAppInfoService(ctrl),
	}
	deps.auth.EXPECT().ParseToken(gomock.Any(), testToken).Return(cajaNorte, nil).AnyTimes()
	deps.auth.EXPECT().ParseToken(gomock.Any(), operatorToken).Return(supervisora, nil).AnyTimes()
	deps.auth.EXPECT().ParseToken(gomock.Any(), gomock.Not(gomock.AnyOf(testToken, operatorToken))).Return(models.Identity{}, service.ErrTokenIsExpiredOrInvalid).AnyTimes()

	h := NewHandler(&service.Services{
		AuthService:        deps.auth,
		AppInfoService:     deps.info,
		SyncSessionService: deps.sessions,
		ConflictService:    deps.conflicts,
	}, nil, logger.Nop())
	return h, deps
}

// serve runs req through the full router. Requests are authenticated with
// the test token unless they already carry an Authorization header.
func serve(h *Handler, req *http.Request) *httptest.ResponseRecorder {
	if _, ok := req.Header["Authorization"]; !ok {
		req.Header.Set("Authorization", "Bearer "+testToken)
	}
	rec := httptest.NewRecorder()
	h.Init().ServeHTTP(rec, req)
	return rec
}

// serveAs runs req authenticated with token.
func serveAs(h *Handler, req *http.Request, token string) *httptest.ResponseRecorder {
	req.Header.Set("Authorization", "Bearer "+token)
	return serve(h, req)
}

func jsonBody(t *testing.T, v any) *bytes.Reader {
	t.Helper()
	data, err := json.Marshal(v)
	require.NoError(t, err)
	return bytes.NewReader(data)
}

func decodeInto[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

func errorMessage(t *testing.T, rec *httptest.ResponseRecorder) string {
	return decodeInto[utils.ErrorResponse](t, rec).Error
}

func TestNewHandler(t *testing.T) {
	svcs := &service.Services{}
	log := logger.Nop()
	h := NewHandler(svcs, nil, log)

	require.NotNil(t, h)
	assert.Same(t, svcs, h.services)
	assert.Same(t, log, h.logger)
	assert.Equal(t, int64(defaultMaxBodyBytes), h.maxBodyBytes)
	assert.NotSame(t, h, NewHandler(svcs, nil, log))
}

func TestInit_MetricsRoute(t *testing.T) {
	metrics := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("sync_sessions_total 1\n"))
	})
	h := NewHandler(&service.Services{}, metrics, logger.Nop())

	rec := httptest.NewRecorder()
	h.Init().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "sync_sessions_total")

	h = NewHandler(&service.Services{}, nil, logger.Nop())
	rec = httptest.NewRecorder()
	h.Init().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestInit_UnknownMethod(t *testing.T) {
	h, _ := newTestHandler(t)

	rec := serve(h, httptest.NewRequest(http.MethodDelete, "/sync/sessions/s-1/batch", nil))
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
	assert.Equal(t, http.MethodPost, rec.Header().Get("Allow"))
}

func TestGetServerVersion(t *testing.T) {
	h, deps := newTestHandler(t)
	deps.info.EXPECT().GetAppInfo(gomock.Any()).Return(models.NewAppBuildInfo("v1.4.0", "2026-10-01", "abc123"), nil)

	req := httptest.NewRequest(http.MethodGet, "/api/version", nil)
	req.Header.Set("Authorization", "")
	rec := serve(h, req)

	require.Equal(t, http.StatusOK, rec.Code)
	got := decodeInto[models.AppBuildInfo](t, rec)
	assert.Equal(t, "v1.4.0", got.Version)
	assert.Equal(t, "abc123", got.Commit)
}
