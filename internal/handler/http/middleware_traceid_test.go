package http

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MKhiriev/go-pos-sync/internal/logger"
	"github.com/MKhiriev/go-pos-sync/internal/service"
)

func bufferedHandler(buf *bytes.Buffer) *Handler {
	return NewHandler(&service.Services{}, nil, &logger.Logger{Logger: zerolog.New(buf)})
}

func TestWithTraceID_UsesHeader(t *testing.T) {
	var buf bytes.Buffer
	h := bufferedHandler(&buf)

	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		logger.FromRequest(r).Info().Msg("inside")
	})

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(traceIDHeader, "trace-42")
	rec := httptest.NewRecorder()
	h.withTraceID(next).ServeHTTP(rec, req)

	assert.Equal(t, "trace-42", rec.Header().Get(traceIDHeader))

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "trace-42", line["trace_id"])
}

func TestWithTraceID_Generates(t *testing.T) {
	h := bufferedHandler(&bytes.Buffer{})

	rec := httptest.NewRecorder()
	h.withTraceID(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {})).
		ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	_, err := uuid.Parse(rec.Header().Get(traceIDHeader))
	assert.NoError(t, err)
}

func TestWithLogging(t *testing.T) {
	var buf bytes.Buffer
	h := bufferedHandler(&buf)

	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusAccepted)
		_, _ = w.Write([]byte("hello"))
	})

	rec := httptest.NewRecorder()
	h.withTraceID(h.withLogging(next)).ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/sync/sessions", nil))

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "/sync/sessions", line["uri"])
	assert.Equal(t, http.MethodPost, line["method"])
	assert.EqualValues(t, http.StatusAccepted, line["status"])
	assert.EqualValues(t, 5, line["size"])
	assert.NotEmpty(t, line["trace_id"])
}

func TestResponseWriter_WritesHeaderOnce(t *testing.T) {
	rec := httptest.NewRecorder()
	rw := &responseWriter{ResponseWriter: rec}

	_, _ = rw.Write([]byte("abc"))
	rw.WriteHeader(http.StatusTeapot)

	assert.Equal(t, http.StatusOK, rw.status)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 3, rw.size)
}
