package http

import (
	"net/http"

	"github.com/MKhiriev/go-pos-sync/internal/logger"
	"github.com/MKhiriev/go-pos-sync/internal/service"
)

// defaultMaxBodyBytes bounds a decoded request body.
const defaultMaxBodyBytes = 8 << 20

type Handler struct {
	services *service.Services

	// metrics serves GET /metrics. Nil disables the route.
	metrics      http.Handler
	maxBodyBytes int64

	logger *logger.Logger
}

func NewHandler(services *service.Services, metrics http.Handler, logger *logger.Logger) *Handler {
	logger.Info().Msg("http handler created")
	return &Handler{
		services:     services,
		metrics:      metrics,
		maxBodyBytes: defaultMaxBodyBytes,
		logger:       logger,
	}
}
