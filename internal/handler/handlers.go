package handler

import (
	nethttp "net/http"

	"github.com/MKhiriev/go-pos-sync/internal/config"
	"github.com/MKhiriev/go-pos-sync/internal/handler/grpc"
	"github.com/MKhiriev/go-pos-sync/internal/handler/http"
	"github.com/MKhiriev/go-pos-sync/internal/logger"
	"github.com/MKhiriev/go-pos-sync/internal/service"
)

type Handlers struct {
	HTTP *http.Handler
	GRPC *grpc.Handler
}

// NewHandlers creates a handler per configured address. metrics serves
// GET /metrics on the HTTP API and may be nil.
func NewHandlers(services *service.Services, metrics nethttp.Handler, cfg config.Server, logger *logger.Logger) (*Handlers, error) {
	logger.Info().Msg("creating new handlers...")

	handlers := &Handlers{}

	if cfg.HTTPAddress != "" {
		handlers.HTTP = http.NewHandler(services, metrics, logger)
	}
	if cfg.GRPCAddress != "" {
		handlers.GRPC = grpc.NewHandler(logger)
	}

	if handlers.HTTP == nil && handlers.GRPC == nil {
		return nil, ErrNoTransport
	}

	return handlers, nil
}

// SetHealthy forwards a store probe result to the gRPC health service, if
// one is served.
func (h *Handlers) SetHealthy(healthy bool) {
	if h.GRPC != nil {
		h.GRPC.SetHealthy(healthy)
	}
}
