// Package grpc exposes the standard gRPC health service of the sync server.
// Load balancers and the device fleet manager use it to see whether the
// server can reach its store.
package grpc

import (
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"

	"github.com/MKhiriev/go-pos-sync/internal/logger"
)

// ServiceName is the health service name reported next to the overall
// ("") status.
const ServiceName = "gopossync.Sync"

// Handler is the root gRPC transport handler.
//
// The health status starts as NOT_SERVING and follows [Handler.SetHealthy],
// which the store probe calls after every ping.
type Handler struct {
	health *health.Server

	logger *logger.Logger
}

// NewHandler constructs a [Handler] whose services report NOT_SERVING until
// the first successful probe.
func NewHandler(logger *logger.Logger) *Handler {
	h := &Handler{
		health: health.NewServer(),
		logger: logger,
	}
	h.setStatus(healthpb.HealthCheckResponse_NOT_SERVING)
	logger.Debug().Msg("gRPC handler created")
	return h
}

// Register installs the health and reflection services on server.
func (h *Handler) Register(server *grpc.Server) {
	healthpb.RegisterHealthServer(server, h.health)
	reflection.Register(server)
}

// SetHealthy reports the store reachability.
func (h *Handler) SetHealthy(healthy bool) {
	status := healthpb.HealthCheckResponse_NOT_SERVING
	if healthy {
		status = healthpb.HealthCheckResponse_SERVING
	}
	h.setStatus(status)
}

// Shutdown marks every service NOT_SERVING and ignores later updates.
func (h *Handler) Shutdown() {
	h.health.Shutdown()
}

func (h *Handler) setStatus(status healthpb.HealthCheckResponse_ServingStatus) {
	h.health.SetServingStatus("", status)
	h.health.SetServingStatus(ServiceName, status)
}
