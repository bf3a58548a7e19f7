package service

import (
	"context"

	"github.com/MKhiriev/go-pos-sync/internal/config"
	"github.com/MKhiriev/go-pos-sync/internal/logger"
	"github.com/MKhiriev/go-pos-sync/internal/store"
)

// Services bundles the server side services.
type Services struct {
	AuthService        AuthService
	AppInfoService     AppInfoService
	SyncSessionService SyncSessionService
	ConflictService    ConflictService
	MaintenanceService MaintenanceService

	// Dedup is the hot cache of applied checksums. Its eviction loop is run
	// by the server.
	Dedup *DedupGuard
}

// NewServices wires the services over storages. The session, conflict and
// maintenance services share one engine so they see the same dedup cache
// and per-device locks.
func NewServices(storages *store.Storages, cfg config.StructuredConfig, rules config.Rules, info AppInfoService, opts EngineOptions, logger *logger.Logger) *Services {
	e := newEngine(storages, cfg.Sync, rules, opts, logger)
	return &Services{
		AuthService:        NewAuthService(cfg.App, logger),
		AppInfoService:     info,
		SyncSessionService: newSyncSessionService(e),
		ConflictService:    newConflictService(e),
		MaintenanceService: newMaintenanceService(e),
		Dedup:              e.dedup,
	}
}

// RunDedup evicts expired dedup entries until ctx is done.
func (s *Services) RunDedup(ctx context.Context) error {
	return s.Dedup.Run(ctx)
}
