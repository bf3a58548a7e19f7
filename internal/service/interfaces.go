package service

import (
	"context"
	"time"

	"github.com/MKhiriev/go-pos-sync/models"
)

//go:generate mockgen -source=interfaces.go -destination=../mock/service_mock.go -package=mock

// SyncSessionService coordinates device sync sessions. Calls of one device
// are serialized; distinct devices proceed concurrently.
type SyncSessionService interface {
	OpenSession(ctx context.Context, identity models.Identity, req models.OpenSessionRequest) (models.OpenSessionResponse, error)
	IngestBatch(ctx context.Context, identity models.Identity, sessionID string, batch models.BatchRequest) (models.BatchResult, error)
	CloseSession(ctx context.Context, identity models.Identity, sessionID string) (models.SyncSummary, error)
	GetSession(ctx context.Context, identity models.Identity, sessionID string) (models.SyncSession, error)
}

// ConflictService is the operator surface over escalated conflicts.
type ConflictService interface {
	ResolveConflict(ctx context.Context, identity models.Identity, req models.ResolveConflictRequest) (models.ResolveConflictResponse, error)
	ListConflicts(ctx context.Context, identity models.Identity, filter models.ConflictFilter) ([]models.ConflictRecord, error)
	ListPermanentFailures(ctx context.Context, identity models.Identity, deviceID string, limit uint64) ([]models.MutationRecord, error)
}

// AuthService verifies device bearer tokens.
type AuthService interface {
	ParseToken(ctx context.Context, tokenString string) (models.Identity, error)
}

// AppInfoService reports build information.
type AppInfoService interface {
	GetAppInfo(ctx context.Context) (models.AppBuildInfo, error)
}

// MaintenanceService runs the periodic jobs of the engine.
type MaintenanceService interface {
	// ReapProcessing reverts mutations stuck in processing for longer than
	// staleAfter and returns how many were reverted.
	ReapProcessing(ctx context.Context, staleAfter time.Duration) (int64, error)
	// ProbeStore pings the store and reports the result to the metrics sink.
	ProbeStore(ctx context.Context) error
}

// ClientSyncService is the device agent side of the protocol.
type ClientSyncService interface {
	// Enqueue records a local write in the outbox.
	Enqueue(ctx context.Context, input models.MutationInput) (models.MutationInput, error)
	// Push sends queued mutations in one session and records the outcomes.
	Push(ctx context.Context, sessionType models.SessionType) (PushReport, error)
	// Status reports the outbox counters.
	Status(ctx context.Context) (models.OutboxStatus, error)
}

// ClientSyncJob pushes the outbox periodically.
type ClientSyncJob interface {
	Start(ctx context.Context, interval time.Duration)
	Stop()
}
