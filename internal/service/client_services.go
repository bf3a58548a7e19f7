package service

import (
	"github.com/MKhiriev/go-pos-sync/internal/adapter"
	"github.com/MKhiriev/go-pos-sync/internal/config"
	"github.com/MKhiriev/go-pos-sync/internal/store"
	"github.com/MKhiriev/go-pos-sync/internal/utils"
)

// ClientServices bundles the device agent services.
type ClientServices struct {
	SyncService ClientSyncService
	SyncJob     ClientSyncJob
}

func NewClientServices(outbox store.OutboxStorage, syncAdapter adapter.SyncAdapter, cfg config.ClientConfig) *ClientServices {
	syncSvc := NewClientSyncService(outbox, syncAdapter, utils.NewUUIDGenerator(), cfg.BatchSize)

	return &ClientServices{
		SyncService: syncSvc,
		SyncJob:     NewClientSyncJob(syncSvc),
	}
}
