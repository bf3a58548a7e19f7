package store

import (
	"context"
	"errors"

	"github.com/MKhiriev/go-pos-sync/models"
)

//go:generate mockgen -source=client_interfaces.go -destination=../mock/client_store_mock.go -package=mock

// ErrOutboxMutationExists is returned when a mutation id is enqueued twice.
var ErrOutboxMutationExists = errors.New("mutation is already in the outbox")

// OutboxStorage is the device-local queue of mutations recorded offline and
// the cache of server changes pulled back.
type OutboxStorage interface {
	// Enqueue records a new mutation in state queued.
	Enqueue(ctx context.Context, mutation models.MutationInput) error
	// Queued returns up to limit queued mutations in client order.
	Queued(ctx context.Context, limit int) ([]models.MutationInput, error)
	// MarkResults moves each mutation to the state its outcome leads to.
	MarkResults(ctx context.Context, results []models.MutationResult) error
	// SaveServerChanges stores pulled changes and advances the local cursor.
	SaveServerChanges(ctx context.Context, changes []models.ServerChange) error
	Status(ctx context.Context) (models.OutboxStatus, error)
	Close() error
}
