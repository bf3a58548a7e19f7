package store

import (
	"context"
	"time"

	"github.com/MKhiriev/go-pos-sync/models"
)

// Transactor runs fn inside a store transaction carried by the context it
// passes to fn. Repositories called with that context join the transaction.
// A nested call joins the outer transaction. The transaction commits when fn
// returns nil and rolls back otherwise.
type Transactor interface {
	WithinTransaction(ctx context.Context, fn func(ctx context.Context) error) error
}

// Pinger reports whether the store is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// MutationRepository persists the durable mutation log.
type MutationRepository interface {
	// InsertMutations stores new records. Records whose id already exists
	// are left untouched.
	InsertMutations(ctx context.Context, records ...models.MutationRecord) error
	GetMutations(ctx context.Context, ids ...string) ([]models.MutationRecord, error)
	UpdateMutation(ctx context.Context, record models.MutationRecord) error
	// FindAppliedByChecksum returns the applied original of a logical
	// mutation of the device, or [ErrMutationNotFound].
	FindAppliedByChecksum(ctx context.Context, deviceID, checksum string) (models.MutationRecord, error)
	// ListCarryOver returns the device's pending and retryable records.
	ListCarryOver(ctx context.Context, deviceID string) ([]models.MutationRecord, error)
	// ListFailed returns records that will not be retried.
	ListFailed(ctx context.Context, filter FailedFilter) ([]models.MutationRecord, error)
	// RevertProcessing moves processing records back to pending.
	RevertProcessing(ctx context.Context, filter RevertFilter) (int64, error)
}

// ConflictRepository persists conflicts and their audit trail.
type ConflictRepository interface {
	InsertConflict(ctx context.Context, conflict models.ConflictRecord) error
	// GetConflict locks the row when called inside a transaction.
	GetConflict(ctx context.Context, id string) (models.ConflictRecord, error)
	PendingConflictForMutation(ctx context.Context, mutationID string) (models.ConflictRecord, error)
	ListConflicts(ctx context.Context, filter models.ConflictFilter) ([]models.ConflictRecord, error)
	// UpdateResolution resolves a pending conflict. It returns
	// [ErrConflictAlreadyResolved] when the conflict is no longer pending.
	UpdateResolution(ctx context.Context, conflict models.ConflictRecord) error
	AppendAudit(ctx context.Context, audit models.ConflictAudit) error
	ListAudit(ctx context.Context, conflictID string) ([]models.ConflictAudit, error)
}

// SessionRepository persists sync sessions.
type SessionRepository interface {
	CreateSession(ctx context.Context, session models.SyncSession) error
	GetSession(ctx context.Context, id string) (models.SyncSession, error)
	// UpdateSession returns [ErrSessionCompleted] for finalized sessions.
	UpdateSession(ctx context.Context, session models.SyncSession) error
	LastCompletedSession(ctx context.Context, deviceID string) (models.SyncSession, error)
}

// EntityRepository is the domain write boundary for governed records.
type EntityRepository interface {
	// GetEntity locks the row when called inside a transaction.
	GetEntity(ctx context.Context, entity models.EntityName, id string) (models.EntityRecord, error)
	// FindByNaturalKey returns the live record holding key.
	FindByNaturalKey(ctx context.Context, entity models.EntityName, key string) (models.EntityRecord, error)
	InsertEntity(ctx context.Context, record models.EntityRecord) error
	// UpdateEntity writes record if the stored revision still equals
	// expectedRevision and bumps the revision.
	UpdateEntity(ctx context.Context, record models.EntityRecord, expectedRevision int64) error
}

// ChangeRepository is the append-only server change feed.
type ChangeRepository interface {
	AppendChange(ctx context.Context, change models.ServerChange) (int64, error)
	// FieldsChangedSince returns the union of fields changed on the record
	// strictly after since.
	FieldsChangedSince(ctx context.Context, entity models.EntityName, id string, since time.Time) ([]string, error)
	// ChangesSince returns feed entries after filter.AfterID and the cursor
	// to resume from.
	ChangesSince(ctx context.Context, filter models.ChangeFilter) ([]models.ServerChange, int64, error)
}

// FailedFilter narrows the permanent failure list.
type FailedFilter struct {
	DeviceID string
	Limit    uint64
}

// RevertFilter selects processing records to revert. Zero fields do not
// filter.
type RevertFilter struct {
	SessionID string
	DeviceID  string
	OlderThan time.Time
}
