package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MKhiriev/go-pos-sync/models"
)

func TestMemory_TransactionRollsBack(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	boom := errors.New("boom")
	err := m.WithinTransaction(ctx, func(ctx context.Context) error {
		require.NoError(t, m.InsertEntity(ctx, models.EntityRecord{Entity: models.EntityCliente, ID: "c-1", NaturalKey: "001"}))
		_, err := m.AppendChange(ctx, models.ServerChange{Entity: models.EntityCliente, EntityID: "c-1"})
		require.NoError(t, err)
		return boom
	})
	assert.ErrorIs(t, err, boom)

	_, err = m.GetEntity(ctx, models.EntityCliente, "c-1")
	assert.ErrorIs(t, err, ErrEntityNotFound)
	changes, cursor, err := m.ChangesSince(ctx, models.ChangeFilter{})
	require.NoError(t, err)
	assert.Empty(t, changes)
	assert.Zero(t, cursor)
}

func TestMemory_NaturalKeyUniqueAmongLiveRecords(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	require.NoError(t, m.InsertEntity(ctx, models.EntityRecord{Entity: models.EntityCliente, ID: "c-1", NaturalKey: "001"}))
	assert.ErrorIs(t, m.InsertEntity(ctx, models.EntityRecord{Entity: models.EntityCliente, ID: "c-2", NaturalKey: "001"}), ErrNaturalKeyTaken)
	assert.ErrorIs(t, m.InsertEntity(ctx, models.EntityRecord{Entity: models.EntityCliente, ID: "c-1", NaturalKey: "002"}), ErrEntityAlreadyExists)

	// same key on another entity type is fine
	require.NoError(t, m.InsertEntity(ctx, models.EntityRecord{Entity: models.EntityVenta, ID: "v-1", NaturalKey: "001"}))

	// deleting frees the key
	require.NoError(t, m.UpdateEntity(ctx, models.EntityRecord{Entity: models.EntityCliente, ID: "c-1", NaturalKey: "001", Deleted: true}, 1))
	require.NoError(t, m.InsertEntity(ctx, models.EntityRecord{Entity: models.EntityCliente, ID: "c-2", NaturalKey: "001"}))

	holder, err := m.FindByNaturalKey(ctx, models.EntityCliente, "001")
	require.NoError(t, err)
	assert.Equal(t, "c-2", holder.ID)
}

func TestMemory_UpdateEntity_Revision(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	require.NoError(t, m.InsertEntity(ctx, models.EntityRecord{Entity: models.EntityCliente, ID: "c-1"}))
	require.NoError(t, m.UpdateEntity(ctx, models.EntityRecord{Entity: models.EntityCliente, ID: "c-1", Document: []byte(`{}`)}, 1))
	assert.ErrorIs(t, m.UpdateEntity(ctx, models.EntityRecord{Entity: models.EntityCliente, ID: "c-1"}, 1), ErrVersionConflict)

	rec, err := m.GetEntity(ctx, models.EntityCliente, "c-1")
	require.NoError(t, err)
	assert.Equal(t, int64(2), rec.Revision)
}

func TestMemory_AppliedChecksumUnique(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	require.NoError(t, m.InsertMutations(ctx,
		models.MutationRecord{ID: "m-1", DeviceID: "dev-1", Checksum: "abc", Status: models.MutationStatusPending},
		models.MutationRecord{ID: "m-2", DeviceID: "dev-1", Checksum: "abc", Status: models.MutationStatusPending},
	))

	require.NoError(t, m.UpdateMutation(ctx, models.MutationRecord{ID: "m-1", Status: models.MutationStatusApplied}))
	assert.ErrorIs(t, m.UpdateMutation(ctx, models.MutationRecord{ID: "m-2", Status: models.MutationStatusApplied}), ErrDuplicateApplication)

	original := "m-1"
	require.NoError(t, m.UpdateMutation(ctx, models.MutationRecord{ID: "m-2", Status: models.MutationStatusApplied, DuplicateOf: &original}))

	found, err := m.FindAppliedByChecksum(ctx, "dev-1", "abc")
	require.NoError(t, err)
	assert.Equal(t, "m-1", found.ID)
}

func TestMemory_InsertMutations_KeepsExisting(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	require.NoError(t, m.InsertMutations(ctx, models.MutationRecord{ID: "m-1", Status: models.MutationStatusApplied}))
	require.NoError(t, m.InsertMutations(ctx, models.MutationRecord{ID: "m-1", Status: models.MutationStatusPending}))

	got, err := m.GetMutations(ctx, "m-1")
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, models.MutationStatusApplied, got[0].Status)
}

func TestMemory_CarryOverAndRevert(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()
	old := time.Now().Add(-time.Hour)

	require.NoError(t, m.InsertMutations(ctx,
		models.MutationRecord{ID: "m-1", DeviceID: "dev-1", Status: models.MutationStatusProcessing, LastAttemptAt: &old},
		models.MutationRecord{ID: "m-2", DeviceID: "dev-1", Status: models.MutationStatusError,
			Error: &models.ErrorDetail{Kind: models.ErrorKindTransientStore, Retryable: true}},
		models.MutationRecord{ID: "m-3", DeviceID: "dev-1", Status: models.MutationStatusError,
			Error: &models.ErrorDetail{Kind: models.ErrorKindValidation}},
		models.MutationRecord{ID: "m-4", DeviceID: "dev-2", Status: models.MutationStatusPending},
	))

	carry, err := m.ListCarryOver(ctx, "dev-1")
	require.NoError(t, err)
	ids := make([]string, 0, len(carry))
	for _, r := range carry {
		ids = append(ids, r.ID)
	}
	assert.Equal(t, []string{"m-1", "m-2"}, ids)

	n, err := m.RevertProcessing(ctx, RevertFilter{OlderThan: time.Now().Add(-time.Minute)})
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	failed, err := m.ListFailed(ctx, FailedFilter{DeviceID: "dev-1"})
	require.NoError(t, err)
	require.Len(t, failed, 1)
	assert.Equal(t, "m-3", failed[0].ID)
}

func TestMemory_SessionsAndConflicts(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	require.NoError(t, m.CreateSession(ctx, models.SyncSession{ID: "s-1", DeviceID: "dev-1", Status: models.SessionStatusPending}))
	done := models.SyncSession{ID: "s-1", Status: models.SessionStatusCompleted}
	done.Finalize(time.Now())
	require.NoError(t, m.UpdateSession(ctx, done))
	assert.ErrorIs(t, m.UpdateSession(ctx, done), ErrSessionCompleted)
	assert.ErrorIs(t, m.UpdateSession(ctx, models.SyncSession{ID: "s-9"}), ErrSessionNotFound)

	last, err := m.LastCompletedSession(ctx, "dev-1")
	require.NoError(t, err)
	assert.Equal(t, "dev-1", last.DeviceID)

	c := models.ConflictRecord{ID: "c-1", MutationID: "m-1", Resolution: models.ResolutionPending}
	require.NoError(t, m.InsertConflict(ctx, c))
	assert.ErrorIs(t, m.InsertConflict(ctx, models.ConflictRecord{ID: "c-2", MutationID: "m-1", Resolution: models.ResolutionPending}), ErrPendingConflictExists)

	c.Resolve(models.ResolutionKeepLocal, "op", time.Now(), "")
	require.NoError(t, m.UpdateResolution(ctx, c))
	assert.ErrorIs(t, m.UpdateResolution(ctx, c), ErrConflictAlreadyResolved)

	require.NoError(t, m.AppendAudit(ctx, models.ConflictAudit{ConflictID: "c-1", Action: models.ResolutionKeepLocal, Actor: "op"}))
	trail, err := m.ListAudit(ctx, "c-1")
	require.NoError(t, err)
	require.Len(t, trail, 1)
	assert.Equal(t, int64(1), trail[0].ID)
}

func TestMemory_Unavailable(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	m.SetUnavailable(true)
	assert.ErrorIs(t, m.Ping(ctx), ErrStoreUnavailable)
	_, err := m.GetSession(ctx, "s-1")
	assert.ErrorIs(t, err, ErrStoreUnavailable)

	m.SetUnavailable(false)
	m.FailEntityWrites(1)
	assert.NoError(t, m.Ping(ctx))
	assert.ErrorIs(t, m.InsertEntity(ctx, models.EntityRecord{Entity: models.EntityVenta, ID: "v-1"}), ErrStoreUnavailable)
	assert.NoError(t, m.InsertEntity(ctx, models.EntityRecord{Entity: models.EntityVenta, ID: "v-1"}))
}

func TestMemory_ChangesSince_CursorAdvancesPastExcluded(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	for _, dev := range []string{"dev-1", "dev-2", "dev-1"} {
		_, err := m.AppendChange(ctx, models.ServerChange{SourceDeviceID: dev, ChangedAt: time.Now()})
		require.NoError(t, err)
	}

	changes, cursor, err := m.ChangesSince(ctx, models.ChangeFilter{ExcludeDevice: "dev-1", Limit: 2})
	require.NoError(t, err)
	require.Len(t, changes, 1)
	assert.Equal(t, int64(2), changes[0].ID)
	assert.Equal(t, int64(2), cursor)

	changes, cursor, err = m.ChangesSince(ctx, models.ChangeFilter{AfterID: cursor, ExcludeDevice: "dev-1"})
	require.NoError(t, err)
	assert.Empty(t, changes)
	assert.Equal(t, int64(3), cursor)
}
