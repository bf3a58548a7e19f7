package store

import (
	"context"
	"encoding/json"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MKhiriev/go-pos-sync/internal/logger"
	"github.com/MKhiriev/go-pos-sync/models"
)

func newTestOutbox(t *testing.T) OutboxStorage {
	t.Helper()
	o, err := NewOutboxStorage(context.Background(), filepath.Join(t.TempDir(), "outbox.db"), logger.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = o.Close() })
	return o
}

func TestOutbox_EnqueueAndQueued(t *testing.T) {
	o := newTestOutbox(t)
	ctx := context.Background()
	base := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)

	first := models.MutationInput{
		ID: "m-1", Operation: models.OperationCreate, Entity: models.EntityCliente, EntityID: "c-1",
		Payload: json.RawMessage(`{"nombre":"Ana"}`), Priority: models.PriorityHigh,
		ClientTS: base, Checksum: "aaa",
	}
	second := models.MutationInput{
		ID: "m-2", Operation: models.OperationUpdate, Entity: models.EntityCliente, EntityID: "c-1",
		Payload: json.RawMessage(`{"telefono":"809"}`), BaseVersion: &base, Dependencies: []string{"m-1"},
		Priority: models.PriorityMedium, ClientTS: base.Add(time.Second), Checksum: "bbb",
	}
	require.NoError(t, o.Enqueue(ctx, second))
	require.NoError(t, o.Enqueue(ctx, first))
	assert.ErrorIs(t, o.Enqueue(ctx, first), ErrOutboxMutationExists)

	queued, err := o.Queued(ctx, 0)
	require.NoError(t, err)
	require.Len(t, queued, 2)
	assert.Equal(t, "m-1", queued[0].ID)
	assert.Equal(t, "m-2", queued[1].ID)
	assert.Equal(t, []string{"m-1"}, queued[1].Dependencies)
	require.NotNil(t, queued[1].BaseVersion)
	assert.True(t, queued[1].BaseVersion.Equal(base))
	assert.JSONEq(t, `{"telefono":"809"}`, string(queued[1].Payload))

	limited, err := o.Queued(ctx, 1)
	require.NoError(t, err)
	assert.Len(t, limited, 1)
}

func TestOutbox_MarkResultsAndStatus(t *testing.T) {
	o := newTestOutbox(t)
	ctx := context.Background()

	for _, id := range []string{"m-1", "m-2", "m-3", "m-4"} {
		require.NoError(t, o.Enqueue(ctx, models.MutationInput{
			ID: id, Operation: models.OperationCreate, Entity: models.EntityVenta, EntityID: "v-" + id,
			ClientTS: time.Now(), Checksum: id,
		}))
	}

	require.NoError(t, o.MarkResults(ctx, []models.MutationResult{
		{MutationID: "m-1", Outcome: models.OutcomeApplied},
		{MutationID: "m-2", Outcome: models.OutcomeConflictPending},
		{MutationID: "m-3", Outcome: models.OutcomeError, Reason: "bad payload"},
		{MutationID: "m-4", Outcome: models.OutcomeError, Retryable: true},
		{MutationID: "m-unknown", Outcome: models.OutcomeApplied},
	}))

	require.NoError(t, o.SaveServerChanges(ctx, []models.ServerChange{
		{ID: 5, Entity: models.EntityCliente, EntityID: "c-1", Operation: models.OperationUpdate, ChangedAt: time.Now()},
		{ID: 7, Entity: models.EntityCliente, EntityID: "c-2", Operation: models.OperationCreate, ChangedAt: time.Now()},
	}))
	// an older batch never moves the cursor back
	require.NoError(t, o.SaveServerChanges(ctx, []models.ServerChange{
		{ID: 5, Entity: models.EntityCliente, EntityID: "c-1", Operation: models.OperationUpdate, ChangedAt: time.Now()},
	}))

	status, err := o.Status(ctx)
	require.NoError(t, err)
	assert.Equal(t, models.OutboxStatus{Queued: 1, Done: 1, Conflict: 1, Failed: 1, ChangeCursor: 7, Pulled: 2}, status)
}
