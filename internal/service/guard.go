package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/MKhiriev/go-pos-sync/internal/config"
	"github.com/MKhiriev/go-pos-sync/internal/logger"
	"github.com/MKhiriev/go-pos-sync/internal/store"
	"github.com/MKhiriev/go-pos-sync/internal/utils"
	"github.com/MKhiriev/go-pos-sync/models"
)

// guard evaluates one mutation against the server state and writes its
// effect. Every method expects a context carrying the transaction of the
// mutation; reads through it lock the target row.
type guard struct {
	entities  store.EntityRepository
	changes   store.ChangeRepository
	conflicts store.ConflictRepository
	mutations store.MutationRepository
	dedup     *DedupGuard
	rules     config.Rules
	ids       utils.IDGenerator
	now       func() time.Time
}

// detection is what the conflict detector found for a mutation.
type detection struct {
	// conflict is empty when the mutation can be applied as is.
	conflict models.ConflictType

	// server is the record the mutation collides with: the target for
	// concurrent-update and stale-base-version, the natural key holder for
	// unique-constraint. Nil when the target is absent.
	server *models.EntityRecord

	// serverFields is the union of fields changed on the server after the
	// effective base.
	serverFields []string

	// idempotent marks a mutation whose effect is already in place: a create
	// this mutation performed earlier or a delete of a missing record.
	idempotent bool
	version    time.Time
}

// applyResult is the outcome of one committed evaluation.
type applyResult struct {
	record   models.MutationRecord
	outcome  models.Outcome
	conflict *models.ConflictRecord
}

// evaluate deduplicates, detects and applies or resolves rec. The caller
// persists nothing; the returned record carries the new lifecycle state.
func (g *guard) evaluate(ctx context.Context, rec models.MutationRecord, base time.Time) (applyResult, error) {
	originalID, found, err := g.dedup.Lookup(ctx, rec.DeviceID, rec.Checksum)
	if err != nil {
		return applyResult{}, fmt.Errorf("error looking up applied checksum: %w", err)
	}
	if found && originalID != rec.ID {
		rec.MarkApplied(time.Time{})
		rec.DuplicateOf = &originalID
		return applyResult{record: rec, outcome: models.OutcomeDuplicate}, nil
	}

	d, err := g.detect(ctx, rec, base)
	if err != nil {
		return applyResult{}, err
	}

	if d.idempotent {
		rec.MarkApplied(d.version)
		return applyResult{record: rec, outcome: models.OutcomeApplied}, nil
	}

	if d.conflict == "" {
		version, err := g.write(ctx, rec, d.server)
		if err != nil {
			return applyResult{}, err
		}
		rec.MarkApplied(version)
		return applyResult{record: rec, outcome: models.OutcomeApplied}, nil
	}

	return g.resolve(ctx, rec, base, d)
}

// detect classifies rec against the current state of its target record.
func (g *guard) detect(ctx context.Context, rec models.MutationRecord, base time.Time) (detection, error) {
	var d detection

	current, err := g.entities.GetEntity(ctx, rec.Entity, rec.EntityID)
	switch {
	case err == nil:
		d.server = &current
	case errors.Is(err, store.ErrEntityNotFound):
	default:
		return d, fmt.Errorf("error reading target record: %w", err)
	}
	live := d.server != nil && !d.server.Deleted

	switch rec.Operation {
	case models.OperationCreate:
		if d.server != nil {
			if d.server.CreatedByMutation == rec.ID {
				d.idempotent = true
				d.version = d.server.UpdatedAt
				return d, nil
			}
			d.conflict = models.ConflictUniqueConstraint
			return d, nil
		}
		return g.detectNaturalKey(ctx, rec, d)

	case models.OperationUpdate:
		if !live {
			d.conflict = models.ConflictDeletedOnServer
			return d, nil
		}
		updated := models.TruncateVersion(d.server.UpdatedAt)
		switch {
		case updated.After(base):
			return g.concurrentUpdate(ctx, rec, base, d)
		case base.After(updated):
			d.conflict = models.ConflictStaleBase
			return d, nil
		}
		return g.detectNaturalKey(ctx, rec, d)

	case models.OperationDelete:
		if !live {
			d.idempotent = true
			if d.server != nil {
				d.version = d.server.UpdatedAt
			}
			return d, nil
		}
		if models.TruncateVersion(d.server.UpdatedAt).After(base) {
			return g.concurrentUpdate(ctx, rec, base, d)
		}
		return d, nil
	}

	return d, fmt.Errorf("%w: unknown operation %q", ErrInvalidDataProvided, rec.Operation)
}

func (g *guard) concurrentUpdate(ctx context.Context, rec models.MutationRecord, base time.Time, d detection) (detection, error) {
	fields, err := g.changes.FieldsChangedSince(ctx, rec.Entity, rec.EntityID, base)
	if err != nil {
		return d, fmt.Errorf("error reading server changes: %w", err)
	}
	d.conflict = models.ConflictConcurrentUpdate
	d.serverFields = fields
	return d, nil
}

// detectNaturalKey flags a write whose natural key is held by another live
// record.
func (g *guard) detectNaturalKey(ctx context.Context, rec models.MutationRecord, d detection) (detection, error) {
	holder, taken, err := g.naturalKeyHolder(ctx, rec)
	if err != nil || !taken {
		return d, err
	}
	d.conflict = models.ConflictUniqueConstraint
	d.server = &holder
	return d, nil
}

func (g *guard) naturalKeyHolder(ctx context.Context, rec models.MutationRecord) (models.EntityRecord, bool, error) {
	key, ok := rec.Payload.NaturalKey()
	if !ok || key == "" {
		return models.EntityRecord{}, false, nil
	}

	holder, err := g.entities.FindByNaturalKey(ctx, rec.Entity, key)
	if errors.Is(err, store.ErrEntityNotFound) {
		return models.EntityRecord{}, false, nil
	}
	if err != nil {
		return models.EntityRecord{}, false, fmt.Errorf("error reading natural key holder: %w", err)
	}
	if holder.ID == rec.EntityID {
		return models.EntityRecord{}, false, nil
	}
	return holder, true, nil
}

// write applies rec to current, the target record or nil when absent, and
// appends the change to the feed. It returns the new version of the record.
func (g *guard) write(ctx context.Context, rec models.MutationRecord, current *models.EntityRecord) (time.Time, error) {
	switch rec.Operation {
	case models.OperationCreate, models.OperationUpdate:
		if current == nil {
			return g.insert(ctx, rec)
		}
		return g.patch(ctx, rec, *current)
	case models.OperationDelete:
		if current == nil || current.Deleted {
			return time.Time{}, nil
		}
		return g.remove(ctx, rec, *current)
	}
	return time.Time{}, fmt.Errorf("%w: unknown operation %q", ErrInvalidDataProvided, rec.Operation)
}

func (g *guard) insert(ctx context.Context, rec models.MutationRecord) (time.Time, error) {
	doc, err := patchDocument(nil, rec.Payload)
	if err != nil {
		return time.Time{}, err
	}
	key, _ := rec.Payload.NaturalKey()
	version := g.nextVersion(time.Time{})

	record := models.EntityRecord{
		Entity:            rec.Entity,
		ID:                rec.EntityID,
		NaturalKey:        key,
		Document:          doc,
		Revision:          1,
		CreatedAt:         version,
		UpdatedAt:         version,
		UpdatedByDevice:   rec.DeviceID,
		CreatedByMutation: rec.ID,
	}
	if err = g.entities.InsertEntity(ctx, record); err != nil {
		return time.Time{}, err
	}
	return version, g.appendChange(ctx, rec, record, models.OperationCreate)
}

// patch writes the fields of rec onto current and clears a soft delete.
func (g *guard) patch(ctx context.Context, rec models.MutationRecord, current models.EntityRecord) (time.Time, error) {
	doc, err := patchDocument(current.Document, rec.Payload)
	if err != nil {
		return time.Time{}, err
	}
	updated := current
	updated.Document = doc
	if key, ok := rec.Payload.NaturalKey(); ok {
		updated.NaturalKey = key
	}
	updated.Deleted = false
	updated.UpdatedAt = g.nextVersion(current.UpdatedAt)
	updated.UpdatedByDevice = rec.DeviceID

	if err = g.entities.UpdateEntity(ctx, updated, current.Revision); err != nil {
		return time.Time{}, err
	}
	return updated.UpdatedAt, g.appendChange(ctx, rec, updated, models.OperationUpdate)
}

func (g *guard) remove(ctx context.Context, rec models.MutationRecord, current models.EntityRecord) (time.Time, error) {
	updated := current
	updated.Deleted = true
	updated.UpdatedAt = g.nextVersion(current.UpdatedAt)
	updated.UpdatedByDevice = rec.DeviceID

	if err := g.entities.UpdateEntity(ctx, updated, current.Revision); err != nil {
		return time.Time{}, err
	}
	return updated.UpdatedAt, g.appendChange(ctx, rec, updated, models.OperationDelete)
}

func (g *guard) appendChange(ctx context.Context, rec models.MutationRecord, record models.EntityRecord, op models.Operation) error {
	change := models.ServerChange{
		Entity:         record.Entity,
		EntityID:       record.ID,
		Operation:      op,
		ChangedFields:  rec.Payload.Fields(),
		SourceDeviceID: rec.DeviceID,
		MutationID:     rec.ID,
		ChangedAt:      record.UpdatedAt,
	}
	if op != models.OperationDelete {
		change.Document = record.Document
	}
	if change.ChangedFields == nil {
		change.ChangedFields = []string{}
	}

	if _, err := g.changes.AppendChange(ctx, change); err != nil {
		return fmt.Errorf("error appending server change: %w", err)
	}
	logger.FromContext(ctx).Debug().
		Str("func", "*guard.appendChange").
		Str("entity", string(record.Entity)).
		Str("entity_id", record.ID).
		Str("mutation_id", rec.ID).
		Msg("server change recorded")
	return nil
}

// nextVersion returns a version strictly after prev. Versions have
// microsecond precision.
func (g *guard) nextVersion(prev time.Time) time.Time {
	v := models.TruncateVersion(g.now())
	prev = models.TruncateVersion(prev)
	if !v.After(prev) {
		v = prev.Add(time.Microsecond)
	}
	return v
}

func localSnapshot(p models.Payload) json.RawMessage {
	raw, err := p.MarshalJSON()
	if err != nil {
		return json.RawMessage("{}")
	}
	return raw
}
