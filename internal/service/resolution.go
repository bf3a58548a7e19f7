package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/MKhiriev/go-pos-sync/internal/logger"
	"github.com/MKhiriev/go-pos-sync/internal/store"
	"github.com/MKhiriev/go-pos-sync/models"
)

// autoResolution picks the decision the engine takes on its own. Anything it
// cannot decide safely stays pending for an operator. It may reclassify d
// when a merge would violate the natural key.
func (g *guard) autoResolution(ctx context.Context, rec models.MutationRecord, d *detection) (models.Resolution, error) {
	switch d.conflict {
	case models.ConflictDeletedOnServer:
		if rec.Operation == models.OperationUpdate {
			return models.ResolutionUseServer, nil
		}

	case models.ConflictConcurrentUpdate:
		switch rec.Operation {
		case models.OperationUpdate:
			if !g.rules.MergeDisjoint(rec.Entity) || len(d.serverFields) == 0 ||
				!disjoint(rec.Payload.Fields(), d.serverFields) {
				return models.ResolutionPending, nil
			}
			holder, taken, err := g.naturalKeyHolder(ctx, rec)
			if err != nil {
				return "", err
			}
			if taken {
				d.conflict = models.ConflictUniqueConstraint
				d.server = &holder
				d.serverFields = nil
				return models.ResolutionPending, nil
			}
			return models.ResolutionMerge, nil

		case models.OperationDelete:
			if g.rules.DeleteWins(rec.Entity) {
				return models.ResolutionKeepLocal, nil
			}
		}
	}
	return models.ResolutionPending, nil
}

// resolve records the conflict d of rec and carries out the automatic
// decision, if any.
func (g *guard) resolve(ctx context.Context, rec models.MutationRecord, base time.Time, d detection) (applyResult, error) {
	log := logger.FromContext(ctx)

	resolution, err := g.autoResolution(ctx, rec, &d)
	if err != nil {
		return applyResult{}, err
	}

	conflict := g.newConflict(rec, d)
	res := applyResult{record: rec, conflict: &conflict}

	switch resolution {
	case models.ResolutionUseServer:
		res.record.MarkApplied(serverVersion(d.server))
		res.outcome = models.OutcomeDiscarded
	case models.ResolutionMerge, models.ResolutionKeepLocal:
		version, err := g.write(ctx, rec, d.server)
		if err != nil {
			return applyResult{}, err
		}
		res.record.MarkApplied(version)
		res.outcome = models.OutcomeApplied
	default:
		res.record.Status = models.MutationStatusConflict
		res.record.Error = nil
		res.outcome = models.OutcomeConflictPending
	}

	if resolution != models.ResolutionPending {
		conflict.Resolve(resolution, models.ResolvedByEngine, g.now().UTC(), autoNote(d, base))
	}
	if err = g.conflicts.InsertConflict(ctx, conflict); err != nil {
		return applyResult{}, fmt.Errorf("error recording conflict: %w", err)
	}
	if resolution != models.ResolutionPending {
		if err = g.audit(ctx, conflict, models.ResolvedByEngine); err != nil {
			return applyResult{}, err
		}
	}

	log.Info().
		Str("func", "*guard.resolve").
		Str("mutation_id", rec.ID).
		Str("conflict_id", conflict.ID).
		Str("conflict_type", string(conflict.Type)).
		Str("resolution", string(resolution)).
		Msg("conflict detected")
	return res, nil
}

func (g *guard) newConflict(rec models.MutationRecord, d detection) models.ConflictRecord {
	conflict := models.ConflictRecord{
		ID:            g.ids.Generate(),
		MutationID:    rec.ID,
		DeviceID:      rec.DeviceID,
		Entity:        rec.Entity,
		EntityID:      rec.EntityID,
		Type:          d.conflict,
		LocalSnapshot: localSnapshot(rec.Payload),
		LocalFields:   rec.Payload.Fields(),
		ServerFields:  d.serverFields,
		Resolution:    models.ResolutionPending,
		CreatedAt:     g.now().UTC(),
	}
	if d.server != nil {
		conflict.ServerSnapshot = d.server.Document
	}
	return conflict
}

func (g *guard) audit(ctx context.Context, conflict models.ConflictRecord, actor string) error {
	err := g.conflicts.AppendAudit(ctx, models.ConflictAudit{
		ConflictID: conflict.ID,
		MutationID: conflict.MutationID,
		Action:     conflict.Resolution,
		Actor:      actor,
		Notes:      conflict.Notes,
		CreatedAt:  g.now().UTC(),
	})
	if err != nil {
		return fmt.Errorf("error appending conflict audit: %w", err)
	}
	return nil
}

func autoNote(d detection, base time.Time) string {
	switch d.conflict {
	case models.ConflictDeletedOnServer:
		return "record was deleted on the server, local update discarded"
	case models.ConflictConcurrentUpdate:
		return fmt.Sprintf("server changed %v after %s", d.serverFields, base.Format(time.RFC3339Nano))
	}
	return ""
}

func serverVersion(r *models.EntityRecord) time.Time {
	if r == nil {
		return time.Time{}
	}
	return r.UpdatedAt
}

// decide carries out an operator decision on conflict for rec and returns
// the updated mutation. The conflict itself is not modified.
func (g *guard) decide(ctx context.Context, rec models.MutationRecord, conflict models.ConflictRecord, req models.ResolveConflictRequest) (models.MutationRecord, error) {
	switch req.Resolution {
	case models.ResolutionUseServer:
		current, err := g.current(ctx, rec.Entity, rec.EntityID)
		if err != nil {
			return rec, err
		}
		rec.MarkApplied(serverVersion(current))
		return rec, nil

	case models.ResolutionKeepLocal:
		target, current, err := g.decisionTarget(ctx, rec, conflict)
		if err != nil {
			return rec, err
		}
		version, err := g.write(ctx, target, current)
		if err != nil {
			return rec, err
		}
		rec.MarkApplied(version)
		return rec, nil

	case models.ResolutionMerge:
		if rec.Operation == models.OperationDelete {
			return rec, fmt.Errorf("%w: a delete cannot be merged", ErrInvalidDataProvided)
		}
		if len(req.Payload) > 0 {
			merged, err := models.ParsePayload(rec.Entity, req.Payload)
			if err != nil {
				return rec, fmt.Errorf("%w: %w", ErrInvalidDataProvided, err)
			}
			if merged.Empty() {
				return rec, fmt.Errorf("%w: merged payload is empty", ErrInvalidDataProvided)
			}
			rec.Payload = merged
		} else if conflict.Type == models.ConflictUniqueConstraint || len(conflict.ServerFields) == 0 ||
			!disjoint(rec.Payload.Fields(), conflict.ServerFields) {
			return rec, ErrMergeRequiresPayload
		}

		target, current, err := g.decisionTarget(ctx, rec, conflict)
		if err != nil {
			return rec, err
		}
		version, err := g.write(ctx, target, current)
		if err != nil {
			return rec, err
		}
		rec.MarkApplied(version)
		return rec, nil
	}

	return rec, fmt.Errorf("%w: resolution %q", ErrInvalidDataProvided, req.Resolution)
}

// decisionTarget returns the mutation to write and the record it lands on.
// A unique-constraint conflict is settled on the record that holds the
// natural key, when it still does.
func (g *guard) decisionTarget(ctx context.Context, rec models.MutationRecord, conflict models.ConflictRecord) (models.MutationRecord, *models.EntityRecord, error) {
	if conflict.Type == models.ConflictUniqueConstraint && rec.Operation != models.OperationDelete {
		holder, taken, err := g.naturalKeyHolder(ctx, rec)
		if err != nil {
			return rec, nil, err
		}
		if taken {
			target := rec
			target.EntityID = holder.ID
			target.Operation = models.OperationUpdate
			return target, &holder, nil
		}
	}

	current, err := g.current(ctx, rec.Entity, rec.EntityID)
	return rec, current, err
}

func (g *guard) current(ctx context.Context, entity models.EntityName, id string) (*models.EntityRecord, error) {
	record, err := g.entities.GetEntity(ctx, entity, id)
	if errors.Is(err, store.ErrEntityNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("error reading target record: %w", err)
	}
	return &record, nil
}
