package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/MKhiriev/go-pos-sync/internal/logger"
	"github.com/MKhiriev/go-pos-sync/internal/store"
	"github.com/MKhiriev/go-pos-sync/internal/telemetry"
	"github.com/MKhiriev/go-pos-sync/models"
)

const (
	defaultConflictLimit = 100
	maxConflictLimit     = 1000
)

type conflictService struct {
	*engine
}

func newConflictService(e *engine) ConflictService {
	return &conflictService{engine: e}
}

// ResolveConflict carries out an operator decision. The conflict, its
// mutation and the target record change in one transaction; a conflict that
// is no longer pending yields [store.ErrConflictAlreadyResolved]. The
// decision is recorded under the operator of identity.
func (s *conflictService) ResolveConflict(ctx context.Context, identity models.Identity, req models.ResolveConflictRequest) (resp models.ResolveConflictResponse, err error) {
	ctx, span := telemetry.StartSpan(ctx, "sync.ResolveConflict",
		attribute.String("conflict_id", req.ConflictID),
		attribute.String("resolution", string(req.Resolution)),
	)
	defer func() { telemetry.EndSpan(span, err) }()

	log := logger.FromContext(ctx)

	if !identity.Operator() {
		return models.ResolveConflictResponse{}, ErrOperatorRequired
	}
	switch req.OperatorID {
	case "":
		req.OperatorID = identity.OperatorID
	case identity.OperatorID:
	default:
		return models.ResolveConflictResponse{}, ErrOperatorMismatch
	}

	if err = s.validator.Validate(ctx, req); err != nil {
		return models.ResolveConflictResponse{}, fmt.Errorf("%w: %w", ErrInvalidDataProvided, err)
	}

	var (
		conflict models.ConflictRecord
		rec      models.MutationRecord
	)
	err = s.storeCall(ctx, func(ctx context.Context) error {
		return s.storages.Transactor.WithinTransaction(ctx, func(ctx context.Context) (err error) {
			conflict, err = s.storages.Conflicts.GetConflict(ctx, req.ConflictID)
			if err != nil {
				return err
			}
			if !conflict.Pending() {
				return store.ErrConflictAlreadyResolved
			}

			records, err := s.storages.Mutations.GetMutations(ctx, conflict.MutationID)
			if err != nil {
				return err
			}
			if len(records) == 0 {
				return store.ErrMutationNotFound
			}
			rec = records[0]

			originalID, found, err := s.dedup.Lookup(ctx, rec.DeviceID, rec.Checksum)
			if err != nil {
				return err
			}
			if found && originalID != rec.ID {
				rec.MarkApplied(time.Time{})
				rec.DuplicateOf = &originalID
			} else if rec, err = s.guard.decide(ctx, rec, conflict, req); err != nil {
				return err
			}

			conflict.Resolve(req.Resolution, req.OperatorID, models.TruncateVersion(s.now()), req.Notes)
			if err = s.storages.Conflicts.UpdateResolution(ctx, conflict); err != nil {
				return err
			}
			if err = s.guard.audit(ctx, conflict, req.OperatorID); err != nil {
				return err
			}
			return s.storages.Mutations.UpdateMutation(ctx, rec)
		})
	})
	if err != nil {
		if !errors.Is(err, store.ErrConflictNotFound) && !errors.Is(err, store.ErrConflictAlreadyResolved) {
			log.Err(err).Str("func", "*conflictService.ResolveConflict").Str("conflict_id", req.ConflictID).Msg("error resolving conflict")
		}
		return models.ResolveConflictResponse{}, err
	}

	if rec.Status == models.MutationStatusApplied && rec.DuplicateOf == nil {
		s.dedup.Remember(rec.DeviceID, rec.Checksum, rec.ID)
	}
	s.sink.RecordConflict(conflict.Type, conflict.Resolution)

	log.Info().
		Str("func", "*conflictService.ResolveConflict").
		Str("conflict_id", conflict.ID).
		Str("mutation_id", rec.ID).
		Str("resolution", string(conflict.Resolution)).
		Str("operator_id", req.OperatorID).
		Msg("conflict resolved")

	return models.ResolveConflictResponse{
		Status:     conflict.Resolution,
		ConflictID: conflict.ID,
		MutationID: rec.ID,
		Mutation:   rec.Status,
	}, nil
}

// ListConflicts returns the review queue. Without a resolution filter only
// pending conflicts are listed.
func (s *conflictService) ListConflicts(ctx context.Context, identity models.Identity, filter models.ConflictFilter) ([]models.ConflictRecord, error) {
	if !identity.Operator() {
		return nil, ErrOperatorRequired
	}
	if filter.Resolution == "" {
		filter.Resolution = models.ResolutionPending
	}
	if !filter.Resolution.Valid() {
		return nil, fmt.Errorf("%w: unknown resolution %q", ErrInvalidDataProvided, filter.Resolution)
	}
	if filter.Entity != "" && !filter.Entity.Valid() {
		return nil, fmt.Errorf("%w: unknown entity %q", ErrInvalidDataProvided, filter.Entity)
	}
	filter.Limit = clampLimit(filter.Limit)

	var conflicts []models.ConflictRecord
	err := s.storeCall(ctx, func(ctx context.Context) (err error) {
		conflicts, err = s.storages.Conflicts.ListConflicts(ctx, filter)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("error listing conflicts: %w", err)
	}
	if conflicts == nil {
		conflicts = []models.ConflictRecord{}
	}
	return conflicts, nil
}

// ListPermanentFailures returns mutations that will not be retried, newest
// attempt first.
func (s *conflictService) ListPermanentFailures(ctx context.Context, identity models.Identity, deviceID string, limit uint64) ([]models.MutationRecord, error) {
	if !identity.Operator() {
		return nil, ErrOperatorRequired
	}
	var records []models.MutationRecord
	err := s.storeCall(ctx, func(ctx context.Context) (err error) {
		records, err = s.storages.Mutations.ListFailed(ctx, store.FailedFilter{DeviceID: deviceID, Limit: clampLimit(limit)})
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("error listing failed mutations: %w", err)
	}
	if records == nil {
		records = []models.MutationRecord{}
	}
	return records, nil
}

func clampLimit(limit uint64) uint64 {
	switch {
	case limit == 0:
		return defaultConflictLimit
	case limit > maxConflictLimit:
		return maxConflictLimit
	}
	return limit
}

type maintenanceService struct {
	*engine
}

func newMaintenanceService(e *engine) MaintenanceService {
	return &maintenanceService{engine: e}
}

func (s *maintenanceService) ReapProcessing(ctx context.Context, staleAfter time.Duration) (int64, error) {
	var reverted int64
	err := s.storeCall(ctx, func(ctx context.Context) (err error) {
		reverted, err = s.storages.Mutations.RevertProcessing(ctx, store.RevertFilter{
			OlderThan: s.now().UTC().Add(-staleAfter),
		})
		return err
	})
	if err != nil {
		return 0, fmt.Errorf("error reverting stale mutations: %w", err)
	}
	if reverted > 0 {
		s.logger.Info().
			Str("func", "*maintenanceService.ReapProcessing").
			Int64("reverted", reverted).
			Dur("stale_after", staleAfter).
			Msg("stale processing mutations reverted")
	}
	return reverted, nil
}

func (s *maintenanceService) ProbeStore(ctx context.Context) error {
	err := s.ping(ctx)
	s.sink.SetStoreHealthy(err == nil)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrStoreUnavailable, err)
	}
	return nil
}
