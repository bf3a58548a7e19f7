package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"

	"github.com/MKhiriev/go-pos-sync/internal/checksum"
	"github.com/MKhiriev/go-pos-sync/internal/logger"
	"github.com/MKhiriev/go-pos-sync/internal/store"
	"github.com/MKhiriev/go-pos-sync/internal/telemetry"
	"github.com/MKhiriev/go-pos-sync/models"
)

// maxSessionErrors caps the failures kept on a session row.
const maxSessionErrors = 200

const (
	reasonIDReused      = "mutation id reused with different content"
	reasonForeignDevice = "mutation id belongs to another device"
	reasonCancelled     = "request cancelled before evaluation"
)

type syncSessionService struct {
	*engine
}

// newSyncSessionService constructs the [SyncSessionService] over an engine
// shared with the conflict and maintenance services.
func newSyncSessionService(e *engine) SyncSessionService {
	return &syncSessionService{engine: e}
}

func (s *syncSessionService) OpenSession(ctx context.Context, identity models.Identity, req models.OpenSessionRequest) (models.OpenSessionResponse, error) {
	log := logger.FromContext(ctx)

	if req.DeviceID != "" && req.DeviceID != identity.DeviceID {
		return models.OpenSessionResponse{}, ErrDeviceMismatch
	}
	if req.Type == "" {
		req.Type = models.SessionTypeIncremental
	}
	if err := s.validator.Validate(ctx, req); err != nil {
		return models.OpenSessionResponse{}, fmt.Errorf("%w: %w", ErrInvalidDataProvided, err)
	}

	unlock, err := s.locks.lock(ctx, identity.DeviceID)
	if err != nil {
		return models.OpenSessionResponse{}, err
	}
	defer unlock()

	session := models.SyncSession{
		ID:        s.ids.Generate(),
		DeviceID:  identity.DeviceID,
		UserID:    identity.UserID,
		Type:      req.Type,
		Status:    models.SessionStatusPending,
		StartedAt: models.TruncateVersion(s.now()),
	}
	err = s.storeCall(ctx, func(ctx context.Context) error {
		return s.storages.Sessions.CreateSession(ctx, session)
	})
	if err != nil {
		log.Err(err).Str("func", "*syncSessionService.OpenSession").Msg("error creating sync session")
		return models.OpenSessionResponse{}, fmt.Errorf("error creating sync session: %w", err)
	}

	log.Info().
		Str("func", "*syncSessionService.OpenSession").
		Str("device_id", identity.DeviceID).
		Str("session_id", session.ID).
		Str("type", string(session.Type)).
		Msg("sync session opened")

	return models.OpenSessionResponse{SessionID: session.ID, Type: session.Type, StartedAt: session.StartedAt}, nil
}

func (s *syncSessionService) GetSession(ctx context.Context, identity models.Identity, sessionID string) (models.SyncSession, error) {
	return s.ownedSession(ctx, identity, sessionID)
}

func (s *syncSessionService) CloseSession(ctx context.Context, identity models.Identity, sessionID string) (summary models.SyncSummary, err error) {
	ctx, span := telemetry.StartSpan(ctx, "sync.CloseSession", attribute.String("session_id", sessionID))
	defer func() { telemetry.EndSpan(span, err) }()

	log := logger.FromContext(ctx).With().Str("func", "*syncSessionService.CloseSession").Str("session_id", sessionID).Logger()

	unlock, err := s.locks.lock(ctx, identity.DeviceID)
	if err != nil {
		return models.SyncSummary{}, err
	}
	defer unlock()

	session, err := s.ownedSession(ctx, identity, sessionID)
	if err != nil {
		return models.SyncSummary{}, err
	}
	if session.Completed() {
		return session.Summary(), nil
	}

	var reverted int64
	err = s.storeCall(ctx, func(ctx context.Context) (err error) {
		reverted, err = s.storages.Mutations.RevertProcessing(ctx, store.RevertFilter{SessionID: session.ID})
		return err
	})
	if err != nil {
		log.Err(err).Msg("error reverting in-flight mutations")
		return models.SyncSummary{}, fmt.Errorf("error closing sync session: %w", err)
	}

	session.Finalize(models.TruncateVersion(s.now()))
	err = s.storeCall(ctx, func(ctx context.Context) error {
		return s.storages.Sessions.UpdateSession(ctx, session)
	})
	if errors.Is(err, store.ErrSessionCompleted) {
		stored, getErr := s.ownedSession(ctx, identity, sessionID)
		if getErr != nil {
			return models.SyncSummary{}, getErr
		}
		return stored.Summary(), nil
	}
	if err != nil {
		log.Err(err).Msg("error finalizing sync session")
		return models.SyncSummary{}, fmt.Errorf("error closing sync session: %w", err)
	}
	s.sink.RecordSession(session)

	log.Info().
		Str("device_id", session.DeviceID).
		Str("status", string(session.Status)).
		Int("records_received", session.RecordsReceived).
		Int("records_sent", session.RecordsSent).
		Int64("duration_ms", session.DurationMillis).
		Float64("success_ratio", session.SuccessRatio).
		Int64("reverted", reverted).
		Msg("sync session closed")

	return session.Summary(), nil
}

// batchRun is the working state of one IngestBatch call.
type batchRun struct {
	session models.SyncSession

	// results has one slot per submitted mutation followed by one slot per
	// carried-over mutation.
	results []models.MutationResult

	// positions maps a mutation id to its slot in results.
	positions map[string]int

	// queue holds the records evaluated by this run.
	queue map[string]*models.MutationRecord

	// copies are submitted mutations whose checksum repeats an open mutation
	// of the device. They are settled after the original.
	copies []batchCopy
}

type batchCopy struct {
	index    int
	record   models.MutationRecord
	original string
}

func newBatchRun(session models.SyncSession, batch models.BatchRequest) *batchRun {
	run := &batchRun{
		session:   session,
		results:   make([]models.MutationResult, len(batch.Mutations)),
		positions: make(map[string]int, len(batch.Mutations)),
		queue:     make(map[string]*models.MutationRecord),
	}
	for i, m := range batch.Mutations {
		run.results[i] = models.MutationResult{MutationID: m.ID, Index: i}
	}
	return run
}

// setAt fills the slot of a submitted mutation.
func (r *batchRun) setAt(index int, res models.MutationResult) {
	res.Index = index
	r.results[index] = res
}

// set fills the slot assigned to res.MutationID, adding a carry-over slot
// when the mutation was not submitted in this batch.
func (r *batchRun) set(res models.MutationResult) {
	pos, ok := r.positions[res.MutationID]
	if !ok {
		pos = len(r.results)
		r.positions[res.MutationID] = pos
		r.results = append(r.results, models.MutationResult{MutationID: res.MutationID, Index: -1})
	}
	res.Index = r.results[pos].Index
	r.results[pos] = res
}

func (s *syncSessionService) IngestBatch(ctx context.Context, identity models.Identity, sessionID string, batch models.BatchRequest) (result models.BatchResult, err error) {
	ctx, span := telemetry.StartSpan(ctx, "sync.IngestBatch",
		attribute.String("session_id", sessionID),
		attribute.String("device_id", identity.DeviceID),
		attribute.Int("mutations", len(batch.Mutations)),
	)
	defer func() { telemetry.EndSpan(span, err) }()

	log := logger.FromContext(ctx).With().Str("session_id", sessionID).Logger()
	ctx = log.WithContext(ctx)

	unlock, err := s.locks.lock(ctx, identity.DeviceID)
	if err != nil {
		return models.BatchResult{}, err
	}
	defer unlock()

	session, err := s.ownedSession(ctx, identity, sessionID)
	if err != nil {
		if !errors.Is(err, store.ErrSessionNotFound) && !errors.Is(err, ErrSessionNotOwned) && s.ping(ctx) != nil {
			return models.BatchResult{}, fmt.Errorf("%w: %w", ErrStoreUnavailable, err)
		}
		return models.BatchResult{}, err
	}
	switch session.Status {
	case models.SessionStatusCompleted:
		return models.BatchResult{}, ErrSessionClosed
	case models.SessionStatusError:
		return models.BatchResult{}, ErrSessionAborted
	}
	if err = s.validator.Validate(ctx, batch); err != nil {
		return models.BatchResult{}, fmt.Errorf("%w: %w", ErrInvalidDataProvided, err)
	}

	run := newBatchRun(session, batch)

	queue, err := s.intake(ctx, run, batch)
	if err != nil {
		return models.BatchResult{}, s.batchFailure(ctx, run.session, err)
	}

	if err = s.execute(ctx, run, queue); err != nil {
		return models.BatchResult{}, s.batchFailure(ctx, run.session, err)
	}
	if err = s.settleCopies(ctx, run); err != nil {
		return models.BatchResult{}, s.batchFailure(ctx, run.session, err)
	}

	for i := range run.results {
		if run.results[i].Outcome == "" {
			run.results[i].Outcome = models.OutcomeHeld
			run.results[i].Reason = reasonCancelled
			run.results[i].Retryable = true
		}
	}

	changes := s.serverChanges(ctx, &run.session)

	result = models.BatchResult{
		SessionID:     session.ID,
		Results:       run.results,
		ServerChanges: changes,
	}
	for _, r := range run.results {
		result.Summary.Add(r)
	}
	result.Summary.Received = len(batch.Mutations)
	result.Summary.CarriedOver = len(run.results) - len(batch.Mutations)

	s.account(&run.session, batch, result)
	if raw, marshalErr := json.Marshal(result); marshalErr == nil {
		run.session.BytesSent += int64(len(raw))
	}

	saveCtx := context.WithoutCancel(ctx)
	err = s.storeCall(saveCtx, func(ctx context.Context) error {
		return s.storages.Sessions.UpdateSession(ctx, run.session)
	})
	if err != nil {
		log.Err(err).Msg("error saving session counters")
	}

	log.Info().
		Int("received", result.Summary.Received).
		Int("carried_over", result.Summary.CarriedOver).
		Int("applied", result.Summary.Applied).
		Int("duplicates", result.Summary.Duplicates).
		Int("conflicts", result.Summary.Conflicts).
		Int("errors", result.Summary.Errors).
		Int("held", result.Summary.Held).
		Int("server_changes", len(changes)).
		Msg("batch processed")

	if ctxErr := ctx.Err(); ctxErr != nil {
		return result, ctxErr
	}
	return result, nil
}

// intake validates, deduplicates and persists the submitted mutations and
// returns the records to evaluate: every pending or retryable mutation of the
// device, including the ones just stored. A mutation repeating the checksum
// of an open one is held back as a copy.
func (s *syncSessionService) intake(ctx context.Context, run *batchRun, batch models.BatchRequest) ([]*models.MutationRecord, error) {
	type candidate struct {
		index  int
		record models.MutationRecord
	}

	var (
		candidates []candidate
		persist    []models.MutationRecord
		seen       = make(map[string]string, len(batch.Mutations))
	)

	for i, input := range batch.Mutations {
		rec, serr := s.buildRecord(ctx, run.session, input)
		if prev, dup := seen[input.ID]; dup {
			if serr == nil && prev != "" && prev == rec.Checksum {
				run.setAt(i, models.MutationResult{MutationID: input.ID, Outcome: models.OutcomeDuplicate})
			} else {
				run.setAt(i, errorResult(input.ID, newValidationError(input.ID, errors.New(reasonIDReused))))
			}
			continue
		}

		if serr != nil {
			seen[input.ID] = ""
			run.setAt(i, errorResult(input.ID, serr))
			if _, parseErr := uuid.Parse(input.ID); parseErr == nil {
				rec.Fail(serr.Detail())
				persist = append(persist, rec)
			}
			continue
		}

		seen[input.ID] = rec.Checksum
		candidates = append(candidates, candidate{index: i, record: rec})
	}

	ids := make([]string, 0, len(candidates))
	for _, c := range candidates {
		ids = append(ids, c.record.ID)
	}
	existing := make(map[string]models.MutationRecord, len(ids))
	if len(ids) > 0 {
		err := s.storeCall(ctx, func(ctx context.Context) error {
			records, err := s.storages.Mutations.GetMutations(ctx, ids...)
			for _, r := range records {
				existing[r.ID] = r
			}
			return err
		})
		if err != nil {
			return nil, fmt.Errorf("error loading submitted mutations: %w", err)
		}
	}

	var carried []models.MutationRecord
	err := s.storeCall(ctx, func(ctx context.Context) (err error) {
		carried, err = s.storages.Mutations.ListCarryOver(ctx, run.session.DeviceID)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("error loading carry-over mutations: %w", err)
	}

	firstByChecksum := make(map[string]string, len(carried))
	for _, rec := range carried {
		if _, ok := firstByChecksum[rec.Checksum]; !ok && rec.Checksum != "" {
			firstByChecksum[rec.Checksum] = rec.ID
		}
	}
	for _, c := range candidates {
		rec := c.record

		if old, ok := existing[rec.ID]; ok {
			res, carry, err := s.resubmitted(ctx, old, rec)
			if err != nil {
				return nil, err
			}
			if carry {
				run.positions[rec.ID] = c.index
				continue
			}
			run.setAt(c.index, res)
			continue
		}

		if originalID, ok := firstByChecksum[rec.Checksum]; ok {
			run.copies = append(run.copies, batchCopy{index: c.index, record: rec, original: originalID})
			continue
		}

		originalID, found, err := s.dedup.Lookup(ctx, rec.DeviceID, rec.Checksum)
		if err != nil {
			return nil, fmt.Errorf("error looking up applied checksum: %w", err)
		}
		if found {
			rec.MarkApplied(time.Time{})
			rec.DuplicateOf = &originalID
			persist = append(persist, rec)
			run.setAt(c.index, models.MutationResult{MutationID: rec.ID, Outcome: models.OutcomeDuplicate})
			continue
		}

		firstByChecksum[rec.Checksum] = rec.ID
		run.positions[rec.ID] = c.index
		persist = append(persist, rec)
	}

	if len(persist) > 0 {
		err = s.storeCall(ctx, func(ctx context.Context) error {
			return s.storages.Mutations.InsertMutations(ctx, persist...)
		})
		if err != nil {
			return nil, fmt.Errorf("error storing mutations: %w", err)
		}
	}

	for _, rec := range persist {
		if rec.Status == models.MutationStatusPending {
			carried = append(carried, rec)
		}
	}
	queue := make([]*models.MutationRecord, 0, len(carried))
	for i := range carried {
		rec := &carried[i]
		rec.SessionID = run.session.ID
		run.queue[rec.ID] = rec
		queue = append(queue, rec)
	}
	return queue, nil
}

// settleCopies answers each copy with the outcome of its original.
// A copy is stored, as an applied duplicate, only when the original applied;
// otherwise the device resubmits it and it is deduplicated then.
func (s *syncSessionService) settleCopies(ctx context.Context, run *batchRun) error {
	var persist []models.MutationRecord
	for _, c := range run.copies {
		if original, ok := run.queue[c.original]; ok && original.Status == models.MutationStatusApplied {
			rec := c.record
			rec.MarkApplied(time.Time{})
			rec.DuplicateOf = &original.ID
			persist = append(persist, rec)
			run.setAt(c.index, models.MutationResult{
				MutationID:    rec.ID,
				Outcome:       models.OutcomeDuplicate,
				ServerVersion: original.AppliedVersion,
			})
			continue
		}

		var res models.MutationResult
		if pos, ok := run.positions[c.original]; ok {
			res = run.results[pos]
		}
		res.MutationID = c.record.ID
		run.setAt(c.index, res)
	}
	if len(persist) == 0 {
		return nil
	}

	err := s.storeCall(context.WithoutCancel(ctx), func(ctx context.Context) error {
		return s.storages.Mutations.InsertMutations(ctx, persist...)
	})
	if err != nil {
		return fmt.Errorf("error storing duplicate mutations: %w", err)
	}
	return nil
}

// resubmitted reports what to answer for a mutation id the store already
// knows. carry is true when the stored record is still open and will be
// evaluated with the carry-over.
func (s *syncSessionService) resubmitted(ctx context.Context, old, rec models.MutationRecord) (res models.MutationResult, carry bool, err error) {
	switch {
	case old.DeviceID != rec.DeviceID:
		return errorResult(rec.ID, newValidationError(rec.ID, errors.New(reasonForeignDevice))), false, nil
	case old.Checksum != rec.Checksum:
		return errorResult(rec.ID, newValidationError(rec.ID, errors.New(reasonIDReused))), false, nil
	case old.Status == models.MutationStatusApplied:
		return models.MutationResult{MutationID: rec.ID, Outcome: models.OutcomeDuplicate, ServerVersion: old.AppliedVersion}, false, nil
	case old.Status == models.MutationStatusConflict:
		res = models.MutationResult{MutationID: rec.ID, Outcome: models.OutcomeConflictPending, Resolution: models.ResolutionPending}
		var conflict models.ConflictRecord
		err = s.storeCall(ctx, func(ctx context.Context) (err error) {
			conflict, err = s.storages.Conflicts.PendingConflictForMutation(ctx, rec.ID)
			return err
		})
		switch {
		case err == nil:
			res.ConflictID = conflict.ID
			res.Reason = "conflict " + string(conflict.Type)
		case !errors.Is(err, store.ErrConflictNotFound):
			return models.MutationResult{}, false, fmt.Errorf("error loading pending conflict: %w", err)
		}
		return res, false, nil
	case old.Terminal():
		return s.resultOf(old, models.OutcomeError, nil), false, nil
	}
	return models.MutationResult{}, true, nil
}

// buildRecord validates input and projects it into a new pending record.
// On failure the returned record still carries the envelope so it can be
// stored as failed.
func (s *syncSessionService) buildRecord(ctx context.Context, session models.SyncSession, input models.MutationInput) (models.MutationRecord, *SyncError) {
	now := models.TruncateVersion(s.now())
	rec := models.MutationRecord{
		ID:              input.ID,
		DeviceID:        session.DeviceID,
		UserID:          session.UserID,
		SessionID:       session.ID,
		Entity:          input.Entity,
		EntityID:        input.EntityID,
		Operation:       input.Operation,
		Dependencies:    input.Dependencies,
		Priority:        input.Priority,
		Status:          models.MutationStatusPending,
		ClientCreatedAt: input.ClientTS.UTC(),
		CreatedAt:       now,
	}
	if !rec.Priority.Valid() {
		rec.Priority = models.PriorityMedium
	}
	if rec.ClientCreatedAt.IsZero() {
		rec.ClientCreatedAt = now
	}
	if input.BaseVersion != nil {
		rec.BaseVersion = models.TruncateVersion(*input.BaseVersion)
	}

	fail := func(serr *SyncError) (models.MutationRecord, *SyncError) {
		rec.AttemptCount = 1
		rec.LastAttemptAt = &now
		return rec, serr
	}

	if err := s.validator.Validate(ctx, input); err != nil {
		return fail(newValidationError(input.ID, err))
	}
	payload, err := models.ParsePayload(input.Entity, input.Payload)
	if err != nil {
		return fail(newValidationError(input.ID, err))
	}
	rec.Payload = payload

	sum, err := checksum.Compute(checksum.FromRecord(rec))
	if err != nil {
		return fail(newValidationError(input.ID, err))
	}
	if input.Checksum != "" && !strings.EqualFold(input.Checksum, sum) {
		return fail(newValidationError(input.ID, errors.New(ReasonChecksumMismatch)))
	}
	rec.Checksum = sum
	return rec, nil
}

// execute orders the queue by dependencies and evaluates each record.
// It returns an error only for a structural failure.
func (s *syncSessionService) execute(ctx context.Context, run *batchRun, queue []*models.MutationRecord) error {
	plan := planExecution(queue)

	rejected := make([]string, 0, len(plan.rejected))
	for id := range plan.rejected {
		rejected = append(rejected, id)
	}
	sort.Strings(rejected)
	for _, id := range rejected {
		rec := run.queue[id]
		now := models.TruncateVersion(s.now())
		rec.AttemptCount++
		rec.LastAttemptAt = &now
		rec.Fail(plan.rejected[id].Detail())
		if err := s.save(ctx, *rec); err != nil {
			return err
		}
		s.sink.RecordOutcome(rec.Entity, models.OutcomeError)
		run.set(s.resultOf(*rec, models.OutcomeError, nil))
	}

	external, err := s.externalDependencies(ctx, run, plan.order)
	if err != nil {
		return err
	}

	for _, rec := range plan.order {
		if ctx.Err() != nil {
			return nil
		}
		res, err := s.process(ctx, run, rec, external)
		if err != nil {
			return err
		}
		s.sink.RecordOutcome(rec.Entity, res.Outcome)
		run.set(res)
	}
	return nil
}

// externalDependencies loads the dependencies that are not evaluated by
// this run.
func (s *syncSessionService) externalDependencies(ctx context.Context, run *batchRun, order []*models.MutationRecord) (map[string]models.MutationRecord, error) {
	var ids []string
	seen := make(map[string]struct{})
	for _, rec := range order {
		for _, dep := range uniqueDependencies(rec) {
			if _, ok := run.queue[dep]; ok {
				continue
			}
			if _, ok := seen[dep]; ok {
				continue
			}
			seen[dep] = struct{}{}
			ids = append(ids, dep)
		}
	}

	external := make(map[string]models.MutationRecord, len(ids))
	if len(ids) == 0 {
		return external, nil
	}
	err := s.storeCall(ctx, func(ctx context.Context) error {
		records, err := s.storages.Mutations.GetMutations(ctx, ids...)
		for _, r := range records {
			external[r.ID] = r
		}
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("error loading dependencies: %w", err)
	}
	return external, nil
}

// dependencyGate returns the effective base version of rec and the first
// dependency that has not applied, if any. A dependency on the same record
// raises the base to the version it applied at.
func dependencyGate(run *batchRun, rec *models.MutationRecord, external map[string]models.MutationRecord) (time.Time, string) {
	base := rec.BaseVersion
	for _, id := range uniqueDependencies(rec) {
		var dep models.MutationRecord
		if r, ok := run.queue[id]; ok {
			dep = *r
		} else if r, ok := external[id]; ok {
			dep = r
		} else {
			return base, id
		}

		if dep.Status != models.MutationStatusApplied {
			return base, id
		}
		if dep.Entity == rec.Entity && dep.EntityID == rec.EntityID && dep.AppliedVersion != nil {
			if v := models.TruncateVersion(*dep.AppliedVersion); v.After(base) {
				base = v
			}
		}
	}
	return base, ""
}

// process evaluates one record. It returns an error only for a structural
// failure.
func (s *syncSessionService) process(ctx context.Context, run *batchRun, rec *models.MutationRecord, external map[string]models.MutationRecord) (models.MutationResult, error) {
	base, waiting := dependencyGate(run, rec, external)

	now := models.TruncateVersion(s.now())
	rec.AttemptCount++
	rec.LastAttemptAt = &now

	if waiting != "" {
		reason := ReasonWaitingPrefix + waiting
		outcome := models.OutcomeHeld
		if rec.AttemptCount >= s.cfg.MaxAttempts {
			rec.Fail(newPermanentError(rec.ID, reason, nil).Detail())
			outcome = models.OutcomeError
			s.reportPermanent(ctx, *rec)
		} else {
			rec.Hold(models.ErrorKindDependencyPending, reason)
		}
		if err := s.save(ctx, *rec); err != nil {
			return models.MutationResult{}, err
		}
		return s.resultOf(*rec, outcome, nil), nil
	}

	rec.Status = models.MutationStatusProcessing
	if err := s.save(ctx, *rec); err != nil {
		return models.MutationResult{}, err
	}

	var applied applyResult
	err := s.storeCall(ctx, func(ctx context.Context) error {
		return s.storages.Transactor.WithinTransaction(ctx, func(ctx context.Context) error {
			res, err := s.guard.evaluate(ctx, *rec, base)
			if err != nil {
				return err
			}
			if err = s.storages.Mutations.UpdateMutation(ctx, res.record); err != nil {
				return fmt.Errorf("error saving mutation state: %w", err)
			}
			applied = res
			return nil
		})
	})

	if err == nil {
		*rec = applied.record
		if rec.Status == models.MutationStatusApplied && rec.DuplicateOf == nil {
			s.dedup.Remember(rec.DeviceID, rec.Checksum, rec.ID)
		}
		if applied.conflict != nil {
			s.sink.RecordConflict(applied.conflict.Type, applied.conflict.Resolution)
		}
		return s.resultOf(*rec, applied.outcome, applied.conflict), nil
	}

	if ctx.Err() != nil {
		rec.Status = models.MutationStatusPending
		rec.AttemptCount--
		if saveErr := s.save(context.WithoutCancel(ctx), *rec); saveErr != nil {
			return models.MutationResult{}, saveErr
		}
		return models.MutationResult{MutationID: rec.ID, Outcome: models.OutcomeHeld, Reason: reasonCancelled, Retryable: true}, nil
	}

	var serr *SyncError
	if s.retryable(err) {
		if pingErr := s.ping(ctx); pingErr != nil {
			return models.MutationResult{}, fmt.Errorf("%w: %w", pingErr, err)
		}
		serr = newTransientError(rec.ID, err)
		if rec.AttemptCount >= s.cfg.MaxAttempts {
			serr = newPermanentError(rec.ID, ReasonAttemptsExceeded+": "+serr.Reason, err)
		}
	} else {
		serr = newPermanentError(rec.ID, err.Error(), err)
	}

	logger.FromContext(ctx).Warn().Err(err).
		Str("mutation_id", rec.ID).
		Int("attempts", rec.AttemptCount).
		Bool("retryable", serr.Retryable).
		Msg("mutation not applied")

	rec.Fail(serr.Detail())
	if serr.Permanent {
		s.reportPermanent(ctx, *rec)
	}
	if saveErr := s.save(ctx, *rec); saveErr != nil {
		return models.MutationResult{}, saveErr
	}
	return s.resultOf(*rec, models.OutcomeError, nil), nil
}

// save persists the lifecycle state of rec. A failure is structural only
// when the store is unreachable; otherwise the record is left for the
// processing reaper.
func (s *syncSessionService) save(ctx context.Context, rec models.MutationRecord) error {
	err := s.storeCall(ctx, func(ctx context.Context) error {
		return s.storages.Mutations.UpdateMutation(ctx, rec)
	})
	if err == nil {
		return nil
	}
	if pingErr := s.ping(ctx); pingErr != nil {
		return fmt.Errorf("%w: %w", pingErr, err)
	}
	logger.FromContext(ctx).Err(err).
		Str("func", "*syncSessionService.save").
		Str("mutation_id", rec.ID).
		Str("status", string(rec.Status)).
		Msg("error saving mutation state")
	return nil
}

// batchFailure turns a failed batch into the error returned to the device,
// aborting the session when the store is unreachable.
func (s *syncSessionService) batchFailure(ctx context.Context, session models.SyncSession, cause error) error {
	if errors.Is(cause, ErrDeviceBusy) || ctx.Err() != nil {
		return cause
	}
	if pingErr := s.ping(ctx); pingErr == nil {
		return cause
	}
	return s.abort(ctx, session, cause)
}

// abort ends the session after a structural failure. Records of the session
// left in processing are reverted so the next session picks them up.
func (s *syncSessionService) abort(ctx context.Context, session models.SyncSession, cause error) error {
	log := logger.FromContext(ctx)
	log.Error().Err(cause).
		Str("func", "*syncSessionService.abort").
		Str("device_id", session.DeviceID).
		Msg("store unreachable, aborting sync session")

	cleanup, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.cfg.StoreTimeout)
	defer cancel()

	if _, err := s.storages.Mutations.RevertProcessing(cleanup, store.RevertFilter{SessionID: session.ID}); err != nil {
		log.Warn().Err(err).Msg("error reverting in-flight mutations of aborted session")
	}
	session.Status = models.SessionStatusError
	session.Errors = appendSessionError(session.Errors, models.SessionError{
		Kind:   models.ErrorKindTransientStore,
		Reason: cause.Error(),
	})
	if err := s.storages.Sessions.UpdateSession(cleanup, session); err != nil {
		log.Warn().Err(err).Msg("error marking session aborted")
	}
	s.sink.SetStoreHealthy(false)

	telemetry.CaptureError(ctx, cause, map[string]string{
		"device_id":  session.DeviceID,
		"session_id": session.ID,
	})
	return fmt.Errorf("%w: %w", ErrStoreUnavailable, cause)
}

// serverChanges returns the changes of other devices after the session
// cursor and advances it. A failure is logged and yields no changes.
func (s *syncSessionService) serverChanges(ctx context.Context, session *models.SyncSession) []models.ServerChange {
	log := logger.FromContext(ctx)
	if ctx.Err() != nil {
		return []models.ServerChange{}
	}

	after := session.ChangeCursor
	if after == 0 && session.Type == models.SessionTypeIncremental {
		var last models.SyncSession
		err := s.storeCall(ctx, func(ctx context.Context) (err error) {
			last, err = s.storages.Sessions.LastCompletedSession(ctx, session.DeviceID)
			return err
		})
		switch {
		case err == nil:
			after = last.ChangeCursor
		case !errors.Is(err, store.ErrSessionNotFound):
			log.Warn().Err(err).Msg("error loading last completed session")
			return []models.ServerChange{}
		}
	}

	var (
		changes []models.ServerChange
		cursor  int64
	)
	err := s.storeCall(ctx, func(ctx context.Context) (err error) {
		changes, cursor, err = s.storages.Changes.ChangesSince(ctx, models.ChangeFilter{
			AfterID:       after,
			ExcludeDevice: session.DeviceID,
			Limit:         s.cfg.MaxServerChanges,
		})
		return err
	})
	if err != nil {
		log.Warn().Err(err).Msg("error loading server changes")
		return []models.ServerChange{}
	}
	if cursor > session.ChangeCursor {
		session.ChangeCursor = cursor
	}
	if changes == nil {
		changes = []models.ServerChange{}
	}
	return changes
}

// account adds the batch to the session counters.
func (s *syncSessionService) account(session *models.SyncSession, batch models.BatchRequest, result models.BatchResult) {
	sum := result.Summary
	session.RecordsReceived += sum.Received
	session.RecordsSent += len(result.ServerChanges)
	session.BytesReceived += batch.Bytes
	session.AppliedCount += sum.Applied + sum.Discarded
	session.DuplicateCount += sum.Duplicates
	session.ConflictCount += sum.Conflicts
	session.ErrorCount += sum.Errors
	session.HeldCount += sum.Held

	for _, r := range result.Results {
		switch r.Outcome {
		case models.OutcomeError:
			session.Errors = appendSessionError(session.Errors, models.SessionError{MutationID: r.MutationID, Kind: r.ErrorKind, Reason: r.Reason})
		case models.OutcomeConflictPending:
			session.Errors = appendSessionError(session.Errors, models.SessionError{MutationID: r.MutationID, Kind: models.ErrorKindConflict, Reason: r.Reason})
		}
	}
}

func appendSessionError(errs []models.SessionError, e models.SessionError) []models.SessionError {
	if len(errs) >= maxSessionErrors {
		return errs
	}
	return append(errs, e)
}

// resultOf projects rec into the result reported to the device.
func (s *syncSessionService) resultOf(rec models.MutationRecord, outcome models.Outcome, conflict *models.ConflictRecord) models.MutationResult {
	res := models.MutationResult{
		MutationID:    rec.ID,
		Outcome:       outcome,
		ServerVersion: rec.AppliedVersion,
	}
	if rec.Error != nil {
		res.Reason = rec.Error.Reason
		res.ErrorKind = rec.Error.Kind
		res.Retryable = rec.Error.Retryable && !rec.Error.Permanent
	}
	if conflict != nil {
		res.ConflictID = conflict.ID
		res.Resolution = conflict.Resolution
		if conflict.Pending() {
			res.Reason = "conflict " + string(conflict.Type)
			res.ErrorKind = models.ErrorKindConflict
		}
	}
	return res
}

func errorResult(mutationID string, serr *SyncError) models.MutationResult {
	return models.MutationResult{
		MutationID: mutationID,
		Outcome:    models.OutcomeError,
		Reason:     serr.Reason,
		ErrorKind:  serr.Kind,
		Retryable:  serr.Retryable && !serr.Permanent,
	}
}
