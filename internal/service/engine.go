package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sethvargo/go-retry"

	"github.com/MKhiriev/go-pos-sync/internal/config"
	"github.com/MKhiriev/go-pos-sync/internal/logger"
	"github.com/MKhiriev/go-pos-sync/internal/metrics"
	"github.com/MKhiriev/go-pos-sync/internal/store"
	"github.com/MKhiriev/go-pos-sync/internal/telemetry"
	"github.com/MKhiriev/go-pos-sync/internal/utils"
	"github.com/MKhiriev/go-pos-sync/internal/validators"
	"github.com/MKhiriev/go-pos-sync/models"
)

// EngineOptions overrides the collaborators of the engine. Zero values select
// the production defaults.
type EngineOptions struct {
	// Metrics receives session and outcome events. Defaults to [metrics.Nop].
	Metrics metrics.Sink

	// IDs generates session and conflict ids. Defaults to UUIDv7.
	IDs utils.IDGenerator

	// Now is the clock of the engine. Defaults to time.Now.
	Now func() time.Time
}

// engine holds the state shared by the session, conflict and maintenance
// services.
type engine struct {
	storages  *store.Storages
	validator validators.Validator
	guard     *guard
	dedup     *DedupGuard
	cfg       config.Sync
	sink      metrics.Sink
	ids       utils.IDGenerator
	locks     *deviceLocks
	now       func() time.Time
	logger    *logger.Logger
}

func newEngine(storages *store.Storages, cfg config.Sync, rules config.Rules, opts EngineOptions, logger *logger.Logger) *engine {
	if opts.Metrics == nil {
		opts.Metrics = metrics.Nop{}
	}
	if opts.IDs == nil {
		opts.IDs = utils.NewUUIDGenerator()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 5
	}
	if cfg.StoreTimeout <= 0 {
		cfg.StoreTimeout = 5 * time.Second
	}
	if cfg.RetryBase <= 0 {
		cfg.RetryBase = 50 * time.Millisecond
	}

	dedup := NewDedupGuard(storages.Mutations, cfg.DedupTTL)
	return &engine{
		storages:  storages,
		validator: validators.NewMutationValidator(cfg.MaxBatchSize),
		guard: &guard{
			entities:  storages.Entities,
			changes:   storages.Changes,
			conflicts: storages.Conflicts,
			mutations: storages.Mutations,
			dedup:     dedup,
			rules:     rules,
			ids:       opts.IDs,
			now:       opts.Now,
		},
		dedup:  dedup,
		cfg:    cfg,
		sink:   opts.Metrics,
		ids:    opts.IDs,
		locks:  newDeviceLocks(),
		now:    opts.Now,
		logger: logger,
	}
}

// storeCall runs fn with a per-attempt deadline and retries transient
// failures with exponential backoff.
func (e *engine) storeCall(ctx context.Context, fn func(ctx context.Context) error) error {
	backoff := retry.WithMaxRetries(e.cfg.RetryLimit, retry.NewExponential(e.cfg.RetryBase))
	return retry.Do(ctx, backoff, func(ctx context.Context) error {
		attemptCtx, cancel := context.WithTimeout(ctx, e.cfg.StoreTimeout)
		defer cancel()

		err := fn(attemptCtx)
		if err == nil {
			return nil
		}
		if ctx.Err() == nil && errors.Is(err, context.DeadlineExceeded) {
			err = fmt.Errorf("%w: %w", errAttemptTimeout, err)
		}
		if e.retryable(err) {
			return retry.RetryableError(err)
		}
		return err
	})
}

// retryable reports whether err may clear on another attempt. Besides
// transient store errors this covers races lost at write time, which a
// fresh evaluation classifies correctly.
func (e *engine) retryable(err error) bool {
	switch {
	case errors.Is(err, errAttemptTimeout),
		errors.Is(err, store.ErrVersionConflict),
		errors.Is(err, store.ErrNaturalKeyTaken),
		errors.Is(err, store.ErrEntityAlreadyExists),
		errors.Is(err, store.ErrDuplicateApplication):
		return true
	}
	return e.storages.Classifier.Classify(err) == store.Retryable
}

func (e *engine) ping(ctx context.Context) error {
	pingCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), e.cfg.StoreTimeout)
	defer cancel()
	return e.storages.Pinger.Ping(pingCtx)
}

// reportPermanent logs and reports a mutation that will not be retried.
func (e *engine) reportPermanent(ctx context.Context, rec models.MutationRecord) {
	reason := ""
	if rec.Error != nil {
		reason = rec.Error.Reason
	}
	logger.FromContext(ctx).Error().
		Str("func", "*engine.reportPermanent").
		Str("device_id", rec.DeviceID).
		Str("mutation_id", rec.ID).
		Str("entity", string(rec.Entity)).
		Str("entity_id", rec.EntityID).
		Int("attempts", rec.AttemptCount).
		Str("reason", reason).
		Msg("mutation failed permanently")

	telemetry.CaptureError(ctx, newPermanentError(rec.ID, reason, nil), map[string]string{
		"device_id":   rec.DeviceID,
		"mutation_id": rec.ID,
		"entity":      string(rec.Entity),
	})
}

// ownedSession loads the session and checks that identity owns it.
func (e *engine) ownedSession(ctx context.Context, identity models.Identity, sessionID string) (models.SyncSession, error) {
	var session models.SyncSession
	err := e.storeCall(ctx, func(ctx context.Context) (err error) {
		session, err = e.storages.Sessions.GetSession(ctx, sessionID)
		return err
	})
	if err != nil {
		return models.SyncSession{}, err
	}
	if session.DeviceID != identity.DeviceID {
		return models.SyncSession{}, ErrSessionNotOwned
	}
	return session, nil
}
