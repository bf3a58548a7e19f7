package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/MKhiriev/go-pos-sync/internal/adapter"
	"github.com/MKhiriev/go-pos-sync/internal/checksum"
	"github.com/MKhiriev/go-pos-sync/internal/logger"
	"github.com/MKhiriev/go-pos-sync/internal/store"
	"github.com/MKhiriev/go-pos-sync/internal/utils"
	"github.com/MKhiriev/go-pos-sync/internal/validators"
	"github.com/MKhiriev/go-pos-sync/models"
)

// PushReport describes one push of the outbox.
type PushReport struct {
	SessionID string              `json:"session_id"`
	Sent      int                 `json:"sent"`
	Summary   models.BatchSummary `json:"summary"`
	Pulled    int                 `json:"pulled_changes"`
	Close     models.SyncSummary  `json:"close"`
}

type clientSyncService struct {
	outbox    store.OutboxStorage
	adapter   adapter.SyncAdapter
	validator validators.Validator
	ids       utils.IDGenerator
	batchSize int
	now       func() time.Time
}

// NewClientSyncService builds the device side of the protocol over the local
// outbox. At most batchSize mutations are sent per push.
func NewClientSyncService(outbox store.OutboxStorage, syncAdapter adapter.SyncAdapter, ids utils.IDGenerator, batchSize int) ClientSyncService {
	if ids == nil {
		ids = utils.NewUUIDGenerator()
	}
	return &clientSyncService{
		outbox:    outbox,
		adapter:   syncAdapter,
		validator: validators.NewMutationValidator(batchSize),
		ids:       ids,
		batchSize: batchSize,
		now:       time.Now,
	}
}

// Enqueue fills the id, priority and client timestamp of input when they are
// missing, stamps its checksum and stores it as queued.
func (s *clientSyncService) Enqueue(ctx context.Context, input models.MutationInput) (models.MutationInput, error) {
	if input.ID == "" {
		input.ID = s.ids.Generate()
	}
	if input.Priority == "" {
		input.Priority = models.PriorityMedium
	}
	if input.ClientTS.IsZero() {
		input.ClientTS = s.now().UTC()
	}
	if input.BaseVersion != nil {
		v := models.TruncateVersion(*input.BaseVersion)
		input.BaseVersion = &v
	}
	input.Checksum = strings.ToLower(input.Checksum)

	if err := s.validator.Validate(ctx, input); err != nil {
		return models.MutationInput{}, fmt.Errorf("%w: %w", ErrInvalidDataProvided, err)
	}

	payload, err := models.ParsePayload(input.Entity, input.Payload)
	if err != nil {
		return models.MutationInput{}, fmt.Errorf("%w: %w", ErrInvalidDataProvided, err)
	}
	in := checksum.Input{
		Entity:    input.Entity,
		EntityID:  input.EntityID,
		Operation: input.Operation,
		Payload:   payload,
	}
	if input.BaseVersion != nil {
		in.BaseVersion = *input.BaseVersion
	}
	sum, err := checksum.Compute(in)
	if err != nil {
		return models.MutationInput{}, fmt.Errorf("%w: %w", ErrInvalidDataProvided, err)
	}
	if input.Checksum != "" && input.Checksum != sum {
		return models.MutationInput{}, fmt.Errorf("%w: %s", ErrInvalidDataProvided, ReasonChecksumMismatch)
	}
	input.Checksum = sum

	if err = s.outbox.Enqueue(ctx, input); err != nil {
		return models.MutationInput{}, fmt.Errorf("enqueue mutation: %w", err)
	}
	return input, nil
}

// Push opens a session, sends up to batchSize queued mutations, records the
// outcomes and pulled changes locally and closes the session. A push with
// an empty outbox still pulls server changes.
//
// A failed batch leaves the mutations queued; resending them is safe. The
// session is closed on every path once opened.
func (s *clientSyncService) Push(ctx context.Context, sessionType models.SessionType) (PushReport, error) {
	log := logger.FromContext(ctx)

	queued, err := s.outbox.Queued(ctx, s.batchSize)
	if err != nil {
		return PushReport{}, fmt.Errorf("read outbox: %w", err)
	}

	opened, err := s.adapter.OpenSession(ctx, models.OpenSessionRequest{Type: sessionType})
	if err != nil {
		return PushReport{}, fmt.Errorf("open session: %w", err)
	}
	report := PushReport{SessionID: opened.SessionID, Sent: len(queued)}

	closed := false
	defer func() {
		if closed {
			return
		}
		if _, closeErr := s.adapter.CloseSession(context.WithoutCancel(ctx), opened.SessionID); closeErr != nil {
			log.Warn().Err(closeErr).Str("session_id", opened.SessionID).Msg("error closing session after failed push")
		}
	}()

	result, err := s.adapter.SendBatch(ctx, opened.SessionID, models.BatchRequest{Mutations: queued})
	if err != nil {
		return report, fmt.Errorf("send batch: %w", err)
	}
	report.Summary = result.Summary

	if err = s.outbox.MarkResults(ctx, result.Results); err != nil {
		return report, fmt.Errorf("record outcomes: %w", err)
	}
	if err = s.outbox.SaveServerChanges(ctx, result.ServerChanges); err != nil {
		return report, fmt.Errorf("save server changes: %w", err)
	}
	report.Pulled = len(result.ServerChanges)

	closed = true
	report.Close, err = s.adapter.CloseSession(ctx, opened.SessionID)
	if err != nil {
		return report, fmt.Errorf("close session: %w", err)
	}

	log.Info().
		Str("func", "*clientSyncService.Push").
		Str("session_id", opened.SessionID).
		Int("sent", report.Sent).
		Int("applied", report.Summary.Applied).
		Int("conflicts", report.Summary.Conflicts).
		Int("errors", report.Summary.Errors).
		Int("pulled", report.Pulled).
		Msg("outbox pushed")
	return report, nil
}

func (s *clientSyncService) Status(ctx context.Context) (models.OutboxStatus, error) {
	status, err := s.outbox.Status(ctx)
	if err != nil {
		return models.OutboxStatus{}, fmt.Errorf("read outbox status: %w", err)
	}
	return status, nil
}
