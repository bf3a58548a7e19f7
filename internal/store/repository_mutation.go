package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jackc/pgerrcode"
	"github.com/jmoiron/sqlx"

	"github.com/MKhiriev/go-pos-sync/internal/logger"
	"github.com/MKhiriev/go-pos-sync/models"
)

// mutationRepository is the PostgreSQL-backed implementation of
// [MutationRepository] over the "sync_mutations" table.
//
// Every method runs on the transaction carried by ctx when there is one.
type mutationRepository struct {
	*DB
	logger *logger.Logger
}

// NewMutationRepository constructs a [MutationRepository] backed by db.
func NewMutationRepository(db *DB, logger *logger.Logger) MutationRepository {
	logger.Debug().Msg("creating mutation repository")
	return &mutationRepository{DB: db, logger: logger}
}

// InsertMutations stores all records in a single INSERT. Ids that are already
// present are skipped by ON CONFLICT DO NOTHING, so re-submitting a batch
// never overwrites the durable state of earlier attempts.
func (r *mutationRepository) InsertMutations(ctx context.Context, records ...models.MutationRecord) error {
	if len(records) == 0 {
		return nil
	}
	log := logger.FromContext(ctx)

	query, args, err := buildInsertMutationsQuery(records)
	if err != nil {
		log.Err(err).Str("func", "*mutationRepository.InsertMutations").Msg("failed to build query")
		return fmt.Errorf("%w: %w", ErrBuildingSQLQuery, err)
	}

	if _, err = r.executor(ctx).ExecContext(ctx, query, args...); err != nil {
		log.Err(err).
			Str("func", "*mutationRepository.InsertMutations").
			Int("records", len(records)).
			Msg("failed to insert mutations")
		return fmt.Errorf("%w: %w", ErrExecutingStatement, err)
	}
	return nil
}

// GetMutations returns the records with the given ids. Missing ids are
// silently absent from the result.
func (r *mutationRepository) GetMutations(ctx context.Context, ids ...string) ([]models.MutationRecord, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	log := logger.FromContext(ctx)

	query, args, err := buildSelectMutationsQuery(ids)
	if err != nil {
		log.Err(err).Str("func", "*mutationRepository.GetMutations").Msg("failed to build query")
		return nil, fmt.Errorf("%w: %w", ErrBuildingSQLQuery, err)
	}
	return r.selectMutations(ctx, "*mutationRepository.GetMutations", query, args)
}

// UpdateMutation writes the mutable lifecycle columns of record.
//
// Error handling:
//   - unique violation on the applied checksum index → [ErrDuplicateApplication].
//   - no row updated → [ErrMutationNotFound].
func (r *mutationRepository) UpdateMutation(ctx context.Context, record models.MutationRecord) error {
	log := logger.FromContext(ctx)

	query, args, err := buildUpdateMutationQuery(record)
	if err != nil {
		log.Err(err).Str("func", "*mutationRepository.UpdateMutation").Msg("failed to build query")
		return fmt.Errorf("%w: %w", ErrBuildingSQLQuery, err)
	}

	res, err := r.executor(ctx).ExecContext(ctx, query, args...)
	if err != nil {
		log.Err(err).
			Str("func", "*mutationRepository.UpdateMutation").
			Str("mutation_id", record.ID).
			Msg("failed to update mutation")
		if code, constraint := postgresError(err); code == pgerrcode.UniqueViolation && constraint == "uq_sync_mutations_applied_checksum" {
			return ErrDuplicateApplication
		}
		return fmt.Errorf("%w: %w", ErrExecutingStatement, err)
	}

	if affected, _ := res.RowsAffected(); affected == 0 {
		return ErrMutationNotFound
	}
	return nil
}

// FindAppliedByChecksum implements [MutationRepository].
func (r *mutationRepository) FindAppliedByChecksum(ctx context.Context, deviceID, checksum string) (models.MutationRecord, error) {
	log := logger.FromContext(ctx)

	query, args, err := buildFindAppliedByChecksumQuery(deviceID, checksum)
	if err != nil {
		log.Err(err).Str("func", "*mutationRepository.FindAppliedByChecksum").Msg("failed to build query")
		return models.MutationRecord{}, fmt.Errorf("%w: %w", ErrBuildingSQLQuery, err)
	}

	var row mutationRow
	if err = sqlx.GetContext(ctx, r.executor(ctx), &row, query, args...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return models.MutationRecord{}, ErrMutationNotFound
		}
		log.Err(err).
			Str("func", "*mutationRepository.FindAppliedByChecksum").
			Str("device_id", deviceID).
			Msg("failed to look up applied mutation")
		return models.MutationRecord{}, fmt.Errorf("%w: %w", ErrExecutingQuery, err)
	}
	return row.toModel()
}

// ListCarryOver implements [MutationRepository].
func (r *mutationRepository) ListCarryOver(ctx context.Context, deviceID string) ([]models.MutationRecord, error) {
	query, args, err := buildCarryOverQuery(deviceID)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrBuildingSQLQuery, err)
	}
	return r.selectMutations(ctx, "*mutationRepository.ListCarryOver", query, args)
}

// ListFailed implements [MutationRepository].
func (r *mutationRepository) ListFailed(ctx context.Context, filter FailedFilter) ([]models.MutationRecord, error) {
	query, args, err := buildFailedQuery(filter)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrBuildingSQLQuery, err)
	}
	return r.selectMutations(ctx, "*mutationRepository.ListFailed", query, args)
}

// RevertProcessing implements [MutationRepository] and returns the number of
// reverted records.
func (r *mutationRepository) RevertProcessing(ctx context.Context, filter RevertFilter) (int64, error) {
	log := logger.FromContext(ctx)

	query, args, err := buildRevertProcessingQuery(filter)
	if err != nil {
		log.Err(err).Str("func", "*mutationRepository.RevertProcessing").Msg("failed to build query")
		return 0, fmt.Errorf("%w: %w", ErrBuildingSQLQuery, err)
	}

	res, err := r.executor(ctx).ExecContext(ctx, query, args...)
	if err != nil {
		log.Err(err).
			Str("func", "*mutationRepository.RevertProcessing").
			Str("session_id", filter.SessionID).
			Msg("failed to revert processing mutations")
		return 0, fmt.Errorf("%w: %w", ErrExecutingStatement, err)
	}
	affected, _ := res.RowsAffected()
	return affected, nil
}

func (r *mutationRepository) selectMutations(ctx context.Context, fn, query string, args []any) ([]models.MutationRecord, error) {
	log := logger.FromContext(ctx)

	var rows []mutationRow
	if err := sqlx.SelectContext(ctx, r.executor(ctx), &rows, query, args...); err != nil {
		log.Err(err).Str("func", fn).Msg("failed to select mutations")
		return nil, fmt.Errorf("%w: %w", ErrExecutingQuery, err)
	}

	records := make([]models.MutationRecord, 0, len(rows))
	for _, row := range rows {
		m, err := row.toModel()
		if err != nil {
			log.Err(err).Str("func", fn).Str("mutation_id", row.ID).Msg("failed to decode mutation row")
			return nil, err
		}
		records = append(records, m)
	}
	return records, nil
}
