package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgerrcode"
	"github.com/jmoiron/sqlx"

	"github.com/MKhiriev/go-pos-sync/internal/logger"
	"github.com/MKhiriev/go-pos-sync/models"
)

// conflictRepository is the PostgreSQL-backed implementation of
// [ConflictRepository] over "sync_conflicts" and "sync_conflict_audit".
type conflictRepository struct {
	*DB
	logger *logger.Logger
}

// NewConflictRepository constructs a [ConflictRepository] backed by db.
func NewConflictRepository(db *DB, logger *logger.Logger) ConflictRepository {
	logger.Debug().Msg("creating conflict repository")
	return &conflictRepository{DB: db, logger: logger}
}

// InsertConflict stores a new conflict. A second pending conflict for the
// same mutation violates uq_sync_conflicts_pending_mutation and is reported
// as [ErrPendingConflictExists].
func (r *conflictRepository) InsertConflict(ctx context.Context, conflict models.ConflictRecord) error {
	log := logger.FromContext(ctx)

	query, args, err := buildInsertConflictQuery(conflict)
	if err != nil {
		log.Err(err).Str("func", "*conflictRepository.InsertConflict").Msg("failed to build query")
		return fmt.Errorf("%w: %w", ErrBuildingSQLQuery, err)
	}

	if _, err = r.executor(ctx).ExecContext(ctx, query, args...); err != nil {
		log.Err(err).
			Str("func", "*conflictRepository.InsertConflict").
			Str("mutation_id", conflict.MutationID).
			Msg("failed to insert conflict")
		if code, _ := postgresError(err); code == pgerrcode.UniqueViolation {
			return ErrPendingConflictExists
		}
		return fmt.Errorf("%w: %w", ErrExecutingStatement, err)
	}
	return nil
}

// GetConflict implements [ConflictRepository].
func (r *conflictRepository) GetConflict(ctx context.Context, id string) (models.ConflictRecord, error) {
	query, args, err := buildSelectConflictQuery(id, inTransaction(ctx))
	if err != nil {
		return models.ConflictRecord{}, fmt.Errorf("%w: %w", ErrBuildingSQLQuery, err)
	}
	return r.getConflict(ctx, "*conflictRepository.GetConflict", query, args)
}

// PendingConflictForMutation implements [ConflictRepository].
func (r *conflictRepository) PendingConflictForMutation(ctx context.Context, mutationID string) (models.ConflictRecord, error) {
	query, args, err := buildPendingConflictForMutationQuery(mutationID)
	if err != nil {
		return models.ConflictRecord{}, fmt.Errorf("%w: %w", ErrBuildingSQLQuery, err)
	}
	return r.getConflict(ctx, "*conflictRepository.PendingConflictForMutation", query, args)
}

// ListConflicts implements [ConflictRepository].
func (r *conflictRepository) ListConflicts(ctx context.Context, filter models.ConflictFilter) ([]models.ConflictRecord, error) {
	log := logger.FromContext(ctx)

	query, args, err := buildListConflictsQuery(filter)
	if err != nil {
		log.Err(err).Str("func", "*conflictRepository.ListConflicts").Msg("failed to build query")
		return nil, fmt.Errorf("%w: %w", ErrBuildingSQLQuery, err)
	}

	var rows []conflictRow
	if err = sqlx.SelectContext(ctx, r.executor(ctx), &rows, query, args...); err != nil {
		log.Err(err).Str("func", "*conflictRepository.ListConflicts").Msg("failed to select conflicts")
		return nil, fmt.Errorf("%w: %w", ErrExecutingQuery, err)
	}

	conflicts := make([]models.ConflictRecord, 0, len(rows))
	for _, row := range rows {
		conflicts = append(conflicts, row.toModel())
	}
	return conflicts, nil
}

// UpdateResolution implements [ConflictRepository]. The UPDATE only matches
// pending rows, so a concurrent resolution of the same conflict loses.
func (r *conflictRepository) UpdateResolution(ctx context.Context, conflict models.ConflictRecord) error {
	log := logger.FromContext(ctx)

	query, args, err := buildUpdateResolutionQuery(conflict)
	if err != nil {
		log.Err(err).Str("func", "*conflictRepository.UpdateResolution").Msg("failed to build query")
		return fmt.Errorf("%w: %w", ErrBuildingSQLQuery, err)
	}

	res, err := r.executor(ctx).ExecContext(ctx, query, args...)
	if err != nil {
		log.Err(err).
			Str("func", "*conflictRepository.UpdateResolution").
			Str("conflict_id", conflict.ID).
			Msg("failed to update conflict resolution")
		return fmt.Errorf("%w: %w", ErrExecutingStatement, err)
	}
	if affected, _ := res.RowsAffected(); affected == 0 {
		return ErrConflictAlreadyResolved
	}
	return nil
}

// AppendAudit implements [ConflictRepository].
func (r *conflictRepository) AppendAudit(ctx context.Context, audit models.ConflictAudit) error {
	log := logger.FromContext(ctx)

	query, args, err := buildInsertAuditQuery(audit)
	if err != nil {
		log.Err(err).Str("func", "*conflictRepository.AppendAudit").Msg("failed to build query")
		return fmt.Errorf("%w: %w", ErrBuildingSQLQuery, err)
	}

	if _, err = r.executor(ctx).ExecContext(ctx, query, args...); err != nil {
		log.Err(err).
			Str("func", "*conflictRepository.AppendAudit").
			Str("conflict_id", audit.ConflictID).
			Msg("failed to append conflict audit")
		return fmt.Errorf("%w: %w", ErrExecutingStatement, err)
	}
	return nil
}

type auditRow struct {
	ID         int64     `db:"id"`
	ConflictID string    `db:"conflict_id"`
	MutationID string    `db:"mutation_id"`
	Action     string    `db:"action"`
	Actor      string    `db:"actor"`
	Notes      string    `db:"notes"`
	CreatedAt  time.Time `db:"created_at"`
}

// ListAudit implements [ConflictRepository].
func (r *conflictRepository) ListAudit(ctx context.Context, conflictID string) ([]models.ConflictAudit, error) {
	log := logger.FromContext(ctx)

	query, args, err := buildListAuditQuery(conflictID)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrBuildingSQLQuery, err)
	}

	var rows []auditRow
	if err = sqlx.SelectContext(ctx, r.executor(ctx), &rows, query, args...); err != nil {
		log.Err(err).Str("func", "*conflictRepository.ListAudit").Msg("failed to select conflict audit")
		return nil, fmt.Errorf("%w: %w", ErrExecutingQuery, err)
	}

	trail := make([]models.ConflictAudit, 0, len(rows))
	for _, row := range rows {
		trail = append(trail, models.ConflictAudit{
			ID:         row.ID,
			ConflictID: row.ConflictID,
			MutationID: row.MutationID,
			Action:     models.Resolution(row.Action),
			Actor:      row.Actor,
			Notes:      row.Notes,
			CreatedAt:  row.CreatedAt.UTC(),
		})
	}
	return trail, nil
}

func (r *conflictRepository) getConflict(ctx context.Context, fn, query string, args []any) (models.ConflictRecord, error) {
	var row conflictRow
	if err := sqlx.GetContext(ctx, r.executor(ctx), &row, query, args...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return models.ConflictRecord{}, ErrConflictNotFound
		}
		logger.FromContext(ctx).Err(err).Str("func", fn).Msg("failed to select conflict")
		return models.ConflictRecord{}, fmt.Errorf("%w: %w", ErrExecutingQuery, err)
	}
	return row.toModel(), nil
}
