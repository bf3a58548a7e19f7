package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/MKhiriev/go-pos-sync/internal/logger"
	"github.com/MKhiriev/go-pos-sync/models"
)

// sessionRepository is the PostgreSQL-backed implementation of
// [SessionRepository] over the "sync_sessions" table.
type sessionRepository struct {
	*DB
	logger *logger.Logger
}

// NewSessionRepository constructs a [SessionRepository] backed by db.
func NewSessionRepository(db *DB, logger *logger.Logger) SessionRepository {
	logger.Debug().Msg("creating session repository")
	return &sessionRepository{DB: db, logger: logger}
}

func (r *sessionRepository) CreateSession(ctx context.Context, session models.SyncSession) error {
	log := logger.FromContext(ctx)

	query, args, err := buildInsertSessionQuery(session)
	if err != nil {
		log.Err(err).Str("func", "*sessionRepository.CreateSession").Msg("failed to build query")
		return fmt.Errorf("%w: %w", ErrBuildingSQLQuery, err)
	}

	if _, err = r.executor(ctx).ExecContext(ctx, query, args...); err != nil {
		log.Err(err).
			Str("func", "*sessionRepository.CreateSession").
			Str("session_id", session.ID).
			Msg("failed to insert session")
		return fmt.Errorf("%w: %w", ErrExecutingStatement, err)
	}
	return nil
}

func (r *sessionRepository) GetSession(ctx context.Context, id string) (models.SyncSession, error) {
	query, args, err := buildSelectSessionQuery(id)
	if err != nil {
		return models.SyncSession{}, fmt.Errorf("%w: %w", ErrBuildingSQLQuery, err)
	}
	return r.getSession(ctx, "*sessionRepository.GetSession", query, args)
}

// UpdateSession writes counters and status of a session that is not yet
// completed. When no row matches it tells a missing session apart from a
// completed one with a follow-up read.
func (r *sessionRepository) UpdateSession(ctx context.Context, session models.SyncSession) error {
	log := logger.FromContext(ctx)

	query, args, err := buildUpdateSessionQuery(session)
	if err != nil {
		log.Err(err).Str("func", "*sessionRepository.UpdateSession").Msg("failed to build query")
		return fmt.Errorf("%w: %w", ErrBuildingSQLQuery, err)
	}

	res, err := r.executor(ctx).ExecContext(ctx, query, args...)
	if err != nil {
		log.Err(err).
			Str("func", "*sessionRepository.UpdateSession").
			Str("session_id", session.ID).
			Msg("failed to update session")
		return fmt.Errorf("%w: %w", ErrExecutingStatement, err)
	}
	if affected, _ := res.RowsAffected(); affected > 0 {
		return nil
	}

	if _, err = r.GetSession(ctx, session.ID); err != nil {
		return err
	}
	return ErrSessionCompleted
}

func (r *sessionRepository) LastCompletedSession(ctx context.Context, deviceID string) (models.SyncSession, error) {
	query, args, err := buildLastCompletedSessionQuery(deviceID)
	if err != nil {
		return models.SyncSession{}, fmt.Errorf("%w: %w", ErrBuildingSQLQuery, err)
	}
	return r.getSession(ctx, "*sessionRepository.LastCompletedSession", query, args)
}

func (r *sessionRepository) getSession(ctx context.Context, fn, query string, args []any) (models.SyncSession, error) {
	var row sessionRow
	if err := sqlx.GetContext(ctx, r.executor(ctx), &row, query, args...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return models.SyncSession{}, ErrSessionNotFound
		}
		logger.FromContext(ctx).Err(err).Str("func", fn).Msg("failed to select session")
		return models.SyncSession{}, fmt.Errorf("%w: %w", ErrExecutingQuery, err)
	}
	return row.toModel()
}
