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

// entityRepository is the PostgreSQL-backed implementation of
// [EntityRepository] over "entity_records". Writes use an optimistic
// revision check; reads inside a transaction take a row lock.
type entityRepository struct {
	*DB
	logger *logger.Logger
}

// NewEntityRepository constructs an [EntityRepository] backed by db.
func NewEntityRepository(db *DB, logger *logger.Logger) EntityRepository {
	logger.Debug().Msg("creating entity repository")
	return &entityRepository{DB: db, logger: logger}
}

func (r *entityRepository) GetEntity(ctx context.Context, entity models.EntityName, id string) (models.EntityRecord, error) {
	query, args, err := buildSelectEntityQuery(entity, id, inTransaction(ctx))
	if err != nil {
		return models.EntityRecord{}, fmt.Errorf("%w: %w", ErrBuildingSQLQuery, err)
	}
	return r.getEntity(ctx, "*entityRepository.GetEntity", query, args)
}

func (r *entityRepository) FindByNaturalKey(ctx context.Context, entity models.EntityName, key string) (models.EntityRecord, error) {
	if key == "" {
		return models.EntityRecord{}, ErrEntityNotFound
	}
	query, args, err := buildSelectByNaturalKeyQuery(entity, key, inTransaction(ctx))
	if err != nil {
		return models.EntityRecord{}, fmt.Errorf("%w: %w", ErrBuildingSQLQuery, err)
	}
	return r.getEntity(ctx, "*entityRepository.FindByNaturalKey", query, args)
}

// InsertEntity stores a new record.
//
// Error handling:
//   - unique violation on uq_entity_records_natural_key → [ErrNaturalKeyTaken].
//   - any other unique violation (primary key) → [ErrEntityAlreadyExists].
func (r *entityRepository) InsertEntity(ctx context.Context, record models.EntityRecord) error {
	log := logger.FromContext(ctx)

	query, args, err := buildInsertEntityQuery(record)
	if err != nil {
		log.Err(err).Str("func", "*entityRepository.InsertEntity").Msg("failed to build query")
		return fmt.Errorf("%w: %w", ErrBuildingSQLQuery, err)
	}

	if _, err = r.executor(ctx).ExecContext(ctx, query, args...); err != nil {
		log.Err(err).
			Str("func", "*entityRepository.InsertEntity").
			Str("entity", string(record.Entity)).
			Str("entity_id", record.ID).
			Msg("failed to insert entity record")
		return entityWriteError(err)
	}
	return nil
}

// UpdateEntity implements [EntityRepository]. Zero affected rows means the
// revision moved and yields [ErrVersionConflict].
func (r *entityRepository) UpdateEntity(ctx context.Context, record models.EntityRecord, expectedRevision int64) error {
	log := logger.FromContext(ctx)

	query, args, err := buildUpdateEntityQuery(record, expectedRevision)
	if err != nil {
		log.Err(err).Str("func", "*entityRepository.UpdateEntity").Msg("failed to build query")
		return fmt.Errorf("%w: %w", ErrBuildingSQLQuery, err)
	}

	res, err := r.executor(ctx).ExecContext(ctx, query, args...)
	if err != nil {
		log.Err(err).
			Str("func", "*entityRepository.UpdateEntity").
			Str("entity", string(record.Entity)).
			Str("entity_id", record.ID).
			Msg("failed to update entity record")
		return entityWriteError(err)
	}
	if affected, _ := res.RowsAffected(); affected == 0 {
		return ErrVersionConflict
	}
	return nil
}

func (r *entityRepository) getEntity(ctx context.Context, fn, query string, args []any) (models.EntityRecord, error) {
	var row entityRow
	if err := sqlx.GetContext(ctx, r.executor(ctx), &row, query, args...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return models.EntityRecord{}, ErrEntityNotFound
		}
		logger.FromContext(ctx).Err(err).Str("func", fn).Msg("failed to select entity record")
		return models.EntityRecord{}, fmt.Errorf("%w: %w", ErrExecutingQuery, err)
	}
	return row.toModel(), nil
}

func entityWriteError(err error) error {
	code, constraint := postgresError(err)
	if code != pgerrcode.UniqueViolation {
		return fmt.Errorf("%w: %w", ErrExecutingStatement, err)
	}
	if constraint == "uq_entity_records_natural_key" {
		return ErrNaturalKeyTaken
	}
	return ErrEntityAlreadyExists
}
