package store

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/MKhiriev/go-pos-sync/internal/logger"
	"github.com/MKhiriev/go-pos-sync/models"
)

// changeRepository is the PostgreSQL-backed implementation of
// [ChangeRepository] over the "server_changes" feed.
type changeRepository struct {
	*DB
	logger *logger.Logger
}

// NewChangeRepository constructs a [ChangeRepository] backed by db.
func NewChangeRepository(db *DB, logger *logger.Logger) ChangeRepository {
	logger.Debug().Msg("creating change repository")
	return &changeRepository{DB: db, logger: logger}
}

// AppendChange stores change and returns its feed position. The append
// joins the transaction carried by ctx and holds the feed lock until that
// transaction ends.
func (r *changeRepository) AppendChange(ctx context.Context, change models.ServerChange) (id int64, err error) {
	log := logger.FromContext(ctx)

	query, args, err := buildInsertChangeQuery(change)
	if err != nil {
		log.Err(err).Str("func", "*changeRepository.AppendChange").Msg("failed to build query")
		return 0, fmt.Errorf("%w: %w", ErrBuildingSQLQuery, err)
	}
	lockQuery, lockArgs, err := buildLockChangeFeedQuery()
	if err != nil {
		return 0, fmt.Errorf("%w: %w", ErrBuildingSQLQuery, err)
	}

	err = r.WithinTransaction(ctx, func(ctx context.Context) error {
		if _, err := r.executor(ctx).ExecContext(ctx, lockQuery, lockArgs...); err != nil {
			log.Err(err).Str("func", "*changeRepository.AppendChange").Msg("failed to lock change feed")
			return fmt.Errorf("%w: %w", ErrExecutingStatement, err)
		}
		if err := sqlx.GetContext(ctx, r.executor(ctx), &id, query, args...); err != nil {
			log.Err(err).
				Str("func", "*changeRepository.AppendChange").
				Str("entity_id", change.EntityID).
				Msg("failed to append server change")
			return fmt.Errorf("%w: %w", ErrExecutingStatement, err)
		}
		return nil
	})
	return id, err
}

// FieldsChangedSince implements [ChangeRepository]. The result is sorted.
func (r *changeRepository) FieldsChangedSince(ctx context.Context, entity models.EntityName, id string, since time.Time) ([]string, error) {
	log := logger.FromContext(ctx)

	query, args, err := buildFieldsChangedSinceQuery(entity, id, since)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrBuildingSQLQuery, err)
	}

	var lists []jsonList
	if err = sqlx.SelectContext(ctx, r.executor(ctx), &lists, query, args...); err != nil {
		log.Err(err).Str("func", "*changeRepository.FieldsChangedSince").Msg("failed to select changed fields")
		return nil, fmt.Errorf("%w: %w", ErrExecutingQuery, err)
	}
	return unionFields(lists), nil
}

// ChangesSince implements [ChangeRepository]. Entries written by
// filter.ExcludeDevice are skipped but still advance the cursor.
func (r *changeRepository) ChangesSince(ctx context.Context, filter models.ChangeFilter) ([]models.ServerChange, int64, error) {
	log := logger.FromContext(ctx)

	query, args, err := buildChangesSinceQuery(filter)
	if err != nil {
		return nil, filter.AfterID, fmt.Errorf("%w: %w", ErrBuildingSQLQuery, err)
	}

	var rows []changeRow
	if err = sqlx.SelectContext(ctx, r.executor(ctx), &rows, query, args...); err != nil {
		log.Err(err).Str("func", "*changeRepository.ChangesSince").Msg("failed to select server changes")
		return nil, filter.AfterID, fmt.Errorf("%w: %w", ErrExecutingQuery, err)
	}

	cursor := filter.AfterID
	changes := make([]models.ServerChange, 0, len(rows))
	for _, row := range rows {
		cursor = row.ID
		if filter.ExcludeDevice != "" && row.SourceDeviceID == filter.ExcludeDevice {
			continue
		}
		changes = append(changes, row.toModel())
	}
	return changes, cursor, nil
}

func unionFields(lists []jsonList) []string {
	seen := make(map[string]struct{})
	for _, list := range lists {
		for _, f := range list {
			seen[f] = struct{}{}
		}
	}
	fields := make([]string, 0, len(seen))
	for f := range seen {
		fields = append(fields, f)
	}
	sort.Strings(fields)
	return fields
}
