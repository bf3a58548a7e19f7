// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Rasul Khiriev

package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/jmoiron/sqlx"
	"github.com/mattn/go-sqlite3"

	"github.com/MKhiriev/go-pos-sync/internal/logger"
	"github.com/MKhiriev/go-pos-sync/migrations/outbox"
	"github.com/MKhiriev/go-pos-sync/models"
)

const (
	tableOutbox        = "outbox_mutations"
	tablePulledChanges = "pulled_changes"
	tableOutboxState   = "outbox_state"

	stateKeyCursor = "change_cursor"
)

// sqlite uses the default "?" placeholders.
var sqlite = sq.StatementBuilder

// outboxSQLite is the SQLite-backed implementation of [OutboxStorage].
type outboxSQLite struct {
	db     *sqlx.DB
	logger *logger.Logger
}

// NewOutboxStorage opens (creating if needed) the SQLite outbox at dsn and
// applies its schema. The value ":memory:" keeps the outbox in memory.
func NewOutboxStorage(ctx context.Context, dsn string, log *logger.Logger) (OutboxStorage, error) {
	if dsn == "" {
		dsn = ":memory:"
	}
	if dsn != ":memory:" {
		if dir := filepath.Dir(dsn); dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				log.Err(err).Str("func", "NewOutboxStorage").Msg("error creating outbox directory")
				return nil, fmt.Errorf("error creating outbox directory: %w", err)
			}
		}
	}

	conn, err := sqlx.Open("sqlite3", dsn)
	if err != nil {
		log.Err(err).Str("func", "NewOutboxStorage").Msg("error opening outbox database")
		return nil, fmt.Errorf("error opening outbox database: %w", err)
	}
	// a single connection keeps ":memory:" databases shared and serializes writers
	conn.SetMaxOpenConns(1)

	if err = conn.PingContext(ctx); err != nil {
		log.Err(err).Str("func", "NewOutboxStorage").Msg("error connecting outbox database (ping)")
		_ = conn.Close()
		return nil, err
	}
	if err = outbox.Migrate(conn.DB); err != nil {
		_ = conn.Close()
		return nil, err
	}
	log.Debug().Str("func", "NewOutboxStorage").Str("dsn", dsn).Msg("outbox is ready")

	return &outboxSQLite{db: conn, logger: log}, nil
}

func (o *outboxSQLite) Enqueue(ctx context.Context, mutation models.MutationInput) error {
	log := logger.FromContext(ctx)

	deps, err := json.Marshal(nonNil(mutation.Dependencies))
	if err != nil {
		return fmt.Errorf("%w: %w", ErrEncodingColumn, err)
	}
	payload := string(mutation.Payload)
	if payload == "" {
		payload = "{}"
	}

	query, args, err := sqlite.Insert(tableOutbox).
		Columns("id", "entity", "entity_id", "operation", "payload", "base_version", "dependencies",
			"priority", "client_ts", "checksum", "state", "updated_at").
		Values(mutation.ID, string(mutation.Entity), mutation.EntityID, string(mutation.Operation), payload,
			nullTime(mutation.BaseVersion), string(deps), string(mutation.Priority), mutation.ClientTS.UTC(),
			mutation.Checksum, string(models.OutboxQueued), time.Now().UTC()).
		ToSql()
	if err != nil {
		return fmt.Errorf("%w: %w", ErrBuildingSQLQuery, err)
	}

	if _, err = o.db.ExecContext(ctx, query, args...); err != nil {
		log.Err(err).Str("func", "*outboxSQLite.Enqueue").Str("mutation_id", mutation.ID).Msg("failed to enqueue mutation")
		var sqliteErr sqlite3.Error
		if errors.As(err, &sqliteErr) && sqliteErr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey {
			return ErrOutboxMutationExists
		}
		return fmt.Errorf("%w: %w", ErrExecutingStatement, err)
	}
	return nil
}

type outboxRow struct {
	ID           string       `db:"id"`
	Entity       string       `db:"entity"`
	EntityID     string       `db:"entity_id"`
	Operation    string       `db:"operation"`
	Payload      string       `db:"payload"`
	BaseVersion  sql.NullTime `db:"base_version"`
	Dependencies string       `db:"dependencies"`
	Priority     string       `db:"priority"`
	ClientTS     time.Time    `db:"client_ts"`
	Checksum     string       `db:"checksum"`
}

func (o *outboxSQLite) Queued(ctx context.Context, limit int) ([]models.MutationInput, error) {
	log := logger.FromContext(ctx)

	builder := sqlite.Select("id", "entity", "entity_id", "operation", "payload", "base_version",
		"dependencies", "priority", "client_ts", "checksum").
		From(tableOutbox).
		Where(sq.Eq{"state": string(models.OutboxQueued)}).
		OrderBy("client_ts", "id")
	if limit > 0 {
		builder = builder.Limit(uint64(limit))
	}
	query, args, err := builder.ToSql()
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrBuildingSQLQuery, err)
	}

	var rows []outboxRow
	if err = o.db.SelectContext(ctx, &rows, query, args...); err != nil {
		log.Err(err).Str("func", "*outboxSQLite.Queued").Msg("failed to select queued mutations")
		return nil, fmt.Errorf("%w: %w", ErrExecutingQuery, err)
	}

	mutations := make([]models.MutationInput, 0, len(rows))
	for _, row := range rows {
		in := models.MutationInput{
			ID:          row.ID,
			Operation:   models.Operation(row.Operation),
			Entity:      models.EntityName(row.Entity),
			EntityID:    row.EntityID,
			Payload:     json.RawMessage(row.Payload),
			BaseVersion: timePtr(row.BaseVersion),
			Priority:    models.Priority(row.Priority),
			ClientTS:    row.ClientTS.UTC(),
			Checksum:    row.Checksum,
		}
		if err = json.Unmarshal([]byte(row.Dependencies), &in.Dependencies); err != nil {
			return nil, fmt.Errorf("%w: outbox dependencies of %s: %w", ErrEncodingColumn, row.ID, err)
		}
		mutations = append(mutations, in)
	}
	return mutations, nil
}

// MarkResults applies all results in one transaction. Results for unknown
// ids, such as mutations carried over from another install, are ignored.
func (o *outboxSQLite) MarkResults(ctx context.Context, results []models.MutationResult) (err error) {
	log := logger.FromContext(ctx)

	tx, err := o.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrBeginningTransaction, err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
			return
		}
		if err = tx.Commit(); err != nil {
			err = fmt.Errorf("%w: %w", ErrCommitingTransaction, err)
		}
	}()

	now := time.Now().UTC()
	for _, r := range results {
		query, args, buildErr := sqlite.Update(tableOutbox).
			SetMap(map[string]any{
				"state":          string(models.StateForOutcome(r)),
				"last_outcome":   string(r.Outcome),
				"last_reason":    r.Reason,
				"server_version": nullTime(r.ServerVersion),
				"updated_at":     now,
			}).
			Where(sq.Eq{"id": r.MutationID}).
			ToSql()
		if buildErr != nil {
			return fmt.Errorf("%w: %w", ErrBuildingSQLQuery, buildErr)
		}
		if _, err = tx.ExecContext(ctx, query, args...); err != nil {
			log.Err(err).Str("func", "*outboxSQLite.MarkResults").Str("mutation_id", r.MutationID).Msg("failed to mark result")
			return fmt.Errorf("%w: %w", ErrExecutingStatement, err)
		}
	}
	return nil
}

func (o *outboxSQLite) SaveServerChanges(ctx context.Context, changes []models.ServerChange) (err error) {
	if len(changes) == 0 {
		return nil
	}
	log := logger.FromContext(ctx)

	tx, err := o.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrBeginningTransaction, err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
			return
		}
		if err = tx.Commit(); err != nil {
			err = fmt.Errorf("%w: %w", ErrCommitingTransaction, err)
		}
	}()

	var cursor int64
	for _, c := range changes {
		fields, encErr := json.Marshal(nonNil(c.ChangedFields))
		if encErr != nil {
			return fmt.Errorf("%w: %w", ErrEncodingColumn, encErr)
		}
		var document sql.NullString
		if len(c.Document) > 0 {
			document = sql.NullString{String: string(c.Document), Valid: true}
		}

		query, args, buildErr := sqlite.Insert(tablePulledChanges).
			Columns("id", "entity", "entity_id", "operation", "changed_fields", "document", "changed_at").
			Values(c.ID, string(c.Entity), c.EntityID, string(c.Operation), string(fields), document, c.ChangedAt.UTC()).
			Suffix("ON CONFLICT (id) DO NOTHING").
			ToSql()
		if buildErr != nil {
			return fmt.Errorf("%w: %w", ErrBuildingSQLQuery, buildErr)
		}
		if _, err = tx.ExecContext(ctx, query, args...); err != nil {
			log.Err(err).Str("func", "*outboxSQLite.SaveServerChanges").Int64("change_id", c.ID).Msg("failed to save server change")
			return fmt.Errorf("%w: %w", ErrExecutingStatement, err)
		}
		if c.ID > cursor {
			cursor = c.ID
		}
	}

	query, args, err := sqlite.Insert(tableOutboxState).
		Columns("key", "value").
		Values(stateKeyCursor, strconv.FormatInt(cursor, 10)).
		Suffix("ON CONFLICT (key) DO UPDATE SET value = excluded.value WHERE CAST(excluded.value AS INTEGER) > CAST(outbox_state.value AS INTEGER)").
		ToSql()
	if err != nil {
		return fmt.Errorf("%w: %w", ErrBuildingSQLQuery, err)
	}
	if _, err = tx.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("%w: %w", ErrExecutingStatement, err)
	}
	return nil
}

func (o *outboxSQLite) Status(ctx context.Context) (models.OutboxStatus, error) {
	var status models.OutboxStatus

	query, args, err := sqlite.Select("state", "COUNT(*)").From(tableOutbox).GroupBy("state").ToSql()
	if err != nil {
		return status, fmt.Errorf("%w: %w", ErrBuildingSQLQuery, err)
	}
	rows, err := o.db.QueryxContext(ctx, query, args...)
	if err != nil {
		return status, fmt.Errorf("%w: %w", ErrExecutingQuery, err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			state string
			count int
		)
		if err = rows.Scan(&state, &count); err != nil {
			return status, fmt.Errorf("%w: %w", ErrScanningRow, err)
		}
		switch models.OutboxState(state) {
		case models.OutboxQueued:
			status.Queued = count
		case models.OutboxDone:
			status.Done = count
		case models.OutboxConflict:
			status.Conflict = count
		case models.OutboxFailed:
			status.Failed = count
		}
	}
	if err = rows.Err(); err != nil {
		return status, fmt.Errorf("%w: %w", ErrScanningRow, err)
	}

	if err = o.db.GetContext(ctx, &status.Pulled, "SELECT COUNT(*) FROM "+tablePulledChanges); err != nil {
		return status, fmt.Errorf("%w: %w", ErrExecutingQuery, err)
	}

	var cursor sql.NullString
	err = o.db.GetContext(ctx, &cursor, "SELECT value FROM "+tableOutboxState+" WHERE key = ?", stateKeyCursor)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return status, fmt.Errorf("%w: %w", ErrExecutingQuery, err)
	}
	if cursor.Valid {
		status.ChangeCursor, _ = strconv.ParseInt(cursor.String, 10, 64)
	}
	return status, nil
}

func (o *outboxSQLite) Close() error {
	return o.db.Close()
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
