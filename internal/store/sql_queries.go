// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Rasul Khiriev

package store

import (
	"encoding/json"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"

	"github.com/MKhiriev/go-pos-sync/models"
)

var psql = sq.StatementBuilder.PlaceholderFormat(sq.Dollar)

const (
	tableMutations     = "sync_mutations"
	tableConflicts     = "sync_conflicts"
	tableConflictAudit = "sync_conflict_audit"
	tableSessions      = "sync_sessions"
	tableEntities      = "entity_records"
	tableChanges       = "server_changes"
)

var (
	mutationInsertColumns = []string{
		"id", "device_id", "user_id", "session_id", "entity", "entity_id", "operation",
		"payload", "base_version", "dependencies", "priority", "checksum",
		"status", "attempt_count", "last_attempt_at", "error_kind", "error_reason", "error_retryable", "error_permanent",
		"client_created_at", "applied_version", "duplicate_of",
	}
	mutationColumns = append(append([]string{}, mutationInsertColumns...), "created_at")

	conflictColumns = []string{
		"id", "mutation_id", "device_id", "entity", "entity_id", "type",
		"local_snapshot", "server_snapshot", "local_fields", "server_fields",
		"resolution", "resolved_by", "resolved_at", "notes", "created_at",
	}

	sessionColumns = []string{
		"id", "device_id", "user_id", "type", "status", "started_at", "ended_at",
		"records_received", "records_sent", "bytes_received", "bytes_sent",
		"applied_count", "duplicate_count", "conflict_count", "error_count", "held_count",
		"change_cursor", "duration_ms", "throughput", "success_ratio", "errors",
	}

	entityColumns = []string{
		"entity", "id", "natural_key", "document", "revision", "created_at", "updated_at",
		"updated_by_device", "created_by_mutation", "deleted",
	}

	changeColumns = []string{
		"id", "entity", "entity_id", "operation", "changed_fields", "document",
		"source_device_id", "mutation_id", "changed_at",
	}
)

// ── mutations ─────────────────────────────────────────────────────────────────

func buildInsertMutationsQuery(records []models.MutationRecord) (string, []any, error) {
	builder := psql.Insert(tableMutations).Columns(mutationInsertColumns...)
	for _, m := range records {
		values, err := mutationValues(m)
		if err != nil {
			return "", nil, err
		}
		builder = builder.Values(values...)
	}
	return builder.Suffix("ON CONFLICT (id) DO NOTHING").ToSql()
}

func buildSelectMutationsQuery(ids []string) (string, []any, error) {
	return psql.Select(mutationColumns...).
		From(tableMutations).
		Where(sq.Eq{"id": ids}).
		OrderBy("client_created_at", "id").
		ToSql()
}

func buildUpdateMutationQuery(m models.MutationRecord) (string, []any, error) {
	kind, reason, retryable, permanent := errorColumns(m.Error)
	return psql.Update(tableMutations).
		SetMap(map[string]any{
			"session_id":      m.SessionID,
			"status":          string(m.Status),
			"attempt_count":   m.AttemptCount,
			"last_attempt_at": nullTime(m.LastAttemptAt),
			"error_kind":      kind,
			"error_reason":    reason,
			"error_retryable": retryable,
			"error_permanent": permanent,
			"applied_version": nullTime(m.AppliedVersion),
			"duplicate_of":    nullString(m.DuplicateOf),
		}).
		Where(sq.Eq{"id": m.ID}).
		ToSql()
}

func buildFindAppliedByChecksumQuery(deviceID, checksum string) (string, []any, error) {
	return psql.Select(mutationColumns...).
		From(tableMutations).
		Where(sq.Eq{
			"device_id": deviceID,
			"checksum":  checksum,
			"status":    string(models.MutationStatusApplied),
		}).
		Where("duplicate_of IS NULL").
		Limit(1).
		ToSql()
}

func buildCarryOverQuery(deviceID string) (string, []any, error) {
	return psql.Select(mutationColumns...).
		From(tableMutations).
		Where(sq.Eq{"device_id": deviceID}).
		Where(sq.Or{
			sq.Eq{"status": []string{string(models.MutationStatusPending), string(models.MutationStatusProcessing)}},
			sq.And{
				sq.Eq{"status": string(models.MutationStatusError)},
				sq.Eq{"error_retryable": true},
				sq.Eq{"error_permanent": false},
			},
		}).
		OrderBy("client_created_at", "id").
		ToSql()
}

func buildFailedQuery(filter FailedFilter) (string, []any, error) {
	builder := psql.Select(mutationColumns...).
		From(tableMutations).
		Where(sq.Eq{"status": string(models.MutationStatusError)}).
		Where(sq.Or{sq.Eq{"error_permanent": true}, sq.Eq{"error_retryable": false}})
	if filter.DeviceID != "" {
		builder = builder.Where(sq.Eq{"device_id": filter.DeviceID})
	}
	if filter.Limit > 0 {
		builder = builder.Limit(filter.Limit)
	}
	return builder.OrderBy("last_attempt_at DESC", "id").ToSql()
}

func buildRevertProcessingQuery(filter RevertFilter) (string, []any, error) {
	builder := psql.Update(tableMutations).
		Set("status", string(models.MutationStatusPending)).
		Where(sq.Eq{"status": string(models.MutationStatusProcessing)})
	if filter.SessionID != "" {
		builder = builder.Where(sq.Eq{"session_id": filter.SessionID})
	}
	if filter.DeviceID != "" {
		builder = builder.Where(sq.Eq{"device_id": filter.DeviceID})
	}
	if !filter.OlderThan.IsZero() {
		builder = builder.Where(sq.Lt{"last_attempt_at": filter.OlderThan})
	}
	return builder.ToSql()
}

// ── conflicts ─────────────────────────────────────────────────────────────────

func buildInsertConflictQuery(c models.ConflictRecord) (string, []any, error) {
	return psql.Insert(tableConflicts).
		Columns(conflictColumns...).
		Values(
			c.ID, c.MutationID, c.DeviceID, string(c.Entity), c.EntityID, string(c.Type),
			jsonDocument(c.LocalSnapshot), jsonDocument(c.ServerSnapshot),
			jsonList(c.LocalFields), jsonList(c.ServerFields),
			string(c.Resolution), nullString(c.ResolvedBy), nullTime(c.ResolvedAt), c.Notes, c.CreatedAt,
		).
		ToSql()
}

func buildSelectConflictQuery(id string, forUpdate bool) (string, []any, error) {
	builder := psql.Select(conflictColumns...).From(tableConflicts).Where(sq.Eq{"id": id})
	if forUpdate {
		builder = builder.Suffix("FOR UPDATE")
	}
	return builder.ToSql()
}

func buildPendingConflictForMutationQuery(mutationID string) (string, []any, error) {
	return psql.Select(conflictColumns...).
		From(tableConflicts).
		Where(sq.Eq{"mutation_id": mutationID, "resolution": string(models.ResolutionPending)}).
		ToSql()
}

func buildListConflictsQuery(filter models.ConflictFilter) (string, []any, error) {
	builder := psql.Select(conflictColumns...).From(tableConflicts)
	if filter.Resolution != "" {
		builder = builder.Where(sq.Eq{"resolution": string(filter.Resolution)})
	}
	if filter.DeviceID != "" {
		builder = builder.Where(sq.Eq{"device_id": filter.DeviceID})
	}
	if filter.Entity != "" {
		builder = builder.Where(sq.Eq{"entity": string(filter.Entity)})
	}
	if filter.Limit > 0 {
		builder = builder.Limit(filter.Limit)
	}
	return builder.OrderBy("created_at", "id").ToSql()
}

func buildUpdateResolutionQuery(c models.ConflictRecord) (string, []any, error) {
	return psql.Update(tableConflicts).
		SetMap(map[string]any{
			"resolution":  string(c.Resolution),
			"resolved_by": nullString(c.ResolvedBy),
			"resolved_at": nullTime(c.ResolvedAt),
			"notes":       c.Notes,
		}).
		Where(sq.Eq{"id": c.ID, "resolution": string(models.ResolutionPending)}).
		ToSql()
}

func buildInsertAuditQuery(a models.ConflictAudit) (string, []any, error) {
	return psql.Insert(tableConflictAudit).
		Columns("conflict_id", "mutation_id", "action", "actor", "notes", "created_at").
		Values(a.ConflictID, a.MutationID, string(a.Action), a.Actor, a.Notes, a.CreatedAt).
		ToSql()
}

func buildListAuditQuery(conflictID string) (string, []any, error) {
	return psql.Select("id", "conflict_id", "mutation_id", "action", "actor", "notes", "created_at").
		From(tableConflictAudit).
		Where(sq.Eq{"conflict_id": conflictID}).
		OrderBy("id").
		ToSql()
}

// ── sessions ──────────────────────────────────────────────────────────────────

func sessionValues(s models.SyncSession) (map[string]any, error) {
	sessionErrors := s.Errors
	if sessionErrors == nil {
		sessionErrors = []models.SessionError{}
	}
	errs, err := jsonValue(sessionErrors)
	if err != nil {
		return nil, err
	}
	return map[string]any{
		"status":           string(s.Status),
		"ended_at":         nullTime(s.EndedAt),
		"records_received": s.RecordsReceived,
		"records_sent":     s.RecordsSent,
		"bytes_received":   s.BytesReceived,
		"bytes_sent":       s.BytesSent,
		"applied_count":    s.AppliedCount,
		"duplicate_count":  s.DuplicateCount,
		"conflict_count":   s.ConflictCount,
		"error_count":      s.ErrorCount,
		"held_count":       s.HeldCount,
		"change_cursor":    s.ChangeCursor,
		"duration_ms":      s.DurationMillis,
		"throughput":       s.Throughput,
		"success_ratio":    s.SuccessRatio,
		"errors":           errs,
	}, nil
}

func buildInsertSessionQuery(s models.SyncSession) (string, []any, error) {
	values, err := sessionValues(s)
	if err != nil {
		return "", nil, err
	}
	values["id"] = s.ID
	values["device_id"] = s.DeviceID
	values["user_id"] = s.UserID
	values["type"] = string(s.Type)
	values["started_at"] = s.StartedAt
	return psql.Insert(tableSessions).SetMap(values).ToSql()
}

func buildSelectSessionQuery(id string) (string, []any, error) {
	return psql.Select(sessionColumns...).From(tableSessions).Where(sq.Eq{"id": id}).ToSql()
}

func buildUpdateSessionQuery(s models.SyncSession) (string, []any, error) {
	values, err := sessionValues(s)
	if err != nil {
		return "", nil, err
	}
	return psql.Update(tableSessions).
		SetMap(values).
		Where(sq.Eq{"id": s.ID}).
		Where(sq.NotEq{"status": string(models.SessionStatusCompleted)}).
		ToSql()
}

func buildLastCompletedSessionQuery(deviceID string) (string, []any, error) {
	return psql.Select(sessionColumns...).
		From(tableSessions).
		Where(sq.Eq{"device_id": deviceID, "status": string(models.SessionStatusCompleted)}).
		OrderBy("ended_at DESC").
		Limit(1).
		ToSql()
}

// ── entities ──────────────────────────────────────────────────────────────────

func buildSelectEntityQuery(entity models.EntityName, id string, forUpdate bool) (string, []any, error) {
	builder := psql.Select(entityColumns...).
		From(tableEntities).
		Where(sq.Eq{"entity": string(entity), "id": id})
	if forUpdate {
		builder = builder.Suffix("FOR UPDATE")
	}
	return builder.ToSql()
}

func buildSelectByNaturalKeyQuery(entity models.EntityName, key string, forUpdate bool) (string, []any, error) {
	builder := psql.Select(entityColumns...).
		From(tableEntities).
		Where(sq.Eq{"entity": string(entity), "natural_key": key, "deleted": false})
	if forUpdate {
		builder = builder.Suffix("FOR UPDATE")
	}
	return builder.ToSql()
}

func buildInsertEntityQuery(r models.EntityRecord) (string, []any, error) {
	return psql.Insert(tableEntities).
		Columns(entityColumns...).
		Values(string(r.Entity), r.ID, r.NaturalKey, []byte(r.Document), r.Revision, r.CreatedAt, r.UpdatedAt,
			r.UpdatedByDevice, r.CreatedByMutation, r.Deleted).
		ToSql()
}

func buildUpdateEntityQuery(r models.EntityRecord, expectedRevision int64) (string, []any, error) {
	return psql.Update(tableEntities).
		SetMap(map[string]any{
			"natural_key":       r.NaturalKey,
			"document":          []byte(r.Document),
			"revision":          sq.Expr("revision + 1"),
			"updated_at":        r.UpdatedAt,
			"updated_by_device": r.UpdatedByDevice,
			"deleted":           r.Deleted,
		}).
		Where(sq.Eq{"entity": string(r.Entity), "id": r.ID, "revision": expectedRevision}).
		ToSql()
}

// ── change feed ───────────────────────────────────────────────────────────────

func buildInsertChangeQuery(c models.ServerChange) (string, []any, error) {
	return psql.Insert(tableChanges).
		Columns("entity", "entity_id", "operation", "changed_fields", "document", "source_device_id", "mutation_id", "changed_at").
		Values(string(c.Entity), c.EntityID, string(c.Operation), jsonList(c.ChangedFields), jsonDocument(c.Document),
			c.SourceDeviceID, c.MutationID, c.ChangedAt).
		Suffix("RETURNING id").
		ToSql()
}

// changeFeedLockKey names the transaction-scoped advisory lock held by feed
// appends. Ids are assigned under it and follow commit order.
const changeFeedLockKey int64 = 0x706f7366656564

func buildLockChangeFeedQuery() (string, []any, error) {
	return psql.Select().Column(sq.Expr("pg_advisory_xact_lock(?)", changeFeedLockKey)).ToSql()
}

func buildFieldsChangedSinceQuery(entity models.EntityName, id string, since time.Time) (string, []any, error) {
	return psql.Select("changed_fields").
		From(tableChanges).
		Where(sq.Eq{"entity": string(entity), "entity_id": id}).
		Where(sq.Gt{"changed_at": since}).
		ToSql()
}

func buildChangesSinceQuery(filter models.ChangeFilter) (string, []any, error) {
	builder := psql.Select(changeColumns...).
		From(tableChanges).
		Where(sq.Gt{"id": filter.AfterID}).
		OrderBy("id")
	if filter.Limit > 0 {
		builder = builder.Limit(filter.Limit)
	}
	return builder.ToSql()
}

func jsonValue(v any) ([]byte, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrEncodingColumn, err)
	}
	return raw, nil
}
