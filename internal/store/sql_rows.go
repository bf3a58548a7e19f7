package store

import (
	"database/sql"
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"

	"github.com/MKhiriev/go-pos-sync/models"
)

// jsonList is a []string stored in a JSONB column.
type jsonList []string

func (l jsonList) Value() (driver.Value, error) {
	if l == nil {
		return []byte("[]"), nil
	}
	return json.Marshal([]string(l))
}

func (l *jsonList) Scan(src any) error {
	data, err := columnBytes(src)
	if err != nil || data == nil {
		*l = nil
		return err
	}
	return json.Unmarshal(data, (*[]string)(l))
}

func columnBytes(src any) ([]byte, error) {
	switch v := src.(type) {
	case nil:
		return nil, nil
	case []byte:
		return v, nil
	case string:
		return []byte(v), nil
	}
	return nil, fmt.Errorf("%w: unsupported source %T", ErrEncodingColumn, src)
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil || t.IsZero() {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}

func timePtr(t sql.NullTime) *time.Time {
	if !t.Valid {
		return nil
	}
	v := t.Time.UTC()
	return &v
}

func nullString(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}

func stringPtr(s sql.NullString) *string {
	if !s.Valid {
		return nil
	}
	v := s.String
	return &v
}

type mutationRow struct {
	ID              string         `db:"id"`
	DeviceID        string         `db:"device_id"`
	UserID          int64          `db:"user_id"`
	SessionID       string         `db:"session_id"`
	Entity          string         `db:"entity"`
	EntityID        string         `db:"entity_id"`
	Operation       string         `db:"operation"`
	Payload         []byte         `db:"payload"`
	BaseVersion     sql.NullTime   `db:"base_version"`
	Dependencies    jsonList       `db:"dependencies"`
	Priority        string         `db:"priority"`
	Checksum        string         `db:"checksum"`
	Status          string         `db:"status"`
	AttemptCount    int            `db:"attempt_count"`
	LastAttemptAt   sql.NullTime   `db:"last_attempt_at"`
	ErrorKind       sql.NullString `db:"error_kind"`
	ErrorReason     sql.NullString `db:"error_reason"`
	ErrorRetryable  bool           `db:"error_retryable"`
	ErrorPermanent  bool           `db:"error_permanent"`
	ClientCreatedAt time.Time      `db:"client_created_at"`
	AppliedVersion  sql.NullTime   `db:"applied_version"`
	DuplicateOf     sql.NullString `db:"duplicate_of"`
	CreatedAt       time.Time      `db:"created_at"`
}

func (r mutationRow) toModel() (models.MutationRecord, error) {
	entity := models.EntityName(r.Entity)
	payload, err := models.ParsePayload(entity, r.Payload)
	if err != nil {
		return models.MutationRecord{}, fmt.Errorf("%w: mutation %s payload: %w", ErrEncodingColumn, r.ID, err)
	}

	m := models.MutationRecord{
		ID:              r.ID,
		DeviceID:        r.DeviceID,
		UserID:          r.UserID,
		SessionID:       r.SessionID,
		Entity:          entity,
		EntityID:        r.EntityID,
		Operation:       models.Operation(r.Operation),
		Payload:         payload,
		Dependencies:    []string(r.Dependencies),
		Priority:        models.Priority(r.Priority),
		Checksum:        r.Checksum,
		Status:          models.MutationStatus(r.Status),
		AttemptCount:    r.AttemptCount,
		LastAttemptAt:   timePtr(r.LastAttemptAt),
		ClientCreatedAt: r.ClientCreatedAt.UTC(),
		AppliedVersion:  timePtr(r.AppliedVersion),
		DuplicateOf:     stringPtr(r.DuplicateOf),
		CreatedAt:       r.CreatedAt.UTC(),
	}
	if r.BaseVersion.Valid {
		m.BaseVersion = r.BaseVersion.Time.UTC()
	}
	if r.ErrorKind.Valid {
		m.Error = &models.ErrorDetail{
			Kind:      models.ErrorKind(r.ErrorKind.String),
			Reason:    r.ErrorReason.String,
			Retryable: r.ErrorRetryable,
			Permanent: r.ErrorPermanent,
		}
	}
	return m, nil
}

func mutationValues(m models.MutationRecord) ([]any, error) {
	payload, err := m.Payload.MarshalJSON()
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrEncodingColumn, err)
	}
	kind, reason, retryable, permanent := errorColumns(m.Error)
	return []any{
		m.ID, m.DeviceID, m.UserID, m.SessionID, string(m.Entity), m.EntityID, string(m.Operation),
		payload, nullTime(&m.BaseVersion), jsonList(m.Dependencies), string(m.Priority), m.Checksum,
		string(m.Status), m.AttemptCount, nullTime(m.LastAttemptAt), kind, reason, retryable, permanent,
		m.ClientCreatedAt, nullTime(m.AppliedVersion), nullString(m.DuplicateOf),
	}, nil
}

func errorColumns(detail *models.ErrorDetail) (sql.NullString, sql.NullString, bool, bool) {
	if detail == nil {
		return sql.NullString{}, sql.NullString{}, false, false
	}
	return sql.NullString{String: string(detail.Kind), Valid: true},
		sql.NullString{String: detail.Reason, Valid: true},
		detail.Retryable, detail.Permanent
}

type conflictRow struct {
	ID             string         `db:"id"`
	MutationID     string         `db:"mutation_id"`
	DeviceID       string         `db:"device_id"`
	Entity         string         `db:"entity"`
	EntityID       string         `db:"entity_id"`
	Type           string         `db:"type"`
	LocalSnapshot  []byte         `db:"local_snapshot"`
	ServerSnapshot []byte         `db:"server_snapshot"`
	LocalFields    jsonList       `db:"local_fields"`
	ServerFields   jsonList       `db:"server_fields"`
	Resolution     string         `db:"resolution"`
	ResolvedBy     sql.NullString `db:"resolved_by"`
	ResolvedAt     sql.NullTime   `db:"resolved_at"`
	Notes          string         `db:"notes"`
	CreatedAt      time.Time      `db:"created_at"`
}

func (r conflictRow) toModel() models.ConflictRecord {
	return models.ConflictRecord{
		ID:             r.ID,
		MutationID:     r.MutationID,
		DeviceID:       r.DeviceID,
		Entity:         models.EntityName(r.Entity),
		EntityID:       r.EntityID,
		Type:           models.ConflictType(r.Type),
		LocalSnapshot:  r.LocalSnapshot,
		ServerSnapshot: r.ServerSnapshot,
		LocalFields:    []string(r.LocalFields),
		ServerFields:   []string(r.ServerFields),
		Resolution:     models.Resolution(r.Resolution),
		ResolvedBy:     stringPtr(r.ResolvedBy),
		ResolvedAt:     timePtr(r.ResolvedAt),
		Notes:          r.Notes,
		CreatedAt:      r.CreatedAt.UTC(),
	}
}

func jsonDocument(raw json.RawMessage) any {
	if len(raw) == 0 {
		return nil
	}
	return []byte(raw)
}

type sessionRow struct {
	ID              string       `db:"id"`
	DeviceID        string       `db:"device_id"`
	UserID          int64        `db:"user_id"`
	Type            string       `db:"type"`
	Status          string       `db:"status"`
	StartedAt       time.Time    `db:"started_at"`
	EndedAt         sql.NullTime `db:"ended_at"`
	RecordsReceived int          `db:"records_received"`
	RecordsSent     int          `db:"records_sent"`
	BytesReceived   int64        `db:"bytes_received"`
	BytesSent       int64        `db:"bytes_sent"`
	AppliedCount    int          `db:"applied_count"`
	DuplicateCount  int          `db:"duplicate_count"`
	ConflictCount   int          `db:"conflict_count"`
	ErrorCount      int          `db:"error_count"`
	HeldCount       int          `db:"held_count"`
	ChangeCursor    int64        `db:"change_cursor"`
	DurationMillis  int64        `db:"duration_ms"`
	Throughput      float64      `db:"throughput"`
	SuccessRatio    float64      `db:"success_ratio"`
	Errors          []byte       `db:"errors"`
}

func (r sessionRow) toModel() (models.SyncSession, error) {
	s := models.SyncSession{
		ID:              r.ID,
		DeviceID:        r.DeviceID,
		UserID:          r.UserID,
		Type:            models.SessionType(r.Type),
		Status:          models.SessionStatus(r.Status),
		StartedAt:       r.StartedAt.UTC(),
		EndedAt:         timePtr(r.EndedAt),
		RecordsReceived: r.RecordsReceived,
		RecordsSent:     r.RecordsSent,
		BytesReceived:   r.BytesReceived,
		BytesSent:       r.BytesSent,
		AppliedCount:    r.AppliedCount,
		DuplicateCount:  r.DuplicateCount,
		ConflictCount:   r.ConflictCount,
		ErrorCount:      r.ErrorCount,
		HeldCount:       r.HeldCount,
		ChangeCursor:    r.ChangeCursor,
		DurationMillis:  r.DurationMillis,
		Throughput:      r.Throughput,
		SuccessRatio:    r.SuccessRatio,
	}
	if len(r.Errors) > 0 {
		if err := json.Unmarshal(r.Errors, &s.Errors); err != nil {
			return models.SyncSession{}, fmt.Errorf("%w: session errors: %w", ErrEncodingColumn, err)
		}
	}
	return s, nil
}

type entityRow struct {
	Entity            string    `db:"entity"`
	ID                string    `db:"id"`
	NaturalKey        string    `db:"natural_key"`
	Document          []byte    `db:"document"`
	Revision          int64     `db:"revision"`
	CreatedAt         time.Time `db:"created_at"`
	UpdatedAt         time.Time `db:"updated_at"`
	UpdatedByDevice   string    `db:"updated_by_device"`
	CreatedByMutation string    `db:"created_by_mutation"`
	Deleted           bool      `db:"deleted"`
}

func (r entityRow) toModel() models.EntityRecord {
	return models.EntityRecord{
		Entity:            models.EntityName(r.Entity),
		ID:                r.ID,
		NaturalKey:        r.NaturalKey,
		Document:          r.Document,
		Revision:          r.Revision,
		CreatedAt:         r.CreatedAt.UTC(),
		UpdatedAt:         r.UpdatedAt.UTC(),
		UpdatedByDevice:   r.UpdatedByDevice,
		CreatedByMutation: r.CreatedByMutation,
		Deleted:           r.Deleted,
	}
}

type changeRow struct {
	ID             int64     `db:"id"`
	Entity         string    `db:"entity"`
	EntityID       string    `db:"entity_id"`
	Operation      string    `db:"operation"`
	ChangedFields  jsonList  `db:"changed_fields"`
	Document       []byte    `db:"document"`
	SourceDeviceID string    `db:"source_device_id"`
	MutationID     string    `db:"mutation_id"`
	ChangedAt      time.Time `db:"changed_at"`
}

func (r changeRow) toModel() models.ServerChange {
	return models.ServerChange{
		ID:             r.ID,
		Entity:         models.EntityName(r.Entity),
		EntityID:       r.EntityID,
		Operation:      models.Operation(r.Operation),
		ChangedFields:  []string(r.ChangedFields),
		Document:       r.Document,
		SourceDeviceID: r.SourceDeviceID,
		MutationID:     r.MutationID,
		ChangedAt:      r.ChangedAt.UTC(),
	}
}
