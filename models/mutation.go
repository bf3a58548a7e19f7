package models

import (
	"encoding/json"
	"time"
)

// Operation is the kind of write a mutation performs on its target record.
type Operation string

const (
	OperationCreate Operation = "create"
	OperationUpdate Operation = "update"
	OperationDelete Operation = "delete"
)

// Valid reports whether o is one of the known operations.
func (o Operation) Valid() bool {
	switch o {
	case OperationCreate, OperationUpdate, OperationDelete:
		return true
	}
	return false
}

// Priority orders the ready queue of the dependency resolver.
type Priority string

const (
	PriorityHigh   Priority = "high"
	PriorityMedium Priority = "medium"
	PriorityLow    Priority = "low"
)

// Rank returns a sortable weight; lower ranks are processed first.
func (p Priority) Rank() int {
	switch p {
	case PriorityHigh:
		return 0
	case PriorityLow:
		return 2
	default:
		return 1
	}
}

// Valid reports whether p is one of the known priorities.
func (p Priority) Valid() bool {
	switch p {
	case PriorityHigh, PriorityMedium, PriorityLow:
		return true
	}
	return false
}

// MutationStatus is the lifecycle state of a MutationRecord.
//
//	pending -> processing -> applied | error | conflict
//	conflict -> applied (after resolution)
type MutationStatus string

const (
	MutationStatusPending    MutationStatus = "pending"
	MutationStatusProcessing MutationStatus = "processing"
	MutationStatusApplied    MutationStatus = "applied"
	MutationStatusError      MutationStatus = "error"
	MutationStatusConflict   MutationStatus = "conflict"
)

// ErrorKind classifies why a mutation failed.
type ErrorKind string

const (
	ErrorKindValidation        ErrorKind = "validation"
	ErrorKindDependencyCycle   ErrorKind = "dependency_cycle"
	ErrorKindDependencyPending ErrorKind = "dependency_pending"
	ErrorKindTransientStore    ErrorKind = "transient_store"
	ErrorKindConflict          ErrorKind = "conflict_detected"
	ErrorKindPermanent         ErrorKind = "permanent_failure"
)

// ErrorDetail is the structured failure reason persisted with a mutation.
type ErrorDetail struct {
	Kind      ErrorKind `json:"kind"`
	Reason    string    `json:"reason"`
	Retryable bool      `json:"retryable"`
	Permanent bool      `json:"permanent"`
}

// MutationRecord is one client-submitted write, durable across sessions.
type MutationRecord struct {
	ID              string         `json:"id"`
	DeviceID        string         `json:"device_id"`
	UserID          int64          `json:"user_id"`
	SessionID       string         `json:"session_id"`
	Entity          EntityName     `json:"entity"`
	EntityID        string         `json:"entity_id"`
	Operation       Operation      `json:"operation"`
	Payload         Payload        `json:"payload"`
	BaseVersion     time.Time      `json:"base_version"`
	Dependencies    []string       `json:"dependencies,omitempty"`
	Priority        Priority       `json:"priority"`
	Checksum        string         `json:"checksum"`
	Status          MutationStatus `json:"status"`
	AttemptCount    int            `json:"attempt_count"`
	LastAttemptAt   *time.Time     `json:"last_attempt_at,omitempty"`
	Error           *ErrorDetail   `json:"error_detail,omitempty"`
	ClientCreatedAt time.Time      `json:"client_created_at"`
	AppliedVersion  *time.Time     `json:"applied_version,omitempty"`
	DuplicateOf     *string        `json:"duplicate_of,omitempty"`
	CreatedAt       time.Time      `json:"created_at"`
}

// Terminal reports whether the record will not be evaluated again.
func (m MutationRecord) Terminal() bool {
	switch m.Status {
	case MutationStatusApplied, MutationStatusConflict:
		return true
	case MutationStatusError:
		return m.Error == nil || !m.Error.Retryable || m.Error.Permanent
	}
	return false
}

// Fail moves the record to status error with the given detail.
func (m *MutationRecord) Fail(detail ErrorDetail) {
	m.Status = MutationStatusError
	m.Error = &detail
}

// Hold keeps the record pending with a retryable reason.
func (m *MutationRecord) Hold(kind ErrorKind, reason string) {
	m.Status = MutationStatusPending
	m.Error = &ErrorDetail{Kind: kind, Reason: reason, Retryable: true}
}

// MarkApplied stamps the record applied at version.
func (m *MutationRecord) MarkApplied(version time.Time) {
	m.Status = MutationStatusApplied
	m.Error = nil
	if !version.IsZero() {
		v := version
		m.AppliedVersion = &v
	}
}

// MutationInput is a mutation as submitted in a batch request.
type MutationInput struct {
	ID           string          `json:"id"`
	Operation    Operation       `json:"operation"`
	Entity       EntityName      `json:"entity"`
	EntityID     string          `json:"entity_id"`
	Payload      json.RawMessage `json:"payload,omitempty"`
	BaseVersion  *time.Time      `json:"base_version,omitempty"`
	Dependencies []string        `json:"dependencies,omitempty"`
	Priority     Priority        `json:"priority,omitempty"`
	ClientTS     time.Time       `json:"client_ts"`
	Checksum     string          `json:"checksum,omitempty"`
}

// TruncateVersion normalizes a server version timestamp for comparison.
// Versions are compared at microsecond precision, matching the store.
func TruncateVersion(t time.Time) time.Time {
	if t.IsZero() {
		return t
	}
	return t.UTC().Truncate(time.Microsecond)
}
