package models

import "time"

// Outcome is the per-mutation result reported to the device.
type Outcome string

const (
	OutcomeApplied         Outcome = "applied"
	OutcomeDuplicate       Outcome = "duplicate"
	OutcomeError           Outcome = "error"
	OutcomeConflictPending Outcome = "conflict-pending"
	// OutcomeDiscarded means the server state won and the local write was
	// dropped; the device should pull the record.
	OutcomeDiscarded Outcome = "discarded"
	// OutcomeHeld means the mutation stays pending for a later session.
	OutcomeHeld Outcome = "held"
)

// OpenSessionResponse is returned by POST /sync/sessions.
type OpenSessionResponse struct {
	SessionID string      `json:"session_id"`
	Type      SessionType `json:"type"`
	StartedAt time.Time   `json:"started_at"`
}

// MutationResult is the outcome of one submitted mutation.
type MutationResult struct {
	MutationID string `json:"mutation_id"`

	// Index is the position of the mutation in the submitted batch, or -1
	// for mutations carried over from an earlier session.
	Index   int     `json:"index"`
	Outcome Outcome `json:"outcome"`

	ConflictID string     `json:"conflict_id,omitempty"`
	Resolution Resolution `json:"resolution,omitempty"`
	Reason     string     `json:"reason,omitempty"`
	ErrorKind  ErrorKind  `json:"error_kind,omitempty"`
	Retryable  bool       `json:"retryable,omitempty"`

	// ServerVersion is the version stamped on the target record when the
	// mutation applied. Devices use it as the base for later edits.
	ServerVersion *time.Time `json:"server_version,omitempty"`
}

// BatchSummary counts the outcomes of a batch.
// Received counts the submitted mutations only; mutations evaluated again
// from earlier sessions are counted in CarriedOver.
type BatchSummary struct {
	Received    int `json:"received"`
	CarriedOver int `json:"carried_over"`
	Applied     int `json:"applied"`
	Duplicates  int `json:"duplicates"`
	Conflicts   int `json:"conflicts"`
	Errors      int `json:"errors"`
	Held        int `json:"held"`
	Discarded   int `json:"discarded"`
}

// Add counts r into the summary.
func (s *BatchSummary) Add(r MutationResult) {
	switch r.Outcome {
	case OutcomeApplied:
		s.Applied++
	case OutcomeDuplicate:
		s.Duplicates++
	case OutcomeConflictPending:
		s.Conflicts++
	case OutcomeError:
		s.Errors++
	case OutcomeHeld:
		s.Held++
	case OutcomeDiscarded:
		s.Discarded++
	}
}

// BatchResult is returned by POST /sync/sessions/{id}/batch.
type BatchResult struct {
	SessionID     string           `json:"session_id"`
	Results       []MutationResult `json:"results"`
	ServerChanges []ServerChange   `json:"server_changes"`
	Summary       BatchSummary     `json:"summary"`
}

// ResolveConflictResponse is returned by POST /sync/conflicts/{id}/resolve.
type ResolveConflictResponse struct {
	Status     Resolution     `json:"status"`
	ConflictID string         `json:"conflict_id"`
	MutationID string         `json:"mutation_id"`
	Mutation   MutationStatus `json:"mutation_status"`
}
