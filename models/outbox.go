package models

// OutboxState is the device-side lifecycle of a locally recorded mutation.
type OutboxState string

const (
	// OutboxQueued mutations are sent with the next push.
	OutboxQueued OutboxState = "queued"
	// OutboxDone mutations were applied, deduplicated or discarded by the
	// server and will not be sent again.
	OutboxDone OutboxState = "done"
	// OutboxConflict mutations wait for an operator decision on the server.
	OutboxConflict OutboxState = "conflict"
	// OutboxFailed mutations were rejected permanently.
	OutboxFailed OutboxState = "failed"
)

// StateForOutcome maps a server outcome to the outbox state it leads to.
func StateForOutcome(r MutationResult) OutboxState {
	switch r.Outcome {
	case OutcomeApplied, OutcomeDuplicate, OutcomeDiscarded:
		return OutboxDone
	case OutcomeConflictPending:
		return OutboxConflict
	case OutcomeError:
		if r.Retryable {
			return OutboxQueued
		}
		return OutboxFailed
	}
	return OutboxQueued
}

// OutboxStatus counts local mutations per state.
type OutboxStatus struct {
	Queued       int   `json:"queued"`
	Done         int   `json:"done"`
	Conflict     int   `json:"conflict"`
	Failed       int   `json:"failed"`
	ChangeCursor int64 `json:"change_cursor"`
	Pulled       int   `json:"pulled_changes"`
}
