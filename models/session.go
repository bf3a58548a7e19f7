package models

import "time"

// SessionType selects which server changes a session pulls.
type SessionType string

const (
	SessionTypeInitial     SessionType = "initial"
	SessionTypeIncremental SessionType = "incremental"
	SessionTypeFull        SessionType = "full"
)

// Valid reports whether t is a known session type.
func (t SessionType) Valid() bool {
	switch t {
	case SessionTypeInitial, SessionTypeIncremental, SessionTypeFull:
		return true
	}
	return false
}

// SessionStatus is the lifecycle state of a SyncSession.
type SessionStatus string

const (
	SessionStatusPending   SessionStatus = "pending"
	SessionStatusCompleted SessionStatus = "completed"
	SessionStatusError     SessionStatus = "error"
)

// SessionError is one per-mutation or structural failure kept on a session.
type SessionError struct {
	MutationID string    `json:"mutation_id,omitempty"`
	Kind       ErrorKind `json:"kind"`
	Reason     string    `json:"reason"`
}

// SyncSession is one device's bounded sync exchange. Completed sessions are
// never modified.
type SyncSession struct {
	ID              string         `json:"id"`
	DeviceID        string         `json:"device_id"`
	UserID          int64          `json:"user_id"`
	Type            SessionType    `json:"type"`
	Status          SessionStatus  `json:"status"`
	StartedAt       time.Time      `json:"started_at"`
	EndedAt         *time.Time     `json:"ended_at,omitempty"`
	RecordsReceived int            `json:"records_received"`
	RecordsSent     int            `json:"records_sent"`
	BytesReceived   int64          `json:"bytes_received"`
	BytesSent       int64          `json:"bytes_sent"`
	AppliedCount    int            `json:"applied_count"`
	DuplicateCount  int            `json:"duplicate_count"`
	ConflictCount   int            `json:"conflict_count"`
	ErrorCount      int            `json:"error_count"`
	HeldCount       int            `json:"held_count"`
	ChangeCursor    int64          `json:"change_cursor"`
	DurationMillis  int64          `json:"duration_ms"`
	Throughput      float64        `json:"throughput"`
	SuccessRatio    float64        `json:"success_ratio"`
	Errors          []SessionError `json:"errors,omitempty"`
}

// Completed reports whether the session has been finalized.
func (s SyncSession) Completed() bool {
	return s.Status == SessionStatusCompleted
}

// Finalize computes the closing metrics of the session at now.
func (s *SyncSession) Finalize(now time.Time) {
	s.EndedAt = &now
	duration := now.Sub(s.StartedAt)
	if duration < 0 {
		duration = 0
	}
	s.DurationMillis = duration.Milliseconds()

	records := float64(s.RecordsReceived + s.RecordsSent)
	if secs := duration.Seconds(); secs > 0 {
		s.Throughput = records / secs
	} else {
		s.Throughput = records
	}

	s.SuccessRatio = 1
	if s.RecordsReceived > 0 {
		s.SuccessRatio = float64(s.AppliedCount+s.DuplicateCount) / float64(s.RecordsReceived)
		if s.SuccessRatio > 1 {
			s.SuccessRatio = 1
		}
	}
	if s.Status != SessionStatusError {
		s.Status = SessionStatusCompleted
	}
}

// SyncSummary is the close acknowledgement returned to the device.
type SyncSummary struct {
	SessionID       string         `json:"session_id"`
	Status          SessionStatus  `json:"status"`
	DurationMillis  int64          `json:"duration_ms"`
	RecordsSent     int            `json:"records_sent"`
	RecordsReceived int            `json:"records_received"`
	SuccessRatio    float64        `json:"success_ratio"`
	Throughput      float64        `json:"throughput"`
	Errors          []SessionError `json:"errors"`
}

// Summary projects the session into its acknowledgement.
func (s SyncSession) Summary() SyncSummary {
	errs := s.Errors
	if errs == nil {
		errs = []SessionError{}
	}
	return SyncSummary{
		SessionID:       s.ID,
		Status:          s.Status,
		DurationMillis:  s.DurationMillis,
		RecordsSent:     s.RecordsSent,
		RecordsReceived: s.RecordsReceived,
		SuccessRatio:    s.SuccessRatio,
		Throughput:      s.Throughput,
		Errors:          errs,
	}
}
