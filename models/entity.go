package models

import (
	"encoding/json"
	"time"
)

// EntityRecord is the server-side row of a governed entity, stored as a JSON
// document with an optimistic revision.
type EntityRecord struct {
	Entity            EntityName      `json:"entity"`
	ID                string          `json:"id"`
	NaturalKey        string          `json:"natural_key"`
	Document          json.RawMessage `json:"document"`
	Revision          int64           `json:"revision"`
	CreatedAt         time.Time       `json:"created_at"`
	UpdatedAt         time.Time       `json:"updated_at"`
	UpdatedByDevice   string          `json:"updated_by_device"`
	CreatedByMutation string          `json:"created_by_mutation"`
	Deleted           bool            `json:"deleted"`
}

// ServerChange is one entry of the append-only change feed.
type ServerChange struct {
	ID             int64           `json:"id"`
	Entity         EntityName      `json:"entity"`
	EntityID       string          `json:"entity_id"`
	Operation      Operation       `json:"operation"`
	ChangedFields  []string        `json:"changed_fields"`
	Document       json.RawMessage `json:"document,omitempty"`
	SourceDeviceID string          `json:"source_device_id"`
	MutationID     string          `json:"mutation_id,omitempty"`
	ChangedAt      time.Time       `json:"changed_at"`
}

// ChangeFilter selects change feed entries for a device pull.
type ChangeFilter struct {
	AfterID       int64
	ExcludeDevice string
	Limit         uint64
}
