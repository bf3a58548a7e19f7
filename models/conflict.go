// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Rasul Khiriev

package models

import (
	"encoding/json"
	"time"
)

// ConflictType names the way local and server state diverged.
type ConflictType string

const (
	ConflictConcurrentUpdate ConflictType = "concurrent-update"
	ConflictDeletedOnServer  ConflictType = "deleted-on-server"
	ConflictUniqueConstraint ConflictType = "unique-constraint"
	ConflictStaleBase        ConflictType = "stale-base-version"
)

// Resolution is the decision taken on a conflict. Pending is the only
// non-terminal value.
type Resolution string

const (
	ResolutionKeepLocal Resolution = "keep-local"
	ResolutionUseServer Resolution = "use-server"
	ResolutionMerge     Resolution = "merge"
	ResolutionPending   Resolution = "pending"
)

// Valid reports whether r is a known resolution.
func (r Resolution) Valid() bool {
	switch r {
	case ResolutionKeepLocal, ResolutionUseServer, ResolutionMerge, ResolutionPending:
		return true
	}
	return false
}

// ResolvedByEngine marks resolutions taken automatically.
const ResolvedByEngine = "engine"

// ConflictRecord describes one detected divergence for a mutation.
type ConflictRecord struct {
	ID             string          `json:"id"`
	MutationID     string          `json:"mutation_id"`
	DeviceID       string          `json:"device_id"`
	Entity         EntityName      `json:"entity"`
	EntityID       string          `json:"entity_id"`
	Type           ConflictType    `json:"type"`
	LocalSnapshot  json.RawMessage `json:"local_snapshot,omitempty"`
	ServerSnapshot json.RawMessage `json:"server_snapshot,omitempty"`
	LocalFields    []string        `json:"local_fields,omitempty"`
	ServerFields   []string        `json:"server_fields,omitempty"`
	Resolution     Resolution      `json:"resolution"`
	ResolvedBy     *string         `json:"resolved_by,omitempty"`
	ResolvedAt     *time.Time      `json:"resolved_at,omitempty"`
	Notes          string          `json:"notes,omitempty"`
	CreatedAt      time.Time       `json:"created_at"`
}

// Pending reports whether the conflict awaits a decision.
func (c ConflictRecord) Pending() bool {
	return c.Resolution == ResolutionPending
}

// Resolve records a one-way decision on the conflict.
func (c *ConflictRecord) Resolve(resolution Resolution, by string, at time.Time, notes string) {
	c.Resolution = resolution
	c.ResolvedBy = &by
	c.ResolvedAt = &at
	if notes != "" {
		c.Notes = notes
	}
}

// ConflictAudit is an append-only trail entry for a conflict decision.
type ConflictAudit struct {
	ID         int64      `json:"id"`
	ConflictID string     `json:"conflict_id"`
	MutationID string     `json:"mutation_id"`
	Action     Resolution `json:"action"`
	Actor      string     `json:"actor"`
	Notes      string     `json:"notes,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
}

// ConflictFilter narrows the conflict review queue.
type ConflictFilter struct {
	Resolution Resolution
	DeviceID   string
	Entity     EntityName
	Limit      uint64
}
