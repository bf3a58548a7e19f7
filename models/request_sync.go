// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Rasul Khiriev

package models

import "encoding/json"

// OpenSessionRequest starts a sync session for the authenticated device.
type OpenSessionRequest struct {
	// DeviceID is optional. When set it must match the device bound to the
	// bearer token.
	DeviceID string `json:"device_id,omitempty"`

	// Type selects which server changes are returned to the device.
	// Defaults to incremental.
	Type SessionType `json:"type,omitempty"`
}

// BatchRequest carries the device's accumulated mutations for one session.
type BatchRequest struct {
	// Mutations is the ordered list of writes recorded while offline.
	// Order is not significant; the server orders by declared dependencies.
	Mutations []MutationInput `json:"mutations"`

	// Bytes is the size of the encoded request body, filled in by the
	// transport for session accounting.
	Bytes int64 `json:"-"`
}

// ResolveConflictRequest is an operator decision on a pending conflict.
type ResolveConflictRequest struct {
	// ConflictID is taken from the URL path.
	ConflictID string `json:"-"`

	// Resolution is keep-local, use-server or merge.
	Resolution Resolution `json:"resolution"`

	// OperatorID identifies the human who took the decision. It defaults to
	// the operator of the bearer token and must match it when given.
	OperatorID string `json:"operator_id,omitempty"`

	Notes string `json:"notes,omitempty"`

	// Payload is the merged document for a merge resolution. When omitted
	// the merge succeeds only if local and server field sets are disjoint.
	Payload json.RawMessage `json:"payload,omitempty"`
}
