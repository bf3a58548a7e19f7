// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Rasul Khiriev

// Package adapter is the device agent's transport to the sync server.
//
// [SyncAdapter] decouples the client services from the protocol. The package
// ships an HTTP/REST implementation ([NewHTTPSyncAdapter]) built on resty.
//
// Non-2xx responses are mapped by mapHTTPError to the sentinel errors in
// errors.go so callers can branch with [errors.Is] (e.g. [ErrUnauthorized]
// for 401, [ErrSessionClosed] for 409).
package adapter

import (
	"context"

	"github.com/MKhiriev/go-pos-sync/models"
)

//go:generate mockgen -source=interfaces.go -destination=../mock/sync_adapter_mock.go -package=mock

// SyncAdapter speaks the sync session protocol on behalf of one device. The
// bearer token identifies the device on every call.
type SyncAdapter interface {
	// OpenSession starts a session of the given type.
	OpenSession(ctx context.Context, req models.OpenSessionRequest) (models.OpenSessionResponse, error)

	// SendBatch submits mutations to an open session and returns the
	// per-mutation outcomes and the server changes for the device.
	SendBatch(ctx context.Context, sessionID string, batch models.BatchRequest) (models.BatchResult, error)

	// CloseSession finalizes the session and returns its summary.
	CloseSession(ctx context.Context, sessionID string) (models.SyncSummary, error)

	// Version returns the build information of the server.
	Version(ctx context.Context) (models.AppBuildInfo, error)
}
