// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Rasul Khiriev

// Package validators checks inbound sync requests before they reach the
// engine: mutation envelopes, batches, session opens and operator
// resolutions. Payload schemas are checked per entity.
package validators

import "context"

// Validator checks obj. When fields is non-empty only the named checks run;
// an unknown name yields [ErrUnknownField].
type Validator interface {
	Validate(ctx context.Context, obj any, fields ...string) error
}
