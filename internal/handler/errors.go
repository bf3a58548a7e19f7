// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Rasul Khiriev

package handler

import "errors"

// ErrNoTransport is returned by [NewHandlers] when cfg enables neither
// transport.
var ErrNoTransport = errors.New("neither http nor grpc transport is enabled")
