// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Rasul Khiriev

package server

import "errors"

// ErrNoListeners means the configuration names neither an HTTP nor a gRPC
// listen address, or the matching handler was not built.
var ErrNoListeners = errors.New("no listen address configured")
