// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Rasul Khiriev

package http

import "errors"

// Sentinel errors used by the authentication middleware when parsing the
// "Authorization" HTTP header. Callers can match against them with [errors.Is].
var (
	// ErrEmptyAuthorizationHeader is returned when the request carries no
	// "Authorization" header.
	ErrEmptyAuthorizationHeader = errors.New("empty `Authorization` header")

	// ErrInvalidAuthorizationHeader is returned when the header is not of the
	// form "Bearer <token>".
	ErrInvalidAuthorizationHeader = errors.New("invalid `Authorization` header")

	// ErrEmptyToken is returned when the bearer scheme is present but the
	// token is empty.
	ErrEmptyToken = errors.New("empty token in `Authorization` header")
)

var (
	errNoIdentity     = errors.New("request is not authenticated")
	errInvalidLimit   = errors.New("limit must be a positive integer")
	errEmptyPathParam = errors.New("path parameter is required")
	errInvalidBody    = errors.New("invalid request body")
)
