// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Rasul Khiriev

package service

import (
	"errors"
	"fmt"

	"github.com/MKhiriev/go-pos-sync/models"
)

var (
	ErrInvalidDataProvided = errors.New("invalid data provided")

	ErrTokenIsExpiredOrInvalid = errors.New("token is expired or invalid")
	ErrVersionIsNotSpecified   = errors.New("app version is not specified")

	// ErrDeviceMismatch is returned when a request names a device other than
	// the one bound to the token.
	ErrDeviceMismatch = errors.New("device does not match token")

	// ErrSessionNotOwned is returned when a device addresses another
	// device's session.
	ErrSessionNotOwned = errors.New("sync session belongs to another device")

	// ErrSessionClosed is returned when a batch targets a finalized session.
	ErrSessionClosed = errors.New("sync session is closed")

	// ErrSessionAborted is returned when a batch targets a session that was
	// aborted by a structural failure.
	ErrSessionAborted = errors.New("sync session was aborted")

	// ErrStoreUnavailable is the structural failure that aborts a session.
	ErrStoreUnavailable = errors.New("store is unreachable, session aborted")

	// ErrMergeRequiresPayload is returned when an operator merge overlaps
	// server fields and no merged payload was supplied.
	ErrMergeRequiresPayload = errors.New("merge of overlapping fields requires a payload")

	// ErrOperatorRequired is returned when a token without an operator
	// claim calls the conflict review surface.
	ErrOperatorRequired = errors.New("operator token required")

	// ErrOperatorMismatch is returned when a decision names an operator
	// other than the one bound to the token.
	ErrOperatorMismatch = errors.New("operator does not match token")

		// ErrDeviceBusy is returned when the request context ends while waiting
	// for another request of the same device.
	ErrDeviceBusy = errors.New("another sync request of the device is in progress")
)

// Reasons reported on mutations. Devices match on them, keep them stable.
const (
	ReasonDependencyCycle  = "dependency cycle detected"
	ReasonCyclicDependency = "depends on cyclic mutation"
	ReasonWaitingPrefix    = "waiting on dependency "
	ReasonAttemptsExceeded = "attempt limit exceeded"
	ReasonChecksumMismatch = "checksum mismatch"
	ReasonStoreTimeout     = "store operation timed out"
)

// SyncError is a per-mutation failure classified by kind. It never aborts the
// batch it occurred in.
type SyncError struct {
	Kind       models.ErrorKind
	MutationID string
	Reason     string
	Retryable  bool
	Permanent  bool
	Err        error
}

func (e *SyncError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: mutation %s: %s: %v", e.Kind, e.MutationID, e.Reason, e.Err)
	}
	return fmt.Sprintf("%s: mutation %s: %s", e.Kind, e.MutationID, e.Reason)
}

func (e *SyncError) Unwrap() error {
	return e.Err
}

// Detail projects the error into the form persisted with the mutation.
func (e *SyncError) Detail() models.ErrorDetail {
	return models.ErrorDetail{
		Kind:      e.Kind,
		Reason:    e.Reason,
		Retryable: e.Retryable,
		Permanent: e.Permanent,
	}
}

func newValidationError(mutationID string, err error) *SyncError {
	return &SyncError{
		Kind:       models.ErrorKindValidation,
		MutationID: mutationID,
		Reason:     err.Error(),
		Err:        err,
	}
}

func newCycleError(mutationID, reason string) *SyncError {
	return &SyncError{
		Kind:       models.ErrorKindDependencyCycle,
		MutationID: mutationID,
		Reason:     reason,
	}
}

func newTransientError(mutationID string, err error) *SyncError {
	reason := err.Error()
	if errors.Is(err, errAttemptTimeout) {
		reason = ReasonStoreTimeout
	}
	return &SyncError{
		Kind:       models.ErrorKindTransientStore,
		MutationID: mutationID,
		Reason:     reason,
		Retryable:  true,
		Err:        err,
	}
}

func newPermanentError(mutationID, reason string, err error) *SyncError {
	return &SyncError{
		Kind:       models.ErrorKindPermanent,
		MutationID: mutationID,
		Reason:     reason,
		Permanent:  true,
		Err:        err,
	}
}

var errAttemptTimeout = errors.New("store call exceeded its deadline")
