// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Gatehouse Contributors

package identity

import "errors"

// ErrNotFound is returned by repositories when a requested record does not
// exist.
var ErrNotFound = errors.New("not found")

// ErrConsistency marks a store invariant breach: duplicate semantic keys,
// more than one session for a user, or a session pointing at no account.
// It indicates a bug or an unguarded race, not a caller mistake, and must
// propagate to the process boundary unrepaired.
var ErrConsistency = errors.New("store consistency violation")

// Caller-correctable failures surfaced by Service operations.
var (
	ErrDuplicateUsername  = errors.New("username already taken")
	ErrInvalidCredentials = errors.New("invalid username or password")
	ErrInvalidUsername    = errors.New("invalid username")
	ErrUserNotFound       = errors.New("user not found")
	ErrSessionNotFound    = errors.New("session not found")
)

// IsUserError reports whether err belongs to the caller-correctable class.
// Everything else - including ErrConsistency - maps to an internal error at
// the HTTP boundary.
func IsUserError(err error) bool {
	return errors.Is(err, ErrDuplicateUsername) ||
		errors.Is(err, ErrInvalidCredentials) ||
		errors.Is(err, ErrInvalidUsername) ||
		errors.Is(err, ErrUserNotFound) ||
		errors.Is(err, ErrSessionNotFound)
}
