// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Gatehouse Contributors

// Package identity provides account and session management for Gatehouse.
//
// # Domain Types
//
// Domain types (Account, Session) should be created using their
// constructors:
//   - NewAccount - creates an Account with a validated username and a
//     server-generated user ID
//   - NewSession - creates a Session bound to exactly one user ID
//
// Direct struct initialization bypasses validation and may create invalid
// state. Repository implementations receive pre-validated types from these
// constructors.
//
// # Service
//
// Service coordinates the repositories to implement the account/session
// lifecycle: account creation, login with session reuse, session
// resolution, and deletion. It holds no state of its own beyond a mutex
// that serializes check-then-write sequences.
//
// # Errors
//
// Expected, caller-correctable failures are sentinel errors
// (ErrDuplicateUsername, ErrInvalidCredentials, ErrUserNotFound,
// ErrSessionNotFound) wrapped with oops codes. Invariant breaches -
// duplicate semantic keys, multiple sessions per user, a session pointing
// at no account - wrap ErrConsistency and are never recovered or repaired.
package identity
