// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Gatehouse Contributors

package identity

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"
)

// SessionTokenBytes is the number of random bytes in a session token.
// 32 bytes hex-encode to 64 characters.
const SessionTokenBytes = 32

// Session binds an opaque bearer token to exactly one user ID. ID is the
// record's internal identity; SessionID is the semantic key handed to
// clients. Sessions carry no expiry: they live until explicitly deleted,
// and repeated logins return the same token.
//
// The token is stored as issued rather than hashed at rest: the
// reuse-on-login contract requires recovering the original token for a
// user, which a one-way hash cannot do.
type Session struct {
	ID        ulid.ULID
	SessionID string
	UserID    string
	CreatedAt time.Time
}

// NewSession creates a validated Session instance.
func NewSession(sessionID, userID string) (*Session, error) {
	if sessionID == "" {
		return nil, oops.Code("SESSION_INVALID_TOKEN").Errorf("session ID cannot be empty")
	}
	if userID == "" {
		return nil, oops.Code("SESSION_INVALID_USER").Errorf("user ID cannot be empty")
	}

	return &Session{
		ID:        ulid.Make(),
		SessionID: sessionID,
		UserID:    userID,
		CreatedAt: time.Now(),
	}, nil
}

// GenerateSessionToken creates a secure random session token.
func GenerateSessionToken() (string, error) {
	b := make([]byte, SessionTokenBytes)
	if _, err := rand.Read(b); err != nil {
		return "", oops.Code("SESSION_TOKEN_GENERATE_FAILED").
			With("operation", "crypto/rand.Read").
			With("requested_bytes", SessionTokenBytes).
			Wrap(err)
	}
	return hex.EncodeToString(b), nil
}

// SessionRepository manages session persistence.
type SessionRepository interface {
	// Insert stores a new session.
	Insert(ctx context.Context, session *Session) error

	// ListByUserID retrieves all sessions for a user ID. Zero, one, or
	// more matches; the service treats more than one as a consistency
	// violation, so implementations return everything they find.
	ListByUserID(ctx context.Context, userID string) ([]*Session, error)

	// GetBySessionID retrieves the unique session for a token. Zero
	// matches is ErrNotFound; more than one wraps ErrConsistency.
	GetBySessionID(ctx context.Context, sessionID string) (*Session, error)

	// Delete removes the unique session for a token. Returns ErrNotFound
	// if no session matches.
	Delete(ctx context.Context, sessionID string) error
}
