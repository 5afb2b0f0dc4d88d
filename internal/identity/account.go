// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Gatehouse Contributors

package identity

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"regexp"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"
)

// Username validation constraints.
const (
	MinUsernameLength = 3
	MaxUsernameLength = 30
)

// UserIDBytes is the number of random bytes in a generated user ID.
// 16 bytes hex-encode to 32 characters.
const UserIDBytes = 16

// usernameRegex matches usernames that start with a letter and contain
// only letters, numbers, and underscores.
var usernameRegex = regexp.MustCompile(`^[a-zA-Z][a-zA-Z0-9_]*$`)

// Account is a registered identity. ID is the record's internal identity;
// UserID and Username are its semantic keys. Exactly one Account exists
// per username, and UserID is never reused or mutated after creation.
type Account struct {
	ID           ulid.ULID
	UserID       string
	Username     string
	PasswordHash string
	Email        string
	Newsletter   bool
	CreatedAt    time.Time
}

// NewAccount creates a validated Account with a fresh user ID.
// passwordHash must already be an encoded hash, never a raw password.
func NewAccount(username, passwordHash, email string, newsletter bool) (*Account, error) {
	if err := ValidateUsername(username); err != nil {
		return nil, err
	}
	if passwordHash == "" {
		return nil, oops.Code("ACCOUNT_INVALID_HASH").Errorf("password hash cannot be empty")
	}

	userID, err := NewUserID()
	if err != nil {
		return nil, err
	}

	return &Account{
		ID:           ulid.Make(),
		UserID:       userID,
		Username:     username,
		PasswordHash: passwordHash,
		Email:        email,
		Newsletter:   newsletter,
		CreatedAt:    time.Now(),
	}, nil
}

// NewUserID generates an opaque, unguessable user identifier.
func NewUserID() (string, error) {
	b := make([]byte, UserIDBytes)
	if _, err := rand.Read(b); err != nil {
		return "", oops.Code("ACCOUNT_USERID_GENERATE_FAILED").
			With("operation", "crypto/rand.Read").
			Wrap(err)
	}
	return hex.EncodeToString(b), nil
}

// ValidateUsername validates a username against rules.
// Username requirements:
// - Length: MinUsernameLength to MaxUsernameLength characters
// - Must start with a letter
// - Can contain only letters (a-z, A-Z), numbers (0-9), and underscores (_)
func ValidateUsername(username string) error {
	if username == "" {
		return oops.Code("ACCOUNT_INVALID_USERNAME").
			Wrapf(ErrInvalidUsername, "username cannot be empty")
	}
	if len(username) < MinUsernameLength {
		return oops.Code("ACCOUNT_INVALID_USERNAME").
			With("min", MinUsernameLength).
			Wrapf(ErrInvalidUsername, "username must be at least %d characters", MinUsernameLength)
	}
	if len(username) > MaxUsernameLength {
		return oops.Code("ACCOUNT_INVALID_USERNAME").
			With("max", MaxUsernameLength).
			Wrapf(ErrInvalidUsername, "username must be at most %d characters", MaxUsernameLength)
	}
	if !usernameRegex.MatchString(username) {
		return oops.Code("ACCOUNT_INVALID_USERNAME").
			Wrapf(ErrInvalidUsername, "username must start with a letter and contain only letters, numbers, and underscores")
	}
	return nil
}

// AccountRepository manages account persistence.
//
// The "get" methods require exactly one match for their key: zero matches
// is ErrNotFound, more than one wraps ErrConsistency. Implementations must
// not paper over the ambiguous case.
type AccountRepository interface {
	// Insert stores a new account. The caller has already verified
	// username uniqueness; implementations backed by a unique constraint
	// additionally surface a storage-level duplicate as
	// ErrDuplicateUsername.
	Insert(ctx context.Context, account *Account) error

	// GetByUsername retrieves the unique account for a username.
	GetByUsername(ctx context.Context, username string) (*Account, error)

	// GetByUserID retrieves the unique account for a user ID.
	GetByUserID(ctx context.Context, userID string) (*Account, error)

	// Delete removes the unique account for a username by its internal
	// identity. Returns ErrNotFound if no account matches.
	Delete(ctx context.Context, username string) error

	// Count returns the total number of accounts. Always a fresh read;
	// implementations must not serve this from a cache.
	Count(ctx context.Context) (int64, error)
}
