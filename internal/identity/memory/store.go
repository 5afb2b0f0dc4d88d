// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Gatehouse Contributors

// Package memory provides in-memory identity repositories. They back the
// scenario tests and local development; record slices rather than maps so
// that duplicate semantic keys remain representable, which the consistency
// checks depend on.
package memory

import (
	"context"
	"sync"

	"github.com/samber/oops"

	"github.com/gatehouseapp/gatehouse/internal/identity"
)

// AccountRepository implements identity.AccountRepository in memory.
type AccountRepository struct {
	mu       sync.RWMutex
	accounts []*identity.Account
}

// NewAccountRepository creates an empty AccountRepository.
func NewAccountRepository() *AccountRepository {
	return &AccountRepository{}
}

// Insert stores a new account. No uniqueness check: the caller has
// already verified it, matching the store contract.
func (r *AccountRepository) Insert(_ context.Context, account *identity.Account) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *account
	r.accounts = append(r.accounts, &cp)
	return nil
}

// GetByUsername retrieves the unique account for a username.
func (r *AccountRepository) GetByUsername(_ context.Context, username string) (*identity.Account, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return uniqueAccount(r.accounts, "username", username, func(a *identity.Account) bool {
		return a.Username == username
	})
}

// GetByUserID retrieves the unique account for a user ID.
func (r *AccountRepository) GetByUserID(_ context.Context, userID string) (*identity.Account, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return uniqueAccount(r.accounts, "user_id", userID, func(a *identity.Account) bool {
		return a.UserID == userID
	})
}

// Delete removes the unique account for a username.
func (r *AccountRepository) Delete(_ context.Context, username string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	idx := -1
	matches := 0
	for i, a := range r.accounts {
		if a.Username == username {
			matches++
			idx = i
		}
	}
	if matches == 0 {
		return identity.ErrNotFound
	}
	if matches > 1 {
		return oops.Code("STORE_AMBIGUOUS_ACCOUNT").
			With("username", username).
			With("matches", matches).
			Wrap(identity.ErrConsistency)
	}

	r.accounts = append(r.accounts[:idx], r.accounts[idx+1:]...)
	return nil
}

// Count returns the total number of accounts. Always a live scan; there
// is no cache to bypass.
func (r *AccountRepository) Count(_ context.Context) (int64, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return int64(len(r.accounts)), nil
}

func uniqueAccount(accounts []*identity.Account, key, value string, match func(*identity.Account) bool) (*identity.Account, error) {
	var found *identity.Account
	matches := 0
	for _, a := range accounts {
		if match(a) {
			matches++
			found = a
		}
	}
	if matches == 0 {
		return nil, identity.ErrNotFound
	}
	if matches > 1 {
		return nil, oops.Code("STORE_AMBIGUOUS_ACCOUNT").
			With(key, value).
			With("matches", matches).
			Wrap(identity.ErrConsistency)
	}
	cp := *found
	return &cp, nil
}

// SessionRepository implements identity.SessionRepository in memory.
type SessionRepository struct {
	mu       sync.RWMutex
	sessions []*identity.Session
}

// NewSessionRepository creates an empty SessionRepository.
func NewSessionRepository() *SessionRepository {
	return &SessionRepository{}
}

// Insert stores a new session. Tests use this directly to inject
// duplicate records and provoke consistency violations.
func (r *SessionRepository) Insert(_ context.Context, session *identity.Session) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *session
	r.sessions = append(r.sessions, &cp)
	return nil
}

// ListByUserID retrieves all sessions for a user ID.
func (r *SessionRepository) ListByUserID(_ context.Context, userID string) ([]*identity.Session, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []*identity.Session
	for _, s := range r.sessions {
		if s.UserID == userID {
			cp := *s
			out = append(out, &cp)
		}
	}
	return out, nil
}

// GetBySessionID retrieves the unique session for a token.
func (r *SessionRepository) GetBySessionID(_ context.Context, sessionID string) (*identity.Session, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var found *identity.Session
	matches := 0
	for _, s := range r.sessions {
		if s.SessionID == sessionID {
			matches++
			found = s
		}
	}
	if matches == 0 {
		return nil, identity.ErrNotFound
	}
	if matches > 1 {
		return nil, oops.Code("STORE_AMBIGUOUS_SESSION").
			With("matches", matches).
			Wrap(identity.ErrConsistency)
	}
	cp := *found
	return &cp, nil
}

// Delete removes the unique session for a token.
func (r *SessionRepository) Delete(_ context.Context, sessionID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	idx := -1
	matches := 0
	for i, s := range r.sessions {
		if s.SessionID == sessionID {
			matches++
			idx = i
		}
	}
	if matches == 0 {
		return identity.ErrNotFound
	}
	if matches > 1 {
		return oops.Code("STORE_AMBIGUOUS_SESSION").
			With("matches", matches).
			Wrap(identity.ErrConsistency)
	}

	r.sessions = append(r.sessions[:idx], r.sessions[idx+1:]...)
	return nil
}

// Interface checks.
var (
	_ identity.AccountRepository = (*AccountRepository)(nil)
	_ identity.SessionRepository = (*SessionRepository)(nil)
)
