// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Gatehouse Contributors

package identity

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/samber/oops"
)

// Service orchestrates the repositories to implement the account/session
// lifecycle. It caches nothing across calls; every operation reads and
// writes the repositories synchronously.
type Service struct {
	// mu is the single mutual-exclusion boundary around each
	// check-then-write sequence. Without it, two racing CreateAccount
	// calls for the same username (or two CreateSession calls for the
	// same user) could both pass their pre-check and both insert.
	mu sync.Mutex

	accounts AccountRepository
	sessions SessionRepository
	hasher   PasswordHasher
	log      *slog.Logger
}

// NewService creates a Service with the default logger.
func NewService(accounts AccountRepository, sessions SessionRepository, hasher PasswordHasher) (*Service, error) {
	return NewServiceWithLogger(accounts, sessions, hasher, slog.Default())
}

// NewServiceWithLogger creates a Service with an explicit logger.
func NewServiceWithLogger(accounts AccountRepository, sessions SessionRepository, hasher PasswordHasher, log *slog.Logger) (*Service, error) {
	if accounts == nil {
		return nil, oops.Code("IDENTITY_INVALID_DEPS").Errorf("accounts repository is required")
	}
	if sessions == nil {
		return nil, oops.Code("IDENTITY_INVALID_DEPS").Errorf("sessions repository is required")
	}
	if hasher == nil {
		return nil, oops.Code("IDENTITY_INVALID_DEPS").Errorf("password hasher is required")
	}
	if log == nil {
		return nil, oops.Code("IDENTITY_INVALID_DEPS").Errorf("logger is required")
	}
	return &Service{
		accounts: accounts,
		sessions: sessions,
		hasher:   hasher,
		log:      log,
	}, nil
}

// CreateAccount registers a new account and logs it in, returning the
// session token. Fails with ErrDuplicateUsername if the username is taken.
//
// There is no transactional rollback: if session creation fails after the
// account insert, the account persists without a session. The next login
// mints its session.
func (s *Service) CreateAccount(ctx context.Context, username, password, email string, newsletter bool) (string, error) {
	if err := ValidateUsername(username); err != nil {
		return "", err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.accounts.GetByUsername(ctx, username)
	if err == nil {
		return "", oops.Code("IDENTITY_DUPLICATE_USERNAME").
			With("username", username).
			Wrap(ErrDuplicateUsername)
	}
	if !errors.Is(err, ErrNotFound) {
		return "", oops.Code("IDENTITY_CREATE_ACCOUNT_FAILED").
			With("operation", "check username uniqueness").
			With("username", username).
			Wrap(err)
	}

	hash, err := s.hasher.Hash(password)
	if err != nil {
		return "", oops.Code("IDENTITY_CREATE_ACCOUNT_FAILED").
			With("operation", "hash password").
			Wrap(err)
	}

	account, err := NewAccount(username, hash, email, newsletter)
	if err != nil {
		return "", err
	}

	if err := s.accounts.Insert(ctx, account); err != nil {
		return "", oops.Code("IDENTITY_CREATE_ACCOUNT_FAILED").
			With("operation", "insert account").
			With("username", username).
			Wrap(err)
	}

	s.log.InfoContext(ctx, "account created",
		"username", account.Username,
		"user_id", account.UserID,
	)

	return s.sessionForAccountLocked(ctx, account)
}

// CreateSession authenticates a user and returns a session token. If the
// user already holds a session, that token is returned unchanged
// (idempotent re-login); otherwise a fresh token is minted.
func (s *Service) CreateSession(ctx context.Context, username, password string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	account, err := s.authenticateLocked(ctx, username, password)
	if err != nil {
		return "", err
	}

	return s.sessionForAccountLocked(ctx, account)
}

// authenticateLocked resolves the account for username and verifies the
// password. Caller must hold s.mu.
func (s *Service) authenticateLocked(ctx context.Context, username, password string) (*Account, error) {
	account, err := s.accounts.GetByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, oops.Code("IDENTITY_USER_NOT_FOUND").
				With("username", username).
				Wrap(ErrUserNotFound)
		}
		return nil, oops.Code("IDENTITY_LOGIN_FAILED").
			With("operation", "get account by username").
			With("username", username).
			Wrap(err)
	}

	valid, err := s.hasher.Verify(password, account.PasswordHash)
	if err != nil {
		return nil, oops.Code("IDENTITY_LOGIN_FAILED").
			With("operation", "verify password").
			Wrap(err)
	}
	if !valid {
		return nil, oops.Code("IDENTITY_INVALID_CREDENTIALS").
			With("username", username).
			Wrap(ErrInvalidCredentials)
	}

	return account, nil
}

// sessionForAccountLocked returns the account's existing session token or
// mints a new one. Caller must hold s.mu.
func (s *Service) sessionForAccountLocked(ctx context.Context, account *Account) (string, error) {
	existing, err := s.sessions.ListByUserID(ctx, account.UserID)
	if err != nil {
		return "", oops.Code("IDENTITY_SESSION_CREATE_FAILED").
			With("operation", "list sessions by user id").
			With("user_id", account.UserID).
			Wrap(err)
	}

	switch {
	case len(existing) == 1:
		s.log.InfoContext(ctx, "reusing existing session", "user_id", account.UserID)
		return existing[0].SessionID, nil
	case len(existing) > 1:
		// Store corruption. Never resolved by picking one.
		return "", oops.Code("IDENTITY_CONSISTENCY").
			With("user_id", account.UserID).
			With("session_count", len(existing)).
			Wrap(ErrConsistency)
	}

	token, err := GenerateSessionToken()
	if err != nil {
		return "", err
	}

	session, err := NewSession(token, account.UserID)
	if err != nil {
		return "", err
	}

	if err := s.sessions.Insert(ctx, session); err != nil {
		return "", oops.Code("IDENTITY_SESSION_CREATE_FAILED").
			With("operation", "insert session").
			With("user_id", account.UserID).
			Wrap(err)
	}

	s.log.InfoContext(ctx, "session created", "user_id", account.UserID)
	return token, nil
}

// ResolveSession maps a session token back to its account. An unknown
// token returns (nil, nil): an unauthenticated caller is an expected case,
// not an error. A token matching a session whose user has no account (or
// more than one) is a consistency violation.
func (s *Service) ResolveSession(ctx context.Context, sessionID string) (*Account, error) {
	session, err := s.sessions.GetBySessionID(ctx, sessionID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, nil
		}
		return nil, oops.Code("IDENTITY_RESOLVE_FAILED").
			With("operation", "get session by token").
			Wrap(err)
	}

	account, err := s.accounts.GetByUserID(ctx, session.UserID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			// Dangling session: it points at a deleted or never-written
			// account.
			return nil, oops.Code("IDENTITY_CONSISTENCY").
				With("user_id", session.UserID).
				Wrap(ErrConsistency)
		}
		return nil, oops.Code("IDENTITY_RESOLVE_FAILED").
			With("operation", "get account by user id").
			With("user_id", session.UserID).
			Wrap(err)
	}

	return account, nil
}

// GetAccount returns the account for username, or ErrUserNotFound.
func (s *Service) GetAccount(ctx context.Context, username string) (*Account, error) {
	account, err := s.accounts.GetByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, oops.Code("IDENTITY_USER_NOT_FOUND").
				With("username", username).
				Wrap(ErrUserNotFound)
		}
		return nil, oops.Code("IDENTITY_GET_ACCOUNT_FAILED").
			With("username", username).
			Wrap(err)
	}
	return account, nil
}

// DeleteAccount removes the account for username. The account's session,
// if any, is NOT cascade-deleted: the orphaned session is a documented
// gap, and ResolveSession reports it as a consistency violation.
func (s *Service) DeleteAccount(ctx context.Context, username string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.accounts.Delete(ctx, username); err != nil {
		if errors.Is(err, ErrNotFound) {
			return oops.Code("IDENTITY_USER_NOT_FOUND").
				With("username", username).
				Wrap(ErrUserNotFound)
		}
		return oops.Code("IDENTITY_DELETE_ACCOUNT_FAILED").
			With("username", username).
			Wrap(err)
	}

	s.log.InfoContext(ctx, "account deleted", "username", username)
	return nil
}

// DeleteSession removes the session for a token. Deleting an unknown token
// fails with ErrSessionNotFound.
func (s *Service) DeleteSession(ctx context.Context, sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.sessions.Delete(ctx, sessionID); err != nil {
		if errors.Is(err, ErrNotFound) {
			return oops.Code("IDENTITY_SESSION_NOT_FOUND").Wrap(ErrSessionNotFound)
		}
		return oops.Code("IDENTITY_DELETE_SESSION_FAILED").Wrap(err)
	}

	s.log.InfoContext(ctx, "session deleted")
	return nil
}

// CountAccounts returns the total number of accounts.
func (s *Service) CountAccounts(ctx context.Context) (int64, error) {
	count, err := s.accounts.Count(ctx)
	if err != nil {
		return 0, oops.Code("IDENTITY_COUNT_FAILED").Wrap(err)
	}
	return count, nil
}
