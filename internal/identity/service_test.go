// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Gatehouse Contributors

package identity_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/gatehouseapp/gatehouse/internal/identity"
	"github.com/gatehouseapp/gatehouse/internal/identity/identitytest"
	"github.com/gatehouseapp/gatehouse/pkg/errutil"
)

const testHash = "$argon2id$v=19$m=65536,t=1,p=4$salt$hash"

func testAccount(username string) *identity.Account {
	return &identity.Account{
		ID:           ulid.Make(),
		UserID:       "a1b2c3d4e5f60718293a4b5c6d7e8f90",
		Username:     username,
		PasswordHash: testHash,
		Email:        "alice@example.com",
		CreatedAt:    time.Now(),
	}
}

func TestNewService_NilDependencies(t *testing.T) {
	tests := []struct {
		name        string
		accounts    identity.AccountRepository
		sessions    identity.SessionRepository
		hasher      identity.PasswordHasher
		expectError string
	}{
		{
			name:        "nil accounts repository",
			accounts:    nil,
			sessions:    identitytest.NewMockSessionRepository(t),
			hasher:      identitytest.NewMockPasswordHasher(t),
			expectError: "accounts repository is required",
		},
		{
			name:        "nil sessions repository",
			accounts:    identitytest.NewMockAccountRepository(t),
			sessions:    nil,
			hasher:      identitytest.NewMockPasswordHasher(t),
			expectError: "sessions repository is required",
		},
		{
			name:        "nil password hasher",
			accounts:    identitytest.NewMockAccountRepository(t),
			sessions:    identitytest.NewMockSessionRepository(t),
			hasher:      nil,
			expectError: "password hasher is required",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc, err := identity.NewService(tt.accounts, tt.sessions, tt.hasher)
			require.Error(t, err)
			assert.Nil(t, svc)
			assert.Contains(t, err.Error(), tt.expectError)
		})
	}
}

func TestService_CreateAccount(t *testing.T) {
	ctx := context.Background()

	t.Run("creates account and returns session token", func(t *testing.T) {
		accounts := identitytest.NewMockAccountRepository(t)
		sessions := identitytest.NewMockSessionRepository(t)
		hasher := identitytest.NewMockPasswordHasher(t)
		svc, err := identity.NewService(accounts, sessions, hasher)
		require.NoError(t, err)

		accounts.On("GetByUsername", ctx, "alice").Return(nil, identity.ErrNotFound)
		hasher.On("Hash", "password123").Return(testHash, nil)
		accounts.On("Insert", ctx, mock.AnythingOfType("*identity.Account")).Return(nil)
		sessions.On("ListByUserID", ctx, mock.AnythingOfType("string")).Return([]*identity.Session(nil), nil)
		sessions.On("Insert", ctx, mock.AnythingOfType("*identity.Session")).Return(nil)

		token, err := svc.CreateAccount(ctx, "alice", "password123", "alice@example.com", true)
		require.NoError(t, err)
		assert.Len(t, token, 64) // 32 bytes hex-encoded
	})

	t.Run("rejects duplicate username", func(t *testing.T) {
		accounts := identitytest.NewMockAccountRepository(t)
		sessions := identitytest.NewMockSessionRepository(t)
		hasher := identitytest.NewMockPasswordHasher(t)
		svc, err := identity.NewService(accounts, sessions, hasher)
		require.NoError(t, err)

		accounts.On("GetByUsername", ctx, "alice").Return(testAccount("alice"), nil)

		token, err := svc.CreateAccount(ctx, "alice", "password123", "alice@example.com", false)
		require.Error(t, err)
		assert.Empty(t, token)
		assert.ErrorIs(t, err, identity.ErrDuplicateUsername)
		errutil.AssertErrorCode(t, err, "IDENTITY_DUPLICATE_USERNAME")
	})

	t.Run("rejects invalid username before touching the store", func(t *testing.T) {
		accounts := identitytest.NewMockAccountRepository(t)
		sessions := identitytest.NewMockSessionRepository(t)
		hasher := identitytest.NewMockPasswordHasher(t)
		svc, err := identity.NewService(accounts, sessions, hasher)
		require.NoError(t, err)

		token, err := svc.CreateAccount(ctx, "1bad", "password123", "", false)
		require.Error(t, err)
		assert.Empty(t, token)
		assert.ErrorIs(t, err, identity.ErrInvalidUsername)
	})

	t.Run("account persists when session insert fails", func(t *testing.T) {
		accounts := identitytest.NewMockAccountRepository(t)
		sessions := identitytest.NewMockSessionRepository(t)
		hasher := identitytest.NewMockPasswordHasher(t)
		svc, err := identity.NewService(accounts, sessions, hasher)
		require.NoError(t, err)

		accounts.On("GetByUsername", ctx, "alice").Return(nil, identity.ErrNotFound)
		hasher.On("Hash", "password123").Return(testHash, nil)
		accounts.On("Insert", ctx, mock.AnythingOfType("*identity.Account")).Return(nil)
		sessions.On("ListByUserID", ctx, mock.AnythingOfType("string")).Return([]*identity.Session(nil), nil)
		sessions.On("Insert", ctx, mock.AnythingOfType("*identity.Session")).Return(errors.New("disk full"))

		// No rollback: the error propagates but Insert on the account
		// repository already happened and is not compensated.
		token, err := svc.CreateAccount(ctx, "alice", "password123", "", false)
		require.Error(t, err)
		assert.Empty(t, token)
		errutil.AssertErrorCode(t, err, "IDENTITY_SESSION_CREATE_FAILED")
		accounts.AssertCalled(t, "Insert", ctx, mock.AnythingOfType("*identity.Account"))
	})
}

func TestService_CreateSession(t *testing.T) {
	ctx := context.Background()

	t.Run("mints a token on first login", func(t *testing.T) {
		accounts := identitytest.NewMockAccountRepository(t)
		sessions := identitytest.NewMockSessionRepository(t)
		hasher := identitytest.NewMockPasswordHasher(t)
		svc, err := identity.NewService(accounts, sessions, hasher)
		require.NoError(t, err)

		account := testAccount("alice")
		accounts.On("GetByUsername", ctx, "alice").Return(account, nil)
		hasher.On("Verify", "password123", testHash).Return(true, nil)
		sessions.On("ListByUserID", ctx, account.UserID).Return([]*identity.Session(nil), nil)
		sessions.On("Insert", ctx, mock.AnythingOfType("*identity.Session")).Return(nil)

		token, err := svc.CreateSession(ctx, "alice", "password123")
		require.NoError(t, err)
		assert.Len(t, token, 64)
	})

	t.Run("returns the existing token on re-login", func(t *testing.T) {
		accounts := identitytest.NewMockAccountRepository(t)
		sessions := identitytest.NewMockSessionRepository(t)
		hasher := identitytest.NewMockPasswordHasher(t)
		svc, err := identity.NewService(accounts, sessions, hasher)
		require.NoError(t, err)

		account := testAccount("alice")
		existing := &identity.Session{
			ID:        ulid.Make(),
			SessionID: "deadbeef",
			UserID:    account.UserID,
			CreatedAt: time.Now(),
		}
		accounts.On("GetByUsername", ctx, "alice").Return(account, nil)
		hasher.On("Verify", "password123", testHash).Return(true, nil)
		sessions.On("ListByUserID", ctx, account.UserID).Return([]*identity.Session{existing}, nil)

		token, err := svc.CreateSession(ctx, "alice", "password123")
		require.NoError(t, err)
		assert.Equal(t, "deadbeef", token)
		sessions.AssertNotCalled(t, "Insert", mock.Anything, mock.Anything)
	})

	t.Run("unknown user", func(t *testing.T) {
		accounts := identitytest.NewMockAccountRepository(t)
		sessions := identitytest.NewMockSessionRepository(t)
		hasher := identitytest.NewMockPasswordHasher(t)
		svc, err := identity.NewService(accounts, sessions, hasher)
		require.NoError(t, err)

		accounts.On("GetByUsername", ctx, "ghost").Return(nil, identity.ErrNotFound)

		token, err := svc.CreateSession(ctx, "ghost", "password123")
		require.Error(t, err)
		assert.Empty(t, token)
		assert.ErrorIs(t, err, identity.ErrUserNotFound)
		errutil.AssertErrorCode(t, err, "IDENTITY_USER_NOT_FOUND")
	})

	t.Run("wrong password", func(t *testing.T) {
		accounts := identitytest.NewMockAccountRepository(t)
		sessions := identitytest.NewMockSessionRepository(t)
		hasher := identitytest.NewMockPasswordHasher(t)
		svc, err := identity.NewService(accounts, sessions, hasher)
		require.NoError(t, err)

		account := testAccount("alice")
		accounts.On("GetByUsername", ctx, "alice").Return(account, nil)
		hasher.On("Verify", "wrong", testHash).Return(false, nil)

		token, err := svc.CreateSession(ctx, "alice", "wrong")
		require.Error(t, err)
		assert.Empty(t, token)
		assert.ErrorIs(t, err, identity.ErrInvalidCredentials)
		errutil.AssertErrorCode(t, err, "IDENTITY_INVALID_CREDENTIALS")
	})

	t.Run("multiple sessions for one user is a consistency violation", func(t *testing.T) {
		accounts := identitytest.NewMockAccountRepository(t)
		sessions := identitytest.NewMockSessionRepository(t)
		hasher := identitytest.NewMockPasswordHasher(t)
		svc, err := identity.NewService(accounts, sessions, hasher)
		require.NoError(t, err)

		account := testAccount("alice")
		double := []*identity.Session{
			{ID: ulid.Make(), SessionID: "t1", UserID: account.UserID},
			{ID: ulid.Make(), SessionID: "t2", UserID: account.UserID},
		}
		accounts.On("GetByUsername", ctx, "alice").Return(account, nil)
		hasher.On("Verify", "password123", testHash).Return(true, nil)
		sessions.On("ListByUserID", ctx, account.UserID).Return(double, nil)

		token, err := svc.CreateSession(ctx, "alice", "password123")
		require.Error(t, err)
		assert.Empty(t, token)
		assert.ErrorIs(t, err, identity.ErrConsistency)
		errutil.AssertErrorCode(t, err, "IDENTITY_CONSISTENCY")
		errutil.AssertErrorContext(t, err, "session_count", 2)
	})
}

func TestService_ResolveSession(t *testing.T) {
	ctx := context.Background()

	t.Run("resolves a known token", func(t *testing.T) {
		accounts := identitytest.NewMockAccountRepository(t)
		sessions := identitytest.NewMockSessionRepository(t)
		hasher := identitytest.NewMockPasswordHasher(t)
		svc, err := identity.NewService(accounts, sessions, hasher)
		require.NoError(t, err)

		account := testAccount("alice")
		session := &identity.Session{ID: ulid.Make(), SessionID: "tok", UserID: account.UserID}
		sessions.On("GetBySessionID", ctx, "tok").Return(session, nil)
		accounts.On("GetByUserID", ctx, account.UserID).Return(account, nil)

		got, err := svc.ResolveSession(ctx, "tok")
		require.NoError(t, err)
		require.NotNil(t, got)
		assert.Equal(t, "alice", got.Username)
	})

	t.Run("unknown token is absent, not an error", func(t *testing.T) {
		accounts := identitytest.NewMockAccountRepository(t)
		sessions := identitytest.NewMockSessionRepository(t)
		hasher := identitytest.NewMockPasswordHasher(t)
		svc, err := identity.NewService(accounts, sessions, hasher)
		require.NoError(t, err)

		sessions.On("GetBySessionID", ctx, "nope").Return(nil, identity.ErrNotFound)

		got, err := svc.ResolveSession(ctx, "nope")
		require.NoError(t, err)
		assert.Nil(t, got)
	})

	t.Run("dangling session is a consistency violation", func(t *testing.T) {
		accounts := identitytest.NewMockAccountRepository(t)
		sessions := identitytest.NewMockSessionRepository(t)
		hasher := identitytest.NewMockPasswordHasher(t)
		svc, err := identity.NewService(accounts, sessions, hasher)
		require.NoError(t, err)

		session := &identity.Session{ID: ulid.Make(), SessionID: "tok", UserID: "gone"}
		sessions.On("GetBySessionID", ctx, "tok").Return(session, nil)
		accounts.On("GetByUserID", ctx, "gone").Return(nil, identity.ErrNotFound)

		got, err := svc.ResolveSession(ctx, "tok")
		require.Error(t, err)
		assert.Nil(t, got)
		assert.ErrorIs(t, err, identity.ErrConsistency)
		errutil.AssertErrorCode(t, err, "IDENTITY_CONSISTENCY")
	})
}

func TestService_DeleteAccount(t *testing.T) {
	ctx := context.Background()

	t.Run("deletes an existing account", func(t *testing.T) {
		accounts := identitytest.NewMockAccountRepository(t)
		sessions := identitytest.NewMockSessionRepository(t)
		hasher := identitytest.NewMockPasswordHasher(t)
		svc, err := identity.NewService(accounts, sessions, hasher)
		require.NoError(t, err)

		accounts.On("Delete", ctx, "alice").Return(nil)

		require.NoError(t, svc.DeleteAccount(ctx, "alice"))
		// The session store is never touched: no cascade.
		sessions.AssertNotCalled(t, "Delete", mock.Anything, mock.Anything)
	})

	t.Run("unknown username", func(t *testing.T) {
		accounts := identitytest.NewMockAccountRepository(t)
		sessions := identitytest.NewMockSessionRepository(t)
		hasher := identitytest.NewMockPasswordHasher(t)
		svc, err := identity.NewService(accounts, sessions, hasher)
		require.NoError(t, err)

		accounts.On("Delete", ctx, "ghost").Return(identity.ErrNotFound)

		err = svc.DeleteAccount(ctx, "ghost")
		require.Error(t, err)
		assert.ErrorIs(t, err, identity.ErrUserNotFound)
	})
}

func TestService_DeleteSession(t *testing.T) {
	ctx := context.Background()

	t.Run("deletes an existing session", func(t *testing.T) {
		accounts := identitytest.NewMockAccountRepository(t)
		sessions := identitytest.NewMockSessionRepository(t)
		hasher := identitytest.NewMockPasswordHasher(t)
		svc, err := identity.NewService(accounts, sessions, hasher)
		require.NoError(t, err)

		sessions.On("Delete", ctx, "tok").Return(nil)

		require.NoError(t, svc.DeleteSession(ctx, "tok"))
	})

	t.Run("unknown token", func(t *testing.T) {
		accounts := identitytest.NewMockAccountRepository(t)
		sessions := identitytest.NewMockSessionRepository(t)
		hasher := identitytest.NewMockPasswordHasher(t)
		svc, err := identity.NewService(accounts, sessions, hasher)
		require.NoError(t, err)

		sessions.On("Delete", ctx, "nope").Return(identity.ErrNotFound)

		err = svc.DeleteSession(ctx, "nope")
		require.Error(t, err)
		assert.ErrorIs(t, err, identity.ErrSessionNotFound)
	})
}

func TestService_GetAccount(t *testing.T) {
	ctx := context.Background()

	accounts := identitytest.NewMockAccountRepository(t)
	sessions := identitytest.NewMockSessionRepository(t)
	hasher := identitytest.NewMockPasswordHasher(t)
	svc, err := identity.NewService(accounts, sessions, hasher)
	require.NoError(t, err)

	account := testAccount("alice")
	accounts.On("GetByUsername", ctx, "alice").Return(account, nil)
	accounts.On("GetByUsername", ctx, "ghost").Return(nil, identity.ErrNotFound)

	got, err := svc.GetAccount(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, account.UserID, got.UserID)

	_, err = svc.GetAccount(ctx, "ghost")
	require.Error(t, err)
	assert.ErrorIs(t, err, identity.ErrUserNotFound)
}

func TestService_CountAccounts(t *testing.T) {
	ctx := context.Background()

	accounts := identitytest.NewMockAccountRepository(t)
	sessions := identitytest.NewMockSessionRepository(t)
	hasher := identitytest.NewMockPasswordHasher(t)
	svc, err := identity.NewService(accounts, sessions, hasher)
	require.NoError(t, err)

	accounts.On("Count", ctx).Return(int64(7), nil)

	count, err := svc.CountAccounts(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(7), count)
}
