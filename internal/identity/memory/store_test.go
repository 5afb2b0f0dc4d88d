// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Gatehouse Contributors

package memory_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gatehouseapp/gatehouse/internal/identity"
	"github.com/gatehouseapp/gatehouse/internal/identity/memory"
)

func mustAccount(t *testing.T, username string) *identity.Account {
	t.Helper()
	account, err := identity.NewAccount(username, "$argon2id$v=19$m=65536,t=1,p=4$salt$hash", "", false)
	require.NoError(t, err)
	return account
}

func mustSession(t *testing.T, token, userID string) *identity.Session {
	t.Helper()
	session, err := identity.NewSession(token, userID)
	require.NoError(t, err)
	return session
}

func TestAccountRepository(t *testing.T) {
	ctx := context.Background()

	t.Run("insert and get by username", func(t *testing.T) {
		repo := memory.NewAccountRepository()
		account := mustAccount(t, "alice")
		require.NoError(t, repo.Insert(ctx, account))

		got, err := repo.GetByUsername(ctx, "alice")
		require.NoError(t, err)
		assert.Equal(t, account.UserID, got.UserID)

		got, err = repo.GetByUserID(ctx, account.UserID)
		require.NoError(t, err)
		assert.Equal(t, "alice", got.Username)
	})

	t.Run("missing account", func(t *testing.T) {
		repo := memory.NewAccountRepository()
		_, err := repo.GetByUsername(ctx, "ghost")
		assert.ErrorIs(t, err, identity.ErrNotFound)
	})

	t.Run("returned records are copies", func(t *testing.T) {
		repo := memory.NewAccountRepository()
		require.NoError(t, repo.Insert(ctx, mustAccount(t, "alice")))

		got, err := repo.GetByUsername(ctx, "alice")
		require.NoError(t, err)
		got.Username = "mutated"

		again, err := repo.GetByUsername(ctx, "alice")
		require.NoError(t, err)
		assert.Equal(t, "alice", again.Username)
	})

	t.Run("duplicate usernames surface as consistency violations", func(t *testing.T) {
		repo := memory.NewAccountRepository()
		require.NoError(t, repo.Insert(ctx, mustAccount(t, "alice")))
		require.NoError(t, repo.Insert(ctx, mustAccount(t, "alice")))

		_, err := repo.GetByUsername(ctx, "alice")
		assert.ErrorIs(t, err, identity.ErrConsistency)

		err = repo.Delete(ctx, "alice")
		assert.ErrorIs(t, err, identity.ErrConsistency)
	})

	t.Run("delete and count", func(t *testing.T) {
		repo := memory.NewAccountRepository()
		require.NoError(t, repo.Insert(ctx, mustAccount(t, "alice")))
		require.NoError(t, repo.Insert(ctx, mustAccount(t, "bob")))

		count, err := repo.Count(ctx)
		require.NoError(t, err)
		assert.Equal(t, int64(2), count)

		require.NoError(t, repo.Delete(ctx, "alice"))

		count, err = repo.Count(ctx)
		require.NoError(t, err)
		assert.Equal(t, int64(1), count)

		assert.ErrorIs(t, repo.Delete(ctx, "alice"), identity.ErrNotFound)
	})
}

func TestSessionRepository(t *testing.T) {
	ctx := context.Background()

	t.Run("insert, get, list", func(t *testing.T) {
		repo := memory.NewSessionRepository()
		session := mustSession(t, "tok", "user-1")
		require.NoError(t, repo.Insert(ctx, session))

		got, err := repo.GetBySessionID(ctx, "tok")
		require.NoError(t, err)
		assert.Equal(t, "user-1", got.UserID)

		list, err := repo.ListByUserID(ctx, "user-1")
		require.NoError(t, err)
		assert.Len(t, list, 1)

		list, err = repo.ListByUserID(ctx, "user-2")
		require.NoError(t, err)
		assert.Empty(t, list)
	})

	t.Run("missing session", func(t *testing.T) {
		repo := memory.NewSessionRepository()
		_, err := repo.GetBySessionID(ctx, "nope")
		assert.ErrorIs(t, err, identity.ErrNotFound)
		assert.ErrorIs(t, repo.Delete(ctx, "nope"), identity.ErrNotFound)
	})

	t.Run("duplicate tokens surface as consistency violations", func(t *testing.T) {
		repo := memory.NewSessionRepository()
		require.NoError(t, repo.Insert(ctx, mustSession(t, "tok", "user-1")))
		require.NoError(t, repo.Insert(ctx, mustSession(t, "tok", "user-2")))

		_, err := repo.GetBySessionID(ctx, "tok")
		assert.ErrorIs(t, err, identity.ErrConsistency)
	})

	t.Run("list returns every session for a user", func(t *testing.T) {
		repo := memory.NewSessionRepository()
		require.NoError(t, repo.Insert(ctx, mustSession(t, "t1", "user-1")))
		require.NoError(t, repo.Insert(ctx, mustSession(t, "t2", "user-1")))

		list, err := repo.ListByUserID(ctx, "user-1")
		require.NoError(t, err)
		assert.Len(t, list, 2)
	})

	t.Run("delete", func(t *testing.T) {
		repo := memory.NewSessionRepository()
		require.NoError(t, repo.Insert(ctx, mustSession(t, "tok", "user-1")))
		require.NoError(t, repo.Delete(ctx, "tok"))

		_, err := repo.GetBySessionID(ctx, "tok")
		assert.ErrorIs(t, err, identity.ErrNotFound)
	})
}
