// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Gatehouse Contributors

// Package postgres implements the identity repositories on PostgreSQL.
//
// The two tables mirror the store layout: accounts and sessions, each
// record addressable by a ULID primary key separate from its semantic
// keys. Lookups by semantic key read all matching rows rather than using
// QueryRow so that the more-than-one case stays detectable as a
// consistency violation even if the unique indexes are ever dropped.
package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"

	"github.com/gatehouseapp/gatehouse/internal/identity"
)

// poolIface abstracts pgxpool.Pool for testing with pgxmock.
type poolIface interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// AccountRepository implements identity.AccountRepository using PostgreSQL.
type AccountRepository struct {
	pool poolIface
}

// NewAccountRepository creates a new AccountRepository.
func NewAccountRepository(pool poolIface) *AccountRepository {
	return &AccountRepository{pool: pool}
}

// Insert stores a new account. A storage-level unique violation on the
// username surfaces as ErrDuplicateUsername: the schema backstops the
// service's pre-check against cross-process races.
func (r *AccountRepository) Insert(ctx context.Context, account *identity.Account) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO accounts (id, user_id, username, password_hash, email, newsletter, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`,
		account.ID.String(),
		account.UserID,
		account.Username,
		account.PasswordHash,
		account.Email,
		account.Newsletter,
		account.CreatedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation {
			return oops.Code("ACCOUNT_DUPLICATE").
				With("username", account.Username).
				With("constraint", pgErr.ConstraintName).
				Wrap(identity.ErrDuplicateUsername)
		}
		return oops.Code("ACCOUNT_INSERT_FAILED").
			With("operation", "insert account").
			With("username", account.Username).
			Wrap(err)
	}
	return nil
}

// GetByUsername retrieves the unique account for a username.
func (r *AccountRepository) GetByUsername(ctx context.Context, username string) (*identity.Account, error) {
	return r.getUnique(ctx, `
		SELECT id, user_id, username, password_hash, email, newsletter, created_at
		FROM accounts
		WHERE username = $1
	`, "username", username)
}

// GetByUserID retrieves the unique account for a user ID.
func (r *AccountRepository) GetByUserID(ctx context.Context, userID string) (*identity.Account, error) {
	return r.getUnique(ctx, `
		SELECT id, user_id, username, password_hash, email, newsletter, created_at
		FROM accounts
		WHERE user_id = $1
	`, "user_id", userID)
}

// Delete removes the unique account for a username. The record is looked
// up first and removed by its internal identity.
func (r *AccountRepository) Delete(ctx context.Context, username string) error {
	account, err := r.GetByUsername(ctx, username)
	if err != nil {
		return err
	}

	result, err := r.pool.Exec(ctx, `
		DELETE FROM accounts WHERE id = $1
	`, account.ID.String())
	if err != nil {
		return oops.Code("ACCOUNT_DELETE_FAILED").
			With("operation", "delete account").
			With("username", username).
			Wrap(err)
	}
	if result.RowsAffected() == 0 {
		return oops.Code("ACCOUNT_NOT_FOUND").
			With("username", username).
			Wrap(identity.ErrNotFound)
	}
	return nil
}

// Count returns the total number of accounts with a fresh read.
func (r *AccountRepository) Count(ctx context.Context) (int64, error) {
	var count int64
	err := r.pool.QueryRow(ctx, `SELECT count(*) FROM accounts`).Scan(&count)
	if err != nil {
		return 0, oops.Code("ACCOUNT_COUNT_FAILED").
			With("operation", "count accounts").
			Wrap(err)
	}
	return count, nil
}

// getUnique runs query expecting exactly one account row.
func (r *AccountRepository) getUnique(ctx context.Context, query, key, value string) (*identity.Account, error) {
	rows, err := r.pool.Query(ctx, query, value)
	if err != nil {
		return nil, oops.Code("ACCOUNT_GET_FAILED").
			With("operation", "query accounts").
			With(key, value).
			Wrap(err)
	}
	defer rows.Close()

	var accounts []*identity.Account
	for rows.Next() {
		account, err := scanAccount(rows)
		if err != nil {
			return nil, err
		}
		accounts = append(accounts, account)
	}
	if err := rows.Err(); err != nil {
		return nil, oops.Code("ACCOUNT_GET_FAILED").
			With("operation", "iterate accounts").
			With(key, value).
			Wrap(err)
	}

	switch {
	case len(accounts) == 0:
		return nil, oops.Code("ACCOUNT_NOT_FOUND").
			With(key, value).
			Wrap(identity.ErrNotFound)
	case len(accounts) > 1:
		return nil, oops.Code("ACCOUNT_AMBIGUOUS").
			With(key, value).
			With("matches", len(accounts)).
			Wrap(identity.ErrConsistency)
	}
	return accounts[0], nil
}

// scanAccount scans the current row into an Account.
func scanAccount(rows pgx.Rows) (*identity.Account, error) {
	var (
		idStr        string
		userID       string
		username     string
		passwordHash string
		email        string
		newsletter   bool
		createdAt    time.Time
	)

	if err := rows.Scan(&idStr, &userID, &username, &passwordHash, &email, &newsletter, &createdAt); err != nil {
		return nil, oops.Code("ACCOUNT_SCAN_FAILED").
			With("operation", "scan account").
			Wrap(err)
	}

	id, err := ulid.Parse(idStr)
	if err != nil {
		return nil, oops.Code("ACCOUNT_INVALID_ID").
			With("operation", "parse account id").
			With("id", idStr).
			Wrap(err)
	}

	return &identity.Account{
		ID:           id,
		UserID:       userID,
		Username:     username,
		PasswordHash: passwordHash,
		Email:        email,
		Newsletter:   newsletter,
		CreatedAt:    createdAt,
	}, nil
}

// Compile-time interface check.
var _ identity.AccountRepository = (*AccountRepository)(nil)
