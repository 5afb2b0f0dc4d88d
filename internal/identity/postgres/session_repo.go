// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Gatehouse Contributors

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

// SessionRepository implements identity.SessionRepository using PostgreSQL.
//
// sessions carries no foreign key to accounts: deleting an account leaves
// its session behind on purpose, and a foreign key would make that
// documented state unrepresentable.
type SessionRepository struct {
	pool poolIface
}

// NewSessionRepository creates a new SessionRepository.
func NewSessionRepository(pool poolIface) *SessionRepository {
	return &SessionRepository{pool: pool}
}

// Insert stores a new session. Unique violations (token or user_id) wrap
// ErrConsistency: the service never knowingly inserts a second session
// for a user, so a constraint hit means a racing writer.
func (r *SessionRepository) Insert(ctx context.Context, session *identity.Session) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO sessions (id, session_id, user_id, created_at)
		VALUES ($1, $2, $3, $4)
	`,
		session.ID.String(),
		session.SessionID,
		session.UserID,
		session.CreatedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation {
			return oops.Code("SESSION_DUPLICATE").
				With("user_id", session.UserID).
				With("constraint", pgErr.ConstraintName).
				Wrap(identity.ErrConsistency)
		}
		return oops.Code("SESSION_INSERT_FAILED").
			With("operation", "insert session").
			With("user_id", session.UserID).
			Wrap(err)
	}
	return nil
}

// ListByUserID retrieves all sessions for a user ID.
func (r *SessionRepository) ListByUserID(ctx context.Context, userID string) ([]*identity.Session, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, session_id, user_id, created_at
		FROM sessions
		WHERE user_id = $1
	`, userID)
	if err != nil {
		return nil, oops.Code("SESSION_LIST_FAILED").
			With("operation", "query sessions by user id").
			With("user_id", userID).
			Wrap(err)
	}
	defer rows.Close()

	sessions, err := collectSessions(rows)
	if err != nil {
		return nil, oops.Code("SESSION_LIST_FAILED").
			With("user_id", userID).
			Wrap(err)
	}
	return sessions, nil
}

// GetBySessionID retrieves the unique session for a token.
func (r *SessionRepository) GetBySessionID(ctx context.Context, sessionID string) (*identity.Session, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, session_id, user_id, created_at
		FROM sessions
		WHERE session_id = $1
	`, sessionID)
	if err != nil {
		return nil, oops.Code("SESSION_GET_FAILED").
			With("operation", "query session by token").
			Wrap(err)
	}
	defer rows.Close()

	sessions, err := collectSessions(rows)
	if err != nil {
		return nil, oops.Code("SESSION_GET_FAILED").Wrap(err)
	}

	switch {
	case len(sessions) == 0:
		return nil, oops.Code("SESSION_NOT_FOUND").Wrap(identity.ErrNotFound)
	case len(sessions) > 1:
		return nil, oops.Code("SESSION_AMBIGUOUS").
			With("matches", len(sessions)).
			Wrap(identity.ErrConsistency)
	}
	return sessions[0], nil
}

// Delete removes the unique session for a token.
func (r *SessionRepository) Delete(ctx context.Context, sessionID string) error {
	result, err := r.pool.Exec(ctx, `
		DELETE FROM sessions WHERE session_id = $1
	`, sessionID)
	if err != nil {
		return oops.Code("SESSION_DELETE_FAILED").
			With("operation", "delete session").
			Wrap(err)
	}
	if result.RowsAffected() == 0 {
		return oops.Code("SESSION_NOT_FOUND").Wrap(identity.ErrNotFound)
	}
	return nil
}

// collectSessions scans all rows into sessions.
func collectSessions(rows pgx.Rows) ([]*identity.Session, error) {
	var sessions []*identity.Session
	for rows.Next() {
		var (
			idStr     string
			sessionID string
			userID    string
			createdAt time.Time
		)
		if err := rows.Scan(&idStr, &sessionID, &userID, &createdAt); err != nil {
			return nil, oops.Code("SESSION_SCAN_FAILED").
				With("operation", "scan session").
				Wrap(err)
		}
		id, err := ulid.Parse(idStr)
		if err != nil {
			return nil, oops.Code("SESSION_INVALID_ID").
				With("operation", "parse session id").
				With("id", idStr).
				Wrap(err)
		}
		sessions = append(sessions, &identity.Session{
			ID:        id,
			SessionID: sessionID,
			UserID:    userID,
			CreatedAt: createdAt,
		})
	}
	if err := rows.Err(); err != nil {
		return nil, oops.Code("SESSION_ITERATE_FAILED").Wrap(err)
	}
	return sessions, nil
}

// Compile-time interface check.
var _ identity.SessionRepository = (*SessionRepository)(nil)
