package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/sakif/daily-diet/internal/apperror"
	"github.com/sakif/daily-diet/internal/model"
)

// CreateSession stores a session row. The token is generated by the caller
// (internal/service) so both storage engines issue the same token format.
func (db *DB) CreateSession(ctx context.Context, session *model.Session) error {
	var userID sql.NullString
	if id, ok := session.UserID(); ok {
		userID = sql.NullString{String: id, Valid: true}
	}

	_, err := db.conn.ExecContext(ctx,
		`INSERT INTO session_ids (value, user_id, expire_date) VALUES (?, ?, ?)`,
		session.Token,
		userID,
		session.ExpiresAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("sqlite: creating session: %w", err)
	}

	return nil
}

// GetSession loads a session by token. Expiry is not checked here.
func (db *DB) GetSession(ctx context.Context, token string) (*model.Session, error) {
	var (
		userID    sql.NullString
		expiresAt time.Time
	)

	err := db.conn.QueryRowContext(ctx,
		`SELECT user_id, expire_date FROM session_ids WHERE value = ?`,
		token,
	).Scan(&userID, &expiresAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperror.NotFound("session", token)
		}
		return nil, fmt.Errorf("sqlite: getting session: %w", err)
	}

	return buildSession(token, userID, expiresAt), nil
}

// DeleteExpiredSessions removes sessions whose expiry is strictly before now.
func (db *DB) DeleteExpiredSessions(ctx context.Context, now time.Time) (int64, error) {
	result, err := db.conn.ExecContext(ctx,
		`DELETE FROM session_ids WHERE expire_date < ?`,
		now.UTC(),
	)
	if err != nil {
		return 0, fmt.Errorf("sqlite: deleting expired sessions: %w", err)
	}

	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("sqlite: checking rows affected: %w", err)
	}
	return n, nil
}

func buildSession(token string, userID sql.NullString, expiresAt time.Time) *model.Session {
	s := &model.Session{
		Token:     token,
		Principal: model.Anonymous{},
		ExpiresAt: expiresAt.UTC(),
	}
	if userID.Valid && userID.String != "" {
		s.Principal = model.Authenticated{UserID: userID.String}
	}
	return s
}
