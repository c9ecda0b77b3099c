package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/sakif/daily-diet/internal/apperror"
	"github.com/sakif/daily-diet/internal/model"
)

func (s *Store) CreateSession(ctx context.Context, session *model.Session) error {
	var userID *string
	if id, ok := session.UserID(); ok {
		userID = &id
	}

	_, err := s.pool.Exec(ctx,
		`INSERT INTO session_ids (value, user_id, expire_date) VALUES ($1, $2, $3)`,
		session.Token, userID, session.ExpiresAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("postgres: creating session: %w", err)
	}
	return nil
}

func (s *Store) GetSession(ctx context.Context, token string) (*model.Session, error) {
	var (
		userID    *string
		expiresAt time.Time
	)

	err := s.pool.QueryRow(ctx,
		`SELECT user_id, expire_date FROM session_ids WHERE value = $1`,
		token,
	).Scan(&userID, &expiresAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperror.NotFound("session", token)
		}
		return nil, fmt.Errorf("postgres: getting session: %w", err)
	}

	session := &model.Session{
		Token:     token,
		Principal: model.Anonymous{},
		ExpiresAt: expiresAt.UTC(),
	}
	if userID != nil && *userID != "" {
		session.Principal = model.Authenticated{UserID: *userID}
	}
	return session, nil
}

func (s *Store) DeleteExpiredSessions(ctx context.Context, now time.Time) (int64, error) {
	tag, err := s.pool.Exec(ctx, `DELETE FROM session_ids WHERE expire_date < $1`, now.UTC())
	if err != nil {
		return 0, fmt.Errorf("postgres: deleting expired sessions: %w", err)
	}
	return tag.RowsAffected(), nil
}
