package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/rs/xid"

	"github.com/sakif/daily-diet/internal/apperror"
	"github.com/sakif/daily-diet/internal/model"
)

func (s *Store) CreateUser(ctx context.Context, user *model.User) error {
	user.ID = xid.New().String()

	_, err := s.pool.Exec(ctx,
		`INSERT INTO users (id, user_name, password) VALUES ($1, $2, $3)`,
		user.ID, user.UserName, user.Password,
	)
	if err != nil {
		return fmt.Errorf("postgres: creating user %q: %w", user.UserName, err)
	}
	return nil
}

func (s *Store) FindUsersByName(ctx context.Context, userName string) ([]model.User, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, user_name, password FROM users WHERE user_name = $1 ORDER BY id`,
		userName,
	)
	if err != nil {
		return nil, fmt.Errorf("postgres: finding users by name: %w", err)
	}
	defer rows.Close()

	var users []model.User
	for rows.Next() {
		var u model.User
		if err := rows.Scan(&u.ID, &u.UserName, &u.Password); err != nil {
			return nil, fmt.Errorf("postgres: scanning user row: %w", err)
		}
		users = append(users, u)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: iterating users: %w", err)
	}
	return users, nil
}

// DeleteUser removes the user, its sessions and its meals atomically.
func (s *Store) DeleteUser(ctx context.Context, id string) error {
	var deleted int64

	err := s.inTx(ctx, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `DELETE FROM meals WHERE user_id = $1`, id); err != nil {
			return err
		}
		if _, err := tx.Exec(ctx, `DELETE FROM session_ids WHERE user_id = $1`, id); err != nil {
			return err
		}
		tag, err := tx.Exec(ctx, `DELETE FROM users WHERE id = $1`, id)
		if err != nil {
			return err
		}
		deleted = tag.RowsAffected()
		return nil
	})
	if err != nil {
		return fmt.Errorf("postgres: deleting user %s: %w", id, err)
	}
	if deleted == 0 {
		return apperror.NotFound("user", id)
	}
	return nil
}
