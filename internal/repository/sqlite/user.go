package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/rs/xid"

	"github.com/sakif/daily-diet/internal/apperror"
	"github.com/sakif/daily-diet/internal/model"
)

// CreateUser inserts a new user. The caller supplies the already hashed
// password; the ID is generated here and written back into user.
func (db *DB) CreateUser(ctx context.Context, user *model.User) error {
	user.ID = xid.New().String()

	_, err := db.conn.ExecContext(ctx,
		`INSERT INTO users (id, user_name, password) VALUES (?, ?, ?)`,
		user.ID,
		user.UserName,
		user.Password,
	)
	if err != nil {
		return fmt.Errorf("sqlite: creating user %q: %w", user.UserName, err)
	}

	return nil
}

// FindUsersByName returns every user registered under userName. User names
// are not unique, so login has to check each candidate's password hash.
func (db *DB) FindUsersByName(ctx context.Context, userName string) ([]model.User, error) {
	rows, err := db.conn.QueryContext(ctx,
		`SELECT id, user_name, password FROM users WHERE user_name = ? ORDER BY id`,
		userName,
	)
	if err != nil {
		return nil, fmt.Errorf("sqlite: finding users by name: %w", err)
	}
	defer rows.Close()

	var users []model.User
	for rows.Next() {
		var u model.User
		if err := rows.Scan(&u.ID, &u.UserName, &u.Password); err != nil {
			return nil, fmt.Errorf("sqlite: scanning user row: %w", err)
		}
		users = append(users, u)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: iterating users: %w", err)
	}

	return users, nil
}

// DeleteUser removes a user, its sessions and the meals it owns in one
// transaction. Sessions would also go through the ON DELETE CASCADE foreign
// key, but deleting them explicitly keeps the result independent of the
// connection's foreign_keys pragma.
func (db *DB) DeleteUser(ctx context.Context, id string) error {
	var deleted int64

	err := db.inTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `DELETE FROM meals WHERE user_id = ?`, id); err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM session_ids WHERE user_id = ?`, id); err != nil {
			return err
		}
		result, err := tx.ExecContext(ctx, `DELETE FROM users WHERE id = ?`, id)
		if err != nil {
			return err
		}
		deleted, err = result.RowsAffected()
		return err
	})
	if err != nil {
		return fmt.Errorf("sqlite: deleting user %s: %w", id, err)
	}
	if deleted == 0 {
		return apperror.NotFound("user", id)
	}

	return nil
}
