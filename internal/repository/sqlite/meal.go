package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/xid"

	"github.com/sakif/daily-diet/internal/apperror"
	"github.com/sakif/daily-diet/internal/model"
	"github.com/sakif/daily-diet/internal/repository"
)

const mealColumns = `id, user_id, name, description, date, is_compliant`

// CreateMeal inserts a meal for meal.UserID and writes the generated ID back.
func (db *DB) CreateMeal(ctx context.Context, meal *model.Meal) error {
	meal.ID = xid.New().String()
	meal.Date = meal.Date.UTC()

	_, err := db.conn.ExecContext(ctx,
		`INSERT INTO meals (`+mealColumns+`) VALUES (?, ?, ?, ?, ?, ?)`,
		meal.ID,
		meal.UserID,
		meal.Name,
		meal.Description,
		meal.Date,
		meal.IsCompliant,
	)
	if err != nil {
		return fmt.Errorf("sqlite: creating meal: %w", err)
	}

	return nil
}

// GetMeal returns the meal only if it belongs to owner.
func (db *DB) GetMeal(ctx context.Context, owner, id string) (*model.Meal, error) {
	row := db.conn.QueryRowContext(ctx,
		`SELECT `+mealColumns+` FROM meals WHERE id = ? AND user_id = ?`,
		id, owner,
	)

	meal, err := scanMeal(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperror.NotFound("meal", id)
		}
		return nil, fmt.Errorf("sqlite: getting meal %s: %w", id, err)
	}

	return meal, nil
}

// ListMeals returns every meal of owner matching filter. There is no
// pagination: a diet log for one person stays small.
func (db *DB) ListMeals(ctx context.Context, owner string, filter repository.MealFilter) ([]model.Meal, error) {
	var (
		where = []string{"user_id = ?"}
		args  = []any{owner}
	)

	if filter.Name != "" {
		where = append(where, `unicode_lower(name) LIKE ? ESCAPE '\'`)
		args = append(args, likePattern(filter.Name))
	}
	if filter.Description != "" {
		where = append(where, `unicode_lower(description) LIKE ? ESCAPE '\'`)
		args = append(args, likePattern(filter.Description))
	}
	if filter.Date != nil {
		where = append(where, "date = ?")
		args = append(args, filter.Date.UTC())
	}
	if filter.IsCompliant != nil {
		where = append(where, "is_compliant = ?")
		args = append(args, *filter.IsCompliant)
	}

	// SortColumn and Direction come from allow-lists, never from raw input.
	query := fmt.Sprintf(
		`SELECT %s FROM meals WHERE %s ORDER BY %s %s, id ASC`,
		mealColumns, strings.Join(where, " AND "), filter.SortColumn(), filter.Direction(),
	)

	rows, err := db.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("sqlite: listing meals: %w", err)
	}
	defer rows.Close()

	meals := []model.Meal{}
	for rows.Next() {
		meal, err := scanMeal(rows)
		if err != nil {
			return nil, fmt.Errorf("sqlite: scanning meal row: %w", err)
		}
		meals = append(meals, *meal)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: iterating meals: %w", err)
	}

	return meals, nil
}

// UpdateMeal applies the non-nil fields of patch. Zero matched rows means the
// meal does not exist for this owner.
func (db *DB) UpdateMeal(ctx context.Context, owner, id string, patch model.MealPatch) error {
	var (
		set  []string
		args []any
	)

	if patch.Name != nil {
		set = append(set, "name = ?")
		args = append(args, *patch.Name)
	}
	if patch.Description != nil {
		set = append(set, "description = ?")
		args = append(args, *patch.Description)
	}
	if patch.Date != nil {
		set = append(set, "date = ?")
		args = append(args, patch.Date.UTC())
	}
	if patch.IsCompliant != nil {
		set = append(set, "is_compliant = ?")
		args = append(args, *patch.IsCompliant)
	}
	if len(set) == 0 {
		return apperror.ValidationFailed("", "at least one field must be provided")
	}

	args = append(args, id, owner)
	result, err := db.conn.ExecContext(ctx,
		`UPDATE meals SET `+strings.Join(set, ", ")+` WHERE id = ? AND user_id = ?`,
		args...,
	)
	if err != nil {
		return fmt.Errorf("sqlite: updating meal %s: %w", id, err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("sqlite: checking rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return apperror.NotFound("meal", id)
	}

	return nil
}

// DeleteMeal removes the meal if owner owns it.
func (db *DB) DeleteMeal(ctx context.Context, owner, id string) error {
	result, err := db.conn.ExecContext(ctx,
		`DELETE FROM meals WHERE id = ? AND user_id = ?`,
		id, owner,
	)
	if err != nil {
		return fmt.Errorf("sqlite: deleting meal %s: %w", id, err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("sqlite: checking rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return apperror.NotFound("meal", id)
	}

	return nil
}

// CountMeals counts owner's meals, optionally only those with the given
// compliance flag.
func (db *DB) CountMeals(ctx context.Context, owner string, compliant *bool) (int64, error) {
	query := `SELECT COUNT(*) FROM meals WHERE user_id = ?`
	args := []any{owner}
	if compliant != nil {
		query += ` AND is_compliant = ?`
		args = append(args, *compliant)
	}

	var n int64
	if err := db.conn.QueryRowContext(ctx, query, args...).Scan(&n); err != nil {
		return 0, fmt.Errorf("sqlite: counting meals: %w", err)
	}
	return n, nil
}

// CompliantMealDates returns the dates of owner's compliant meals, oldest first.
func (db *DB) CompliantMealDates(ctx context.Context, owner string) ([]time.Time, error) {
	rows, err := db.conn.QueryContext(ctx,
		`SELECT date FROM meals WHERE user_id = ? AND is_compliant = ? ORDER BY date ASC`,
		owner, true,
	)
	if err != nil {
		return nil, fmt.Errorf("sqlite: listing compliant meal dates: %w", err)
	}
	defer rows.Close()

	var dates []time.Time
	for rows.Next() {
		var d time.Time
		if err := rows.Scan(&d); err != nil {
			return nil, fmt.Errorf("sqlite: scanning meal date: %w", err)
		}
		dates = append(dates, d.UTC())
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: iterating meal dates: %w", err)
	}

	return dates, nil
}

// rowScanner is satisfied by both *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanMeal(row rowScanner) (*model.Meal, error) {
	var m model.Meal
	if err := row.Scan(&m.ID, &m.UserID, &m.Name, &m.Description, &m.Date, &m.IsCompliant); err != nil {
		return nil, err
	}
	m.Date = m.Date.UTC()
	return &m, nil
}
