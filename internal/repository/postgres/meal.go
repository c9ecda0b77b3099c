package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/rs/xid"

	"github.com/sakif/daily-diet/internal/apperror"
	"github.com/sakif/daily-diet/internal/model"
	"github.com/sakif/daily-diet/internal/repository"
)

const mealColumns = `id, user_id, name, description, date, is_compliant`

func (s *Store) CreateMeal(ctx context.Context, meal *model.Meal) error {
	meal.ID = xid.New().String()
	meal.Date = meal.Date.UTC()

	_, err := s.pool.Exec(ctx,
		`INSERT INTO meals (`+mealColumns+`) VALUES ($1, $2, $3, $4, $5, $6)`,
		meal.ID, meal.UserID, meal.Name, meal.Description, meal.Date, meal.IsCompliant,
	)
	if err != nil {
		return fmt.Errorf("postgres: creating meal: %w", err)
	}
	return nil
}

func (s *Store) GetMeal(ctx context.Context, owner, id string) (*model.Meal, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+mealColumns+` FROM meals WHERE id = $1 AND user_id = $2`,
		id, owner,
	)
	meal, err := scanMeal(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperror.NotFound("meal", id)
		}
		return nil, fmt.Errorf("postgres: getting meal %s: %w", id, err)
	}
	return meal, nil
}

func (s *Store) ListMeals(ctx context.Context, owner string, filter repository.MealFilter) ([]model.Meal, error) {
	var (
		where = []string{"user_id = $1"}
		args  = []any{owner}
	)
	arg := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	if filter.Name != "" {
		where = append(where, `name ILIKE `+arg(likePattern(filter.Name))+` ESCAPE '\'`)
	}
	if filter.Description != "" {
		where = append(where, `description ILIKE `+arg(likePattern(filter.Description))+` ESCAPE '\'`)
	}
	if filter.Date != nil {
		where = append(where, "date = "+arg(filter.Date.UTC()))
	}
	if filter.IsCompliant != nil {
		where = append(where, "is_compliant = "+arg(*filter.IsCompliant))
	}

	query := fmt.Sprintf(
		`SELECT %s FROM meals WHERE %s ORDER BY %s %s, id ASC`,
		mealColumns, strings.Join(where, " AND "), filter.SortColumn(), filter.Direction(),
	)

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: listing meals: %w", err)
	}
	defer rows.Close()

	meals := []model.Meal{}
	for rows.Next() {
		meal, err := scanMeal(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: scanning meal row: %w", err)
		}
		meals = append(meals, *meal)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: iterating meals: %w", err)
	}
	return meals, nil
}

func (s *Store) UpdateMeal(ctx context.Context, owner, id string, patch model.MealPatch) error {
	var (
		set  []string
		args []any
	)
	arg := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	if patch.Name != nil {
		set = append(set, "name = "+arg(*patch.Name))
	}
	if patch.Description != nil {
		set = append(set, "description = "+arg(*patch.Description))
	}
	if patch.Date != nil {
		set = append(set, "date = "+arg(patch.Date.UTC()))
	}
	if patch.IsCompliant != nil {
		set = append(set, "is_compliant = "+arg(*patch.IsCompliant))
	}
	if len(set) == 0 {
		return apperror.ValidationFailed("", "at least one field must be provided")
	}

	query := `UPDATE meals SET ` + strings.Join(set, ", ") +
		` WHERE id = ` + arg(id) + ` AND user_id = ` + arg(owner)

	tag, err := s.pool.Exec(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("postgres: updating meal %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return apperror.NotFound("meal", id)
	}
	return nil
}

func (s *Store) DeleteMeal(ctx context.Context, owner, id string) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM meals WHERE id = $1 AND user_id = $2`, id, owner)
	if err != nil {
		return fmt.Errorf("postgres: deleting meal %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return apperror.NotFound("meal", id)
	}
	return nil
}

func (s *Store) CountMeals(ctx context.Context, owner string, compliant *bool) (int64, error) {
	query := `SELECT COUNT(*) FROM meals WHERE user_id = $1`
	args := []any{owner}
	if compliant != nil {
		query += ` AND is_compliant = $2`
		args = append(args, *compliant)
	}

	var n int64
	if err := s.pool.QueryRow(ctx, query, args...).Scan(&n); err != nil {
		return 0, fmt.Errorf("postgres: counting meals: %w", err)
	}
	return n, nil
}

func (s *Store) CompliantMealDates(ctx context.Context, owner string) ([]time.Time, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT date FROM meals WHERE user_id = $1 AND is_compliant = TRUE ORDER BY date ASC`,
		owner,
	)
	if err != nil {
		return nil, fmt.Errorf("postgres: listing compliant meal dates: %w", err)
	}
	defer rows.Close()

	var dates []time.Time
	for rows.Next() {
		var d time.Time
		if err := rows.Scan(&d); err != nil {
			return nil, fmt.Errorf("postgres: scanning meal date: %w", err)
		}
		dates = append(dates, d.UTC())
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: iterating meal dates: %w", err)
	}
	return dates, nil
}

func scanMeal(row pgx.Row) (*model.Meal, error) {
	var m model.Meal
	if err := row.Scan(&m.ID, &m.UserID, &m.Name, &m.Description, &m.Date, &m.IsCompliant); err != nil {
		return nil, err
	}
	m.Date = m.Date.UTC()
	return &m, nil
}
