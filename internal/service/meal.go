package service

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/sakif/daily-diet/internal/apperror"
	"github.com/sakif/daily-diet/internal/model"
	"github.com/sakif/daily-diet/internal/repository"
	"github.com/sakif/daily-diet/internal/streak"
)

// Validation limits.
const (
	MaxMealNameLength        = 100
	MaxMealDescriptionLength = 1000
)

// MealInput is a meal creation request. Every field is required; pointers
// let the service tell "missing" apart from a zero value.
type MealInput struct {
	Name        *string
	Description *string
	Date        *time.Time
	IsCompliant *bool
}

// MealService handles meal CRUD and the per-owner aggregates. Every method
// takes the owner reference of the calling session (model.Session.Owner)
// and never touches rows belonging to anyone else.
type MealService struct {
	meals  repository.MealRepository
	logger *slog.Logger
}

func NewMealService(meals repository.MealRepository, logger *slog.Logger) *MealService {
	return &MealService{
		meals:  meals,
		logger: logger,
	}
}

// ParseMealDate parses an ISO-8601 timestamp as sent by clients
// ("2024-03-01T12:00:00.000Z"). The result is in UTC.
func ParseMealDate(field, value string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339Nano, value)
	if err != nil {
		return time.Time{}, apperror.ValidationFailed(field, field+" must be an ISO-8601 datetime")
	}
	return t.UTC(), nil
}

// Validate checks that every field is present and within limits. Handlers
// call it before minting a session so a bad request leaves nothing behind.
func (in MealInput) Validate() error {
	switch {
	case in.Name == nil:
		return apperror.ValidationFailed("name", "name is required")
	case in.Description == nil:
		return apperror.ValidationFailed("description", "description is required")
	case in.Date == nil:
		return apperror.ValidationFailed("date", "date is required")
	case in.IsCompliant == nil:
		return apperror.ValidationFailed("is_compliant", "is_compliant is required")
	}
	if err := validateMealName(*in.Name); err != nil {
		return err
	}
	return validateMealDescription(*in.Description)
}

// Create validates in and stores a new meal owned by owner.
func (s *MealService) Create(ctx context.Context, owner string, in MealInput) (*model.Meal, error) {
	if err := in.Validate(); err != nil {
		return nil, err
	}

	meal := &model.Meal{
		UserID:      owner,
		Name:        strings.TrimSpace(*in.Name),
		Description: strings.TrimSpace(*in.Description),
		Date:        in.Date.UTC(),
		IsCompliant: *in.IsCompliant,
	}

	if err := s.meals.CreateMeal(ctx, meal); err != nil {
		s.logger.Error("failed to create meal",
			slog.String("owner", owner),
			slog.String("error", err.Error()),
		)
		return nil, fmt.Errorf("creating meal: %w", err)
	}

	s.logger.Info("meal created",
		slog.String("id", meal.ID),
		slog.Bool("compliant", meal.IsCompliant),
	)
	return meal, nil
}

// List returns the owner's meals narrowed and ordered by filter.
func (s *MealService) List(ctx context.Context, owner string, filter repository.MealFilter) ([]model.Meal, error) {
	meals, err := s.meals.ListMeals(ctx, owner, filter)
	if err != nil {
		s.logger.Error("failed to list meals", slog.String("error", err.Error()))
		return nil, fmt.Errorf("listing meals: %w", err)
	}
	return meals, nil
}

// Get returns apperror.ErrNotFound for missing meals and for meals owned by
// someone else alike.
func (s *MealService) Get(ctx context.Context, owner, id string) (*model.Meal, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, apperror.ValidationFailed("id", "meal ID is required")
	}
	return s.meals.GetMeal(ctx, owner, id)
}

// Update applies a partial update. Concurrent updates are last-write-wins.
func (s *MealService) Update(ctx context.Context, owner, id string, patch model.MealPatch) error {
	id = strings.TrimSpace(id)
	if id == "" {
		return apperror.ValidationFailed("id", "meal ID is required")
	}
	if patch.Empty() {
		return apperror.ValidationFailed("", "at least one of name, description, date or is_compliant is required")
	}

	if patch.Name != nil {
		if err := validateMealName(*patch.Name); err != nil {
			return err
		}
		name := strings.TrimSpace(*patch.Name)
		patch.Name = &name
	}
	if patch.Description != nil {
		if err := validateMealDescription(*patch.Description); err != nil {
			return err
		}
		description := strings.TrimSpace(*patch.Description)
		patch.Description = &description
	}

	if err := s.meals.UpdateMeal(ctx, owner, id, patch); err != nil {
		return err
	}

	s.logger.Info("meal updated", slog.String("id", id))
	return nil
}

func (s *MealService) Delete(ctx context.Context, owner, id string) error {
	id = strings.TrimSpace(id)
	if id == "" {
		return apperror.ValidationFailed("id", "meal ID is required")
	}

	if err := s.meals.DeleteMeal(ctx, owner, id); err != nil {
		return err
	}

	s.logger.Info("meal deleted", slog.String("id", id))
	return nil
}

// Total counts all of the owner's meals.
func (s *MealService) Total(ctx context.Context, owner string) (int64, error) {
	return s.count(ctx, owner, nil)
}

// TotalCompliant counts the owner's meals that kept to the diet.
func (s *MealService) TotalCompliant(ctx context.Context, owner string) (int64, error) {
	compliant := true
	return s.count(ctx, owner, &compliant)
}

// TotalNoncompliant counts the owner's meals that broke the diet.
func (s *MealService) TotalNoncompliant(ctx context.Context, owner string) (int64, error) {
	compliant := false
	return s.count(ctx, owner, &compliant)
}

// HighestStreak returns the longest run of consecutive UTC days with a
// compliant meal.
func (s *MealService) HighestStreak(ctx context.Context, owner string) (int, error) {
	dates, err := s.meals.CompliantMealDates(ctx, owner)
	if err != nil {
		s.logger.Error("failed to load compliant meal dates", slog.String("error", err.Error()))
		return 0, fmt.Errorf("loading compliant meal dates: %w", err)
	}
	return streak.Longest(dates), nil
}

func (s *MealService) count(ctx context.Context, owner string, compliant *bool) (int64, error) {
	n, err := s.meals.CountMeals(ctx, owner, compliant)
	if err != nil {
		s.logger.Error("failed to count meals", slog.String("error", err.Error()))
		return 0, fmt.Errorf("counting meals: %w", err)
	}
	return n, nil
}

func validateMealName(name string) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return apperror.ValidationFailed("name", "name must not be empty")
	}
	if utf8.RuneCountInString(name) > MaxMealNameLength {
		return apperror.ValidationFailed("name",
			fmt.Sprintf("name must be %d characters or less", MaxMealNameLength))
	}
	return nil
}

func validateMealDescription(description string) error {
	if utf8.RuneCountInString(strings.TrimSpace(description)) > MaxMealDescriptionLength {
		return apperror.ValidationFailed("description",
			fmt.Sprintf("description must be %d characters or less", MaxMealDescriptionLength))
	}
	return nil
}
