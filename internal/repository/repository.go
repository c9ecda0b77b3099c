// Package repository declares the storage contracts the service layer
// depends on. Implementations live in the sqlite and postgres subpackages.
package repository

import (
	"context"
	"time"

	"github.com/sakif/daily-diet/internal/model"
)

// Sort columns accepted by MealFilter.SortBy.
const (
	SortByName        = "name"
	SortByDescription = "description"
	SortByDate        = "date"
)

// MealFilter narrows and orders a meal listing. Zero values mean "no filter";
// an empty SortBy sorts by name and Descending defaults to false.
type MealFilter struct {
	Name        string     // case-insensitive substring
	Description string     // case-insensitive substring
	Date        *time.Time // exact match
	IsCompliant *bool      // exact match
	SortBy      string
	Descending  bool
}

// SortColumn returns the validated ORDER BY column for the filter.
// Anything outside the allow-list falls back to name, so the value is safe
// to interpolate into SQL.
func (f MealFilter) SortColumn() string {
	switch f.SortBy {
	case SortByDescription, SortByDate:
		return f.SortBy
	default:
		return SortByName
	}
}

// Direction returns "ASC" or "DESC".
func (f MealFilter) Direction() string {
	if f.Descending {
		return "DESC"
	}
	return "ASC"
}

type UserRepository interface {
	CreateUser(ctx context.Context, user *model.User) error
	FindUsersByName(ctx context.Context, userName string) ([]model.User, error)
	// DeleteUser removes the user together with its sessions and meals.
	DeleteUser(ctx context.Context, id string) error
}

type SessionRepository interface {
	CreateSession(ctx context.Context, session *model.Session) error
	// GetSession returns the session regardless of expiry; callers decide
	// whether it is still active.
	GetSession(ctx context.Context, token string) (*model.Session, error)
	DeleteExpiredSessions(ctx context.Context, now time.Time) (int64, error)
}

// MealRepository methods are all scoped by owner. A meal that exists but
// belongs to another owner is reported exactly like a missing one.
type MealRepository interface {
	CreateMeal(ctx context.Context, meal *model.Meal) error
	GetMeal(ctx context.Context, owner, id string) (*model.Meal, error)
	ListMeals(ctx context.Context, owner string, filter MealFilter) ([]model.Meal, error)
	UpdateMeal(ctx context.Context, owner, id string, patch model.MealPatch) error
	DeleteMeal(ctx context.Context, owner, id string) error
	// CountMeals counts the owner's meals; a nil compliant counts all of them.
	CountMeals(ctx context.Context, owner string, compliant *bool) (int64, error)
	// CompliantMealDates returns the dates of the owner's compliant meals in
	// ascending order.
	CompliantMealDates(ctx context.Context, owner string) ([]time.Time, error)
}

// MigrationStatus describes one known schema migration.
type MigrationStatus struct {
	Version   int
	Name      string
	Applied   bool
	AppliedAt time.Time
}

// Migrator is implemented by both engines and driven by cmd/migrate.
type Migrator interface {
	Migrate(ctx context.Context) (int, error)
	// Rollback reverts the newest applied migrations; steps <= 0 reverts all.
	Rollback(ctx context.Context, steps int) (int, error)
	MigrationStatus(ctx context.Context) ([]MigrationStatus, error)
	Close() error
}

// Store is everything a storage engine provides.
type Store interface {
	UserRepository
	SessionRepository
	MealRepository
	Ping(ctx context.Context) error
	Close() error
}
