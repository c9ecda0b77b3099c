package model

import "time"

// Meal is a single diet entry.
//
// UserID is the owner reference (see Session.Owner). The column kept the
// name user_id after the ownership migration, even for rows created by
// anonymous sessions where it stores the session token.
type Meal struct {
	ID          string    `json:"id"           db:"id"`
	UserID      string    `json:"user_id"      db:"user_id"`
	Name        string    `json:"name"         db:"name"`
	Description string    `json:"description"  db:"description"`
	Date        time.Time `json:"date"         db:"date"`
	IsCompliant bool      `json:"is_compliant" db:"is_compliant"`
}

// MealPatch carries a partial update. Nil fields are left untouched.
type MealPatch struct {
	Name        *string
	Description *string
	Date        *time.Time
	IsCompliant *bool
}

// Empty reports whether the patch would change nothing.
func (p MealPatch) Empty() bool {
	return p.Name == nil && p.Description == nil && p.Date == nil && p.IsCompliant == nil
}

