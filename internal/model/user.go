// Package model defines the data structures used throughout the application.
package model

// User represents a registered account.
//
// Password holds the stored credential hash, never the plaintext. Its format
// depends on the configured scheme (see internal/auth): by default a hex
// encoded SHA-256 digest with no salt, which is what existing rows contain.
//
// UserName is not unique at the storage level. Login matches on user name and
// password hash together, so two accounts with the same name but different
// passwords can coexist.
type User struct {
	ID       string `json:"id"        db:"id"`
	UserName string `json:"user_name" db:"user_name"`
	Password string `json:"-"         db:"password"`
}
