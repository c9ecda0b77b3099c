package model

import "time"

// Session lifetimes.
const (
	// AnonymousSessionTTL applies to sessions minted on the first meal
	// submission from a client that has no session yet.
	AnonymousSessionTTL = 10 * 24 * time.Hour

	// LoginSessionTTL applies to sessions issued by /services/login.
	LoginSessionTTL = 24 * time.Hour
)

// Principal identifies who a session acts for. It is a closed set:
// Anonymous and Authenticated are the only implementations.
type Principal interface {
	isPrincipal()
}

// Anonymous is the principal of a session that is not tied to a user row.
// Meals created under it are owned by the session token itself.
type Anonymous struct{}

// Authenticated is the principal of a session issued by a successful login.
type Authenticated struct {
	UserID string
}

func (Anonymous) isPrincipal()     {}
func (Authenticated) isPrincipal() {}

// Session is a row of the session_ids table.
type Session struct {
	Token     string    `json:"value"`
	Principal Principal `json:"-"`
	ExpiresAt time.Time `json:"expire_date"`
}

// ActiveAt reports whether the session is still valid at now.
// A session expiring exactly at now is still active.
func (s *Session) ActiveAt(now time.Time) bool {
	return !s.ExpiresAt.Before(now)
}

// UserID returns the bound user id and true for authenticated sessions.
func (s *Session) UserID() (string, bool) {
	if p, ok := s.Principal.(Authenticated); ok {
		return p.UserID, true
	}
	return "", false
}

// Owner returns the owner reference used to scope meal rows: the user id for
// authenticated sessions and the session token for anonymous ones.
func (s *Session) Owner() string {
	switch p := s.Principal.(type) {
	case Authenticated:
		return p.UserID
	default:
		return s.Token
	}
}
