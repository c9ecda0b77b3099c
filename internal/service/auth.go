// Package service contains the business logic layer of the application.
//
// LAYERS:
//
//	Handler (HTTP)     → parses requests, sets cookies, writes responses
//	Service (business) → validates input, enforces ownership and session rules
//	Repository (data)  → reads/writes the sqlite or postgres store
//
// Services take repository interfaces, never a concrete store, so the same
// code runs against either engine and against the fakes in the tests. They
// return apperror values; handlers translate those into status codes.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/sakif/daily-diet/internal/apperror"
	"github.com/sakif/daily-diet/internal/auth"
	"github.com/sakif/daily-diet/internal/model"
	"github.com/sakif/daily-diet/internal/repository"
)

// Messages shared with the HTTP layer.
const (
	msgInvalidCredentials = "Invalid user name or password"
	msgInvalidSession     = "login to access meals"
)

// AuthService issues and validates sessions.
//
// DEPENDENCIES (injected via NewAuthService):
//   - users     repository.UserRepository    → credential lookup
//   - sessions  repository.SessionRepository → session rows
//   - hasher    auth.Hasher                  → stored password format
//   - logger    *slog.Logger                 → structured logging
type AuthService struct {
	users    repository.UserRepository
	sessions repository.SessionRepository
	hasher   auth.Hasher
	logger   *slog.Logger

	// overridden in tests
	now      func() time.Time
	newToken func() string
}

func NewAuthService(
	users repository.UserRepository,
	sessions repository.SessionRepository,
	hasher auth.Hasher,
	logger *slog.Logger,
) *AuthService {
	return &AuthService{
		users:    users,
		sessions: sessions,
		hasher:   hasher,
		logger:   logger,
		now:      time.Now,
		newToken: uuid.NewString,
	}
}

// Login checks the credentials and opens a 24h session bound to the user.
//
// Unknown user names and wrong passwords produce the same Unauthorized
// error so the response does not reveal which one happened. User names are
// not unique, so every row with that name is tried.
func (s *AuthService) Login(ctx context.Context, userName, password string) (*model.Session, error) {
	if strings.TrimSpace(userName) == "" {
		return nil, apperror.ValidationFailed("user_name", "user_name is required")
	}
	if password == "" {
		return nil, apperror.ValidationFailed("password", "password is required")
	}

	candidates, err := s.users.FindUsersByName(ctx, userName)
	if err != nil {
		return nil, fmt.Errorf("service/auth: looking up user: %w", err)
	}

	for _, u := range candidates {
		err := s.hasher.Verify(u.Password, password)
		if errors.Is(err, auth.ErrInvalidPassword) {
			continue
		}
		if err != nil {
			// A malformed stored hash; log it and keep looking.
			s.logger.Warn("password verification failed",
				slog.String("userID", u.ID),
				slog.String("error", err.Error()),
			)
			continue
		}

		session := &model.Session{
			Token:     s.newToken(),
			Principal: model.Authenticated{UserID: u.ID},
			ExpiresAt: s.now().Add(model.LoginSessionTTL),
		}
		if err := s.sessions.CreateSession(ctx, session); err != nil {
			return nil, fmt.Errorf("service/auth: creating session: %w", err)
		}

		s.logger.Info("user logged in", slog.String("userID", u.ID))
		return session, nil
	}

	s.logger.Info("login rejected", slog.String("userName", userName))
	return nil, apperror.Unauthorized(msgInvalidCredentials)
}

// ValidateSession returns the session for token if it exists and has not
// expired. A session whose expiry equals the current instant is still valid.
func (s *AuthService) ValidateSession(ctx context.Context, token string) (*model.Session, error) {
	if token == "" {
		return nil, apperror.Unauthorized(msgInvalidSession)
	}

	session, err := s.sessions.GetSession(ctx, token)
	if err != nil {
		if errors.Is(err, apperror.ErrNotFound) {
			return nil, apperror.Unauthorized(msgInvalidSession)
		}
		return nil, fmt.Errorf("service/auth: loading session: %w", err)
	}

	if !session.ActiveAt(s.now()) {
		return nil, apperror.Unauthorized(msgInvalidSession)
	}
	return session, nil
}

// StartAnonymousSession opens a 10-day session with no user behind it.
// Meals created under it are owned by its token.
func (s *AuthService) StartAnonymousSession(ctx context.Context) (*model.Session, error) {
	session := &model.Session{
		Token:     s.newToken(),
		Principal: model.Anonymous{},
		ExpiresAt: s.now().Add(model.AnonymousSessionTTL),
	}
	if err := s.sessions.CreateSession(ctx, session); err != nil {
		return nil, fmt.Errorf("service/auth: creating anonymous session: %w", err)
	}

	s.logger.Debug("anonymous session started")
	return session, nil
}
