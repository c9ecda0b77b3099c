package service

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"unicode/utf8"

	"github.com/sakif/daily-diet/internal/apperror"
	"github.com/sakif/daily-diet/internal/auth"
	"github.com/sakif/daily-diet/internal/model"
	"github.com/sakif/daily-diet/internal/repository"
)

const MaxUserNameLength = 100

type UserService struct {
	users  repository.UserRepository
	hasher auth.Hasher
	logger *slog.Logger
}

func NewUserService(users repository.UserRepository, hasher auth.Hasher, logger *slog.Logger) *UserService {
	return &UserService{
		users:  users,
		hasher: hasher,
		logger: logger,
	}
}

// Register creates a user. User names are not required to be unique.
func (s *UserService) Register(ctx context.Context, userName, password string) (*model.User, error) {
	userName = strings.TrimSpace(userName)
	if userName == "" {
		return nil, apperror.ValidationFailed("user_name", "user_name is required")
	}
	if utf8.RuneCountInString(userName) > MaxUserNameLength {
		return nil, apperror.ValidationFailed("user_name",
			fmt.Sprintf("user_name must be %d characters or less", MaxUserNameLength))
	}
	if password == "" {
		return nil, apperror.ValidationFailed("password", "password is required")
	}

	hash, err := s.hasher.Hash(password)
	if err != nil {
		return nil, apperror.ValidationFailed("password", err.Error())
	}

	user := &model.User{UserName: userName, Password: hash}
	if err := s.users.CreateUser(ctx, user); err != nil {
		s.logger.Error("failed to create user",
			slog.String("userName", userName),
			slog.String("error", err.Error()),
		)
		return nil, fmt.Errorf("creating user: %w", err)
	}

	s.logger.Info("user created", slog.String("userID", user.ID))
	return user, nil
}

// Delete removes user id and everything it owns. The caller's session must
// be an authenticated session bound to that same id; anything else, including
// no session at all, is Unauthorized.
func (s *UserService) Delete(ctx context.Context, session *model.Session, id string) error {
	if session == nil {
		return apperror.Unauthorized("Invalid session_id or user id")
	}
	if bound, ok := session.UserID(); !ok || bound != id {
		return apperror.Unauthorized("Invalid session_id or user id")
	}

	if err := s.users.DeleteUser(ctx, id); err != nil {
		s.logger.Error("failed to delete user",
			slog.String("userID", id),
			slog.String("error", err.Error()),
		)
		return err
	}

	s.logger.Info("user deleted", slog.String("userID", id))
	return nil
}
