package service

import (
	"context"
	"strings"

	"github.com/sethvargo/go-password/password"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/lizmareco/tablero/internal/board/models"
	"github.com/lizmareco/tablero/internal/common/errors"
	"github.com/lizmareco/tablero/internal/server/repository"
)

const (
	defaultHashCost = bcrypt.DefaultCost

	tokenLength = 48
	tokenDigits = 12
)

// Register creates an account.
func (s *Service) Register(ctx context.Context, name, email, pass string) (*models.User, error) {
	name = strings.TrimSpace(name)
	email = normalizeEmail(email)
	switch {
	case name == "":
		return nil, errors.ValidationError("nombre", "is required")
	case email == "":
		return nil, errors.ValidationError("email", "is required")
	case len(pass) < 6:
		return nil, errors.ValidationError("password", "must have at least 6 characters")
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(pass), s.hashCost)
	if err != nil {
		return nil, errors.InternalError("failed to hash password", err)
	}
	user := &repository.User{Name: name, Email: email, PasswordHash: string(hash)}
	if err := s.repo.CreateUser(ctx, user); err != nil {
		return nil, err
	}
	s.logger.Info("user registered", zap.Int64("user_id", user.ID))
	return user.Model(), nil
}

// Login checks credentials and issues a bearer token.
func (s *Service) Login(ctx context.Context, email, pass string) (string, *models.User, error) {
	user, err := s.repo.GetUserByEmail(ctx, normalizeEmail(email))
	if errors.IsNotFound(err) {
		return "", nil, errors.Unauthorized("invalid credentials")
	}
	if err != nil {
		return "", nil, err
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(pass)); err != nil {
		return "", nil, errors.Unauthorized("invalid credentials")
	}
	token, err := password.Generate(tokenLength, tokenDigits, 0, false, true)
	if err != nil {
		return "", nil, errors.InternalError("failed to generate token", err)
	}
	if err := s.repo.CreateToken(ctx, token, user.ID); err != nil {
		return "", nil, err
	}
	return token, user.Model(), nil
}

// Authenticate resolves a bearer token to its user.
func (s *Service) Authenticate(ctx context.Context, token string) (*models.User, error) {
	if token == "" {
		return nil, errors.Unauthorized("missing token")
	}
	user, err := s.repo.GetUserByToken(ctx, token)
	if err != nil {
		return nil, err
	}
	return user.Model(), nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
