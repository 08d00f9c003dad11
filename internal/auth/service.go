// Package auth signs sellers in. Passwords are bcrypt hashes in the users
// table; a successful login returns a signed JWT whose subject is the
// username that reports and tickets are recorded under.
package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"ms-salesreport/internal/clock"
	"ms-salesreport/internal/logger"
	"ms-salesreport/internal/models"

	"golang.org/x/crypto/bcrypt"
)

const minPasswordLength = 6

type UserStore interface {
	InsertUser(ctx context.Context, user *models.User) error
	GetUserByUsername(ctx context.Context, username string) (*models.User, error)
}

type Session struct {
	Token     string      `json:"token"`
	ExpiresAt time.Time   `json:"expires_at"`
	User      models.User `json:"user"`
}

type Service struct {
	Users  UserStore
	Tokens *Tokens
	Clock  clock.Clock
	Logger *logger.Logger
	// Cost is the bcrypt cost used by Register.
	Cost int
}

func NewService(users UserStore, tokens *Tokens, c clock.Clock, log *logger.Logger) *Service {
	if c == nil {
		c = clock.Real()
	}
	return &Service{Users: users, Tokens: tokens, Clock: c, Logger: log, Cost: bcrypt.DefaultCost}
}

// Register stores a new seller. An existing username is a CONFLICT.
func (s *Service) Register(ctx context.Context, username, name, password string) (*models.User, error) {
	username = strings.TrimSpace(username)
	name = strings.TrimSpace(name)
	if username == "" || name == "" {
		return nil, fmt.Errorf("username and name are required: %w", models.ErrValidation)
	}
	if len(password) < minPasswordLength {
		return nil, fmt.Errorf("password must have at least %d characters: %w", minPasswordLength, models.ErrValidation)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), s.Cost)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}
	user := &models.User{
		Username:     username,
		Name:         name,
		Role:         models.RoleSeller,
		PasswordHash: string(hash),
		CreatedAt:    s.Clock.Now(),
	}
	if err := s.Users.InsertUser(ctx, user); err != nil {
		return nil, err
	}
	s.Logger.Info("AUTH", fmt.Sprintf("Seller %s registered", username))
	return user, nil
}

// Login checks the password and issues a session token. Unknown users and
// wrong passwords both fail with UNAUTHORIZED.
func (s *Service) Login(ctx context.Context, username, password string) (*Session, error) {
	user, err := s.Users.GetUserByUsername(ctx, strings.TrimSpace(username))
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			s.Logger.Warn("AUTH", fmt.Sprintf("Login for unknown seller %q", username))
			return nil, fmt.Errorf("invalid username or password: %w", models.ErrUnauthorized)
		}
		return nil, err
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		if !errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) {
			s.Logger.Error("AUTH", fmt.Sprintf("Password check for %s failed: %v", user.Username, err))
		}
		return nil, fmt.Errorf("invalid username or password: %w", models.ErrUnauthorized)
	}

	token, expires, err := s.Tokens.Issue(*user)
	if err != nil {
		return nil, err
	}
	s.Logger.Info("AUTH", fmt.Sprintf("Seller %s logged in", user.Username))
	return &Session{Token: token, ExpiresAt: expires, User: *user}, nil
}

func (s *Service) Verify(raw string) (string, error) {
	return s.Tokens.Verify(raw)
}
