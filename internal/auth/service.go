// Package auth owns user registration, login and request authentication.
package auth

import (
	"context"
	"errors"
	"strings"

	"github.com/google/uuid"

	"github.com/example/ride-share/internal/apperror"
	"github.com/example/ride-share/internal/models"
	"github.com/example/ride-share/internal/storage"
)

type Service struct {
	Ledger    storage.Ledger
	Tokens    *TokenService
	Passwords *PasswordService
}

func NewService(ledger storage.Ledger, tokens *TokenService, passwords *PasswordService) *Service {
	return &Service{Ledger: ledger, Tokens: tokens, Passwords: passwords}
}

// Session is what register and login hand back to the client.
type Session struct {
	User  *models.User `json:"user"`
	Token string       `json:"token"`
}

// Register creates a user with the starting points balance and issues a token.
// Email uniqueness is checked inside the same transaction that creates the
// user, so two concurrent registrations cannot both claim an email.
func (s *Service) Register(ctx context.Context, email, password string) (*Session, error) {
	email = strings.TrimSpace(email)
	if email == "" || !strings.Contains(email, "@") {
		return nil, apperror.Validation("a valid email is required")
	}
	if len(password) < 6 {
		return nil, apperror.Validation("password must be at least 6 characters")
	}
	hash, err := s.Passwords.Hash(password)
	if err != nil {
		return nil, apperror.Validation(err.Error())
	}
	user := &models.User{
		ID:           uuid.NewString(),
		Email:        email,
		PasswordHash: hash,
		Points:       models.StartingPoints,
	}
	err = s.Ledger.Update(ctx, func(tx storage.Tx) error {
		if _, err := tx.GetUserByEmail(email); err == nil {
			return apperror.Conflict("email already registered")
		} else if !errors.Is(err, apperror.ErrNotFound) {
			return err
		}
		return tx.PutUser(user)
	})
	if err != nil {
		return nil, err
	}
	token, err := s.Tokens.Generate(user.ID)
	if err != nil {
		return nil, err
	}
	return &Session{User: user, Token: token}, nil
}

// Login verifies the credential and issues a token. Unknown email and wrong
// password produce the same error so callers cannot probe for accounts.
func (s *Service) Login(ctx context.Context, email, password string) (*Session, error) {
	var user *models.User
	err := s.Ledger.View(ctx, func(tx storage.Tx) error {
		var err error
		user, err = tx.GetUserByEmail(strings.TrimSpace(email))
		return err
	})
	if err != nil {
		if errors.Is(err, apperror.ErrNotFound) {
			return nil, apperror.NotAuthenticated("invalid email or password")
		}
		return nil, err
	}
	if err := s.Passwords.Verify(user.PasswordHash, password); err != nil {
		return nil, apperror.NotAuthenticated("invalid email or password")
	}
	token, err := s.Tokens.Generate(user.ID)
	if err != nil {
		return nil, err
	}
	return &Session{User: user, Token: token}, nil
}

// UserByID loads a user's current record, points balance included.
func (s *Service) UserByID(ctx context.Context, id string) (*models.User, error) {
	var user *models.User
	err := s.Ledger.View(ctx, func(tx storage.Tx) error {
		var err error
		user, err = tx.GetUser(id)
		return err
	})
	if err != nil {
		return nil, err
	}
	return user, nil
}
