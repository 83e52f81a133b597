// Package service provides business logic for the application.
package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/accountd/accountd/internal/auth"
	"github.com/accountd/accountd/internal/model"
	"github.com/accountd/accountd/internal/repository"
)

// Service errors.
var (
	ErrDuplicateEmail     = errors.New("email already registered")
	ErrDuplicateUsername  = errors.New("username already taken")
	ErrInvalidCredentials = errors.New("incorrect username or password")
	ErrAccountInactive    = errors.New("user account is inactive")
	ErrInvalidToken       = errors.New("could not validate credentials")
	ErrUserNotFound       = errors.New("user not found")
)

// ValidationError wraps a field validation failure caught before any
// store access.
type ValidationError struct {
	Err error
}

func (e *ValidationError) Error() string { return e.Err.Error() }

func (e *ValidationError) Unwrap() error { return e.Err }

// AccountStore is the document-store surface the workflow depends on.
// *repository.Repository satisfies it; tests supply an in-memory fake.
type AccountStore interface {
	FindByEmail(ctx context.Context, email string) (*model.Account, error)
	FindByUsername(ctx context.Context, username string) (*model.Account, error)
	FindByUsernameOrEmail(ctx context.Context, identifier string) (*model.Account, error)
	Insert(ctx context.Context, account *model.Account) (*model.Account, error)
}

// AccountService orchestrates signup, login, and identity lookup.
type AccountService struct {
	store  AccountStore
	tokens *auth.TokenService
}

// NewAccountService creates a new AccountService.
func NewAccountService(store AccountStore, tokens *auth.TokenService) *AccountService {
	return &AccountService{
		store:  store,
		tokens: tokens,
	}
}

// Signup registers a new account. Field validation runs before any store
// access; duplicate email is reported before duplicate username.
func (s *AccountService) Signup(ctx context.Context, req model.SignupRequest) (*model.Account, error) {
	if err := req.Validate(); err != nil {
		return nil, &ValidationError{Err: err}
	}

	if _, err := s.store.FindByEmail(ctx, req.Email); err == nil {
		return nil, ErrDuplicateEmail
	} else if !errors.Is(err, repository.ErrAccountNotFound) {
		return nil, fmt.Errorf("check email: %w", err)
	}

	if _, err := s.store.FindByUsername(ctx, req.Username); err == nil {
		return nil, ErrDuplicateUsername
	} else if !errors.Is(err, repository.ErrAccountNotFound) {
		return nil, fmt.Errorf("check username: %w", err)
	}

	hash, err := auth.HashPassword(req.Password)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	now := time.Now().UTC()
	account := &model.Account{
		Email:        req.Email,
		Username:     req.Username,
		FullName:     req.FullName,
		PasswordHash: hash,
		IsActive:     true,
		IsVerified:   false,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	stored, err := s.store.Insert(ctx, account)
	if err != nil {
		if errors.Is(err, repository.ErrDuplicateAccount) {
			// Lost the race against a concurrent signup; the unique index
			// caught it. Report which field conflicts.
			if _, ferr := s.store.FindByEmail(ctx, req.Email); ferr == nil {
				return nil, ErrDuplicateEmail
			}
			return nil, ErrDuplicateUsername
		}
		return nil, fmt.Errorf("insert account: %w", err)
	}

	return stored, nil
}

// Login verifies credentials for the account matching identifier (username
// or email) and issues a session token bound to the account's username.
// Unknown identifier and wrong password yield the same error so callers
// cannot enumerate accounts.
func (s *AccountService) Login(ctx context.Context, identifier, password string) (string, error) {
	account, err := s.store.FindByUsernameOrEmail(ctx, identifier)
	if err != nil {
		if errors.Is(err, repository.ErrAccountNotFound) {
			return "", ErrInvalidCredentials
		}
		return "", fmt.Errorf("find account: %w", err)
	}

	if !auth.Matches(password, account.PasswordHash) {
		return "", ErrInvalidCredentials
	}

	if !account.IsActive {
		return "", ErrAccountInactive
	}

	token, err := s.tokens.Issue(account.Username)
	if err != nil {
		return "", fmt.Errorf("issue token: %w", err)
	}

	return token, nil
}

// CurrentUser resolves a session token to its account. Any verification
// failure, including a missing subject claim, yields ErrInvalidToken; a
// valid token whose account has vanished yields ErrUserNotFound.
func (s *AccountService) CurrentUser(ctx context.Context, token string) (*model.Account, error) {
	subject, err := s.tokens.Verify(token)
	if err != nil {
		return nil, ErrInvalidToken
	}
	if subject == "" {
		return nil, ErrInvalidToken
	}

	account, err := s.store.FindByUsername(ctx, subject)
	if err != nil {
		if errors.Is(err, repository.ErrAccountNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("find account: %w", err)
	}

	return account, nil
}
