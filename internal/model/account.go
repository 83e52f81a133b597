// Package model defines domain entities for the application.
package model

import (
	"errors"
	"regexp"
	"time"
	"unicode/utf8"

	"go.mongodb.org/mongo-driver/v2/bson"
)

// Username and password limits enforced at signup.
const (
	MinUsernameLength = 3
	MaxUsernameLength = 50
	MinPasswordLength = 6
)

// emailRegex is a pragmatic format check; deliverability is not verified.
var emailRegex = regexp.MustCompile(`^[^@\s]+@[^@\s]+\.[^@\s]+$`)

// Validation errors returned by SignupRequest.Validate.
var (
	ErrInvalidEmail     = errors.New("invalid email address")
	ErrInvalidUsername  = errors.New("username must be 3-50 characters")
	ErrPasswordTooShort = errors.New("password must be at least 6 characters")
)

// Account is the persisted identity record.
// PasswordHash is never serialized to JSON.
type Account struct {
	ID           bson.ObjectID `bson:"_id,omitempty" json:"id"`
	Email        string        `bson:"email" json:"email"`
	Username     string        `bson:"username" json:"username"`
	FullName     string        `bson:"full_name,omitempty" json:"full_name,omitempty"`
	PasswordHash string        `bson:"password_hash" json:"-"`
	IsActive     bool          `bson:"is_active" json:"is_active"`
	IsVerified   bool          `bson:"is_verified" json:"is_verified"`
	CreatedAt    time.Time     `bson:"created_at" json:"created_at"`
	UpdatedAt    time.Time     `bson:"updated_at" json:"updated_at"`
}

// AccountResponse is the public projection of an Account.
// It carries no credential material.
type AccountResponse struct {
	ID         string    `json:"id"`
	Email      string    `json:"email"`
	Username   string    `json:"username"`
	FullName   string    `json:"full_name,omitempty"`
	IsActive   bool      `json:"is_active"`
	IsVerified bool      `json:"is_verified"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// ToResponse converts an Account to its public representation,
// stripping the password hash.
func (a *Account) ToResponse() AccountResponse {
	return AccountResponse{
		ID:         a.ID.Hex(),
		Email:      a.Email,
		Username:   a.Username,
		FullName:   a.FullName,
		IsActive:   a.IsActive,
		IsVerified: a.IsVerified,
		CreatedAt:  a.CreatedAt,
		UpdatedAt:  a.UpdatedAt,
	}
}

// SignupRequest is the payload for POST /auth/signup.
type SignupRequest struct {
	Email    string `json:"email"`
	Username string `json:"username"`
	Password string `json:"password"`
	FullName string `json:"full_name,omitempty"`
}

// Validate checks field formats before any store access.
// Length limits count characters, not bytes.
func (r *SignupRequest) Validate() error {
	if !emailRegex.MatchString(r.Email) {
		return ErrInvalidEmail
	}
	if n := utf8.RuneCountInString(r.Username); n < MinUsernameLength || n > MaxUsernameLength {
		return ErrInvalidUsername
	}
	if utf8.RuneCountInString(r.Password) < MinPasswordLength {
		return ErrPasswordTooShort
	}
	return nil
}

// TokenResponse is the payload returned by POST /auth/login.
type TokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
}
