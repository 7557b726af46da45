// Package auth supplies the verified owner identity and admin flag the
// ledger core trusts. JWT access tokens, bcrypt password hashing and
// the gin middleware that projects claims into the request context.
package auth

import "fmt"

// UserClaims represents the JWT claims for a user
type UserClaims struct {
	UserID  string `json:"user_id"`
	Email   string `json:"email"`
	IsAdmin bool   `json:"is_admin"`
}

// RegisterRequest represents a user registration request
type RegisterRequest struct {
	Email      string  `json:"email" binding:"required,email"`
	Password   string  `json:"password" binding:"required,min=8"`
	ReferredBy *string `json:"referred_by,omitempty"`
}

// LoginRequest represents a user login request
type LoginRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required"`
}

// LoginResponse represents a successful login or registration
type LoginResponse struct {
	UserID      string `json:"user_id"`
	Email       string `json:"email"`
	IsAdmin     bool   `json:"is_admin"`
	AccessToken string `json:"access_token"`
	ExpiresIn   int64  `json:"expires_in"` // seconds
	TokenType   string `json:"token_type"` // always "Bearer"
}

// AuthError is an authentication failure with a stable machine code.
type AuthError struct {
	Code    string
	Message string
}

func (e AuthError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

var (
	ErrInvalidCredentials = AuthError{Code: "INVALID_CREDENTIALS", Message: "invalid email or password"}
	ErrEmailExists        = AuthError{Code: "EMAIL_EXISTS", Message: "email already registered"}
	ErrInvalidToken       = AuthError{Code: "INVALID_TOKEN", Message: "invalid or expired token"}
	ErrTokenExpired       = AuthError{Code: "TOKEN_EXPIRED", Message: "token has expired"}
	ErrUnauthorized       = AuthError{Code: "UNAUTHORIZED", Message: "unauthorized access"}
	ErrForbidden          = AuthError{Code: "FORBIDDEN", Message: "access forbidden"}
	ErrWeakPassword       = AuthError{Code: "WEAK_PASSWORD", Message: "password does not meet requirements"}
)
