package auth

import (
	"fmt"
	"unicode"

	"golang.org/x/crypto/bcrypt"
)

const (
	// DefaultBcryptCost is the default bcrypt cost factor
	DefaultBcryptCost = 12

	// MinPasswordLength is the minimum password length
	MinPasswordLength = 8

	// MaxPasswordLength is the maximum password length (to prevent DoS)
	MaxPasswordLength = 128
)

// PasswordManager handles password hashing and validation
type PasswordManager struct {
	bcryptCost        int
	minPasswordLength int
}

// NewPasswordManager creates a new password manager
func NewPasswordManager(bcryptCost, minLength int) *PasswordManager {
	if bcryptCost < bcrypt.MinCost {
		bcryptCost = DefaultBcryptCost
	}
	if minLength < MinPasswordLength {
		minLength = MinPasswordLength
	}
	return &PasswordManager{
		bcryptCost:        bcryptCost,
		minPasswordLength: minLength,
	}
}

// HashPassword hashes a password using bcrypt
func (p *PasswordManager) HashPassword(password string) (string, error) {
	if len(password) > MaxPasswordLength {
		return "", fmt.Errorf("password too long")
	}

	bytes, err := bcrypt.GenerateFromPassword([]byte(password), p.bcryptCost)
	if err != nil {
		return "", fmt.Errorf("failed to hash password: %w", err)
	}
	return string(bytes), nil
}

// VerifyPassword compares a password against its hash
func (p *PasswordManager) VerifyPassword(password, hash string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
}

// ValidatePasswordStrength checks length plus letter and digit presence
func (p *PasswordManager) ValidatePasswordStrength(password string) error {
	if len(password) < p.minPasswordLength {
		return ErrWeakPassword
	}
	if len(password) > MaxPasswordLength {
		return ErrWeakPassword
	}

	var hasLetter, hasDigit bool
	for _, r := range password {
		switch {
		case unicode.IsLetter(r):
			hasLetter = true
		case unicode.IsDigit(r):
			hasDigit = true
		}
	}
	if !hasLetter || !hasDigit {
		return ErrWeakPassword
	}
	return nil
}
