package auth

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/thereal-osas/broker-sub006/internal/ledger"
)

// UserStore is the persistence surface the auth service needs.
type UserStore interface {
	CreateUser(ctx context.Context, u *ledger.User) error
	GetUserByEmail(ctx context.Context, email string) (*ledger.User, error)
	UpdateUserLastLogin(ctx context.Context, id string) error
}

// Service handles registration and login.
type Service struct {
	store      UserStore
	jwtManager *JWTManager
	passwords  *PasswordManager
	logger     zerolog.Logger
}

func NewService(store UserStore, jwtManager *JWTManager, passwords *PasswordManager, logger zerolog.Logger) *Service {
	if passwords == nil {
		passwords = NewPasswordManager(DefaultBcryptCost, MinPasswordLength)
	}
	return &Service{
		store:      store,
		jwtManager: jwtManager,
		passwords:  passwords,
		logger:     logger.With().Str("component", "auth").Logger(),
	}
}

// Register creates a new user account and returns a login response with
// a fresh access token.
func (s *Service) Register(ctx context.Context, req RegisterRequest) (*LoginResponse, error) {
	if err := s.passwords.ValidatePasswordStrength(req.Password); err != nil {
		return nil, err
	}

	hash, err := s.passwords.HashPassword(req.Password)
	if err != nil {
		return nil, err
	}

	user := &ledger.User{
		ID:           uuid.New().String(),
		Email:        req.Email,
		PasswordHash: hash,
		ReferredBy:   req.ReferredBy,
		CreatedAt:    time.Now().UTC(),
	}

	if err := s.store.CreateUser(ctx, user); err != nil {
		if ledger.IsValidation(err) {
			return nil, ErrEmailExists
		}
		return nil, err
	}

	s.logger.Info().Str("user_id", user.ID).Str("email", user.Email).Msg("User registered")

	return s.issueToken(user)
}

// Login verifies credentials and returns an access token.
func (s *Service) Login(ctx context.Context, req LoginRequest) (*LoginResponse, error) {
	user, err := s.store.GetUserByEmail(ctx, req.Email)
	if err != nil {
		return nil, ErrInvalidCredentials
	}

	if !s.passwords.VerifyPassword(req.Password, user.PasswordHash) {
		return nil, ErrInvalidCredentials
	}

	if err := s.store.UpdateUserLastLogin(ctx, user.ID); err != nil {
		s.logger.Warn().Err(err).Str("user_id", user.ID).Msg("Failed to record last login")
	}

	return s.issueToken(user)
}

func (s *Service) issueToken(user *ledger.User) (*LoginResponse, error) {
	token, err := s.jwtManager.GenerateAccessToken(UserClaims{
		UserID:  user.ID,
		Email:   user.Email,
		IsAdmin: user.IsAdmin,
	})
	if err != nil {
		return nil, err
	}

	return &LoginResponse{
		UserID:      user.ID,
		Email:       user.Email,
		IsAdmin:     user.IsAdmin,
		AccessToken: token,
		ExpiresIn:   s.jwtManager.AccessTokenDuration(),
		TokenType:   "Bearer",
	}, nil
}
