package business_flow

import (
	"context"
	"fmt"
	"log"

	"github.com/ibnu-sodik/wage-backend/app/services"
	"github.com/ibnu-sodik/wage-backend/models"
	"github.com/ibnu-sodik/wage-backend/repository"
	"github.com/ibnu-sodik/wage-backend/utils"
	"golang.org/x/crypto/bcrypt"
)

// LoginFlow authenticates tenant accounts and issues API tokens
type LoginFlow interface {
	Login(ctx context.Context, email, password string, meta ClientMetadata) (*models.User, *services.TokenPair, error)
	Refresh(ctx context.Context, refreshToken string) (*services.TokenPair, error)
}

// LoginFlowImpl implements LoginFlow
type LoginFlowImpl struct {
	users  repository.UserRepository
	tokens services.TokenService
	logger *log.Logger
}

func NewLoginFlow(users repository.UserRepository, tokens services.TokenService, logger *log.Logger) LoginFlow {
	return &LoginFlowImpl{users: users, tokens: tokens, logger: logger}
}

// Login verifies the password and issues a token pair
func (f *LoginFlowImpl) Login(ctx context.Context, email, password string, meta ClientMetadata) (*models.User, *services.TokenPair, error) {
	user, err := f.users.ByEmail(ctx, email)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to look up user: %w", err)
	}
	if user == nil {
		return nil, nil, ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		f.logger.Printf("WARN: login rejected for %s from %s", email, meta.IPAddress)
		return nil, nil, ErrInvalidCredentials
	}
	if !utils.IsTrue(user.IsActive) {
		return nil, nil, ErrAccountInactive
	}

	pair, err := f.tokens.Generate(user)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to issue tokens: %w", err)
	}
	f.logger.Printf("user %d logged in from %s", user.ID, meta.IPAddress)
	return user, pair, nil
}

// Refresh exchanges a valid refresh token for a new pair
func (f *LoginFlowImpl) Refresh(ctx context.Context, refreshToken string) (*services.TokenPair, error) {
	claims, err := f.tokens.ValidateRefresh(refreshToken)
	if err != nil {
		return nil, ErrInvalidCredentials
	}
	user, err := f.users.ByID(ctx, claims.UserID)
	if err != nil {
		return nil, fmt.Errorf("failed to look up user: %w", err)
	}
	if user == nil || !utils.IsTrue(user.IsActive) {
		return nil, ErrInvalidCredentials
	}
	return f.tokens.Generate(user)
}

// HashPassword produces a bcrypt hash for storage
func HashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("failed to hash password: %w", err)
	}
	return string(hash), nil
}
