// Package middleware contains HTTP middleware functions for request processing
package middleware

import (
	"strings"

	"github.com/gofiber/fiber/v3"
	"github.com/ibnu-sodik/wage-backend/app/dto"
	"github.com/ibnu-sodik/wage-backend/app/services"
)

// Locals keys set by the auth middleware
const (
	LocalUserID = "user_id"
	LocalEmail  = "user_email"
	LocalClaims = "token_claims"
)

// AuthMiddleware validates JWT bearer tokens on protected endpoints
type AuthMiddleware struct {
	tokens services.TokenService
}

func NewAuthMiddleware(tokens services.TokenService) *AuthMiddleware {
	return &AuthMiddleware{tokens: tokens}
}

// Authenticate rejects requests without a valid access token and stores the
// authenticated tenant in the request locals
func (m *AuthMiddleware) Authenticate() fiber.Handler {
	return func(c fiber.Ctx) error {
		authHeader := c.Get("Authorization")
		if authHeader == "" {
			return unauthorized(c, "Authorization header is required", "MISSING_AUTHORIZATION_HEADER")
		}
		if !strings.HasPrefix(authHeader, "Bearer ") {
			return unauthorized(c, "Invalid authorization header format. Expected 'Bearer <token>'", "INVALID_AUTHORIZATION_FORMAT")
		}
		token := strings.TrimPrefix(authHeader, "Bearer ")
		if token == "" {
			return unauthorized(c, "Access token is required", "MISSING_ACCESS_TOKEN")
		}

		claims, err := m.tokens.ValidateAccess(token)
		if err != nil {
			return unauthorized(c, "Invalid or expired access token", "TOKEN_INVALID")
		}

		c.Locals(LocalUserID, claims.UserID)
		c.Locals(LocalEmail, claims.Email)
		c.Locals(LocalClaims, claims)
		return c.Next()
	}
}

// TenantID extracts the authenticated tenant id from the request locals
func TenantID(c fiber.Ctx) (uint, bool) {
	id, ok := c.Locals(LocalUserID).(uint)
	return id, ok
}

func unauthorized(c fiber.Ctx, message, code string) error {
	return c.Status(fiber.StatusUnauthorized).JSON(dto.APIResponse{
		Success: false,
		Message: message,
		Error:   dto.ErrorDetail{Code: code},
	})
}
