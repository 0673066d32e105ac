package middleware

import (
	"errors"
	"log/slog"
	"strings"

	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"

	"github.com/ManuelReschke/PixelShelf/app/repository"
	"github.com/ManuelReschke/PixelShelf/internal/pkg/token"
	"github.com/ManuelReschke/PixelShelf/internal/pkg/usercontext"
)

const credentialsMessage = "Could not validate credentials"

// BearerAuth authenticates requests carrying "Authorization: Bearer <token>" and stores the
// caller in the user context. The token subject must still name an existing user.
func BearerAuth(users repository.UserRepository, issuer *token.Issuer) fiber.Handler {
	return func(c *fiber.Ctx) error {
		raw := extractBearerToken(c)
		if raw == "" {
			return unauthorized(c, "Not authenticated")
		}

		username, err := issuer.Parse(raw)
		if err != nil {
			return unauthorized(c, credentialsMessage)
		}

		user, err := users.GetByUsername(username)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return unauthorized(c, credentialsMessage)
			}
			slog.Error("bearer auth: user lookup failed", "username", username, "error", err)
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal_server_error", "message": "Credential verification failed"})
		}

		usercontext.Set(c, user)
		return c.Next()
	}
}

// RequireAdmin must run after BearerAuth and rejects non-admin callers with 403.
func RequireAdmin(c *fiber.Ctx) error {
	if !usercontext.IsLoggedIn(c) {
		return unauthorized(c, "Not authenticated")
	}
	if !usercontext.IsAdmin(c) {
		return c.Status(fiber.StatusForbidden).JSON(fiber.Map{
			"error":   "forbidden",
			"message": "admin privileges required",
		})
	}
	return c.Next()
}

func unauthorized(c *fiber.Ctx, message string) error {
	c.Set(fiber.HeaderWWWAuthenticate, "Bearer")
	return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
		"error":   "unauthorized",
		"message": message,
	})
}

func extractBearerToken(c *fiber.Ctx) string {
	auth := strings.TrimSpace(c.Get(fiber.HeaderAuthorization))
	if len(auth) > 7 && strings.EqualFold(auth[:7], "bearer ") {
		return strings.TrimSpace(auth[7:])
	}
	return ""
}
