package controllers

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"

	"github.com/ManuelReschke/PixelShelf/app/repository"
	"github.com/ManuelReschke/PixelShelf/internal/pkg/token"
)

// AuthController exchanges username and password for a bearer token
type AuthController struct {
	users  repository.UserRepository
	issuer *token.Issuer
}

func NewAuthController(users repository.UserRepository, issuer *token.Issuer) *AuthController {
	return &AuthController{users: users, issuer: issuer}
}

type tokenRequest struct {
	Username string `json:"username" form:"username" validate:"required"`
	Password string `json:"password" form:"password" validate:"required"`
}

type tokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
}

// HandleToken accepts form or JSON credentials. Unknown users and wrong passwords get the same answer.
func (ac *AuthController) HandleToken(c *fiber.Ctx) error {
	var req tokenRequest
	if err := parseBody(c, &req); err != nil {
		return badRequest(c, err.Error())
	}

	user, err := ac.users.GetByUsername(req.Username)
	if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		return internalError(c, "Failed to look up user", err)
	}
	if user == nil || !user.CheckPassword(req.Password) {
		c.Set(fiber.HeaderWWWAuthenticate, "Bearer")
		return errorResponse(c, fiber.StatusUnauthorized, "unauthorized", "Incorrect username or password")
	}

	signed, err := ac.issuer.Issue(user.Username)
	if err != nil {
		return internalError(c, "Failed to issue token", err)
	}
	return c.JSON(tokenResponse{AccessToken: signed, TokenType: "bearer"})
}
