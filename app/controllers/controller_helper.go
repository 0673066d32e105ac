package controllers

import (
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"

	"github.com/ManuelReschke/PixelShelf/app/models"
	"github.com/ManuelReschke/PixelShelf/app/repository"
)

var validate = validator.New()

func errorResponse(c *fiber.Ctx, status int, code, message string) error {
	return c.Status(status).JSON(fiber.Map{"error": code, "message": message})
}

func badRequest(c *fiber.Ctx, message string) error {
	return errorResponse(c, fiber.StatusBadRequest, "bad_request", message)
}

func notFound(c *fiber.Ctx, message string) error {
	return errorResponse(c, fiber.StatusNotFound, "not_found", message)
}

func conflict(c *fiber.Ctx, message string) error {
	return errorResponse(c, fiber.StatusConflict, "conflict", message)
}

func internalError(c *fiber.Ctx, message string, err error) error {
	slog.Error(message, "path", c.Path(), "error", err)
	return errorResponse(c, fiber.StatusInternalServerError, "internal_server_error", message)
}

// repositoryError maps repository errors onto the error body. Anything unknown is a 500.
func repositoryError(c *fiber.Ctx, err error, notFoundMessage string) error {
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		return notFound(c, notFoundMessage)
	case errors.Is(err, repository.ErrConflict):
		return conflict(c, conflictMessage(err))
	default:
		return internalError(c, "Database operation failed", err)
	}
}

func conflictMessage(err error) string {
	if errors.Is(err, models.ErrTagConflict) {
		return "Tag could not be resolved, please retry"
	}
	return "Resource already exists"
}

// parseBody decodes the request body into dst and runs its validate tags.
func parseBody(c *fiber.Ctx, dst any) error {
	if err := c.BodyParser(dst); err != nil {
		return fmt.Errorf("invalid request body: %w", err)
	}
	if err := validate.Struct(dst); err != nil {
		return errors.New(validationMessage(err))
	}
	return nil
}

// parseQuery decodes query parameters into dst and runs its validate tags.
func parseQuery(c *fiber.Ctx, dst any) error {
	if err := c.QueryParser(dst); err != nil {
		return fmt.Errorf("invalid query: %w", err)
	}
	if err := validate.Struct(dst); err != nil {
		return errors.New(validationMessage(err))
	}
	return nil
}

func validationMessage(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err.Error()
	}
	parts := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		if fe.Param() != "" {
			parts = append(parts, fmt.Sprintf("%s failed on %s=%s", fe.Namespace(), fe.Tag(), fe.Param()))
		} else {
			parts = append(parts, fmt.Sprintf("%s failed on %s", fe.Namespace(), fe.Tag()))
		}
	}
	return strings.Join(parts, "; ")
}

func idParam(c *fiber.Ctx, name string) (uint, error) {
	id, err := strconv.ParseUint(c.Params(name), 10, 64)
	if err != nil || id == 0 {
		return 0, fmt.Errorf("invalid %s", name)
	}
	return uint(id), nil
}

// Pagination is the skip/limit pair shared by all list endpoints.
type Pagination struct {
	Skip  int `query:"skip" validate:"min=0"`
	Limit int `query:"limit" validate:"min=1,max=1000"`
}
