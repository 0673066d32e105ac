package controllers

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"

	"github.com/ManuelReschke/PixelShelf/app/models"
	"github.com/ManuelReschke/PixelShelf/app/repository"
	"github.com/ManuelReschke/PixelShelf/internal/pkg/usercontext"
)

// UserController handles signup, the self-service profile and admin user management
type UserController struct {
	repos *repository.Repositories
}

func NewUserController(repos *repository.Repositories) *UserController {
	return &UserController{repos: repos}
}

type createUserRequest struct {
	Username string `json:"username" form:"username" validate:"required,min=1,max=150"`
	Password string `json:"password" form:"password" validate:"required,min=1,max=72"`
}

type updateUserRequest struct {
	Username *string `json:"username" validate:"omitempty,min=1,max=150"`
	Password *string `json:"password" validate:"omitempty,min=1,max=72"`
}

// HandleCreateUser registers a regular user. The admin name is reserved.
func (uc *UserController) HandleCreateUser(c *fiber.Ctx) error {
	var req createUserRequest
	if err := parseBody(c, &req); err != nil {
		return badRequest(c, err.Error())
	}
	if req.Username == models.ADMIN_USERNAME {
		return badRequest(c, "Cannot register with username 'admin'")
	}

	if _, err := uc.repos.User.GetByUsername(req.Username); err == nil {
		return badRequest(c, "Username already registered")
	} else if !errors.Is(err, gorm.ErrRecordNotFound) {
		return internalError(c, "Failed to look up user", err)
	}

	user, err := models.CreateUser(req.Username, req.Password, false)
	if err != nil {
		return badRequest(c, validationMessage(err))
	}
	if err := uc.repos.User.Create(user); err != nil {
		if errors.Is(err, repository.ErrConflict) {
			return badRequest(c, "Username already registered")
		}
		return internalError(c, "Failed to create user", err)
	}
	return c.JSON(user)
}

// HandleListUsers lists all users ordered by id. Admin only.
func (uc *UserController) HandleListUsers(c *fiber.Ctx) error {
	page := Pagination{Limit: 100}
	if err := parseQuery(c, &page); err != nil {
		return badRequest(c, err.Error())
	}
	users, err := uc.repos.User.List(page.Skip, page.Limit)
	if err != nil {
		return internalError(c, "Failed to list users", err)
	}
	if users == nil {
		users = []models.User{}
	}
	return c.JSON(users)
}

// HandleDeleteUser deletes a non-admin user with everything they own. Admin only.
func (uc *UserController) HandleDeleteUser(c *fiber.Ctx) error {
	id, err := idParam(c, "id")
	if err != nil {
		return badRequest(c, err.Error())
	}

	user, err := uc.repos.User.GetByID(id)
	if err != nil {
		return repositoryError(c, err, "User not found")
	}
	if user.IsAdmin {
		return badRequest(c, "Cannot delete an admin user")
	}

	if err := uc.repos.User.Delete(id); err != nil {
		return repositoryError(c, err, "User not found")
	}
	return c.JSON(user)
}

// HandleGetMe returns the authenticated user.
func (uc *UserController) HandleGetMe(c *fiber.Ctx) error {
	user := usercontext.GetUser(c)
	if user == nil {
		return errorResponse(c, fiber.StatusUnauthorized, "unauthorized", "Not authenticated")
	}
	return c.JSON(user)
}

// HandleUpdateMe changes the caller's username and/or password. A taken username is a conflict.
func (uc *UserController) HandleUpdateMe(c *fiber.Ctx) error {
	current := usercontext.GetUser(c)
	if current == nil {
		return errorResponse(c, fiber.StatusUnauthorized, "unauthorized", "Not authenticated")
	}

	var req updateUserRequest
	if err := parseBody(c, &req); err != nil {
		return badRequest(c, err.Error())
	}

	user, err := uc.repos.User.GetByID(current.ID)
	if err != nil {
		return repositoryError(c, err, "User not found")
	}

	if req.Username != nil && *req.Username != user.Username {
		if _, err := uc.repos.User.GetByUsername(*req.Username); err == nil {
			return conflict(c, "Username already registered")
		} else if !errors.Is(err, gorm.ErrRecordNotFound) {
			return internalError(c, "Failed to look up user", err)
		}
		user.Username = *req.Username
	}
	if req.Password != nil {
		if err := user.SetPassword(*req.Password); err != nil {
			return internalError(c, "Failed to hash password", err)
		}
	}

	if err := uc.repos.User.Update(user); err != nil {
		if errors.Is(err, repository.ErrConflict) {
			return conflict(c, "Username already registered")
		}
		return internalError(c, "Failed to update user", err)
	}
	return c.JSON(user)
}
