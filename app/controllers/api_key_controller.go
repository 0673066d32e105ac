package controllers

import (
	"github.com/gofiber/fiber/v2"

	"github.com/ManuelReschke/PixelShelf/app/models"
	"github.com/ManuelReschke/PixelShelf/app/repository"
	"github.com/ManuelReschke/PixelShelf/internal/pkg/usercontext"
)

// APIKeyController manages the caller's api keys
type APIKeyController struct {
	repos *repository.Repositories
}

func NewAPIKeyController(repos *repository.Repositories) *APIKeyController {
	return &APIKeyController{repos: repos}
}

type createAPIKeyRequest struct {
	Name    string   `json:"name" validate:"required,min=1,max=150"`
	TagsAnd []string `json:"tags_and" validate:"dive,required,max=100"`
	TagsOr  []string `json:"tags_or" validate:"dive,required,max=100"`
}

// HandleCreate issues a new key. Display names are unique across all users.
func (kc *APIKeyController) HandleCreate(c *fiber.Ctx) error {
	var req createAPIKeyRequest
	if err := parseBody(c, &req); err != nil {
		return badRequest(c, err.Error())
	}

	key := &models.APIKey{Name: req.Name, OwnerID: usercontext.GetUserID(c)}
	if err := kc.repos.APIKey.Create(key, req.TagsAnd, req.TagsOr); err != nil {
		return repositoryError(c, err, "API Key not found")
	}
	return c.JSON(key)
}

func (kc *APIKeyController) HandleList(c *fiber.Ctx) error {
	page := Pagination{Limit: 100}
	if err := parseQuery(c, &page); err != nil {
		return badRequest(c, err.Error())
	}
	keys, err := kc.repos.APIKey.ListByOwner(usercontext.GetUserID(c), page.Skip, page.Limit)
	if err != nil {
		return internalError(c, "Failed to list api keys", err)
	}
	return c.JSON(keys)
}

// HandleDelete revokes an owned key and returns it.
func (kc *APIKeyController) HandleDelete(c *fiber.Ctx) error {
	id, err := idParam(c, "id")
	if err != nil {
		return badRequest(c, err.Error())
	}
	key, err := kc.repos.APIKey.Delete(id, usercontext.GetUserID(c))
	if err != nil {
		return repositoryError(c, err, "API Key not found")
	}
	return c.JSON(key)
}
