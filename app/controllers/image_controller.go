package controllers

import (
	"github.com/gofiber/fiber/v2"

	"github.com/ManuelReschke/PixelShelf/app/models"
	"github.com/ManuelReschke/PixelShelf/app/repository"
	"github.com/ManuelReschke/PixelShelf/internal/pkg/usercontext"
)

const imageNotFound = "Image not found"

// ImageController handles the owner-scoped image catalog
type ImageController struct {
	repos *repository.Repositories
}

func NewImageController(repos *repository.Repositories) *ImageController {
	return &ImageController{repos: repos}
}

type createImageRequest struct {
	URL         string   `json:"url" validate:"required,max=768"`
	Description *string  `json:"description"`
	Tags        []string `json:"tags" validate:"dive,required,max=100"`
}

type bulkCreateRequest struct {
	URLs []string `json:"urls" validate:"required,dive,required,max=768"`
	Tags []string `json:"tags" validate:"dive,required,max=100"`
}

type listImagesQuery struct {
	Skip         int      `query:"skip" validate:"min=0"`
	Limit        int      `query:"limit" validate:"min=1,max=1000"`
	Tags         []string `query:"tags" validate:"dive,required"`
	SortBy       string   `query:"sort_by"`
	SortOrder    string   `query:"sort_order"`
	FilenameLike string   `query:"filename_like"`
}

type bulkDeleteRequest struct {
	ImageIDs []uint `json:"image_ids" validate:"required"`
}

type replaceTagsRequest struct {
	Tags []string `json:"tags" validate:"dive,required,max=100"`
}

type bulkAddTagsRequest struct {
	ImageIDs []uint   `json:"image_ids" validate:"required,min=1"`
	Tags     []string `json:"tags" validate:"dive,required,max=100"`
}

type renameRequest struct {
	Filename string `json:"filename" validate:"required,max=255"`
}

// HandleCreate stores one image for the caller. A URL that is already stored is a conflict.
func (ic *ImageController) HandleCreate(c *fiber.Ctx) error {
	var req createImageRequest
	if err := parseBody(c, &req); err != nil {
		return badRequest(c, err.Error())
	}

	image := models.NewImage(req.URL, req.Description, usercontext.GetUserID(c))
	if err := ic.repos.Image.Create(image, req.Tags); err != nil {
		return repositoryError(c, err, imageNotFound)
	}
	return c.JSON(image)
}

// HandleBulkCreate stores every URL not seen before and returns only the new images.
func (ic *ImageController) HandleBulkCreate(c *fiber.Ctx) error {
	var req bulkCreateRequest
	if err := parseBody(c, &req); err != nil {
		return badRequest(c, err.Error())
	}

	created, err := ic.repos.Image.BulkCreate(req.URLs, req.Tags, usercontext.GetUserID(c))
	if err != nil {
		return repositoryError(c, err, imageNotFound)
	}
	return c.JSON(created)
}

// HandleList returns one page of the caller's images plus the filtered total.
func (ic *ImageController) HandleList(c *fiber.Ctx) error {
	q := listImagesQuery{Limit: 10, SortBy: repository.DefaultSortColumn, SortOrder: "desc"}
	if err := parseQuery(c, &q); err != nil {
		return badRequest(c, err.Error())
	}

	page, err := ic.repos.Image.List(repository.ImageQuery{
		OwnerID:      usercontext.GetUserID(c),
		Offset:       q.Skip,
		Limit:        q.Limit,
		Tags:         q.Tags,
		SortBy:       q.SortBy,
		SortOrder:    q.SortOrder,
		FilenameLike: q.FilenameLike,
	})
	if err != nil {
		return internalError(c, "Failed to list images", err)
	}
	return c.JSON(page)
}

// HandleDelete removes one owned image and returns it.
func (ic *ImageController) HandleDelete(c *fiber.Ctx) error {
	id, err := idParam(c, "id")
	if err != nil {
		return badRequest(c, err.Error())
	}
	image, err := ic.repos.Image.Delete(id, usercontext.GetUserID(c))
	if err != nil {
		return repositoryError(c, err, imageNotFound)
	}
	return c.JSON(image)
}

// HandleBulkDelete deletes the owned images among image_ids. Other ids are ignored.
func (ic *ImageController) HandleBulkDelete(c *fiber.Ctx) error {
	var req bulkDeleteRequest
	if err := parseBody(c, &req); err != nil {
		return badRequest(c, err.Error())
	}
	if err := ic.repos.Image.BulkDelete(req.ImageIDs, usercontext.GetUserID(c)); err != nil {
		return internalError(c, "Failed to delete images", err)
	}
	return c.JSON(fiber.Map{"status": "success", "deleted_ids": req.ImageIDs})
}

// HandleReplaceTags sets the complete tag list of an owned image.
func (ic *ImageController) HandleReplaceTags(c *fiber.Ctx) error {
	id, err := idParam(c, "id")
	if err != nil {
		return badRequest(c, err.Error())
	}
	var req replaceTagsRequest
	if err := parseBody(c, &req); err != nil {
		return badRequest(c, err.Error())
	}

	image, err := ic.repos.Image.ReplaceTags(id, usercontext.GetUserID(c), req.Tags)
	if err != nil {
		return repositoryError(c, err, imageNotFound)
	}
	return c.JSON(image)
}

// HandleBulkAddTags adds tags to every owned image among image_ids.
func (ic *ImageController) HandleBulkAddTags(c *fiber.Ctx) error {
	var req bulkAddTagsRequest
	if err := parseBody(c, &req); err != nil {
		return badRequest(c, err.Error())
	}

	images, err := ic.repos.Image.AddTags(req.ImageIDs, usercontext.GetUserID(c), req.Tags)
	if err != nil {
		return repositoryError(c, err, "One or more images not found")
	}
	return c.JSON(images)
}

// HandleRename sets the filename of an owned image.
func (ic *ImageController) HandleRename(c *fiber.Ctx) error {
	id, err := idParam(c, "id")
	if err != nil {
		return badRequest(c, err.Error())
	}
	var req renameRequest
	if err := parseBody(c, &req); err != nil {
		return badRequest(c, err.Error())
	}

	image, err := ic.repos.Image.Rename(id, usercontext.GetUserID(c), req.Filename)
	if err != nil {
		return repositoryError(c, err, imageNotFound)
	}
	return c.JSON(image)
}
