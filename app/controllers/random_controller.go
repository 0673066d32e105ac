package controllers

import (
	"context"
	"errors"
	"log/slog"

	"github.com/gofiber/fiber/v2"

	"github.com/ManuelReschke/PixelShelf/app/repository"
	"github.com/ManuelReschke/PixelShelf/internal/pkg/imagefetch"
)

// ImageFetcher downloads the bytes behind an image URL.
type ImageFetcher interface {
	Fetch(ctx context.Context, url string) (*imagefetch.Image, error)
}

// RandomController serves random images, publicly as a URL and per api key as proxied bytes
type RandomController struct {
	repos   *repository.Repositories
	fetcher ImageFetcher
}

func NewRandomController(repos *repository.Repositories, fetcher ImageFetcher) *RandomController {
	return &RandomController{repos: repos, fetcher: fetcher}
}

// HandleRandom returns the URL of a random image, optionally restricted to one tag.
func (rc *RandomController) HandleRandom(c *fiber.Ctx) error {
	image, err := rc.repos.Image.Random(c.Query("tag"))
	if err != nil {
		return repositoryError(c, err, "No images found")
	}
	return c.JSON(fiber.Map{"url": image.URL})
}

// HandleKeyedRandom picks an image matching the key's tag sets and streams its bytes.
func (rc *RandomController) HandleKeyedRandom(c *fiber.Ctx) error {
	image, err := repository.RandomForKey(rc.repos.APIKey, rc.repos.Image, c.Params("key"))
	if err != nil {
		return repositoryError(c, err, "No images found for this key")
	}

	fetched, err := rc.fetcher.Fetch(c.UserContext(), image.URL)
	if err != nil {
		if errors.Is(err, imagefetch.ErrFetchFailed) {
			slog.Warn("keyed random: upstream fetch failed", "image_id", image.ID, "error", err)
			return errorResponse(c, fiber.StatusBadGateway, "fetch_failed", "Error fetching image from source")
		}
		return internalError(c, "Failed to fetch image", err)
	}

	c.Set(fiber.HeaderContentType, fetched.ContentType)
	// the response writer closes the body once it is drained
	return c.SendStream(fetched.Body)
}
