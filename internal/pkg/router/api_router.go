package router

import (
	"github.com/gofiber/fiber/v2"

	"github.com/ManuelReschke/PixelShelf/app/controllers"
	"github.com/ManuelReschke/PixelShelf/internal/pkg/middleware"
)

type ApiRouter struct {
	deps Dependencies
}

func (h ApiRouter) InstallRouter(app *fiber.App) {
	repos := h.deps.Repos

	mainController := controllers.NewMainController(h.deps.DB, repos)
	authController := controllers.NewAuthController(repos.User, h.deps.Issuer)
	userController := controllers.NewUserController(repos)
	imageController := controllers.NewImageController(repos)
	randomController := controllers.NewRandomController(repos, h.deps.Fetcher)
	keyController := controllers.NewAPIKeyController(repos)

	requireAuth := middleware.BearerAuth(repos.User, h.deps.Issuer)

	api := app.Group("/api", newLimiter())
	api.Get("/", mainController.HandleHello)
	api.Get("/health", mainController.HandleHealth)

	api.Post("/token", authController.HandleToken)

	// users
	api.Post("/users", userController.HandleCreateUser)
	api.Get("/users/me", requireAuth, userController.HandleGetMe)
	api.Put("/users/me", requireAuth, userController.HandleUpdateMe)
	api.Get("/users", requireAuth, middleware.RequireAdmin, userController.HandleListUsers)
	api.Delete("/users/:id", requireAuth, middleware.RequireAdmin, userController.HandleDeleteUser)

	// images
	images := api.Group("/images", requireAuth)
	images.Post("/", imageController.HandleCreate)
	images.Get("/", imageController.HandleList)
	images.Post("/bulk", imageController.HandleBulkCreate)
	images.Post("/bulk-delete", imageController.HandleBulkDelete)
	images.Post("/bulk-add-tags", imageController.HandleBulkAddTags)
	images.Delete("/:id", imageController.HandleDelete)
	images.Put("/:id/tags", imageController.HandleReplaceTags)
	images.Put("/:id/rename", imageController.HandleRename)

	// api keys
	keys := api.Group("/keys", requireAuth)
	keys.Post("/", keyController.HandleCreate)
	keys.Get("/", keyController.HandleList)
	keys.Delete("/:id", keyController.HandleDelete)

	// random selection
	api.Get("/random", randomController.HandleRandom)
	api.Get("/v1/random/:key", randomController.HandleKeyedRandom)
}

func NewApiRouter(deps Dependencies) *ApiRouter {
	return &ApiRouter{deps: deps}
}
