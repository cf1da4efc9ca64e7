package router

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/limiter"

	"github.com/ManuelReschke/PayFox/app/controllers"
	"github.com/ManuelReschke/PayFox/internal/pkg/constants"
	"github.com/ManuelReschke/PayFox/internal/pkg/middleware"
)

type ApiRouter struct {
}

func (h ApiRouter) InstallRouter(app *fiber.App) {
	api := app.Group(constants.APIRoute, limiter.New())
	api.Get("/", func(ctx *fiber.Ctx) error {
		return ctx.Status(fiber.StatusOK).JSON(fiber.Map{
			"message": "Hello from api",
		})
	})

	// API v1 routes
	v1 := api.Group("/v1")
	v1.Post("/invoices", controllers.HandleCreateInvoice)

	admin := v1.Group("/transactions", middleware.AdminKeyMiddleware())
	admin.Get("/:id", controllers.HandleInspectTransaction)
	admin.Post("/:id/cancel", controllers.HandleCancelTransaction)
	admin.Post("/:id/resend-key", controllers.HandleResendKey)
}

func NewApiRouter() *ApiRouter {
	return &ApiRouter{}
}
