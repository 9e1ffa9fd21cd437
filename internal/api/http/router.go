package http

import (
	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/chatpay-service/internal/api/http/handlers"
	"github.com/spec-kit/chatpay-service/internal/auth"
)

// RouteConfig bundles dependencies for route registration.
type RouteConfig struct {
	Health         *handlers.HealthHandler
	Users          *handlers.UsersHandler
	Messages       *handlers.MessagesHandler
	WS             *handlers.WSHandler
	AuthMiddleware *auth.AuthMiddleware
}

// RegisterRoutes wires HTTP routes.
func RegisterRoutes(app *fiber.App, cfg RouteConfig) {
	app.Get("/health/live", cfg.Health.Live)
	app.Get("/health/ready", cfg.Health.Ready)

	api := app.Group("/api")
	api.Post("/register", cfg.Users.Register)
	api.Post("/login", cfg.Users.Login)

	protected := api.Group("", cfg.AuthMiddleware.Handle, auth.RequireAuthenticated())
	protected.Post("/logout", cfg.Users.Logout)
	protected.Get("/user", cfg.Users.Me)

	protected.Post("/messages", cfg.Messages.Send)
	protected.Get("/messages", cfg.Messages.History)
	protected.Post("/messages/read", cfg.Messages.MarkRead)

	adminOnly := protected.Group("", auth.RequireAdmin())
	adminOnly.Get("/chat-users", cfg.Messages.Summaries)
	adminOnly.Get("/users", cfg.Users.ListCustomers)

	// Live channel; authorization happens in the handshake, before upgrade.
	app.Get("/ws/chat/:userID", cfg.WS.Handshake, cfg.WS.Serve())
}
