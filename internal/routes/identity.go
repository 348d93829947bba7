package routes

import (
	"github.com/gofiber/fiber/v2"

	"github.com/congo-pay/walletcore/internal/identity"
	"github.com/congo-pay/walletcore/internal/middleware"
)

// RegisterIdentityRoutes wires public registration.
func RegisterIdentityRoutes(r fiber.Router, h *identity.Handler) {
	r.Post("/identity/register", h.Register)
}

// RegisterProfileRoutes wires authenticated profile and admin onboarding endpoints.
func RegisterProfileRoutes(r fiber.Router, h *identity.Handler) {
	r.Get("/me", h.Me)

	admin := r.Group("/admin", middleware.RequireRole(identity.RoleAdmin))
	admin.Post("/agents", h.RegisterAgent)
	admin.Post("/users/:userId/kyc", h.SetKYCStatus)
}
