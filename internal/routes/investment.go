package routes

import (
	"github.com/gofiber/fiber/v2"

	"github.com/congo-pay/walletcore/internal/identity"
	"github.com/congo-pay/walletcore/internal/investment"
	"github.com/congo-pay/walletcore/internal/middleware"
)

// RegisterInvestmentRoutes wires the product catalog and investment lifecycle.
func RegisterInvestmentRoutes(r fiber.Router, h *investment.Handler, idempotent fiber.Handler) {
	r.Get("/investment-products", h.Products)
	r.Post("/investment-products/quote", h.Quote)

	group := r.Group("/investments")
	group.Get("", h.List)
	group.Post("", idempotent, h.Purchase)
	group.Get("/:id/withdrawal-quote", h.WithdrawalQuote)
	group.Post("/:id/withdraw", idempotent, h.Withdraw)
	group.Post("/:id/mature", middleware.RequireRole(identity.RoleAdmin), h.Mature)
}
