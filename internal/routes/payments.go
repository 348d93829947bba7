package routes

import (
	"github.com/gofiber/fiber/v2"

	"github.com/congo-pay/walletcore/internal/identity"
	"github.com/congo-pay/walletcore/internal/middleware"
	"github.com/congo-pay/walletcore/internal/payments"
)

// RegisterPaymentRoutes wires the money-moving workflows.
func RegisterPaymentRoutes(r fiber.Router, h *payments.Handler, idempotent fiber.Handler) {
	r.Get("/fees/quote", h.QuoteFee)
	r.Post("/deposits/agent", middleware.RequireRole(identity.RoleAgent), idempotent, h.AgentDeposit)
	r.Post("/withdrawals", idempotent, h.Withdraw)
	r.Post("/transfers", idempotent, h.Transfer)
	r.Post("/admin/withdrawals/:transactionId/settle", middleware.RequireRole(identity.RoleAdmin), h.SettleWithdrawal)
}
