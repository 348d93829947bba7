package routes

import (
	"github.com/gofiber/fiber/v2"

	"github.com/congo-pay/walletcore/internal/otp"
)

// RegisterOTPRoutes wires code issuance. Both endpoints share one rate limit bucket.
func RegisterOTPRoutes(r fiber.Router, h *otp.Handler, rateLimiter fiber.Handler) {
	group := r.Group("/otp", rateLimiter)
	group.Post("", h.Issue)
	group.Post("/resend", h.Resend)
}
