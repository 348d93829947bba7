package routes

import (
	"github.com/gofiber/fiber/v2"

	"github.com/congo-pay/walletcore/internal/funding"
)

// RegisterFundingRoutes wires card deposit intents and their client-side confirmation.
func RegisterFundingRoutes(r fiber.Router, h *funding.Handler, idempotent fiber.Handler) {
	group := r.Group("/funding/intents")
	group.Post("", idempotent, h.CreateIntent)
	group.Post("/:intentId/confirm", h.Confirm)
}

// RegisterWebhookRoutes wires gateway callbacks. They authenticate by signature, not JWT.
func RegisterWebhookRoutes(r fiber.Router, h *funding.Handler) {
	r.Post("/webhooks/gateway", h.Webhook)
}
