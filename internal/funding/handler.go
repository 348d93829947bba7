package funding

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/congo-pay/walletcore/internal/apperr"
	"github.com/congo-pay/walletcore/internal/gateway"
	"github.com/congo-pay/walletcore/internal/ledger"
	"github.com/congo-pay/walletcore/internal/middleware"
)

// Handler exposes HTTP endpoints for card deposits and gateway webhooks.
type Handler struct {
	service   *Service
	secret    string
	tolerance time.Duration
	logger    *slog.Logger
}

// NewHandler constructs a funding handler. secret authenticates webhook deliveries.
func NewHandler(service *Service, secret string, tolerance time.Duration, logger *slog.Logger) *Handler {
	return &Handler{service: service, secret: secret, tolerance: tolerance, logger: logger}
}

// CreateIntent opens a card deposit for the authenticated user.
func (h *Handler) CreateIntent(c *fiber.Ctx) error {
	var req CreateIntentRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
	created, err := h.service.CreateIntent(c.UserContext(), middleware.UserID(c), req.Amount)
	if err != nil {
		return err
	}
	return c.Status(http.StatusCreated).JSON(created)
}

// Confirm polls the gateway for the intent's status and credits the wallet if it
// succeeded.
func (h *Handler) Confirm(c *fiber.Ctx) error {
	res, err := h.service.ReconcileFromPoll(c.UserContext(), middleware.UserID(c), c.Params("intentId"))
	if err != nil {
		return err
	}
	return c.Status(http.StatusOK).JSON(res)
}

// Webhook receives gateway events. Business outcomes always get the same
// acknowledgement; only failures worth a redelivery get a non-2xx status.
func (h *Handler) Webhook(c *fiber.Ctx) error {
	event, err := gateway.ParseEvent(c.Body(), c.Get(gateway.SignatureHeader), h.secret, h.tolerance, time.Now())
	if err != nil {
		h.logger.WarnContext(c.UserContext(), "rejected webhook delivery", slog.Any("error", err))
		return c.Status(http.StatusBadRequest).JSON(webhookAck{Received: false})
	}

	res, err := h.service.ReconcileFromWebhook(c.UserContext(), event)
	if err != nil {
		if redeliverable(err) {
			h.logger.ErrorContext(c.UserContext(), "webhook processing failed, awaiting redelivery",
				slog.String("event_id", event.ID), slog.Any("error", err))
			return c.Status(http.StatusServiceUnavailable).JSON(webhookAck{Received: false})
		}
		h.logger.ErrorContext(c.UserContext(), "webhook processing failed",
			slog.String("event_id", event.ID), slog.String("code", apperr.Code(err)), slog.Any("error", err))
		return c.Status(http.StatusOK).JSON(webhookAck{Received: true})
	}

	h.logger.InfoContext(c.UserContext(), "webhook processed",
		slog.String("event_id", event.ID),
		slog.String("intent_id", res.IntentID),
		slog.String("outcome", string(res.Outcome)))
	return c.Status(http.StatusOK).JSON(webhookAck{Received: true})
}

// redeliverable reports whether the gateway should send the event again. A refund
// the wallet cannot cover yet stays redeliverable until funds arrive.
func redeliverable(err error) bool {
	if errors.Is(err, ledger.ErrInsufficientBalance) {
		return true
	}
	kind := apperr.KindOf(err)
	return kind == apperr.KindExternal || kind == apperr.KindInternal
}
