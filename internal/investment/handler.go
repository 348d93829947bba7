package investment

import (
	"net/http"

	"github.com/gofiber/fiber/v2"
	"github.com/shopspring/decimal"

	"github.com/congo-pay/walletcore/internal/middleware"
)

// Handler exposes investment endpoints.
type Handler struct {
	service *Service
}

// NewHandler constructs an investment handler.
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

type purchaseRequest struct {
	ProductID string          `json:"product_id"`
	Amount    decimal.Decimal `json:"amount"`
	Insured   bool            `json:"insured"`
}

type withdrawRequest struct {
	OTPCode string `json:"otp_code"`
}

// Products lists the catalog.
func (h *Handler) Products(c *fiber.Ctx) error {
	products, err := h.service.Products(c.UserContext())
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"products": products})
}

// Quote previews a purchase without moving money.
func (h *Handler) Quote(c *fiber.Ctx) error {
	var req purchaseRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
	q, err := h.service.Quote(c.UserContext(), req.ProductID, req.Amount, req.Insured)
	if err != nil {
		return err
	}
	return c.JSON(q)
}

// Purchase opens an investment.
func (h *Handler) Purchase(c *fiber.Ctx) error {
	var req purchaseRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
	receipt, err := h.service.Purchase(c.UserContext(), PurchaseInput{
		UserID:    middleware.UserID(c),
		ProductID: req.ProductID,
		Amount:    req.Amount,
		Insured:   req.Insured,
	})
	if err != nil {
		return err
	}
	return c.Status(http.StatusCreated).JSON(receipt)
}

// List returns the caller's investments.
func (h *Handler) List(c *fiber.Ctx) error {
	views, err := h.service.List(c.UserContext(), middleware.UserID(c))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"investments": views})
}

// WithdrawalQuote previews an early withdrawal.
func (h *Handler) WithdrawalQuote(c *fiber.Ctx) error {
	q, err := h.service.WithdrawalQuote(c.UserContext(), middleware.UserID(c), c.Params("id"))
	if err != nil {
		return err
	}
	return c.JSON(q)
}

// Withdraw closes an investment early.
func (h *Handler) Withdraw(c *fiber.Ctx) error {
	var req withdrawRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
	receipt, err := h.service.EarlyWithdraw(c.UserContext(), middleware.UserID(c), c.Params("id"), req.OTPCode)
	if err != nil {
		return err
	}
	return c.JSON(receipt)
}

// Mature pays out a matured investment. Admin only.
func (h *Handler) Mature(c *fiber.Ctx) error {
	receipt, err := h.service.Mature(c.UserContext(), c.Params("id"))
	if err != nil {
		return err
	}
	return c.JSON(receipt)
}
