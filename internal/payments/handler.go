package payments

import (
	"net/http"

	"github.com/gofiber/fiber/v2"
	"github.com/shopspring/decimal"

	"github.com/congo-pay/walletcore/internal/fees"
	"github.com/congo-pay/walletcore/internal/middleware"
)

// Handler exposes payment endpoints.
type Handler struct {
	service *Service
}

// NewHandler constructs a payment handler.
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

type agentDepositRequest struct {
	RecipientID    string          `json:"recipient_id"`
	RecipientPhone string          `json:"recipient_phone"`
	Amount         decimal.Decimal `json:"amount"`
}

type withdrawRequest struct {
	Amount      decimal.Decimal `json:"amount"`
	Method      string          `json:"method"`
	Destination string          `json:"destination"`
	OTPCode     string          `json:"otp_code"`
}

type settleRequest struct {
	Succeeded bool   `json:"succeeded"`
	Reference string `json:"reference"`
}

type transferRequest struct {
	RecipientID    string          `json:"recipient_id"`
	RecipientPhone string          `json:"recipient_phone"`
	Amount         decimal.Decimal `json:"amount"`
	Note           string          `json:"note"`
	OTPCode        string          `json:"otp_code"`
}

// AgentDeposit credits a customer from the calling agent's float.
func (h *Handler) AgentDeposit(c *fiber.Ctx) error {
	var req agentDepositRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
	res, err := h.service.DepositViaAgent(c.UserContext(), AgentDepositInput{
		AgentID:        middleware.UserID(c),
		AgentRole:      middleware.Role(c),
		RecipientID:    req.RecipientID,
		RecipientPhone: req.RecipientPhone,
		Amount:         req.Amount,
	})
	if err != nil {
		return err
	}
	return c.Status(http.StatusCreated).JSON(res)
}

// Withdraw requests a payout.
func (h *Handler) Withdraw(c *fiber.Ctx) error {
	var req withdrawRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
	res, err := h.service.Withdraw(c.UserContext(), WithdrawInput{
		UserID:      middleware.UserID(c),
		Amount:      req.Amount,
		Method:      req.Method,
		Destination: req.Destination,
		OTPCode:     req.OTPCode,
	})
	if err != nil {
		return err
	}
	return c.Status(http.StatusCreated).JSON(res)
}

// SettleWithdrawal records the payout rail's confirmation. Admin only.
func (h *Handler) SettleWithdrawal(c *fiber.Ctx) error {
	var req settleRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
	res, err := h.service.SettleWithdrawal(c.UserContext(), c.Params("transactionId"), req.Succeeded, req.Reference)
	if err != nil {
		return err
	}
	return c.Status(http.StatusOK).JSON(res)
}

// Transfer sends money to another user.
func (h *Handler) Transfer(c *fiber.Ctx) error {
	var req transferRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
	res, err := h.service.Transfer(c.UserContext(), TransferInput{
		SenderID:       middleware.UserID(c),
		RecipientID:    req.RecipientID,
		RecipientPhone: req.RecipientPhone,
		Amount:         req.Amount,
		Note:           req.Note,
		OTPCode:        req.OTPCode,
	})
	if err != nil {
		return err
	}
	return c.Status(http.StatusCreated).JSON(res)
}

// QuoteFee previews the fee for ?operation=&amount=.
func (h *Handler) QuoteFee(c *fiber.Ctx) error {
	op, err := fees.ParseOperation(c.Query("operation"))
	if err != nil {
		return err
	}
	amount, err := decimal.NewFromString(c.Query("amount"))
	if err != nil {
		return fiber.NewError(http.StatusBadRequest, "invalid amount")
	}
	quote, err := h.service.QuoteFee(c.UserContext(), middleware.UserID(c), op, amount)
	if err != nil {
		return err
	}
	return c.JSON(quote)
}
