package otp

import (
	"context"
	"net/http"

	"github.com/gofiber/fiber/v2"

	"github.com/congo-pay/walletcore/internal/middleware"
)

// Handler exposes code issue and resend endpoints.
type Handler struct {
	gate *Gate
	// exposeCode echoes the code in responses; only for non-production deployments.
	exposeCode bool
}

// NewHandler constructs an OTP HTTP handler.
func NewHandler(gate *Gate, exposeCode bool) *Handler {
	return &Handler{gate: gate, exposeCode: exposeCode}
}

type issueRequest struct {
	Purpose string `json:"purpose"`
}

type issueResponse struct {
	ExpiresIn int    `json:"expires_in"`
	Code      string `json:"code,omitempty"`
}

// Issue sends a new code for the requested purpose.
func (h *Handler) Issue(c *fiber.Ctx) error {
	return h.handle(c, h.gate.Issue)
}

// Resend sends a new code, subject to the resend cooldown.
func (h *Handler) Resend(c *fiber.Ctx) error {
	return h.handle(c, h.gate.Resend)
}

func (h *Handler) handle(c *fiber.Ctx, issue func(ctx context.Context, subject string, purpose Purpose) (Issued, error)) error {
	var req issueRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
	purpose, err := ParsePurpose(req.Purpose)
	if err != nil {
		return err
	}
	issued, err := issue(c.UserContext(), middleware.UserID(c), purpose)
	if err != nil {
		return err
	}
	resp := issueResponse{ExpiresIn: issued.ExpiresInSeconds}
	if h.exposeCode {
		resp.Code = issued.Code
	}
	return c.Status(http.StatusCreated).JSON(resp)
}
