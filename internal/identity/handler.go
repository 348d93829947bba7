package identity

import (
	"context"
	"net/http"
	"time"

	"github.com/gofiber/fiber/v2"
)

// WalletOpener provisions the wallet of a newly registered user.
type WalletOpener interface {
	OpenFor(ctx context.Context, userID string) error
}

// Handler exposes identity endpoints.
type Handler struct {
	service *Service
	wallets WalletOpener
}

// NewHandler constructs an identity HTTP handler.
func NewHandler(service *Service, wallets WalletOpener) *Handler {
	return &Handler{service: service, wallets: wallets}
}

type registerRequest struct {
	Phone    string `json:"phone"`
	PIN      string `json:"pin"`
	DeviceID string `json:"device_id"`
}

type kycRequest struct {
	Status string `json:"status"`
}

type profileResponse struct {
	UserID      string     `json:"user_id"`
	Phone       string     `json:"phone"`
	Role        string     `json:"role"`
	KYCStatus   string     `json:"kyc_status"`
	DeviceID    string     `json:"device_id,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	LastLoginAt *time.Time `json:"last_login_at,omitempty"`
}

func profileOf(u User) profileResponse {
	return profileResponse{
		UserID:      u.ID,
		Phone:       u.Phone,
		Role:        u.Role,
		KYCStatus:   u.KYCStatus,
		DeviceID:    u.DeviceID,
		CreatedAt:   u.CreatedAt,
		LastLoginAt: u.LastLoginAt,
	}
}

// Register onboards a customer and opens their wallet.
func (h *Handler) Register(c *fiber.Ctx) error {
	return h.register(c, h.service.Register)
}

// RegisterAgent onboards a cash-in agent. Admin only.
func (h *Handler) RegisterAgent(c *fiber.Ctx) error {
	return h.register(c, h.service.RegisterAgent)
}

func (h *Handler) register(c *fiber.Ctx, create func(context.Context, Credentials) (User, error)) error {
	var req registerRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
	user, err := create(c.UserContext(), Credentials{Phone: req.Phone, PIN: req.PIN, DeviceID: req.DeviceID})
	if err != nil {
		return err
	}
	if err := h.wallets.OpenFor(c.UserContext(), user.ID); err != nil {
		return err
	}
	return c.Status(http.StatusCreated).JSON(profileOf(user))
}

// Me returns the authenticated user's profile.
func (h *Handler) Me(c *fiber.Ctx) error {
	uid, _ := c.Locals("user_id").(string)
	user, err := h.service.Profile(c.UserContext(), uid)
	if err != nil {
		return err
	}
	return c.JSON(profileOf(user))
}

// SetKYCStatus records a verification decision for :userId. Admin only.
func (h *Handler) SetKYCStatus(c *fiber.Ctx) error {
	var req kycRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
	if err := h.service.SetKYCStatus(c.UserContext(), c.Params("userId"), req.Status); err != nil {
		return err
	}
	user, err := h.service.Profile(c.UserContext(), c.Params("userId"))
	if err != nil {
		return err
	}
	return c.JSON(profileOf(user))
}
