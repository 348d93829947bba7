package identity

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gofiber/fiber/v2"
)

type openerFunc func(ctx context.Context, userID string) error

func (f openerFunc) OpenFor(ctx context.Context, userID string) error { return f(ctx, userID) }

func newHandlerApp(svc *Service, opener WalletOpener, subject string) *fiber.App {
	h := NewHandler(svc, opener)
	app := fiber.New()
	app.Post("/register", h.Register)
	authed := app.Group("", func(c *fiber.Ctx) error {
		c.Locals("user_id", subject)
		return c.Next()
	})
	authed.Get("/me", h.Me)
	authed.Post("/users/:userId/kyc", h.SetKYCStatus)
	return app
}

func TestRegisterOpensWallet(t *testing.T) {
	svc := NewService(NewMemoryRepository())
	var opened []string
	app := newHandlerApp(svc, openerFunc(func(_ context.Context, id string) error {
		opened = append(opened, id)
		return nil
	}), "")

	req := httptest.NewRequest(http.MethodPost, "/register", strings.NewReader(`{"phone":"+242061111111","pin":"1234"}`))
	req.Header.Set("Content-Type", "application/json")
	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	var body profileResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.Role != RoleCustomer || body.KYCStatus != KYCPending {
		t.Fatalf("unexpected profile %+v", body)
	}
	if len(opened) != 1 || opened[0] != body.UserID {
		t.Fatalf("opened wallets %v, want [%s]", opened, body.UserID)
	}
}

func TestRegisterFailsWhenWalletCannotOpen(t *testing.T) {
	svc := NewService(NewMemoryRepository())
	app := newHandlerApp(svc, openerFunc(func(context.Context, string) error {
		return errors.New("ledger down")
	}), "")

	req := httptest.NewRequest(http.MethodPost, "/register", strings.NewReader(`{"phone":"+242061111112","pin":"1234"}`))
	req.Header.Set("Content-Type", "application/json")
	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	if resp.StatusCode != http.StatusInternalServerError {
		t.Fatalf("status = %d, want 500", resp.StatusCode)
	}
}

func TestMeAndKYCDecision(t *testing.T) {
	svc := NewService(NewMemoryRepository())
	user, err := svc.Register(context.Background(), Credentials{Phone: "+242061111113", PIN: "1234"})
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	app := newHandlerApp(svc, openerFunc(func(context.Context, string) error { return nil }), user.ID)

	req := httptest.NewRequest(http.MethodPost, "/users/"+user.ID+"/kyc", strings.NewReader(`{"status":"approved"}`))
	req.Header.Set("Content-Type", "application/json")
	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("kyc: %v", err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("kyc status = %d", resp.StatusCode)
	}

	resp, err = app.Test(httptest.NewRequest(http.MethodGet, "/me", nil))
	if err != nil {
		t.Fatalf("me: %v", err)
	}
	var body profileResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.UserID != user.ID || body.KYCStatus != KYCApproved {
		t.Fatalf("unexpected profile %+v", body)
	}
}
