package middleware

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v2"

	"github.com/congo-pay/walletcore/internal/apperr"
	"github.com/congo-pay/walletcore/internal/logging"
)

func TestErrorHandlerMapsTaggedErrors(t *testing.T) {
	insufficient := apperr.New(apperr.KindPrecondition, "INSUFFICIENT_BALANCE", "insufficient balance")

	app := fiber.New(fiber.Config{ErrorHandler: ErrorHandler(logging.Discard())})
	app.Get("/tagged", func(c *fiber.Ctx) error {
		return fmt.Errorf("debit wallet u1: %w", insufficient)
	})
	app.Get("/fiber", func(c *fiber.Ctx) error {
		return fiber.NewError(fiber.StatusBadRequest, "bad json")
	})
	app.Get("/plain", func(c *fiber.Ctx) error {
		return errors.New("connection reset by peer")
	})

	tests := []struct {
		path   string
		status int
		code   string
	}{
		{"/tagged", fiber.StatusUnprocessableEntity, "INSUFFICIENT_BALANCE"},
		{"/fiber", fiber.StatusBadRequest, "BAD_REQUEST"},
		{"/plain", fiber.StatusInternalServerError, "INTERNAL"},
	}
	for _, tt := range tests {
		resp, err := app.Test(httptest.NewRequest(fiber.MethodGet, tt.path, nil))
		if err != nil {
			t.Fatalf("app.Test: %v", err)
		}
		var body errorBody
		if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
			t.Fatalf("decode: %v", err)
		}
		if resp.StatusCode != tt.status || body.Code != tt.code {
			t.Fatalf("%s: got %d %s", tt.path, resp.StatusCode, body.Code)
		}
	}
}

func TestRequireRole(t *testing.T) {
	app := fiber.New(fiber.Config{ErrorHandler: ErrorHandler(logging.Discard())})
	app.Get("/agent", WithSubject("u1", "customer"), RequireRole("agent"), func(c *fiber.Ctx) error {
		return c.SendStatus(fiber.StatusOK)
	})
	resp, err := app.Test(httptest.NewRequest(fiber.MethodGet, "/agent", nil))
	if err != nil {
		t.Fatalf("app.Test: %v", err)
	}
	if resp.StatusCode != fiber.StatusForbidden {
		t.Fatalf("expected 403, got %d", resp.StatusCode)
	}
}
