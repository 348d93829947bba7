package middleware

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/gofiber/fiber/v2"

	"github.com/congo-pay/walletcore/internal/apperr"
)

type errorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// ErrorHandler renders handler errors as JSON. Tagged domain errors keep their stable
// code; anything untagged is reported as a 500 without leaking its text.
func ErrorHandler(logger *slog.Logger) fiber.ErrorHandler {
	return func(c *fiber.Ctx, err error) error {
		var fe *fiber.Error
		if errors.As(err, &fe) {
			return c.Status(fe.Code).JSON(errorBody{Code: codeForStatus(fe.Code), Message: fe.Message})
		}

		var tagged *apperr.Error
		if errors.As(err, &tagged) {
			status := apperr.Status(err)
			if status >= http.StatusInternalServerError {
				logger.Error("request failed", slog.String("path", c.Path()), slog.String("code", tagged.Code), slog.Any("error", err))
			}
			return c.Status(status).JSON(errorBody{Code: tagged.Code, Message: tagged.Message})
		}

		logger.Error("unhandled error", slog.String("path", c.Path()), slog.Any("error", err))
		return c.Status(http.StatusInternalServerError).JSON(errorBody{Code: "INTERNAL", Message: "internal error"})
	}
}

func codeForStatus(status int) string {
	switch status {
	case http.StatusBadRequest:
		return "BAD_REQUEST"
	case http.StatusUnauthorized:
		return "UNAUTHORIZED"
	case http.StatusForbidden:
		return "FORBIDDEN"
	case http.StatusNotFound:
		return "NOT_FOUND"
	case http.StatusConflict:
		return "CONFLICT"
	case http.StatusTooManyRequests:
		return "RATE_LIMITED"
	default:
		return "ERROR"
	}
}
