package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/congo-pay/walletcore/internal/identity"
)

const (
	localUserID = "user_id"
	localRole   = "role"
)

// TokenVerifier resolves an access token to its current user.
type TokenVerifier interface {
	VerifyAccess(ctx context.Context, token string) (identity.User, error)
}

// JWTAuth returns a middleware that validates bearer access tokens. The verified
// subject and its role are stored in request locals.
func JWTAuth(tokens TokenVerifier) fiber.Handler {
	return func(c *fiber.Ctx) error {
		authz := c.Get(fiber.HeaderAuthorization)
		if !strings.HasPrefix(strings.ToLower(authz), "bearer ") {
			return fiber.NewError(http.StatusUnauthorized, "missing bearer token")
		}
		user, err := tokens.VerifyAccess(c.UserContext(), strings.TrimSpace(authz[len("Bearer "):]))
		if err != nil {
			return err
		}
		c.Locals(localUserID, user.ID)
		c.Locals(localRole, user.Role)
		return c.Next()
	}
}

// RequireRole rejects requests whose authenticated subject does not hold one of roles.
func RequireRole(roles ...string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		role := Role(c)
		for _, r := range roles {
			if r == role {
				return c.Next()
			}
		}
		return fiber.NewError(http.StatusForbidden, "insufficient role")
	}
}

// UserID returns the authenticated subject, or "" outside JWTAuth.
func UserID(c *fiber.Ctx) string {
	id, _ := c.Locals(localUserID).(string)
	return id
}

// Role returns the authenticated subject's role.
func Role(c *fiber.Ctx) string {
	role, _ := c.Locals(localRole).(string)
	return role
}

// WithSubject stores a subject in request locals. Used by tests to bypass token checks.
func WithSubject(userID, role string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		c.Locals(localUserID, userID)
		c.Locals(localRole, role)
		return c.Next()
	}
}
