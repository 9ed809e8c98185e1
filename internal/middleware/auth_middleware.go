package middleware

import (
	"context"
	"strings"

	"github.com/gofiber/fiber/v2"

	"go-inventory-ledger/internal/apperror"
	"go-inventory-ledger/internal/auth"
	"go-inventory-ledger/internal/model"
)

const principalKey = "principal"

// Authenticator turns a bearer token into the user behind it
type Authenticator interface {
	Authenticate(ctx context.Context, token string) (*model.User, error)
}

// RequireAuth validates the bearer token and stores the principal in Locals.
// Failures are returned as errors so the app error handler shapes the body.
func RequireAuth(a Authenticator) fiber.Handler {
	return func(c *fiber.Ctx) error {
		token, err := bearerToken(c)
		if err != nil {
			return err
		}

		user, err := a.Authenticate(c.UserContext(), token)
		if err != nil {
			return err
		}

		c.Locals(principalKey, user.Principal())
		return c.Next()
	}
}

func bearerToken(c *fiber.Ctx) (string, error) {
	header := c.Get(fiber.HeaderAuthorization)
	if header == "" {
		// browsers cannot set headers on websocket upgrades
		if token := c.Query("token"); token != "" {
			return token, nil
		}
		return "", apperror.Unauthorized(apperror.CodeInvalidCredentials, "missing authorization token")
	}

	parts := strings.Fields(header)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") {
		return "", apperror.Unauthorized(apperror.CodeInvalidCredentials, "invalid authorization format, use: Bearer <token>")
	}
	return parts[1], nil
}

// RequirePermission rejects principals whose role does not grant action
func RequirePermission(action auth.Action) fiber.Handler {
	return func(c *fiber.Ctx) error {
		p := Principal(c)
		if !p.Authenticated() {
			return apperror.Unauthorized(apperror.CodeInvalidCredentials, "authentication required")
		}
		if !auth.Allowed(p.Role, action) {
			return apperror.Forbidden("forbidden: requires '" + string(action) + "' permission")
		}
		return c.Next()
	}
}

// Principal returns the authenticated principal, or the zero value
func Principal(c *fiber.Ctx) auth.Principal {
	p, _ := c.Locals(principalKey).(auth.Principal)
	return p
}
