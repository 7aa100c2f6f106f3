package middleware

import (
	"errors"
	"strings"

	"github.com/rembon2016/cts-merchant-sub001/internal/api"
	"github.com/rembon2016/cts-merchant-sub001/internal/service"
	"github.com/rembon2016/cts-merchant-sub001/pkg/jwt"

	"github.com/gofiber/fiber/v2"
)

var ErrAuthFormat = errors.New("invalid authorization format, use: Bearer <token>")

// Locals keys set by RequireSession.
const (
	LocalSessionID = "session_id"
	LocalUserID    = "user_id"
	LocalBranchID  = "branch_id"
)

// RequireSession validates the BFF token and attaches the session's backend token to the
// request context for the stores.
func RequireSession(sessions service.SessionService) fiber.Handler {
	return func(c *fiber.Ctx) error {
		tokenString, err := bearerToken(c)
		if err != nil {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": err.Error()})
		}

		claims, sess, err := sessions.Validate(c.UserContext(), tokenString)
		if err != nil {
			switch {
			case errors.Is(err, service.ErrSessionExpired):
				return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Session expired, please sign in again"})
			case errors.Is(err, service.ErrBranchMismatch):
				return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Active branch changed, please refresh your token"})
			case errors.Is(err, jwt.ErrInvalidToken):
				return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Invalid or expired token"})
			}
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Failed to load session"})
		}

		c.Locals(LocalSessionID, claims.SessionID.String())
		c.Locals(LocalUserID, claims.UserID)
		c.Locals(LocalBranchID, claims.BranchID)
		c.SetUserContext(api.WithToken(c.UserContext(), sess.AuthToken))

		return c.Next()
	}
}

// bearerToken reads "Bearer <token>" from the Authorization header. Websocket clients
// cannot set headers, so the token query parameter is accepted as well.
func bearerToken(c *fiber.Ctx) (string, error) {
	authHeader := c.Get(fiber.HeaderAuthorization)
	if authHeader == "" {
		if q := c.Query("token"); q != "" {
			return q, nil
		}
		return "", jwt.ErrMissingToken
	}

	parts := strings.Split(authHeader, " ")
	if len(parts) != 2 || strings.ToLower(parts[0]) != "bearer" {
		return "", ErrAuthFormat
	}
	return parts[1], nil
}

func SessionID(c *fiber.Ctx) string {
	id, _ := c.Locals(LocalSessionID).(string)
	return id
}

func BranchID(c *fiber.Ctx) int64 {
	id, _ := c.Locals(LocalBranchID).(int64)
	return id
}

func UserID(c *fiber.Ctx) int64 {
	id, _ := c.Locals(LocalUserID).(int64)
	return id
}
