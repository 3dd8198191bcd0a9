package middleware

import (
	"context"
	"errors"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/moneymapper/authcore/internal/models"
	apperrors "github.com/moneymapper/authcore/pkg/errors"
	"github.com/moneymapper/authcore/pkg/logger"
	"github.com/moneymapper/authcore/pkg/utils"
)

const (
	currentUserKey = "currentUser"
	bearerTokenKey = "bearerToken"
)

// Authenticator resolves a bearer token to the account it was issued to.
type Authenticator interface {
	Authenticate(ctx context.Context, token string) (*models.User, error)
}

type AuthMiddleware struct {
	auth Authenticator
}

func NewAuthMiddleware(auth Authenticator) *AuthMiddleware {
	return &AuthMiddleware{auth: auth}
}

func CORS(allowedOrigins string) fiber.Handler {
	return cors.New(cors.Config{
		AllowOrigins: allowedOrigins,
		AllowHeaders: "Origin, Content-Type, Accept, Authorization",
		AllowMethods: "GET,POST,PUT,PATCH,DELETE,OPTIONS",
	})
}

func bearerToken(c *fiber.Ctx) (string, bool) {
	header := c.Get("Authorization")
	token := strings.TrimSpace(strings.TrimPrefix(header, "Bearer"))
	if token == header || token == "" {
		return "", false
	}
	return token, true
}

func (a *AuthMiddleware) RequireAuth(c *fiber.Ctx) error {
	if c.Get("Authorization") == "" {
		logger.Warn("jwt_missing_header", map[string]interface{}{
			"ip":   c.IP(),
			"path": c.Path(),
		})
		return utils.Error(c, fiber.StatusUnauthorized, "missing authorization header")
	}

	token, ok := bearerToken(c)
	if !ok {
		logger.Warn("jwt_invalid_format", map[string]interface{}{
			"ip":   c.IP(),
			"path": c.Path(),
		})
		return utils.Error(c, fiber.StatusUnauthorized, "invalid authorization format")
	}

	user, err := a.auth.Authenticate(c.UserContext(), token)
	if err != nil {
		details := map[string]interface{}{
			"ip":    c.IP(),
			"path":  c.Path(),
			"error": err.Error(),
		}
		switch {
		case errors.Is(err, apperrors.ErrTokenRevoked):
			logger.Warn("jwt_revoked", details)
			return utils.Error(c, fiber.StatusUnauthorized, "token has been revoked")
		case errors.Is(err, apperrors.ErrAccountDisabled):
			logger.Warn("jwt_account_disabled", details)
			return utils.Error(c, fiber.StatusUnauthorized, "account is disabled")
		case apperrors.CodeOf(err) == apperrors.CodeInternal:
			logger.Error("jwt_authentication_failed", err, details)
			return utils.Error(c, fiber.StatusInternalServerError, "internal server error")
		default:
			logger.Warn("jwt_validation_failed", details)
			return utils.Error(c, fiber.StatusUnauthorized, "invalid or expired token")
		}
	}

	c.Locals(currentUserKey, user)
	c.Locals(bearerTokenKey, token)
	c.Locals("userID", user.ID.String())
	return c.Next()
}

func AdminOnly(c *fiber.Ctx) error {
	user := GetCurrentUser(c)
	if user == nil {
		return utils.Error(c, fiber.StatusUnauthorized, "unauthorized")
	}
	if !user.HasRole(models.RoleAdmin) {
		return utils.Error(c, fiber.StatusForbidden, "admin access required")
	}
	return c.Next()
}

func GetCurrentUser(c *fiber.Ctx) *models.User {
	user, _ := c.Locals(currentUserKey).(*models.User)
	return user
}

// GetBearerToken returns the raw token RequireAuth accepted.
func GetBearerToken(c *fiber.Ctx) string {
	token, _ := c.Locals(bearerTokenKey).(string)
	return token
}
