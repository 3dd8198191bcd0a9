package handlers

import (
	"github.com/gofiber/fiber/v2"
	"github.com/moneymapper/authcore/internal/auth"
	apperrors "github.com/moneymapper/authcore/pkg/errors"
	"github.com/moneymapper/authcore/pkg/logger"
	"github.com/moneymapper/authcore/pkg/utils"
)

var statusByCode = map[apperrors.Code]int{
	apperrors.CodeInvalidArgument:    fiber.StatusBadRequest,
	apperrors.CodeNotFound:           fiber.StatusNotFound,
	apperrors.CodeAlreadyExists:      fiber.StatusConflict,
	apperrors.CodeFailedPrecondition: fiber.StatusConflict,
	apperrors.CodeInvalidCredentials: fiber.StatusUnauthorized,
	apperrors.CodeAccountDisabled:    fiber.StatusForbidden,
	apperrors.CodeTwoFactorRequired:  fiber.StatusUnauthorized,
	apperrors.CodeTokenInvalid:       fiber.StatusBadRequest,
	apperrors.CodeTokenExpired:       fiber.StatusGone,
	apperrors.CodeTokenAlreadyUsed:   fiber.StatusGone,
	apperrors.CodeTokenRevoked:       fiber.StatusUnauthorized,
	apperrors.CodeSuspiciousActivity: fiber.StatusForbidden,
}

// respondError is the single place service errors become HTTP responses.
// Infrastructure detail never reaches the client.
func respondError(c *fiber.Ctx, err error) error {
	appErr, ok := apperrors.As(err)
	if !ok {
		logger.Error("unhandled_error", err, map[string]interface{}{"path": c.Path()})
		return utils.Error(c, fiber.StatusInternalServerError, "internal server error")
	}

	if appErr.Code == apperrors.CodeRateLimited {
		return utils.RateLimited(c, appErr.RetryAfter, appErr.Message)
	}
	if appErr.Code == apperrors.CodeTwoFactorRequired {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
			"success":           false,
			"error":             appErr.Message,
			"twoFactorRequired": true,
		})
	}

	status, known := statusByCode[appErr.Code]
	if !known {
		logger.Error("request_failed", err, map[string]interface{}{
			"path": c.Path(),
			"code": appErr.Code,
		})
		return utils.Error(c, fiber.StatusInternalServerError, "internal server error")
	}
	return utils.Error(c, status, appErr.Message)
}

func clientOf(c *fiber.Ctx) auth.Client {
	return auth.Client{IP: c.IP(), UserAgent: c.Get("User-Agent")}
}
