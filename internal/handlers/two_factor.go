package handlers

import (
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/moneymapper/authcore/internal/auth"
	"github.com/moneymapper/authcore/internal/middleware"
	"github.com/moneymapper/authcore/pkg/utils"
)

type TwoFactorHandler struct {
	svc *auth.Service
}

func NewTwoFactorHandler(svc *auth.Service) *TwoFactorHandler {
	return &TwoFactorHandler{svc: svc}
}

func (h *TwoFactorHandler) Status(c *fiber.Ctx) error {
	user := middleware.GetCurrentUser(c)
	if user == nil {
		return utils.Error(c, fiber.StatusUnauthorized, "unauthorized")
	}
	status, err := h.svc.TwoFactorStatus(c.UserContext(), user)
	if err != nil {
		return respondError(c, err)
	}
	return utils.Success(c, fiber.StatusOK, status)
}

func (h *TwoFactorHandler) Setup(c *fiber.Ctx) error {
	user := middleware.GetCurrentUser(c)
	if user == nil {
		return utils.Error(c, fiber.StatusUnauthorized, "unauthorized")
	}
	setup, err := h.svc.Setup2FA(c.UserContext(), user)
	if err != nil {
		return respondError(c, err)
	}
	return utils.Success(c, fiber.StatusOK, setup)
}

type codeRequest struct {
	Code string `json:"code"`
}

func (h *TwoFactorHandler) Enable(c *fiber.Ctx) error {
	user := middleware.GetCurrentUser(c)
	if user == nil {
		return utils.Error(c, fiber.StatusUnauthorized, "unauthorized")
	}
	var req codeRequest
	if err := c.BodyParser(&req); err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "invalid request body")
	}
	if strings.TrimSpace(req.Code) == "" {
		return utils.Error(c, fiber.StatusBadRequest, "code is required")
	}

	codes, err := h.svc.Enable2FA(c.UserContext(), user, strings.TrimSpace(req.Code), clientOf(c))
	if err != nil {
		return respondError(c, err)
	}
	return utils.Success(c, fiber.StatusOK, fiber.Map{
		"enabled":     true,
		"backupCodes": codes,
	})
}

func (h *TwoFactorHandler) Disable(c *fiber.Ctx) error {
	user := middleware.GetCurrentUser(c)
	if user == nil {
		return utils.Error(c, fiber.StatusUnauthorized, "unauthorized")
	}
	if err := h.svc.Disable2FA(c.UserContext(), user, clientOf(c)); err != nil {
		return respondError(c, err)
	}
	return utils.Success(c, fiber.StatusOK, fiber.Map{"enabled": false})
}

func (h *TwoFactorHandler) RegenerateBackupCodes(c *fiber.Ctx) error {
	user := middleware.GetCurrentUser(c)
	if user == nil {
		return utils.Error(c, fiber.StatusUnauthorized, "unauthorized")
	}
	codes, err := h.svc.RegenerateBackupCodes(c.UserContext(), user, clientOf(c))
	if err != nil {
		return respondError(c, err)
	}
	return utils.Success(c, fiber.StatusOK, fiber.Map{"backupCodes": codes})
}
