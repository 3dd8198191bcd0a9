package handlers

import (
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/moneymapper/authcore/internal/auth"
	"github.com/moneymapper/authcore/internal/middleware"
	"github.com/moneymapper/authcore/internal/models"
	"github.com/moneymapper/authcore/pkg/utils"
)

type AdminHandler struct {
	svc *auth.Service
}

func NewAdminHandler(svc *auth.Service) *AdminHandler {
	return &AdminHandler{svc: svc}
}

type revokeSessionsRequest struct {
	Reason string `json:"reason"`
}

func (h *AdminHandler) RevokeSessions(c *fiber.Ctx) error {
	actor := middleware.GetCurrentUser(c)
	if actor == nil {
		return utils.Error(c, fiber.StatusUnauthorized, "unauthorized")
	}

	var req revokeSessionsRequest
	if err := c.BodyParser(&req); err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "invalid request body")
	}
	reason := models.RevocationReason(strings.ToUpper(strings.TrimSpace(req.Reason)))
	if reason == "" {
		reason = models.ReasonAdminRevoked
	}

	username := c.Params("username")
	if err := h.svc.RevokeUserSessions(c.UserContext(), username, reason, actor.Username, clientOf(c)); err != nil {
		return respondError(c, err)
	}
	return utils.Success(c, fiber.StatusOK, fiber.Map{
		"username": username,
		"reason":   reason,
	})
}
