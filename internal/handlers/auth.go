package handlers

import (
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/moneymapper/authcore/internal/auth"
	"github.com/moneymapper/authcore/internal/middleware"
	"github.com/moneymapper/authcore/pkg/utils"
)

// Generic acknowledgments for flows that must not reveal whether an
// account exists.
const (
	resetAck  = "if the account exists, a password reset link has been sent"
	resendAck = "if the account exists and is unverified, a verification link has been sent"
)

type AuthHandler struct {
	svc *auth.Service
}

func NewAuthHandler(svc *auth.Service) *AuthHandler {
	return &AuthHandler{svc: svc}
}

func (h *AuthHandler) Register(c *fiber.Ctx) error {
	var req auth.RegisterRequest
	if err := c.BodyParser(&req); err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "invalid request body")
	}

	user, err := h.svc.RegisterUser(c.UserContext(), req, clientOf(c))
	if err != nil {
		return respondError(c, err)
	}
	return utils.Success(c, fiber.StatusCreated, fiber.Map{
		"user":    user,
		"message": "registration successful, check your email to verify the account",
	})
}

type tokenRequest struct {
	Token string `json:"token"`
}

func (h *AuthHandler) VerifyEmail(c *fiber.Ctx) error {
	token := c.Query("token")
	if token == "" {
		var req tokenRequest
		if err := c.BodyParser(&req); err == nil {
			token = req.Token
		}
	}
	if strings.TrimSpace(token) == "" {
		return utils.Error(c, fiber.StatusBadRequest, "token is required")
	}

	if err := h.svc.VerifyEmail(c.UserContext(), token); err != nil {
		return respondError(c, err)
	}
	return utils.Success(c, fiber.StatusOK, fiber.Map{"message": "email verified"})
}

type identifierRequest struct {
	Identifier string `json:"identifier"`
}

func (h *AuthHandler) ResendVerification(c *fiber.Ctx) error {
	var req identifierRequest
	if err := c.BodyParser(&req); err != nil || strings.TrimSpace(req.Identifier) == "" {
		return utils.Error(c, fiber.StatusBadRequest, "identifier is required")
	}
	if err := h.svc.ResendVerification(c.UserContext(), req.Identifier, clientOf(c)); err != nil {
		return respondError(c, err)
	}
	return utils.Success(c, fiber.StatusOK, fiber.Map{"message": resendAck})
}

func (h *AuthHandler) Login(c *fiber.Ctx) error {
	var req auth.LoginRequest
	if err := c.BodyParser(&req); err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "invalid request body")
	}

	result, err := h.svc.Login(c.UserContext(), req, clientOf(c))
	if err != nil {
		return respondError(c, err)
	}
	return utils.Success(c, fiber.StatusOK, result)
}

func (h *AuthHandler) Logout(c *fiber.Ctx) error {
	user := middleware.GetCurrentUser(c)
	if user == nil {
		return utils.Error(c, fiber.StatusUnauthorized, "unauthorized")
	}
	if err := h.svc.Logout(c.UserContext(), middleware.GetBearerToken(c), user.Username, clientOf(c)); err != nil {
		return respondError(c, err)
	}
	return utils.Success(c, fiber.StatusOK, fiber.Map{"message": "logged out"})
}

func (h *AuthHandler) RequestPasswordReset(c *fiber.Ctx) error {
	var req identifierRequest
	if err := c.BodyParser(&req); err != nil || strings.TrimSpace(req.Identifier) == "" {
		return utils.Error(c, fiber.StatusBadRequest, "identifier is required")
	}
	if err := h.svc.RequestPasswordReset(c.UserContext(), req.Identifier, clientOf(c)); err != nil {
		return respondError(c, err)
	}
	return utils.Success(c, fiber.StatusOK, fiber.Map{"message": resetAck})
}

type resetPasswordRequest struct {
	Token       string `json:"token"`
	NewPassword string `json:"newPassword"`
}

func (h *AuthHandler) ResetPassword(c *fiber.Ctx) error {
	var req resetPasswordRequest
	if err := c.BodyParser(&req); err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "invalid request body")
	}
	if err := h.svc.ResetPassword(c.UserContext(), req.Token, req.NewPassword, clientOf(c)); err != nil {
		return respondError(c, err)
	}
	return utils.Success(c, fiber.StatusOK, fiber.Map{"message": "password has been reset, sign in again"})
}

func (h *AuthHandler) Me(c *fiber.Ctx) error {
	user := middleware.GetCurrentUser(c)
	if user == nil {
		return utils.Error(c, fiber.StatusUnauthorized, "unauthorized")
	}
	return utils.Success(c, fiber.StatusOK, user)
}

func (h *AuthHandler) SecurityHistory(c *fiber.Ctx) error {
	user := middleware.GetCurrentUser(c)
	if user == nil {
		return utils.Error(c, fiber.StatusUnauthorized, "unauthorized")
	}
	events, err := h.svc.SecurityHistory(c.UserContext(), user, c.QueryInt("limit", 50))
	if err != nil {
		return respondError(c, err)
	}
	return utils.Success(c, fiber.StatusOK, events)
}
