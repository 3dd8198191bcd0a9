package handlers

import (
	"github.com/gofiber/fiber/v2"
	"github.com/moneymapper/authcore/internal/auth"
	"github.com/moneymapper/authcore/internal/middleware"
)

// RegisterRoutes mounts the account API under /api.
func RegisterRoutes(router fiber.Router, svc *auth.Service) {
	authMiddleware := middleware.NewAuthMiddleware(svc)
	authHandler := NewAuthHandler(svc)
	twoFactorHandler := NewTwoFactorHandler(svc)
	adminHandler := NewAdminHandler(svc)

	api := router.Group("/api")

	authRoutes := api.Group("/auth")
	authRoutes.Post("/register", authHandler.Register)
	authRoutes.Get("/verify-email", authHandler.VerifyEmail)
	authRoutes.Post("/verify-email", authHandler.VerifyEmail)
	authRoutes.Post("/resend-verification", authHandler.ResendVerification)
	authRoutes.Post("/login", authHandler.Login)
	authRoutes.Post("/password-reset/request", authHandler.RequestPasswordReset)
	authRoutes.Post("/password-reset/confirm", authHandler.ResetPassword)
	authRoutes.Post("/logout", authMiddleware.RequireAuth, authHandler.Logout)
	authRoutes.Get("/me", authMiddleware.RequireAuth, authHandler.Me)
	authRoutes.Get("/security-history", authMiddleware.RequireAuth, authHandler.SecurityHistory)

	twoFactorRoutes := authRoutes.Group("/2fa", authMiddleware.RequireAuth)
	twoFactorRoutes.Get("/status", twoFactorHandler.Status)
	twoFactorRoutes.Post("/setup", twoFactorHandler.Setup)
	twoFactorRoutes.Post("/enable", twoFactorHandler.Enable)
	twoFactorRoutes.Post("/disable", twoFactorHandler.Disable)
	twoFactorRoutes.Post("/backup-codes", twoFactorHandler.RegenerateBackupCodes)

	adminRoutes := api.Group("/admin", authMiddleware.RequireAuth, middleware.AdminOnly)
	adminRoutes.Post("/users/:username/revoke-sessions", adminHandler.RevokeSessions)
}
