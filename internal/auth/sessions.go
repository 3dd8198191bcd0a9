package auth

import (
	"context"
	"fmt"
	"time"

	"github.com/moneymapper/authcore/internal/models"
	apperrors "github.com/moneymapper/authcore/pkg/errors"
	"github.com/moneymapper/authcore/pkg/logger"
)

// RevokeUserSessions signs username out of every session, for an
// administrator or after a compromise.
func (s *Service) RevokeUserSessions(ctx context.Context, username string, reason models.RevocationReason, actor string, client Client) error {
	switch reason {
	case models.ReasonAdminRevoked, models.ReasonAccountCompromised, models.ReasonSuspiciousActivity:
	default:
		return apperrors.InvalidArg("reason must be ADMIN_REVOKED, ACCOUNT_COMPROMISED or SUSPICIOUS_ACTIVITY")
	}

	user, err := s.users.FindByUsername(ctx, username)
	if err != nil {
		return err
	}
	if err := s.revocations.RevokeAllForUser(ctx, user.Username, reason); err != nil {
		return err
	}

	action := models.ActionLogout
	if reason != models.ReasonAdminRevoked {
		action = models.ActionSuspiciousActivity
	}
	s.record(user.Username, action, models.StatusWarning, client, fmt.Sprintf("All sessions revoked by %s: %s", actor, reason))
	logger.WarnWithUser(user.ID.String(), "user_sessions_revoked", map[string]interface{}{
		"actor":  actor,
		"reason": reason,
	})
	return nil
}

func (s *Service) SecurityHistory(ctx context.Context, user *models.User, limit int) ([]models.SecurityAuditEvent, error) {
	return s.audit.RecentHistory(ctx, user.Username, limit)
}

// CleanupExpiredTokens deletes verification and reset tokens past expiry.
func (s *Service) CleanupExpiredTokens(ctx context.Context, now time.Time) (int64, error) {
	removed, err := s.tokens.DeleteExpired(ctx, now)
	if err != nil {
		return 0, err
	}
	logger.Info("expired_tokens_cleaned", map[string]interface{}{
		"removed": removed,
	})
	return removed, nil
}
