package auth

import (
	"context"
	"errors"
	"strings"

	"github.com/moneymapper/authcore/internal/models"
	"github.com/moneymapper/authcore/internal/ratelimit"
	apperrors "github.com/moneymapper/authcore/pkg/errors"
	"github.com/moneymapper/authcore/pkg/logger"
)

// RequestPasswordReset mails a reset link to the account matching
// identifier. The outcome is the same whether or not the account exists.
func (s *Service) RequestPasswordReset(ctx context.Context, identifier string, client Client) error {
	identifier = strings.TrimSpace(identifier)
	if identifier == "" {
		return apperrors.InvalidArg("username or email is required")
	}
	if err := s.admit(ctx, ratelimit.ActionPasswordReset, identifier); err != nil {
		return err
	}

	user, err := s.users.FindByIdentifier(ctx, identifier)
	if err != nil && !errors.Is(err, apperrors.ErrUserNotFound) {
		return err
	}

	if user == nil || user.Email == nil {
		s.record(identifier, models.ActionPasswordResetRequest, models.StatusFailure, client, "User not found")
		return nil
	}

	var raw string
	err = s.tx.InTx(ctx, func(ctx context.Context) error {
		if err := s.tokens.DeleteForUser(ctx, user.ID, models.PurposePasswordReset); err != nil {
			return err
		}
		var err error
		raw, err = s.tokens.Issue(ctx, user.ID, models.PurposePasswordReset, s.now().Add(s.resetTTL))
		return err
	})
	if err != nil {
		return err
	}
	s.notifier.SendPasswordReset(user.EmailAddress(), raw, user.Username)

	s.record(user.Username, models.ActionPasswordResetRequest, models.StatusSuccess, client, "")
	logger.InfoWithUser(user.ID.String(), "password_reset_requested", map[string]interface{}{
		"ip": client.IP,
	})
	return nil
}

// ResetPassword redeems a reset token, stores the new password and signs
// the user out everywhere, all in one transaction.
func (s *Service) ResetPassword(ctx context.Context, token, newPassword string, client Client) error {
	if strings.TrimSpace(token) == "" {
		return apperrors.ErrTokenInvalid
	}
	if err := validatePassword(newPassword); err != nil {
		return err
	}

	rec, err := s.tokens.Find(ctx, token, models.PurposePasswordReset)
	if err != nil {
		if errors.Is(err, apperrors.ErrTokenInvalid) {
			s.record("unknown", models.ActionPasswordResetComplete, models.StatusFailure, client, "Invalid token")
		}
		return err
	}

	user, err := s.users.FindByID(ctx, rec.UserID)
	if err != nil {
		return err
	}

	hash, err := s.hasher.Hash(newPassword)
	if err != nil {
		return apperrors.Internal("failed to hash password", err)
	}

	// Spending the token, storing the password and cutting off old
	// sessions commit together or not at all.
	err = s.tx.InTx(ctx, func(ctx context.Context) error {
		if err := s.redeem(ctx, rec); err != nil {
			return err
		}
		user.PasswordHash = hash
		if err := s.users.Save(ctx, user); err != nil {
			return err
		}
		return s.revocations.RevokeAllForUser(ctx, user.Username, models.ReasonPasswordChanged)
	})
	if err != nil {
		switch {
		case errors.Is(err, apperrors.ErrTokenAlreadyUsed):
			s.record(user.Username, models.ActionPasswordResetComplete, models.StatusFailure, client, "Token already used")
		case errors.Is(err, apperrors.ErrTokenExpired):
			s.record(user.Username, models.ActionPasswordResetComplete, models.StatusFailure, client, "Expired token")
		default:
			logger.ErrorWithUser(user.ID.String(), "password_reset_failed", err, nil)
		}
		return err
	}

	if email := user.EmailAddress(); email != "" {
		s.notifier.SendPasswordChanged(email, user.Username)
	}
	s.record(user.Username, models.ActionPasswordResetComplete, models.StatusSuccess, client, "")
	logger.InfoWithUser(user.ID.String(), "password_reset_completed", map[string]interface{}{
		"ip": client.IP,
	})
	return nil
}
