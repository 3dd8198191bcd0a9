package auth

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/moneymapper/authcore/internal/metrics"
	"github.com/moneymapper/authcore/internal/models"
	"github.com/moneymapper/authcore/internal/ratelimit"
	apperrors "github.com/moneymapper/authcore/pkg/errors"
	"github.com/moneymapper/authcore/pkg/logger"
)

type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
	TOTPCode string `json:"totpCode,omitempty"`
}

type LoginResult struct {
	Token     string       `json:"token"`
	ExpiresAt time.Time    `json:"expiresAt"`
	User      *models.User `json:"user"`
	// Suspicious is set when the sign-in succeeded but matched an anomaly
	// pattern and the owner was alerted.
	Suspicious bool `json:"-"`
}

// Login runs the sign-in gates in a fixed order: rate limit, password,
// account enabled, second factor, anomaly check, token issue. A rejection
// at any gate is audited with its own reason.
func (s *Service) Login(ctx context.Context, req LoginRequest, client Client) (*LoginResult, error) {
	username := strings.TrimSpace(req.Username)
	if username == "" || req.Password == "" {
		return nil, apperrors.ErrInvalidCredentials
	}

	if err := s.admit(ctx, ratelimit.ActionLogin, username); err != nil {
		if errors.Is(err, apperrors.ErrRateLimited) {
			s.record(username, models.ActionLoginFailure, models.StatusBlocked, client, "Rate limited")
			metrics.LoginAttempts.WithLabelValues("rate_limited").Inc()
		}
		return nil, err
	}

	user, err := s.users.FindByUsername(ctx, username)
	if err != nil && !errors.Is(err, apperrors.ErrUserNotFound) {
		return nil, err
	}
	if user == nil {
		s.matchDecoy(req.Password)
		return nil, s.rejectCredentials(username, client)
	}
	if !s.hasher.Matches(req.Password, user.PasswordHash) {
		return nil, s.rejectCredentials(username, client)
	}

	if !user.Enabled {
		s.record(user.Username, models.ActionLoginFailure, models.StatusFailure, client, "Account disabled")
		metrics.LoginAttempts.WithLabelValues("disabled").Inc()
		return nil, apperrors.ErrAccountDisabled
	}

	if err := s.checkSecondFactor(ctx, user, req.TOTPCode, client); err != nil {
		return nil, err
	}

	suspicious, err := s.audit.IsSuspicious(ctx, user.Username, client.IP)
	if err != nil {
		logger.Error("anomaly_check_failed", err, map[string]interface{}{
			"user": logger.MaskIdentifier(user.Username),
		})
		suspicious = false
	}
	if suspicious {
		metrics.SuspiciousLogins.Inc()
		s.record(user.Username, models.ActionSuspiciousActivity, models.StatusWarning, client, "Suspicious login pattern")
		if email := user.EmailAddress(); email != "" {
			s.notifier.SendSuspiciousActivity(email, user.Username, client.IP, client.UserAgent)
		}
		if s.blockSuspicious {
			s.record(user.Username, models.ActionLoginFailure, models.StatusBlocked, client, "Suspicious login pattern")
			metrics.LoginAttempts.WithLabelValues("blocked").Inc()
			return nil, apperrors.ErrLoginBlocked
		}
	}

	if err := s.limiter.Clear(ctx, ratelimit.ActionLogin, username); err != nil {
		logger.Error("rate_limit_clear_failed", err, nil)
	}

	token, err := s.issuer.Issue(user)
	if err != nil {
		return nil, apperrors.Internal("failed to issue token", err)
	}
	expiresAt, err := s.issuer.ExtractExpiry(token)
	if err != nil {
		return nil, apperrors.Internal("failed to read token expiry", err)
	}

	s.record(user.Username, models.ActionLoginSuccess, models.StatusSuccess, client, "")
	metrics.LoginAttempts.WithLabelValues("success").Inc()
	logger.InfoWithUser(user.ID.String(), "login_success", map[string]interface{}{
		"ip":         client.IP,
		"suspicious": suspicious,
	})

	return &LoginResult{Token: token, ExpiresAt: expiresAt, User: user, Suspicious: suspicious}, nil
}

func (s *Service) rejectCredentials(username string, client Client) error {
	s.record(username, models.ActionLoginFailure, models.StatusFailure, client, "Invalid credentials")
	metrics.LoginAttempts.WithLabelValues("invalid_credentials").Inc()
	return apperrors.ErrInvalidCredentials
}

// checkSecondFactor only runs once the password has matched, so an
// unauthenticated caller cannot learn which accounts use 2FA.
func (s *Service) checkSecondFactor(ctx context.Context, user *models.User, code string, client Client) error {
	enabled, err := s.totp.IsEnabled(ctx, user)
	if err != nil {
		return err
	}
	if !enabled {
		return nil
	}

	code = strings.TrimSpace(code)
	if code == "" {
		s.record(user.Username, models.ActionTwoFactorFailure, models.StatusWarning, client, "2FA code required")
		metrics.LoginAttempts.WithLabelValues("two_factor_required").Inc()
		return apperrors.ErrTwoFactorRequired
	}

	ok, err := s.totp.VerifyCode(ctx, user, code)
	if err != nil {
		return err
	}
	if !ok {
		s.record(user.Username, models.ActionTwoFactorFailure, models.StatusFailure, client, "Invalid 2FA code")
		metrics.LoginAttempts.WithLabelValues("invalid_second_factor").Inc()
		return apperrors.ErrInvalidCredentials
	}

	s.record(user.Username, models.ActionTwoFactorSuccess, models.StatusSuccess, client, "")
	return nil
}

// Logout revokes the presented bearer token.
func (s *Service) Logout(ctx context.Context, token, username string, client Client) error {
	if token == "" {
		return apperrors.ErrTokenInvalid
	}
	if username == "" {
		name, err := s.issuer.ExtractUsername(token)
		if err != nil {
			return apperrors.ErrTokenInvalid
		}
		username = name
	}
	if err := s.revocations.Revoke(ctx, token, username, models.ReasonLogout); err != nil {
		return err
	}
	s.record(username, models.ActionLogout, models.StatusSuccess, client, "")
	logger.Info("user_logged_out", map[string]interface{}{
		"user": logger.MaskIdentifier(username),
		"ip":   client.IP,
	})
	return nil
}

// IsTokenRevoked is consulted on every authenticated request.
func (s *Service) IsTokenRevoked(ctx context.Context, token string) bool {
	return s.revocations.IsRevoked(ctx, token)
}

// Authenticate resolves a bearer token to its enabled, unrevoked owner.
func (s *Service) Authenticate(ctx context.Context, token string) (*models.User, error) {
	if token == "" {
		return nil, apperrors.ErrTokenInvalid
	}
	if s.IsTokenRevoked(ctx, token) {
		return nil, apperrors.ErrTokenRevoked
	}
	username, err := s.issuer.ExtractUsername(token)
	if err != nil {
		return nil, apperrors.ErrTokenInvalid
	}
	user, err := s.users.FindByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, apperrors.ErrUserNotFound) {
			return nil, apperrors.ErrTokenInvalid
		}
		return nil, err
	}
	if !s.issuer.Validate(token, user) {
		return nil, apperrors.ErrTokenInvalid
	}
	if !user.Enabled {
		return nil, apperrors.ErrAccountDisabled
	}
	return user, nil
}
