package auth

import (
	"context"
	"errors"
	"net/mail"
	"strings"

	"github.com/moneymapper/authcore/internal/models"
	"github.com/moneymapper/authcore/internal/ratelimit"
	apperrors "github.com/moneymapper/authcore/pkg/errors"
	"github.com/moneymapper/authcore/pkg/logger"
)

const (
	minUsernameLen = 3
	maxUsernameLen = 50
	minPasswordLen = 8
	// bcrypt ignores input past 72 bytes.
	maxPasswordLen = 72
)

type RegisterRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
	Email    string `json:"email"`
}

func (r *RegisterRequest) normalize() error {
	r.Username = strings.TrimSpace(r.Username)
	r.Email = strings.ToLower(strings.TrimSpace(r.Email))

	if n := len(r.Username); n < minUsernameLen || n > maxUsernameLen {
		return apperrors.InvalidArg("username must be between 3 and 50 characters")
	}
	if strings.Contains(r.Username, "@") {
		return apperrors.InvalidArg("username must not contain @")
	}
	if err := validatePassword(r.Password); err != nil {
		return err
	}
	if r.Email != "" {
		addr, err := mail.ParseAddress(r.Email)
		if err != nil || addr.Address != r.Email {
			return apperrors.InvalidArg("email must be valid")
		}
	}
	return nil
}

func validatePassword(password string) error {
	if len(password) < minPasswordLen {
		return apperrors.InvalidArg("password must be at least 8 characters")
	}
	if len(password) > maxPasswordLen {
		return apperrors.InvalidArg("password must be at most 72 bytes")
	}
	return nil
}

// admit reserves one attempt for identifier under action, or rejects the
// call with a cooldown once the limit is used up. Check and reservation are
// a single store operation, so concurrent callers cannot overshoot.
func (s *Service) admit(ctx context.Context, action ratelimit.Action, identifier string) error {
	d, err := s.limiter.Attempt(ctx, action, identifier)
	if err != nil {
		return err
	}
	if d.Allowed {
		return nil
	}
	cooldown := d.RetryAfter
	if cooldown <= 0 {
		cooldown = s.limiter.Policy(action).Window
	}
	return apperrors.RateLimited(cooldown)
}

// RegisterUser creates a disabled account and mails a verification link
// when an address was given.
func (s *Service) RegisterUser(ctx context.Context, req RegisterRequest, client Client) (*models.User, error) {
	if err := s.admit(ctx, ratelimit.ActionRegistration, client.IP); err != nil {
		logger.Warn("registration_rate_limited", map[string]interface{}{"ip": client.IP})
		return nil, err
	}
	if err := req.normalize(); err != nil {
		return nil, err
	}

	taken, err := s.users.ExistsByUsername(ctx, req.Username)
	if err != nil {
		return nil, err
	}
	if taken {
		return nil, apperrors.ErrUsernameTaken
	}
	if req.Email != "" {
		taken, err = s.users.ExistsByEmail(ctx, req.Email)
		if err != nil {
			return nil, err
		}
		if taken {
			return nil, apperrors.ErrEmailTaken
		}
	}

	hash, err := s.hasher.Hash(req.Password)
	if err != nil {
		return nil, apperrors.Internal("failed to hash password", err)
	}
	user := &models.User{
		Username:     req.Username,
		PasswordHash: hash,
		Enabled:      false,
		Roles:        []string{models.RoleUser},
	}
	if req.Email != "" {
		email := req.Email
		user.Email = &email
	}
	// The account and its verification token land together, so a failed
	// issue never leaves a disabled user holding the name.
	var raw string
	err = s.tx.InTx(ctx, func(ctx context.Context) error {
		if err := s.users.Create(ctx, user); err != nil {
			return err
		}
		if user.Email == nil {
			return nil
		}
		var err error
		raw, err = s.issueVerification(ctx, user)
		return err
	})
	if err != nil {
		return nil, err
	}
	if raw != "" {
		s.notifier.SendEmailVerification(user.EmailAddress(), raw, user.Username)
	}

	s.record(user.Username, models.ActionRegistration, models.StatusSuccess, client, "")
	logger.InfoWithUser(user.ID.String(), "user_registered", map[string]interface{}{
		"username": user.Username,
		"ip":       client.IP,
	})
	return user, nil
}

func (s *Service) issueVerification(ctx context.Context, user *models.User) (string, error) {
	return s.tokens.Issue(ctx, user.ID, models.PurposeEmailVerification, s.now().Add(s.verificationTTL))
}

// VerifyEmail redeems a verification token exactly once and enables the
// account it belongs to.
func (s *Service) VerifyEmail(ctx context.Context, token string) error {
	if strings.TrimSpace(token) == "" {
		return apperrors.ErrTokenInvalid
	}
	rec, err := s.tokens.Find(ctx, token, models.PurposeEmailVerification)
	if err != nil {
		return err
	}

	var user *models.User
	err = s.tx.InTx(ctx, func(ctx context.Context) error {
		if err := s.redeem(ctx, rec); err != nil {
			return err
		}
		found, err := s.users.FindByID(ctx, rec.UserID)
		if err != nil {
			return err
		}
		found.Enabled = true
		if err := s.users.Save(ctx, found); err != nil {
			return err
		}
		user = found
		return nil
	})
	if err != nil {
		return err
	}

	s.record(user.Username, models.ActionEmailVerification, models.StatusSuccess, Client{}, "")
	logger.InfoWithUser(user.ID.String(), "email_verified", nil)
	return nil
}

// redeem checks a pending token and marks it used. Of two concurrent
// redemptions only one succeeds. Callers run it in the same transaction as
// the change the token authorizes, so a failed change leaves it unspent.
func (s *Service) redeem(ctx context.Context, rec *models.VerificationToken) error {
	now := s.now()
	if rec.Used() {
		return apperrors.ErrTokenAlreadyUsed
	}
	if rec.Expired(now) {
		return apperrors.ErrTokenExpired
	}
	return s.tokens.MarkUsed(ctx, rec.ID, now)
}

// ResendVerification mails a fresh verification link. The result never
// reveals whether identifier matched an account.
func (s *Service) ResendVerification(ctx context.Context, identifier string, client Client) error {
	identifier = strings.TrimSpace(identifier)
	if err := s.admit(ctx, ratelimit.ActionEmailVerification, identifier); err != nil {
		return err
	}

	user, err := s.users.FindByIdentifier(ctx, identifier)
	if err != nil {
		if errors.Is(err, apperrors.ErrUserNotFound) {
			return nil
		}
		return err
	}
	if user.Email == nil || user.Enabled {
		return nil
	}

	var raw string
	err = s.tx.InTx(ctx, func(ctx context.Context) error {
		if err := s.tokens.DeleteForUser(ctx, user.ID, models.PurposeEmailVerification); err != nil {
			return err
		}
		var err error
		raw, err = s.issueVerification(ctx, user)
		return err
	})
	if err != nil {
		return err
	}
	s.notifier.SendEmailVerification(user.EmailAddress(), raw, user.Username)
	logger.InfoWithUser(user.ID.String(), "email_verification_resent", map[string]interface{}{
		"ip": client.IP,
	})
	return nil
}
