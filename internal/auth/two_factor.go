package auth

import (
	"context"
	"encoding/base64"

	"github.com/moneymapper/authcore/internal/models"
	"github.com/moneymapper/authcore/internal/totp"
	apperrors "github.com/moneymapper/authcore/pkg/errors"
	"github.com/moneymapper/authcore/pkg/logger"
)

const qrCodeSize = 256

type TwoFactorSetup struct {
	Secret string `json:"secret"`
	URI    string `json:"qrUri"`
	// QRCode is a PNG data URI of URI.
	QRCode string `json:"qrCode"`
}

// Setup2FA starts enrolment. Any unconfirmed secret is replaced.
func (s *Service) Setup2FA(ctx context.Context, user *models.User) (*TwoFactorSetup, error) {
	enrollment, err := s.totp.GenerateSecret(ctx, user)
	if err != nil {
		return nil, err
	}

	setup := &TwoFactorSetup{Secret: enrollment.Secret, URI: enrollment.URI}
	png, err := totp.QRCodePNG(enrollment.URI, qrCodeSize)
	if err != nil {
		logger.ErrorWithUser(user.ID.String(), "qr_code_render_failed", err, nil)
	} else {
		setup.QRCode = "data:image/png;base64," + base64.StdEncoding.EncodeToString(png)
	}
	return setup, nil
}

// Enable2FA confirms enrolment with a current code and returns the fresh
// backup codes.
func (s *Service) Enable2FA(ctx context.Context, user *models.User, code string, client Client) ([]string, error) {
	ok, err := s.totp.VerifyAndEnable(ctx, user, code)
	if err != nil {
		return nil, err
	}
	if !ok {
		s.record(user.Username, models.ActionTwoFactorFailure, models.StatusFailure, client, "Invalid setup code")
		return nil, apperrors.ErrInvalidCredentials
	}
	s.record(user.Username, models.ActionTwoFactorEnabled, models.StatusSuccess, client, "")
	return s.totp.BackupCodes(ctx, user)
}

func (s *Service) Disable2FA(ctx context.Context, user *models.User, client Client) error {
	enabled, err := s.totp.IsEnabled(ctx, user)
	if err != nil {
		return err
	}
	if !enabled {
		return apperrors.FailedPrecondition("two-factor authentication is not enabled")
	}
	if err := s.totp.Disable(ctx, user); err != nil {
		return err
	}
	s.record(user.Username, models.ActionTwoFactorDisabled, models.StatusSuccess, client, "")
	return nil
}

func (s *Service) TwoFactorStatus(ctx context.Context, user *models.User) (totp.Status, error) {
	return s.totp.Status(ctx, user)
}

func (s *Service) RegenerateBackupCodes(ctx context.Context, user *models.User, client Client) ([]string, error) {
	codes, err := s.totp.RegenerateBackupCodes(ctx, user)
	if err != nil {
		return nil, err
	}
	s.record(user.Username, models.ActionTwoFactorEnabled, models.StatusSuccess, client, "Backup codes regenerated")
	return codes, nil
}
