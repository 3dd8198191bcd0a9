package totp

import (
	"bytes"
	"context"
	"errors"
	"image/png"
	"time"

	"github.com/moneymapper/authcore/internal/models"
	apperrors "github.com/moneymapper/authcore/pkg/errors"
	"github.com/moneymapper/authcore/pkg/logger"
	"github.com/moneymapper/authcore/pkg/utils"
	"github.com/pquerna/otp"
	pqtotp "github.com/pquerna/otp/totp"
	"gorm.io/gorm"
)

const secretSize = 20

var ErrAlreadyEnabled = apperrors.FailedPrecondition("two-factor authentication is already enabled")

// Notifier is told when a user finishes enrolment.
type Notifier interface {
	SendTwoFactorEnabled(email, username string)
}

type Options struct {
	Issuer   string
	Box      *utils.SecretBox
	Notifier Notifier
	Clock    func() time.Time
}

// Engine owns the per-user TOTP secret and backup codes.
type Engine struct {
	db       *gorm.DB
	box      *utils.SecretBox
	issuer   string
	notifier Notifier
	now      func() time.Time
	locks    *keyedMutex
}

func NewEngine(db *gorm.DB, opts Options) *Engine {
	if opts.Issuer == "" {
		opts.Issuer = "MoneyMapper"
	}
	if opts.Box == nil {
		opts.Box = &utils.SecretBox{}
	}
	if opts.Clock == nil {
		opts.Clock = time.Now
	}
	return &Engine{
		db:       db,
		box:      opts.Box,
		issuer:   opts.Issuer,
		notifier: opts.Notifier,
		now:      opts.Clock,
		locks:    newKeyedMutex(),
	}
}

type Enrollment struct {
	Secret string `json:"secret"`
	URI    string `json:"qrUri"`
}

type Status struct {
	Enabled              bool       `json:"enabled"`
	SetupCompleted       bool       `json:"setupCompleted"`
	BackupCodesRemaining int        `json:"backupCodesRemaining"`
	LastUsedAt           *time.Time `json:"lastUsedAt,omitempty"`
}

func accountName(user *models.User) string {
	if email := user.EmailAddress(); email != "" {
		return email
	}
	return user.Username
}

func (e *Engine) load(ctx context.Context, user *models.User) (*models.TwoFactorSecret, error) {
	var rec models.TwoFactorSecret
	err := e.db.WithContext(ctx).Where("user_id = ?", user.ID).First(&rec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, apperrors.Internal("two-factor lookup failed", err)
	}
	return &rec, nil
}

// GenerateSecret creates a fresh 160-bit secret for user, replacing any
// unconfirmed one. The secret stays inactive until VerifyAndEnable.
func (e *Engine) GenerateSecret(ctx context.Context, user *models.User) (*Enrollment, error) {
	unlock := e.locks.Lock(user.ID.String())
	defer unlock()

	rec, err := e.load(ctx, user)
	if err != nil {
		return nil, err
	}
	if rec != nil && rec.Enabled {
		return nil, ErrAlreadyEnabled
	}

	key, err := pqtotp.Generate(pqtotp.GenerateOpts{
		Issuer:      e.issuer,
		AccountName: accountName(user),
		SecretSize:  secretSize,
	})
	if err != nil {
		return nil, apperrors.Internal("failed to generate TOTP secret", err)
	}
	secret := key.Secret()

	sealed, err := e.box.Seal(secret)
	if err != nil {
		return nil, apperrors.Internal("failed to encrypt TOTP secret", err)
	}

	if rec == nil {
		rec = &models.TwoFactorSecret{UserID: user.ID, Secret: sealed}
		if err := e.db.WithContext(ctx).Create(rec).Error; err != nil {
			return nil, apperrors.Internal("failed to save TOTP secret", err)
		}
	} else {
		err := e.db.WithContext(ctx).Model(rec).Updates(map[string]interface{}{
			"secret":          sealed,
			"setup_completed": false,
		}).Error
		if err != nil {
			return nil, apperrors.Internal("failed to update TOTP secret", err)
		}
	}

	return &Enrollment{
		Secret: secret,
		URI:    ProvisioningURI(e.issuer, accountName(user), secret),
	}, nil
}

// QRCodePNG renders a provisioning URI as a size x size PNG.
func QRCodePNG(uri string, size int) ([]byte, error) {
	key, err := otp.NewKeyFromURL(uri)
	if err != nil {
		return nil, err
	}
	img, err := key.Image(size, size)
	if err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// VerifyAndEnable confirms enrolment with a code from the authenticator.
// A wrong code changes nothing and reports false.
func (e *Engine) VerifyAndEnable(ctx context.Context, user *models.User, code string) (bool, error) {
	unlock := e.locks.Lock(user.ID.String())
	defer unlock()

	rec, err := e.load(ctx, user)
	if err != nil {
		return false, err
	}
	if rec == nil {
		return false, apperrors.ErrTwoFactorNotSetUp
	}

	if !validate(e.box.OpenOrPlaintext(rec.Secret), code, e.now()) {
		return false, nil
	}

	codes, err := generateBackupCodes()
	if err != nil {
		return false, apperrors.Internal("failed to generate backup codes", err)
	}
	sealedCodes, err := e.box.Seal(encodeBackupCodes(codes))
	if err != nil {
		return false, apperrors.Internal("failed to encrypt backup codes", err)
	}

	err = e.db.WithContext(ctx).Model(rec).Updates(map[string]interface{}{
		"enabled":         true,
		"setup_completed": true,
		"backup_codes":    sealedCodes,
	}).Error
	if err != nil {
		return false, apperrors.Internal("failed to enable two-factor", err)
	}

	if e.notifier != nil && user.EmailAddress() != "" {
		e.notifier.SendTwoFactorEnabled(user.EmailAddress(), user.Username)
	}
	logger.InfoWithUser(user.Username, "two_factor_enabled", nil)
	return true, nil
}

func (e *Engine) IsEnabled(ctx context.Context, user *models.User) (bool, error) {
	rec, err := e.load(ctx, user)
	if err != nil {
		return false, err
	}
	return rec != nil && rec.Enabled, nil
}

// VerifyCode accepts a TOTP code within one step of now, or else an unused
// backup code, which is consumed.
func (e *Engine) VerifyCode(ctx context.Context, user *models.User, code string) (bool, error) {
	unlock := e.locks.Lock(user.ID.String())
	defer unlock()

	rec, err := e.load(ctx, user)
	if err != nil {
		return false, err
	}
	if rec == nil || !rec.Enabled {
		return false, nil
	}

	now := e.now()
	if validate(e.box.OpenOrPlaintext(rec.Secret), code, now) {
		if err := e.db.WithContext(ctx).Model(rec).Update("last_used_at", now).Error; err != nil {
			logger.ErrorWithUser(user.Username, "two_factor_last_used_update_failed", err, nil)
		}
		return true, nil
	}

	remaining, ok := consumeBackupCode(decodeBackupCodes(e.box.OpenOrPlaintext(rec.BackupCodes)), code)
	if !ok {
		return false, nil
	}
	sealed, err := e.box.Seal(encodeBackupCodes(remaining))
	if err != nil {
		return false, apperrors.Internal("failed to encrypt backup codes", err)
	}

	// Compare-and-swap on the stored blob so a code is spent once even across
	// processes.
	result := e.db.WithContext(ctx).
		Model(&models.TwoFactorSecret{}).
		Where("id = ? AND backup_codes = ?", rec.ID, rec.BackupCodes).
		Updates(map[string]interface{}{
			"backup_codes": sealed,
			"last_used_at": now,
		})
	if result.Error != nil {
		return false, apperrors.Internal("failed to consume backup code", result.Error)
	}
	if result.RowsAffected == 0 {
		return false, nil
	}

	logger.InfoWithUser(user.Username, "backup_code_used", map[string]interface{}{
		"remaining": len(remaining),
	})
	return true, nil
}

// Disable turns 2FA off but keeps the secret and backup codes, so the user
// can re-enable with the authenticator they already have.
func (e *Engine) Disable(ctx context.Context, user *models.User) error {
	unlock := e.locks.Lock(user.ID.String())
	defer unlock()

	rec, err := e.load(ctx, user)
	if err != nil || rec == nil {
		return err
	}
	if err := e.db.WithContext(ctx).Model(rec).Update("enabled", false).Error; err != nil {
		return apperrors.Internal("failed to disable two-factor", err)
	}
	logger.InfoWithUser(user.Username, "two_factor_disabled", nil)
	return nil
}

func (e *Engine) Status(ctx context.Context, user *models.User) (Status, error) {
	rec, err := e.load(ctx, user)
	if err != nil || rec == nil {
		return Status{}, err
	}
	return Status{
		Enabled:              rec.Enabled,
		SetupCompleted:       rec.SetupCompleted,
		BackupCodesRemaining: len(decodeBackupCodes(e.box.OpenOrPlaintext(rec.BackupCodes))),
		LastUsedAt:           rec.LastUsedAt,
	}, nil
}

func (e *Engine) BackupCodes(ctx context.Context, user *models.User) ([]string, error) {
	rec, err := e.load(ctx, user)
	if err != nil || rec == nil {
		return nil, err
	}
	return decodeBackupCodes(e.box.OpenOrPlaintext(rec.BackupCodes)), nil
}

// RegenerateBackupCodes replaces every backup code, spent or not.
func (e *Engine) RegenerateBackupCodes(ctx context.Context, user *models.User) ([]string, error) {
	unlock := e.locks.Lock(user.ID.String())
	defer unlock()

	rec, err := e.load(ctx, user)
	if err != nil {
		return nil, err
	}
	if rec == nil || !rec.SetupCompleted {
		return nil, apperrors.ErrTwoFactorNotSetUp
	}

	codes, err := generateBackupCodes()
	if err != nil {
		return nil, apperrors.Internal("failed to generate backup codes", err)
	}
	sealed, err := e.box.Seal(encodeBackupCodes(codes))
	if err != nil {
		return nil, apperrors.Internal("failed to encrypt backup codes", err)
	}
	if err := e.db.WithContext(ctx).Model(rec).Update("backup_codes", sealed).Error; err != nil {
		return nil, apperrors.Internal("failed to save backup codes", err)
	}
	return codes, nil
}
