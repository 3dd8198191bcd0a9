package store

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/moneymapper/authcore/internal/models"
	apperrors "github.com/moneymapper/authcore/pkg/errors"
	"github.com/moneymapper/authcore/pkg/utils"
	"gorm.io/gorm"
)

// VerificationTokens persists single-use email tokens by hash.
type VerificationTokens struct {
	db *gorm.DB
}

func NewVerificationTokens(db *gorm.DB) *VerificationTokens {
	return &VerificationTokens{db: db}
}

// Issue stores a fresh token for user and returns the raw value, which is
// never persisted.
func (s *VerificationTokens) Issue(ctx context.Context, userID uuid.UUID, purpose models.TokenPurpose, expiresAt time.Time) (string, error) {
	raw, err := utils.GenerateSecureToken(32)
	if err != nil {
		return "", apperrors.Internal("token generation failed", err)
	}

	record := models.VerificationToken{
		TokenHash: utils.HashToken(raw),
		UserID:    userID,
		Purpose:   purpose,
		ExpiresAt: expiresAt.UTC(),
	}
	if err := Conn(ctx, s.db).Create(&record).Error; err != nil {
		return "", apperrors.Internal("token create failed", err)
	}
	return raw, nil
}

func (s *VerificationTokens) Find(ctx context.Context, raw string, purpose models.TokenPurpose) (*models.VerificationToken, error) {
	var record models.VerificationToken
	err := Conn(ctx, s.db).
		Where("token_hash = ? AND purpose = ?", utils.HashToken(raw), purpose).
		First(&record).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperrors.ErrTokenInvalid
	}
	if err != nil {
		return nil, apperrors.Internal("token lookup failed", err)
	}
	return &record, nil
}

// MarkUsed flips the token to used exactly once. A second caller racing on
// the same token gets ErrTokenAlreadyUsed.
func (s *VerificationTokens) MarkUsed(ctx context.Context, id uuid.UUID, at time.Time) error {
	result := Conn(ctx, s.db).
		Model(&models.VerificationToken{}).
		Where("id = ? AND used_at IS NULL", id).
		Update("used_at", at)
	if result.Error != nil {
		return apperrors.Internal("token update failed", result.Error)
	}
	if result.RowsAffected == 0 {
		return apperrors.ErrTokenAlreadyUsed
	}
	return nil
}

func (s *VerificationTokens) DeleteForUser(ctx context.Context, userID uuid.UUID, purpose models.TokenPurpose) error {
	err := Conn(ctx, s.db).
		Where("user_id = ? AND purpose = ?", userID, purpose).
		Delete(&models.VerificationToken{}).Error
	if err != nil {
		return apperrors.Internal("token delete failed", err)
	}
	return nil
}

// DeleteExpired removes tokens whose expiry is before now and returns how
// many rows went.
func (s *VerificationTokens) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	result := Conn(ctx, s.db).
		Where("expires_at < ?", now.UTC()).
		Delete(&models.VerificationToken{})
	if result.Error != nil {
		return 0, apperrors.Internal("token cleanup failed", result.Error)
	}
	return result.RowsAffected, nil
}
