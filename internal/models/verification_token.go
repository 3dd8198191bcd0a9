package models

import (
	"time"

	"github.com/google/uuid"
)

type TokenPurpose string

const (
	PurposeEmailVerification TokenPurpose = "email_verification"
	PurposePasswordReset     TokenPurpose = "password_reset"
)

// VerificationToken is a single-use emailed token. Only its hash is stored.
type VerificationToken struct {
	BaseModel
	TokenHash string       `json:"-" gorm:"type:varchar(64);uniqueIndex;not null"`
	UserID    uuid.UUID    `json:"userID" gorm:"type:uuid;not null;index"`
	Purpose   TokenPurpose `json:"purpose" gorm:"type:varchar(30);not null;index"`
	ExpiresAt time.Time    `json:"expiresAt" gorm:"not null;index"`
	UsedAt    *time.Time   `json:"usedAt,omitempty"`
}

func (VerificationToken) TableName() string {
	return "verification_tokens"
}

func (t *VerificationToken) Expired(now time.Time) bool {
	return !now.Before(t.ExpiresAt)
}

func (t *VerificationToken) Used() bool {
	return t.UsedAt != nil
}
