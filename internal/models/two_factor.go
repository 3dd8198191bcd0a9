package models

import (
	"time"

	"github.com/google/uuid"
)

// TwoFactorSecret is the per-user TOTP record. Secret and BackupCodes are
// sealed at rest. Rows are retained when 2FA is disabled.
type TwoFactorSecret struct {
	BaseModel
	UserID         uuid.UUID  `json:"userID" gorm:"type:uuid;uniqueIndex;not null"`
	Secret         string     `json:"-" gorm:"type:text;not null"`
	Enabled        bool       `json:"enabled" gorm:"not null;default:false"`
	SetupCompleted bool       `json:"setupCompleted" gorm:"not null;default:false"`
	BackupCodes    string     `json:"-" gorm:"type:text"`
	LastUsedAt     *time.Time `json:"lastUsedAt,omitempty"`
}

func (TwoFactorSecret) TableName() string {
	return "two_factor_secrets"
}
