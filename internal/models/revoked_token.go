package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type RevocationReason string

const (
	ReasonLogout             RevocationReason = "LOGOUT"
	ReasonPasswordChanged    RevocationReason = "PASSWORD_CHANGED"
	ReasonAccountCompromised RevocationReason = "ACCOUNT_COMPROMISED"
	ReasonAdminRevoked       RevocationReason = "ADMIN_REVOKED"
	ReasonSuspiciousActivity RevocationReason = "SUSPICIOUS_ACTIVITY"
	ReasonTokenRotation      RevocationReason = "TOKEN_ROTATION"
)

func (r RevocationReason) Valid() bool {
	switch r {
	case ReasonLogout, ReasonPasswordChanged, ReasonAccountCompromised,
		ReasonAdminRevoked, ReasonSuspiciousActivity, ReasonTokenRotation:
		return true
	}
	return false
}

// RevokedToken stores only the SHA-256 hex digest of a bearer token.
// ExpiresAt, not RevokedAt, governs when the row may be swept.
type RevokedToken struct {
	ID        uuid.UUID        `json:"id" gorm:"type:uuid;primaryKey"`
	TokenHash string           `json:"-" gorm:"type:varchar(64);uniqueIndex;not null"`
	Username  string           `json:"username" gorm:"type:varchar(50);not null;index"`
	Reason    RevocationReason `json:"reason" gorm:"type:varchar(30);not null"`
	RevokedAt time.Time        `json:"revokedAt" gorm:"not null"`
	ExpiresAt time.Time        `json:"expiresAt" gorm:"not null;index"`
}

func (r *RevokedToken) BeforeCreate(_ *gorm.DB) error {
	if r.ID == uuid.Nil {
		r.ID = uuid.New()
	}
	return nil
}

func (RevokedToken) TableName() string {
	return "revoked_tokens"
}

// UserTokenCutoff invalidates every token for Username issued at or before
// NotBefore.
type UserTokenCutoff struct {
	Username  string           `json:"username" gorm:"type:varchar(50);primaryKey"`
	NotBefore time.Time        `json:"notBefore" gorm:"not null"`
	Reason    RevocationReason `json:"reason" gorm:"type:varchar(30);not null"`
	UpdatedAt time.Time        `json:"updatedAt"`
}

func (UserTokenCutoff) TableName() string {
	return "user_token_cutoffs"
}
