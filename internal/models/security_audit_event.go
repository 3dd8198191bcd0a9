package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type AuditAction string

const (
	ActionLoginSuccess          AuditAction = "LOGIN_SUCCESS"
	ActionLoginFailure          AuditAction = "LOGIN_FAILURE"
	ActionLogout                AuditAction = "LOGOUT"
	ActionRegistration          AuditAction = "REGISTRATION"
	ActionEmailVerification     AuditAction = "EMAIL_VERIFICATION"
	ActionPasswordResetRequest  AuditAction = "PASSWORD_RESET_REQUEST"
	ActionPasswordResetComplete AuditAction = "PASSWORD_RESET_COMPLETE"
	ActionPasswordChange        AuditAction = "PASSWORD_CHANGE"
	ActionAccountLocked         AuditAction = "ACCOUNT_LOCKED"
	ActionAccountUnlocked       AuditAction = "ACCOUNT_UNLOCKED"
	ActionRoleChanged           AuditAction = "ROLE_CHANGED"
	ActionTokenRefresh          AuditAction = "TOKEN_REFRESH"
	ActionSuspiciousActivity    AuditAction = "SUSPICIOUS_ACTIVITY"
	ActionBruteForceAttempt     AuditAction = "BRUTE_FORCE_ATTEMPT"
	ActionTwoFactorEnabled      AuditAction = "TWO_FACTOR_ENABLED"
	ActionTwoFactorDisabled     AuditAction = "TWO_FACTOR_DISABLED"
	ActionTwoFactorSuccess      AuditAction = "TWO_FACTOR_SUCCESS"
	ActionTwoFactorFailure      AuditAction = "TWO_FACTOR_FAILURE"
)

type AuditStatus string

const (
	StatusSuccess AuditStatus = "SUCCESS"
	StatusFailure AuditStatus = "FAILURE"
	StatusWarning AuditStatus = "WARNING"
	StatusBlocked AuditStatus = "BLOCKED"
)

// SecurityAuditEvent is append-only. Rows leave the table only through the
// retention purge.
type SecurityAuditEvent struct {
	ID        uuid.UUID   `json:"id" gorm:"type:uuid;primaryKey"`
	Username  string      `json:"username" gorm:"type:varchar(50);not null;index:idx_audit_user_time,priority:1"`
	Action    AuditAction `json:"action" gorm:"type:varchar(40);not null;index"`
	Timestamp time.Time   `json:"timestamp" gorm:"not null;index;index:idx_audit_user_time,priority:2"`
	IPAddress string      `json:"ipAddress" gorm:"type:varchar(45)"`
	UserAgent string      `json:"userAgent,omitempty" gorm:"type:varchar(500)"`
	SessionID string      `json:"sessionID,omitempty" gorm:"type:varchar(100)"`
	Details   string      `json:"details,omitempty" gorm:"type:text"`
	Status    AuditStatus `json:"status" gorm:"type:varchar(20);not null"`
}

func (e *SecurityAuditEvent) BeforeCreate(_ *gorm.DB) error {
	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now().UTC()
	}
	return nil
}

func (SecurityAuditEvent) TableName() string {
	return "security_audit_events"
}
