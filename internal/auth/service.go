// Package auth drives registration, email verification, login, password
// reset, second-factor enrolment and logout over the security components.
package auth

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/moneymapper/authcore/internal/audit"
	"github.com/moneymapper/authcore/internal/models"
	"github.com/moneymapper/authcore/internal/ratelimit"
	"github.com/moneymapper/authcore/internal/revocation"
	"github.com/moneymapper/authcore/internal/totp"
	"github.com/moneymapper/authcore/pkg/logger"
)

type UserStore interface {
	FindByUsername(ctx context.Context, username string) (*models.User, error)
	FindByEmail(ctx context.Context, email string) (*models.User, error)
	FindByID(ctx context.Context, id uuid.UUID) (*models.User, error)
	FindByIdentifier(ctx context.Context, identifier string) (*models.User, error)
	ExistsByUsername(ctx context.Context, username string) (bool, error)
	ExistsByEmail(ctx context.Context, email string) (bool, error)
	Create(ctx context.Context, user *models.User) error
	Save(ctx context.Context, user *models.User) error
}

// PendingTokens stores single-use email-verification and password-reset
// tokens.
type PendingTokens interface {
	Issue(ctx context.Context, userID uuid.UUID, purpose models.TokenPurpose, expiresAt time.Time) (string, error)
	Find(ctx context.Context, raw string, purpose models.TokenPurpose) (*models.VerificationToken, error)
	MarkUsed(ctx context.Context, id uuid.UUID, at time.Time) error
	DeleteForUser(ctx context.Context, userID uuid.UUID, purpose models.TokenPurpose) error
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
}

// Transactor runs fn as one unit of work. Stores called with the context fn
// receives take part in it.
type Transactor interface {
	InTx(ctx context.Context, fn func(ctx context.Context) error) error
}

type noTx struct{}

func (noTx) InTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return fn(ctx)
}

type PasswordHasher interface {
	Hash(raw string) (string, error)
	Matches(raw, digest string) bool
}

type TokenIssuer interface {
	Issue(user *models.User) (string, error)
	ExtractUsername(token string) (string, error)
	ExtractExpiry(token string) (time.Time, error)
	Validate(token string, user *models.User) bool
}

// Notifier sends account e-mails. Every method returns immediately.
type Notifier interface {
	SendEmailVerification(to, token, username string)
	SendPasswordReset(to, token, username string)
	SendPasswordChanged(to, username string)
	SendTwoFactorEnabled(to, username string)
	SendSuspiciousActivity(to, username, ip, userAgent string)
}

type Deps struct {
	Users       UserStore
	Tokens      PendingTokens
	Tx          Transactor
	Hasher      PasswordHasher
	Issuer      TokenIssuer
	Notifier    Notifier
	TOTP        *totp.Engine
	Revocations *revocation.Registry
	Limiter     *ratelimit.Limiter
	Audit       *audit.Detector
}

type Options struct {
	VerificationTTL  time.Duration
	PasswordResetTTL time.Duration
	// BlockSuspicious rejects logins the anomaly check flags instead of
	// only alerting the account owner.
	BlockSuspicious bool
	Clock           func() time.Time
}

type Service struct {
	users       UserStore
	tokens      PendingTokens
	tx          Transactor
	hasher      PasswordHasher
	issuer      TokenIssuer
	notifier    Notifier
	totp        *totp.Engine
	revocations *revocation.Registry
	limiter     *ratelimit.Limiter
	audit       *audit.Detector

	verificationTTL time.Duration
	resetTTL        time.Duration
	blockSuspicious bool
	now             func() time.Time

	decoyOnce sync.Once
	decoyHash string
}

func NewService(deps Deps, opts Options) *Service {
	if opts.VerificationTTL <= 0 {
		opts.VerificationTTL = 24 * time.Hour
	}
	if opts.PasswordResetTTL <= 0 {
		opts.PasswordResetTTL = time.Hour
	}
	if opts.Clock == nil {
		opts.Clock = time.Now
	}
	if deps.Tx == nil {
		deps.Tx = noTx{}
	}
	return &Service{
		users:           deps.Users,
		tokens:          deps.Tokens,
		tx:              deps.Tx,
		hasher:          deps.Hasher,
		issuer:          deps.Issuer,
		notifier:        deps.Notifier,
		totp:            deps.TOTP,
		revocations:     deps.Revocations,
		limiter:         deps.Limiter,
		audit:           deps.Audit,
		verificationTTL: opts.VerificationTTL,
		resetTTL:        opts.PasswordResetTTL,
		blockSuspicious: opts.BlockSuspicious,
		now:             opts.Clock,
	}
}

// Client identifies where a request came from.
type Client struct {
	IP        string
	UserAgent string
}

func (s *Service) record(username string, action models.AuditAction, status models.AuditStatus, client Client, details string) {
	s.audit.Record(audit.Event{
		Username:  username,
		Action:    action,
		Status:    status,
		IPAddress: client.IP,
		UserAgent: client.UserAgent,
		Details:   details,
		Timestamp: s.now(),
	})
}

// matchDecoy spends the same hashing time as a real password check so a
// missing account is not revealed by latency.
func (s *Service) matchDecoy(password string) {
	s.decoyOnce.Do(func() {
		hash, err := s.hasher.Hash(uuid.NewString())
		if err != nil {
			logger.Error("decoy_hash_failed", err, nil)
			return
		}
		s.decoyHash = hash
	})
	if s.decoyHash != "" {
		_ = s.hasher.Matches(password, s.decoyHash)
	}
}
