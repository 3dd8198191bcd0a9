package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/moneymapper/authcore/internal/audit"
	"github.com/moneymapper/authcore/internal/auth"
	"github.com/moneymapper/authcore/internal/config"
	"github.com/moneymapper/authcore/internal/database"
	"github.com/moneymapper/authcore/internal/jobs"
	"github.com/moneymapper/authcore/internal/notify"
	"github.com/moneymapper/authcore/internal/ratelimit"
	"github.com/moneymapper/authcore/internal/revocation"
	"github.com/moneymapper/authcore/internal/storage"
	"github.com/moneymapper/authcore/internal/store"
	"github.com/moneymapper/authcore/internal/totp"
	"github.com/moneymapper/authcore/pkg/logger"
	"github.com/moneymapper/authcore/pkg/utils"
	"github.com/redis/go-redis/v9"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

// App holds the wired security core shared by the server and authctl.
type App struct {
	Config      *config.Config
	DB          *gorm.DB
	Limiter     *ratelimit.Limiter
	Revocations *revocation.Registry
	Audit       *audit.Detector
	Notifier    *notify.Dispatcher
	Service     *auth.Service
	Scheduler   *jobs.Scheduler
	Archive     *storage.ArchiveClient

	redis *redis.Client
}

// New connects to the database and builds every component from cfg. A
// configured Redis that does not answer is logged, not fatal.
func New(ctx context.Context, cfg *config.Config) (*App, error) {
	db, err := database.Connect(cfg.DB)
	if err != nil {
		return nil, fmt.Errorf("database connection failed: %w", err)
	}
	if err := database.SeedAdmin(db, cfg.Admin); err != nil {
		return nil, fmt.Errorf("admin seed failed: %w", err)
	}
	return NewWithDB(ctx, cfg, db)
}

func NewWithDB(ctx context.Context, cfg *config.Config, db *gorm.DB) (*App, error) {
	a := &App{Config: cfg, DB: db}

	limiterOpts := ratelimit.Options{
		Fallback:     ratelimit.NewMemoryStore(nil),
		Policies:     ratelimit.PoliciesFromConfig(cfg.RateLimit),
		StoreTimeout: cfg.RateLimit.StoreTimeout,
	}
	if cfg.Redis.Addr != "" {
		a.redis = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		redisStore := ratelimit.NewRedisStore(a.redis)
		pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
		if err := redisStore.Ping(pingCtx); err != nil {
			logger.Warn("redis_unavailable", map[string]interface{}{"addr": cfg.Redis.Addr, "error": err.Error()})
		}
		cancel()
		limiterOpts.Primary = redisStore
	}
	a.Limiter = ratelimit.NewLimiter(limiterOpts)

	auditOpts := audit.Options{
		QueueSize:        cfg.Audit.QueueSize,
		Workers:          cfg.Audit.Workers,
		FailedLoginLimit: cfg.Audit.FailedLoginLimit,
		DistinctIPLimit:  cfg.Audit.DistinctIPLimit,
		Lookback:         cfg.Audit.Lookback,
	}
	if cfg.Audit.ArchiveOnPurge {
		archive, err := storage.NewArchiveClient(cfg.MinIO)
		switch {
		case errors.Is(err, storage.ErrArchiveDisabled):
			logger.Warn("audit_archive_disabled", map[string]interface{}{"reason": "MINIO_ENDPOINT not set"})
		case err != nil:
			return nil, fmt.Errorf("minio initialization failed: %w", err)
		default:
			if err := archive.EnsureBucket(ctx); err != nil {
				return nil, fmt.Errorf("failed ensuring minio bucket: %w", err)
			}
			a.Archive = archive
			auditOpts.Archiver = archive
		}
	}
	a.Audit = audit.NewDetector(db, auditOpts)

	a.Notifier = notify.NewDispatcher(notify.LogMailer{}, notify.Options{
		From:      cfg.Notify.FromEmail,
		BaseURL:   cfg.Server.BaseURL,
		QueueSize: cfg.Notify.QueueSize,
		Workers:   cfg.Notify.Workers,
	})

	box, err := utils.NewSecretBox(cfg.TOTP.EncryptionSecret)
	if err != nil {
		return nil, fmt.Errorf("totp key derivation failed: %w", err)
	}

	issuer := utils.NewJWTIssuer(cfg.JWT.Secret, cfg.JWT.Expiration, cfg.JWT.Issuer)
	a.Revocations = revocation.NewRegistry(db, issuer, revocation.Options{
		StoreTimeout: cfg.Revocation.StoreTimeout,
		FailOpen:     cfg.Revocation.FailOpen,
	})

	a.Service = auth.NewService(auth.Deps{
		Users:       store.NewUsers(db),
		Tokens:      store.NewVerificationTokens(db),
		Tx:          store.NewTransactor(db),
		Hasher:      utils.NewBcryptHasher(bcrypt.DefaultCost),
		Issuer:      issuer,
		Notifier:    a.Notifier,
		TOTP:        totp.NewEngine(db, totp.Options{Issuer: cfg.TOTP.Issuer, Box: box, Notifier: a.Notifier}),
		Revocations: a.Revocations,
		Limiter:     a.Limiter,
		Audit:       a.Audit,
	}, auth.Options{
		VerificationTTL:  cfg.Tokens.VerificationTTL,
		PasswordResetTTL: cfg.Tokens.PasswordResetTTL,
		BlockSuspicious:  cfg.Audit.BlockSuspicious,
	})

	a.Scheduler = jobs.NewScheduler()
	jobs.RegisterSecurityJobs(a.Scheduler, jobs.Deps{
		Revocations: a.Revocations,
		Auth:        a.Service,
		Audit:       a.Audit,
		Limiter:     a.Limiter,
	}, cfg)

	return a, nil
}

// Close stops the scheduler and drains the background queues.
func (a *App) Close(ctx context.Context) error {
	a.Scheduler.Stop()

	var errs []error
	if err := a.Audit.Close(ctx); err != nil {
		errs = append(errs, fmt.Errorf("audit drain: %w", err))
	}
	if err := a.Notifier.Close(ctx); err != nil {
		errs = append(errs, fmt.Errorf("notify drain: %w", err))
	}
	if a.redis != nil {
		if err := a.redis.Close(); err != nil {
			errs = append(errs, fmt.Errorf("redis close: %w", err))
		}
	}
	return errors.Join(errs...)
}
