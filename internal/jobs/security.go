package jobs

import (
	"context"
	"time"

	"github.com/moneymapper/authcore/internal/audit"
	"github.com/moneymapper/authcore/internal/auth"
	"github.com/moneymapper/authcore/internal/config"
	"github.com/moneymapper/authcore/internal/metrics"
	"github.com/moneymapper/authcore/internal/ratelimit"
	"github.com/moneymapper/authcore/internal/revocation"
	"github.com/moneymapper/authcore/pkg/logger"
)

const (
	JobRevocationSweep = "revocation_sweep"
	JobTokenCleanup    = "token_cleanup"
	JobAuditPurge      = "audit_purge"
	JobRateLimitPrune  = "rate_limit_prune"
	JobHealthCheck     = "security_health_check"
)

type Deps struct {
	Revocations *revocation.Registry
	Auth        *auth.Service
	Audit       *audit.Detector
	Limiter     *ratelimit.Limiter
	Clock       func() time.Time
}

// RegisterSecurityJobs wires the maintenance jobs at their configured
// intervals.
func RegisterSecurityJobs(s *Scheduler, deps Deps, cfg *config.Config) {
	now := deps.Clock
	if now == nil {
		now = time.Now
	}

	s.Add(JobRevocationSweep, cfg.Revocation.SweepInterval, func(ctx context.Context) error {
		_, err := deps.Revocations.SweepExpired(ctx, now())
		return err
	})

	s.Add(JobTokenCleanup, cfg.Audit.TokenCleanupEvery, func(ctx context.Context) error {
		_, err := deps.Auth.CleanupExpiredTokens(ctx, now())
		return err
	})

	if cfg.Audit.Retention > 0 {
		s.Add(JobAuditPurge, cfg.Audit.PurgeInterval, func(ctx context.Context) error {
			_, err := deps.Audit.PurgeOlderThan(ctx, now().Add(-cfg.Audit.Retention))
			return err
		})
	}

	s.Add(JobRateLimitPrune, cfg.RateLimit.PruneInterval, func(ctx context.Context) error {
		removed := deps.Limiter.Fallback().Prune()
		if removed > 0 {
			logger.Info("rate_limit_buckets_pruned", map[string]interface{}{"removed": removed})
		}
		return nil
	})

	s.Add(JobHealthCheck, cfg.Audit.HealthCheckEvery, func(ctx context.Context) error {
		return HealthCheck(ctx, deps)
	})
}

// HealthCheck reports the size of the revocation registry and the
// in-process limiter.
func HealthCheck(ctx context.Context, deps Deps) error {
	revoked, err := deps.Revocations.Count(ctx)
	if err != nil {
		return err
	}
	metrics.RevokedTokens.Set(float64(revoked))

	buckets := deps.Limiter.Fallback().Len()
	logger.Info("security_health_check", map[string]interface{}{
		"revoked_tokens":      revoked,
		"rate_limit_buckets":  buckets,
		"revocation_failopen": deps.Revocations.FailOpen(),
	})
	return nil
}
