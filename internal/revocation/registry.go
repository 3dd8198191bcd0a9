package revocation

import (
	"context"
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/moneymapper/authcore/internal/metrics"
	"github.com/moneymapper/authcore/internal/models"
	"github.com/moneymapper/authcore/internal/store"
	apperrors "github.com/moneymapper/authcore/pkg/errors"
	"github.com/moneymapper/authcore/pkg/logger"
	"github.com/moneymapper/authcore/pkg/utils"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ClaimsReader pulls claims out of a signed bearer token without requiring
// it to be unexpired.
type ClaimsReader interface {
	ExtractUsername(token string) (string, error)
	ExtractExpiry(token string) (time.Time, error)
	ExtractIssuedAt(token string) (time.Time, error)
}

type Options struct {
	// StoreTimeout bounds every database round trip.
	StoreTimeout time.Duration
	// FailOpen treats a lookup error as "not revoked". Availability wins
	// over strict revocation while the store is down.
	FailOpen bool
	Clock    func() time.Time
}

// Registry records revoked bearer tokens by hash plus per-user
// valid-not-before cutoffs.
type Registry struct {
	db       *gorm.DB
	tokens   ClaimsReader
	timeout  time.Duration
	failOpen bool
	now      func() time.Time
}

func NewRegistry(db *gorm.DB, tokens ClaimsReader, opts Options) *Registry {
	if opts.StoreTimeout <= 0 {
		opts.StoreTimeout = 500 * time.Millisecond
	}
	if opts.Clock == nil {
		opts.Clock = time.Now
	}
	return &Registry{
		db:       db,
		tokens:   tokens,
		timeout:  opts.StoreTimeout,
		failOpen: opts.FailOpen,
		now:      opts.Clock,
	}
}

func (r *Registry) FailOpen() bool {
	return r.failOpen
}

// IsRevoked reports whether token was revoked individually or predates its
// owner's cutoff. Lookup errors follow the fail-open policy.
func (r *Registry) IsRevoked(ctx context.Context, token string) bool {
	revoked, err := r.check(ctx, token)
	if err != nil {
		metrics.RevocationChecks.WithLabelValues("error").Inc()
		logger.Error("revocation_check_failed", err, map[string]interface{}{
			"fail_open": r.failOpen,
		})
		return !r.failOpen
	}
	if revoked {
		metrics.RevocationChecks.WithLabelValues("revoked").Inc()
	} else {
		metrics.RevocationChecks.WithLabelValues("valid").Inc()
	}
	return revoked
}

func (r *Registry) check(ctx context.Context, token string) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	var count int64
	err := r.db.WithContext(ctx).
		Model(&models.RevokedToken{}).
		Where("token_hash = ?", utils.HashToken(token)).
		Count(&count).Error
	if err != nil {
		return false, err
	}
	if count > 0 {
		return true, nil
	}

	issuedAt, err := r.tokens.ExtractIssuedAt(token)
	if err != nil {
		// Unreadable tokens are rejected by signature validation anyway.
		return false, nil
	}
	username, err := r.tokens.ExtractUsername(token)
	if err != nil || username == "" {
		return false, nil
	}

	var cutoff models.UserTokenCutoff
	err = r.db.WithContext(ctx).Where("username = ?", username).First(&cutoff).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return !issuedAt.After(cutoff.NotBefore), nil
}

// Revoke blacklists one token until its natural expiry. Revoking the same
// token again is a no-op.
func (r *Registry) Revoke(ctx context.Context, token, username string, reason models.RevocationReason) error {
	expiresAt, err := r.tokens.ExtractExpiry(token)
	if err != nil {
		return apperrors.ErrTokenInvalid
	}

	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	record := models.RevokedToken{
		TokenHash: utils.HashToken(token),
		Username:  username,
		Reason:    reason,
		RevokedAt: r.now().UTC(),
		ExpiresAt: expiresAt.UTC(),
	}
	result := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "token_hash"}}, DoNothing: true}).
		Create(&record)
	if result.Error != nil {
		return apperrors.Internal("failed to revoke token", result.Error)
	}
	if result.RowsAffected > 0 {
		metrics.RevokedTokens.Inc()
	}

	logger.InfoWithUser(username, "token_revoked", map[string]interface{}{
		"reason": reason,
	})
	return nil
}

// RevokeAllForUser invalidates every token issued to username up to now.
// The cutoff is kept at the resolution of the iat claim, so a token minted
// in the same millisecond as the cutoff counts as revoked even when it was
// issued a moment later. It joins a transaction open on ctx.
func (r *Registry) RevokeAllForUser(ctx context.Context, username string, reason models.RevocationReason) error {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	cutoff := models.UserTokenCutoff{
		Username:  username,
		NotBefore: r.now().UTC().Truncate(jwt.TimePrecision),
		Reason:    reason,
	}
	err := store.Conn(ctx, r.db).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "username"}},
			DoUpdates: clause.AssignmentColumns([]string{"not_before", "reason", "updated_at"}),
		}).
		Create(&cutoff).Error
	if err != nil {
		return apperrors.Internal("failed to revoke user tokens", err)
	}

	logger.InfoWithUser(username, "user_tokens_revoked", map[string]interface{}{
		"reason":     reason,
		"not_before": cutoff.NotBefore,
	})
	return nil
}

// SweepExpired deletes records whose token expired strictly before now.
// Each delete is a single statement, so concurrent lookups never see a
// partial sweep.
func (r *Registry) SweepExpired(ctx context.Context, now time.Time) (int64, error) {
	result := r.db.WithContext(ctx).
		Where("expires_at < ?", now.UTC()).
		Delete(&models.RevokedToken{})
	if result.Error != nil {
		return 0, apperrors.Internal("failed to sweep revoked tokens", result.Error)
	}
	if result.RowsAffected > 0 {
		logger.Info("revoked_tokens_swept", map[string]interface{}{
			"count": result.RowsAffected,
		})
	}
	r.refreshGauge(ctx)
	return result.RowsAffected, nil
}

func (r *Registry) Count(ctx context.Context) (int64, error) {
	var count int64
	if err := r.db.WithContext(ctx).Model(&models.RevokedToken{}).Count(&count).Error; err != nil {
		return 0, apperrors.Internal("failed to count revoked tokens", err)
	}
	return count, nil
}

func (r *Registry) refreshGauge(ctx context.Context) {
	if count, err := r.Count(ctx); err == nil {
		metrics.RevokedTokens.Set(float64(count))
	}
}
