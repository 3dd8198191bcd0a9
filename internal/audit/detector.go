package audit

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/google/uuid"
	"github.com/moneymapper/authcore/internal/metrics"
	"github.com/moneymapper/authcore/internal/models"
	"github.com/moneymapper/authcore/internal/workqueue"
	apperrors "github.com/moneymapper/authcore/pkg/errors"
	"github.com/moneymapper/authcore/pkg/logger"
	"gorm.io/gorm"
)

const purgeBatchSize = 1000

// Event is one security-relevant occurrence to append to the audit trail.
type Event struct {
	Username  string
	Action    models.AuditAction
	Status    models.AuditStatus
	IPAddress string
	UserAgent string
	SessionID string
	Details   string
	Timestamp time.Time
}

// Archiver receives purged rows before they are deleted.
type Archiver interface {
	Upload(ctx context.Context, objectName string, reader io.Reader, size int64, contentType string) error
}

type Options struct {
	QueueSize int
	Workers   int
	// FailedLoginLimit and DistinctIPLimit are the anomaly thresholds
	// evaluated over Lookback.
	FailedLoginLimit int
	DistinctIPLimit  int
	Lookback         time.Duration
	Archiver         Archiver
	Clock            func() time.Time
}

// Detector appends audit events off the request path and answers the
// anomaly questions asked during login.
type Detector struct {
	db       *gorm.DB
	pool     *workqueue.Pool[models.SecurityAuditEvent]
	archiver Archiver
	now      func() time.Time

	failedLoginLimit int
	distinctIPLimit  int
	lookback         time.Duration
}

func NewDetector(db *gorm.DB, opts Options) *Detector {
	if opts.QueueSize <= 0 {
		opts.QueueSize = 1000
	}
	if opts.Workers <= 0 {
		opts.Workers = 4
	}
	if opts.FailedLoginLimit <= 0 {
		opts.FailedLoginLimit = 5
	}
	if opts.DistinctIPLimit <= 0 {
		opts.DistinctIPLimit = 3
	}
	if opts.Lookback <= 0 {
		opts.Lookback = time.Hour
	}
	if opts.Clock == nil {
		opts.Clock = time.Now
	}

	d := &Detector{
		db:               db,
		archiver:         opts.Archiver,
		now:              opts.Clock,
		failedLoginLimit: opts.FailedLoginLimit,
		distinctIPLimit:  opts.DistinctIPLimit,
		lookback:         opts.Lookback,
	}
	d.pool = workqueue.New("audit", opts.Workers, opts.QueueSize, d.write)
	return d
}

// Record queues e and returns immediately. Events for one username are
// written in the order they were recorded. A full queue drops the event.
func (d *Detector) Record(e Event) {
	if e.Timestamp.IsZero() {
		e.Timestamp = d.now()
	}
	if e.Status == "" {
		e.Status = models.StatusSuccess
	}
	row := models.SecurityAuditEvent{
		ID:        uuid.New(),
		Username:  e.Username,
		Action:    e.Action,
		Timestamp: e.Timestamp.UTC(),
		IPAddress: e.IPAddress,
		UserAgent: truncate(e.UserAgent, 500),
		SessionID: e.SessionID,
		Details:   e.Details,
		Status:    e.Status,
	}

	if !d.pool.Submit(e.Username, row) {
		metrics.AuditEvents.WithLabelValues("dropped").Inc()
	}
}

func (d *Detector) write(row models.SecurityAuditEvent) {
	if err := d.db.Create(&row).Error; err != nil {
		metrics.AuditEvents.WithLabelValues("failed").Inc()
		logger.Error("audit_log_insert_failed", err, map[string]interface{}{
			"action": row.Action,
		})
		return
	}
	metrics.AuditEvents.WithLabelValues("written").Inc()
	logger.Info("security_event", map[string]interface{}{
		"user":    logger.MaskIdentifier(row.Username),
		"action":  row.Action,
		"status":  row.Status,
		"ip":      row.IPAddress,
		"details": row.Details,
	})
}

// Flush blocks until queued events are persisted.
func (d *Detector) Flush(ctx context.Context) error {
	return d.pool.Flush(ctx)
}

func (d *Detector) Close(ctx context.Context) error {
	return d.pool.Close(ctx)
}

// IsSuspicious flags a user with too many recent failed logins, or login
// events from too many distinct addresses, inside the lookback window.
func (d *Detector) IsSuspicious(ctx context.Context, username, ip string) (bool, error) {
	since := d.now().Add(-d.lookback)

	failed, err := d.countFailedSince(ctx, username, since)
	if err != nil {
		return false, err
	}
	if failed >= int64(d.failedLoginLimit) {
		logger.WarnWithUser(username, "suspicious_failed_logins", map[string]interface{}{
			"failed": failed,
			"ip":     ip,
		})
		return true, nil
	}

	var ips []string
	err = d.db.WithContext(ctx).
		Model(&models.SecurityAuditEvent{}).
		Distinct("ip_address").
		Where("username = ? AND timestamp >= ? AND action IN ?", username, since.UTC(),
			[]models.AuditAction{models.ActionLoginSuccess, models.ActionLoginFailure}).
		Pluck("ip_address", &ips).Error
	if err != nil {
		return false, apperrors.Internal("audit query failed", err)
	}
	if len(ips) >= d.distinctIPLimit {
		logger.WarnWithUser(username, "suspicious_ip_spread", map[string]interface{}{
			"distinct_ips": len(ips),
			"ip":           ip,
		})
		return true, nil
	}
	return false, nil
}

func (d *Detector) countFailedSince(ctx context.Context, username string, since time.Time) (int64, error) {
	var count int64
	err := d.db.WithContext(ctx).
		Model(&models.SecurityAuditEvent{}).
		Where("username = ? AND action = ? AND status = ? AND timestamp >= ?",
			username, models.ActionLoginFailure, models.StatusFailure, since.UTC()).
		Count(&count).Error
	if err != nil {
		return 0, apperrors.Internal("audit query failed", err)
	}
	return count, nil
}

// FailedLoginCount counts failed logins for username over the trailing
// window.
func (d *Detector) FailedLoginCount(ctx context.Context, username string, window time.Duration) (int64, error) {
	return d.countFailedSince(ctx, username, d.now().Add(-window))
}

// RecentHistory returns up to limit events for username, newest first.
func (d *Detector) RecentHistory(ctx context.Context, username string, limit int) ([]models.SecurityAuditEvent, error) {
	if limit <= 0 || limit > 500 {
		limit = 50
	}
	var events []models.SecurityAuditEvent
	err := d.db.WithContext(ctx).
		Where("username = ?", username).
		Order("timestamp DESC").
		Limit(limit).
		Find(&events).Error
	if err != nil {
		return nil, apperrors.Internal("audit query failed", err)
	}
	return events, nil
}

// RecentEvents returns every event for username since the given time,
// oldest first.
func (d *Detector) RecentEvents(ctx context.Context, username string, since time.Time) ([]models.SecurityAuditEvent, error) {
	var events []models.SecurityAuditEvent
	err := d.db.WithContext(ctx).
		Where("username = ? AND timestamp >= ?", username, since.UTC()).
		Order("timestamp ASC").
		Find(&events).Error
	if err != nil {
		return nil, apperrors.Internal("audit query failed", err)
	}
	return events, nil
}

// PurgeOlderThan deletes events recorded before cutoff. With an archiver
// configured each batch is shipped as NDJSON first and kept if the upload
// fails.
func (d *Detector) PurgeOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	cutoff = cutoff.UTC()
	if d.archiver == nil {
		result := d.db.WithContext(ctx).Where("timestamp < ?", cutoff).Delete(&models.SecurityAuditEvent{})
		if result.Error != nil {
			return 0, apperrors.Internal("audit purge failed", result.Error)
		}
		d.logPurge(cutoff, result.RowsAffected)
		return result.RowsAffected, nil
	}

	var total int64
	for batch := 0; ; batch++ {
		var rows []models.SecurityAuditEvent
		err := d.db.WithContext(ctx).
			Where("timestamp < ?", cutoff).
			Order("timestamp ASC").
			Limit(purgeBatchSize).
			Find(&rows).Error
		if err != nil {
			return total, apperrors.Internal("audit purge query failed", err)
		}
		if len(rows) == 0 {
			break
		}

		if err := d.archive(ctx, cutoff, batch, rows); err != nil {
			return total, apperrors.Internal("audit archive failed", err)
		}

		ids := make([]uuid.UUID, len(rows))
		for i := range rows {
			ids[i] = rows[i].ID
		}
		result := d.db.WithContext(ctx).Where("id IN ?", ids).Delete(&models.SecurityAuditEvent{})
		if result.Error != nil {
			return total, apperrors.Internal("audit purge failed", result.Error)
		}
		total += result.RowsAffected
	}
	d.logPurge(cutoff, total)
	return total, nil
}

func (d *Detector) archive(ctx context.Context, cutoff time.Time, batch int, rows []models.SecurityAuditEvent) error {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	for _, row := range rows {
		if err := enc.Encode(row); err != nil {
			return err
		}
	}

	objectName := fmt.Sprintf("security-audit/%s/before-%s-%03d.ndjson",
		d.now().UTC().Format("2006/01/02"),
		cutoff.Format("20060102T150405Z"),
		batch,
	)
	return d.archiver.Upload(ctx, objectName, &buf, int64(buf.Len()), "application/x-ndjson")
}

func (d *Detector) logPurge(cutoff time.Time, count int64) {
	metrics.AuditPurged.Add(float64(count))
	logger.Info("audit_logs_purged", map[string]interface{}{
		"cutoff":   cutoff,
		"count":    count,
		"archived": d.archiver != nil,
	})
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
