package maintenance

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/multierr"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/crewdeckhq/crewdeck/internal/cache"
	"github.com/crewdeckhq/crewdeck/internal/models"
	"github.com/crewdeckhq/crewdeck/internal/saga"
	"github.com/crewdeckhq/crewdeck/internal/services"
	"github.com/crewdeckhq/crewdeck/pkg/logger"
)

const (
	defaultAuditRetentionDays   = 90
	defaultRequestRetentionDays = 30
	defaultLeaseSpec            = "@hourly"
	defaultCacheSpec            = "@hourly"
	defaultAuditSpec            = "@daily"
	defaultRequestSpec          = "@daily"
)

// Cleaner coordinates background maintenance tasks: reclaiming expired saga
// leases, pruning stale audit logs, expiring cache rows, and removing
// long-reviewed onboarding requests.
type Cleaner struct {
	db               *gorm.DB
	leases           saga.LeaseStore
	audit            *services.AuditService
	store            *cache.DatabaseStore
	cron             *cron.Cron
	now              func() time.Time
	log              *zap.Logger
	enabled          bool
	auditRetention   int
	requestRetention int

	leaseSchedule   string
	auditSchedule   string
	requestSchedule string
	cacheSchedule   string
}

// Option customises the Cleaner.
type Option func(*Cleaner)

// WithCacheStore enables purging of expired database cache rows.
func WithCacheStore(store *cache.DatabaseStore) Option {
	return func(cleaner *Cleaner) {
		cleaner.store = store
	}
}

// WithCron injects a preconfigured cron instance, primarily for testing.
func WithCron(c *cron.Cron) Option {
	return func(cleaner *Cleaner) {
		if c != nil {
			cleaner.cron = c
		}
	}
}

// WithNow overrides the clock used for scheduling and cleanup comparisons.
func WithNow(now func() time.Time) Option {
	return func(cleaner *Cleaner) {
		if now != nil {
			cleaner.now = now
		}
	}
}

// WithAuditRetentionDays adjusts how long audit logs are retained before cleanup.
func WithAuditRetentionDays(days int) Option {
	return func(cleaner *Cleaner) {
		if days > 0 {
			cleaner.auditRetention = days
		}
	}
}

// WithRequestRetentionDays adjusts how long reviewed onboarding requests are kept.
func WithRequestRetentionDays(days int) Option {
	return func(cleaner *Cleaner) {
		if days > 0 {
			cleaner.requestRetention = days
		}
	}
}

// WithLeaseSchedule overrides the cron specification for lease reclamation.
func WithLeaseSchedule(spec string) Option {
	return func(cleaner *Cleaner) {
		if spec != "" {
			cleaner.leaseSchedule = spec
		}
	}
}

// WithAuditSchedule overrides the cron specification for audit retention enforcement.
func WithAuditSchedule(spec string) Option {
	return func(cleaner *Cleaner) {
		if spec != "" {
			cleaner.auditSchedule = spec
		}
	}
}

// WithRequestSchedule overrides the cron specification for request cleanup.
func WithRequestSchedule(spec string) Option {
	return func(cleaner *Cleaner) {
		if spec != "" {
			cleaner.requestSchedule = spec
		}
	}
}

// NewCleaner constructs a Cleaner with sensible defaults. Any nil dependency results in
// the corresponding cleanup job being skipped.
func NewCleaner(db *gorm.DB, leases saga.LeaseStore, audit *services.AuditService, opts ...Option) *Cleaner {
	cleaner := &Cleaner{
		db:               db,
		leases:           leases,
		audit:            audit,
		now:              time.Now,
		auditRetention:   defaultAuditRetentionDays,
		requestRetention: defaultRequestRetentionDays,
		leaseSchedule:    defaultLeaseSpec,
		auditSchedule:    defaultAuditSpec,
		requestSchedule:  defaultRequestSpec,
		cacheSchedule:    defaultCacheSpec,
		log:              logger.WithModule("maintenance"),
	}

	for _, opt := range opts {
		opt(cleaner)
	}

	if cleaner.cron == nil {
		cleaner.cron = cron.New(cron.WithLogger(cron.DiscardLogger))
	}

	cleaner.enabled = cleaner.leases != nil || cleaner.audit != nil || cleaner.db != nil || cleaner.store != nil

	return cleaner
}

// Start registers cleanup jobs with the cron scheduler and launches it if at least one cleanup is enabled.
func (c *Cleaner) Start() error {
	if !c.enabled {
		return nil
	}

	if c.leases != nil {
		if _, err := c.cron.AddFunc(c.leaseSchedule, func() {
			ctx := context.Background()
			if _, err := c.leases.PurgeExpired(ctx); err != nil {
				c.log.Warn("lease cleanup failed", zap.Error(err))
			}
		}); err != nil {
			return err
		}
	}

	if c.store != nil {
		if _, err := c.cron.AddFunc(c.cacheSchedule, func() {
			ctx := context.Background()
			if _, err := c.store.PurgeExpired(ctx); err != nil {
				c.log.Warn("cache cleanup failed", zap.Error(err))
			}
		}); err != nil {
			return err
		}
	}

	if c.audit != nil && c.auditRetention > 0 {
		if _, err := c.cron.AddFunc(c.auditSchedule, func() {
			ctx := context.Background()
			if _, err := c.audit.CleanupOlderThan(ctx, c.auditRetention); err != nil {
				c.log.Warn("audit cleanup failed", zap.Error(err))
			}
		}); err != nil {
			return err
		}
	}

	if c.db != nil && c.requestRetention > 0 {
		if _, err := c.cron.AddFunc(c.requestSchedule, func() {
			ctx := context.Background()
			cutoff := c.now().AddDate(0, 0, -c.requestRetention)
			if _, err := PurgeReviewedRequests(ctx, c.db, cutoff); err != nil {
				c.log.Warn("request cleanup failed", zap.Error(err))
			}
		}); err != nil {
			return err
		}
	}

	c.cron.Start()
	return nil
}

// Stop halts the underlying scheduler, waiting for any running jobs to complete.
func (c *Cleaner) Stop() context.Context {
	if c.cron == nil {
		return context.Background()
	}
	return c.cron.Stop()
}

// RunOnce executes all configured cleanup routines sequentially. Primarily used in tests
// and during graceful shutdown.
func (c *Cleaner) RunOnce(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}

	var errs error

	if c.leases != nil {
		if _, err := c.leases.PurgeExpired(ctx); err != nil {
			errs = multierr.Append(errs, err)
		}
	}

	if c.store != nil {
		if _, err := c.store.PurgeExpired(ctx); err != nil {
			errs = multierr.Append(errs, err)
		}
	}

	if c.audit != nil && c.auditRetention > 0 {
		if _, err := c.audit.CleanupOlderThan(ctx, c.auditRetention); err != nil {
			errs = multierr.Append(errs, err)
		}
	}

	if c.db != nil && c.requestRetention > 0 {
		cutoff := c.now().AddDate(0, 0, -c.requestRetention)
		if _, err := PurgeReviewedRequests(ctx, c.db, cutoff); err != nil {
			errs = multierr.Append(errs, err)
		}
	}

	return errs
}

// PurgeReviewedRequests deletes approved and rejected onboarding requests
// reviewed before cutoff. Pending requests are never touched.
func PurgeReviewedRequests(ctx context.Context, db *gorm.DB, cutoff time.Time) (int64, error) {
	res := db.WithContext(ctx).
		Where("status IN ? AND reviewed_at IS NOT NULL AND reviewed_at < ?",
			[]models.RequestStatus{models.RequestApproved, models.RequestRejected}, cutoff).
		Delete(&models.OnboardingRequest{})
	return res.RowsAffected, res.Error
}
