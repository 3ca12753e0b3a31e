package maintenance

import (
	"context"
	"errors"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/charlesng35/authcore/internal/otp"
	"github.com/charlesng35/authcore/pkg/logger"
)

const defaultSweepSpec = "@hourly"

// Cleaner runs the periodic sweep that removes expired one-time codes. The
// sweep only touches records that can no longer satisfy a verification, so
// it needs no coordination with request handling.
type Cleaner struct {
	otps *otp.Service
	cron *cron.Cron
	log  *zap.Logger

	sweepSchedule string
}

// Option customises the Cleaner.
type Option func(*Cleaner)

// WithCron injects a preconfigured cron instance, primarily for testing.
func WithCron(c *cron.Cron) Option {
	return func(cleaner *Cleaner) {
		if c != nil {
			cleaner.cron = c
		}
	}
}

// WithSweepSchedule overrides the cron specification for the expiry sweep.
func WithSweepSchedule(spec string) Option {
	return func(cleaner *Cleaner) {
		if spec != "" {
			cleaner.sweepSchedule = spec
		}
	}
}

// NewCleaner constructs a Cleaner for the given OTP service.
func NewCleaner(otps *otp.Service, opts ...Option) (*Cleaner, error) {
	if otps == nil {
		return nil, errors.New("cleaner: otp service is required")
	}

	cleaner := &Cleaner{
		otps:          otps,
		sweepSchedule: defaultSweepSpec,
		log:           logger.WithModule("maintenance"),
	}

	for _, opt := range opts {
		opt(cleaner)
	}

	if cleaner.cron == nil {
		cleaner.cron = cron.New(cron.WithLogger(cron.DiscardLogger))
	}

	return cleaner, nil
}

// Start registers the sweep with the cron scheduler and launches it.
func (c *Cleaner) Start() error {
	if _, err := c.cron.AddFunc(c.sweepSchedule, func() {
		start := time.Now()
		ctx := context.Background()
		deleted, err := c.otps.CleanupExpired(ctx)
		if err != nil {
			c.log.Warn("otp cleanup failed", zap.Error(err))
			return
		}
		c.log.Info("otp cleanup completed",
			zap.Int64("deleted", deleted),
			zap.Duration("elapsed", time.Since(start)))
	}); err != nil {
		return err
	}

	c.cron.Start()
	return nil
}

// Stop halts the scheduler, waiting for any running job to complete.
func (c *Cleaner) Stop() context.Context {
	if c.cron == nil {
		return context.Background()
	}
	return c.cron.Stop()
}

// RunOnce executes the sweep immediately. Used in tests and during
// graceful shutdown.
func (c *Cleaner) RunOnce(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}

	var errs error
	if _, err := c.otps.CleanupExpired(ctx); err != nil {
		errs = multierr.Append(errs, err)
	}
	return errs
}
