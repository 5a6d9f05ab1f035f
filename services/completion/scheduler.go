package completion

import (
	"context"

	"lms/logger"

	"github.com/pkg/errors"
	"github.com/robfig/cron/v3"
)

// StartRetryScheduler runs RetryPending on spec, e.g. "@every 1m". Stop the
// returned cron to end it.
func StartRetryScheduler(d *Dispatcher, spec string) (*cron.Cron, error) {
	logger.Info().Str("spec", spec).Msg("[DISPATCH-SCHEDULER] Initializing completion retry scheduler")

	c := cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger)))
	_, err := c.AddFunc(spec, func() {
		n, err := d.RetryPending(context.Background(), 50)
		if err != nil {
			logger.Error().Err(err).Msg("[DISPATCH-SCHEDULER] Retry run failed")
			return
		}
		if n > 0 {
			logger.Info().Int("processed", n).Msg("[DISPATCH-SCHEDULER] Retried completion dispatches")
		}
	})
	if err != nil {
		return nil, errors.Wrapf(err, "schedule completion retries %q", spec)
	}

	c.Start()
	return c, nil
}
