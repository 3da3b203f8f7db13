package tracker

import (
	"context"
	"errors"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"

	"github.com/omni/tokenbridge-client/logging"
)

type job struct {
	name     string
	logger   logging.Logger
	interval time.Duration
	timeout  time.Duration
	fn       func(ctx context.Context) error
}

func (j *job) run(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}
	timeoutCtx, cancel := context.WithTimeout(ctx, j.timeout)
	defer cancel()

	start := time.Now()
	err := j.fn(timeoutCtx)
	duration := time.Since(start)
	switch {
	case err == nil:
		JobDuration.WithLabelValues(j.name, "ok").Observe(duration.Seconds())
		j.logger.WithField("duration", duration).Debug("tracker job finished")
	case errors.Is(err, ErrStopped) || errors.Is(err, context.Canceled):
		j.logger.Debug("tracker stopped, discarding job results")
	default:
		JobDuration.WithLabelValues(j.name, "error").Observe(duration.Seconds())
		j.logger.WithError(err).WithField("duration", duration).Error("failed to run tracker job")
	}
}

// schedule registers the job on c. Overlapping runs are skipped by the
// chain c was created with. cron.Every truncates the interval to whole
// seconds; config rejects anything shorter than a second.
func (j *job) schedule(ctx context.Context, c *cron.Cron) {
	c.Schedule(cron.Every(j.interval), cron.FuncJob(func() {
		j.run(ctx)
	}))
}

func newCron(logger logging.Logger) *cron.Cron {
	cronLogger := cron.PrintfLogger(logger.WithFields(logrus.Fields{"component": "cron"}))
	return cron.New(cron.WithChain(
		cron.Recover(cronLogger),
		cron.SkipIfStillRunning(cronLogger),
	))
}
