package app

import (
	"context"
	"fmt"

	"github.com/robfig/cron/v3"

	appLog "discordcal/internal/log"
)

// Schedule runs RunOnce on the standard five-field cron spec until ctx is
// done. A tick that fires while the previous run is still going is skipped.
func (r *Runner) Schedule(ctx context.Context, spec string) error {
	logger := cronLogger{}
	c := cron.New(cron.WithLogger(logger), cron.WithChain(cron.SkipIfStillRunning(logger)))

	if _, err := c.AddFunc(spec, func() {
		if _, err := r.RunOnce(ctx); err != nil && ctx.Err() == nil {
			appLog.Error("scheduled refresh failed", err)
		}
	}); err != nil {
		return fmt.Errorf("invalid refresh schedule %q: %w", spec, err)
	}

	appLog.Info("refresh scheduler started", "schedule", spec)
	c.Start()
	<-ctx.Done()

	// Wait for an in-flight run to observe the cancellation.
	<-c.Stop().Done()
	appLog.Info("refresh scheduler stopped")
	return nil
}

// cronLogger routes cron's internal logging through appLog.
type cronLogger struct{}

func (cronLogger) Info(msg string, keysAndValues ...any) {
	appLog.Debug("cron: "+msg, keysAndValues...)
}

func (cronLogger) Error(err error, msg string, keysAndValues ...any) {
	appLog.Error("cron: "+msg, err, keysAndValues...)
}
