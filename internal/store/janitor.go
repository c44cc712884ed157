package store

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/cmsrelay/internal/domain"
	"github.com/robfig/cron/v3"
)

// Janitor periodically purges expired AuthRequests from a StateStore
type Janitor struct {
	store    domain.StateStore
	interval time.Duration
	logger   *slog.Logger
	cron     *cron.Cron
}

// NewJanitor schedules store.Purge every interval. Call Start to begin.
func NewJanitor(store domain.StateStore, interval time.Duration, logger *slog.Logger) (*Janitor, error) {
	if interval <= 0 {
		return nil, fmt.Errorf("purge interval must be positive, got %s", interval)
	}

	j := &Janitor{
		store:    store,
		interval: interval,
		logger:   logger,
		cron:     cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger))),
	}

	if _, err := j.cron.AddFunc(fmt.Sprintf("@every %s", interval), j.RunOnce); err != nil {
		return nil, fmt.Errorf("schedule purge: %w", err)
	}
	return j, nil
}

// Start runs the schedule in its own goroutine
func (j *Janitor) Start() {
	j.logger.Info("State purge scheduled", "interval", j.interval)
	j.cron.Start()
}

// Stop stops the schedule and waits for a running purge to finish or ctx to end
func (j *Janitor) Stop(ctx context.Context) {
	done := j.cron.Stop()
	select {
	case <-done.Done():
	case <-ctx.Done():
		j.logger.Warn("State purge still running at shutdown")
	}
}

// RunOnce purges expired records now
func (j *Janitor) RunOnce() {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	removed, err := j.store.Purge(ctx)
	if err != nil {
		j.logger.Error("Failed to purge expired state", "error", err)
		return
	}
	if removed > 0 {
		j.logger.Debug("Purged expired state", "removed", removed)
	}
}
