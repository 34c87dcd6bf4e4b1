package cache

import (
	"context"
	"fmt"

	"github.com/dmitrijs2005/pantryclient/internal/logging"
	"github.com/robfig/cron/v3"
)

// DefaultSweepSchedule runs the janitor every ten minutes.
const DefaultSweepSchedule = "@every 10m"

// Janitor periodically removes expired entries from a Store.
type Janitor struct {
	store  *Store
	cron   *cron.Cron
	logger logging.Logger
}

// NewJanitor parses schedule (standard five-field cron or a descriptor such as
// "@every 10m") and prepares the sweep job. Nothing runs until Start.
func NewJanitor(store *Store, schedule string, logger logging.Logger) (*Janitor, error) {
	if schedule == "" {
		schedule = DefaultSweepSchedule
	}
	if logger == nil {
		logger = logging.Nop()
	}

	j := &Janitor{store: store, cron: cron.New(), logger: logger}
	if _, err := j.cron.AddFunc(schedule, j.sweep); err != nil {
		return nil, fmt.Errorf("invalid sweep schedule %q: %w", schedule, err)
	}
	return j, nil
}

func (j *Janitor) Start() {
	j.cron.Start()
}

// Stop halts the schedule and waits for a running sweep to finish or ctx to end.
func (j *Janitor) Stop(ctx context.Context) {
	done := j.cron.Stop()
	select {
	case <-done.Done():
	case <-ctx.Done():
	}
}

func (j *Janitor) sweep() {
	ctx := context.Background()

	n, err := j.store.SweepExpired(ctx)
	if err != nil {
		j.logger.Error(ctx, "cache sweep failed", "error", err)
		return
	}
	if n > 0 {
		j.logger.Debug(ctx, "cache sweep", "removed", n)
	}
}
