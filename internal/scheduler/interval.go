package scheduler

import (
	"context"
	"time"

	"riptide/internal/logger"
)

// IntervalLoop runs a task on a fixed cadence until the context is done.
// Ticks are cooperative: a slow task delays the next run rather than
// overlapping with it.
type IntervalLoop struct {
	Name           string
	Interval       time.Duration
	RunImmediately bool
}

func NewIntervalLoop(name string, interval time.Duration) *IntervalLoop {
	return &IntervalLoop{Name: name, Interval: interval}
}

// Start blocks, executing task every Interval. Returns when ctx is done.
func (l *IntervalLoop) Start(ctx context.Context, task func()) {
	if l == nil || task == nil {
		return
	}
	if l.Interval <= 0 {
		logger.Warnf("scheduler %s: invalid interval=%s, not starting", l.Name, l.Interval)
		return
	}
	logger.Infof("scheduler %s: started interval=%s", l.Name, l.Interval)

	if l.RunImmediately {
		task()
	}

	ticker := time.NewTicker(l.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			logger.Infof("scheduler %s: ctx done, exit", l.Name)
			return
		case <-ticker.C:
			task()
		}
	}
}
