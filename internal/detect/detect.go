// Package detect computes overdue status for backup jobs. It is pure: all
// inputs come in as arguments and "now" is supplied by the caller, so the
// scheduler's clock is the only time source.
package detect

import (
	"sort"
	"time"

	"github.com/backupwatch/backupwatch/internal/domain"
)

// HistoryWindow is how many recent successful runs feed interval inference.
const HistoryWindow = 5

// Detector holds the global fallbacks applied when a job has no explicit
// schedule config.
type Detector struct {
	DefaultInterval  time.Duration // used when inference has a single data point
	DefaultTolerance time.Duration
}

// Evaluate classifies one job. successTimes must be newest first, successes
// only (the repo query guarantees both). All comparisons are done at second
// granularity.
func (d Detector) Evaluate(key domain.JobKey, cfg *domain.ScheduleConfig, successTimes []time.Time, now time.Time) domain.OverdueState {
	st := domain.OverdueState{JobKey: key}

	if cfg != nil && !cfg.Enabled {
		// Disabled schedules are never overdue regardless of timing.
		if len(successTimes) > 0 {
			st.LastSeenAt = successTimes[0].Truncate(time.Second)
		}
		return st
	}

	if len(successTimes) == 0 {
		st.NoHistory = true
		return st
	}

	last := successTimes[0].Truncate(time.Second)
	st.LastSeenAt = last

	interval := d.expectedInterval(cfg, successTimes)
	tolerance := d.DefaultTolerance
	if cfg != nil && cfg.Tolerance > 0 {
		tolerance = cfg.Tolerance
	}

	st.ExpectedAt = last.Add(interval + tolerance)
	st.IsOverdue = now.Truncate(time.Second).After(st.ExpectedAt)
	return st
}

// expectedInterval prefers the explicit config, then the median gap between
// recent successes, then the global default when only one success exists.
func (d Detector) expectedInterval(cfg *domain.ScheduleConfig, successTimes []time.Time) time.Duration {
	if cfg != nil && cfg.Interval > 0 {
		return cfg.Interval
	}
	if len(successTimes) < 2 {
		return d.DefaultInterval
	}
	n := len(successTimes)
	if n > HistoryWindow {
		n = HistoryWindow
	}
	gaps := make([]time.Duration, 0, n-1)
	for i := 0; i < n-1; i++ {
		g := successTimes[i].Sub(successTimes[i+1]).Truncate(time.Second)
		if g > 0 {
			gaps = append(gaps, g)
		}
	}
	if len(gaps) == 0 {
		return d.DefaultInterval
	}
	sort.Slice(gaps, func(i, k int) bool { return gaps[i] < gaps[k] })
	return gaps[len(gaps)/2]
}
