package scheduler

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/backupwatch/backupwatch/internal/detect"
	"github.com/backupwatch/backupwatch/internal/domain"
	"github.com/backupwatch/backupwatch/internal/episode"
	"github.com/backupwatch/backupwatch/internal/notify"
	"github.com/backupwatch/backupwatch/internal/repo"
)

// TaskOverdueCheck is the name the overdue-check task registers under.
const TaskOverdueCheck = "overdue_check"

type CheckerConfig struct {
	DefaultInterval  time.Duration
	DefaultTolerance time.Duration
	Escalation       time.Duration // global fallback, per-job config wins
	NotifyOnRecovery bool
}

// Checker runs one overdue-detection pass per tick: read history, evaluate,
// transition episodes, dispatch, audit.
type Checker struct {
	log        *zap.Logger
	jobs       repo.JobStore
	schedules  repo.ScheduleStore
	episodes   repo.EpisodeStore
	audit      repo.AuditStore
	dispatcher *notify.Dispatcher
	det        detect.Detector
	cfg        CheckerConfig
}

func NewChecker(
	log *zap.Logger,
	jobs repo.JobStore,
	schedules repo.ScheduleStore,
	episodes repo.EpisodeStore,
	audit repo.AuditStore,
	dispatcher *notify.Dispatcher,
	cfg CheckerConfig,
) *Checker {
	return &Checker{
		log:        log,
		jobs:       jobs,
		schedules:  schedules,
		episodes:   episodes,
		audit:      audit,
		dispatcher: dispatcher,
		det:        detect.Detector{DefaultInterval: cfg.DefaultInterval, DefaultTolerance: cfg.DefaultTolerance},
		cfg:        cfg,
	}
}

// Run is the TaskFunc. Any store error aborts the whole pass; the scheduler
// records the failed run and the next tick retries with the store hopefully
// recovered.
func (c *Checker) Run(ctx context.Context, now time.Time) error {
	jobs, err := c.jobs.ListJobs(ctx)
	if err != nil {
		return fmt.Errorf("list jobs: %w", err)
	}

	var overdue, dispatched, recovered int
	for _, job := range jobs {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		st, cfg, err := c.evaluate(ctx, job, now)
		if err != nil {
			return err
		}
		if st.NoHistory {
			c.log.Debug("job_no_history_skipped", zap.String("job", string(job.Key)))
			continue
		}
		if st.IsOverdue {
			overdue++
		}

		d, r, err := c.apply(ctx, job, st, cfg, now)
		if err != nil {
			return err
		}
		dispatched += d
		recovered += r
	}

	c.log.Info("overdue_check_completed",
		zap.Int("jobs", len(jobs)),
		zap.Int("overdue", overdue),
		zap.Int("dispatched", dispatched),
		zap.Int("recovered", recovered),
	)
	return nil
}

func (c *Checker) evaluate(ctx context.Context, job domain.BackupJob, now time.Time) (domain.OverdueState, *domain.ScheduleConfig, error) {
	cfg, err := c.schedules.GetSchedule(ctx, job.Key)
	if err != nil {
		return domain.OverdueState{}, nil, fmt.Errorf("schedule %s: %w", job.Key, err)
	}
	times, err := c.jobs.SuccessTimes(ctx, job.Key, detect.HistoryWindow+1)
	if err != nil {
		return domain.OverdueState{}, nil, fmt.Errorf("history %s: %w", job.Key, err)
	}
	return c.det.Evaluate(job.Key, cfg, times, now), cfg, nil
}

// apply drives the episode state machine for one job. Returns how many alerts
// were dispatched and whether the job recovered.
func (c *Checker) apply(ctx context.Context, job domain.BackupJob, st domain.OverdueState, cfg *domain.ScheduleConfig, now time.Time) (dispatched, recovered int, err error) {
	rec, err := c.episodes.GetEpisode(ctx, job.Key)
	if err != nil {
		return 0, 0, fmt.Errorf("episode %s: %w", job.Key, err)
	}

	pol := episode.Policy{Escalation: c.cfg.Escalation, NotifyOnRecovery: c.cfg.NotifyOnRecovery}
	var channels []string
	if cfg != nil {
		if cfg.Escalation > 0 {
			pol.Escalation = cfg.Escalation
		}
		pol.NotifyOnRecovery = cfg.NotifyOnRecovery
		channels = cfg.Channels
	}

	action := episode.Decide(rec, st, pol, now)
	switch action {
	case episode.OpenAndNotify:
		// Dispatch is attempted first; the episode opens regardless of the
		// outcome, and notifiedAt stays unset on failure so the next tick
		// retries delivery without opening a second episode.
		res := c.dispatcher.Dispatch(ctx, c.alert(notify.AlertOverdue, job, st, now), channels)
		if err := c.episodes.Open(ctx, job.Key, now, c.entry(domain.AuditOverdueDetected, job.Key, "overdue", st)); err != nil {
			return 0, 0, fmt.Errorf("open episode %s: %w", job.Key, err)
		}
		return c.settle(ctx, job.Key, st, res, now)

	case episode.RetryNotify:
		res := c.dispatcher.Dispatch(ctx, c.alert(notify.AlertOverdue, job, st, now), channels)
		if err := c.audit.Append(ctx, c.entry(domain.AuditOverdueDetected, job.Key, "still_overdue", st)); err != nil {
			return 0, 0, fmt.Errorf("audit %s: %w", job.Key, err)
		}
		return c.settle(ctx, job.Key, st, res, now)

	case episode.Escalate:
		res := c.dispatcher.Dispatch(ctx, c.alert(notify.AlertEscalation, job, st, now), channels)
		if err := c.audit.Append(ctx, c.entry(domain.AuditOverdueDetected, job.Key, "escalated", st)); err != nil {
			return 0, 0, fmt.Errorf("audit %s: %w", job.Key, err)
		}
		return c.settle(ctx, job.Key, st, res, now)

	case episode.ClearAndNotify:
		if err := c.episodes.Clear(ctx, job.Key, c.entry(domain.AuditOverdueRecovered, job.Key, "recovered", st)); err != nil {
			return 0, 0, fmt.Errorf("clear episode %s: %w", job.Key, err)
		}
		res := c.dispatcher.Dispatch(ctx, c.alert(notify.AlertRecovery, job, st, now), channels)
		if !res.Delivered {
			// Recovery notice is best effort; the episode stays closed.
			_ = c.audit.Append(ctx, domain.AuditEntry{
				At: now, Action: domain.AuditNotificationFailed, JobKey: job.Key,
				Outcome: "failed", Detail: "recovery notice: " + errDetail(res),
			})
			return 0, 1, nil
		}
		return 1, 1, nil

	case episode.ClearQuiet:
		if err := c.episodes.Clear(ctx, job.Key, c.entry(domain.AuditOverdueRecovered, job.Key, "recovered_quiet", st)); err != nil {
			return 0, 0, fmt.Errorf("clear episode %s: %w", job.Key, err)
		}
		return 0, 1, nil

	default:
		if st.IsOverdue {
			// Still open and already notified: detection is logged each tick,
			// dispatch only once per episode.
			if err := c.audit.Append(ctx, c.entry(domain.AuditOverdueDetected, job.Key, "still_open", st)); err != nil {
				return 0, 0, fmt.Errorf("audit %s: %w", job.Key, err)
			}
		}
		return 0, 0, nil
	}
}

// settle records the dispatch outcome for an overdue alert: notifiedAt is set
// only on delivery, so failures re-arm the next tick.
func (c *Checker) settle(ctx context.Context, key domain.JobKey, st domain.OverdueState, res notify.Result, now time.Time) (int, int, error) {
	if res.Delivered {
		if err := c.episodes.MarkNotified(ctx, key, now, domain.AuditEntry{
			At: now, Action: domain.AuditNotificationSent, JobKey: key,
			Outcome: "sent", Detail: outcomeDetail(res),
		}); err != nil {
			return 0, 0, fmt.Errorf("mark notified %s: %w", key, err)
		}
		return 1, 0, nil
	}
	if err := c.audit.Append(ctx, domain.AuditEntry{
		At: now, Action: domain.AuditNotificationFailed, JobKey: key,
		Outcome: "failed", Detail: errDetail(res),
	}); err != nil {
		return 0, 0, fmt.Errorf("audit %s: %w", key, err)
	}
	return 0, 0, nil
}

func (c *Checker) alert(kind notify.AlertKind, job domain.BackupJob, st domain.OverdueState, now time.Time) notify.Alert {
	return notify.Alert{
		Kind:       kind,
		JobKey:     job.Key,
		ServerID:   job.ServerID,
		JobName:    job.JobName,
		LastSeenAt: st.LastSeenAt,
		ExpectedAt: st.ExpectedAt,
		At:         now,
	}
}

func (c *Checker) entry(action string, key domain.JobKey, outcome string, st domain.OverdueState) domain.AuditEntry {
	return domain.AuditEntry{
		At:      time.Now().UTC(),
		Action:  action,
		JobKey:  key,
		Outcome: outcome,
		Detail:  fmt.Sprintf("expected_at=%s last_seen=%s", st.ExpectedAt.Format(time.RFC3339), st.LastSeenAt.Format(time.RFC3339)),
	}
}

func outcomeDetail(res notify.Result) string {
	s := ""
	for _, o := range res.Outcomes {
		if s != "" {
			s += ", "
		}
		state := "ok"
		if o.Err != nil {
			state = "failed"
		}
		s += fmt.Sprintf("%s=%s attempts=%d", o.Channel, state, o.Attempts)
	}
	return s
}

func errDetail(res notify.Result) string {
	if err := res.Err(); err != nil {
		return err.Error()
	}
	return "no channels configured"
}
