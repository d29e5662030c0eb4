// Package scheduler runs named recurring tasks. Each task is individually
// serialized: a tick or manual trigger that lands while the same task is
// running is skipped, never queued.
package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/sony/gobreaker"
	"go.uber.org/zap"

	"github.com/backupwatch/backupwatch/internal/domain"
	"github.com/backupwatch/backupwatch/internal/repo"
)

// TaskFunc is one pass of a task. now is the tick's single time source.
type TaskFunc func(ctx context.Context, now time.Time) error

type task struct {
	name     string
	interval time.Duration
	fn       TaskFunc
	mu       sync.Mutex // held while a run is in flight
}

type TriggerResult string

const (
	TriggerAccepted TriggerResult = "accepted"
	TriggerBusy     TriggerResult = "busy"
	TriggerUnknown  TriggerResult = "unknown_task"
)

type Scheduler struct {
	log      *zap.Logger
	taskRuns repo.TaskRunStore
	audit    repo.AuditStore

	mu        sync.Mutex
	tasks     map[string]*task
	order     []string
	startedAt time.Time
	baseCtx   context.Context
	cancel    context.CancelFunc
	wg        sync.WaitGroup

	// breaker guards store-backed task executions; repeated store failures
	// trip it and surface as degraded health instead of a crash.
	breaker *gobreaker.CircuitBreaker
}

func New(log *zap.Logger, taskRuns repo.TaskRunStore, audit repo.AuditStore) *Scheduler {
	s := &Scheduler{
		log:      log,
		taskRuns: taskRuns,
		audit:    audit,
		tasks:    make(map[string]*task),
	}
	s.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "store",
		MaxRequests: 1,
		Timeout:     time.Minute,
		ReadyToTrip: func(c gobreaker.Counts) bool { return c.ConsecutiveFailures >= 3 },
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Warn("breaker_state_changed",
				zap.String("breaker", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()),
			)
		},
	})
	return s
}

// Register adds a task. Must be called before Start; tasks cannot be removed
// at runtime.
func (s *Scheduler) Register(name string, interval time.Duration, fn TaskFunc) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tasks[name] = &task{name: name, interval: interval, fn: fn}
	s.order = append(s.order, name)
}

// Start launches one loop goroutine per registered task.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	s.startedAt = time.Now().UTC()
	s.baseCtx, s.cancel = context.WithCancel(ctx)
	tasks := make([]*task, 0, len(s.tasks))
	for _, name := range s.order {
		tasks = append(tasks, s.tasks[name])
	}
	s.mu.Unlock()

	for _, t := range tasks {
		s.wg.Add(1)
		go s.loop(s.baseCtx, t)
	}
}

// Stop admits no further ticks and waits for in-flight runs to drain, bounded
// by ctx.
func (s *Scheduler) Stop(ctx context.Context) {
	if s.cancel != nil {
		s.cancel()
	}
	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		s.log.Info("scheduler_stopped")
	case <-ctx.Done():
		s.log.Warn("scheduler_stop_timed_out")
	}
}

// loop reconciles against the persisted run record so a restart mid-interval
// does not cause an immediate duplicate run, then ticks at the interval.
func (s *Scheduler) loop(ctx context.Context, t *task) {
	defer s.wg.Done()

	delay := time.Duration(0)
	if rec, err := s.taskRuns.GetTaskRun(ctx, t.name); err == nil && rec != nil {
		if since := time.Since(rec.LastRunAt); since < t.interval {
			delay = t.interval - since
			s.log.Info("task_reconciled",
				zap.String("task", t.name),
				zap.Duration("delay", delay),
			)
		}
	}

	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return
	case <-timer.C:
		s.tryRun(ctx, t, "tick")
	}

	ticker := time.NewTicker(t.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.tryRun(ctx, t, "tick")
		}
	}
}

// tryRun executes the task if it is idle; an in-flight run makes this tick a
// logged, audited skip.
func (s *Scheduler) tryRun(ctx context.Context, t *task, origin string) {
	if !t.mu.TryLock() {
		s.log.Warn("task_skipped_busy", zap.String("task", t.name), zap.String("origin", origin))
		_ = s.audit.Append(ctx, domain.AuditEntry{
			At:      time.Now().UTC(),
			Action:  domain.AuditTaskSkippedBusy,
			Outcome: "skipped",
			Detail:  fmt.Sprintf("task=%s origin=%s", t.name, origin),
		})
		return
	}
	defer t.mu.Unlock()
	s.execute(ctx, t, origin)
}

func (s *Scheduler) execute(ctx context.Context, t *task, origin string) {
	start := time.Now().UTC()

	_, err := s.breaker.Execute(func() (interface{}, error) {
		return nil, t.fn(ctx, start)
	})

	status := domain.TaskOK
	outcome := "ok"
	if err != nil {
		status = domain.TaskFailed
		outcome = "failed"
		s.log.Error("task_run_failed",
			zap.String("task", t.name),
			zap.String("origin", origin),
			zap.Error(err),
		)
	}
	dur := time.Since(start)

	rec := domain.TaskRunRecord{
		TaskName:          t.name,
		LastRunAt:         start,
		LastRunStatus:     status,
		LastRunDurationMS: dur.Milliseconds(),
	}
	if serr := s.taskRuns.SetTaskRun(ctx, rec); serr != nil {
		s.log.Error("task_record_write_failed", zap.String("task", t.name), zap.Error(serr))
	}
	_ = s.audit.Append(ctx, domain.AuditEntry{
		At:      time.Now().UTC(),
		Action:  domain.AuditTaskRunCompleted,
		Outcome: outcome,
		Detail:  fmt.Sprintf("task=%s origin=%s duration_ms=%d", t.name, origin, dur.Milliseconds()),
	})

	s.log.Info("task_run_completed",
		zap.String("task", t.name),
		zap.String("origin", origin),
		zap.String("status", string(status)),
		zap.Duration("duration", dur),
	)
}

// Trigger starts a manual out-of-band run. It returns immediately; a run
// already in flight yields busy rather than queueing.
func (s *Scheduler) Trigger(name string) TriggerResult {
	s.mu.Lock()
	t := s.tasks[name]
	ctx := s.baseCtx
	s.mu.Unlock()

	if t == nil {
		return TriggerUnknown
	}
	if ctx == nil || ctx.Err() != nil {
		return TriggerBusy
	}
	if !t.mu.TryLock() {
		_ = s.audit.Append(ctx, domain.AuditEntry{
			At:      time.Now().UTC(),
			Action:  domain.AuditTaskSkippedBusy,
			Outcome: "rejected",
			Detail:  fmt.Sprintf("task=%s origin=manual", name),
		})
		return TriggerBusy
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer t.mu.Unlock()
		s.execute(ctx, t, "manual")
	}()
	return TriggerAccepted
}

// TaskInfo is one row of the control API's status response.
type TaskInfo struct {
	Name              string            `json:"name"`
	Interval          time.Duration     `json:"interval"`
	LastRunAt         *time.Time        `json:"last_run_at"`
	LastRunStatus     domain.TaskStatus `json:"last_run_status,omitempty"`
	LastRunDurationMS int64             `json:"last_run_duration_ms"`
	Enabled           bool              `json:"enabled"`
}

// Status reads the persisted run records for every registered task.
func (s *Scheduler) Status(ctx context.Context) ([]TaskInfo, error) {
	s.mu.Lock()
	names := append([]string(nil), s.order...)
	s.mu.Unlock()

	out := make([]TaskInfo, 0, len(names))
	for _, name := range names {
		s.mu.Lock()
		t := s.tasks[name]
		s.mu.Unlock()

		info := TaskInfo{Name: name, Interval: t.interval, Enabled: true}
		rec, err := s.taskRuns.GetTaskRun(ctx, name)
		if err != nil {
			return nil, fmt.Errorf("task run record %s: %w", name, err)
		}
		if rec != nil {
			at := rec.LastRunAt
			info.LastRunAt = &at
			info.LastRunStatus = rec.LastRunStatus
			info.LastRunDurationMS = rec.LastRunDurationMS
		}
		out = append(out, info)
	}
	return out, nil
}

// Uptime is how long the scheduler has been started.
func (s *Scheduler) Uptime() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.startedAt.IsZero() {
		return 0
	}
	return time.Since(s.startedAt)
}

// Degraded reports whether the store breaker is open, for the health endpoint.
func (s *Scheduler) Degraded() bool {
	return s.breaker.State() != gobreaker.StateClosed
}
