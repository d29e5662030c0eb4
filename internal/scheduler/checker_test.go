package scheduler

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/backupwatch/backupwatch/internal/domain"
	"github.com/backupwatch/backupwatch/internal/notify"
	"github.com/backupwatch/backupwatch/internal/repo/memory"
)

var base = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

// countChannel succeeds after failFirst failures, counting sends.
type countChannel struct {
	mu        sync.Mutex
	sent      int
	failFirst int
}

func (c *countChannel) Name() string             { return "ops" }
func (c *countChannel) Kind() notify.ChannelKind { return notify.KindPush }
func (c *countChannel) Send(ctx context.Context, a notify.Alert) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sent++
	if c.sent <= c.failFirst {
		return errors.New("connection refused")
	}
	return nil
}

func (c *countChannel) delivered() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.sent <= c.failFirst {
		return 0
	}
	return c.sent - c.failFirst
}

func newChecker(store *memory.Store, ch notify.Channel, cfg CheckerConfig) *Checker {
	d := notify.NewDispatcher([]notify.Channel{ch}, zap.NewNop(), notify.DispatcherConfig{
		SendTimeout:    time.Second,
		MaxAttempts:    3,
		InitialBackoff: time.Millisecond,
	})
	if cfg.DefaultInterval == 0 {
		cfg.DefaultInterval = 24 * time.Hour
	}
	if cfg.DefaultTolerance == 0 {
		cfg.DefaultTolerance = time.Hour
	}
	return NewChecker(zap.NewNop(), store, store, store, store, d, cfg)
}

func seedOverdueJob(store *memory.Store, lastSuccess time.Time) domain.BackupJob {
	job := domain.BackupJob{ServerID: "srv-01", JobName: "nightly", Key: "srv-01/nightly"}
	store.AddJob(job)
	store.AddRun(domain.JobRun{JobKey: job.Key, Status: domain.RunSuccess, StartedAt: lastSuccess})
	return job
}

func countAudit(store *memory.Store, action string) int {
	n := 0
	for _, e := range store.AuditEntries() {
		if e.Action == action {
			n++
		}
	}
	return n
}

// Two ticks 5 minutes apart over a continuously overdue job: one notification,
// detection audited each tick.
func TestChecker_OneNotificationPerEpisode(t *testing.T) {
	store := memory.New()
	ch := &countChannel{}
	c := newChecker(store, ch, CheckerConfig{})
	seedOverdueJob(store, base.Add(-30*time.Hour))

	if err := c.Run(context.Background(), base); err != nil {
		t.Fatal(err)
	}
	if err := c.Run(context.Background(), base.Add(5*time.Minute)); err != nil {
		t.Fatal(err)
	}

	if ch.delivered() != 1 {
		t.Fatalf("want exactly 1 notification, got %d", ch.delivered())
	}
	if got := countAudit(store, domain.AuditNotificationSent); got != 1 {
		t.Fatalf("want 1 sent audit entry, got %d", got)
	}
	if got := countAudit(store, domain.AuditOverdueDetected); got != 2 {
		t.Fatalf("want detection audited each tick, got %d", got)
	}
}

func TestChecker_IdempotentSameNow(t *testing.T) {
	store := memory.New()
	ch := &countChannel{}
	c := newChecker(store, ch, CheckerConfig{})
	job := seedOverdueJob(store, base.Add(-30*time.Hour))

	if err := c.Run(context.Background(), base); err != nil {
		t.Fatal(err)
	}
	rec1, _ := store.GetEpisode(context.Background(), job.Key)

	if err := c.Run(context.Background(), base); err != nil {
		t.Fatal(err)
	}
	rec2, _ := store.GetEpisode(context.Background(), job.Key)

	if ch.delivered() != 1 {
		t.Fatalf("rerun with identical now must not dispatch again, got %d", ch.delivered())
	}
	if !rec1.EpisodeStartedAt.Equal(*rec2.EpisodeStartedAt) || !rec1.NotifiedAt.Equal(*rec2.NotifiedAt) {
		t.Fatalf("episode state changed on identical rerun: %+v vs %+v", rec1, rec2)
	}
}

func TestChecker_RecoveryClearsAndNotifiesOnce(t *testing.T) {
	store := memory.New()
	ch := &countChannel{}
	c := newChecker(store, ch, CheckerConfig{NotifyOnRecovery: true})
	job := seedOverdueJob(store, base.Add(-30*time.Hour))

	if err := c.Run(context.Background(), base); err != nil {
		t.Fatal(err)
	}
	// new successful run arrives
	store.AddRun(domain.JobRun{JobKey: job.Key, Status: domain.RunSuccess, StartedAt: base.Add(time.Hour)})

	if err := c.Run(context.Background(), base.Add(2*time.Hour)); err != nil {
		t.Fatal(err)
	}
	if err := c.Run(context.Background(), base.Add(3*time.Hour)); err != nil {
		t.Fatal(err)
	}

	rec, _ := store.GetEpisode(context.Background(), job.Key)
	if rec.Opened() {
		t.Fatal("episode must be cleared after recovery")
	}
	// 1 overdue + 1 recovery notice, nothing on the third tick
	if ch.delivered() != 2 {
		t.Fatalf("want overdue + one recovery notice, got %d", ch.delivered())
	}
	if got := countAudit(store, domain.AuditOverdueRecovered); got != 1 {
		t.Fatalf("want 1 recovered audit entry, got %d", got)
	}
}

func TestChecker_FailedDispatchRetriedNextTickSameEpisode(t *testing.T) {
	store := memory.New()
	ch := &countChannel{failFirst: 3} // exhausts the 3 within-tick attempts
	c := newChecker(store, ch, CheckerConfig{})
	job := seedOverdueJob(store, base.Add(-30*time.Hour))

	if err := c.Run(context.Background(), base); err != nil {
		t.Fatal(err)
	}
	rec, _ := store.GetEpisode(context.Background(), job.Key)
	if !rec.Opened() {
		t.Fatal("episode must open even when dispatch fails")
	}
	if rec.NotifiedAt != nil {
		t.Fatal("notifiedAt must stay unset after failed dispatch")
	}
	if got := countAudit(store, domain.AuditNotificationFailed); got != 1 {
		t.Fatalf("want failed audit entry, got %d", got)
	}
	started := *rec.EpisodeStartedAt

	// next tick retries delivery, now succeeding, without a new episode
	if err := c.Run(context.Background(), base.Add(5*time.Minute)); err != nil {
		t.Fatal(err)
	}
	rec, _ = store.GetEpisode(context.Background(), job.Key)
	if rec.NotifiedAt == nil {
		t.Fatal("retry must set notifiedAt")
	}
	if !rec.EpisodeStartedAt.Equal(started) {
		t.Fatal("retry must not open a new episode")
	}
	if ch.delivered() != 1 {
		t.Fatalf("want 1 delivered, got %d", ch.delivered())
	}
}

func TestChecker_EscalationResends(t *testing.T) {
	store := memory.New()
	ch := &countChannel{}
	c := newChecker(store, ch, CheckerConfig{Escalation: 4 * time.Hour})
	seedOverdueJob(store, base.Add(-30*time.Hour))

	if err := c.Run(context.Background(), base); err != nil {
		t.Fatal(err)
	}
	// inside the escalation window: nothing
	if err := c.Run(context.Background(), base.Add(time.Hour)); err != nil {
		t.Fatal(err)
	}
	if ch.delivered() != 1 {
		t.Fatalf("escalation must not fire early, got %d", ch.delivered())
	}
	// past it: re-alert
	if err := c.Run(context.Background(), base.Add(5*time.Hour)); err != nil {
		t.Fatal(err)
	}
	if ch.delivered() != 2 {
		t.Fatalf("want escalation re-alert, got %d", ch.delivered())
	}
}

func TestChecker_NoHistoryNeverNotifies(t *testing.T) {
	store := memory.New()
	ch := &countChannel{}
	c := newChecker(store, ch, CheckerConfig{})
	store.AddJob(domain.BackupJob{ServerID: "srv-02", JobName: "fresh", Key: "srv-02/fresh"})

	if err := c.Run(context.Background(), base); err != nil {
		t.Fatal(err)
	}
	if ch.sent != 0 {
		t.Fatalf("job without history must not notify, got %d", ch.sent)
	}
}

func TestChecker_DisabledScheduleNeverNotifies(t *testing.T) {
	store := memory.New()
	ch := &countChannel{}
	c := newChecker(store, ch, CheckerConfig{})
	job := seedOverdueJob(store, base.Add(-300*time.Hour))
	store.SetSchedule(domain.ScheduleConfig{JobKey: job.Key, Interval: time.Hour, Enabled: false})

	if err := c.Run(context.Background(), base); err != nil {
		t.Fatal(err)
	}
	if ch.sent != 0 {
		t.Fatalf("disabled schedule must not notify, got %d", ch.sent)
	}
}
