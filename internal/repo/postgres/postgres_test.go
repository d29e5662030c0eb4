package postgres

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/backupwatch/backupwatch/internal/domain"
)

// Minimal schema so the test can run on a fresh DB/volume. The read-side
// tables exist here only because the web process is absent in CI.
const schemaSQL = `
CREATE TABLE IF NOT EXISTS backup_jobs (
  job_key    TEXT PRIMARY KEY,
  server_id  TEXT NOT NULL,
  job_name   TEXT NOT NULL,
  created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS backup_runs (
  id          BIGSERIAL PRIMARY KEY,
  job_key     TEXT NOT NULL REFERENCES backup_jobs(job_key) ON DELETE CASCADE,
  status      TEXT NOT NULL,
  started_at  TIMESTAMPTZ NOT NULL,
  duration_ms BIGINT NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS schedule_configs (
  job_key            TEXT PRIMARY KEY,
  interval_seconds   BIGINT NOT NULL DEFAULT 0,
  tolerance_seconds  BIGINT NOT NULL DEFAULT 0,
  escalation_seconds BIGINT NOT NULL DEFAULT 0,
  enabled            BOOLEAN NOT NULL DEFAULT true,
  notify_on_recovery BOOLEAN NOT NULL DEFAULT true,
  channels           TEXT[] NOT NULL DEFAULT '{}'
);

CREATE TABLE IF NOT EXISTS notification_records (
  job_key            TEXT PRIMARY KEY,
  episode_started_at TIMESTAMPTZ,
  notified_at        TIMESTAMPTZ
);

CREATE TABLE IF NOT EXISTS task_runs (
  task_name            TEXT PRIMARY KEY,
  last_run_at          TIMESTAMPTZ NOT NULL,
  last_run_status      TEXT NOT NULL,
  last_run_duration_ms BIGINT NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS audit_log (
  id      BIGSERIAL PRIMARY KEY,
  at      TIMESTAMPTZ NOT NULL,
  action  TEXT NOT NULL,
  job_key TEXT,
  outcome TEXT NOT NULL,
  detail  TEXT NOT NULL DEFAULT ''
);
`

func ensureSchema(t *testing.T, dsn string) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		t.Fatalf("pgxpool.New: %v", err)
	}
	defer pool.Close()
	if _, err := pool.Exec(ctx, schemaSQL); err != nil {
		t.Fatalf("apply schema: %v", err)
	}
}

func TestPostgresStore_EpisodeLifecycle(t *testing.T) {
	dsn := os.Getenv("DATABASE_URL")
	if dsn == "" {
		t.Skip("DATABASE_URL not set; skipping Postgres integration test")
	}

	ensureSchema(t, dsn)

	ctx := context.Background()
	store, err := New(ctx, dsn, zap.NewNop())
	if err != nil {
		t.Fatalf("New store: %v", err)
	}
	defer store.Close()

	// Unique key per run to avoid collisions with earlier test data.
	key := domain.JobKey(fmt.Sprintf("srv-test/job-%d", time.Now().UTC().UnixNano()))

	// none yet
	rec, err := store.GetEpisode(ctx, key)
	if err != nil || rec != nil {
		t.Fatalf("expected nil, got %+v err=%v", rec, err)
	}

	now := time.Now().UTC().Truncate(time.Second)
	entry := domain.AuditEntry{At: now, Action: domain.AuditOverdueDetected, JobKey: key, Outcome: "overdue"}
	if err := store.Open(ctx, key, now, entry); err != nil {
		t.Fatalf("open: %v", err)
	}
	rec, err = store.GetEpisode(ctx, key)
	if err != nil || rec == nil || rec.EpisodeStartedAt == nil || rec.NotifiedAt != nil {
		t.Fatalf("after open: %+v err=%v", rec, err)
	}

	entry.Action = domain.AuditNotificationSent
	if err := store.MarkNotified(ctx, key, now, entry); err != nil {
		t.Fatalf("mark notified: %v", err)
	}
	rec, _ = store.GetEpisode(ctx, key)
	if rec.NotifiedAt == nil {
		t.Fatalf("notified_at not set: %+v", rec)
	}

	entry.Action = domain.AuditOverdueRecovered
	if err := store.Clear(ctx, key, entry); err != nil {
		t.Fatalf("clear: %v", err)
	}
	rec, _ = store.GetEpisode(ctx, key)
	if rec == nil || rec.Opened() || rec.NotifiedAt != nil {
		t.Fatalf("after clear: %+v", rec)
	}
}

func TestPostgresStore_TaskRunUpsert(t *testing.T) {
	dsn := os.Getenv("DATABASE_URL")
	if dsn == "" {
		t.Skip("DATABASE_URL not set; skipping Postgres integration test")
	}

	ensureSchema(t, dsn)

	ctx := context.Background()
	store, err := New(ctx, dsn, zap.NewNop())
	if err != nil {
		t.Fatalf("New store: %v", err)
	}
	defer store.Close()

	name := fmt.Sprintf("task-%d", time.Now().UTC().UnixNano())
	rec, err := store.GetTaskRun(ctx, name)
	if err != nil || rec != nil {
		t.Fatalf("expected nil, got %+v err=%v", rec, err)
	}

	want := domain.TaskRunRecord{
		TaskName:          name,
		LastRunAt:         time.Now().UTC().Truncate(time.Second),
		LastRunStatus:     domain.TaskOK,
		LastRunDurationMS: 123,
	}
	if err := store.SetTaskRun(ctx, want); err != nil {
		t.Fatalf("set: %v", err)
	}

	got, err := store.GetTaskRun(ctx, name)
	if err != nil || got == nil {
		t.Fatalf("get: %+v err=%v", got, err)
	}
	if got.LastRunStatus != domain.TaskOK || got.LastRunDurationMS != 123 || !got.LastRunAt.Equal(want.LastRunAt) {
		t.Fatalf("roundtrip mismatch: %+v", got)
	}

	// upsert overwrites
	want.LastRunStatus = domain.TaskFailed
	if err := store.SetTaskRun(ctx, want); err != nil {
		t.Fatalf("set again: %v", err)
	}
	got, _ = store.GetTaskRun(ctx, name)
	if got.LastRunStatus != domain.TaskFailed {
		t.Fatalf("upsert did not overwrite: %+v", got)
	}
}
