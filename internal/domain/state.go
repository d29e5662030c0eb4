package domain

import "time"

// OverdueState is recomputed on every detection pass; it is never persisted.
type OverdueState struct {
	JobKey     JobKey    `json:"job_key"`
	IsOverdue  bool      `json:"is_overdue"`
	NoHistory  bool      `json:"no_history"` // no successful run yet; flagged, never overdue
	ExpectedAt time.Time `json:"expected_at"`
	LastSeenAt time.Time `json:"last_seen_at"`
}

// NotificationRecord holds the open-episode state for one job. NotifiedAt is
// non-nil only while the job has stayed continuously overdue since
// EpisodeStartedAt; a new successful run clears the whole record.
type NotificationRecord struct {
	JobKey           JobKey     `json:"job_key"`
	EpisodeStartedAt *time.Time `json:"episode_started_at"`
	NotifiedAt       *time.Time `json:"notified_at"`
}

// Opened reports whether an overdue episode is currently open.
func (r *NotificationRecord) Opened() bool {
	return r != nil && r.EpisodeStartedAt != nil
}

type TaskStatus string

const (
	TaskOK      TaskStatus = "ok"
	TaskFailed  TaskStatus = "failed"
	TaskSkipped TaskStatus = "skipped"
)

// TaskRunRecord survives restarts so the scheduler can tell whether a task
// already ran within its interval.
type TaskRunRecord struct {
	TaskName          string     `json:"task_name"`
	LastRunAt         time.Time  `json:"last_run_at"`
	LastRunStatus     TaskStatus `json:"last_run_status"`
	LastRunDurationMS int64      `json:"last_run_duration_ms"`
}

// Audit actions emitted by the monitor.
const (
	AuditOverdueDetected    = "overdue_detected"
	AuditNotificationSent   = "overdue_notification_sent"
	AuditNotificationFailed = "overdue_notification_failed"
	AuditOverdueRecovered   = "overdue_recovered"
	AuditTaskSkippedBusy    = "task_skipped_busy"
	AuditTaskRunCompleted   = "task_run_completed"
)

// AuditEntry is append-only; the sink that consumes it lives outside the core.
type AuditEntry struct {
	At      time.Time `json:"at"`
	Action  string    `json:"action"`
	JobKey  JobKey    `json:"job_key,omitempty"`
	Outcome string    `json:"outcome"`
	Detail  string    `json:"detail,omitempty"`
}
