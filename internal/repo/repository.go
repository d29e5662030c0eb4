package repo

import (
	"context"
	"time"

	"github.com/backupwatch/backupwatch/internal/domain"
)

// Ports (interfaces) — swap in any DB adapter later.

// JobStore reads job history written by the ingestion process. The monitor
// never writes through it.
type JobStore interface {
	ListJobs(ctx context.Context) ([]domain.BackupJob, error)
	// SuccessTimes returns the start times of the job's most recent successful
	// runs, newest first, at most limit entries.
	SuccessTimes(ctx context.Context, key domain.JobKey, limit int) ([]time.Time, error)
	LastRun(ctx context.Context, key domain.JobKey) (*domain.JobRun, error)
}

// ScheduleStore reads schedule configuration owned by the admin UI.
type ScheduleStore interface {
	// GetSchedule returns nil, nil when the job has no explicit config.
	GetSchedule(ctx context.Context, key domain.JobKey) (*domain.ScheduleConfig, error)
}

// EpisodeStore persists notification state, one row per known job. Each
// mutation commits the paired audit entry in the same transaction so the
// web-facing process never observes a state change without its audit trail.
type EpisodeStore interface {
	// GetEpisode returns nil, nil if there is no record yet.
	GetEpisode(ctx context.Context, key domain.JobKey) (*domain.NotificationRecord, error)
	// Open upserts the record with episodeStartedAt set and notifiedAt null.
	Open(ctx context.Context, key domain.JobKey, startedAt time.Time, audit domain.AuditEntry) error
	// MarkNotified sets notifiedAt on an open episode.
	MarkNotified(ctx context.Context, key domain.JobKey, at time.Time, audit domain.AuditEntry) error
	// Clear ends the episode, nulling both timestamps.
	Clear(ctx context.Context, key domain.JobKey, audit domain.AuditEntry) error
}

// TaskRunStore persists one record per registered scheduler task.
type TaskRunStore interface {
	// GetTaskRun returns nil, nil if the task has never run.
	GetTaskRun(ctx context.Context, taskName string) (*domain.TaskRunRecord, error)
	SetTaskRun(ctx context.Context, rec domain.TaskRunRecord) error
}

// AuditStore appends entries that carry no paired state change.
type AuditStore interface {
	Append(ctx context.Context, e domain.AuditEntry) error
}
