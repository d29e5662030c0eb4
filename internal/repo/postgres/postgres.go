package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/backupwatch/backupwatch/internal/domain"
	"github.com/backupwatch/backupwatch/internal/repo"
)

var _ repo.JobStore = (*Store)(nil)
var _ repo.ScheduleStore = (*Store)(nil)
var _ repo.EpisodeStore = (*Store)(nil)
var _ repo.TaskRunStore = (*Store)(nil)
var _ repo.AuditStore = (*Store)(nil)

// Store is shared with the web-facing process; every mutation commits together
// with its audit entry so the other process never sees a half-applied change.
type Store struct {
	pool *pgxpool.Pool
	log  *zap.Logger
}

func New(ctx context.Context, dsn string, log *zap.Logger) (*Store, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("pgxpool.New: %w", err)
	}
	ctxPing, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := pool.Ping(ctxPing); err != nil {
		return nil, fmt.Errorf("ping: %w", err)
	}
	return &Store{pool: pool, log: log}, nil
}

func (s *Store) Close() {
	if s.pool != nil {
		s.pool.Close()
	}
}

// ---- JobStore (read-only; rows owned by the ingestion process) ----

func (s *Store) ListJobs(ctx context.Context) ([]domain.BackupJob, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT job_key, server_id, job_name, created_at
		   FROM backup_jobs
		  ORDER BY job_key`)
	if err != nil {
		return nil, fmt.Errorf("list jobs: %w", err)
	}
	defer rows.Close()

	var out []domain.BackupJob
	for rows.Next() {
		var j domain.BackupJob
		var key string
		if err := rows.Scan(&key, &j.ServerID, &j.JobName, &j.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan job: %w", err)
		}
		j.Key = domain.JobKey(key)
		out = append(out, j)
	}
	return out, rows.Err()
}

func (s *Store) SuccessTimes(ctx context.Context, key domain.JobKey, limit int) ([]time.Time, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT started_at
		   FROM backup_runs
		  WHERE job_key = $1 AND status = 'success'
		  ORDER BY started_at DESC
		  LIMIT $2`,
		string(key), limit)
	if err != nil {
		return nil, fmt.Errorf("success times: %w", err)
	}
	defer rows.Close()

	var out []time.Time
	for rows.Next() {
		var t time.Time
		if err := rows.Scan(&t); err != nil {
			return nil, fmt.Errorf("scan run time: %w", err)
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func (s *Store) LastRun(ctx context.Context, key domain.JobKey) (*domain.JobRun, error) {
	var r domain.JobRun
	var status string
	err := s.pool.QueryRow(ctx,
		`SELECT status, started_at, duration_ms
		   FROM backup_runs
		  WHERE job_key = $1
		  ORDER BY started_at DESC
		  LIMIT 1`,
		string(key)).Scan(&status, &r.StartedAt, &r.DurationMS)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("last run: %w", err)
	}
	r.JobKey = key
	r.Status = domain.RunStatus(status)
	return &r, nil
}

// ---- ScheduleStore (read-only; rows owned by the admin UI) ----

func (s *Store) GetSchedule(ctx context.Context, key domain.JobKey) (*domain.ScheduleConfig, error) {
	var (
		intervalSec, tolSec, escSec int64
		enabled, notifyRecovery     bool
		channels                    []string
	)
	err := s.pool.QueryRow(ctx,
		`SELECT interval_seconds, tolerance_seconds, escalation_seconds,
		        enabled, notify_on_recovery, channels
		   FROM schedule_configs
		  WHERE job_key = $1`,
		string(key)).Scan(&intervalSec, &tolSec, &escSec, &enabled, &notifyRecovery, &channels)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("schedule config: %w", err)
	}
	return &domain.ScheduleConfig{
		JobKey:           key,
		Interval:         time.Duration(intervalSec) * time.Second,
		Tolerance:        time.Duration(tolSec) * time.Second,
		Escalation:       time.Duration(escSec) * time.Second,
		Enabled:          enabled,
		NotifyOnRecovery: notifyRecovery,
		Channels:         channels,
	}, nil
}
