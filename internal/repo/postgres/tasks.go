package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/backupwatch/backupwatch/internal/domain"
)

func (s *Store) GetTaskRun(ctx context.Context, taskName string) (*domain.TaskRunRecord, error) {
	var rec domain.TaskRunRecord
	rec.TaskName = taskName
	var status string
	err := s.pool.QueryRow(ctx,
		`SELECT last_run_at, last_run_status, last_run_duration_ms
		   FROM task_runs
		  WHERE task_name = $1`,
		taskName).Scan(&rec.LastRunAt, &status, &rec.LastRunDurationMS)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("get task run: %w", err)
	}
	rec.LastRunStatus = domain.TaskStatus(status)
	return &rec, nil
}

func (s *Store) SetTaskRun(ctx context.Context, rec domain.TaskRunRecord) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO task_runs (task_name, last_run_at, last_run_status, last_run_duration_ms)
		 VALUES ($1, $2, $3, $4)
		 ON CONFLICT (task_name)
		 DO UPDATE SET last_run_at = EXCLUDED.last_run_at,
		               last_run_status = EXCLUDED.last_run_status,
		               last_run_duration_ms = EXCLUDED.last_run_duration_ms`,
		rec.TaskName, rec.LastRunAt, string(rec.LastRunStatus), rec.LastRunDurationMS)
	if err != nil {
		return fmt.Errorf("set task run: %w", err)
	}
	return nil
}
