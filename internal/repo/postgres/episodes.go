package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/backupwatch/backupwatch/internal/domain"
)

func (s *Store) GetEpisode(ctx context.Context, key domain.JobKey) (*domain.NotificationRecord, error) {
	var rec domain.NotificationRecord
	rec.JobKey = key
	err := s.pool.QueryRow(ctx,
		`SELECT episode_started_at, notified_at
		   FROM notification_records
		  WHERE job_key = $1`,
		string(key)).Scan(&rec.EpisodeStartedAt, &rec.NotifiedAt)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("get episode: %w", err)
	}
	return &rec, nil
}

// Open upserts the record and appends the audit entry in one transaction.
func (s *Store) Open(ctx context.Context, key domain.JobKey, startedAt time.Time, audit domain.AuditEntry) error {
	return s.inTx(ctx, func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx,
			`INSERT INTO notification_records (job_key, episode_started_at, notified_at)
			 VALUES ($1, $2, NULL)
			 ON CONFLICT (job_key)
			 DO UPDATE SET episode_started_at = EXCLUDED.episode_started_at, notified_at = NULL`,
			string(key), startedAt)
		if err != nil {
			return fmt.Errorf("open episode: %w", err)
		}
		return appendAudit(ctx, tx, audit)
	})
}

func (s *Store) MarkNotified(ctx context.Context, key domain.JobKey, at time.Time, audit domain.AuditEntry) error {
	return s.inTx(ctx, func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx,
			`UPDATE notification_records SET notified_at = $2 WHERE job_key = $1`,
			string(key), at)
		if err != nil {
			return fmt.Errorf("mark notified: %w", err)
		}
		return appendAudit(ctx, tx, audit)
	})
}

func (s *Store) Clear(ctx context.Context, key domain.JobKey, audit domain.AuditEntry) error {
	return s.inTx(ctx, func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx,
			`INSERT INTO notification_records (job_key, episode_started_at, notified_at)
			 VALUES ($1, NULL, NULL)
			 ON CONFLICT (job_key)
			 DO UPDATE SET episode_started_at = NULL, notified_at = NULL`,
			string(key))
		if err != nil {
			return fmt.Errorf("clear episode: %w", err)
		}
		return appendAudit(ctx, tx, audit)
	})
}

func (s *Store) inTx(ctx context.Context, fn func(tx pgx.Tx) error) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if err := fn(tx); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

func appendAudit(ctx context.Context, tx pgx.Tx, e domain.AuditEntry) error {
	var key *string
	if e.JobKey != "" {
		k := string(e.JobKey)
		key = &k
	}
	_, err := tx.Exec(ctx,
		`INSERT INTO audit_log (at, action, job_key, outcome, detail)
		 VALUES ($1, $2, $3, $4, $5)`,
		e.At, e.Action, key, e.Outcome, e.Detail)
	if err != nil {
		return fmt.Errorf("append audit: %w", err)
	}
	return nil
}
