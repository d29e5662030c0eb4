package postgres

import (
	"context"
	"fmt"

	"github.com/backupwatch/backupwatch/internal/domain"
)

// Append writes a standalone audit entry (entries paired with a state change
// go through the episode transactions instead).
func (s *Store) Append(ctx context.Context, e domain.AuditEntry) error {
	var key *string
	if e.JobKey != "" {
		k := string(e.JobKey)
		key = &k
	}
	_, err := s.pool.Exec(ctx,
		`INSERT INTO audit_log (at, action, job_key, outcome, detail)
		 VALUES ($1, $2, $3, $4, $5)`,
		e.At, e.Action, key, e.Outcome, e.Detail)
	if err != nil {
		return fmt.Errorf("append audit: %w", err)
	}
	return nil
}
