package domain

import "time"

// ScheduleConfig is the per-job (or global fallback) expectation for how often
// a backup should report in. Mutated by the admin UI; the monitor only reads it.
type ScheduleConfig struct {
	JobKey JobKey `json:"job_key"`

	// Interval is the explicitly configured expected gap between successful
	// runs. Zero means "infer from history".
	Interval time.Duration `json:"interval"`

	// Tolerance is the grace period added on top of the expected interval
	// before the job is classified overdue.
	Tolerance time.Duration `json:"tolerance"`

	// Escalation re-arms dispatch for an episode that stays open longer than
	// this. Zero disables re-notification.
	Escalation time.Duration `json:"escalation"`

	Enabled          bool     `json:"enabled"`
	NotifyOnRecovery bool     `json:"notify_on_recovery"`
	Channels         []string `json:"channels"` // channel names; empty means all configured
}
