package notify

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/backupwatch/backupwatch/internal/domain"
)

// ErrNotConfigured marks a channel that exists in code but has no usable
// configuration. Distinct from a delivery failure so the audit trail can tell
// "needs setup" from "send broke".
var ErrNotConfigured = errors.New("channel not configured")

// PermanentError wraps failures that retrying cannot fix (bad address, bad
// credentials, rejected payload).
type PermanentError struct {
	Err error
}

func (e *PermanentError) Error() string { return e.Err.Error() }
func (e *PermanentError) Unwrap() error { return e.Err }

// Permanent marks err as not retryable.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &PermanentError{Err: err}
}

// IsPermanent reports whether err must not be retried.
func IsPermanent(err error) bool {
	var pe *PermanentError
	return errors.As(err, &pe) || errors.Is(err, ErrNotConfigured)
}

type AlertKind string

const (
	AlertOverdue    AlertKind = "overdue"
	AlertEscalation AlertKind = "escalation"
	AlertRecovery   AlertKind = "recovery"
)

// Alert is the payload handed to every channel.
type Alert struct {
	Kind       AlertKind     `json:"kind"`
	JobKey     domain.JobKey `json:"job_key"`
	ServerID   string        `json:"server_id"`
	JobName    string        `json:"job_name"`
	LastSeenAt time.Time     `json:"last_seen_at"`
	ExpectedAt time.Time     `json:"expected_at"`
	At         time.Time     `json:"at"`
}

func (a Alert) Title() string {
	switch a.Kind {
	case AlertRecovery:
		return fmt.Sprintf("Backup recovered: %s", a.JobKey)
	case AlertEscalation:
		return fmt.Sprintf("Backup STILL overdue: %s", a.JobKey)
	default:
		return fmt.Sprintf("Backup overdue: %s", a.JobKey)
	}
}

func (a Alert) Body() string {
	last := "never"
	if !a.LastSeenAt.IsZero() {
		last = a.LastSeenAt.Format(time.RFC3339)
	}
	if a.Kind == AlertRecovery {
		return fmt.Sprintf("Server: %s\nJob: %s\nA new successful backup was reported at %s.",
			a.ServerID, a.JobName, last)
	}
	return fmt.Sprintf("Server: %s\nJob: %s\nLast successful backup: %s\nExpected by: %s",
		a.ServerID, a.JobName, last, a.ExpectedAt.Format(time.RFC3339))
}

// ChannelKind distinguishes the two delivery styles.
type ChannelKind string

const (
	KindPush  ChannelKind = "push"
	KindEmail ChannelKind = "email"
)

// Channel is one configured delivery mechanism.
type Channel interface {
	Name() string
	Kind() ChannelKind
	Send(ctx context.Context, a Alert) error
}
