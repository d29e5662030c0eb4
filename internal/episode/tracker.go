// Package episode decides notification-state transitions for overdue
// episodes. The decision is pure; the scheduler applies it against the store
// and the dispatcher.
package episode

import (
	"time"

	"github.com/backupwatch/backupwatch/internal/domain"
)

// Action is what the current tick must do for one job.
type Action int

const (
	// Keep everything as is.
	None Action = iota
	// Open a new episode and dispatch the primary notification.
	OpenAndNotify
	// Episode already open but a previous dispatch never succeeded; try again
	// without opening a new episode.
	RetryNotify
	// Episode open and notified, but it has stayed open past the escalation
	// interval; re-alert and refresh notifiedAt.
	Escalate
	// Episode over; clear the record and send a recovery notice.
	ClearAndNotify
	// Episode over; clear the record silently.
	ClearQuiet
)

func (a Action) String() string {
	switch a {
	case OpenAndNotify:
		return "open_and_notify"
	case RetryNotify:
		return "retry_notify"
	case Escalate:
		return "escalate"
	case ClearAndNotify:
		return "clear_and_notify"
	case ClearQuiet:
		return "clear_quiet"
	default:
		return "none"
	}
}

// Policy is the resolved per-job notification policy (explicit config merged
// with global defaults by the caller).
type Policy struct {
	Escalation       time.Duration // zero disables re-notification
	NotifyOnRecovery bool
}

// Decide maps (persisted record, freshly computed state) to an Action.
// Guarantees at most one primary notification per episode: once notifiedAt is
// set, only the escalation guard can re-arm dispatch.
func Decide(rec *domain.NotificationRecord, st domain.OverdueState, pol Policy, now time.Time) Action {
	if st.IsOverdue {
		if !rec.Opened() {
			return OpenAndNotify
		}
		if rec.NotifiedAt == nil {
			return RetryNotify
		}
		if pol.Escalation > 0 && now.Sub(*rec.NotifiedAt) > pol.Escalation {
			return Escalate
		}
		return None
	}

	if !rec.Opened() {
		return None
	}

	// The episode ended. A recovery notice only makes sense when a new
	// successful run actually arrived after the episode opened; a config
	// change that widened the tolerance clears quietly.
	recovered := !st.LastSeenAt.IsZero() && st.LastSeenAt.After(*rec.EpisodeStartedAt)
	if recovered && pol.NotifyOnRecovery {
		return ClearAndNotify
	}
	return ClearQuiet
}
