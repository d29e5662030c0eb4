package notify

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v5"
	"go.uber.org/multierr"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// DispatcherConfig bounds what one dispatch may cost: every channel gets at
// most MaxAttempts tries within the calling tick, each under SendTimeout.
type DispatcherConfig struct {
	SendTimeout    time.Duration
	MaxAttempts    int
	InitialBackoff time.Duration
}

// Dispatcher fans an alert out to the configured channels concurrently and
// retries transient failures with exponential backoff.
type Dispatcher struct {
	channels []Channel
	log      *zap.Logger
	cfg      DispatcherConfig
}

// Outcome is the per-channel result of one dispatch.
type Outcome struct {
	Channel   string
	Kind      ChannelKind
	Attempts  int
	Err       error
	Permanent bool
}

// Result aggregates a fan-out. Delivered is true if at least one channel
// succeeded; partial failure is recorded per channel, not escalated.
type Result struct {
	Delivered bool
	Outcomes  []Outcome
}

// Err joins the errors of all failed channels (nil when Delivered covers all).
func (r Result) Err() error {
	var err error
	for _, o := range r.Outcomes {
		err = multierr.Append(err, o.Err)
	}
	return err
}

func NewDispatcher(channels []Channel, log *zap.Logger, cfg DispatcherConfig) *Dispatcher {
	if cfg.SendTimeout <= 0 {
		cfg.SendTimeout = 15 * time.Second
	}
	if cfg.MaxAttempts < 1 {
		cfg.MaxAttempts = 3
	}
	if cfg.InitialBackoff <= 0 {
		cfg.InitialBackoff = 500 * time.Millisecond
	}
	var active []Channel
	for _, ch := range channels {
		if ch != nil {
			active = append(active, ch)
		}
	}
	return &Dispatcher{channels: active, log: log, cfg: cfg}
}

// Channels returns the names of the active channels.
func (d *Dispatcher) Channels() []string {
	names := make([]string, 0, len(d.channels))
	for _, ch := range d.channels {
		names = append(names, ch.Name())
	}
	return names
}

// Dispatch sends a to every active channel, restricted to the named subset
// when names is non-empty. It blocks until all channels finished or timed out.
func (d *Dispatcher) Dispatch(ctx context.Context, a Alert, names []string) Result {
	selected := d.pick(names)
	if len(selected) == 0 {
		return Result{Outcomes: []Outcome{{Channel: "none", Err: ErrNotConfigured, Permanent: true}}}
	}

	outcomes := make([]Outcome, len(selected))
	g, gctx := errgroup.WithContext(ctx)
	for i, ch := range selected {
		i, ch := i, ch
		g.Go(func() error {
			outcomes[i] = d.sendWithRetry(gctx, ch, a)
			return nil // collect outcomes, never cancel siblings
		})
	}
	_ = g.Wait()

	res := Result{Outcomes: outcomes}
	for _, o := range outcomes {
		if o.Err == nil {
			res.Delivered = true
		} else {
			d.log.Warn("dispatch_channel_failed",
				zap.String("channel", o.Channel),
				zap.String("kind", string(o.Kind)),
				zap.Int("attempts", o.Attempts),
				zap.Bool("permanent", o.Permanent),
				zap.Error(o.Err),
			)
		}
	}
	return res
}

func (d *Dispatcher) pick(names []string) []Channel {
	if len(names) == 0 {
		return d.channels
	}
	want := make(map[string]bool, len(names))
	for _, n := range names {
		want[n] = true
	}
	var out []Channel
	for _, ch := range d.channels {
		if want[ch.Name()] {
			out = append(out, ch)
		}
	}
	return out
}

func (d *Dispatcher) sendWithRetry(ctx context.Context, ch Channel, a Alert) Outcome {
	out := Outcome{Channel: ch.Name(), Kind: ch.Kind()}

	op := func() (struct{}, error) {
		out.Attempts++
		sctx, cancel := context.WithTimeout(ctx, d.cfg.SendTimeout)
		defer cancel()

		err := ch.Send(sctx, a)
		if err == nil {
			return struct{}{}, nil
		}
		if IsPermanent(err) {
			return struct{}{}, backoff.Permanent(err)
		}
		d.log.Debug("dispatch_transient_failure",
			zap.String("channel", ch.Name()),
			zap.Int("attempt", out.Attempts),
			zap.Error(err),
		)
		return struct{}{}, err
	}

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = d.cfg.InitialBackoff

	_, err := backoff.Retry(ctx, op,
		backoff.WithBackOff(bo),
		backoff.WithMaxTries(uint(d.cfg.MaxAttempts)),
	)
	out.Err = err
	out.Permanent = IsPermanent(err)
	return out
}
