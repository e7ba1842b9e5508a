// Package tick provides a fixed-cadence runner for the executor's periodic
// duties. Ticks fire at start + K * interval; when the handler overruns,
// missed ticks are skipped rather than replayed, so the handler observes
// wall-clock deltas rather than a fixed step.
package tick

import (
	"context"
	"time"

	"github.com/rs/zerolog"
)

// DefaultInterval matches the executor loop cadence.
const DefaultInterval = 50 * time.Millisecond

// Callback is invoked once per emitted tick.
type Callback func(ctx context.Context, info Info) error

// Info describes one emitted tick.
type Info struct {
	// At is the tick's emission time.
	At time.Time
	// Delta is the elapsed time since the previous emitted tick. It exceeds
	// the interval when ticks were skipped.
	Delta time.Duration
}

// Config configures a Ticker.
type Config struct {
	// Handler is invoked for each tick. Required before Start.
	Handler Callback
	// Interval between ticks. Defaults to DefaultInterval.
	Interval time.Duration
	// Now returns the current time. Useful for deterministic tests.
	// Defaults to time.Now if nil.
	Now    func() time.Time
	Logger zerolog.Logger
}

// Ticker emits ticks on a fixed cadence, skipping missed ones.
type Ticker struct {
	log      zerolog.Logger
	cancel   context.CancelFunc
	started  bool
	handler  Callback
	interval time.Duration
	now      func() time.Time
}

// New constructs a Ticker. If cfg.Handler is nil, SetHandler must be called
// before Start.
func New(cfg Config) *Ticker {
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultInterval
	}
	return &Ticker{
		log:      cfg.Logger,
		handler:  cfg.Handler,
		interval: cfg.Interval,
		now:      cfg.Now,
	}
}

// SetHandler sets the handler invoked on each tick. It should be called
// before Start; otherwise Start will panic.
func (t *Ticker) SetHandler(handler Callback) {
	t.handler = handler
}

// Start begins emitting ticks until the context is canceled or Stop is called.
func (t *Ticker) Start(ctx context.Context) error {
	if t.handler == nil {
		panic("tick: Ticker requires a handler to start")
	}
	if t.started {
		return nil
	}

	runCtx, cancel := context.WithCancel(ctx)
	t.cancel = cancel
	t.started = true

	go t.run(runCtx)
	return nil
}

// Stop halts the ticker.
func (t *Ticker) Stop(context.Context) error {
	if !t.started {
		return nil
	}
	t.started = false
	if t.cancel != nil {
		t.cancel()
		t.cancel = nil
	}
	return nil
}

func (t *Ticker) run(ctx context.Context) {
	last := t.now()
	timer := time.NewTimer(t.interval)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
			now := t.now()
			info := Info{At: now, Delta: now.Sub(last)}
			last = now
			if err := t.handler(ctx, info); err != nil {
				t.log.Error().Err(err).Msg("tick handler returned error")
				return
			}
			// Aim for the next interval boundary after now; overruns are
			// skipped, not replayed.
			next := t.interval - t.now().Sub(last)
			if next <= 0 {
				next = time.Nanosecond
			}
			timer.Reset(next)
		}
	}
}
