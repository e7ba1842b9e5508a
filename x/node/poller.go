package node

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/hyli-org/degen-party/log"
	"github.com/hyli-org/degen-party/x/contract"
)

const defaultPollInterval = 500 * time.Millisecond

// BlockPoller turns the node's pull API into a push feed of block events.
// It polls the chain height and emits every block from its starting height
// onward, in order, exactly once.
type BlockPoller struct {
	client   Client
	interval time.Duration
	next     contract.BlockHeight
	events   chan Event
	logger   zerolog.Logger
}

// PollerOption configures a BlockPoller.
type PollerOption func(*BlockPoller)

// WithPollInterval overrides the polling interval.
func WithPollInterval(d time.Duration) PollerOption {
	return func(p *BlockPoller) {
		p.interval = d
	}
}

// NewBlockPoller builds a poller that starts emitting at height from.
func NewBlockPoller(client Client, from contract.BlockHeight, opts ...PollerOption) *BlockPoller {
	p := &BlockPoller{
		client:   client,
		interval: defaultPollInterval,
		next:     from,
		events:   make(chan Event, 64),
		logger:   log.Logger.With().Str("component", "block-poller").Logger(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Events is the feed of block events. Closed when Run returns.
func (p *BlockPoller) Events() <-chan Event {
	return p.events
}

// Run polls until ctx is cancelled. Transient node errors are logged and
// retried on the next interval; the poller never skips a height.
func (p *BlockPoller) Run(ctx context.Context) error {
	defer close(p.events)

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := p.drain(ctx); err != nil {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				p.logger.Warn().Err(err).Uint64("next_height", uint64(p.next)).Msg("poll failed, will retry")
			}
		}
	}
}

func (p *BlockPoller) drain(ctx context.Context) error {
	tip, err := p.client.GetChainHeight(ctx)
	if err != nil {
		return err
	}
	for p.next <= tip {
		block, err := p.client.GetBlock(ctx, p.next)
		if err != nil {
			return err
		}
		select {
		case p.events <- Event{Block: block}:
		case <-ctx.Done():
			return ctx.Err()
		}
		p.next++
	}
	return nil
}
