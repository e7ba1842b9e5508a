package tick

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestTickerEmitsAndStops(t *testing.T) {
	t.Parallel()

	var mu sync.Mutex
	var infos []Info
	ticker := New(Config{
		Interval: 5 * time.Millisecond,
		Handler: func(_ context.Context, info Info) error {
			mu.Lock()
			infos = append(infos, info)
			mu.Unlock()
			return nil
		},
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, ticker.Start(ctx))

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(infos) >= 3
	}, time.Second, time.Millisecond)

	require.NoError(t, ticker.Stop(ctx))
	mu.Lock()
	for _, info := range infos {
		require.Positive(t, info.Delta)
		require.False(t, info.At.IsZero())
	}
	mu.Unlock()
}

func TestTickerSkipsMissedTicks(t *testing.T) {
	t.Parallel()

	var mu sync.Mutex
	var deltas []time.Duration
	slowOnce := true
	ticker := New(Config{
		Interval: 5 * time.Millisecond,
		Handler: func(_ context.Context, info Info) error {
			mu.Lock()
			deltas = append(deltas, info.Delta)
			mu.Unlock()
			if slowOnce {
				slowOnce = false
				time.Sleep(30 * time.Millisecond)
			}
			return nil
		},
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, ticker.Start(ctx))

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(deltas) >= 3
	}, time.Second, time.Millisecond)
	require.NoError(t, ticker.Stop(ctx))

	// The overrun shows up as one large delta, not a burst of catch-up
	// ticks.
	mu.Lock()
	defer mu.Unlock()
	require.GreaterOrEqual(t, deltas[1], 25*time.Millisecond)
}

func TestTickerStopIsIdempotent(t *testing.T) {
	t.Parallel()

	ticker := New(Config{Handler: func(context.Context, Info) error { return nil }})
	ctx := context.Background()
	require.NoError(t, ticker.Stop(ctx))
	require.NoError(t, ticker.Start(ctx))
	require.NoError(t, ticker.Start(ctx))
	require.NoError(t, ticker.Stop(ctx))
	require.NoError(t, ticker.Stop(ctx))
}
