package crawl

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/careermap/jobradar/internal/clock"
)

func TestRunEveryOnceWithoutInterval(t *testing.T) {
	t.Parallel()

	clk := clock.NewFake(time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC))
	boom := errors.New("cycle failed")
	calls := 0
	err := RunEvery(context.Background(), clk, 0, zap.NewNop(), func(context.Context) error {
		calls++
		return boom
	})
	require.ErrorIs(t, err, boom, "one-shot mode surfaces the cycle error")
	require.Equal(t, 1, calls)
	require.Empty(t, clk.Slept())
}

func TestRunEveryRepeatsUntilCanceled(t *testing.T) {
	t.Parallel()

	clk := clock.NewFake(time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC))
	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	err := RunEvery(ctx, clk, time.Minute, zap.NewNop(), func(context.Context) error {
		calls++
		if calls == 3 {
			cancel()
		}
		return nil
	})
	require.ErrorIs(t, err, context.Canceled)
	require.Equal(t, 3, calls)
	require.Equal(t, []time.Duration{time.Minute, time.Minute}, clk.Slept())
}

func TestRunEveryKeepsGoingAfterCycleError(t *testing.T) {
	t.Parallel()

	clk := clock.NewFake(time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC))
	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	err := RunEvery(ctx, clk, 30*time.Second, zap.NewNop(), func(context.Context) error {
		calls++
		if calls == 1 {
			return errors.New("transient")
		}
		cancel()
		return nil
	})
	require.ErrorIs(t, err, context.Canceled)
	require.Equal(t, 2, calls, "a failed cycle does not stop the schedule")
}
