package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/careermap/jobradar/internal/clock"
	"github.com/careermap/jobradar/internal/randsrc"
)

func newTestLimiter(t *testing.T, base time.Duration) (*Limiter, *clock.Fake) {
	t.Helper()
	clk := clock.NewFake(time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC))
	l := New(clk, randsrc.Zero{})
	l.Register("board", base)
	return l, clk
}

func TestWaitEnforcesBaseDelay(t *testing.T) {
	t.Parallel()

	l, clk := newTestLimiter(t, 5*time.Second)
	ctx := context.Background()

	require.NoError(t, l.Wait(ctx, "board"))
	first := clk.Now()

	require.NoError(t, l.Wait(ctx, "board"))
	second := clk.Now()

	require.GreaterOrEqual(t, second.Sub(first), 5*time.Second)
	require.Equal(t, []time.Duration{5 * time.Second}, clk.Slept())
}

func TestWaitSkipsSleepAfterIdlePeriod(t *testing.T) {
	t.Parallel()

	l, clk := newTestLimiter(t, 5*time.Second)
	ctx := context.Background()

	require.NoError(t, l.Wait(ctx, "board"))
	clk.Advance(time.Minute)
	require.NoError(t, l.Wait(ctx, "board"))

	require.Empty(t, clk.Slept())
}

func TestFailureEntersBackoffAndDoublesDelay(t *testing.T) {
	t.Parallel()

	l, _ := newTestLimiter(t, 5*time.Second)

	l.Failure("board", 429)
	st, ok := l.State("board")
	require.True(t, ok)
	require.True(t, st.InBackoff)
	require.Equal(t, 10*time.Second, st.Delay)

	// Re-entry does not double again.
	l.Failure("board", 403)
	st, _ = l.State("board")
	require.Equal(t, 10*time.Second, st.Delay)
}

func TestBackoffStretchesWait(t *testing.T) {
	t.Parallel()

	l, clk := newTestLimiter(t, 5*time.Second)
	ctx := context.Background()

	require.NoError(t, l.Wait(ctx, "board"))
	l.Failure("board", 999)
	require.NoError(t, l.Wait(ctx, "board"))

	// Doubled to 10s, stretched by 1.2 while in backoff.
	require.Equal(t, []time.Duration{12 * time.Second}, clk.Slept())
}

func TestSuccessStreakExitsBackoff(t *testing.T) {
	t.Parallel()

	l, _ := newTestLimiter(t, 5*time.Second)

	l.Failure("board", 429)
	for i := 0; i < exitStreak; i++ {
		l.Success("board")
	}
	st, _ := l.State("board")
	require.True(t, st.InBackoff, "streak of %d must not yet exit", exitStreak)

	l.Success("board")
	st, _ = l.State("board")
	require.False(t, st.InBackoff)
	require.Equal(t, 5*time.Second, st.Delay)
	require.Zero(t, st.Failures)
}

func TestFailureResetsSuccessStreak(t *testing.T) {
	t.Parallel()

	l, _ := newTestLimiter(t, 5*time.Second)

	l.Success("board")
	l.Success("board")
	l.Failure("board", 500)

	st, _ := l.State("board")
	require.Zero(t, st.Successes)
	require.Equal(t, 1, st.Failures)
	require.False(t, st.InBackoff, "plain server errors do not trigger backoff")
}

func TestWaitHonorsContext(t *testing.T) {
	t.Parallel()

	l, _ := newTestLimiter(t, 5*time.Second)

	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, l.Wait(ctx, "board"))
	cancel()
	require.ErrorIs(t, l.Wait(ctx, "board"), context.Canceled)
}

func TestUnregisteredSiteGetsDefaultDelay(t *testing.T) {
	t.Parallel()

	clk := clock.NewFake(time.Now())
	l := New(clk, randsrc.Zero{})
	ctx := context.Background()

	require.NoError(t, l.Wait(ctx, "newcomer"))
	require.NoError(t, l.Wait(ctx, "newcomer"))
	require.Equal(t, []time.Duration{DefaultBaseDelay}, clk.Slept())
}

func TestSitesArePacedIndependently(t *testing.T) {
	t.Parallel()

	l, clk := newTestLimiter(t, 5*time.Second)
	l.Register("other", 3*time.Second)
	ctx := context.Background()

	require.NoError(t, l.Wait(ctx, "board"))
	require.NoError(t, l.Wait(ctx, "other"))
	require.Empty(t, clk.Slept(), "first request per site never sleeps")
}
