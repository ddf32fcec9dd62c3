// Package ratelimit spaces requests per site and adapts the pacing to
// throttling signals. Each site runs a small state machine: normal
// pacing at its base delay, or backoff with a doubled, stretched delay
// until a run of successes earns the base back.
package ratelimit

import (
	"context"
	"sync"
	"time"

	"github.com/careermap/jobradar/internal/clock"
	"github.com/careermap/jobradar/internal/randsrc"
)

const (
	// DefaultBaseDelay paces sites that do not configure their own.
	DefaultBaseDelay = 5 * time.Second

	// backoffFactor stretches the effective delay while in backoff.
	backoffFactor = 1.2

	// exitStreak is the success run required to leave backoff.
	exitStreak = 3

	// jitterBoundSec bounds the random seconds added to every delay.
	jitterBoundSec = 5
)

// backoffStatus reports whether an HTTP status signals throttling or a
// bot block. 999 is the LinkedIn variant of 403.
func backoffStatus(status int) bool {
	return status == 429 || status == 403 || status == 999
}

type siteState struct {
	baseDelay   time.Duration
	delay       time.Duration
	lastRequest time.Time
	successes   int
	failures    int
	inBackoff   bool
}

// Stats is a read-only view of one site's pacing state.
type Stats struct {
	Delay     time.Duration
	InBackoff bool
	Successes int
	Failures  int
}

// Limiter tracks pacing state per site. All methods are safe for
// concurrent use.
type Limiter struct {
	mu    sync.Mutex
	sites map[string]*siteState
	clk   clock.Clock
	rnd   randsrc.Source
}

// New creates a Limiter on the given clock and randomness source.
func New(clk clock.Clock, rnd randsrc.Source) *Limiter {
	return &Limiter{
		sites: make(map[string]*siteState),
		clk:   clk,
		rnd:   rnd,
	}
}

// Register seeds a site's base delay. Unregistered sites fall back to
// DefaultBaseDelay on first use.
func (l *Limiter) Register(site string, base time.Duration) {
	if base <= 0 {
		base = DefaultBaseDelay
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.sites[site] = &siteState{baseDelay: base, delay: base}
}

// state returns the entry for site, creating it on first use. Caller
// holds the mutex.
func (l *Limiter) state(site string) *siteState {
	st, ok := l.sites[site]
	if !ok {
		st = &siteState{baseDelay: DefaultBaseDelay, delay: DefaultBaseDelay}
		l.sites[site] = st
	}
	return st
}

// Wait blocks until the site may issue its next request: at least the
// effective delay (stretched while in backoff, plus jitter) since the
// previous one. It returns early only when the context finishes.
func (l *Limiter) Wait(ctx context.Context, site string) error {
	l.mu.Lock()
	st := l.state(site)
	required := st.delay
	if st.inBackoff {
		required = time.Duration(float64(required) * backoffFactor)
	}
	required += time.Duration(l.rnd.Intn(jitterBoundSec)) * time.Second

	var wait time.Duration
	if !st.lastRequest.IsZero() {
		if elapsed := l.clk.Now().Sub(st.lastRequest); elapsed < required {
			wait = required - elapsed
		}
	}
	l.mu.Unlock()

	if wait > 0 {
		if err := l.clk.Sleep(ctx, wait); err != nil {
			return err
		}
	}

	l.mu.Lock()
	st.lastRequest = l.clk.Now()
	l.mu.Unlock()
	return nil
}

// Success records a completed request. A long enough success run while
// in backoff restores the base delay.
func (l *Limiter) Success(site string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	st := l.state(site)
	st.successes++
	st.failures = 0
	if st.inBackoff && st.successes > exitStreak {
		st.inBackoff = false
		st.delay = st.baseDelay
	}
}

// Failure records a failed request. Throttle and block statuses push
// the site into backoff, doubling its delay on entry.
func (l *Limiter) Failure(site string, status int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	st := l.state(site)
	st.failures++
	st.successes = 0
	if backoffStatus(status) && !st.inBackoff {
		st.inBackoff = true
		st.delay *= 2
	}
}

// State returns the current stats for site.
func (l *Limiter) State(site string) (Stats, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	st, ok := l.sites[site]
	if !ok {
		return Stats{}, false
	}
	return Stats{
		Delay:     st.delay,
		InBackoff: st.inBackoff,
		Successes: st.successes,
		Failures:  st.failures,
	}, true
}
