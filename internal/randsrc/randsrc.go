// Package randsrc abstracts the randomness used for jitter, shuffling
// and user-agent rotation so crawl behavior is reproducible in tests.
package randsrc

import (
	"math/rand"
	"sync"
	"time"
)

// Source yields the random draws the crawler needs.
type Source interface {
	// Intn returns a value in [0, n). n must be positive.
	Intn(n int) int
	// Shuffle permutes n elements via the swap callback.
	Shuffle(n int, swap func(i, j int))
}

type lockedSource struct {
	mu sync.Mutex
	r  *rand.Rand
}

// New creates a Source seeded from seed.
func New(seed int64) Source {
	return &lockedSource{r: rand.New(rand.NewSource(seed))}
}

// NewWallSeeded creates a Source seeded from the current time.
func NewWallSeeded() Source {
	return New(time.Now().UnixNano())
}

func (s *lockedSource) Intn(n int) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.r.Intn(n)
}

func (s *lockedSource) Shuffle(n int, swap func(i, j int)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.r.Shuffle(n, swap)
}

// Zero is a Source that always draws zero and never shuffles. It keeps
// jittered delays at their minimum in tests.
type Zero struct{}

func (Zero) Intn(int) int { return 0 }

func (Zero) Shuffle(int, func(i, j int)) {}
