package client

import (
	"strconv"
	"sync/atomic"
	"time"
)

// Nonce is the per-request counter the exchange uses to reject replays. The
// exchange requires every nonce for an API key to be larger than the last
// one it accepted.
type Nonce int64

func (n Nonce) String() string { return strconv.FormatInt(int64(n), 10) }

// NonceSource issues nonces for one API key. Implementations must be safe
// for concurrent use and return strictly increasing values.
type NonceSource interface {
	Next() Nonce
	// AdvancePast makes every later Next return a value greater than n.
	AdvancePast(n Nonce)
}

// NonceGenerator is the default NonceSource. Values are microseconds since
// the Unix epoch at construction plus elapsed time on the monotonic clock,
// forced to exceed the previously issued value. Wall-clock steps after
// construction therefore cannot move it backwards.
//
// Two generators used with the same key can collide; share one through
// WithNonceSource in that case.
type NonceGenerator struct {
	last    atomic.Int64
	base    int64
	elapsed func() time.Duration
}

// NewNonceGenerator returns a generator seeded from the current time.
func NewNonceGenerator() *NonceGenerator {
	start := time.Now()
	return &NonceGenerator{
		base:    start.UnixMicro(),
		elapsed: func() time.Duration { return time.Since(start) },
	}
}

// Next returns a nonce strictly greater than every nonce returned before.
func (g *NonceGenerator) Next() Nonce {
	for {
		prev := g.last.Load()
		next := g.base + g.elapsed().Microseconds()
		if next <= prev {
			next = prev + 1
		}
		if g.last.CompareAndSwap(prev, next) {
			return Nonce(next)
		}
	}
}

// AdvancePast raises the floor so the next nonce exceeds n. Values at or
// below the current floor are ignored.
func (g *NonceGenerator) AdvancePast(n Nonce) {
	for {
		prev := g.last.Load()
		if int64(n) <= prev {
			return
		}
		if g.last.CompareAndSwap(prev, int64(n)) {
			return
		}
	}
}

// Last returns the most recently issued nonce, or zero if none was issued.
func (g *NonceGenerator) Last() Nonce { return Nonce(g.last.Load()) }
