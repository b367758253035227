package sandbox

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

type keyLimiter struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// keyLimiters holds one token bucket per API key, the way the exchange
// meters authenticated traffic. A nil *keyLimiters allows everything.
type keyLimiters struct {
	rps   rate.Limit
	burst int

	mu       sync.Mutex
	limiters map[string]*keyLimiter
}

func newKeyLimiters(rps float64, burst int) *keyLimiters {
	if rps <= 0 {
		return nil
	}
	if burst < 1 {
		burst = 1
	}
	return &keyLimiters{rps: rate.Limit(rps), burst: burst, limiters: make(map[string]*keyLimiter)}
}

func (k *keyLimiters) allow(key string) bool {
	if k == nil {
		return true
	}
	now := time.Now()

	k.mu.Lock()
	l, ok := k.limiters[key]
	if !ok {
		l = &keyLimiter{limiter: rate.NewLimiter(k.rps, k.burst)}
		k.limiters[key] = l
	}
	l.lastSeen = now
	k.sweep(now)
	k.mu.Unlock()

	return l.limiter.AllowN(now, 1)
}

// sweep drops buckets idle for ten minutes. Callers hold k.mu.
func (k *keyLimiters) sweep(now time.Time) {
	if len(k.limiters) < 1024 {
		return
	}
	for key, l := range k.limiters {
		if now.Sub(l.lastSeen) > 10*time.Minute {
			delete(k.limiters, key)
		}
	}
}
