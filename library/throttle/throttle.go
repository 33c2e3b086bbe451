// Package throttle limits how often a key may act.
package throttle

import (
	"sync"
	"time"

	"github.com/Laisky/errors/v2"
	"github.com/hashicorp/golang-lru/v2/expirable"
	"golang.org/x/time/rate"
)

const (
	// maxTrackedKeys caps the number of per-key limiters kept in memory
	maxTrackedKeys = 10000
	// keyIdleTTL drops limiters of keys that stopped acting
	keyIdleTTL = time.Hour
)

// KeyedThrottleCfg configuration for KeyedThrottle
type KeyedThrottleCfg struct {
	// TotalPerMinute and TotalBurst bound every key together
	TotalPerMinute, TotalBurst int
	// EachPerMinute and EachBurst bound a single key
	EachPerMinute, EachBurst int
}

// KeyedThrottle is a token bucket per key plus a shared one
type KeyedThrottle struct {
	mu    sync.Mutex
	cfg   KeyedThrottleCfg
	total *rate.Limiter
	keys  *expirable.LRU[string, *rate.Limiter]
}

// NewKeyedThrottle create new KeyedThrottle
func NewKeyedThrottle(cfg KeyedThrottleCfg) (*KeyedThrottle, error) {
	if cfg.TotalPerMinute <= 0 || cfg.EachPerMinute <= 0 {
		return nil, errors.New("PerMinute must bigger than 0")
	}
	if cfg.TotalBurst <= 0 || cfg.EachBurst <= 0 {
		return nil, errors.New("burst must bigger than 0")
	}

	return &KeyedThrottle{
		cfg:   cfg,
		total: rate.NewLimiter(perMinute(cfg.TotalPerMinute), cfg.TotalBurst),
		keys:  expirable.NewLRU[string, *rate.Limiter](maxTrackedKeys, nil, keyIdleTTL),
	}, nil
}

func perMinute(n int) rate.Limit {
	return rate.Every(time.Minute / time.Duration(n))
}

// Allow reports whether key may act now, consuming a token when it may.
func (t *KeyedThrottle) Allow(key string) bool {
	t.mu.Lock()
	lim, ok := t.keys.Get(key)
	if !ok {
		lim = rate.NewLimiter(perMinute(t.cfg.EachPerMinute), t.cfg.EachBurst)
		t.keys.Add(key, lim)
	}
	t.mu.Unlock()

	return lim.Allow() && t.total.Allow()
}
