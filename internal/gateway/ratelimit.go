package gateway

import (
	"errors"
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/v2/simplelru"
)

// Defaults for the per-client limiter.
const (
	DefaultRateLimitRequests   = 60
	DefaultRateLimitWindow     = time.Minute
	DefaultRateLimitMaxClients = 10000
)

// RateLimiterConfig configures a RateLimiter.
type RateLimiterConfig struct {
	// Requests is the quota per client per window.
	Requests int
	// Window is the length of the counting window.
	Window time.Duration
	// MaxClients bounds how many client windows are tracked; the least
	// recently seen client is evicted when full.
	MaxClients int
	// SweepInterval runs a background sweep that drops clients whose
	// timestamps have all expired. Zero disables the sweep.
	SweepInterval time.Duration
	// Clock overrides time.Now (tests).
	Clock func() time.Time
}

// RateLimiter counts requests per client identifier over a sliding window.
// The read-prune-append sequence for a client runs under one mutex, so the
// quota holds under concurrent requests.
type RateLimiter struct {
	mu      sync.Mutex
	windows *simplelru.LRU[string, []time.Time]
	limit   int
	window  time.Duration
	clock   func() time.Time

	stop     chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// NewRateLimiter builds a limiter; zero config fields fall back to defaults.
func NewRateLimiter(cfg RateLimiterConfig) (*RateLimiter, error) {
	if cfg.Requests < 0 || cfg.Window < 0 || cfg.MaxClients < 0 {
		return nil, errors.New("rate limiter settings must not be negative")
	}
	if cfg.Requests == 0 {
		cfg.Requests = DefaultRateLimitRequests
	}
	if cfg.Window == 0 {
		cfg.Window = DefaultRateLimitWindow
	}
	if cfg.MaxClients == 0 {
		cfg.MaxClients = DefaultRateLimitMaxClients
	}

	windows, err := simplelru.NewLRU[string, []time.Time](cfg.MaxClients, nil)
	if err != nil {
		return nil, err
	}

	r := &RateLimiter{
		windows: windows,
		limit:   cfg.Requests,
		window:  cfg.Window,
		clock:   cfg.Clock,
		stop:    make(chan struct{}),
	}

	if cfg.SweepInterval > 0 {
		r.wg.Add(1)
		go r.sweepLoop(cfg.SweepInterval)
	}

	return r, nil
}

// IsRateLimited reports whether clientID is over quota. When it is not, the
// attempt is recorded; rejected attempts are never recorded.
func (r *RateLimiter) IsRateLimited(clientID string) bool {
	now := r.now()

	r.mu.Lock()
	defer r.mu.Unlock()

	stamps, _ := r.windows.Get(clientID)
	retained := r.prune(stamps, now)

	if len(retained) >= r.limit {
		r.windows.Add(clientID, retained)
		return true
	}

	r.windows.Add(clientID, append(retained, now))
	return false
}

// Limit returns the configured quota and window.
func (r *RateLimiter) Limit() (int, time.Duration) {
	return r.limit, r.window
}

// Len returns the number of tracked clients.
func (r *RateLimiter) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.windows.Len()
}

// Sweep drops clients with no timestamps inside the window and returns how
// many were removed.
func (r *RateLimiter) Sweep() int {
	now := r.now()

	r.mu.Lock()
	defer r.mu.Unlock()

	removed := 0
	for _, key := range r.windows.Keys() {
		stamps, ok := r.windows.Peek(key)
		if !ok {
			continue
		}
		// Partially expired windows are left alone; the next request
		// prunes them and Add here would bump recency.
		if r.expired(stamps, now) {
			r.windows.Remove(key)
			removed++
		}
	}
	return removed
}

// Close stops the background sweep. Safe to call more than once.
func (r *RateLimiter) Close() {
	r.stopOnce.Do(func() {
		close(r.stop)
	})
	r.wg.Wait()
}

func (r *RateLimiter) sweepLoop(interval time.Duration) {
	defer r.wg.Done()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			r.Sweep()
		case <-r.stop:
			return
		}
	}
}

// prune keeps timestamps younger than the window. The result reuses the
// input's backing array.
func (r *RateLimiter) prune(stamps []time.Time, now time.Time) []time.Time {
	retained := stamps[:0]
	for _, ts := range stamps {
		if now.Sub(ts) < r.window {
			retained = append(retained, ts)
		}
	}
	return retained
}

func (r *RateLimiter) expired(stamps []time.Time, now time.Time) bool {
	for _, ts := range stamps {
		if now.Sub(ts) < r.window {
			return false
		}
	}
	return true
}

func (r *RateLimiter) now() time.Time {
	if r.clock != nil {
		return r.clock()
	}
	return time.Now()
}
