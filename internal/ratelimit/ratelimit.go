// Package ratelimit implements per-client sliding-window admission control.
// Each client has independent per-minute and per-hour windows. Thread-safe.
package ratelimit

import (
	"sync"
	"time"
)

const (
	minuteWindow = time.Minute
	hourWindow   = time.Hour
)

// Config configures the limiter. A zero limit disables that window.
type Config struct {
	PerMinute int
	PerHour   int
}

// Limiter tracks request timestamps per client key (an IP address).
type Limiter struct {
	mu      sync.Mutex
	clients map[string][]time.Time
	cfg     Config
	now     func() time.Time
}

// NewLimiter creates a limiter with the given configuration.
func NewLimiter(cfg Config) *Limiter {
	return &Limiter{
		clients: make(map[string][]time.Time),
		cfg:     cfg,
		now:     time.Now,
	}
}

// Allow checks both windows for key and records the request when admitted.
// When rejected, retryAfter is how long until the oldest request in the
// exceeded window expires, rounded up to whole seconds.
func (l *Limiter) Allow(key string) (retryAfter time.Duration, ok bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	stamps := l.clients[key]

	if wait, over := exceeded(stamps, now, minuteWindow, l.cfg.PerMinute); over {
		return wait, false
	}
	if wait, over := exceeded(stamps, now, hourWindow, l.cfg.PerHour); over {
		return wait, false
	}

	l.clients[key] = append(stamps, now)
	return 0, true
}

// Cleanup drops timestamps older than the longest window and forgets
// clients with none left.
func (l *Limiter) Cleanup() {
	l.mu.Lock()
	defer l.mu.Unlock()

	cutoff := l.now().Add(-hourWindow)
	for key, stamps := range l.clients {
		kept := stamps[:0]
		for _, ts := range stamps {
			if ts.After(cutoff) {
				kept = append(kept, ts)
			}
		}
		if len(kept) == 0 {
			delete(l.clients, key)
			continue
		}
		l.clients[key] = kept
	}
}

// Clients returns how many clients are currently tracked.
func (l *Limiter) Clients() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.clients)
}

// exceeded counts stamps inside window and reports whether limit is reached.
// stamps are in ascending order.
func exceeded(stamps []time.Time, now time.Time, window time.Duration, limit int) (time.Duration, bool) {
	if limit <= 0 {
		return 0, false
	}
	cutoff := now.Add(-window)

	first := -1
	count := 0
	for i, ts := range stamps {
		if ts.After(cutoff) {
			if first < 0 {
				first = i
			}
			count++
		}
	}
	if count < limit {
		return 0, false
	}

	// The request becomes admissible once enough of the oldest in-window
	// stamps have expired to bring the count below limit.
	oldest := stamps[first+count-limit]
	wait := oldest.Add(window).Sub(now)
	return roundUpSeconds(wait), true
}

func roundUpSeconds(d time.Duration) time.Duration {
	if d <= time.Second {
		return time.Second
	}
	secs := (d + time.Second - 1) / time.Second
	return secs * time.Second
}
