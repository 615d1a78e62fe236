package server

import (
	"fmt"
	"sync"
	"time"
)

// RateLimitConfig bounds requests and uploaded bytes per client. A zero
// limit disables that check.
type RateLimitConfig struct {
	Enabled           bool
	RequestsPerMinute int
	RequestsPerHour   int
	MaxRequestsPerDay int
	MaxDataPerDay     int64
}

// RateLimiter counts requests per client in fixed minute, hour and day
// windows.
type RateLimiter struct {
	mu      sync.Mutex
	limits  RateLimitConfig
	clients map[string]*ClientUsage
	now     func() time.Time
}

// ClientUsage is the state of one client's current windows.
type ClientUsage struct {
	Minute         time.Time
	Hour           time.Time
	Day            time.Time
	RequestsMinute int
	RequestsHour   int
	RequestsDay    int
	BytesDay       int64
}

// NewRateLimiter creates a limiter with the given limits.
func NewRateLimiter(limits RateLimitConfig) *RateLimiter {
	return &RateLimiter{
		limits:  limits,
		clients: make(map[string]*ClientUsage),
		now:     time.Now,
	}
}

// Allow records a request of size bytes from client, or returns a
// *RateLimitError or *QuotaExceededError without recording it.
func (rl *RateLimiter) Allow(client string, size int64) error {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	u, ok := rl.clients[client]
	if !ok {
		u = &ClientUsage{}
		rl.clients[client] = u
	}
	u.roll(now)

	if err := rl.check(u, size, now); err != nil {
		return err
	}

	u.RequestsMinute++
	u.RequestsHour++
	u.RequestsDay++
	u.BytesDay += size
	return nil
}

// roll starts new windows when now has left the current ones.
func (u *ClientUsage) roll(now time.Time) {
	if m := now.Truncate(time.Minute); !m.Equal(u.Minute) {
		u.Minute, u.RequestsMinute = m, 0
	}
	if h := now.Truncate(time.Hour); !h.Equal(u.Hour) {
		u.Hour, u.RequestsHour = h, 0
	}
	y, mo, d := now.Date()
	if day := time.Date(y, mo, d, 0, 0, 0, 0, now.Location()); !day.Equal(u.Day) {
		u.Day, u.RequestsDay, u.BytesDay = day, 0, 0
	}
}

func (rl *RateLimiter) check(u *ClientUsage, size int64, now time.Time) error {
	l := rl.limits
	if l.RequestsPerMinute > 0 && u.RequestsMinute >= l.RequestsPerMinute {
		return &RateLimitError{Type: "minute", Limit: l.RequestsPerMinute, RetryAfter: u.Minute.Add(time.Minute).Sub(now)}
	}
	if l.RequestsPerHour > 0 && u.RequestsHour >= l.RequestsPerHour {
		return &RateLimitError{Type: "hour", Limit: l.RequestsPerHour, RetryAfter: u.Hour.Add(time.Hour).Sub(now)}
	}

	resets := u.Day.AddDate(0, 0, 1)
	if l.MaxRequestsPerDay > 0 && u.RequestsDay >= l.MaxRequestsPerDay {
		return &QuotaExceededError{Type: "requests", Limit: int64(l.MaxRequestsPerDay), Used: int64(u.RequestsDay), Resets: resets}
	}
	if l.MaxDataPerDay > 0 && u.BytesDay+size > l.MaxDataPerDay {
		return &QuotaExceededError{Type: "data", Limit: l.MaxDataPerDay, Used: u.BytesDay, Resets: resets}
	}
	return nil
}

// Usage returns a copy of the client's counters.
func (rl *RateLimiter) Usage(client string) ClientUsage {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	if u, ok := rl.clients[client]; ok {
		return *u
	}
	return ClientUsage{}
}

// RateLimitError represents a rate limit violation.
type RateLimitError struct {
	Type       string        // "minute" or "hour"
	Limit      int           // the limit that was exceeded
	RetryAfter time.Duration // until the window ends
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("rate limit exceeded for %s (limit: %d, retry after: %v)", e.Type, e.Limit, e.RetryAfter)
}

// QuotaExceededError represents a daily quota violation.
type QuotaExceededError struct {
	Type   string    // "requests" or "data"
	Limit  int64     // the limit that was exceeded
	Used   int64     // current usage
	Resets time.Time // start of the next day
}

func (e *QuotaExceededError) Error() string {
	return fmt.Sprintf("quota exceeded for %s (used: %d, limit: %d, resets: %s)",
		e.Type, e.Used, e.Limit, e.Resets.Format(time.RFC3339))
}
