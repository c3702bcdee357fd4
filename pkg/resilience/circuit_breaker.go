// Package resilience guards the oracle backend against hammering a
// rate-limited provider: repeated 429s open a breaker that fails calls fast
// until a cooldown passes.
package resilience

import (
	"errors"
	"sync"
	"time"
)

// RateLimitError marks a provider rate-limit response.
type RateLimitError struct {
	Provider string
	Message  string
}

func (e RateLimitError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return "rate limit"
}

// IsRateLimit reports whether err is (or wraps) a RateLimitError.
func IsRateLimit(err error) bool {
	var rl RateLimitError
	return errors.As(err, &rl)
}

// ErrCircuitOpen is returned by callers that check Allow before a request.
var ErrCircuitOpen = errors.New("circuit open")

// CircuitBreaker opens after a streak of consecutive rate-limit errors and
// stays open for the cooldown. Once the cooldown passes it lets a probe
// through; a failed probe reopens immediately, a success closes it. Errors
// that are not rate limits never trip it; the retry loop handles those.
type CircuitBreaker struct {
	limit    int
	cooldown time.Duration
	now      func() time.Time

	mu       sync.Mutex
	streak   int
	openedAt time.Time
	open     bool
}

func NewCircuitBreaker(limit int, cooldown time.Duration) *CircuitBreaker {
	if limit <= 0 {
		limit = 3
	}
	if cooldown <= 0 {
		cooldown = 30 * time.Second
	}
	return &CircuitBreaker{limit: limit, cooldown: cooldown, now: time.Now}
}

// Allow reports whether a request may proceed.
func (c *CircuitBreaker) Allow() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.open {
		return true
	}
	if c.now().Sub(c.openedAt) < c.cooldown {
		return false
	}
	// Half-open: let one probe through, armed to reopen on its failure.
	c.open = false
	c.streak = c.limit - 1
	return true
}

// OnSuccess closes the breaker and clears the failure streak.
func (c *CircuitBreaker) OnSuccess() {
	c.mu.Lock()
	c.streak = 0
	c.open = false
	c.mu.Unlock()
}

// OnError counts a rate-limit failure; other errors are ignored.
func (c *CircuitBreaker) OnError(err error) {
	if !IsRateLimit(err) {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.streak++
	if c.streak >= c.limit {
		c.open = true
		c.openedAt = c.now()
	}
}
