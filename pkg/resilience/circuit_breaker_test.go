package resilience

import (
	"errors"
	"fmt"
	"testing"
	"time"
)

func TestBreakerOpensOnRateLimitStreak(t *testing.T) {
	cb := NewCircuitBreaker(2, time.Minute)
	if !cb.Allow() {
		t.Fatalf("fresh breaker should allow")
	}
	cb.OnError(RateLimitError{Provider: "groq"})
	if !cb.Allow() {
		t.Fatalf("one failure below threshold should still allow")
	}
	cb.OnError(RateLimitError{Provider: "groq"})
	if cb.Allow() {
		t.Fatalf("breaker should be open after reaching the threshold")
	}
}

func TestBreakerIgnoresOtherErrors(t *testing.T) {
	cb := NewCircuitBreaker(1, time.Minute)
	cb.OnError(errors.New("connection refused"))
	if !cb.Allow() {
		t.Fatalf("non-rate-limit errors must not trip the breaker")
	}
}

func TestBreakerClosesOnSuccess(t *testing.T) {
	cb := NewCircuitBreaker(1, time.Minute)
	cb.OnError(RateLimitError{})
	if cb.Allow() {
		t.Fatalf("breaker should be open")
	}
	cb.OnSuccess()
	if !cb.Allow() {
		t.Fatalf("success should close the breaker")
	}
}

func TestBreakerHalfOpenAfterCooldown(t *testing.T) {
	cb := NewCircuitBreaker(1, time.Minute)
	clock := time.Now()
	cb.now = func() time.Time { return clock }

	cb.OnError(RateLimitError{})
	if cb.Allow() {
		t.Fatalf("breaker should be open")
	}

	clock = clock.Add(2 * time.Minute)
	if !cb.Allow() {
		t.Fatalf("probe should be allowed after the cooldown")
	}
	cb.OnError(RateLimitError{})
	if cb.Allow() {
		t.Fatalf("failed probe should reopen the breaker")
	}
}

func TestIsRateLimitUnwraps(t *testing.T) {
	err := fmt.Errorf("call oracle: %w", RateLimitError{Message: "too many requests"})
	if !IsRateLimit(err) {
		t.Fatalf("wrapped rate-limit error not recognized")
	}
	if IsRateLimit(errors.New("boom")) {
		t.Fatalf("plain error misclassified")
	}
}
