package handlers

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestPerMinuteRateLimiter(t *testing.T) {
	now := time.Date(2025, 3, 7, 9, 0, 0, 0, time.UTC)
	limiter := NewPerMinuteRateLimiter(3, func() time.Time { return now })

	for i := 0; i < 3; i++ {
		assert.True(t, limiter.Allow("203.0.113.7"), "request %d", i)
	}
	assert.False(t, limiter.Allow("203.0.113.7"))
	assert.True(t, limiter.Allow("198.51.100.2"), "keys are limited independently")

	now = now.Add(20 * time.Second)
	assert.True(t, limiter.Allow("203.0.113.7"), "one token refills every 20s")
	assert.False(t, limiter.Allow("203.0.113.7"))
}

func TestPerMinuteRateLimiterDisabled(t *testing.T) {
	assert.Nil(t, NewPerMinuteRateLimiter(0, nil))
}

func TestPerMinuteRateLimiterPrunesIdleKeys(t *testing.T) {
	now := time.Date(2025, 3, 7, 9, 0, 0, 0, time.UTC)
	limiter := NewPerMinuteRateLimiter(1, func() time.Time { return now }).(*keyedRateLimiter)

	limiter.Allow("a")
	now = now.Add(11 * time.Minute)
	limiter.Allow("b")
	assert.NotContains(t, limiter.buckets, "a")
	assert.Contains(t, limiter.buckets, "b")
}
