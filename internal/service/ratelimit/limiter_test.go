package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLimiterBurstPerKey(t *testing.T) {
	l := New(1, 2)
	assert.True(t, l.Allow("a"))
	assert.True(t, l.Allow("a"))
	assert.False(t, l.Allow("a"))
	assert.True(t, l.Allow("b"), "keys have separate buckets")
}

func TestLimiterWaitHonoursContext(t *testing.T) {
	l := New(1, 1)
	assert.NoError(t, l.Wait(context.Background(), "k"))

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	assert.Error(t, l.Wait(ctx, "k"))
}

func TestLimiterUnlimited(t *testing.T) {
	l := New(0, 1)
	for range 100 {
		assert.True(t, l.Allow("k"))
	}
}
