package ratelimit

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPerMinute_BurstThenDeny(t *testing.T) {
	t.Parallel()

	l := PerMinute(3)

	for i := range 3 {
		assert.True(t, l.Allow(1), "event %d", i)
	}

	assert.False(t, l.Allow(1))
	assert.True(t, l.Allow(2), "users have separate buckets")
}

func TestPerMinute_Disabled(t *testing.T) {
	t.Parallel()

	l := PerMinute(0)

	for range 100 {
		assert.True(t, l.Allow(1))
	}
}

func TestPerMinute_ResetsWhenFull(t *testing.T) {
	t.Parallel()

	l := PerMinute(1)

	assert.True(t, l.Allow(0))
	assert.False(t, l.Allow(0))

	for id := int64(1); id < maxTracked; id++ {
		l.Allow(id)
	}

	assert.Len(t, l.limiters, maxTracked)

	l.Allow(maxTracked)

	assert.Len(t, l.limiters, 1)
	assert.True(t, l.Allow(0), "a reset forgets spent buckets")
}
