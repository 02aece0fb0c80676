// SPDX-License-Identifier: MIT

package ratelimit

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"golang.org/x/time/rate"
)

func TestLimiter_BurstThenDeny(t *testing.T) {
	l := New(Config{PerOwnerRate: rate.Limit(0.001), PerOwnerBurst: 3, CleanupInterval: time.Hour})

	for i := 0; i < 3; i++ {
		assert.True(t, l.Allow("u1"), "request %d within burst", i)
	}
	assert.False(t, l.Allow("u1"), "burst exhausted")
}

func TestLimiter_OwnersAreIndependent(t *testing.T) {
	l := New(Config{PerOwnerRate: rate.Limit(0.001), PerOwnerBurst: 1, CleanupInterval: time.Hour})

	assert.True(t, l.Allow("u1"))
	assert.False(t, l.Allow("u1"))
	assert.True(t, l.Allow("u2"), "second owner has its own bucket")
}

func TestLimiter_CleanupResetsBuckets(t *testing.T) {
	l := New(Config{PerOwnerRate: rate.Limit(0.001), PerOwnerBurst: 1, CleanupInterval: time.Nanosecond})

	assert.True(t, l.Allow("u1"))
	// The cleanup interval has long passed; the next call first drops the
	// exhausted bucket.
	assert.True(t, l.Allow("u1"))
}
