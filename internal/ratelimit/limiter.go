// SPDX-License-Identifier: MIT

// Package ratelimit throttles request creation per owner, in front of the
// registry's concurrency quota.
package ratelimit

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"golang.org/x/time/rate"
)

var rateLimitExceeded = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "soundloom",
		Name:      "ratelimit_exceeded_total",
		Help:      "Total create attempts rejected by the per-owner rate limiter.",
	},
	[]string{"scope"},
)

// Config holds rate limiting configuration.
type Config struct {
	// PerOwnerRate is the sustained request-creation rate per owner.
	PerOwnerRate rate.Limit
	// PerOwnerBurst is the burst size per owner.
	PerOwnerBurst int
	// CleanupInterval bounds how long idle per-owner buckets are kept.
	CleanupInterval time.Duration
}

// DefaultConfig returns sensible defaults: composition requests are
// expensive, so the bucket is small.
func DefaultConfig() Config {
	return Config{
		PerOwnerRate:    1,
		PerOwnerBurst:   10,
		CleanupInterval: 5 * time.Minute,
	}
}

// Limiter manages one token bucket per owner.
type Limiter struct {
	config Config

	mu          sync.Mutex
	owners      map[string]*rate.Limiter
	lastCleanup time.Time
}

// New creates a limiter with the given config.
func New(config Config) *Limiter {
	return &Limiter{
		config:      config,
		owners:      make(map[string]*rate.Limiter),
		lastCleanup: time.Now(),
	}
}

// Allow reports whether owner may create a request now.
func (l *Limiter) Allow(owner string) bool {
	if !l.ownerLimiter(owner).Allow() {
		rateLimitExceeded.WithLabelValues("owner").Inc()
		return false
	}
	l.maybeCleanup()
	return true
}

func (l *Limiter) ownerLimiter(owner string) *rate.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()

	limiter, exists := l.owners[owner]
	if !exists {
		limiter = rate.NewLimiter(l.config.PerOwnerRate, l.config.PerOwnerBurst)
		l.owners[owner] = limiter
	}
	return limiter
}

// maybeCleanup drops all per-owner buckets once the cleanup interval has
// passed. Dropping everything is coarse but cheap; refilled buckets err on
// the permissive side.
func (l *Limiter) maybeCleanup() {
	l.mu.Lock()
	defer l.mu.Unlock()

	if time.Since(l.lastCleanup) < l.config.CleanupInterval {
		return
	}
	l.owners = make(map[string]*rate.Limiter)
	l.lastCleanup = time.Now()
}
