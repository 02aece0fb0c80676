// SPDX-License-Identifier: MIT

package stream

import (
	"context"
	"time"
)

// Run starts the background expiry loop and blocks until ctx is cancelled.
// Every SweepInterval it expires non-terminal requests older than the TTL.
func (r *Registry) Run(ctx context.Context) {
	r.mu.Lock()
	interval := r.cfg.SweepInterval
	r.mu.Unlock()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	r.logger.Info().Dur("interval", interval).Msg("registry sweeper started")

	for {
		select {
		case <-ctx.Done():
			r.logger.Info().Msg("registry sweeper stopped")
			return
		case <-ticker.C:
			r.SweepOnce(r.nowFn())
		}
	}
}

// SweepOnce performs exactly one expiry pass and returns the number of
// requests removed. Deterministic and suitable for unit testing.
//
// Candidates are collected under the lock; removal (which may invoke a
// task cancel handle) happens outside it, and a failure on one candidate
// does not stop the pass.
func (r *Registry) SweepOnce(now time.Time) int {
	r.mu.Lock()
	var expired []string
	ttl := r.cfg.TTL
	for id, e := range r.byID {
		if e.status.IsTerminal() {
			continue
		}
		if now.Sub(e.createdAt) > ttl {
			expired = append(expired, id)
		}
	}
	r.mu.Unlock()

	removed := 0
	for _, id := range expired {
		if r.expireOne(id) {
			removed++
		}
	}

	if removed > 0 {
		r.logger.Info().Int("count", removed).Msg("sweep removed expired requests")
	}
	return removed
}

func (r *Registry) expireOne(id string) (ok bool) {
	defer func() {
		if p := recover(); p != nil {
			r.logger.Warn().
				Str("event", "sweep.candidate_failed").
				Str("stream_id", id).
				Interface("panic", p).
				Msg("expiry of one request failed; continuing sweep")
			ok = false
		}
	}()

	if !r.Remove(id, StatusTimedOut) {
		// Lost the race against completion or explicit cancellation.
		return false
	}
	sweepExpiredTotal.Inc()
	return true
}
