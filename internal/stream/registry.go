// SPDX-License-Identifier: MIT

package stream

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/soundloom/soundloom/internal/log"
)

// Config holds the registry's tunables. Zero values fall back to defaults.
type Config struct {
	// OwnerLimit is the maximum number of live requests per owner.
	OwnerLimit int
	// TTL is the maximum age a non-terminal request may reach before the
	// sweeper expires it.
	TTL time.Duration
	// SweepInterval is the period of the background expiry loop.
	SweepInterval time.Duration
}

const (
	defaultOwnerLimit    = 5
	defaultTTL           = 300 * time.Second
	defaultSweepInterval = 60 * time.Second
)

func (c *Config) applyDefaults() {
	if c.OwnerLimit <= 0 {
		c.OwnerLimit = defaultOwnerLimit
	}
	if c.TTL <= 0 {
		c.TTL = defaultTTL
	}
	if c.SweepInterval <= 0 {
		c.SweepInterval = defaultSweepInterval
	}
}

// entry is the registry-internal request context. All mutable fields are
// guarded by the registry mutex.
type entry struct {
	id        string
	owner     string
	mode      string
	payload   json.RawMessage
	createdAt time.Time
	status    Status
	channel   *Channel
	cancel    context.CancelFunc
}

// Snapshot is a read-only copy of one request context.
type Snapshot struct {
	ID        string          `json:"id"`
	Owner     string          `json:"owner"`
	Mode      string          `json:"mode"`
	Status    Status          `json:"status"`
	CreatedAt time.Time       `json:"createdAt"`
	Payload   json.RawMessage `json:"-"`
}

// Registry creates, tracks, expires and cancels the per-user background
// operations behind the streaming API. It is the only component allowed to
// mutate the owner index, and it serializes all mutation behind a single
// mutex so concurrent create/remove/sweep interleavings never leave the
// indices inconsistent.
type Registry struct {
	mu      sync.Mutex
	cfg     Config
	byID    map[string]*entry
	byOwner map[string]map[string]struct{}

	logger zerolog.Logger

	// nowFn is swapped in tests for deterministic expiry.
	nowFn func() time.Time
}

// NewRegistry constructs an idle registry. Call Run to start the sweeper.
func NewRegistry(cfg Config) *Registry {
	cfg.applyDefaults()
	return &Registry{
		cfg:     cfg,
		byID:    make(map[string]*entry),
		byOwner: make(map[string]map[string]struct{}),
		logger:  log.WithComponent("registry"),
		nowFn:   time.Now,
	}
}

// CanCreate reports whether owner is below the concurrency limit. It is a
// side-effect-free preview; CreateRequest re-checks under the lock.
func (r *Registry) CanCreate(owner string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.byOwner[owner]) < r.cfg.OwnerLimit
}

// CreateRequest allocates a fresh request context in Pending, with its own
// event channel, and inserts it into both indices. The quota check and the
// insert happen under one lock, so the owner limit is enforced strictly.
func (r *Registry) CreateRequest(owner, mode string, payload json.RawMessage) (string, error) {
	now := r.nowFn()
	id := newRequestID(now)

	r.mu.Lock()
	if len(r.byOwner[owner]) >= r.cfg.OwnerLimit {
		r.mu.Unlock()
		requestCreatesTotal.WithLabelValues("quota_exceeded").Inc()
		return "", fmt.Errorf("%w: owner %s at limit %d", ErrQuotaExceeded, owner, r.cfg.OwnerLimit)
	}
	e := &entry{
		id:        id,
		owner:     owner,
		mode:      mode,
		payload:   payload,
		createdAt: now,
		status:    StatusPending,
		channel:   NewChannel(),
	}
	r.byID[id] = e
	ids := r.byOwner[owner]
	if ids == nil {
		ids = make(map[string]struct{})
		r.byOwner[owner] = ids
	}
	ids[id] = struct{}{}
	r.mu.Unlock()

	requestCreatesTotal.WithLabelValues("created").Inc()
	requestsActive.Inc()

	r.logger.Info().
		Str("event", "request.created").
		Str("stream_id", id).
		Str("owner", owner).
		Str("mode", mode).
		Msg("request registered")

	return id, nil
}

// newRequestID allocates a process-unique id that sorts roughly by
// creation time.
func newRequestID(now time.Time) string {
	return fmt.Sprintf("req-%d-%s", now.UnixNano(), uuid.NewString()[:8])
}

// AttachCancel records the running task's cancellation handle. It returns
// false if the request was already disposed, in which case the caller
// should treat its task as cancelled.
func (r *Registry) AttachCancel(id string, cancel context.CancelFunc) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.byID[id]
	if !ok {
		return false
	}
	e.cancel = cancel
	return true
}

// SetStatus updates the request's lifecycle status. Transitions that would
// violate the monotonic state machine are ignored; unknown ids return false.
func (r *Registry) SetStatus(id string, status Status) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.byID[id]
	if !ok {
		return false
	}
	if !e.status.canTransition(status) {
		return false
	}
	e.status = status
	return true
}

// GetChannel returns the request's event channel.
func (r *Registry) GetChannel(id string) (*Channel, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.byID[id]
	if !ok {
		return nil, false
	}
	return e.channel, true
}

// Validate reports whether id exists, and when owner is non-empty, whether
// the caller owns it.
func (r *Registry) Validate(id, owner string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.byID[id]
	if !ok {
		return false
	}
	return owner == "" || e.owner == owner
}

// Get returns a snapshot of the request context.
func (r *Registry) Get(id string) (Snapshot, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.byID[id]
	if !ok {
		return Snapshot{}, false
	}
	return Snapshot{
		ID:        e.id,
		Owner:     e.owner,
		Mode:      e.mode,
		Status:    e.status,
		CreatedAt: e.createdAt,
		Payload:   e.payload,
	}, true
}

// CountActive returns the number of live requests for owner, or for the
// whole registry when owner is empty.
func (r *Registry) CountActive(owner string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	if owner == "" {
		return len(r.byID)
	}
	return len(r.byOwner[owner])
}

// OwnerLimit returns the configured per-owner concurrency limit.
func (r *Registry) OwnerLimit() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.cfg.OwnerLimit
}

// UpdateConfig applies new limits on a running registry. The sweep
// interval of an already started Run loop is not changed.
func (r *Registry) UpdateConfig(ownerLimit int, ttl time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if ownerLimit > 0 {
		r.cfg.OwnerLimit = ownerLimit
	}
	if ttl > 0 {
		r.cfg.TTL = ttl
	}
}

// Remove disposes of the request: records the final status, removes it
// from both indices, cancels a still-attached task handle and releases the
// channel. Idempotent; the second call is a no-op returning false.
//
// The task cancel handle is invoked outside the registry lock so a cancel
// handler calling back into the registry cannot deadlock.
func (r *Registry) Remove(id string, final Status) bool {
	r.mu.Lock()
	e, ok := r.byID[id]
	if !ok {
		r.mu.Unlock()
		return false
	}
	// A task that already reached a terminal status keeps it; Remove only
	// decides the final status for requests still in flight.
	wasTerminal := e.status.IsTerminal()
	if !wasTerminal {
		e.status = final
	} else {
		final = e.status
	}
	delete(r.byID, id)
	if ids := r.byOwner[e.owner]; ids != nil {
		delete(ids, id)
		if len(ids) == 0 {
			delete(r.byOwner, e.owner)
		}
	}
	cancel := e.cancel
	channel := e.channel
	r.mu.Unlock()

	channel.Close()

	requestsActive.Dec()
	requestEndTotal.WithLabelValues(string(final)).Inc()

	r.logger.Info().
		Str("event", "request.removed").
		Str("stream_id", id).
		Str("owner", e.owner).
		Str("final_status", string(final)).
		Msg("request disposed")

	// Invoked last, outside the lock, with the indices already consistent.
	if cancel != nil && !wasTerminal {
		cancel()
	}

	return true
}
