// SPDX-License-Identifier: MIT

// Package api provides the HTTP surface of the soundloom streaming service.
package api

import (
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/soundloom/soundloom/internal/config"
	"github.com/soundloom/soundloom/internal/ratelimit"
	"github.com/soundloom/soundloom/internal/sse"
	"github.com/soundloom/soundloom/internal/stream"
	"github.com/soundloom/soundloom/internal/task"
)

// Authenticator resolves the owner identity of an incoming request.
type Authenticator interface {
	// Authenticate returns the owner id, or an error when the request
	// carries no usable identity.
	Authenticate(r *http.Request) (string, error)
}

// ErrNoIdentity is returned by authenticators when the request carries no
// owner identity.
var ErrNoIdentity = errors.New("request carries no owner identity")

// HeaderAuthenticator trusts an upstream gateway to place the owner id in
// a request header.
type HeaderAuthenticator struct {
	// Header is the name of the identity header. Defaults to X-Owner-ID.
	Header string
}

// Authenticate implements Authenticator.
func (a HeaderAuthenticator) Authenticate(r *http.Request) (string, error) {
	header := a.Header
	if header == "" {
		header = "X-Owner-ID"
	}
	owner := r.Header.Get(header)
	if owner == "" {
		return "", ErrNoIdentity
	}
	return owner, nil
}

// Server wires the registry, the per-mode runners and the SSE formatter
// into an HTTP handler tree.
type Server struct {
	holder  *config.Holder
	reg     *stream.Registry
	runners map[string]task.Runner
	limiter *ratelimit.Limiter
	auth    Authenticator

	startTime time.Time
}

// NewServer assembles a server. runners maps request modes ("generate",
// "edit", ...) to the task that fulfils them; a create request with an
// unknown mode is rejected.
func NewServer(holder *config.Holder, reg *stream.Registry, runners map[string]task.Runner, limiter *ratelimit.Limiter, auth Authenticator) *Server {
	if auth == nil {
		auth = HeaderAuthenticator{}
	}
	return &Server{
		holder:    holder,
		reg:       reg,
		runners:   runners,
		limiter:   limiter,
		auth:      auth,
		startTime: time.Now(),
	}
}

// Router builds the chi handler tree.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()

	r.Use(requestIDMiddleware)
	r.Use(loggingMiddleware)

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeNotFound(w)
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
	})

	r.Get("/healthz", s.handleHealthz)
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		r.With(createRateLimit()).Post("/compositions", s.handleCreate)
		r.Get("/compositions/{id}", s.handleGet)
		r.Get("/compositions/{id}/events", s.handleEvents)
		r.Delete("/compositions/{id}", s.handleCancel)
		r.Get("/quota", s.handleQuota)
	})

	return r
}

// streamer builds an SSE formatter from the current config so hot reloads
// affect new streams without restarting established ones.
func (s *Server) streamer() *sse.Streamer {
	cfg := s.holder.Get()
	return &sse.Streamer{
		Heartbeat: cfg.Streaming.HeartbeatInterval,
		Retry:     cfg.Streaming.RetryHint,
	}
}
