// SPDX-License-Identifier: MIT

package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/soundloom/soundloom/internal/log"
	"github.com/soundloom/soundloom/internal/sse"
	"github.com/soundloom/soundloom/internal/stream"
	"github.com/soundloom/soundloom/internal/task"
)

// createRequest is the body of POST /api/v1/compositions.
type createRequest struct {
	Mode    string          `json:"mode"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// createResponse is returned on successful registration.
type createResponse struct {
	ID     string        `json:"id"`
	Status stream.Status `json:"status"`
}

func (s *Server) handleCreate(w http.ResponseWriter, r *http.Request) {
	owner, err := s.auth.Authenticate(r)
	if err != nil {
		writeUnauthorized(w)
		return
	}

	var req createRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, fmt.Errorf("invalid request body: %w", err))
		return
	}
	if req.Mode == "" {
		req.Mode = "generate"
	}
	runner, ok := s.runners[req.Mode]
	if !ok {
		writeError(w, fmt.Errorf("unknown mode %q", req.Mode))
		return
	}

	if !s.limiter.Allow(owner) {
		w.Header().Set("Retry-After", "1")
		writeTooManyRequests(w, "rate_limited")
		return
	}

	id, err := s.reg.CreateRequest(owner, req.Mode, req.Payload)
	if err != nil {
		if errors.Is(err, stream.ErrQuotaExceeded) {
			writeTooManyRequests(w, "quota_exceeded")
			return
		}
		writeError(w, err)
		return
	}

	ctx := log.ContextWithOwnerID(r.Context(), owner)
	if !task.Launch(ctx, s.reg, id, runner) {
		// The request vanished between create and launch; only the sweeper
		// can do that, and only after a full TTL.
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "request disposed before launch"})
		return
	}

	snap, _ := s.reg.Get(id)
	writeJSON(w, http.StatusCreated, createResponse{ID: id, Status: snap.Status})
}

func (s *Server) handleGet(w http.ResponseWriter, r *http.Request) {
	owner, err := s.auth.Authenticate(r)
	if err != nil {
		writeUnauthorized(w)
		return
	}
	id := chi.URLParam(r, "id")

	snap, ok := s.reg.Get(id)
	if !ok || snap.Owner != owner {
		// Not distinguishing "gone" from "not yours" keeps request ids
		// unguessable across owners.
		writeNotFound(w)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	owner, err := s.auth.Authenticate(r)
	if err != nil {
		writeUnauthorized(w)
		return
	}
	id := chi.URLParam(r, "id")

	if !s.reg.Validate(id, owner) {
		writeNotFound(w)
		return
	}
	ch, ok := s.reg.GetChannel(id)
	if !ok {
		writeNotFound(w)
		return
	}

	ctx := log.ContextWithStreamID(log.ContextWithOwnerID(r.Context(), owner), id)
	logger := log.WithContext(ctx, log.WithComponent("api"))

	err = s.streamer().Run(ctx, ch, w)
	switch {
	case err == nil:
		// Terminal event delivered; the disposal keeps the task-set status.
		s.reg.Remove(id, stream.StatusCompleted)

	case errors.Is(err, sse.ErrStreamingUnsupported):
		// Nothing was written yet; a plain error response is still possible.
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})

	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		s.reg.Remove(id, stream.StatusCancelled)
		logger.Info().Str("event", "stream.client_disconnected").Msg("consumer went away; request cancelled")

	case errors.Is(err, stream.ErrChannelClosed):
		// The registry already disposed of the request (expiry or an explicit
		// cancel through another connection).

	default:
		s.reg.Remove(id, stream.StatusFailed)
		logger.Error().Err(err).Str("event", "stream.failed").Msg("stream ended abnormally")
	}
}

func (s *Server) handleCancel(w http.ResponseWriter, r *http.Request) {
	owner, err := s.auth.Authenticate(r)
	if err != nil {
		writeUnauthorized(w)
		return
	}
	id := chi.URLParam(r, "id")

	if !s.reg.Validate(id, owner) {
		writeNotFound(w)
		return
	}
	s.reg.Remove(id, stream.StatusCancelled)
	writeJSON(w, http.StatusOK, map[string]string{
		"id":     id,
		"status": string(stream.StatusCancelled),
	})
}

// quotaResponse reports an owner's concurrency quota usage.
type quotaResponse struct {
	Limit     int `json:"limit"`
	Active    int `json:"active"`
	Remaining int `json:"remaining"`
}

func (s *Server) handleQuota(w http.ResponseWriter, r *http.Request) {
	owner, err := s.auth.Authenticate(r)
	if err != nil {
		writeUnauthorized(w)
		return
	}

	limit := s.reg.OwnerLimit()
	active := s.reg.CountActive(owner)
	remaining := limit - active
	if remaining < 0 {
		remaining = 0
	}
	writeJSON(w, http.StatusOK, quotaResponse{Limit: limit, Active: active, Remaining: remaining})
}

func (s *Server) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":         "ok",
		"active_streams": s.reg.CountActive(""),
		"uptime_seconds": int(time.Since(s.startTime).Seconds()),
	})
}
