// SPDX-License-Identifier: MIT

package sse

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/soundloom/soundloom/internal/log"
	"github.com/soundloom/soundloom/internal/stream"
)

// ErrStreamingUnsupported is returned when the response writer cannot
// flush incrementally.
var ErrStreamingUnsupported = errors.New("response writer does not support streaming")

const (
	defaultHeartbeat = 20 * time.Second
	defaultRetry     = 3 * time.Second
)

// Streamer formats one request's events for exactly one HTTP consumer.
type Streamer struct {
	// Heartbeat is the maximum idle time before a synthetic keepalive
	// record is emitted. Defaults to 20s.
	Heartbeat time.Duration
	// Retry is the reconnect backoff hint attached to every record.
	// Defaults to 3s.
	Retry time.Duration
}

// Run attaches to ch and writes formatted records to w until the terminal
// event is delivered, the consumer disappears, or a write fails.
//
// Return values map onto the request's disposal status:
//   - nil: the complete event was delivered; the stream ended normally.
//   - ctx.Err(): the consumer went away; a cancelled record was attempted
//     best-effort before returning.
//   - stream.ErrChannelClosed: the registry released the channel first
//     (expiry or cancellation from elsewhere); an error record was
//     attempted best-effort.
//   - anything else: a formatting/transport failure; an error record was
//     attempted best-effort.
//
// No retries happen in place: the caller disposes of the request and the
// client reconnects with a new request if it wants to resume.
func (s *Streamer) Run(ctx context.Context, ch *stream.Channel, w http.ResponseWriter) error {
	flusher, ok := w.(http.Flusher)
	if !ok {
		return ErrStreamingUnsupported
	}

	heartbeat := s.Heartbeat
	if heartbeat <= 0 {
		heartbeat = defaultHeartbeat
	}
	retry := s.Retry
	if retry <= 0 {
		retry = defaultRetry
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	// Disables response buffering in nginx-style intermediaries.
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)

	logger := log.WithContext(ctx, log.WithComponent("sse"))
	enc := NewEncoder(w)
	started := time.Now()
	var seq uint64

	emit := func(kind stream.Kind, payload any) error {
		seq++
		if err := enc.WriteRecord(string(kind), seq, retry, payload); err != nil {
			return err
		}
		flusher.Flush()
		recordsEmittedTotal.WithLabelValues(string(kind)).Inc()
		return nil
	}

	end := func(reason string, err error) error {
		streamsEndedTotal.WithLabelValues(reason).Inc()
		streamDurationSeconds.Observe(time.Since(started).Seconds())
		return err
	}

	// Handshake marker: lets the client confirm the channel is live before
	// any task-produced event arrives.
	if err := emit(stream.KindConnected, nil); err != nil {
		return end("write_failed", err)
	}

	for {
		ev, err := ch.Pop(ctx, heartbeat)
		switch {
		case errors.Is(err, stream.ErrPopTimeout):
			if werr := emit(stream.KindHeartbeat, stream.Heartbeat{Timestamp: time.Now().UTC()}.Payload()); werr != nil {
				return end("write_failed", werr)
			}
			heartbeatsSentTotal.Inc()
			continue

		case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
			// Consumer gone. Best-effort farewell; the write will usually
			// fail and that is fine.
			_ = emit(stream.KindCancelled, stream.Cancelled{}.Payload())
			logger.Debug().Str("event", "stream.consumer_gone").Msg("consumer disconnected mid-stream")
			return end("cancelled", ctx.Err())

		case errors.Is(err, stream.ErrChannelClosed):
			// The registry disposed of the request underneath us (TTL
			// expiry or cancellation through another path).
			_ = emit(stream.KindError, stream.Failure{Message: "request no longer active"}.Payload())
			return end("channel_closed", err)

		case err != nil:
			_ = emit(stream.KindError, stream.Failure{Message: err.Error()}.Payload())
			return end("error", err)
		}

		if err := emit(ev.Kind(), ev.Payload()); err != nil {
			return end("write_failed", err)
		}

		if ev.Kind().Terminal() {
			// The stream closes after the terminal event; nothing further
			// is read from the channel.
			return end("complete", nil)
		}
	}
}
