// SPDX-License-Identifier: MIT

// Package task binds domain runners to registry entries. It owns the
// contract between the streaming core and the code that actually produces
// content.
package task

import (
	"context"
	"fmt"

	"github.com/soundloom/soundloom/internal/log"
	"github.com/soundloom/soundloom/internal/stream"
)

// Runner performs the domain work for one streaming request.
//
// A runner receives the request snapshot (mode and caller payload) and the
// request's event channel. It must:
//   - push progress events only through the channel;
//   - on success, push exactly one terminal complete event and return nil;
//   - on failure, return a non-nil error and push no terminal event
//     (Launch converts the error into an error record plus a synthetic
//     completion);
//   - stop promptly when ctx is cancelled, without pushing further events,
//     and return ctx.Err().
type Runner interface {
	Run(ctx context.Context, req stream.Snapshot, ch *stream.Channel) error
}

// Func adapts a plain function to the Runner interface.
type Func func(ctx context.Context, req stream.Snapshot, ch *stream.Channel) error

// Run implements Runner.
func (f Func) Run(ctx context.Context, req stream.Snapshot, ch *stream.Channel) error {
	return f(ctx, req, ch)
}

// Launch starts r in the background for the registered request id. It
// moves the request to Processing, attaches a cancellation handle the
// registry can revoke, and guarantees the terminal bookkeeping: whatever
// the runner does, the request ends with a terminal status and, unless it
// was cancelled, the client sees a terminal event.
//
// Returns false if id is unknown (already disposed).
func Launch(ctx context.Context, reg *stream.Registry, id string, r Runner) bool {
	snap, ok := reg.Get(id)
	if !ok {
		return false
	}
	ch, ok := reg.GetChannel(id)
	if !ok {
		return false
	}

	// The task outlives the HTTP request that created it; keep the caller's
	// values (correlation IDs) but not its cancellation.
	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	runCtx = log.ContextWithStreamID(runCtx, id)
	runCtx = log.ContextWithOwnerID(runCtx, snap.Owner)

	if !reg.AttachCancel(id, cancel) {
		cancel()
		return false
	}
	reg.SetStatus(id, stream.StatusProcessing)

	logger := log.WithContext(runCtx, log.WithComponent("task"))

	go func() {
		defer cancel()

		err := runProtected(runCtx, r, snap, ch)

		switch {
		case runCtx.Err() != nil:
			// Revoked by the registry (client disconnect or TTL expiry).
			// The contract forbids pushing events after cancellation; the
			// registry entry is usually gone already.
			reg.SetStatus(id, stream.StatusCancelled)
			logger.Debug().Str("event", "task.cancelled").Msg("task stopped cooperatively")

		case err != nil:
			ch.Push(stream.Failure{Message: "composition failed", Detail: err.Error()})
			ch.Push(stream.Complete{Result: map[string]any{"success": false}})
			reg.SetStatus(id, stream.StatusFailed)
			logger.Error().Err(err).Str("event", "task.failed").Msg("task ended with error")

		default:
			reg.SetStatus(id, stream.StatusCompleted)
			logger.Info().Str("event", "task.completed").Msg("task finished")
		}
	}()

	return true
}

// runProtected keeps a panicking runner from taking the process down; the
// panic is surfaced like any other task failure.
func runProtected(ctx context.Context, r Runner, req stream.Snapshot, ch *stream.Channel) (err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("task panic: %v", p)
		}
	}()
	return r.Run(ctx, req, ch)
}
