// SPDX-License-Identifier: MIT

// Package compose is the domain task behind the streaming API: it drives
// the upstream composition backend and translates its progress into the
// event vocabulary clients consume.
package compose

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"github.com/soundloom/soundloom/internal/engine"
	"github.com/soundloom/soundloom/internal/log"
	"github.com/soundloom/soundloom/internal/stream"
)

// Generator produces composition parts for one request. *engine.Client is
// the production implementation; tests supply scripted generators.
type Generator interface {
	Compose(ctx context.Context, req engine.ComposeRequest, emit func(engine.Part) error) error
}

// Composer fulfills the task contract for generate/edit requests.
type Composer struct {
	gen Generator
}

// New returns a Composer backed by gen.
func New(gen Generator) *Composer {
	return &Composer{gen: gen}
}

// Run streams the backend's parts into ch as typed events. On success the
// backend's result part becomes the terminal complete event; if the
// backend never sends one, a bare completion is synthesized so the stream
// still terminates. On error or cancellation nothing terminal is pushed;
// the launcher owns that bookkeeping.
func (c *Composer) Run(ctx context.Context, req stream.Snapshot, ch *stream.Channel) error {
	logger := log.WithContext(ctx, log.WithComponent("compose"))

	var (
		messageID  string
		chunkIndex int
		gotResult  bool
	)

	closeResponse := func(complete bool) {
		if messageID == "" {
			return
		}
		ch.Push(stream.ResponseEnd{MessageID: messageID, IsComplete: complete})
		messageID = ""
	}

	err := c.gen.Compose(ctx, engine.ComposeRequest{Mode: req.Mode, Payload: req.Payload}, func(p engine.Part) error {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		switch p.Type {
		case "stage":
			closeResponse(true)
			ch.Push(stream.Stage{Name: p.Name, Description: p.Description})

		case "delta":
			if messageID == "" {
				messageID = "msg-" + uuid.NewString()[:8]
				chunkIndex = 0
				ch.Push(stream.ResponseStart{MessageID: messageID})
			}
			ch.Push(stream.ResponseChunk{MessageID: messageID, Chunk: p.Delta, ChunkIndex: chunkIndex})
			chunkIndex++

		case "action":
			ch.Push(stream.Action{Type: p.Action, Data: p.Data})

		case "result":
			closeResponse(true)
			ch.Push(stream.Complete{Result: p.Result})
			gotResult = true

		default:
			return fmt.Errorf("backend sent unknown part type %q", p.Type)
		}
		return nil
	})

	if err != nil {
		return err
	}
	if ctx.Err() != nil {
		return ctx.Err()
	}

	if !gotResult {
		logger.Warn().Str("event", "compose.no_result").Msg("backend stream ended without a result part")
		closeResponse(false)
		ch.Push(stream.Complete{Result: json.RawMessage(`{}`)})
	}
	return nil
}
