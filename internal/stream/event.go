// SPDX-License-Identifier: MIT

// Package stream implements the request-lifecycle registry and the
// per-request event channel that back the streaming composition API.
package stream

import "time"

// Kind identifies one of the closed set of event types a request stream
// can carry. The wire name of each kind is its string value.
type Kind string

const (
	KindConnected     Kind = "connected"
	KindStage         Kind = "stage"
	KindStatus        Kind = "status"
	KindResponseStart Kind = "response_start"
	KindResponseChunk Kind = "response_chunk"
	KindResponseEnd   Kind = "response_end"
	KindAction        Kind = "action"
	KindComplete      Kind = "complete"
	KindError         Kind = "error"
	KindCancelled     Kind = "cancelled"
	KindHeartbeat     Kind = "heartbeat"
)

// Terminal reports whether delivering an event of this kind ends the
// stream. Complete is the only terminal kind: failed tasks push an error
// event followed by a synthetic completion, so every stream ends the same way.
func (k Kind) Terminal() bool {
	return k == KindComplete
}

// Event is one record in a request's event stream. Concrete event types
// carry strongly typed payloads; consumers that need field access should
// type-assert rather than inspect the payload map.
type Event interface {
	Kind() Kind
	// Payload returns the JSON-serializable body of the event, or nil
	// when the record has no body.
	Payload() any
}

// Connected is the synthetic handshake marker emitted as the first record
// of every stream, before any task-produced event.
type Connected struct{}

func (Connected) Kind() Kind   { return KindConnected }
func (Connected) Payload() any { return nil }

// Stage announces that the task entered a named phase of its work.
type Stage struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

func (Stage) Kind() Kind     { return KindStage }
func (e Stage) Payload() any { return e }

// StatusUpdate carries free-form progress text within a stage.
type StatusUpdate struct {
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
}

func (StatusUpdate) Kind() Kind     { return KindStatus }
func (e StatusUpdate) Payload() any { return e }

// ResponseStart opens an incremental text response.
type ResponseStart struct {
	MessageID string `json:"messageId"`
}

func (ResponseStart) Kind() Kind     { return KindResponseStart }
func (e ResponseStart) Payload() any { return e }

// ResponseChunk carries one fragment of an incremental text response.
// ChunkIndex increases by one per chunk of the same message.
type ResponseChunk struct {
	MessageID  string `json:"messageId"`
	Chunk      string `json:"chunk"`
	ChunkIndex int    `json:"chunkIndex"`
}

func (ResponseChunk) Kind() Kind     { return KindResponseChunk }
func (e ResponseChunk) Payload() any { return e }

// ResponseEnd closes an incremental text response.
type ResponseEnd struct {
	MessageID  string `json:"messageId"`
	IsComplete bool   `json:"isComplete"`
}

func (ResponseEnd) Kind() Kind     { return KindResponseEnd }
func (e ResponseEnd) Payload() any { return e }

// Action reports a discrete side effect the task performed, such as a
// track being created or updated. Data is opaque to this package.
type Action struct {
	Type string `json:"type"`
	Data any    `json:"data"`
}

func (Action) Kind() Kind     { return KindAction }
func (e Action) Payload() any { return e }

// Complete is the terminal event of every stream. Result carries the
// domain outcome verbatim.
type Complete struct {
	Result any
}

func (Complete) Kind() Kind     { return KindComplete }
func (e Complete) Payload() any { return e.Result }

// Failure reports a task error to the client. It is not terminal on its
// own; a synthetic Complete follows it.
type Failure struct {
	Message string `json:"message"`
	Detail  string `json:"detail,omitempty"`
}

func (Failure) Kind() Kind     { return KindError }
func (e Failure) Payload() any { return e }

// Cancelled is emitted best-effort when the consumer goes away.
type Cancelled struct{}

func (Cancelled) Kind() Kind   { return KindCancelled }
func (Cancelled) Payload() any { return struct{}{} }

// Heartbeat is a synthetic keepalive record emitted on an idle stream.
type Heartbeat struct {
	Timestamp time.Time `json:"timestamp"`
}

func (Heartbeat) Kind() Kind     { return KindHeartbeat }
func (e Heartbeat) Payload() any { return e }
