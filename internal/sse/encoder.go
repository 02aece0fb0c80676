// SPDX-License-Identifier: MIT

// Package sse turns a request's event channel into a Server-Sent Events
// response: one labeled text record per event, heartbeats on idle, and
// terminal-event detection.
package sse

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"
)

// Encoder writes SSE records to a single destination. It is not safe for
// concurrent use; each stream has exactly one consumer.
type Encoder struct {
	w io.Writer
}

// NewEncoder wraps w.
func NewEncoder(w io.Writer) *Encoder {
	return &Encoder{w: w}
}

// WriteRecord emits one record:
//
//	event: <kind>
//	id: <seq>
//	retry: <milliseconds>
//	data: <json payload>
//	<blank line>
//
// The event line is omitted for an empty kind and the retry line for a
// non-positive hint. A nil payload is encoded as an empty JSON object.
// Payloads whose JSON contains embedded newlines are split across
// consecutive data lines.
func (e *Encoder) WriteRecord(kind string, seq uint64, retry time.Duration, payload any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal %s payload: %w", kind, err)
	}
	if payload == nil {
		body = []byte("{}")
	}

	var buf bytes.Buffer
	if kind != "" {
		fmt.Fprintf(&buf, "event: %s\n", kind)
	}
	fmt.Fprintf(&buf, "id: %d\n", seq)
	if retry > 0 {
		fmt.Fprintf(&buf, "retry: %d\n", retry.Milliseconds())
	}
	for _, line := range strings.Split(string(body), "\n") {
		fmt.Fprintf(&buf, "data: %s\n", line)
	}
	buf.WriteByte('\n')

	if _, err := e.w.Write(buf.Bytes()); err != nil {
		return fmt.Errorf("write %s record: %w", kind, err)
	}
	return nil
}
