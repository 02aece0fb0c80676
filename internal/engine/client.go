// SPDX-License-Identifier: MIT

// Package engine is the HTTP client for the upstream composition backend.
// The backend does the actual generation work and streams its progress as
// newline-delimited JSON parts; this package only moves bytes and leaves
// interpretation to the composer.
package engine

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// Part is one NDJSON line of a backend response.
type Part struct {
	// Type discriminates the part: "stage", "delta", "action" or "result".
	Type string `json:"type"`

	// Stage parts.
	Name        string `json:"name,omitempty"`
	Description string `json:"description,omitempty"`

	// Delta parts: one fragment of the assistant's text response.
	Delta string `json:"delta,omitempty"`

	// Action parts.
	Action string          `json:"action,omitempty"`
	Data   json.RawMessage `json:"data,omitempty"`

	// Result parts: the final domain outcome.
	Result json.RawMessage `json:"result,omitempty"`
}

// ComposeRequest is the body sent to the backend.
type ComposeRequest struct {
	Mode    string          `json:"mode"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// Client talks to one backend instance.
type Client struct {
	base string
	http *http.Client
}

// New creates a client for the backend at base. The timeout bounds the
// whole exchange including the streamed body; zero disables it, leaving
// cancellation to the caller's context.
func New(base string, timeout time.Duration) *Client {
	return &Client{
		base: strings.TrimRight(base, "/"),
		http: &http.Client{Timeout: timeout},
	}
}

// Compose posts req and invokes emit for every part the backend streams
// back, in arrival order. It returns the first error from the transport,
// the decoder or emit; a non-2xx response is reported with a snippet of
// the body.
func (c *Client) Compose(ctx context.Context, req ComposeRequest, emit func(Part) error) error {
	body, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("marshal compose request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.base+"/v1/compose", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build compose request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/x-ndjson")

	res, err := c.http.Do(httpReq)
	if err != nil {
		return fmt.Errorf("compose request: %w", err)
	}
	defer res.Body.Close()

	if res.StatusCode < 200 || res.StatusCode > 299 {
		snippet, _ := io.ReadAll(io.LimitReader(res.Body, 512))
		return fmt.Errorf("compose backend returned %d: %s", res.StatusCode, strings.TrimSpace(string(snippet)))
	}

	scanner := bufio.NewScanner(res.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}
		var part Part
		if err := json.Unmarshal(line, &part); err != nil {
			return fmt.Errorf("decode compose part: %w", err)
		}
		if err := emit(part); err != nil {
			return err
		}
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("read compose stream: %w", err)
	}
	return nil
}
