// SPDX-License-Identifier: MIT

package stream

import "errors"

var (
	// ErrQuotaExceeded is returned by CreateRequest when the owner already
	// has the maximum number of live requests.
	ErrQuotaExceeded = errors.New("per-owner request quota exceeded")

	// ErrNotFound is returned for operations against an unknown or
	// already-disposed request id.
	ErrNotFound = errors.New("request not found")

	// ErrPopTimeout is returned by Channel.Pop when no event arrived
	// within the given timeout.
	ErrPopTimeout = errors.New("event channel pop timed out")

	// ErrChannelClosed is returned by Channel.Pop after the channel has
	// been released and drained.
	ErrChannelClosed = errors.New("event channel closed")
)
