// SPDX-License-Identifier: MIT

package stream

// Status is the lifecycle state of one request context.
//
// Transitions are monotonic: Pending -> Processing -> {Completed, Failed},
// with Cancelled and TimedOut reachable from any non-terminal state. A
// context never re-enters Pending.
type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
	StatusCancelled  Status = "cancelled"
	StatusTimedOut   Status = "timed_out"
)

// IsTerminal reports whether no further transitions are allowed.
func (s Status) IsTerminal() bool {
	switch s {
	case StatusCompleted, StatusFailed, StatusCancelled, StatusTimedOut:
		return true
	}
	return false
}

// canTransition reports whether moving from s to next respects the
// monotonic state machine.
func (s Status) canTransition(next Status) bool {
	if s.IsTerminal() {
		return false
	}
	if next == StatusPending {
		return s == StatusPending
	}
	return true
}
