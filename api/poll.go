// Package api
// Author: momentics
//
// Poll-mode contracts: the idle strategy applied between polls.

package api

// IdleStrategy decides what a poll loop does after each poll.
type IdleStrategy interface {
	// Idle is called with the work count returned by the last poll.
	// A non-zero count resets any backoff.
	Idle(workCount int)

	// Reset clears accumulated backoff state.
	Reset()

	// Name identifies the strategy in logs and stats.
	Name() string
}
