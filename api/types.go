// File: api/types.go
// Author: momentics <momentics@gmail.com>
//
// Shared API-level type declarations, DTOs, and constants.

package api

import "time"

// Table capacities fixed by the host contract.
const (
	PublicationCapacity  = 256
	SubscriptionCapacity = 8
	FragmentLimit        = 10
)

// SessionStatus enumerates the state of a driver session.
type SessionStatus int

const (
	SessionUnknown SessionStatus = iota
	SessionConnecting
	SessionActive
	SessionClosing
	SessionClosed
)

func (s SessionStatus) String() string {
	switch s {
	case SessionConnecting:
		return "connecting"
	case SessionActive:
		return "active"
	case SessionClosing:
		return "closing"
	case SessionClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// BusInfo exposes descriptive runtime info for external tools.
type BusInfo struct {
	ClientName string
	ClientID   int64
	Dir        string
	Status     SessionStatus
	StartedAt  time.Time
}
