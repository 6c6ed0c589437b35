// File: internal/handles/doc.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Package handles implements fixed-capacity handle tables: small integer
// handles standing in for owned transport endpoints.
//
// Allocation always takes the lowest free index, found through an occupancy
// bitmap. The table lock covers only scan-and-occupy and release of a bit.
// Each slot carries its own RWMutex: users of an endpoint (publish, queries)
// hold the read side, removal takes the write side, so an endpoint is never
// closed under an in-flight caller.
package handles
