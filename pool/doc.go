// Package pool
// Author: momentics <momentics@gmail.com>
//
// Memory layer for hioload-bus: aligned, recycled scratch regions for the
// zero-copy-oriented publish path and a generic sync.Pool wrapper.
package pool
