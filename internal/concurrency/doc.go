// File: internal/concurrency/doc.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Poll-mode concurrency primitives for hioload-bus: per-subscription poll
// loops, idle strategies (busy-spin, sleeping, adaptive backoff), a padded
// SPSC ring and optional thread pinning on Linux.
package concurrency
