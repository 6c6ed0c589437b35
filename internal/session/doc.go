// Package session
// Author: momentics <momentics@gmail.com>
//
// Transport session: one connection to a media driver plus the lifecycle
// callbacks the host sees. Endpoint registration is asynchronous in the
// driver; the session turns each registration into a future that the
// driver's ready notification completes, bounded by a timeout.

package session
