// File: driver/sockopt_other.go
// Author: momentics <momentics@gmail.com>

//go:build !linux

package driver

import "syscall"

// reuseAddrControl is a no-op outside Linux; the platform defaults apply.
var reuseAddrControl func(network, address string, c syscall.RawConn) error
