// File: driver/sockopt_linux.go
// Author: momentics <momentics@gmail.com>

//go:build linux

package driver

import (
	"syscall"

	"golang.org/x/sys/unix"
)

const receiveBufferBytes = 2 << 20

// reuseAddrControl lets several drivers in one host share an endpoint
// during restarts and sizes the receive buffer for bursts.
func reuseAddrControl(network, address string, c syscall.RawConn) error {
	var serr error
	err := c.Control(func(fd uintptr) {
		serr = unix.SetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_REUSEADDR, 1)
		if serr == nil {
			serr = unix.SetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_RCVBUF, receiveBufferBytes)
		}
	})
	if err != nil {
		return err
	}
	return serr
}
