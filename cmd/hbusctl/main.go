// File: cmd/hbusctl/main.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// hbusctl publishes, subscribes and measures round trips on a hioload-bus
// driver directory.

package main

func main() {
	Execute()
}
