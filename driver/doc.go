// Package driver
// Author: momentics <momentics@gmail.com>
//
// In-process media driver backing hioload-bus. A MediaDriver is launched
// per directory and owns every stream, image and socket; clients connect
// by directory and receive registration results and image lifecycle
// events asynchronously through an api.DriverListener.
//
// A single conductor goroutine serializes all structural changes (adding
// and removing publications, subscriptions and clients). Data paths never
// touch the conductor: Offer writes straight into images and Poll drains
// them.
//
// Supported channels:
//
//	aeron:ipc[?term-length=N]
//	aeron:udp?endpoint=host:port[|term-length=N]
//
// term-length is the image capacity in fragments; a full image
// back-pressures IPC publishers and drops UDP datagrams.
package driver
