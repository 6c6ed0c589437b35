// File: driver/client.go
// Author: momentics <momentics@gmail.com>

package driver

import (
	"fmt"
	"sync/atomic"

	"github.com/momentics/hioload-bus/api"
)

var _ api.DriverConn = (*Client)(nil)

// Client is one connection to a MediaDriver. The pubs and subs maps are
// owned by the driver conductor.
type Client struct {
	md       *MediaDriver
	id       int64
	listener api.DriverListener
	closed   atomic.Bool

	pubs map[int64]*publication
	subs map[int64]*subscription
}

func newClient(md *MediaDriver, id int64, l api.DriverListener) *Client {
	return &Client{
		md:       md,
		id:       id,
		listener: l,
		pubs:     make(map[int64]*publication),
		subs:     make(map[int64]*subscription),
	}
}

// ClientID identifies the connection within its driver.
func (c *Client) ClientID() int64 { return c.id }

// AddPublication queues a publication and returns its registration id.
// The result is delivered to OnPublicationReady.
func (c *Client) AddPublication(channel string, streamID int32) (int64, error) {
	return c.add(cmdAddPublication, channel, streamID)
}

// AddSubscription queues a subscription and returns its registration id.
// The result is delivered to OnSubscriptionReady.
func (c *Client) AddSubscription(channel string, streamID int32) (int64, error) {
	return c.add(cmdAddSubscription, channel, streamID)
}

func (c *Client) add(kind cmdKind, channel string, streamID int32) (int64, error) {
	if c.closed.Load() {
		return 0, api.ErrClosed
	}
	regID := c.md.nextID.Add(1)
	err := c.md.submit(&command{
		kind:     kind,
		client:   c,
		regID:    regID,
		channel:  channel,
		streamID: streamID,
	})
	if err != nil {
		return 0, fmt.Errorf("%w: %v", api.ErrNotConnected, err)
	}
	return regID, nil
}

// Close releases every endpoint the client still owns.
func (c *Client) Close() error {
	if !c.closed.CompareAndSwap(false, true) {
		return nil
	}
	return c.md.submitWait(&command{kind: cmdCloseClient, client: c})
}

func (c *Client) notifyAvailable(info api.ImageInfo) {
	if !c.closed.Load() {
		c.listener.OnAvailableImage(info)
	}
}

func (c *Client) notifyUnavailable(info api.ImageInfo) {
	if !c.closed.Load() {
		c.listener.OnUnavailableImage(info)
	}
}

func (c *Client) notifyError(err error) {
	if !c.closed.Load() {
		c.listener.OnError(err)
	}
}
