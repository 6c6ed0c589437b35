// File: api/transport.go
// Author: momentics <momentics@gmail.com>
//
// Endpoint contracts exposed by the media driver: publications, subscriptions
// and the lifecycle notifications a client connection receives.

package api

// MaxPayload is the capacity of the publish staging buffer.
const MaxPayload = 1024

// Offer results below or equal to zero are backend-defined failures.
// Positive results are the new stream position.
const (
	NotConnected        int64 = -1
	BackPressured       int64 = -2
	AdminAction         int64 = -3
	PublicationClosed   int64 = -4
	MaxPositionExceeded int64 = -5
)

// OfferResultString names an offer result for logs and metrics keys.
func OfferResultString(r int64) string {
	switch r {
	case NotConnected:
		return "not_connected"
	case BackPressured:
		return "back_pressured"
	case AdminAction:
		return "admin_action"
	case PublicationClosed:
		return "closed"
	case MaxPositionExceeded:
		return "max_position_exceeded"
	}
	if r > 0 {
		return "ok"
	}
	return "unknown"
}

// Closer is implemented by every endpoint stored in a handle table.
type Closer interface {
	Close() error
}

// Publication is an outbound endpoint on a channel and stream.
type Publication interface {
	Closer

	// Offer copies buf into the stream. Returns the new position or a
	// negative offer result. Never blocks and never retries.
	Offer(buf []byte) int64

	IsConnected() bool
	IsClosed() bool
	Channel() string
	StreamID() int32
	SessionID() int32
	RegistrationID() int64
}

// Header describes the fragment currently being delivered.
type Header struct {
	StreamID  int32
	SessionID int32
	Position  int64
}

// FragmentHandler receives one fragment. buf is only valid until it returns.
type FragmentHandler func(buf []byte, hdr Header)

// PayloadHandler is the host-facing callback shape: payload only.
type PayloadHandler func(buf []byte)

// Subscription is an inbound endpoint on a channel and stream.
type Subscription interface {
	Closer

	// Poll delivers up to fragmentLimit fragments in arrival order and
	// returns how many were delivered.
	Poll(handler FragmentHandler, fragmentLimit int) int

	IsClosed() bool
	Channel() string
	StreamID() int32
	RegistrationID() int64
	ImageCount() int
}

// ImageInfo identifies one publisher session as seen by one subscription.
type ImageInfo struct {
	CorrelationID  int64
	SubscriptionID int64
	SessionID      int32
	StreamID       int32
	Channel        string
	SourceIdentity string
}

// DriverListener receives asynchronous notifications from a driver
// connection. Implementations must not block.
type DriverListener interface {
	OnPublicationReady(registrationID int64, pub Publication, err error)
	OnSubscriptionReady(registrationID int64, sub Subscription, err error)
	OnAvailableImage(img ImageInfo)
	OnUnavailableImage(img ImageInfo)
	OnError(err error)
}

// DriverConn is a client connection to a media driver. Add calls only
// register intent; completion arrives through DriverListener.
type DriverConn interface {
	Closer

	ClientID() int64
	AddPublication(channel string, streamID int32) (int64, error)
	AddSubscription(channel string, streamID int32) (int64, error)
}
