// File: internal/session/context.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package session

import (
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/momentics/hioload-bus/api"
	"github.com/momentics/hioload-bus/driver"
)

// DefaultRegistrationTimeout bounds the wait for a driver ready callback.
const DefaultRegistrationTimeout = 5 * time.Second

// Dialer opens a driver connection for dir.
type Dialer func(dir string, l api.DriverListener) (api.DriverConn, error)

// Context configures a Session. Zero-valued callbacks log through Logger.
// Callbacks run on the driver's goroutines and must not block.
type Context struct {
	Dir                 string
	ClientName          string
	RegistrationTimeout time.Duration
	Logger              *zap.Logger
	Dialer              Dialer

	OnNewSubscription  func(channel string, streamID int32, correlationID int64)
	OnAvailableImage   func(img api.ImageInfo)
	OnUnavailableImage func(img api.ImageInfo)
	OnError            func(err error)
}

// DialDriver connects to an in-process media driver.
func DialDriver(dir string, l api.DriverListener) (api.DriverConn, error) {
	return driver.Connect(dir, l)
}

func (c Context) withDefaults() Context {
	if c.Logger == nil {
		c.Logger = zap.NewNop()
	}
	if c.ClientName == "" {
		c.ClientName = uuid.NewString()
	}
	if c.RegistrationTimeout <= 0 {
		c.RegistrationTimeout = DefaultRegistrationTimeout
	}
	if c.Dialer == nil {
		c.Dialer = DialDriver
	}
	log := c.Logger
	if c.OnNewSubscription == nil {
		c.OnNewSubscription = func(channel string, streamID int32, correlationID int64) {
			log.Info("new subscription",
				zap.String("channel", channel),
				zap.Int32("stream_id", streamID),
				zap.Int64("correlation_id", correlationID))
		}
	}
	if c.OnAvailableImage == nil {
		c.OnAvailableImage = func(img api.ImageInfo) {
			log.Info("image available", imageFields(img)...)
		}
	}
	if c.OnUnavailableImage == nil {
		c.OnUnavailableImage = func(img api.ImageInfo) {
			log.Info("image unavailable", imageFields(img)...)
		}
	}
	if c.OnError == nil {
		c.OnError = func(err error) {
			log.Error("transport error", zap.Error(err))
		}
	}
	return c
}

func imageFields(img api.ImageInfo) []zap.Field {
	return []zap.Field{
		zap.String("channel", img.Channel),
		zap.Int32("stream_id", img.StreamID),
		zap.Int32("session_id", img.SessionID),
		zap.Int64("correlation_id", img.CorrelationID),
		zap.String("source", img.SourceIdentity),
	}
}
