// File: facade/publications.go
// Author: momentics <momentics@gmail.com>
//
// Publication handles and the publish path.

package facade

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/momentics/hioload-bus/api"
	"github.com/momentics/hioload-bus/internal/handles"
)

// AddPublication registers a publication and stores it at the lowest free
// handle. A full table returns handles.Invalid and api.ErrTableFull and
// leaves the table unchanged.
func (b *Bus) AddPublication(ctx context.Context, channel string, streamID int32) (handles.Handle, error) {
	sess, err := b.session()
	if err != nil {
		return handles.Invalid, err
	}
	if b.pubs.Len() >= b.pubs.Cap() {
		b.metrics.Add("publications.rejected_full", 1)
		return handles.Invalid, api.ErrTableFull
	}
	pub, err := sess.AddPublication(ctx, channel, streamID)
	if err != nil {
		b.log.Error("add publication failed", zap.String("channel", channel), zap.Int32("stream_id", streamID), zap.Error(err))
		return handles.Invalid, err
	}
	h, err := b.pubs.Insert(pub)
	if err != nil {
		// Lost a race for the last slot.
		_ = pub.Close()
		b.metrics.Add("publications.rejected_full", 1)
		return handles.Invalid, err
	}
	b.metrics.Add("publications.added", 1)
	b.log.Debug("publication added",
		zap.Int32("handle", int32(h)),
		zap.String("channel", channel),
		zap.Int32("stream_id", streamID),
		zap.Int32("session_id", pub.SessionID()))
	return h, nil
}

// RemovePublication closes the publication at h and frees the slot once
// in-flight publishes on it have returned.
func (b *Bus) RemovePublication(h handles.Handle) error {
	if err := b.pubs.Remove(h); err != nil {
		return err
	}
	b.metrics.Add("publications.removed", 1)
	return nil
}

// PublicationIsConnected reports whether a subscriber can receive from h.
func (b *Bus) PublicationIsConnected(h handles.Handle) (bool, error) {
	var out bool
	err := b.pubs.With(h, func(p api.Publication) error {
		out = p.IsConnected()
		return nil
	})
	return out, err
}

// PublicationIsClosed reports whether the publication at h was closed.
func (b *Bus) PublicationIsClosed(h handles.Handle) (bool, error) {
	var out bool
	err := b.pubs.With(h, func(p api.Publication) error {
		out = p.IsClosed()
		return nil
	})
	return out, err
}

// StreamID returns the stream id of the publication at h.
func (b *Bus) StreamID(h handles.Handle) (int32, error) {
	var out int32
	err := b.pubs.With(h, func(p api.Publication) error {
		out = p.StreamID()
		return nil
	})
	return out, err
}

// SessionID returns the session id of the publication at h.
func (b *Bus) SessionID(h handles.Handle) (int32, error) {
	var out int32
	err := b.pubs.With(h, func(p api.Publication) error {
		out = p.SessionID()
		return nil
	})
	return out, err
}

// Publish stages msg in an aligned scratch buffer and offers it once. The
// offer result is returned as is: a positive stream position or one of
// the negative api offer codes. It is never retried.
func (b *Bus) Publish(h handles.Handle, msg []byte) (int64, error) {
	if len(msg) > api.MaxPayload {
		b.metrics.Add("offers.rejected_oversize", 1)
		return 0, fmt.Errorf("%w: got %d", api.ErrPayloadTooLarge, len(msg))
	}
	var res int64
	err := b.pubs.With(h, func(p api.Publication) error {
		s := b.staging.Acquire()
		res = p.Offer(s.Stage(msg))
		b.staging.Release(s)
		return nil
	})
	if err != nil {
		if errors.Is(err, api.ErrInvalidHandle) || errors.Is(err, api.ErrSlotEmpty) {
			b.metrics.Add("offers.bad_handle", 1)
		}
		return 0, err
	}
	b.metrics.Add(offerCounter(res), 1)
	return res, nil
}

func offerCounter(res int64) string {
	switch res {
	case api.NotConnected:
		return "offers.not_connected"
	case api.BackPressured:
		return "offers.back_pressured"
	case api.AdminAction:
		return "offers.admin_action"
	case api.PublicationClosed:
		return "offers.closed"
	case api.MaxPositionExceeded:
		return "offers.max_position_exceeded"
	}
	if res > 0 {
		return "offers.ok"
	}
	return "offers.unknown"
}
