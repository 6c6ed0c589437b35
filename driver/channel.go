// File: driver/channel.go
// Author: momentics <momentics@gmail.com>
//
// Channel URI parsing.

package driver

import (
	"fmt"
	"net"
	"strconv"
	"strings"

	"github.com/momentics/hioload-bus/api"
)

// Media identifies how a channel moves bytes.
type Media string

const (
	MediaIPC Media = "ipc"
	MediaUDP Media = "udp"
)

const channelPrefix = "aeron:"

// Channel is a parsed channel URI.
type Channel struct {
	Raw        string
	Media      Media
	Endpoint   string
	TermLength int
	Params     map[string]string
}

// ParseChannel parses "aeron:<media>[?k=v|k=v]".
func ParseChannel(uri string) (Channel, error) {
	ch := Channel{Raw: uri, Params: map[string]string{}}
	rest, ok := strings.CutPrefix(strings.TrimSpace(uri), channelPrefix)
	if !ok {
		return ch, fmt.Errorf("%w: %q missing %q prefix", api.ErrInvalidChannel, uri, channelPrefix)
	}
	media, query, _ := strings.Cut(rest, "?")
	switch Media(media) {
	case MediaIPC, MediaUDP:
		ch.Media = Media(media)
	default:
		return ch, fmt.Errorf("%w: %q unknown media %q", api.ErrInvalidChannel, uri, media)
	}
	if query != "" {
		for _, kv := range strings.Split(query, "|") {
			k, v, found := strings.Cut(kv, "=")
			if !found || k == "" {
				return ch, fmt.Errorf("%w: %q malformed parameter %q", api.ErrInvalidChannel, uri, kv)
			}
			ch.Params[k] = v
		}
	}
	if tl, ok := ch.Params["term-length"]; ok {
		n, err := strconv.Atoi(tl)
		if err != nil || n <= 0 {
			return ch, fmt.Errorf("%w: %q bad term-length %q", api.ErrInvalidChannel, uri, tl)
		}
		ch.TermLength = n
	}
	if ch.Media == MediaUDP {
		ep, ok := ch.Params["endpoint"]
		if !ok {
			return ch, fmt.Errorf("%w: %q udp channel needs endpoint", api.ErrInvalidChannel, uri)
		}
		if _, _, err := net.SplitHostPort(ep); err != nil {
			return ch, fmt.Errorf("%w: %q endpoint: %v", api.ErrInvalidChannel, uri, err)
		}
		ch.Endpoint = ep
	}
	return ch, nil
}

// canonical is the key streams are grouped by; parameters that do not
// change the path (term-length) are ignored.
func (c Channel) canonical() string {
	if c.Media == MediaUDP {
		return channelPrefix + string(c.Media) + "?endpoint=" + c.Endpoint
	}
	return channelPrefix + string(c.Media)
}
