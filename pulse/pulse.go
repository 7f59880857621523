// Package pulse is the audio backend handle. It speaks the PulseAudio
// native protocol directly so it can enumerate playback streams, set
// per-stream volumes, and receive server-side change notifications.
package pulse

import (
	"fmt"
	"net"
	"os"
	"path/filepath"

	"github.com/jfreymuth/pulse/proto"
	"go.uber.org/zap"
)

const volumeNorm = 0x10000

// subscription facility and event-type codes from the native protocol
const (
	maskSinkInput     = 0x0004
	facilityMask      = 0x000F
	facilitySinkInput = 2
	typeMask          = 0x0030
	typeNew           = 0x0000
	typeChange        = 0x0010
	typeRemove        = 0x0020
)

// Stream is one live playback stream. AppName is empty when the owning
// client did not report an application.name property.
type Stream struct {
	Index    uint32
	AppName  string
	Channels int
}

// EventKind classifies stream notifications delivered on Events.
type EventKind int

const (
	StreamAdded EventKind = iota
	StreamRemoved
)

type StreamEvent struct {
	Kind  EventKind
	Index uint32
}

// Client is a connection to the PulseAudio server.
type Client struct {
	c      *proto.Client
	conn   net.Conn
	logger *zap.Logger
	events chan StreamEvent
}

// Dial connects and authenticates against the server. server may be
// empty, in which case the library's default address resolution is used.
// Extra properties (application.name and friends) are attached to the
// client so it is identifiable in pavucontrol.
func Dial(server string, props map[string]string, logger *zap.Logger) (*Client, error) {
	c, conn, err := proto.Connect(server)
	if err != nil {
		return nil, fmt.Errorf("connect to pulseaudio: %w", err)
	}
	cl := &Client{
		c:      c,
		conn:   conn,
		logger: logger,
		events: make(chan StreamEvent, 16),
	}
	c.Callback = cl.onMessage

	var ar proto.AuthReply
	err = c.Request(&proto.Auth{Version: c.Version(), Cookie: readCookie()}, &ar)
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("auth: %w", err)
	}
	c.SetVersion(ar.Version)

	pl := proto.PropList{}
	for k, v := range props {
		pl[k] = proto.PropListString(v)
	}
	err = c.Request(&proto.SetClientName{Props: pl}, &proto.SetClientNameReply{})
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("set client name: %w", err)
	}
	return cl, nil
}

// readCookie loads the per-user auth cookie. A missing cookie is not
// fatal; local unix-socket connections are usually accepted without one.
func readCookie() []byte {
	home, err := os.UserHomeDir()
	if err != nil {
		return nil
	}
	for _, p := range []string{
		filepath.Join(home, ".config", "pulse", "cookie"),
		filepath.Join(home, ".pulse-cookie"),
	} {
		if b, err := os.ReadFile(p); err == nil {
			return b
		}
	}
	return nil
}

// SubscribeStreams asks the server for sink-input notifications. Volume
// changes (including echoes of this client's own writes) are filtered
// out in onMessage; only add and remove events reach the channel.
func (c *Client) SubscribeStreams() error {
	err := c.c.Request(&proto.Subscribe{Mask: maskSinkInput}, nil)
	if err != nil {
		return fmt.Errorf("subscribe: %w", err)
	}
	return nil
}

// Events delivers stream add/remove notifications. The channel is
// buffered and lossy: a slow consumer drops events rather than stalling
// the protocol reader, which is fine because the consumer re-enumerates
// on every wakeup anyway.
func (c *Client) Events() <-chan StreamEvent {
	return c.events
}

func (c *Client) onMessage(msg interface{}) {
	ev, ok := msg.(*proto.SubscribeEvent)
	if !ok {
		return
	}
	if ev.Event&facilityMask != facilitySinkInput {
		return
	}
	var kind EventKind
	switch ev.Event & typeMask {
	case typeNew:
		kind = StreamAdded
	case typeRemove:
		kind = StreamRemoved
	default:
		// change events would echo our own volume writes back at us
		return
	}
	select {
	case c.events <- StreamEvent{Kind: kind, Index: ev.Index}:
	default:
		c.logger.Debug("dropped stream event", zap.Uint32("index", ev.Index))
	}
}

// Playbacks enumerates the currently active playback streams.
func (c *Client) Playbacks() ([]Stream, error) {
	var reply proto.GetSinkInputInfoListReply
	if err := c.c.Request(&proto.GetSinkInputInfoList{}, &reply); err != nil {
		return nil, fmt.Errorf("list sink inputs: %w", err)
	}
	streams := make([]Stream, 0, len(reply))
	for _, info := range reply {
		s := Stream{
			Index:    info.SinkInputIndex,
			Channels: len(info.ChannelMap),
		}
		if e, ok := info.Properties["application.name"]; ok {
			s.AppName = e.String()
		}
		streams = append(streams, s)
	}
	return streams, nil
}

// channelVolumes spreads v (0..1) uniformly over the given number of
// channels, in the server's 0x10000-per-unit scale.
func channelVolumes(v float64, channels int) proto.ChannelVolumes {
	if v < 0 {
		v = 0
	} else if v > 1 {
		v = 1
	}
	if channels == 0 {
		channels = 2
	}
	vols := make(proto.ChannelVolumes, channels)
	for i := range vols {
		vols[i] = uint32(v * volumeNorm)
	}
	return vols
}

// SetVolume sets v (0..1) uniformly on every channel of the stream.
func (c *Client) SetVolume(s Stream, v float64) error {
	err := c.c.Request(&proto.SetSinkInputVolume{
		SinkInputIndex: s.Index,
		ChannelVolumes: channelVolumes(v, s.Channels),
	}, nil)
	if err != nil {
		return fmt.Errorf("set volume on stream %d: %w", s.Index, err)
	}
	return nil
}

func (c *Client) Close() error {
	return c.conn.Close()
}
