package pulse

import (
	"testing"

	"github.com/jfreymuth/pulse/proto"
	"go.uber.org/zap"
)

func newTestClient() *Client {
	return &Client{
		logger: zap.NewNop(),
		events: make(chan StreamEvent, 16),
	}
}

func TestChannelVolumesScaleAndClamp(t *testing.T) {
	for _, tc := range []struct {
		v        float64
		channels int
		want     uint32
		wantLen  int
	}{
		{0, 2, 0, 2},
		{0.5, 2, volumeNorm / 2, 2},
		{1, 6, volumeNorm, 6},
		{1.5, 1, volumeNorm, 1},
		{-0.2, 1, 0, 1},
		{0.25, 0, volumeNorm / 4, 2}, // unknown map defaults to stereo
	} {
		vols := channelVolumes(tc.v, tc.channels)
		if len(vols) != tc.wantLen {
			t.Fatalf("v=%v ch=%d: expected %d channels, got %d", tc.v, tc.channels, tc.wantLen, len(vols))
		}
		for i, got := range vols {
			if got != tc.want {
				t.Fatalf("v=%v ch=%d: channel %d is %d, expected %d", tc.v, tc.channels, i, got, tc.want)
			}
		}
	}
}

func TestOnMessageForwardsSinkInputAddRemove(t *testing.T) {
	c := newTestClient()
	c.onMessage(&proto.SubscribeEvent{Event: facilitySinkInput | typeNew, Index: 4})
	c.onMessage(&proto.SubscribeEvent{Event: facilitySinkInput | typeRemove, Index: 4})

	ev := <-c.events
	if ev.Kind != StreamAdded || ev.Index != 4 {
		t.Fatalf("expected add of 4, got %+v", ev)
	}
	ev = <-c.events
	if ev.Kind != StreamRemoved || ev.Index != 4 {
		t.Fatalf("expected remove of 4, got %+v", ev)
	}
}

func TestOnMessageSuppressesVolumeEchoes(t *testing.T) {
	c := newTestClient()
	// a change event is what our own SetSinkInputVolume write echoes back
	c.onMessage(&proto.SubscribeEvent{Event: facilitySinkInput | typeChange, Index: 9})
	select {
	case ev := <-c.events:
		t.Fatalf("change event leaked through the filter: %+v", ev)
	default:
	}
}

func TestOnMessageIgnoresOtherFacilities(t *testing.T) {
	c := newTestClient()
	c.onMessage(&proto.SubscribeEvent{Event: 0 /* sink facility */ | typeNew, Index: 1})
	c.onMessage("not an event")
	select {
	case ev := <-c.events:
		t.Fatalf("unrelated event leaked through the filter: %+v", ev)
	default:
	}
}

func TestOnMessageDropsWhenConsumerIsSlow(t *testing.T) {
	c := newTestClient()
	for i := 0; i < cap(c.events)+8; i++ {
		c.onMessage(&proto.SubscribeEvent{Event: facilitySinkInput | typeNew, Index: uint32(i)})
	}
	if len(c.events) != cap(c.events) {
		t.Fatalf("expected a full buffer, got %d", len(c.events))
	}
}
