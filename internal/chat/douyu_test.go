package chat

import (
	"encoding/binary"
	"testing"

	"dmlive/internal/chatevent"
)

func TestDouyuFrameRoundTripsThroughDecodeFrames(t *testing.T) {
	c := NewBroadcastLiveB()
	frame := douyuFrame("type@=chatmsg/nn@=alice/txt@=hello/col@=2/")

	var got chatevent.Event
	var n int
	sink := chatevent.SinkFunc(func(e chatevent.Event) {
		got = e
		n++
	})

	c.decodeFrames(frame, sink)

	if n != 1 {
		t.Fatalf("expected exactly one event, got %d", n)
	}
	if got.Nick != "alice" || got.Text != "hello" {
		t.Fatalf("expected nick=alice text=hello, got %+v", got)
	}
	if got.Color != 0x1e87f0 {
		t.Fatalf("expected col=2 -> blue (0x1e87f0), got %06x", got.Color)
	}
}

func TestDouyuHeartbeatLiteralParsesToMrklType(t *testing.T) {
	// douyuHeartbeat's payload is "type@=mrkl/", which is never a chatmsg,
	// but decodeRecord must actually see "mrkl" as the type value (not
	// leading garbage bytes from a misaligned body slice) to exercise the
	// "fields["type"] != chatmsg" rejection correctly instead of accidentally
	// rejecting every frame because "type" was never populated at all.
	msgLen := int(binary.LittleEndian.Uint32(douyuHeartbeat[0:4]))
	if msgLen+4 != len(douyuHeartbeat) {
		t.Fatalf("heartbeat literal length mismatch: msgLen+4=%d, len=%d", msgLen+4, len(douyuHeartbeat))
	}
	body := douyuHeartbeat[12 : msgLen+2]
	fields := parseDouyuRecord(string(body))
	if fields["type"] != "mrkl" {
		t.Fatalf("expected type=mrkl, got fields=%v (body=%q)", fields, body)
	}
}

func TestDecodeFramesHandlesMultipleFramesInOneBuffer(t *testing.T) {
	c := NewBroadcastLiveB()
	buf := append(
		douyuFrame("type@=chatmsg/nn@=a/txt@=first/"),
		douyuFrame("type@=chatmsg/nn@=b/txt@=second/")...,
	)

	var events []chatevent.Event
	sink := chatevent.SinkFunc(func(e chatevent.Event) { events = append(events, e) })

	c.decodeFrames(buf, sink)

	if len(events) != 2 {
		t.Fatalf("expected 2 events from 2 concatenated frames, got %d: %+v", len(events), events)
	}
	if events[0].Text != "first" || events[1].Text != "second" {
		t.Fatalf("expected first/second in order, got %+v", events)
	}
}

func TestParseDouyuRecordUnescapesAtAndSlash(t *testing.T) {
	fields := parseDouyuRecord("txt@=a@Ab@Sc/")
	if fields["txt"] != "a@b/c" {
		t.Fatalf("expected a@b/c, got %q", fields["txt"])
	}
}
