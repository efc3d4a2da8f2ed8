package ipc

import (
	"context"
	"net"
	"testing"
	"time"
)

func TestNonDashManagerHasStreamNotVideoAudio(t *testing.T) {
	m, err := New(false)
	if err != nil {
		t.Fatal(err)
	}
	defer m.Close()

	if m.stream == nil {
		t.Fatal("expected stream endpoint for non-dash manager")
	}
	if m.video != nil || m.audio != nil {
		t.Fatal("non-dash manager should not have video/audio endpoints")
	}
}

func TestDashManagerHasVideoAudioNotStream(t *testing.T) {
	m, err := New(true)
	if err != nil {
		t.Fatal(err)
	}
	defer m.Close()

	if m.stream != nil {
		t.Fatal("dash manager should not have a stream endpoint")
	}
	if m.video == nil || m.audio == nil {
		t.Fatal("expected video and audio endpoints for dash manager")
	}
}

func TestEndpointHandsOffExactlyOneConnection(t *testing.T) {
	m, err := New(true)
	if err != nil {
		t.Fatal(err)
	}
	defer m.Close()

	dial := func() {
		conn, err := net.Dial("tcp", m.VideoAddr())
		if err != nil {
			t.Error(err)
			return
		}
		conn.Close()
	}
	go dial()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	conn, err := m.GetVideoSocket(ctx)
	if err != nil {
		t.Fatal(err)
	}
	conn.Close()

	// A second dial should not be handed off: the listener already
	// surrendered its one slot.
	ctx2, cancel2 := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel2()
	if _, err := m.GetVideoSocket(ctx2); err == nil {
		t.Fatal("expected second GetVideoSocket call to time out, got a connection")
	}
}
