package chat

import (
	"bytes"
	"context"
	"encoding/binary"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/klauspost/compress/zlib"

	"dmlive/internal/chatevent"
)

// TestRegistrationFrameShape exercises spec §8 scenario 5: for room id 123,
// packet_len = len(body)+16, op=7, ver=1, seq=1, body is canonical JSON
// {"roomid":123,"uid":<1e6..2e6>,"protover":2}.
func TestRegistrationFrameShape(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"code":0,"data":{"room_id":123}}`))
	}))
	defer srv.Close()

	c := &BroadcastLiveA{RoomInfoAPI: srv.URL}
	_, reg, err := c.getWSInfo(context.Background(), "https://live.bilibili.com/123")
	if err != nil {
		t.Fatalf("getWSInfo: %v", err)
	}
	if len(reg) < 16 {
		t.Fatalf("registration frame too short: %d bytes", len(reg))
	}

	packetLen := binary.BigEndian.Uint32(reg[0:4])
	headerLen := binary.BigEndian.Uint16(reg[4:6])
	ver := binary.BigEndian.Uint16(reg[6:8])
	op := binary.BigEndian.Uint32(reg[8:12])
	seq := binary.BigEndian.Uint32(reg[12:16])
	body := reg[16:]

	if int(packetLen) != len(body)+16 {
		t.Fatalf("packet_len = %d, want %d", packetLen, len(body)+16)
	}
	if headerLen != 16 {
		t.Fatalf("header_len = %d, want 16", headerLen)
	}
	if ver != 1 {
		t.Fatalf("ver = %d, want 1", ver)
	}
	if op != 7 {
		t.Fatalf("op = %d, want 7", op)
	}
	if seq != 1 {
		t.Fatalf("seq = %d, want 1", seq)
	}

	var parsed map[string]any
	if err := json.Unmarshal(body, &parsed); err != nil {
		t.Fatalf("body is not valid JSON: %v (%q)", err, body)
	}
	if parsed["roomid"].(float64) != 123 {
		t.Fatalf("roomid = %v, want 123", parsed["roomid"])
	}
	if parsed["protover"].(float64) != 2 {
		t.Fatalf("protover = %v, want 2", parsed["protover"])
	}
	uid := parsed["uid"].(float64)
	if uid < 1e6 || uid >= 2e6 {
		t.Fatalf("uid = %v, want in [1e6, 2e6)", uid)
	}
}

func TestDecodeFramesExtractsDanmuMsgFromPlainFrame(t *testing.T) {
	c := NewBroadcastLiveA()
	body := []byte(`{"cmd":"DANMU_MSG","info":[[0,0,0,16711680],"hello","",["","",""],["","",0,0,0],["","",0],0,"",["",""],0,0,["",""],["",""]]}`)
	frame := biliFrame(1, 5, 1, body)

	var got chatevent.Event
	var n int
	sink := chatevent.SinkFunc(func(e chatevent.Event) { got = e; n++ })

	if err := c.decodeFrames(frame, sink); err != nil {
		t.Fatalf("decodeFrames: %v", err)
	}
	if n != 1 {
		t.Fatalf("expected exactly one event, got %d", n)
	}
	if got.Text != "hello" {
		t.Fatalf("expected text=hello, got %q", got.Text)
	}
	if got.Color != 0xFF0000 {
		t.Fatalf("expected color 0xFF0000, got %06x", got.Color)
	}
}

func TestDecodeFramesIgnoresNonDanmuCommand(t *testing.T) {
	c := NewBroadcastLiveA()
	body := []byte(`{"cmd":"SEND_GIFT"}`)
	frame := biliFrame(1, 5, 1, body)

	n := 0
	sink := chatevent.SinkFunc(func(chatevent.Event) { n++ })
	if err := c.decodeFrames(frame, sink); err != nil {
		t.Fatalf("decodeFrames: %v", err)
	}
	if n != 0 {
		t.Fatalf("expected no events for a non-danmaku command, got %d", n)
	}
}

func TestDecodeFramesInflatesZlibVer2Payload(t *testing.T) {
	c := NewBroadcastLiveA()
	inner := []byte(`{"cmd":"DANMU_MSG","info":[[0,0,0,255],"zlibhello","",["","",""],["","",0,0,0],["","",0],0,"",["",""],0,0,["",""],["",""]]}`)
	innerFrame := biliFrame(1, 5, 1, inner)

	var compressed bytes.Buffer
	w := zlib.NewWriter(&compressed)
	if _, err := w.Write(innerFrame); err != nil {
		t.Fatalf("zlib write: %v", err)
	}
	w.Close()

	outer := biliFrame(2, 5, 1, compressed.Bytes())

	var got chatevent.Event
	var n int
	sink := chatevent.SinkFunc(func(e chatevent.Event) { got = e; n++ })
	if err := c.decodeFrames(outer, sink); err != nil {
		t.Fatalf("decodeFrames: %v", err)
	}
	if n != 1 {
		t.Fatalf("expected exactly one event after zlib inflation, got %d", n)
	}
	if got.Text != "zlibhello" {
		t.Fatalf("expected text=zlibhello, got %q", got.Text)
	}
}

// biliFrame builds a single BroadcastLive type A frame (the same 16-byte
// header layout getWSInfo produces) for test fixtures.
func biliFrame(ver uint16, op, seq uint32, body []byte) []byte {
	var hdr [16]byte
	binary.BigEndian.PutUint32(hdr[0:4], uint32(len(body)+16))
	binary.BigEndian.PutUint16(hdr[4:6], 16)
	binary.BigEndian.PutUint16(hdr[6:8], ver)
	binary.BigEndian.PutUint32(hdr[8:12], op)
	binary.BigEndian.PutUint32(hdr[12:16], seq)
	return append(hdr[:], body...)
}
