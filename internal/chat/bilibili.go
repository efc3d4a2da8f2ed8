package chat

import (
	"context"
	"encoding/binary"
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"path"
	"time"

	"github.com/gorilla/websocket"
	"github.com/klauspost/compress/zlib"
	"github.com/tidwall/gjson"

	"dmlive/internal/chatevent"
	"dmlive/internal/perr"
)

// BroadcastLiveA implements C1's "BroadcastLive (type A)" variant (spec
// §4.1), grounded on original_source/src/danmaku/bilibili.rs: a 16-byte
// header (packet_len, header_len, ver, op, seq, all big-endian) in front of
// every frame, a JSON registration payload on op=7, a fixed 31-byte
// heartbeat literal, and zlib-compressed (ver=2) bodies that recursively
// contain more framed messages.
type BroadcastLiveA struct {
	RoomInfoAPI string
}

// NewBroadcastLiveA returns a ready-to-use type A client.
func NewBroadcastLiveA() *BroadcastLiveA {
	return &BroadcastLiveA{RoomInfoAPI: "https://api.live.bilibili.com/room/v1/Room/room_init"}
}

var heartbeatLiteralA = []byte("\x00\x00\x00\x1f\x00\x10\x00\x01\x00\x00\x00\x02\x00\x00\x00\x01[object Object]")

func (c *BroadcastLiveA) getWSInfo(ctx context.Context, roomURL string) (string, []byte, error) {
	u, err := url.Parse(roomURL)
	if err != nil {
		return "", nil, perr.Wrap(perr.KindDecode, "bilibili.parse_room_url", err)
	}
	rid := path.Base(u.Path)

	req, _ := http.NewRequestWithContext(ctx, http.MethodGet, c.RoomInfoAPI+"?id="+rid, nil)
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Referer", roomURL)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return "", nil, perr.Wrap(perr.KindTransient, "bilibili.room_init", err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", nil, perr.Wrap(perr.KindTransient, "bilibili.room_init_read", err)
	}

	roomID := gjson.GetBytes(body, "data.room_id")
	if !roomID.Exists() {
		return "", nil, perr.Wrap(perr.KindDecode, "bilibili.room_id", fmt.Errorf("missing data.room_id"))
	}

	payload, err := json.Marshal(map[string]any{
		"roomid":   roomID.Int(),
		"uid":      randomUID(),
		"protover": 2,
	})
	if err != nil {
		return "", nil, err
	}

	reg := make([]byte, 0, 16+len(payload))
	var hdr [16]byte
	binary.BigEndian.PutUint32(hdr[0:4], uint32(len(payload)+16))
	binary.BigEndian.PutUint16(hdr[4:6], 16)
	binary.BigEndian.PutUint16(hdr[6:8], 1)
	binary.BigEndian.PutUint32(hdr[8:12], 7)
	binary.BigEndian.PutUint32(hdr[12:16], 1)
	reg = append(reg, hdr[:]...)
	reg = append(reg, payload...)

	return "wss://broadcastlv.chat.bilibili.com/sub", reg, nil
}

// Run implements Client.
func (c *BroadcastLiveA) Run(ctx context.Context, roomURL string, sink chatevent.Sink) error {
	ws, reg, err := c.getWSInfo(ctx, roomURL)
	if err != nil {
		return err
	}
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, ws, nil)
	if err != nil {
		return perr.Wrap(perr.KindTransient, "bilibili.dial", err)
	}
	defer conn.Close()

	if err := conn.WriteMessage(websocket.BinaryMessage, reg); err != nil {
		return perr.Wrap(perr.KindTransient, "bilibili.register", err)
	}

	errCh := make(chan error, 1)
	go func() {
		t := time.NewTicker(heartbeatInterval)
		defer t.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-t.C:
				if err := conn.WriteMessage(websocket.BinaryMessage, heartbeatLiteralA); err != nil {
					select {
					case errCh <- perr.Wrap(perr.KindTransient, "bilibili.heartbeat", err):
					default:
					}
					return
				}
			}
		}
	}()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return perr.Wrap(perr.KindTransient, "bilibili.read", err)
		}
		select {
		case herr := <-errCh:
			return herr
		default:
		}
		if err := c.decodeFrames(data, sink); err != nil {
			// malformed frames are skipped, never abort the connection (spec §4.1)
			continue
		}
	}
}

type biliHeader struct {
	packetLen uint32
	headerLen uint16
	ver       uint16
	op        uint32
	seq       uint32
}

func (c *BroadcastLiveA) decodeFrames(data []byte, sink chatevent.Sink) error {
	for len(data) > 16 {
		var h biliHeader
		h.packetLen = binary.BigEndian.Uint32(data[0:4])
		h.headerLen = binary.BigEndian.Uint16(data[4:6])
		h.ver = binary.BigEndian.Uint16(data[6:8])
		h.op = binary.BigEndian.Uint32(data[8:12])
		h.seq = binary.BigEndian.Uint32(data[12:16])

		if int(h.packetLen) > len(data) || h.packetLen < 16 {
			break
		}
		body := data[16:h.packetLen]

		switch h.ver {
		case 0, 1:
			c.decodePlainMessage(h, body, sink)
		case 2:
			r, err := zlib.NewReader(bytes.NewReader(body))
			if err == nil {
				inflated, rerr := io.ReadAll(r)
				r.Close()
				if rerr == nil {
					c.decodeFrames(inflated, sink)
				}
			}
		}
		data = data[h.packetLen:]
	}
	return nil
}

func (c *BroadcastLiveA) decodePlainMessage(h biliHeader, data []byte, sink chatevent.Sink) {
	if h.op != 5 {
		return
	}
	cmd := gjson.GetBytes(data, "cmd")
	if cmd.String() != "DANMU_MSG" {
		return
	}
	nick := gjson.GetBytes(data, "info.2.1").String()
	text := gjson.GetBytes(data, "info.1").String()
	color := chatevent.DefaultColor
	if cv := gjson.GetBytes(data, "info.0.3"); cv.Exists() {
		color = uint32(cv.Uint())
	}
	sink.Send(chatevent.Event{Color: color, Nick: nick, Text: text})
}
