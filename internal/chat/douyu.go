package chat

import (
	"context"
	"encoding/binary"
	"net/url"
	"path"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"dmlive/internal/chatevent"
	"dmlive/internal/perr"
)

// BroadcastLiveB implements C1's "BroadcastLive (type B)" variant, grounded
// on original_source/src/danmaku/douyu.rs: a little-endian
// length-prefixed framing around a custom `key@=value/` textual record
// format, with `@A`/`@S` escapes for literal `@`/`/` inside field values
// and a fixed 6-entry color table.
type BroadcastLiveB struct {
	colorTable map[string]uint32
}

// NewBroadcastLiveB returns a ready-to-use type B client.
func NewBroadcastLiveB() *BroadcastLiveB {
	return &BroadcastLiveB{
		colorTable: map[string]uint32{
			"1": 0xff0000, // red
			"2": 0x1e87f0, // blue
			"3": 0x7ac84b, // green
			"4": 0xff7f00, // orange
			"5": 0x9b39f4, // violet
			"6": 0xff69b4, // pink
		},
	}
}

const douyuWSAddr = "wss://danmuproxy.douyu.com:8505"

var douyuHeartbeat = []byte("\x14\x00\x00\x00\x14\x00\x00\x00\xb1\x02\x00\x00type@=mrkl/\x00")

func douyuFrame(payload string) []byte {
	length := uint32(len(payload) + 9)
	buf := make([]byte, 0, 8+len(payload)+5)
	var lenBytes [4]byte
	binary.LittleEndian.PutUint32(lenBytes[:], length)
	buf = append(buf, lenBytes[:]...)
	buf = append(buf, lenBytes[:]...)
	buf = append(buf, 0xb1, 0x02, 0x00, 0x00)
	buf = append(buf, payload...)
	buf = append(buf, 0x00)
	return buf
}

func (c *BroadcastLiveB) registrationFrames(roomURL string) ([][]byte, error) {
	u, err := url.Parse(roomURL)
	if err != nil {
		return nil, perr.Wrap(perr.KindDecode, "douyu.parse_room_url", err)
	}
	rid := path.Base(u.Path)
	return [][]byte{
		douyuFrame("type@=loginreq/roomid@=" + rid + "/"),
		douyuFrame("type@=joingroup/rid@=" + rid + "/gid@=1/"),
	}, nil
}

// Run implements Client.
func (c *BroadcastLiveB) Run(ctx context.Context, roomURL string, sink chatevent.Sink) error {
	regFrames, err := c.registrationFrames(roomURL)
	if err != nil {
		return err
	}

	header := map[string][]string{"User-Agent": {userAgent}}
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, douyuWSAddr, header)
	if err != nil {
		return perr.Wrap(perr.KindTransient, "douyu.dial", err)
	}
	defer conn.Close()

	for _, f := range regFrames {
		if err := conn.WriteMessage(websocket.BinaryMessage, f); err != nil {
			return perr.Wrap(perr.KindTransient, "douyu.register", err)
		}
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
				if err := conn.WriteMessage(websocket.BinaryMessage, douyuHeartbeat); err != nil {
					select {
					case errCh <- perr.Wrap(perr.KindTransient, "douyu.heartbeat", err):
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
			return perr.Wrap(perr.KindTransient, "douyu.read", err)
		}
		select {
		case herr := <-errCh:
			return herr
		default:
		}
		c.decodeFrames(data, sink)
	}
}

// decodeFrames walks a possibly-multi-frame WS buffer. Each frame is
// [msgLen u32 le][repeat u32 le][0xb1 0x02 0x00 0x00 header][payload][1
// trailing byte], total on-wire length msgLen+4 with the payload starting
// at absolute offset 12 (confirmed against douyuFrame above and
// original_source/src/danmaku/douyu.rs:62-67,104). body intentionally
// truncates the record's last byte (ends at msgLen+2, not msgLen+3),
// matching the Rust reference's own off-by-one payload slice.
func (c *BroadcastLiveB) decodeFrames(data []byte, sink chatevent.Sink) {
	for len(data) > 12 {
		msgLen := int(binary.LittleEndian.Uint32(data[0:4]))
		if msgLen < 10 || msgLen+4 > len(data) {
			return
		}
		body := data[12 : msgLen+2]
		c.decodeRecord(body, sink)
		data = data[msgLen+4:]
	}
}

func (c *BroadcastLiveB) decodeRecord(body []byte, sink chatevent.Sink) {
	fields := parseDouyuRecord(string(body))
	if fields["type"] != "chatmsg" {
		return
	}
	text, ok := fields["txt"]
	if !ok {
		return
	}
	nick := fields["nn"]
	color := chatevent.DefaultColor
	if cv, ok := fields["col"]; ok {
		if rgb, ok := c.colorTable[cv]; ok {
			color = rgb
		}
	}
	sink.Send(chatevent.Event{Color: color, Nick: nick, Text: text})
}

// parseDouyuRecord parses one `key@=value/key@=value/` record into a map,
// unescaping `@A`→`@` and `@S`→`/` inside values.
func parseDouyuRecord(s string) map[string]string {
	out := make(map[string]string)
	for _, kv := range strings.Split(s, "/") {
		if kv == "" {
			continue
		}
		parts := strings.SplitN(kv, "@=", 2)
		if len(parts) != 2 {
			continue
		}
		value := strings.ReplaceAll(parts[1], "@A", "@")
		value = strings.ReplaceAll(value, "@S", "/")
		out[parts[0]] = value
	}
	return out
}
