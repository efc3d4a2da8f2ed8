package chat

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"path"
	"regexp"
	"time"

	"github.com/gorilla/websocket"
	"github.com/tidwall/gjson"

	"dmlive/internal/chat/tars"
	"dmlive/internal/chatevent"
	"dmlive/internal/perr"
)

// ttProfileInfoPattern extracts the embedded JSON blob carrying the
// channel's numeric id from a Huya-equivalent channel page. Compiled once
// at package init per spec §9.
var ttProfileInfoPattern = regexp.MustCompile(`var\s+TT_PROFILE_INFO\s+=\s+(\{.+?\});`)

// BroadcastLiveC implements C1's "BroadcastLive (type C)" variant, grounded
// on original_source/src/danmaku/huya.rs and its TARS codec
// (original_source/tars-stream). Handshake is an HTTP GET of the channel
// page to recover a numeric channel id, then a TARS-encoded subscription
// list wrapped in a tagged command struct; chat frames are nested TARS
// structures identified by an inner int64 tag == 1400.
type BroadcastLiveC struct{}

// NewBroadcastLiveC returns a ready-to-use type C client.
func NewBroadcastLiveC() *BroadcastLiveC { return &BroadcastLiveC{} }

var huyaHeartbeat = []byte(
	"\x00\x03\x1d\x00\x00\x69\x00\x00\x00\x69\x10\x03\x2c\x3c\x4c\x56\x08\x6f\x6e\x6c\x69\x6e\x65\x75\x69\x66\x0f\x4f\x6e\x55\x73\x65\x72\x48\x65\x61\x72\x74\x42\x65\x61\x74\x7d\x00\x00\x3c\x08\x00\x01\x06\x04\x74\x52\x65\x71\x1d\x00\x00\x2f\x0a\x0a\x0c\x16\x00\x26\x00\x36\x07\x61\x64\x72\x5f\x77\x61\x70\x46\x00\x0b\x12\x03\xae\xf0\x0f\x22\x03\xae\xf0\x0f\x3c\x42\x6d\x52\x02\x60\x5c\x60\x01\x7c\x82\x00\x0b\xb0\x1f\x9c\xac\x0b\x8c\x98\x0c\xa8\x0c",
)

func (c *BroadcastLiveC) getWSInfo(ctx context.Context, roomURL string) (string, []byte, error) {
	u, err := url.Parse(roomURL)
	if err != nil {
		return "", nil, perr.Wrap(perr.KindDecode, "huya.parse_room_url", err)
	}
	rid := path.Base(u.Path)

	req, _ := http.NewRequestWithContext(ctx, http.MethodGet, "https://www.huya.com/"+rid, nil)
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Referer", "https://www.huya.com/")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return "", nil, perr.Wrap(perr.KindTransient, "huya.channel_page", err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", nil, perr.Wrap(perr.KindTransient, "huya.channel_page_read", err)
	}

	m := ttProfileInfoPattern.FindSubmatch(body)
	if m == nil {
		return "", nil, perr.Wrap(perr.KindDecode, "huya.tt_profile_info", fmt.Errorf("pattern not found"))
	}
	ayyuid := gjson.GetBytes(m[1], "lp").String()
	if ayyuid == "" {
		return "", nil, perr.Wrap(perr.KindDecode, "huya.ayyuid", fmt.Errorf("missing lp"))
	}

	topics := []string{"live:" + ayyuid, "chat:" + ayyuid}
	inner := tars.NewEncoder()
	inner.WriteStringList(0, topics)
	inner.WriteString(1, "")

	cmd := tars.NewEncoder()
	cmd.WriteInt32(0, 16)
	cmd.WriteBytes(1, inner.Bytes())

	return "wss://cdnws.api.huya.com", cmd.Bytes(), nil
}

// Run implements Client.
func (c *BroadcastLiveC) Run(ctx context.Context, roomURL string, sink chatevent.Sink) error {
	ws, reg, err := c.getWSInfo(ctx, roomURL)
	if err != nil {
		return err
	}
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, ws, nil)
	if err != nil {
		return perr.Wrap(perr.KindTransient, "huya.dial", err)
	}
	defer conn.Close()

	if err := conn.WriteMessage(websocket.BinaryMessage, reg); err != nil {
		return perr.Wrap(perr.KindTransient, "huya.register", err)
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
				if err := conn.WriteMessage(websocket.BinaryMessage, huyaHeartbeat); err != nil {
					select {
					case errCh <- perr.Wrap(perr.KindTransient, "huya.heartbeat", err):
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
			return perr.Wrap(perr.KindTransient, "huya.read", err)
		}
		select {
		case herr := <-errCh:
			return herr
		default:
		}
		c.decodeFrame(data, sink)
	}
}

// decodeFrame walks the nested TARS structure: outer tag0 int32 == 7 selects
// a push notification; its tag1 byte blob is itself TARS-encoded and its
// tag1 int64 == 1400 selects a chat broadcast; that payload's tag2 byte
// blob holds the actual user/content/color fields.
func (c *BroadcastLiveC) decodeFrame(data []byte, sink chatevent.Sink) {
	outer := tars.NewDecoder(data)
	kind, err := outer.ReadInt32(0, false, -1)
	if err != nil || kind != 7 {
		return
	}
	notif, err := outer.ReadBytes(1, false, nil)
	if err != nil || notif == nil {
		return
	}

	mid := tars.NewDecoder(notif)
	broadcastType, err := mid.ReadInt64(1, false, -1)
	if err != nil || broadcastType != 1400 {
		return
	}
	payload, err := mid.ReadBytes(2, false, nil)
	if err != nil || payload == nil {
		return
	}

	inner := tars.NewDecoder(payload)
	var nick string
	err = inner.ReadStruct(0, false, func(d *tars.Decoder) error {
		nick, _ = d.ReadString(2, false, "")
		return nil
	})
	if err != nil && err != tars.ErrTagNotFound {
		return
	}
	if nick == "" {
		return
	}
	text, err := inner.ReadString(3, false, "")
	if err != nil {
		return
	}

	color := chatevent.DefaultColor
	_ = inner.ReadStruct(6, false, func(d *tars.Decoder) error {
		c, _ := d.ReadInt32(0, false, 16777215)
		if c != -1 {
			color = uint32(c)
		}
		return nil
	})

	sink.Send(chatevent.Event{Color: color, Nick: nick, Text: text})
}
