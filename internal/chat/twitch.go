package chat

import (
	"context"
	"net/url"
	"path"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"dmlive/internal/chatevent"
	"dmlive/internal/perr"
)

// Precompiled once at package init per spec §9.
var (
	twitchDisplayNamePattern = regexp.MustCompile(`display-name=([^;]+);`)
	twitchPrivmsgPattern     = regexp.MustCompile(`PRIVMSG [^:]+:(.+)`)
	twitchColorPattern       = regexp.MustCompile(`color=#([a-zA-Z0-9]{6});`)
)

// IRCOverWSS implements C1's IRC-over-WSS variant (Twitch-equivalent),
// grounded on original_source/src/danmaku/twitch.rs: plain-text IRCv3
// registration lines, a bare "PING" heartbeat, and regex-based extraction of
// display-name/PRIVMSG/color from tag-prefixed IRC lines.
type IRCOverWSS struct{}

// NewIRCOverWSS returns a ready-to-use IRC-over-WSS client.
func NewIRCOverWSS() *IRCOverWSS { return &IRCOverWSS{} }

const ircHeartbeat = "PING"

func (c *IRCOverWSS) getWSInfo(roomURL string) (string, []string, error) {
	u, err := url.Parse(roomURL)
	if err != nil {
		return "", nil, perr.Wrap(perr.KindDecode, "irc.parse_room_url", err)
	}
	rid := path.Base(u.Path)

	nick := randomAnonNick()
	reg := []string{
		"CAP REQ :twitch.tv/tags twitch.tv/commands twitch.tv/membership",
		"PASS SCHMOOPIIE",
		"NICK " + nick,
		"USER " + nick + " 8 * :" + nick,
		"JOIN #" + rid,
	}
	return "wss://irc-ws.chat.twitch.tv", reg, nil
}

// Run implements Client.
func (c *IRCOverWSS) Run(ctx context.Context, roomURL string, sink chatevent.Sink) error {
	ws, reg, err := c.getWSInfo(roomURL)
	if err != nil {
		return err
	}
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, ws, nil)
	if err != nil {
		return perr.Wrap(perr.KindTransient, "irc.dial", err)
	}
	defer conn.Close()

	for _, line := range reg {
		if err := conn.WriteMessage(websocket.TextMessage, []byte(line)); err != nil {
			return perr.Wrap(perr.KindTransient, "irc.register", err)
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
				if err := conn.WriteMessage(websocket.TextMessage, []byte(ircHeartbeat)); err != nil {
					select {
					case errCh <- perr.Wrap(perr.KindTransient, "irc.heartbeat", err):
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
			return perr.Wrap(perr.KindTransient, "irc.read", err)
		}
		select {
		case herr := <-errCh:
			return herr
		default:
		}
		c.decodeMessage(data, sink)
	}
}

func (c *IRCOverWSS) decodeMessage(data []byte, sink chatevent.Sink) {
	for _, line := range strings.Split(string(data), "\n") {
		nameMatch := twitchDisplayNamePattern.FindStringSubmatch(line)
		if nameMatch == nil {
			continue
		}
		contentMatch := twitchPrivmsgPattern.FindStringSubmatch(line)
		if contentMatch == nil {
			continue
		}

		color := chatevent.DefaultColor
		if colorMatch := twitchColorPattern.FindStringSubmatch(line); colorMatch != nil {
			if rgb, err := strconv.ParseUint(colorMatch[1], 16, 32); err == nil {
				color = uint32(rgb)
			}
		}

		sink.Send(chatevent.Event{Color: color, Nick: nameMatch[1], Text: contentMatch[1]})
	}
}
