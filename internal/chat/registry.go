package chat

import (
	"fmt"
	"net/url"
	"strings"
)

// ForRoomURL implements the host-sniffing selector spec §4.1 describes
// living "inside C9": given the chat room's URL, it picks the matching
// platform Client. Archive and Bahamut URLs are told apart from live room
// URLs by path shape rather than host, matching how the original's
// dmlive.rs wires a fixed client per subcommand rather than per URL.
func ForRoomURL(roomURL string) (Client, error) {
	u, err := url.Parse(roomURL)
	if err != nil {
		return nil, fmt.Errorf("chat: parse room url: %w", err)
	}
	host := strings.ToLower(u.Hostname())

	switch {
	case strings.HasSuffix(host, "bilibili.com"), strings.HasSuffix(host, "live.bilibili.com"):
		return NewBroadcastLiveA(), nil
	case strings.HasSuffix(host, "douyu.com"):
		return NewBroadcastLiveB(), nil
	case strings.HasSuffix(host, "huya.com"):
		return NewBroadcastLiveC(), nil
	case strings.HasSuffix(host, "twitch.tv"):
		return NewIRCOverWSS(), nil
	case strings.HasSuffix(host, "youtube.com"), strings.HasSuffix(host, "youtu.be"):
		return NewPollingChat(), nil
	case strings.HasSuffix(host, "gamer.com.tw"):
		return NewOneShotJSON(), nil
	case strings.Contains(u.Path, ".xml"), strings.Contains(host, "bilivideo"):
		return NewOneShotArchive(), nil
	default:
		return nil, fmt.Errorf("chat: no client for host %q", host)
	}
}
