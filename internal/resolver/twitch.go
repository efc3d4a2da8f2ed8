package resolver

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strings"

	"github.com/tidwall/gjson"

	"dmlive/internal/perr"
)

// Twitch resolves a channel's playback access token via the GQL API, then
// asks usher for the concrete HLS manifest URL. Ported from
// streamfinder/twitch.rs.
type Twitch struct{}

const (
	twitchGQLAPI   = "https://gql.twitch.tv/gql"
	twitchUsherAPI = "https://usher.ttvnw.net/api/channel/hls/"
	twitchClientID = "jzkbprff40iqj646a697cyrvl0zt2m6"
)

var (
	twitchTitlePattern = regexp.MustCompile(`"BroadcastSettings\}\|\{[^"]+":.+?"title":"(.+?)"`)
	twitchUsherURLPatt = regexp.MustCompile(`(?s)[\s\S]+?\n(http[^\n]+)`)
)

func (t *Twitch) Resolve(ctx context.Context, roomURL, _ string) (Result, error) {
	u, err := url.Parse(roomURL)
	if err != nil {
		return Result{}, perr.Wrap(perr.KindDecode, "twitch.parse_room_url", err)
	}
	segs := strings.Split(strings.Trim(u.Path, "/"), "/")
	rid := segs[len(segs)-1]

	profileResp, err := httpGet(ctx, "https://m.twitch.tv/"+rid+"/profile", map[string]string{
		"Accept-Language": "en-US",
		"Referer":         "https://m.twitch.tv/",
	})
	if err != nil {
		return Result{}, perr.Wrap(perr.KindTransient, "twitch.profile", err)
	}
	defer profileResp.Body.Close()
	profileBody, err := io.ReadAll(profileResp.Body)
	if err != nil {
		return Result{}, perr.Wrap(perr.KindTransient, "twitch.profile.read", err)
	}
	tm := twitchTitlePattern.FindSubmatch(profileBody)
	if tm == nil {
		return Result{}, perr.Wrap(perr.KindDecode, "twitch.profile.title", errNoMatch("BroadcastSettings title"))
	}
	title := string(tm[1])

	query := `{"query": "query { streamPlaybackAccessToken(channelName: \"` + rid +
		`\", params: { platform: \"web\", playerBackend:\"mediaplayer\", playerType:\"pulsar\" }) { value, signature } }"}`
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, twitchGQLAPI, bytes.NewReader([]byte(query)))
	if err != nil {
		return Result{}, perr.Wrap(perr.KindDecode, "twitch.gql.request", err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Referer", "https://m.twitch.tv/")
	req.Header.Set("Client-Id", twitchClientID)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return Result{}, perr.Wrap(perr.KindTransient, "twitch.gql", err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return Result{}, perr.Wrap(perr.KindTransient, "twitch.gql.read", err)
	}
	sign := gjson.GetBytes(body, "data.streamPlaybackAccessToken.signature").String()
	token := gjson.GetBytes(body, "data.streamPlaybackAccessToken.value").String()
	if sign == "" || token == "" {
		return Result{}, perr.Wrap(perr.KindDecode, "twitch.gql.parse", errNoMatch("streamPlaybackAccessToken"))
	}

	q := url.Values{}
	q.Set("allow_source", "true")
	q.Set("fast_bread", "true")
	q.Set("sig", sign)
	q.Set("token", token)
	usherResp, err := httpGet(ctx, twitchUsherAPI+rid+".m3u8?"+q.Encode(), map[string]string{
		"Accept-Language": "en-US",
		"Referer":         "https://m.twitch.tv/",
	})
	if err != nil {
		return Result{}, perr.Wrap(perr.KindTransient, "twitch.usher", err)
	}
	defer usherResp.Body.Close()
	usherBody, err := io.ReadAll(usherResp.Body)
	if err != nil {
		return Result{}, perr.Wrap(perr.KindTransient, "twitch.usher.read", err)
	}
	um := twitchUsherURLPatt.FindSubmatch(usherBody)
	if um == nil {
		return Result{}, perr.Wrap(perr.KindDecode, "twitch.usher.parse", errNoMatch("m3u8 url line"))
	}

	return Result{Title: title, URLs: []string{string(um[1])}}, nil
}
