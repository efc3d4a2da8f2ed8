package resolver

import (
	"context"
	"io"
	"net/url"

	"github.com/tidwall/gjson"

	"dmlive/internal/perr"
)

// Baha resolves a gamer.com.tw anime episode's video metadata. The
// platform's actual video stream requires DRM this module does not
// implement, matching the original's si.insert("url", "https://127.0.0.1")
// placeholder in streamfinder/baha.rs — Baha exists here to surface the
// title and episode bookkeeping to internal/chat's OneShotJSON danmaku
// client, not to produce a playable URL.
type Baha struct {
	// Page selects which episode to resolve (1-indexed); 0 defaults to 1,
	// and an out-of-range page clamps to the last episode.
	Page int
}

const bahaVideoAPI = "https://api.gamer.com.tw/anime/v1/video.php"

func (b *Baha) Resolve(ctx context.Context, roomURL, _ string) (Result, error) {
	u, err := url.Parse(roomURL)
	if err != nil {
		return Result{}, perr.Wrap(perr.KindDecode, "baha.parse_url", err)
	}
	videoSn := u.Query().Get("sn")

	resp, err := httpGetUA(ctx, bahaVideoAPI+"?videoSn="+url.QueryEscape(videoSn), safariUserAgent, nil)
	if err != nil {
		return Result{}, perr.Wrap(perr.KindTransient, "baha.video", err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return Result{}, perr.Wrap(perr.KindTransient, "baha.video.read", err)
	}

	title := gjson.GetBytes(body, "data.anime.title").String()
	episodes := gjson.GetBytes(body, "data.anime.episodes.0").Array()
	if len(episodes) == 0 {
		return Result{}, perr.Wrap(perr.KindDecode, "baha.video.parse", errNoMatch("data.anime.episodes.0"))
	}

	page := b.Page
	if page == 0 {
		page = 1
	}
	var ep gjson.Result
	if page-1 < len(episodes) {
		ep = episodes[page-1]
	} else {
		page = len(episodes)
		ep = episodes[len(episodes)-1]
	}
	_ = ep.Get("videoSn").String()

	displayTitle := title
	if len(title) > 3 {
		displayTitle = title[:len(title)-3]
	}
	return Result{
		Title: displayTitle + "[" + itoaBaha(page) + "]",
		URLs:  []string{"https://127.0.0.1"},
	}, nil
}

func itoaBaha(n int) string {
	if n == 0 {
		return "0"
	}
	var buf [20]byte
	i := len(buf)
	for n > 0 {
		i--
		buf[i] = byte('0' + n%10)
		n /= 10
	}
	return string(buf[i:])
}
