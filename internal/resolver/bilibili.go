package resolver

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/tidwall/gjson"

	"dmlive/internal/perr"
)

// Bilibili resolves both live rooms and on-demand videos (including
// bangumi episodes), ported from streamfinder/bilibili.rs.
type Bilibili struct{}

const (
	biliAPIRoomPlayInfo = "https://api.live.bilibili.com/xlive/web-room/v2/index/getRoomPlayInfo"
	biliAPIRoomInfo     = "https://api.live.bilibili.com/xlive/web-room/v1/index/getInfoByRoom"
	biliAPIPlayURL      = "https://api.bilibili.com/x/player/playurl"
	biliAPIPlayURLEp    = "https://api.bilibili.com/pgc/player/web/playurl"
)

var (
	biliInitialStatePattern = regexp.MustCompile(`__INITIAL_STATE__=(\{.+?\});`)
	biliEpTitlePattern      = regexp.MustCompile(`<title>(.+?)_番剧_bilibili_哔哩哔哩<`)
	biliPageQueryPattern    = regexp.MustCompile(`\?p=(\d+)`)
)

func (b *Bilibili) Resolve(ctx context.Context, roomOrVideoURL, cookie string) (Result, error) {
	if strings.Contains(roomOrVideoURL, "live.bilibili.com") {
		return b.getLive(ctx, roomOrVideoURL)
	}
	return b.getVideo(ctx, roomOrVideoURL, cookie)
}

// getLive signs getRoomPlayInfo's query with the WBI scheme (the teacher's
// otherwise-unused bili_wbi module, wired in here rather than left dead),
// then fetches the human title from the companion getInfoByRoom call.
func (b *Bilibili) getLive(ctx context.Context, roomURL string) (Result, error) {
	u, err := url.Parse(roomURL)
	if err != nil {
		return Result{}, perr.Wrap(perr.KindDecode, "bilibili.parse_room_url", err)
	}
	segs := strings.Split(strings.Trim(u.Path, "/"), "/")
	rid := segs[len(segs)-1]

	imgKey, subKey, err := getWBIKeys(ctx, "")
	if err != nil {
		return Result{}, perr.Wrap(perr.KindTransient, "bilibili.wbi_keys", err)
	}
	params := map[string]string{
		"room_id":    rid,
		"no_playurl": "0",
		"mask":       "1",
		"qn":         "10000",
		"platform":   "web",
		"protocol":   "0,1",
		"format":     "0,2",
		"codec":      "0,1",
	}
	signed := encodeWBI(params, imgKey, subKey, time.Now())

	resp, err := httpGet(ctx, biliAPIRoomPlayInfo+"?"+signed, map[string]string{"Referer": roomURL})
	if err != nil {
		return Result{}, perr.Wrap(perr.KindTransient, "bilibili.room_play_info", err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return Result{}, perr.Wrap(perr.KindTransient, "bilibili.room_play_info.read", err)
	}
	codecPath := "data.playurl_info.playurl.stream.0.format.0.codec.0"
	host := gjson.GetBytes(body, codecPath+".url_info.0.host").String()
	base := gjson.GetBytes(body, codecPath+".base_url").String()
	extra := gjson.GetBytes(body, codecPath+".url_info.0.extra").String()
	if host == "" || base == "" {
		return Result{}, perr.Wrap(perr.KindDecode, "bilibili.room_play_info.parse", fmt.Errorf("no codec entry in %s", string(body)))
	}

	resp2, err := httpGet(ctx, biliAPIRoomInfo+"?room_id="+url.QueryEscape(rid), nil)
	if err != nil {
		return Result{}, perr.Wrap(perr.KindTransient, "bilibili.room_info", err)
	}
	defer resp2.Body.Close()
	body2, err := io.ReadAll(resp2.Body)
	if err != nil {
		return Result{}, perr.Wrap(perr.KindTransient, "bilibili.room_info.read", err)
	}
	title := gjson.GetBytes(body2, "data.room_info.title").String()
	uname := gjson.GetBytes(body2, "data.anchor_info.base_info.uname").String()

	return Result{Title: title + " - " + uname, URLs: []string{host + base + extra}}, nil
}

func (b *Bilibili) getVideo(ctx context.Context, videoURL, cookie string) (Result, error) {
	if strings.Contains(videoURL, "bilibili.com/bangumi") {
		return b.getVideoEp(ctx, videoURL, cookie)
	}

	page := "1"
	if m := biliPageQueryPattern.FindStringSubmatch(videoURL); m != nil {
		page = m[1]
	}

	resp, err := httpGet(ctx, videoURL, map[string]string{"Referer": videoURL})
	if err != nil {
		return Result{}, perr.Wrap(perr.KindTransient, "bilibili.page", err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return Result{}, perr.Wrap(perr.KindTransient, "bilibili.page.read", err)
	}
	m := biliInitialStatePattern.FindSubmatch(body)
	if m == nil {
		return Result{}, perr.Wrap(perr.KindDecode, "bilibili.page.initial_state", fmt.Errorf("no __INITIAL_STATE__ in page"))
	}
	state := m[1]

	bvid := gjson.GetBytes(state, "videoData.bvid").String()
	title := gjson.GetBytes(state, "videoData.title").String()
	artist := gjson.GetBytes(state, "videoData.owner.name").String()
	var cid string
	for _, p := range gjson.GetBytes(state, "videoData.pages").Array() {
		i := p.Get("page").Int()
		if strconv.FormatInt(i, 10) == page {
			cid = p.Get("cid").String()
			if i > 1 {
				subtitle := p.Get("part").String()
				title = fmt.Sprintf("%s - %d - %s", title, i, subtitle)
			}
		}
	}

	urls, err := b.playURLDash(ctx, biliAPIPlayURL, cid, bvid, videoURL, cookie)
	if err != nil {
		return Result{}, err
	}
	return Result{Title: title + " - " + artist, URLs: urls}, nil
}

func (b *Bilibili) getVideoEp(ctx context.Context, videoURL, cookie string) (Result, error) {
	resp, err := httpGet(ctx, videoURL, map[string]string{"Referer": videoURL})
	if err != nil {
		return Result{}, perr.Wrap(perr.KindTransient, "bilibili.ep_page", err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return Result{}, perr.Wrap(perr.KindTransient, "bilibili.ep_page.read", err)
	}
	m := biliInitialStatePattern.FindSubmatch(body)
	if m == nil {
		return Result{}, perr.Wrap(perr.KindDecode, "bilibili.ep_page.initial_state", fmt.Errorf("no __INITIAL_STATE__ in ep page"))
	}
	state := m[1]

	title := gjson.GetBytes(state, "h1Title").String()
	if title == "" {
		if tm := biliEpTitlePattern.FindSubmatch(body); tm != nil {
			title = string(tm[1])
		} else if t := extractTitleTag(body); t != "" {
			title = strings.TrimSuffix(t, "_番剧_bilibili_哔哩哔哩")
		}
	}
	cid := gjson.GetBytes(state, "epInfo.cid").String()
	bvid := gjson.GetBytes(state, "epInfo.bvid").String()
	artist := gjson.GetBytes(state, "mediaInfo.upInfo.name").String()

	urls, err := b.playURLDash(ctx, biliAPIPlayURLEp, cid, bvid, videoURL, cookie)
	if err != nil {
		return Result{}, err
	}
	return Result{Title: title + " - " + artist, URLs: urls}, nil
}

// playURLDash calls either the video or bangumi play-info API and picks
// apart the dash/durl branch exactly as get_video does, including the
// codecid==12 (AV1 first) swap.
func (b *Bilibili) playURLDash(ctx context.Context, api, cid, bvid, referer, cookie string) ([]string, error) {
	q := url.Values{}
	q.Set("cid", cid)
	q.Set("bvid", bvid)
	q.Set("qn", "120")
	q.Set("otype", "json")
	q.Set("fourk", "1")
	q.Set("fnver", "0")
	q.Set("fnval", "16")

	headers := map[string]string{"Referer": referer, "Cookie": cookie}
	resp, err := httpGetUA(ctx, api+"?"+q.Encode(), legacyUserAgent, headers)
	if err != nil {
		return nil, perr.Wrap(perr.KindTransient, "bilibili.play_url", err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, perr.Wrap(perr.KindTransient, "bilibili.play_url.read", err)
	}

	root := "data"
	if strings.Contains(api, "pgc") {
		root = "result"
	}
	j := gjson.GetBytes(body, root)
	if !j.Get("dash").Exists() {
		var urls []string
		for _, v := range j.Get("durl").Array() {
			urls = append(urls, v.Get("url").String())
		}
		return urls, nil
	}

	videos := j.Get("dash.video").Array()
	audio0 := j.Get("dash.audio.0.base_url").String()
	v0 := j.Get("dash.video.0.base_url").String()
	codec0 := j.Get("dash.video.0.codecid").Int()
	if len(videos) > 1 {
		v1 := j.Get("dash.video.1.base_url").String()
		if codec0 == 12 {
			return []string{v1, audio0, v0}, nil
		}
		return []string{v0, audio0, v1}, nil
	}
	return []string{v0, audio0}, nil
}
