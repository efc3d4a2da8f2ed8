package resolver

import (
	"context"
	"html"
	"io"
	"regexp"

	"github.com/tidwall/gjson"

	"dmlive/internal/perr"
)

// Huya resolves a room page's embedded hyPlayerConfig JSON, ported from
// streamfinder/huya.rs.
type Huya struct{}

var (
	huyaStreamPattern  = regexp.MustCompile(`(?s)hyPlayerConfig.*?stream:(.*?)\s*};`)
	huyaProfilePattern = regexp.MustCompile(`var\s+TT_PROFILE_INFO\s+=\s+(.+\});`)
	huyaRoomPattern    = regexp.MustCompile(`var\s+TT_ROOM_DATA\s+=\s+(.+\});`)
)

func (h *Huya) Resolve(ctx context.Context, roomURL, _ string) (Result, error) {
	resp, err := httpGet(ctx, roomURL, map[string]string{"Referer": "https://www.huya.com/"})
	if err != nil {
		return Result{}, perr.Wrap(perr.KindTransient, "huya.page", err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return Result{}, perr.Wrap(perr.KindTransient, "huya.page.read", err)
	}

	stream := huyaStreamPattern.FindSubmatch(body)
	profile := huyaProfilePattern.FindSubmatch(body)
	room := huyaRoomPattern.FindSubmatch(body)
	if stream == nil || profile == nil || room == nil {
		return Result{}, perr.Wrap(perr.KindDecode, "huya.page.parse", errNoMatch("hyPlayerConfig/TT_PROFILE_INFO/TT_ROOM_DATA"))
	}

	nick := gjson.GetBytes(profile[1], "nick").String()
	introduction := gjson.GetBytes(room[1], "introduction").String()

	base := "data.0.gameStreamInfoList.0"
	flvURL := gjson.GetBytes(stream[1], base+".sFlvUrl").String()
	streamName := gjson.GetBytes(stream[1], base+".sStreamName").String()
	suffix := gjson.GetBytes(stream[1], base+".sFlvUrlSuffix").String()
	antiCode := gjson.GetBytes(stream[1], base+".sFlvAntiCode").String()

	url := html.UnescapeString(flvURL + "/" + streamName + "." + suffix + "?" + antiCode)
	return Result{Title: introduction + " - " + nick, URLs: []string{url}}, nil
}
