package chat

import (
	"context"
	"encoding/xml"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/klauspost/compress/flate"
	"github.com/tidwall/gjson"

	"dmlive/internal/chatevent"
	"dmlive/internal/perr"
)

// OneShotArchive implements C1's one-shot archive variant (Bilibili-video-
// equivalent), grounded on original_source/src/danmaku/bilivideo.rs: a
// single HTTP GET of a deflate-compressed XML comment dump, one <d p="...">
// element per line, decoded and sent all at once rather than streamed live.
// p's comma-separated fields are, in order, timestamp-seconds, mode, font
// size, color, ...; only the timestamp and color are used here.
type OneShotArchive struct{}

// NewOneShotArchive returns a ready-to-use one-shot archive client.
func NewOneShotArchive() *OneShotArchive { return &OneShotArchive{} }

type danmakuXML struct {
	XMLName xml.Name  `xml:"i"`
	Lines   []danLine `xml:"d"`
}

type danLine struct {
	P    string `xml:"p,attr"`
	Text string `xml:",chardata"`
}

// Run implements Client. roomURL is the archive comment dump's direct URL.
func (c *OneShotArchive) Run(ctx context.Context, roomURL string, sink chatevent.Sink) error {
	req, _ := http.NewRequestWithContext(ctx, http.MethodGet, roomURL, nil)
	req.Header.Set("User-Agent", userAgent)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return perr.Wrap(perr.KindTransient, "archive.get", err)
	}
	defer resp.Body.Close()

	inflated, err := io.ReadAll(flate.NewReader(resp.Body))
	if err != nil {
		return perr.Wrap(perr.KindDecode, "archive.inflate", err)
	}

	var doc danmakuXML
	if err := xml.Unmarshal(inflated, &doc); err != nil {
		return perr.Wrap(perr.KindDecode, "archive.xml", err)
	}

	for _, line := range doc.Lines {
		fields := strings.Split(line.P, ",")
		if len(fields) < 4 {
			continue
		}
		seconds, err := strconv.ParseFloat(fields[0], 64)
		if err != nil {
			continue
		}
		color := chatevent.DefaultColor
		if rgb, err := strconv.ParseUint(fields[3], 10, 32); err == nil {
			color = uint32(rgb)
		}
		sink.Send(chatevent.Event{
			Color:         color,
			Text:          line.Text,
			ArrivalTimeMS: int64(seconds * 1000),
		})
	}
	return nil
}

// OneShotJSON implements C1's supplemented Bahamut/baha variant: a single
// HTTP GET returning a JSON array of comments up front, grounded on
// original_source/src/danmaku/baha.rs. Unlike the archive variant's XML
// dump, positions collapse to scroll (0) vs. fixed-top (non-zero), times
// are already in centiseconds, and colors arrive as "#RRGGBB" strings.
type OneShotJSON struct{}

// NewOneShotJSON returns a ready-to-use one-shot JSON client.
func NewOneShotJSON() *OneShotJSON { return &OneShotJSON{} }

// Run implements Client. roomURL is the comment-list endpoint's direct URL.
func (c *OneShotJSON) Run(ctx context.Context, roomURL string, sink chatevent.Sink) error {
	req, _ := http.NewRequestWithContext(ctx, http.MethodGet, roomURL, nil)
	req.Header.Set("User-Agent", userAgent)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return perr.Wrap(perr.KindTransient, "baha.get", err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return perr.Wrap(perr.KindTransient, "baha.read", err)
	}

	comments := gjson.GetBytes(body, "data.danmu")
	if !comments.IsArray() {
		return perr.Wrap(perr.KindDecode, "baha.data_danmu", errors.New("data.danmu is not an array"))
	}

	for _, d := range comments.Array() {
		text := strings.TrimSpace(d.Get("text").String())
		centiseconds := d.Get("time").Int()
		position := chatevent.PositionScroll
		if d.Get("position").Int() != 0 {
			position = chatevent.PositionTop
		}
		color := chatevent.DefaultColor
		if cv := strings.TrimPrefix(d.Get("color").String(), "#"); cv != "" {
			if rgb, err := strconv.ParseUint(cv, 16, 32); err == nil {
				color = uint32(rgb)
			}
		}
		sink.Send(chatevent.Event{
			Color:         color,
			Text:          text,
			Position:      position,
			ArrivalTimeMS: centiseconds * 100,
		})
	}
	return nil
}
