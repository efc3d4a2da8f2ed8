// Package overlay wires C4 (internal/lane) and C3 (internal/subtitle)
// together the way original_source/src/danmaku/mod.rs's launch_danmaku and
// init do: it turns one approved chatevent.Event into a single-block
// subtitle.Cluster, formatting the ASS-style payload with the line's color,
// alpha, font size, and move directive in-line.
package overlay

import (
	"fmt"

	"dmlive/internal/chatevent"
	"dmlive/internal/config"
	"dmlive/internal/lane"
	"dmlive/internal/subtitle"
)

const subtitleTrack byte = 1

// topLifetimeMS is the fixed on-screen duration for centered, non-scrolling
// top-position events (spec §4.3: "render centered with a fixed 2-second
// lifetime and may overlap").
const topLifetimeMS = 2000

// Encoder is the per-pipeline C4→C3 bridge. It is not safe for concurrent
// use; the pipeline's single consumer goroutine owns it exclusively.
type Encoder struct {
	scheduler *lane.Scheduler
	fontSize  int
	fontAlpha float64
	speedMS   int
	readOrder uint64
}

// NewEncoder builds an Encoder sized from a config snapshot: lane count is
// derived from the 540-design-pixel canvas height and the effective font
// size, matching Danmaku::init.
func NewEncoder(snap config.Snapshot) *Encoder {
	fontSize := snap.FontSize()
	channelNum := lane.ChannelNumForHeight(fontSize)
	return &Encoder{
		scheduler: lane.NewScheduler(channelNum, fontSize, snap.DanmakuSpeedMS, 1.0),
		fontSize:  fontSize,
		fontAlpha: snap.FontAlpha,
		speedMS:   snap.DanmakuSpeedMS,
	}
}

// Encode converts one event, arriving at elapsedMS since pipeline start,
// into a single-block cluster. A spacer event, or an event that finds no
// free lane (the lane scheduler's drop policy — chat is lossy, not
// queued), produces the fixed keep-alive payload instead.
func (e *Encoder) Encode(ev chatevent.Event, elapsedMS uint64) *subtitle.Cluster {
	order := e.readOrder
	e.readOrder++

	cluster := subtitle.NewCluster(elapsedMS)

	if ev.IsSpacer() {
		cluster.AddLine(elapsedMS, subtitleTrack, []byte(spacerLine(order)), 1)
		return cluster
	}

	if ev.Position == chatevent.PositionTop {
		line := fmt.Sprintf(
			"%d,0,Default,%s,0,0,0,,{\\an8\\alpha%02x\\fs%d\\1c&%s&}%s",
			order, ev.Nick, alphaByte(e.fontAlpha), e.fontSize, bgrHex(ev.Color), ev.Text,
		)
		cluster.AddLine(elapsedMS, subtitleTrack, []byte(line), topLifetimeMS)
		return cluster
	}

	length := e.scheduler.DisplayLength(ev.Text)
	laneIdx, ok := e.scheduler.Avail(int(elapsedMS), length)
	if !ok {
		cluster.AddLine(elapsedMS, subtitleTrack, []byte(spacerLine(order)), 1)
		return cluster
	}

	y := laneIdx * e.fontSize
	x2 := -length
	line := fmt.Sprintf(
		"%d,0,Default,%s,0,0,0,,{\\alpha%02x\\fs%d\\1c&%s&\\move(1920,%d,%d,%d)}%s",
		order, ev.Nick, alphaByte(e.fontAlpha), e.fontSize, bgrHex(ev.Color), y, x2, y, ev.Text,
	)
	cluster.AddLine(elapsedMS, subtitleTrack, []byte(line), uint32(e.speedMS))
	return cluster
}

func spacerLine(order uint64) string {
	return fmt.Sprintf("%d,0,Default,dmlive-empty,20,20,2,,", order)
}

// alphaByte truncates (not rounds) alpha into [0,255], matching the
// original's `as u8` cast.
func alphaByte(alpha float64) uint8 {
	if alpha < 0 {
		alpha = 0
	}
	if alpha > 1 {
		alpha = 1
	}
	return uint8(alpha * 255)
}

// bgrHex renders a 24-bit RGB color as ASS's reversed &HBBGGRR& byte order.
func bgrHex(rgb uint32) string {
	r := (rgb >> 16) & 0xff
	g := (rgb >> 8) & 0xff
	b := rgb & 0xff
	return fmt.Sprintf("%02X%02X%02X", b, g, r)
}
