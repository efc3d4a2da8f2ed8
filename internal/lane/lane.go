// Package lane implements C4, the scrolling-overlay lane scheduler. It is a
// direct port of original_source/src/danmaku/mod.rs's
// get_avail_danmaku_channel and get_danmaku_display_length: given a chat
// line's on-screen pixel width and the elapsed time since the pipeline
// started, it finds a lane the line can occupy without visually colliding
// with whatever is already crawling through that lane, or reports that none
// is free (the caller then renders a spacer instead).
//
// The collision formula is preserved byte-for-byte from the original,
// including its particular choice of units (ms, design pixels) and its
// floating-point order of operations — see design note §9's open question
// on this.
package lane

import "math"

// Channel is one scrolling lane's current occupant.
type Channel struct {
	Length   int // display-pixel width of the line currently in the lane, 0 if free
	BeginPTS int // elapsed ms at which the current occupant started crawling
}

// Scheduler assigns chat lines to lanes on a 1920-design-pixel-wide canvas.
// It is not safe for concurrent use; the single-threaded pipeline (§5) owns
// one Scheduler per incarnation.
type Scheduler struct {
	Speed      int     // crawl duration, ms, for a line to cross the canvas
	ChannelNum int     // number of active lanes (derived from canvas height / font size)
	FontSize   int     // design-pixel font size
	RatioScale float64 // extra horizontal scale factor (always 1.0 unless configured otherwise)

	channels []Channel
}

const canvasWidth = 1920.0

// NewScheduler creates a Scheduler with channelNum lanes, all initially free.
func NewScheduler(channelNum, fontSize, speedMS int, ratioScale float64) *Scheduler {
	if ratioScale <= 0 {
		ratioScale = 1.0
	}
	return &Scheduler{
		Speed:      speedMS,
		ChannelNum: channelNum,
		FontSize:   fontSize,
		RatioScale: ratioScale,
		channels:   make([]Channel, channelNum),
	}
}

// ChannelNumForHeight derives the lane count from an overlay height of 540
// design pixels, matching Danmaku::init's (540.0 / font_size).ceil().
func ChannelNumForHeight(fontSize int) int {
	return int(math.Ceil(540.0 / float64(fontSize)))
}

// DisplayLength estimates the on-screen pixel width of text: ASCII runes
// count for a quarter of the font size, everything else (treated as
// full-width, e.g. CJK) for three quarters.
func (s *Scheduler) DisplayLength(text string) int {
	var ascii, nonASCII int
	for _, r := range text {
		if r < 0x80 {
			ascii++
		} else {
			nonASCII++
		}
	}
	fs := float64(s.FontSize)
	return int(math.Round((fs*0.75*float64(nonASCII) + fs*0.25*float64(ascii)) * s.RatioScale))
}

// Avail finds a free lane for a line of the given display length, at
// nowElapsedMS milliseconds since the pipeline's start. It returns the lane
// index and true, or false if every active lane is still occupied by a line
// that would visually collide with the new one.
//
// A lane is immediately available if empty. Otherwise the new line may join
// only once the occupant has crawled far enough that the two would not
// overlap on screen for the remainder of the crawl — the two-branch check
// below is that geometry, evaluated directly rather than simplified, to
// keep it checkable against the original line by line.
func (s *Scheduler) Avail(nowElapsedMS int, length int) (int, bool) {
	speed := float64(s.Speed)
	scale := (canvasWidth + float64(length)) / speed
	cPTS := nowElapsedMS

	n := s.ChannelNum
	if n > len(s.channels) {
		n = len(s.channels)
	}
	for i := 0; i < n; i++ {
		c := &s.channels[i]
		if c.Length == 0 {
			c.Length = length
			c.BeginPTS = cPTS
			return i, true
		}
		if (speed-float64(cPTS)+float64(c.BeginPTS))*scale > canvasWidth {
			continue
		}
		if (float64(c.Length+int(canvasWidth))*(float64(cPTS)-float64(c.BeginPTS))/speed) < float64(c.Length) {
			continue
		}
		c.Length = length
		c.BeginPTS = cPTS
		return i, true
	}
	return 0, false
}
