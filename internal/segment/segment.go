// Package segment implements C5, the HLS-like playlist poller and segment
// queue that feeds the HLS relay driver in internal/relay. Ported from
// original_source/src/streamer/{segment,hls}.rs: a bespoke line-by-line
// m3u8 reader plus a two-task (poll/refresh-trigger) sequencer.
//
// Parsing stays hand-rolled rather than routed through a general HLS
// library: the directive handling here folds in site-specific skip
// classification (the "Amazon" ad-insertion heuristic, first-update
// backlog suppression, max-BANDWIDTH variant selection) that sits outside
// what a spec-compliant m3u8 decoder's object model would expose, and the
// original itself hand-rolls the identical line scan.
package segment

import (
	"bufio"
	"context"
	"strconv"
	"strings"
	"time"
)

// Skip classifies how a relay driver should treat a segment's bytes.
type Skip int

const (
	// SkipEmit forwards the segment's bytes to the media socket.
	SkipEmit Skip = 0
	// SkipFetchDrop downloads the segment but discards its bytes.
	SkipFetchDrop Skip = 1
	// SkipIgnore never downloads the segment at all.
	SkipIgnore Skip = 2
)

// MediaSegment is one queued HLS segment (spec §3's MediaSegment).
type MediaSegment struct {
	URL            string
	IsHeader       bool
	Skip           Skip
	SequenceNumber uint64
}

// VariantStream is one entry from a master playlist's EXT-X-STREAM-INF list.
type VariantStream struct {
	Bandwidth int
	URL       string
}

// Playlist is the result of parsing one m3u8 response body.
type Playlist struct {
	SequenceBase     uint64
	TargetDurationMS uint64
	Segments         []MediaSegment
	VariantStreams   []VariantStream
}

// ParsePlaylist decodes an m3u8 text body per spec §4.5's directive rules,
// ported line-for-line from HLS::decode_m3u8.
func ParsePlaylist(text string) Playlist {
	var (
		sq         uint64
		targetSecs uint64 = 5
		header     string
		extinf     string
		streamInf  string
		segments   []MediaSegment
		variants   []VariantStream
	)

	scanner := bufio.NewScanner(strings.NewReader(text))
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if strings.HasPrefix(line, "#") {
			k, v, ok := strings.Cut(line[1:], ":")
			if !ok {
				continue
			}
			k, v = strings.TrimSpace(k), strings.TrimSpace(v)
			switch k {
			case "EXT-X-MEDIA-SEQUENCE":
				sq, _ = strconv.ParseUint(v, 10, 64)
			case "EXT-X-TARGETDURATION":
				targetSecs, _ = strconv.ParseUint(v, 10, 64)
			case "EXT-X-MAP":
				_, h, _ := strings.Cut(v, "=")
				h = strings.Trim(strings.TrimSpace(h), `"`)
				header = strings.TrimSpace(h)
			case "EXTINF":
				extinf = v
			case "EXT-X-STREAM-INF":
				streamInf = v
			}
			continue
		}

		if streamInf == "" {
			skip := SkipEmit
			if strings.Contains(extinf, "Amazon") {
				skip = SkipFetchDrop
			}
			segments = append(segments, MediaSegment{URL: line, Skip: skip})
			extinf = ""
		} else {
			bw := 1
			for _, attr := range strings.Split(streamInf, ",") {
				attr = strings.TrimSpace(attr)
				if !strings.HasPrefix(attr, "BANDWIDTH") {
					continue
				}
				if _, val, ok := strings.Cut(attr, "="); ok {
					if n, err := strconv.Atoi(strings.TrimSpace(val)); err == nil {
						bw = n
					}
				}
			}
			variants = append(variants, VariantStream{Bandwidth: bw, URL: line})
			targetSecs = 1
			sq = 0
			streamInf = ""
		}
	}

	if header != "" {
		segments = append([]MediaSegment{{URL: header, IsHeader: true, Skip: SkipFetchDrop}}, segments...)
	}

	return Playlist{
		SequenceBase:     sq,
		TargetDurationMS: targetSecs * 1000,
		Segments:         segments,
		VariantStreams:   variants,
	}
}

// BestVariant returns the variant with the highest BANDWIDTH, matching the
// refresh loop's "keep highest BANDWIDTH" master-playlist resolution.
func BestVariant(variants []VariantStream) (VariantStream, bool) {
	if len(variants) == 0 {
		return VariantStream{}, false
	}
	best := variants[0]
	for _, v := range variants[1:] {
		if v.Bandwidth > best.Bandwidth {
			best = v
		}
	}
	return best, true
}

// entry pairs a queued segment with whether it has been delivered downstream.
type entry struct {
	seg       MediaSegment
	delivered bool
}

// Stream is C5's segment sequencer: UpdateSequence folds a freshly parsed
// playlist into the FIFO and forwards newly-seen segments to Clips; a
// separate refresh-trigger ticker signals RefreshSignal on a cadence that
// self-adjusts when the upstream playlist stalls. Ported from
// streamer/segment.rs's SegmentStream.
type Stream struct {
	sequence    uint64
	hasSequence bool

	RefreshItvlMS uint64

	entries []entry

	// Clips is the bounded segment queue (capacity 100, spec §5).
	Clips chan MediaSegment
	// RefreshSignal is the bounded refresh-trigger queue (capacity 10, spec §5).
	RefreshSignal chan struct{}
}

// NewStream returns a Stream with a 1000ms starting refresh interval and the
// queue capacities spec §5 mandates.
func NewStream() *Stream {
	return &Stream{
		RefreshItvlMS: 1000,
		Clips:         make(chan MediaSegment, 100),
		RefreshSignal: make(chan struct{}, 10),
	}
}

// UpdateSequence merges segs (numbered starting at seqBase) into the FIFO,
// trims it to the last 15 entries, and forwards every not-yet-delivered
// entry to Clips. On the very first update, every segment except the last
// is marked SkipFetchDrop (the header, already SkipFetchDrop, is
// unaffected) so stale backlog is downloaded-but-dropped rather than
// replayed, while the most recent segment anchors playback immediately.
func (s *Stream) UpdateSequence(ctx context.Context, seqBase uint64, segs []MediaSegment, itvlMS uint64) error {
	s.RefreshItvlMS = itvlMS
	firstUpdate := len(s.entries) == 0

	for i, seg := range segs {
		n := seqBase + uint64(i)
		if !s.hasSequence || s.sequence < n {
			s.hasSequence = true
			s.sequence = n
			seg.SequenceNumber = n
			s.entries = append(s.entries, entry{seg: seg})
		}
	}

	for len(s.entries) > 15 {
		s.entries = s.entries[1:]
	}

	last := len(s.entries) - 1
	for i := range s.entries {
		if s.entries[i].delivered {
			continue
		}
		clip := s.entries[i].seg
		s.entries[i].delivered = true

		if firstUpdate && i < last && clip.Skip == SkipEmit {
			clip.Skip = SkipFetchDrop
		}

		select {
		case s.Clips <- clip:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}

// RunRefreshLoop ticks every RefreshItvlMS, signaling RefreshSignal each
// time; if the sequence hasn't advanced since the previous tick it sleeps
// 500ms before resuming, per spec §4.5's stalled-source handling. It runs
// until ctx is canceled.
func (s *Stream) RunRefreshLoop(ctx context.Context) error {
	lastSeq := uint64(0)
	for {
		if err := sleepCtx(ctx, time.Duration(s.RefreshItvlMS)*time.Millisecond); err != nil {
			return err
		}

		select {
		case s.RefreshSignal <- struct{}{}:
		case <-ctx.Done():
			return ctx.Err()
		}

		cur := s.sequence
		if cur == lastSeq {
			if err := sleepCtx(ctx, 500*time.Millisecond); err != nil {
				return err
			}
		}
		lastSeq = cur
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
