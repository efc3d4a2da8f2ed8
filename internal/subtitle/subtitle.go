// Package subtitle implements C3, the subtitle cluster encoder. It serializes
// one lane-scheduled chat event (or spacer) at a time into the Matroska-style
// cluster framing described in spec §4.4, ported byte-for-byte from
// original_source/src/danmaku/mkv_header.rs: a Cluster element id and an
// 8-byte unknown-size-style length, a Timestamp element, and one BlockGroup
// per subtitle line containing a Block and a BlockDuration.
package subtitle

import (
	"encoding/binary"
)

// Matroska/EBML element ids used by the framing. Kept as named constants
// rather than inlined so the byte layout below reads like the spec's prose.
const (
	clusterID         uint32 = 0x1f43b675
	timestampID       byte   = 0xe7
	timestampSizeByte byte   = 0x88 // EBML 8-byte-vint-width marker
	blockGroupID      byte   = 0xa0
	blockID           byte   = 0xa1
	blockDurationID   byte   = 0x9b
	blockDurationSize byte   = 0x84 // EBML 4-byte-vint-width marker
)

// emptyPayload is the fixed spacer line; spacers carry no motion and exist
// purely to keep the subtitle track from going idle (spec §4.4).
const emptyPayload = "dmlive-empty"

// sizeVint encodes n as an EBML element size of the given byte width, with
// the width's length-marker bit set in the top nibble of the first byte —
// e.g. a 4-byte vint of width 4 sets bit 0x10 in its top byte. This mirrors
// the original's literal `(n as u32) | 0x1000_0000` / `0x0100_0000_0000_0000`
// constants, generalized to either width.
func sizeVint32(n uint32) uint32 { return n | 0x1000_0000 }
func sizeVint64(n uint64) uint64 { return n | 0x0100_0000_0000_0000 }

// Cluster accumulates BlockGroup-encoded subtitle lines sharing one cluster
// timestamp, then serializes itself to bytes for the subtitle socket. In
// this pipeline a Cluster is reset and re-emitted once per chat event: each
// event gets its own cluster so it can be written to the wire as soon as
// C4 produces it, rather than batched.
type Cluster struct {
	timestampMS uint64
	blocks      []block
}

type block struct {
	trackNumber  byte
	relativeTime uint16
	content      []byte
	durationMS   uint32
}

// NewCluster creates an empty cluster anchored at timestampMS.
func NewCluster(timestampMS uint64) *Cluster {
	return &Cluster{timestampMS: timestampMS}
}

// AddLine appends one subtitle block to the cluster. atMS is the absolute
// elapsed-ms timestamp of the event; it is encoded relative to the
// cluster's own timestamp, saturating at zero if somehow earlier.
func (c *Cluster) AddLine(atMS uint64, trackNumber byte, payload []byte, durationMS uint32) {
	rel := uint64(0)
	if atMS > c.timestampMS {
		rel = atMS - c.timestampMS
	}
	if rel > 0xffff {
		rel = 0xffff
	}
	c.blocks = append(c.blocks, block{
		trackNumber:  0x80 | trackNumber,
		relativeTime: uint16(rel),
		content:      payload,
		durationMS:   durationMS,
	})
}

// AddSpacer appends the fixed-payload, 1ms-duration keep-alive block.
func (c *Cluster) AddSpacer(atMS uint64, trackNumber byte) {
	c.AddLine(atMS, trackNumber, []byte(emptyPayload), 1)
}

// Bytes serializes the cluster: cluster id, cluster size, timestamp element,
// then each block group in append order.
func (c *Cluster) Bytes() []byte {
	baseSize := uint64(10) // timestamp element: id(1) + size(1) + value(8)
	for _, b := range c.blocks {
		baseSize += uint64(len(b.content)) + 20
	}

	buf := make([]byte, 0, 32+int(baseSize))
	buf = appendU32(buf, clusterID)
	buf = appendU64(buf, sizeVint64(baseSize))
	buf = append(buf, timestampID, timestampSizeByte)
	buf = appendU64(buf, c.timestampMS)

	for _, b := range c.blocks {
		groupSize := sizeVint32(uint32(len(b.content) + 15))
		blockSize := sizeVint32(uint32(len(b.content) + 4))
		buf = append(buf, blockGroupID)
		buf = appendU32(buf, groupSize)
		buf = append(buf, blockID)
		buf = appendU32(buf, blockSize)
		buf = append(buf, b.trackNumber)
		buf = appendU16(buf, b.relativeTime)
		buf = append(buf, 0x00) // block header flags
		buf = append(buf, b.content...)
		buf = append(buf, blockDurationID, blockDurationSize)
		buf = appendU32(buf, b.durationMS)
	}
	return buf
}

func appendU16(b []byte, v uint16) []byte {
	var tmp [2]byte
	binary.BigEndian.PutUint16(tmp[:], v)
	return append(b, tmp[:]...)
}

func appendU32(b []byte, v uint32) []byte {
	var tmp [4]byte
	binary.BigEndian.PutUint32(tmp[:], v)
	return append(b, tmp[:]...)
}

func appendU64(b []byte, v uint64) []byte {
	var tmp [8]byte
	binary.BigEndian.PutUint64(tmp[:], v)
	return append(b, tmp[:]...)
}

// assHeader is the CodecPrivate payload for the S_TEXT/ASS track: a
// minimal SSA script with the single "Default" style overlay.Encoder's
// formatted event lines reference.
const assHeader = "[Script Info]\n" +
	"ScriptType: v4.00+\n" +
	"PlayResX: 1920\n" +
	"PlayResY: 1080\n" +
	"\n" +
	"[V4+ Styles]\n" +
	"Format: Name, Fontname, Fontsize, PrimaryColour, SecondaryColour, OutlineColour, BackColour, Bold, Italic, Underline, StrikeOut, ScaleX, ScaleY, Spacing, Angle, BorderStyle, Outline, Shadow, Alignment, MarginL, MarginR, MarginV, Encoding\n" +
	"Style: Default,Arial,40,&H00FFFFFF,&H000000FF,&H00000000,&H00000000,0,0,0,0,100,100,0,0,1,1,0,7,0,0,0,1\n" +
	"\n" +
	"[Events]\n" +
	"Format: ReadOrder, Layer, Style, Name, MarginL, MarginR, MarginV, Effect, Text\n"

// ebmlVint, ebmlElem, and ebmlUint are a minimal EBML element writer used
// only by InitSegment; Cluster.Bytes above encodes its own fixed field
// layout directly rather than going through a general element writer,
// matching mkv_header.rs's equally direct approach.
func ebmlVint(v uint64) []byte {
	switch {
	case v < 0x7F:
		return []byte{byte(0x80 | v)}
	case v < 0x3FFF:
		return []byte{byte(0x40 | (v >> 8)), byte(v)}
	case v < 0x1FFFFF:
		return []byte{byte(0x20 | (v >> 16)), byte(v >> 8), byte(v)}
	default:
		return []byte{byte(0x10 | (v >> 24)), byte(v >> 16), byte(v >> 8), byte(v)}
	}
}

var ebmlUnknownSize = []byte{0x01, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF}

func ebmlElem(id, data []byte) []byte {
	b := make([]byte, 0, len(id)+8+len(data))
	b = append(b, id...)
	b = append(b, ebmlVint(uint64(len(data)))...)
	return append(b, data...)
}

func ebmlUint(v uint64) []byte {
	if v == 0 {
		return []byte{0}
	}
	n := 0
	for x := v; x > 0; x >>= 8 {
		n++
	}
	b := make([]byte, n)
	for i := n - 1; i >= 0; i-- {
		b[i] = byte(v)
		v >>= 8
	}
	return b
}

// InitSegment builds the one-time Matroska initialization byte-string spec
// §6 calls for on the subtitle socket before any Cluster: an EBML header
// plus a Segment (unknown size, for live streaming) containing Info and a
// single S_TEXT/ASS Tracks entry. The upstream original vendors this as a
// precomputed header.mkv binary blob (mkv_header.rs's include_bytes!),
// which the filtered source pack does not carry; it is rebuilt here
// programmatically following the same EBML element layout demonstrated in
// the pack's other webm/EBML muxer (internal call-recording's
// webmInitSegment).
func InitSegment() []byte {
	var out []byte

	ebmlBody := concatBytes(
		ebmlElem([]byte{0x42, 0x86}, ebmlUint(1)),       // EBMLVersion
		ebmlElem([]byte{0x42, 0xF7}, ebmlUint(1)),       // EBMLReadVersion
		ebmlElem([]byte{0x42, 0xF2}, ebmlUint(4)),       // EBMLMaxIDLength
		ebmlElem([]byte{0x42, 0xF3}, ebmlUint(8)),       // EBMLMaxSizeLength
		ebmlElem([]byte{0x42, 0x82}, []byte("matroska")), // DocType
		ebmlElem([]byte{0x42, 0x87}, ebmlUint(4)),       // DocTypeVersion
		ebmlElem([]byte{0x42, 0x85}, ebmlUint(2)),       // DocTypeReadVersion
	)
	out = append(out, ebmlElem([]byte{0x1A, 0x45, 0xDF, 0xA3}, ebmlBody)...) // EBML

	out = append(out, []byte{0x18, 0x53, 0x80, 0x67}...) // Segment
	out = append(out, ebmlUnknownSize...)

	infoBody := concatBytes(
		ebmlElem([]byte{0x2A, 0xD7, 0xB1}, ebmlUint(1_000_000)), // TimestampScale (ns/ms tick)
		ebmlElem([]byte{0x4D, 0x80}, []byte("dmlive")),          // MuxingApp
		ebmlElem([]byte{0x57, 0x41}, []byte("dmlive")),          // WritingApp
	)
	out = append(out, ebmlElem([]byte{0x15, 0x49, 0xA9, 0x66}, infoBody)...) // Info

	trackEntry := concatBytes(
		ebmlElem([]byte{0xD7}, ebmlUint(uint64(subtitleTrackNumber))),       // TrackNumber
		ebmlElem([]byte{0x73, 0xC5}, ebmlUint(uint64(subtitleTrackNumber))), // TrackUID
		ebmlElem([]byte{0x83}, ebmlUint(17)),                                // TrackType: subtitle
		ebmlElem([]byte{0x86}, []byte("S_TEXT/ASS")),                        // CodecID
		ebmlElem([]byte{0x63, 0xA2}, []byte(assHeader)),                     // CodecPrivate
	)
	tracksBody := ebmlElem([]byte{0xAE}, trackEntry) // TrackEntry
	out = append(out, ebmlElem([]byte{0x16, 0x54, 0xAE, 0x6B}, tracksBody)...) // Tracks

	return out
}

// subtitleTrackNumber matches the track-number bit AddLine/AddSpacer OR
// into the Block's track byte (0x80 | trackNumber), i.e. overlay.Encoder's
// subtitleTrack constant.
const subtitleTrackNumber = 1

func concatBytes(parts ...[]byte) []byte {
	var n int
	for _, p := range parts {
		n += len(p)
	}
	b := make([]byte, 0, n)
	for _, p := range parts {
		b = append(b, p...)
	}
	return b
}
