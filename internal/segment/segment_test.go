package segment

import (
	"context"
	"testing"
)

func drain(t *testing.T, ch <-chan MediaSegment, n int) []MediaSegment {
	t.Helper()
	out := make([]MediaSegment, 0, n)
	for i := 0; i < n; i++ {
		select {
		case seg := <-ch:
			out = append(out, seg)
		default:
			t.Fatalf("expected %d segments, got %d", n, len(out))
		}
	}
	return out
}

func TestUpdateSequenceAssignsSequentialNumbers(t *testing.T) {
	s := NewStream()
	ctx := context.Background()
	segs := []MediaSegment{{URL: "A"}, {URL: "B"}, {URL: "C"}}
	if err := s.UpdateSequence(ctx, 10, segs, 5000); err != nil {
		t.Fatal(err)
	}
	if s.sequence != 12 {
		t.Fatalf("sequence = %d, want 12", s.sequence)
	}

	delivered := drain(t, s.Clips, 3)
	for i, d := range delivered {
		if d.SequenceNumber != uint64(10+i) {
			t.Errorf("segment %d sequence = %d, want %d", i, d.SequenceNumber, 10+i)
		}
	}

	if err := s.UpdateSequence(ctx, 10, segs, 5000); err != nil {
		t.Fatal(err)
	}
	select {
	case seg := <-s.Clips:
		t.Fatalf("expected no new delivery on duplicate update, got %+v", seg)
	default:
	}
}

func TestFirstUpdateMarksAllButLastFetchAndDrop(t *testing.T) {
	s := NewStream()
	ctx := context.Background()
	first := []MediaSegment{{URL: "seg5.ts"}, {URL: "seg6.ts"}}
	if err := s.UpdateSequence(ctx, 5, first, 2000); err != nil {
		t.Fatal(err)
	}
	delivered := drain(t, s.Clips, 2)
	if delivered[0].URL != "seg5.ts" || delivered[0].Skip != SkipFetchDrop {
		t.Errorf("seg5.ts = %+v, want SkipFetchDrop", delivered[0])
	}
	if delivered[1].URL != "seg6.ts" || delivered[1].Skip != SkipEmit {
		t.Errorf("seg6.ts = %+v, want SkipEmit", delivered[1])
	}

	second := []MediaSegment{{URL: "seg5.ts"}, {URL: "seg6.ts"}, {URL: "seg7.ts"}}
	if err := s.UpdateSequence(ctx, 5, second, 2000); err != nil {
		t.Fatal(err)
	}
	delivered2 := drain(t, s.Clips, 1)
	if delivered2[0].URL != "seg7.ts" || delivered2[0].Skip != SkipEmit {
		t.Errorf("seg7.ts = %+v, want SkipEmit", delivered2[0])
	}
}

func TestParsePlaylistMediaPlaylist(t *testing.T) {
	text := "#EXT-X-MEDIA-SEQUENCE:5\n#EXTINF:2\nseg5.ts\n#EXTINF:2,Amazon\nseg6.ts\n#EXT-X-TARGETDURATION:2\n"
	pl := ParsePlaylist(text)
	if pl.SequenceBase != 5 {
		t.Errorf("SequenceBase = %d, want 5", pl.SequenceBase)
	}
	if pl.TargetDurationMS != 2000 {
		t.Errorf("TargetDurationMS = %d, want 2000", pl.TargetDurationMS)
	}
	if len(pl.Segments) != 2 {
		t.Fatalf("len(Segments) = %d, want 2", len(pl.Segments))
	}
	if pl.Segments[0].Skip != SkipEmit {
		t.Errorf("seg5 skip = %v, want SkipEmit", pl.Segments[0].Skip)
	}
	if pl.Segments[1].Skip != SkipFetchDrop {
		t.Errorf("seg6 skip (Amazon marker) = %v, want SkipFetchDrop", pl.Segments[1].Skip)
	}
}

func TestParsePlaylistMasterPlaylistPicksHighestBandwidth(t *testing.T) {
	text := "#EXT-X-STREAM-INF:BANDWIDTH=500\nlow.m3u8\n#EXT-X-STREAM-INF:BANDWIDTH=2000\nhigh.m3u8\n"
	pl := ParsePlaylist(text)
	best, ok := BestVariant(pl.VariantStreams)
	if !ok {
		t.Fatal("expected a variant")
	}
	if best.URL != "high.m3u8" || best.Bandwidth != 2000 {
		t.Errorf("best = %+v, want high.m3u8/2000", best)
	}
}

func TestParsePlaylistExtXMapPrependsHeader(t *testing.T) {
	text := "#EXT-X-MAP:URI=\"init.mp4\"\n#EXT-X-MEDIA-SEQUENCE:0\n#EXTINF:2\nseg0.ts\n"
	pl := ParsePlaylist(text)
	if len(pl.Segments) != 2 {
		t.Fatalf("len(Segments) = %d, want 2", len(pl.Segments))
	}
	if !pl.Segments[0].IsHeader || pl.Segments[0].URL != "init.mp4" || pl.Segments[0].Skip != SkipFetchDrop {
		t.Errorf("header segment = %+v", pl.Segments[0])
	}
}
