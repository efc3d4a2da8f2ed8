package lane

import "testing"

func TestFourteenLanesFillThenSpacer(t *testing.T) {
	s := NewScheduler(14, 40, 8000, 1.0)

	for i := 0; i < 14; i++ {
		lane, ok := s.Avail(0, 100)
		if !ok {
			t.Fatalf("lane %d: expected a free lane, got none", i)
		}
		if lane != i {
			t.Fatalf("expected lanes to fill in order, got lane %d on iteration %d", lane, i)
		}
	}

	if _, ok := s.Avail(0, 100); ok {
		t.Fatal("expected the 15th event at t=0 to find no free lane")
	}
}

func TestLaneFreesAfterCrawlCompletes(t *testing.T) {
	s := NewScheduler(1, 40, 8000, 1.0)
	if _, ok := s.Avail(0, 100); !ok {
		t.Fatal("expected lane 0 to be free initially")
	}
	if _, ok := s.Avail(100, 100); ok {
		t.Fatal("expected lane 0 to still be occupied shortly after")
	}
	if _, ok := s.Avail(9000, 100); !ok {
		t.Fatal("expected lane 0 to be free again once the line has crawled off screen")
	}
}

func TestDisplayLengthASCIIVsNonASCII(t *testing.T) {
	s := NewScheduler(14, 40, 8000, 1.0)
	if got := s.DisplayLength("hi"); got != 20 {
		t.Fatalf("DisplayLength(\"hi\") = %d, want 20", got)
	}
	if got := s.DisplayLength("你好"); got != 60 {
		t.Fatalf("DisplayLength(\"你好\") = %d, want 60", got)
	}
}

func TestChannelNumForHeight(t *testing.T) {
	if got := ChannelNumForHeight(40); got != 14 {
		t.Fatalf("ChannelNumForHeight(40) = %d, want 14", got)
	}
}
