package dedup

import (
	"testing"
	"time"
)

func TestAllowFirstEventAlways(t *testing.T) {
	s := New()
	if !s.Allow("hello", time.Now()) {
		t.Fatal("first occurrence of a text must be allowed")
	}
}

func TestDenies21stWithin3Seconds(t *testing.T) {
	s := New()
	base := time.Now()

	var lastDenied int = -1
	for i := 0; i < 21; i++ {
		now := base.Add(time.Duration(i) * 100 * time.Millisecond)
		if !s.Allow("spam", now) && lastDenied == -1 {
			lastDenied = i
		}
	}

	if lastDenied != 20 {
		t.Fatalf("expected the 21st submission (index 20) to be denied, got index %d", lastDenied)
	}
}

func TestDecayAfterGapAllowsAgain(t *testing.T) {
	s := New()
	base := time.Now()
	for i := 0; i < 25; i++ {
		s.Allow("spam", base.Add(time.Duration(i)*100*time.Millisecond))
	}
	// A gap over 3s decays the count by one rather than denying outright.
	if !s.Allow("spam", base.Add(10*time.Second)) {
		t.Fatal("expected allow after decay window elapses")
	}
}

func TestEvictionDropsStaleEntries(t *testing.T) {
	s := New()
	base := time.Now()
	for i := 0; i < 31; i++ {
		text := string(rune('a' + i))
		s.Allow(text, base.Add(time.Duration(i)*time.Millisecond))
	}
	if s.Len() >= 31 {
		t.Fatalf("expected eviction to have trimmed the map, got len=%d", s.Len())
	}
}
