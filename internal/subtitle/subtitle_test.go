package subtitle

import (
	"encoding/binary"
	"testing"
)

func TestClusterHeaderLayout(t *testing.T) {
	c := NewCluster(1234)
	raw := c.Bytes()

	if len(raw) < 22 {
		t.Fatalf("cluster header too short: %d bytes", len(raw))
	}
	if got := binary.BigEndian.Uint32(raw[0:4]); got != clusterID {
		t.Fatalf("cluster id = %#x, want %#x", got, clusterID)
	}
	if raw[12] != timestampID || raw[13] != timestampSizeByte {
		t.Fatalf("timestamp element header = %#x %#x", raw[12], raw[13])
	}
	if got := binary.BigEndian.Uint64(raw[14:22]); got != 1234 {
		t.Fatalf("timestamp value = %d, want 1234", got)
	}
}

func TestAddLineAppendsBlockGroup(t *testing.T) {
	c := NewCluster(0)
	c.AddLine(0, 1, []byte("hello"), 8000)
	raw := c.Bytes()

	if raw[22] != blockGroupID {
		t.Fatalf("expected block group id at offset 22, got %#x", raw[22])
	}
	if !containsSubslice(raw, []byte("hello")) {
		t.Fatal("expected payload bytes to appear in the serialized cluster")
	}
}

func TestSpacerPayloadEndsWithFixedMarker(t *testing.T) {
	c := NewCluster(0)
	c.AddSpacer(0, 1)
	if !containsSubslice(c.Bytes(), []byte(emptyPayload)) {
		t.Fatal("expected spacer payload to contain dmlive-empty")
	}
}

func containsSubslice(haystack, needle []byte) bool {
	for i := 0; i+len(needle) <= len(haystack); i++ {
		if string(haystack[i:i+len(needle)]) == string(needle) {
			return true
		}
	}
	return false
}
