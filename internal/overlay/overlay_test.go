package overlay

import (
	"strings"
	"testing"

	"dmlive/internal/chatevent"
	"dmlive/internal/config"
)

func snapshot() config.Snapshot {
	return config.Snapshot{
		DanmakuSpeedMS: 8000,
		FontAlpha:      0.5,
		FontScale:      1.0,
	}
}

func TestSpacerEventProducesEmptyPayload(t *testing.T) {
	enc := NewEncoder(snapshot())
	ev := chatevent.Event{Color: 0x000000, Nick: "", Text: "", Position: chatevent.PositionScroll, ArrivalTimeMS: 0}

	cluster := enc.Encode(ev, 0)
	raw := cluster.Bytes()
	if !strings.Contains(string(raw), "dmlive-empty") {
		t.Fatalf("expected spacer cluster payload to end in dmlive-empty, got %q", raw)
	}
}

func TestTopPositionEventRendersCenteredNotSpacer(t *testing.T) {
	enc := NewEncoder(snapshot())
	ev := chatevent.Event{Color: 0xAABBCC, Nick: "sys", Text: "notice", Position: chatevent.PositionTop, ArrivalTimeMS: 0}

	cluster := enc.Encode(ev, 0)
	raw := string(cluster.Bytes())

	if strings.Contains(raw, "dmlive-empty") {
		t.Fatalf("top-position event must not be treated as a spacer, got %q", raw)
	}
	for _, want := range []string{`\an8`, "notice", `\1c&CCBBAA&`} {
		if !strings.Contains(raw, want) {
			t.Fatalf("expected top-position payload to contain %q, got %q", want, raw)
		}
	}
	if strings.Contains(raw, `\move(`) {
		t.Fatalf("top-position event must not scroll, got %q", raw)
	}
}

func TestChatLineEmitsExpectedASSTags(t *testing.T) {
	enc := NewEncoder(snapshot())
	ev := chatevent.Event{Color: 0xFF8800, Nick: "a", Text: "hi", Position: chatevent.PositionScroll, ArrivalTimeMS: 500}

	cluster := enc.Encode(ev, 500)
	raw := string(cluster.Bytes())

	for _, want := range []string{`\1c&0088FF&`, `\alpha7f`, `\fs40`, `\move(1920,0,-20,0)`} {
		if !strings.Contains(raw, want) {
			t.Fatalf("expected payload to contain %q, got %q", want, raw)
		}
	}
}
