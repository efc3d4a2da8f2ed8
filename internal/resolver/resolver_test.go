package resolver

import (
	"strings"
	"testing"
	"time"
)

func TestWBIMixinKeyTakesFirst32PermutedBytes(t *testing.T) {
	orig := make([]byte, 64)
	for i := range orig {
		orig[i] = byte('a' + i%26)
	}
	key := wbiMixinKey(orig)
	if len(key) != 32 {
		t.Fatalf("expected 32-byte mixin key, got %d", len(key))
	}
	if key[0] != orig[wbiMixinKeyTab[0]] {
		t.Fatalf("mixin key first byte should follow the permutation table")
	}
}

func TestWBIURLEncodeDropsQuoteCharsAndEscapesOthers(t *testing.T) {
	if got := wbiURLEncode("a b"); got != "a%20b" {
		t.Fatalf("expected percent-encoded space, got %q", got)
	}
	if got := wbiURLEncode("a!b'c(d)e*f"); got != "abcdef" {
		t.Fatalf("expected !'()* dropped, got %q", got)
	}
	if got := wbiURLEncode("a-b_c.d~e"); got != "a-b_c.d~e" {
		t.Fatalf("expected unreserved chars untouched, got %q", got)
	}
}

func TestEncodeWBIAppendsWTSAndWRIDSortedByKey(t *testing.T) {
	now := time.Unix(1700000000, 0)
	q := encodeWBI(map[string]string{"b": "2", "a": "1"}, "imgkey", "subkey", now)
	if !strings.HasPrefix(q, "a=1&b=2&wts=1700000000&w_rid=") {
		t.Fatalf("expected sorted params followed by wts then w_rid, got %q", q)
	}
	if len(q)-len("a=1&b=2&wts=1700000000&w_rid=") != 32 {
		t.Fatalf("expected a 32-hex-char md5 signature, got %q", q)
	}
}

func TestForURLDispatchesByHost(t *testing.T) {
	cases := map[string]string{
		"https://live.bilibili.com/123":      "*resolver.Bilibili",
		"https://www.bilibili.com/video/BV1": "*resolver.Bilibili",
		"https://www.douyu.com/123":          "*resolver.Douyu",
		"https://www.huya.com/123":           "*resolver.Huya",
		"https://www.twitch.tv/someone":      "*resolver.Twitch",
		"https://www.youtube.com/watch?v=1":  "*resolver.YouTube",
		"https://acg.gamer.com.tw/acgDetail.php?s=1": "*resolver.Baha",
	}
	for url, want := range cases {
		r, err := ForURL(url, nil)
		if err != nil {
			t.Fatalf("ForURL(%q): %v", url, err)
		}
		if got := typeName(r); got != want {
			t.Fatalf("ForURL(%q) = %s, want %s", url, got, want)
		}
	}
}

func TestExtractTitleTagStopsAtBody(t *testing.T) {
	body := []byte(`<html><head><title> Some Show Ep.1 </title></head><body>ignored<title>nope</title></body></html>`)
	if got := extractTitleTag(body); got != " Some Show Ep.1 " {
		t.Fatalf("expected title text, got %q", got)
	}
}

func TestForURLRejectsUnknownHost(t *testing.T) {
	if _, err := ForURL("https://example.com/stream", nil); err == nil {
		t.Fatal("expected an error for an unrecognized host")
	}
}

func typeName(r Resolver) string {
	switch r.(type) {
	case *Bilibili:
		return "*resolver.Bilibili"
	case *Douyu:
		return "*resolver.Douyu"
	case *Huya:
		return "*resolver.Huya"
	case *Twitch:
		return "*resolver.Twitch"
	case *YouTube:
		return "*resolver.YouTube"
	case *Baha:
		return "*resolver.Baha"
	default:
		return "unknown"
	}
}
