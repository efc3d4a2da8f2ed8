// Package chat implements C1, the per-platform live-chat client set.
// Each variant satisfies Client: connect, register, heartbeat, decode
// frames, and publish chatevent.Events to a sink until the connection
// closes or an unrecoverable protocol error occurs. internal/supervisor
// selects a variant by the room URL's host and owns the retry/reconnect
// loop described in spec §4.1 ("transient network errors trigger
// supervisor-level reconnect after a 1-second cooldown").
package chat

import (
	"context"
	"math/rand"
	"time"

	"dmlive/internal/chatevent"
)

// Client is the common contract every platform variant implements.
type Client interface {
	// Run connects, registers, and streams events to sink until the room
	// closes or an unrecoverable error occurs. It blocks until ctx is
	// canceled or a terminal error is hit.
	Run(ctx context.Context, roomURL string, sink chatevent.Sink) error
}

// userAgent is shared by every HTTP/WS client, matching the original's
// gen_ua() helper: a fixed desktop Firefox string, reused everywhere rather
// than regenerated per request (the original's randomized-Chrome variant is
// commented out in favor of this literal).
const userAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64; rv:122.0) Gecko/20100101 Firefox/122.0"

const heartbeatInterval = 20 * time.Second

// randomUID mimics the original's 1e6..2e6 synthetic uid used to register
// with BroadcastLive type A.
func randomUID() uint64 {
	return 1_000_000 + uint64(rand.Int63n(1_000_000))
}

// randomAnonNick mimics justinfanNNNNN, the IRC-over-WSS anonymous nick.
func randomAnonNick() string {
	n := 10000 + rand.Intn(80000)
	return "justinfan" + itoa(n)
}

func itoa(n int) string {
	if n == 0 {
		return "0"
	}
	var buf [20]byte
	i := len(buf)
	for n > 0 {
		i--
		buf[i] = byte('0' + n%10)
		n /= 10
	}
	return string(buf[i:])
}

// sleepOrDone sleeps for d or returns early if ctx is canceled, reporting
// which happened.
func sleepOrDone(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
