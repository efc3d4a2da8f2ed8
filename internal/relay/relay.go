// Package relay implements C6, the media-segment relay drivers: FLV (single
// chunked GET), HLS (driven by internal/segment's queue), and DASH (two
// independent sequenced-URL pullers). Each driver forwards bytes to an
// internal/ipc socket, runs a watchdog that aborts on a stalled upstream,
// and signals the supervisor exactly once when the first real byte is
// written. Ported from original_source/src/streamer/{flv,hls,youtube}.rs.
package relay

import (
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"sync/atomic"
	"time"

	"dmlive/internal/perr"
	"dmlive/internal/segment"
)

// Ready is signaled exactly once, the moment the driver writes its first
// non-skipped byte, matching spec §4.6's "stream ready" handoff to the
// supervisor.
type Ready chan<- struct{}

const userAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64; rv:122.0) Gecko/20100101 Firefox/122.0"

// FLV implements the single-chunked-GET relay driver. A 1-s watchdog tick
// aborts the pipeline after flvWatchdogToleranceSec consecutive ticks with
// no received bytes.
type FLV struct {
	URL     string
	Referer string
	Cookie  string // set only for platforms that require session auth
}

const flvWatchdogToleranceSec = 10

// Run streams the FLV body to sock until ctx is canceled, the watchdog
// trips, or the upstream connection closes.
func (f *FLV) Run(ctx context.Context, sock net.Conn, ready Ready) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, f.URL, nil)
	if err != nil {
		return perr.Wrap(perr.KindFatal, "flv.request", err)
	}
	req.Header.Set("User-Agent", userAgent)
	if f.Referer != "" {
		req.Header.Set("Referer", f.Referer)
	}
	if f.Cookie != "" {
		req.Header.Set("Cookie", f.Cookie)
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return perr.Wrap(perr.KindTransient, "flv.get", err)
	}
	defer resp.Body.Close()

	var sentReady atomic.Bool
	var sawByte atomic.Bool

	errCh := make(chan error, 1)
	go func() {
		buf := make([]byte, 32*1024)
		for {
			n, rerr := resp.Body.Read(buf)
			if n > 0 {
				if !sentReady.Swap(true) {
					select {
					case ready <- struct{}{}:
					default:
					}
				}
				sawByte.Store(true)
				if _, werr := sock.Write(buf[:n]); werr != nil {
					errCh <- perr.Wrap(perr.KindTransient, "flv.write", werr)
					return
				}
			}
			if rerr != nil {
				if rerr == io.EOF {
					errCh <- nil
				} else {
					errCh <- perr.Wrap(perr.KindTransient, "flv.read", rerr)
				}
				return
			}
		}
	}()

	t := time.NewTicker(time.Second)
	defer t.Stop()
	stalled := 0
	for {
		select {
		case err := <-errCh:
			return err
		case <-ctx.Done():
			return ctx.Err()
		case <-t.C:
			if sawByte.Swap(false) {
				stalled = 0
			} else {
				stalled++
			}
			if stalled > flvWatchdogToleranceSec {
				return perr.Wrap(perr.KindStalled, "flv.watchdog", fmt.Errorf("connection too slow"))
			}
		}
	}
}

// HLS implements the C5-driven relay driver: for every segment.MediaSegment
// produced by a segment.Stream, GET with keep-alive and forward bytes
// unless the segment's skip policy says otherwise. WatchdogToleranceSec
// defaults to 10s; callers on a platform whose segments are known to
// publish slowly (e.g. the Twitch-equivalent) should set it to 30.
type HLS struct {
	Stream               *segment.Stream
	WatchdogToleranceSec int
	ResolveURL           func(segmentURL string) (string, error)
}

// Run pulls segments from h.Stream and forwards their bytes to sock,
// honoring each segment's Skip classification, until ctx is canceled or
// the watchdog trips.
func (h *HLS) Run(ctx context.Context, sock net.Conn, ready Ready) error {
	tolerance := h.WatchdogToleranceSec
	if tolerance == 0 {
		tolerance = 10
	}

	var headerDone atomic.Bool
	var sentReady atomic.Bool
	var sawByte atomic.Bool

	client := &http.Client{}
	errCh := make(chan error, 1)

	go func() {
		for {
			var clip segment.MediaSegment
			select {
			case clip = <-h.Stream.Clips:
			case <-ctx.Done():
				errCh <- ctx.Err()
				return
			}

			if clip.IsHeader && !headerDone.Swap(true) {
				clip.Skip = segment.SkipEmit
			} else if clip.Skip == segment.SkipIgnore {
				continue
			}

			url := clip.URL
			if h.ResolveURL != nil {
				resolved, err := h.ResolveURL(clip.URL)
				if err != nil {
					continue
				}
				url = resolved
			}

			req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
			if err != nil {
				continue
			}
			req.Header.Set("Connection", "keep-alive")
			req.Header.Set("User-Agent", userAgent)
			resp, err := client.Do(req)
			if err != nil {
				continue
			}

			buf := make([]byte, 32*1024)
			for {
				n, rerr := resp.Body.Read(buf)
				if n > 0 && clip.Skip == segment.SkipEmit {
					if !sentReady.Swap(true) {
						select {
						case ready <- struct{}{}:
						default:
						}
					}
					sawByte.Store(true)
					if _, werr := sock.Write(buf[:n]); werr != nil {
						resp.Body.Close()
						errCh <- perr.Wrap(perr.KindTransient, "hls.write", werr)
						return
					}
				}
				if rerr != nil {
					break
				}
			}
			resp.Body.Close()
		}
	}()

	t := time.NewTicker(time.Second)
	defer t.Stop()
	stalled := 0
	for {
		select {
		case err := <-errCh:
			return err
		case <-ctx.Done():
			return ctx.Err()
		case <-t.C:
			if sawByte.Swap(false) {
				stalled = 0
			} else {
				stalled++
			}
			if stalled > tolerance {
				return perr.Wrap(perr.KindStalled, "hls.watchdog", fmt.Errorf("connection too slow"))
			}
		}
	}
}

// DASH implements one leg (video or audio) of the two-independent-driver
// DASH relay: a URL-templated `sq/<n>` puller with an adaptive interval
// that rushes when behind the head sequence and backs off when ahead.
type DASH struct {
	// BaseURL is the DASH representation URL; requests are BaseURL+"sq/<n>".
	BaseURL string
	// StartSequence is the first segment number to request.
	StartSequence uint64
	// AheadSleepMS is the sleep applied when this leg is ahead of the head
	// sequence (200ms video, 100ms audio per spec §4.6).
	AheadSleepMS int
}

// headSequence reads the upstream's X-Head-Seqnum response header.
func headSequence(resp *http.Response) (uint64, error) {
	v := resp.Header.Get("X-Head-Seqnum")
	if v == "" {
		return 0, fmt.Errorf("no X-Head-Seqnum header")
	}
	var n uint64
	if _, err := fmt.Sscanf(v, "%d", &n); err != nil {
		return 0, err
	}
	return n, nil
}

// Run pulls sequential segments into sock, signaling ready on the first
// successfully forwarded segment, until ctx is canceled or a non-200
// response ends the leg.
func (d *DASH) Run(ctx context.Context, sock net.Conn, ready Ready) error {
	sq := d.StartSequence
	intervalMS := int64(1000)
	sentReady := false

	client := &http.Client{Timeout: 15 * time.Second}
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		start := time.Now()
		url := fmt.Sprintf("%ssq/%d", d.BaseURL, sq)
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return perr.Wrap(perr.KindFatal, "dash.request", err)
		}
		req.Header.Set("Connection", "keep-alive")
		req.Header.Set("Referer", "https://www.youtube.com/")
		req.Header.Set("User-Agent", userAgent)

		resp, err := client.Do(req)
		if err != nil {
			return perr.Wrap(perr.KindTransient, "dash.get", err)
		}

		head, herr := headSequence(resp)
		if herr != nil {
			resp.Body.Close()
			return perr.Wrap(perr.KindDecode, "dash.head_sequence", herr)
		}
		if resp.StatusCode != http.StatusOK {
			resp.Body.Close()
			return perr.Wrap(perr.KindTransient, "dash.status", fmt.Errorf("status %d", resp.StatusCode))
		}

		gap := int64(head) - int64(sq)
		switch {
		case gap > 1:
			intervalMS -= 100
			if intervalMS < 0 {
				intervalMS = 0
			}
		case gap < 1:
			resp.Body.Close()
			if err := sleepCtx(ctx, time.Duration(d.AheadSleepMS)*time.Millisecond); err != nil {
				return err
			}
			intervalMS += 100
			continue
		}

		if !sentReady {
			sentReady = true
			select {
			case ready <- struct{}{}:
			default:
			}
		}
		if _, err := io.Copy(sock, resp.Body); err != nil {
			resp.Body.Close()
			return perr.Wrap(perr.KindTransient, "dash.write", err)
		}
		resp.Body.Close()

		if gap <= 1 {
			elapsed := time.Since(start).Milliseconds()
			if elapsed < intervalMS {
				if err := sleepCtx(ctx, time.Duration(intervalMS-elapsed)*time.Millisecond); err != nil {
					return err
				}
			}
		}
		sq++
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
