// Package supervisor implements C9: the Running/Restarting/Exiting state
// machine that owns every other component's lifetime for one dmlive
// session. Ported from original_source/src/dmlive.rs's DMLive/DMLMessage/
// DMLState, restructured from that file's recursive async spawns into an
// explicit retry loop plus a control-message pump — the same behavior,
// expressed the way idiomatic Go models a supervised worker rather than by
// mirroring Rust's task-spawning idiom.
package supervisor

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"dmlive/internal/chat"
	"dmlive/internal/chatevent"
	"dmlive/internal/config"
	"dmlive/internal/dedup"
	"dmlive/internal/ipc"
	"dmlive/internal/mplayer"
	"dmlive/internal/muxer"
	"dmlive/internal/overlay"
	"dmlive/internal/perr"
	"dmlive/internal/relay"
	"dmlive/internal/resolver"
	"dmlive/internal/segment"
	"dmlive/internal/subtitle"
)

// Kind discriminates the control-channel messages DMLMessage enumerated.
type Kind int

const (
	// KindStreamStarted reports the relay driver's first forwarded byte;
	// it starts C4's wall-clock baseline for this incarnation.
	KindStreamStarted Kind = iota
	// KindRequestRestart tears the current incarnation down and resolves
	// again, without killing the player (spec §4.9).
	KindRequestRestart
	// KindRequestExit closes the IPC fabric and ends Run.
	KindRequestExit
	// KindSetFontSize carries a new FontScale, applied to the next event
	// (design note §9: "runtime knob changes ... produce a new snapshot
	// the next event uses").
	KindSetFontSize
	// KindSetFontAlpha carries a new FontAlpha, same contract as above.
	KindSetFontAlpha
	// KindSetShowNick has no effect: DMLMessage::SetShowNick is a todo!()
	// in the original and no nick-display toggle exists in this design.
	KindSetShowNick
)

// Message is the control-channel entry, matching DMLMessage's shape
// collapsed into one struct (Go lacks sum-type payloads).
type Message struct {
	Kind  Kind
	Value float64
}

// Supervisor drives one dmlive session: it owns the mplayer process for
// the session's whole lifetime and repeatedly builds, runs, and tears down
// a pipeline incarnation (resolver → ipc → muxer → relay → chat chain)
// until told to exit.
type Supervisor struct {
	eval resolver.ScriptEvaluator

	msgs      chan Message
	restartCh chan struct{}
	exitCh    chan struct{}

	mu      sync.Mutex
	snapCur config.Snapshot
	exiting bool
}

// New builds a Supervisor for one CLI invocation's snapshot. Eval defaults
// to mplayer's sibling collaborator, resolver.NodeEvaluator, used only by
// the Douyu resolver's embedded-script-evaluation path.
func New(snap config.Snapshot) *Supervisor {
	return &Supervisor{
		eval:      resolver.NodeEvaluator{},
		msgs:      make(chan Message, 32),
		restartCh: make(chan struct{}, 1),
		exitCh:    make(chan struct{}),
		snapCur:   snap,
	}
}

// Post enqueues a control-channel message; callers (mplayer's feedback
// parser, an external IPC/API layer not built here) call this instead of
// reaching into Supervisor's internals.
func (s *Supervisor) Post(m Message) {
	select {
	case s.msgs <- m:
	default:
		slog.Warn("supervisor: control channel full, dropping message", "kind", m.Kind)
	}
}

func (s *Supervisor) snapshot() config.Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapCur
}

// Run drives the session until ctx is canceled, the player process exits,
// or a KindRequestExit message is processed. It returns the terminal
// error, or nil on a clean exit.
func (s *Supervisor) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	go s.pump(ctx)

	ctrlMgr, err := ipc.NewPlayerControl()
	if err != nil {
		return perr.Wrap(perr.KindFatal, "supervisor.control_ipc", err)
	}
	defer ctrlMgr.Close()

	playerErrCh := make(chan error, 1)
	go func() {
		playerErrCh <- mplayer.Run(ctx, mplayer.Command{ControlAddr: ctrlMgr.PlayerControlAddr()})
	}()

	conn, err := ctrlMgr.GetPlayerControlSocket(ctx)
	if err != nil {
		cancel()
		<-playerErrCh
		return perr.Wrap(perr.KindFatal, "supervisor.control_socket", err)
	}
	controller := mplayer.NewController(conn)
	feedback := controller.Serve(ctx)
	go s.forwardFeedback(ctx, feedback)

	incDoneCh := make(chan error, 1)
	go func() { incDoneCh <- s.runLoop(ctx, controller) }()

	select {
	case err := <-playerErrCh:
		// Player exit triggers Exit (spec §4.9).
		s.Post(Message{Kind: KindRequestExit})
		cancel()
		<-incDoneCh
		return err
	case err := <-incDoneCh:
		cancel()
		<-playerErrCh
		return err
	}
}

// forwardFeedback translates the player's "dml:"-prefixed feedback lines
// into control-channel Messages. Next/Back/FSUp/FSDown/FPS/Nick carry no
// corresponding core behavior in this design (same as the original, which
// also leaves nick/fps handling as todo!()) and are dropped.
func (s *Supervisor) forwardFeedback(ctx context.Context, feedback <-chan mplayer.Cmd) {
	for {
		select {
		case <-ctx.Done():
			return
		case cmd, ok := <-feedback:
			if !ok {
				return
			}
			if cmd.Restart {
				s.Post(Message{Kind: KindRequestRestart})
			}
			if cmd.FontScale != nil {
				s.Post(Message{Kind: KindSetFontSize, Value: *cmd.FontScale})
			}
			if cmd.FontAlpha != nil {
				s.Post(Message{Kind: KindSetFontAlpha, Value: *cmd.FontAlpha})
			}
		}
	}
}

// pump drains the control channel for the whole session lifetime, applying
// each message's effect: restart/exit signal the run loop, font changes
// mutate the shared snapshot in place for the next event to pick up.
func (s *Supervisor) pump(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case m := <-s.msgs:
			switch m.Kind {
			case KindStreamStarted:
				slog.Info("supervisor: stream started")
			case KindRequestRestart:
				select {
				case s.restartCh <- struct{}{}:
				default:
				}
			case KindRequestExit:
				s.mu.Lock()
				s.exiting = true
				s.mu.Unlock()
				select {
				case <-s.exitCh:
				default:
					close(s.exitCh)
				}
			case KindSetFontSize:
				s.mu.Lock()
				s.snapCur = s.snapCur.WithFontScale(m.Value)
				s.mu.Unlock()
			case KindSetFontAlpha:
				s.mu.Lock()
				s.snapCur = s.snapCur.WithFontAlpha(m.Value)
				s.mu.Unlock()
			case KindSetShowNick:
				// unimplemented, see Kind doc comment.
			}
		}
	}
}

func (s *Supervisor) isExiting() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.exiting
}

// runLoop repeatedly builds and tears down pipeline incarnations, matching
// DMLive::restart's recursive reconnect loop. A restart never kills the
// player (mplayer.Run is owned by Run, not here); only the ipc fabric,
// muxer, relay, and chat chain are rebuilt.
func (s *Supervisor) runLoop(ctx context.Context, controller *mplayer.Controller) error {
	for {
		if s.isExiting() {
			return nil
		}

		incCtx, incCancel := context.WithCancel(ctx)
		incDone := make(chan error, 1)
		go func() { incDone <- s.runIncarnation(incCtx, controller) }()

		select {
		case err := <-incDone:
			incCancel()
			if err != nil {
				slog.Warn("supervisor: incarnation ended", "err", err)
			}
		case <-s.restartCh:
			incCancel()
			<-incDone
		case <-s.exitCh:
			incCancel()
			<-incDone
			return nil
		case <-ctx.Done():
			incCancel()
			<-incDone
			return ctx.Err()
		}

		if s.isExiting() {
			return nil
		}
		if err := sleepCtx(ctx, time.Second); err != nil {
			return nil
		}
	}
}

// runIncarnation drives exactly one "start" transition through to its end:
// resolve, classify, open the ipc fabric, spawn the muxer and relay, hand
// the mux endpoint to the already-running player, and run the C1→C2→C4→C3
// chat chain until something fails or ctx is canceled.
func (s *Supervisor) runIncarnation(ctx context.Context, controller *mplayer.Controller) error {
	snap := s.snapshot()
	incarnationStart := time.Now()

	r, err := resolver.ForURL(snap.RoomURL, s.eval)
	if err != nil {
		return perr.Wrap(perr.KindFatal, "supervisor.resolver_for_url", err)
	}
	res, err := resolver.Resolve(ctx, r, snap.RoomURL, snap.BCookie)
	if err != nil {
		return err
	}
	if len(res.URLs) == 0 {
		return perr.Wrap(perr.KindFatal, "supervisor.resolve", fmt.Errorf("no media urls for %q", snap.RoomURL))
	}

	st := classifyStreamType(res.URLs[0])
	isDash := st == muxer.StreamDASH

	ipcMgr, err := ipc.New(isDash)
	if err != nil {
		return perr.Wrap(perr.KindFatal, "supervisor.ipc_new", err)
	}
	defer ipcMgr.Close()

	errCh := make(chan error, 8)

	go func() {
		errCh <- muxer.Run(ctx, muxerCommand(st, ipcMgr, res.Title))
	}()

	if err := controller.LoadFile(ctx, "tcp://"+ipcMgr.MuxAddr()); err != nil {
		return perr.Wrap(perr.KindIPC, "supervisor.loadfile", err)
	}

	subConn, err := ipcMgr.GetSubtitleSocket(ctx)
	if err != nil {
		return perr.Wrap(perr.KindIPC, "supervisor.subtitle_socket", err)
	}
	defer subConn.Close()
	if _, err := subConn.Write(subtitle.InitSegment()); err != nil {
		return perr.Wrap(perr.KindIPC, "supervisor.subtitle_header", err)
	}

	ready := make(chan struct{}, 1)
	go func() { errCh <- s.runRelay(ctx, ipcMgr, st, res, snap, ready) }()

	baselineMS := make(chan int64, 1)
	go func() {
		select {
		case <-ready:
			s.Post(Message{Kind: KindStreamStarted})
			baselineMS <- time.Since(incarnationStart).Milliseconds()
		case <-ctx.Done():
		}
	}()

	chatClient, err := chat.ForRoomURL(snap.RoomURL)
	if err != nil {
		return perr.Wrap(perr.KindFatal, "supervisor.chat_for_room_url", err)
	}

	events := make(chan chatevent.Event, 4096)
	sink := stampSink{raw: chatevent.ChanSink(events), start: incarnationStart}
	go func() { errCh <- chatClient.Run(ctx, snap.RoomURL, sink) }()

	go func() {
		var base int64
		select {
		case base = <-baselineMS:
		case <-ctx.Done():
			return
		}
		s.consumeChat(ctx, events, subConn, incarnationStart, base)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// muxerCommand builds the ffmpeg invocation's addresses from this
// incarnation's ipc fabric.
func muxerCommand(st muxer.StreamType, ipcMgr *ipc.Manager, title string) muxer.Command {
	cmd := muxer.Command{
		StreamType:  st,
		DanmakuAddr: ipcMgr.SubtitleAddr(),
		MuxAddr:     ipcMgr.MuxAddr(),
		Title:       title,
	}
	if st == muxer.StreamDASH {
		cmd.VideoAddr = ipcMgr.VideoAddr()
		cmd.AudioAddr = ipcMgr.AudioAddr()
	} else {
		cmd.StreamAddr = ipcMgr.StreamAddr()
	}
	return cmd
}

// classifyStreamType picks the relay driver/muxer shape from the
// resolver's first media URL, per spec §4.7/§4.9.
func classifyStreamType(firstURL string) muxer.StreamType {
	switch {
	case strings.Contains(firstURL, ".m3u8"):
		return muxer.StreamHLS
	case strings.Contains(firstURL, ".flv"):
		return muxer.StreamFLV
	default:
		return muxer.StreamDASH
	}
}

// runRelay dispatches to the C6 driver matching st, signaling ready on the
// first forwarded byte of the primary (video, for DASH) leg.
func (s *Supervisor) runRelay(ctx context.Context, ipcMgr *ipc.Manager, st muxer.StreamType, res resolver.Result, snap config.Snapshot, ready chan<- struct{}) error {
	switch st {
	case muxer.StreamFLV:
		sock, err := ipcMgr.GetStreamSocket(ctx)
		if err != nil {
			return perr.Wrap(perr.KindIPC, "supervisor.stream_socket", err)
		}
		defer sock.Close()
		driver := &relay.FLV{URL: res.URLs[0], Referer: snap.RoomURL, Cookie: snap.BCookie}
		return driver.Run(ctx, sock, ready)

	case muxer.StreamDASH:
		if len(res.URLs) < 2 {
			return perr.Wrap(perr.KindFatal, "supervisor.dash_urls", fmt.Errorf("dash classification needs 2 urls, got %d", len(res.URLs)))
		}
		videoSock, err := ipcMgr.GetVideoSocket(ctx)
		if err != nil {
			return perr.Wrap(perr.KindIPC, "supervisor.video_socket", err)
		}
		defer videoSock.Close()
		audioSock, err := ipcMgr.GetAudioSocket(ctx)
		if err != nil {
			return perr.Wrap(perr.KindIPC, "supervisor.audio_socket", err)
		}
		defer audioSock.Close()

		videoDriver := &relay.DASH{BaseURL: res.URLs[0], AheadSleepMS: 200}
		audioDriver := &relay.DASH{BaseURL: res.URLs[1], AheadSleepMS: 100}

		legErrCh := make(chan error, 2)
		go func() { legErrCh <- videoDriver.Run(ctx, videoSock, ready) }()
		go func() { legErrCh <- audioDriver.Run(ctx, audioSock, make(chan struct{}, 1)) }()
		return <-legErrCh

	default: // HLS
		stream := segment.NewStream()
		go func() { _ = stream.RunRefreshLoop(ctx) }()
		go pollPlaylist(ctx, stream, res.URLs[0])

		sock, err := ipcMgr.GetStreamSocket(ctx)
		if err != nil {
			return perr.Wrap(perr.KindIPC, "supervisor.stream_socket", err)
		}
		defer sock.Close()
		driver := &relay.HLS{Stream: stream, WatchdogToleranceSec: 10}
		return driver.Run(ctx, sock, ready)
	}
}

// pollPlaylist fetches res.URLs[0] on every RefreshSignal tick (plus once
// immediately, matching the "first playlist" handling spec §4.5
// describes), resolving a master playlist down to its best-bandwidth
// variant once up front. This HTTP glue lives in the supervisor rather
// than internal/segment because segment.Stream is a pure sequencer with no
// network dependency of its own (see that package's doc comment).
func pollPlaylist(ctx context.Context, stream *segment.Stream, playlistURL string) {
	client := &http.Client{Timeout: 15 * time.Second}
	fetch := func(u string) (segment.Playlist, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
		if err != nil {
			return segment.Playlist{}, err
		}
		resp, err := client.Do(req)
		if err != nil {
			return segment.Playlist{}, err
		}
		defer resp.Body.Close()
		body, err := io.ReadAll(resp.Body)
		if err != nil {
			return segment.Playlist{}, err
		}
		return segment.ParsePlaylist(string(body)), nil
	}

	variantURL := playlistURL
	pl, err := fetch(variantURL)
	if err != nil {
		return
	}
	if v, ok := segment.BestVariant(pl.VariantStreams); ok {
		variantURL = v.URL
	} else if err := stream.UpdateSequence(ctx, pl.SequenceBase, pl.Segments, pl.TargetDurationMS); err != nil {
		return
	}

	for {
		select {
		case <-ctx.Done():
			return
		case <-stream.RefreshSignal:
			pl, err := fetch(variantURL)
			if err != nil {
				continue
			}
			if err := stream.UpdateSequence(ctx, pl.SequenceBase, pl.Segments, pl.TargetDurationMS); err != nil {
				return
			}
		}
	}
}

// stampSink decorates a raw per-client chatevent.Sink with an
// ArrivalTimeMS stamp: no C1 client sets this field itself, so the
// supervisor — the sole owner of a pipeline incarnation's wall-clock
// baseline — stamps it at hand-off time, relative to incarnationStart.
type stampSink struct {
	raw   chatevent.Sink
	start time.Time
}

func (s stampSink) Send(ev chatevent.Event) {
	ev.ArrivalTimeMS = time.Since(s.start).Milliseconds()
	s.raw.Send(ev)
}

// consumeChat is the C2→C4→C3 tail of the chain: dedup, lane-schedule and
// ASS-encode, then write each resulting cluster to the subtitle socket.
// It also emits a 1-second keep-alive spacer whenever real chat has gone
// quiet, matching the original's spacer design (spec §4.4). baselineMS is
// the ms-since-incarnationStart value latched at KindStreamStarted; events
// stamped before it clamp to elapsed=0.
func (s *Supervisor) consumeChat(ctx context.Context, events <-chan chatevent.Event, subConn net.Conn, incarnationStart time.Time, baselineMS int64) {
	suppressor := dedup.New()
	snap := s.snapshot()
	enc := overlay.NewEncoder(snap)

	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	write := func(c *subtitle.Cluster) bool {
		if _, err := subConn.Write(c.Bytes()); err != nil {
			slog.Warn("supervisor: subtitle write failed", "err", err)
			return false
		}
		return true
	}

	refreshEncoder := func() {
		cur := s.snapshot()
		if cur.FontScale != snap.FontScale || cur.FontAlpha != snap.FontAlpha {
			snap = cur
			enc = overlay.NewEncoder(snap)
		}
	}

	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			refreshEncoder()
			if !ev.IsSpacer() && !suppressor.Allow(ev.Text, time.Now()) {
				continue
			}
			elapsed := elapsedFrom(ev.ArrivalTimeMS, baselineMS)
			if !write(enc.Encode(ev, elapsed)) {
				return
			}
		case <-ticker.C:
			refreshEncoder()
			elapsed := elapsedFrom(time.Since(incarnationStart).Milliseconds(), baselineMS)
			if !write(enc.Encode(chatevent.Event{}, elapsed)) {
				return
			}
		}
	}
}

func elapsedFrom(arrivalMS, baselineMS int64) uint64 {
	d := arrivalMS - baselineMS
	if d < 0 {
		d = 0
	}
	return uint64(d)
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
