// Package ipc implements C8, the local transport fabric connecting the
// chat/subtitle pipeline, the media relay, the external muxer, and the
// external player. Ported from original_source/src/ipcmanager/mod.rs: a
// fixed set of named endpoints, each a one-slot handoff — the listener
// accepts exactly one connection per pipeline incarnation and is then
// discarded; a reconnect requires internal/supervisor to tear down and
// rebuild the whole Manager.
package ipc

import (
	"context"
	"fmt"
	"math/rand"
	"net"
	"os"
	"path/filepath"
	"runtime"

	"github.com/google/uuid"

	"dmlive/internal/perr"
)

// portRangeLo and portRangeHi bound the loopback TCP ports handed to
// video/audio/mux endpoints, per spec §4.8.
const (
	portRangeLo = 20000
	portRangeHi = 30000
)

// useUnixSockets reports whether this platform gets UNIX-domain sockets for
// subtitle/stream/player_control, falling back to loopback TCP everywhere
// (e.g. Windows) per spec §4.8's "platforms supporting UNIX-domain sockets".
func useUnixSockets() bool { return runtime.GOOS != "windows" }

// endpoint is a one-slot handoff: Accept is called exactly once, and its
// result (or error) is delivered to whoever calls Conn.
type endpoint struct {
	listener net.Listener
	addr     string // unix socket path, or host:port for tcp
	connCh   chan net.Conn
	errCh    chan error
}

func (e *endpoint) acceptOnce() {
	conn, err := e.listener.Accept()
	if err != nil {
		e.errCh <- perr.Wrap(perr.KindIPC, "ipc.accept", err)
		return
	}
	e.connCh <- conn
}

// Conn blocks until the endpoint's single connection arrives, ctx is
// canceled, or the accept failed.
func (e *endpoint) Conn(ctx context.Context) (net.Conn, error) {
	select {
	case conn := <-e.connCh:
		return conn, nil
	case err := <-e.errCh:
		return nil, err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func listenUnix(dir, name string) (*endpoint, error) {
	path := filepath.Join(dir, name)
	os.Remove(path)
	l, err := net.Listen("unix", path)
	if err != nil {
		return nil, perr.Wrap(perr.KindFatal, "ipc.listen_unix", err)
	}
	e := &endpoint{listener: l, addr: path, connCh: make(chan net.Conn, 1), errCh: make(chan error, 1)}
	go e.acceptOnce()
	return e, nil
}

// listenTCP binds loopback TCP on a random port in [portRangeLo,
// portRangeHi), retrying up to 100 times on collision before giving up —
// the same bound the original's port scan uses elsewhere in the pack.
func listenTCP() (*endpoint, error) {
	var lastErr error
	for i := 0; i < 100; i++ {
		port := portRangeLo + rand.Intn(portRangeHi-portRangeLo)
		addr := fmt.Sprintf("127.0.0.1:%d", port)
		l, err := net.Listen("tcp", addr)
		if err != nil {
			lastErr = err
			continue
		}
		e := &endpoint{listener: l, addr: l.Addr().String(), connCh: make(chan net.Conn, 1), errCh: make(chan error, 1)}
		go e.acceptOnce()
		return e, nil
	}
	return nil, perr.Wrap(perr.KindFatal, "ipc.listen_tcp", fmt.Errorf("no free loopback port after 100 tries: %w", lastErr))
}

// Manager owns every endpoint for one pipeline incarnation.
type Manager struct {
	IsDash bool

	incarnationID string
	socketDir     string

	subtitle       *endpoint
	stream         *endpoint // FLV/HLS single-track; nil when IsDash
	video          *endpoint // DASH video; nil unless IsDash
	audio          *endpoint // DASH audio; nil unless IsDash
	mux            *endpoint
	playerControl  *endpoint
}

// New binds every endpoint for a fresh incarnation. isDash selects whether
// a single `stream` endpoint or separate `video`/`audio` endpoints are
// created, matching the resolver's HLS/FLV vs. DASH classification (spec
// §4.7).
func New(isDash bool) (*Manager, error) {
	m := &Manager{
		IsDash:        isDash,
		incarnationID: uuid.NewString(),
		socketDir:     os.TempDir(),
	}

	var err error
	bindUnixOrTCP := func(name string) (*endpoint, error) {
		if useUnixSockets() {
			return listenUnix(m.socketDir, fmt.Sprintf("dmlive-%s-%s", m.incarnationID, name))
		}
		return listenTCP()
	}

	if m.subtitle, err = bindUnixOrTCP("subtitle"); err != nil {
		return nil, err
	}
	if isDash {
		if m.video, err = listenTCP(); err != nil {
			return nil, err
		}
		if m.audio, err = listenTCP(); err != nil {
			return nil, err
		}
	} else {
		if m.stream, err = bindUnixOrTCP("stream"); err != nil {
			return nil, err
		}
	}
	if m.mux, err = listenTCP(); err != nil {
		return nil, err
	}
	if m.playerControl, err = bindUnixOrTCP("player_control"); err != nil {
		return nil, err
	}
	return m, nil
}

// NewPlayerControl binds only the player_control endpoint. The player
// process is started once for the whole run and survives incarnation
// restarts (spec §4.9: "Player is NOT killed on restart"), so its control
// socket's one-slot handoff must outlive the per-incarnation Manager New
// builds for subtitle/stream/video/audio/mux.
func NewPlayerControl() (*Manager, error) {
	m := &Manager{incarnationID: uuid.NewString(), socketDir: os.TempDir()}
	var err error
	if useUnixSockets() {
		m.playerControl, err = listenUnix(m.socketDir, fmt.Sprintf("dmlive-%s-player_control", m.incarnationID))
	} else {
		m.playerControl, err = listenTCP()
	}
	if err != nil {
		return nil, err
	}
	return m, nil
}

// SubtitleAddr, StreamAddr, VideoAddr, AudioAddr, MuxAddr, and
// PlayerControlAddr expose each endpoint's dial address so internal/muxer
// and internal/mplayer can build the external collaborator's command line.
func (m *Manager) SubtitleAddr() string      { return m.subtitle.addr }
func (m *Manager) StreamAddr() string        { return m.stream.addr }
func (m *Manager) VideoAddr() string         { return m.video.addr }
func (m *Manager) AudioAddr() string         { return m.audio.addr }
func (m *Manager) MuxAddr() string           { return m.mux.addr }
func (m *Manager) PlayerControlAddr() string { return m.playerControl.addr }

// GetSubtitleSocket, GetStreamSocket, GetVideoSocket, GetAudioSocket,
// GetMuxSocket, and GetPlayerControlSocket each block for their endpoint's
// single handed-off connection.
func (m *Manager) GetSubtitleSocket(ctx context.Context) (net.Conn, error) {
	return m.subtitle.Conn(ctx)
}
func (m *Manager) GetStreamSocket(ctx context.Context) (net.Conn, error) { return m.stream.Conn(ctx) }
func (m *Manager) GetVideoSocket(ctx context.Context) (net.Conn, error)  { return m.video.Conn(ctx) }
func (m *Manager) GetAudioSocket(ctx context.Context) (net.Conn, error)  { return m.audio.Conn(ctx) }
func (m *Manager) GetMuxSocket(ctx context.Context) (net.Conn, error)    { return m.mux.Conn(ctx) }
func (m *Manager) GetPlayerControlSocket(ctx context.Context) (net.Conn, error) {
	return m.playerControl.Conn(ctx)
}

// Close tears down every endpoint's listener and removes any UNIX socket
// files, matching the original's explicit per-platform cleanup in
// IPCManager::stop.
func (m *Manager) Close() error {
	for _, e := range []*endpoint{m.subtitle, m.stream, m.video, m.audio, m.mux, m.playerControl} {
		if e == nil {
			continue
		}
		e.listener.Close()
		if filepath.IsAbs(e.addr) {
			os.Remove(e.addr)
		}
	}
	return nil
}
