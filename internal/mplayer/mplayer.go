// Package mplayer is the C9 external collaborator wrapping mpv: it spawns
// the player in idle pseudo-GUI mode pointed at the ipc fabric's
// player_control socket, sends it loadfile commands as JSON lines, and
// parses the player's own "dml:"-prefixed feedback strings (emitted by a
// user keybind/OSD script running inside mpv) back into structured Cmds.
// Ported from original_source/src/mpv/mod.rs (MpvControl) and
// src/mpv/cmdparser.rs (CmdParser). Like internal/muxer, the supervisor
// owns this collaborator's lifetime and the control-socket connection
// itself (obtained from internal/ipc, same as every other endpoint).
package mplayer

import (
	"bufio"
	"context"
	"fmt"
	"net"
	"os/exec"
	"strconv"
	"strings"

	"dmlive/internal/perr"
)

// Command builds the mpv invocation. ControlAddr is the player_control
// endpoint's dial address (a raw filesystem path on platforms with UNIX
// sockets, host:port otherwise), matching ipcmanager::get_mpv_socket_path.
type Command struct {
	ControlAddr string
}

// Build constructs the mpv command line from create_mpv_command's tp==0
// branch; the tp==1 branch is unreachable dead code in the original
// (todo!()) and is not ported.
func (c Command) Build(ctx context.Context) *exec.Cmd {
	args := []string{
		"--idle=yes",
		"--player-operation-mode=pseudo-gui",
		"--cache=yes",
		"--cache-pause-initial=yes",
		`--vf=lavfi="fps=60"`,
		fmt.Sprintf("--input-ipc-server=%s", c.ControlAddr),
	}
	return exec.CommandContext(ctx, "mpv", args...)
}

// Run spawns mpv and waits for it to exit, matching MpvControl::run's
// outer spawn/wait boundary. The player exiting is itself the supervisor's
// Exit trigger (spec §4.9); the control-socket loops run independently via
// Controller.Serve.
func Run(ctx context.Context, c Command) error {
	cmd := c.Build(ctx)
	cmd.Cancel = func() error { return cmd.Process.Kill() }

	if err := cmd.Start(); err != nil {
		return perr.Wrap(perr.KindFatal, "mplayer.start", err)
	}
	if err := cmd.Wait(); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return perr.Wrap(perr.KindTransient, "mplayer.wait", err)
	}
	return nil
}

// Controller drives the already-accepted player_control connection: it
// writes queued loadfile commands and parses every line mpv writes back.
type Controller struct {
	conn   net.Conn
	loadCh chan string
}

// NewController wraps conn, the net.Conn internal/ipc handed back from
// Manager.GetPlayerControlSocket.
func NewController(conn net.Conn) *Controller {
	return &Controller{conn: conn, loadCh: make(chan string, 8)}
}

// LoadFile queues a loadfile command for path, matching reload_video.
func (c *Controller) LoadFile(ctx context.Context, path string) error {
	select {
	case c.loadCh <- path:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Serve drains queued loadfile commands onto the socket and parses every
// line mpv reports back into a Cmd, emitting recognized ("dml:"-prefixed)
// ones on the returned channel. It runs until ctx is canceled or the
// socket closes; unrecognized lines are dropped silently, matching the
// original reader task which only println!s them.
func (c *Controller) Serve(ctx context.Context) <-chan Cmd {
	out := make(chan Cmd, 8)

	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case path := <-c.loadCh:
				fmt.Fprintf(c.conn, "{ \"command\": [\"loadfile\", %q] }\n", path)
			}
		}
	}()

	go func() {
		defer close(out)
		scanner := bufio.NewScanner(c.conn)
		for scanner.Scan() {
			cmd, ok := ParseCmd(scanner.Text())
			if !ok {
				continue
			}
			select {
			case out <- cmd:
			case <-ctx.Done():
				return
			}
		}
	}()

	return out
}

// Cmd is a parsed "dml:"-prefixed feedback line, matching CmdParser's field
// set.
type Cmd struct {
	Restart, Next, Back bool
	FSUp, FSDown        bool
	Nick, FPS           bool

	FontScale *float64
	FontAlpha *float64
	SpeedMS   *uint64
	Page      *uint64
}

const dmlPrefix = "dml:"

// ParseCmd parses one feedback line into a Cmd, byte-for-byte matching
// CmdParser::new: comma-split the suffix after "dml:", trim each token,
// match bare flag tokens, and additionally split every token on '=' for
// the numeric-argument tokens (fs/fa/speed/p|page).
func ParseCmd(line string) (Cmd, bool) {
	if !strings.HasPrefix(line, dmlPrefix) {
		return Cmd{}, false
	}
	var c Cmd
	for _, raw := range strings.Split(line[len(dmlPrefix):], ",") {
		tok := strings.TrimSpace(raw)
		switch tok {
		case "r", "reload":
			c.Restart = true
		case "next":
			c.Next = true
		case "back":
			c.Back = true
		case "fsup":
			c.FSUp = true
		case "fsdown":
			c.FSDown = true
		case "nick":
			c.Nick = true
		case "fps":
			c.FPS = true
		}

		k, v, hasEq := strings.Cut(tok, "=")
		if !hasEq {
			continue
		}
		switch k {
		case "fs":
			if f, err := strconv.ParseFloat(v, 64); err == nil {
				c.FontScale = &f
			}
		case "fa":
			if f, err := strconv.ParseFloat(v, 64); err == nil {
				c.FontAlpha = &f
			}
		case "speed":
			if n, err := strconv.ParseUint(v, 10, 64); err == nil {
				c.SpeedMS = &n
			}
		case "p", "page":
			if n, err := strconv.ParseUint(v, 10, 64); err == nil {
				c.Page = &n
			}
		}
	}
	return c, true
}
