// Package muxer is the C9 external collaborator wrapping ffmpeg: it
// remuxes the relay's stream socket(s) plus the subtitle socket into a
// single Matroska elementary stream on a loopback TCP listen socket, for
// internal/mplayer to open. Ported from original_source/src/ffmpeg/mod.rs's
// FfmpegControl::create_ff_command/run. Like internal/mplayer and
// internal/resolver's ScriptEvaluator, it is a thin process wrapper that
// internal/supervisor owns the lifetime of — the core never imports it
// directly into its decision logic, only spawns and waits on it.
package muxer

import (
	"context"
	"fmt"
	"os/exec"
	"path/filepath"

	"dmlive/internal/perr"
)

// StreamType selects the -i/-map shape, matching the resolver's
// classification of Result.URLs[0] (spec §4.7/§4.9).
type StreamType int

const (
	StreamFLV StreamType = iota
	StreamHLS
	StreamDASH
)

// Command holds everything create_ff_command needs: the dial addresses of
// every ipc.Manager endpoint this incarnation bound, plus the display
// title ffmpeg stamps into the output's metadata.
type Command struct {
	StreamType StreamType

	// StreamAddr is used for FLV/HLS; VideoAddr/AudioAddr for DASH. Each is
	// a raw ipc endpoint address (unix path, or host:port) as returned by
	// internal/ipc.Manager — Build adds the unix://\tcp:// scheme ffmpeg
	// expects.
	StreamAddr string
	VideoAddr  string
	AudioAddr  string

	DanmakuAddr string
	MuxAddr     string
	Title       string
}

// dialArg formats a raw ipc endpoint address as the scheme-prefixed URL
// ffmpeg's -i wants, matching ipcmanager::get_*_socket_path.
func dialArg(addr string) string {
	if filepath.IsAbs(addr) {
		return "unix://" + addr
	}
	return "tcp://" + addr
}

// Build constructs the ffmpeg invocation. ctx bounds the process's
// lifetime; callers normally derive it from the pipeline incarnation so a
// restart kills any still-running ffmpeg.
func (c Command) Build(ctx context.Context) *exec.Cmd {
	args := []string{"-y", "-xerror", "-loglevel", "quiet"}

	switch c.StreamType {
	case StreamDASH:
		args = append(args,
			"-i", dialArg(c.VideoAddr),
			"-i", dialArg(c.AudioAddr),
			"-i", dialArg(c.DanmakuAddr),
			"-map", "0:v:0", "-map", "1:a:0", "-map", "2:s:0",
		)
	default:
		args = append(args,
			"-i", dialArg(c.StreamAddr),
			"-i", dialArg(c.DanmakuAddr),
			"-map", "0:v:0", "-map", "0:a:0", "-map", "1:s:0",
		)
	}

	args = append(args, "-c", "copy")
	if c.StreamType == StreamHLS {
		// HLS-sourced audio is forced to pcm_s16le; ported as-is from
		// create_ff_command, which applies this only for StreamType::HLS.
		args = append(args, "-c:a", "pcm_s16le")
	}
	args = append(args, "-metadata", fmt.Sprintf("title=%s", c.Title), "-f", "matroska")
	args = append(args, "-listen", "1", dialArg(c.MuxAddr))

	return exec.CommandContext(ctx, "ffmpeg", args...)
}

// Run spawns ffmpeg with piped stdin and waits for it to exit, matching
// FfmpegControl::run. The context's cancellation kills the process the way
// the original's kill_on_drop does when the supervisor tears the
// incarnation down.
func Run(ctx context.Context, c Command) error {
	cmd := c.Build(ctx)
	cmd.Cancel = func() error { return cmd.Process.Kill() }

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return perr.Wrap(perr.KindFatal, "muxer.stdin", err)
	}
	if err := cmd.Start(); err != nil {
		stdin.Close()
		return perr.Wrap(perr.KindFatal, "muxer.start", err)
	}
	stdin.Close()

	if err := cmd.Wait(); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return perr.Wrap(perr.KindTransient, "muxer.wait", err)
	}
	return nil
}
