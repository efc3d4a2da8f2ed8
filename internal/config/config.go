// Package config loads the TOML config file (§6) and CLI flags into an
// immutable Snapshot, the resolution of design note §9's "global mutable
// config" smell: the supervisor owns one snapshot per pipeline incarnation,
// and a runtime knob change produces a new snapshot rather than mutating one
// in place. Modeled on the teacher's flag-heavy server/main.go bootstrap,
// with github.com/BurntSushi/toml standing in for the original Rust
// implementation's toml crate (original_source/src/config/config.rs).
package config

import (
	"fmt"
	"os"

	"github.com/BurntSushi/toml"
)

// File is the on-disk TOML shape (§6).
type File struct {
	BCookie      string  `toml:"bcookie"`
	DanmakuSpeed int     `toml:"danmaku_speed"`
	FontAlpha    float64 `toml:"font_alpha"`
	FontScale    float64 `toml:"font_scale"`
}

// Flags is the parsed CLI surface (§6). Argument parsing itself is out of
// scope for the core (§1); cmd/dmlive owns flag.Parse and fills this struct.
type Flags struct {
	RoomURL      string
	Quiet        bool
	Record       bool // reserved
	WaitSeconds  int
	LogLevel     int // 1..4, 1=debug 4=error
	HTTPAddress  string // reserved
	PLive        bool   // hidden: cookie-augmented fetch for BiliLive
	ConfigPath   string
}

// Snapshot is the immutable, supervisor-owned configuration for one pipeline
// incarnation. A new Snapshot is built whenever the control channel carries
// a knob change (font size, alpha); nothing ever mutates a Snapshot in place.
type Snapshot struct {
	RoomURL      string
	Quiet        bool
	WaitSeconds  int
	LogLevel     int
	PLive        bool
	BCookie      string
	DanmakuSpeedMS int
	FontAlpha    float64
	FontScale    float64
}

const (
	defaultDanmakuSpeedMS = 8000
	defaultFontScale      = 1.0
	baseFontSize          = 40
)

// Load reads the TOML file at path (if it exists — a missing config file is
// not an error, matching the original's "config optional, flags win"
// ergonomics) and merges it with flags into a Snapshot.
func Load(path string, flags Flags) (Snapshot, error) {
	var f File
	if path != "" {
		if _, err := os.Stat(path); err == nil {
			if _, err := toml.DecodeFile(path, &f); err != nil {
				return Snapshot{}, fmt.Errorf("decode config %s: %w", path, err)
			}
		}
	}

	snap := Snapshot{
		RoomURL:        flags.RoomURL,
		Quiet:          flags.Quiet,
		WaitSeconds:    flags.WaitSeconds,
		LogLevel:       flags.LogLevel,
		PLive:          flags.PLive,
		BCookie:        f.BCookie,
		DanmakuSpeedMS: f.DanmakuSpeed,
		FontAlpha:      f.FontAlpha,
		FontScale:      f.FontScale,
	}
	if snap.DanmakuSpeedMS <= 0 {
		snap.DanmakuSpeedMS = defaultDanmakuSpeedMS
	}
	if snap.FontScale <= 0 {
		snap.FontScale = defaultFontScale
	}
	if snap.LogLevel == 0 {
		snap.LogLevel = 3 // info
	}
	return snap, nil
}

// FontSize returns the effective font size in design pixels for this snapshot.
func (s Snapshot) FontSize() int {
	return int(float64(baseFontSize) * s.FontScale)
}

// WithFontScale returns a new Snapshot with an updated font scale — the
// control-channel path for runtime knob changes described in design note §9.
func (s Snapshot) WithFontScale(scale float64) Snapshot {
	s.FontScale = scale
	return s
}

// WithFontAlpha returns a new Snapshot with an updated alpha.
func (s Snapshot) WithFontAlpha(alpha float64) Snapshot {
	s.FontAlpha = alpha
	return s
}

// DefaultConfigPath returns the OS-standard config dir path for this project
// (§6: "one TOML file at the OS-standard config dir for this project").
func DefaultConfigPath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "dmlive.toml"
	}
	return dir + string(os.PathSeparator) + "dmlive" + string(os.PathSeparator) + "config.toml"
}
