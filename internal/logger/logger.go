package logger

import (
	"io"
	"log/slog"
	"path/filepath"

	lj "gopkg.in/natefinch/lumberjack.v2"
)

// Default sink rotation caps. Generous for a dev session; they exist so a
// chatty service cannot fill the disk overnight.
const (
	DefaultMaxSizeMB  = 50
	DefaultMaxBackups = 2
	DefaultMaxAgeDays = 7
)

// SinkConfig describes where managed services write their combined
// stdout/stderr stream. Each service gets Dir/<name>.log; the path is stable
// so tailers can attach to it independently of the writer.
type SinkConfig struct {
	Dir        string
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
	Compress   bool
}

// Path returns the log sink path for a service name.
func (c SinkConfig) Path(name string) string {
	return filepath.Join(c.Dir, name+".log")
}

// Writer opens the append-only sink for a service. Rotation parameters follow
// lumberjack semantics.
func (c SinkConfig) Writer(name string) io.WriteCloser {
	return &lj.Logger{
		Filename:   c.Path(name),
		MaxSize:    valOr(c.MaxSizeMB, DefaultMaxSizeMB),
		MaxBackups: valOr(c.MaxBackups, DefaultMaxBackups),
		MaxAge:     valOr(c.MaxAgeDays, DefaultMaxAgeDays),
		Compress:   c.Compress,
	}
}

func valOr(v int, def int) int {
	if v <= 0 {
		return def
	}
	return v
}

// Setup installs the colored text handler as the default slog logger.
// Service output bypasses slog entirely; this is only for the supervisor's
// own diagnostics.
func Setup(w io.Writer, debug bool) {
	lvl := slog.LevelInfo
	if debug {
		lvl = slog.LevelDebug
	}
	h := NewColorTextHandler(w, &slog.HandlerOptions{Level: lvl})
	slog.SetDefault(slog.New(h))
}
