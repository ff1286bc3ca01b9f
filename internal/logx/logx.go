// Package logx builds the run logger. It is a thin layer over log/slog:
// level and format parsing, plus an optional per-day log file that is
// written alongside the console output.
package logx

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// levelOff is above every level slog emits.
const levelOff slog.Level = 100

// Options controls how New builds a logger.
type Options struct {
	Level  string    // debug|info|warn|error|off
	Format string    // text|json
	Dir    string    // optional; logs are also appended to Dir/gmail_<YYYYMMDD>.log
	Out    io.Writer // console writer, defaults to os.Stderr
	Now    func() time.Time
}

// Closer flushes and releases the log file, if any.
type Closer func() error

// New returns a logger and a Closer that must be called at the end of the run.
func New(opts Options) (*slog.Logger, Closer, error) {
	out := opts.Out
	if out == nil {
		out = os.Stderr
	}
	closer := Closer(func() error { return nil })

	if opts.Dir != "" {
		now := time.Now
		if opts.Now != nil {
			now = opts.Now
		}
		if err := os.MkdirAll(opts.Dir, 0o755); err != nil {
			return nil, nil, fmt.Errorf("create log dir: %w", err)
		}
		path := filepath.Join(opts.Dir, "gmail_"+now().Format("20060102")+".log")
		f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
		if err != nil {
			return nil, nil, fmt.Errorf("open log file: %w", err)
		}
		out = io.MultiWriter(out, f)
		closer = func() error {
			if err := f.Sync(); err != nil {
				f.Close()
				return err
			}
			return f.Close()
		}
	}

	hopts := &slog.HandlerOptions{Level: ParseLevel(opts.Level)}
	var handler slog.Handler
	switch strings.ToLower(strings.TrimSpace(opts.Format)) {
	case "json":
		handler = slog.NewJSONHandler(out, hopts)
	default:
		handler = slog.NewTextHandler(out, hopts)
	}
	return slog.New(handler), closer, nil
}

// ParseLevel maps a level name to a slog level. Unknown names mean info.
func ParseLevel(s string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	case "none", "silent", "off":
		return levelOff
	default:
		return slog.LevelInfo
	}
}

// Discard returns a logger that drops everything. Handy in tests.
func Discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: levelOff}))
}
