package logging

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/google/uuid"
)

// handler formats log records as:
//
//	<timestamp>\t<level>\t<opID>\t<message>\t<key=value ...>
type handler struct {
	mu    *sync.Mutex
	w     io.Writer
	level slog.Leveler
	opID  string
	attrs []slog.Attr
}

func (h *handler) Enabled(_ context.Context, l slog.Level) bool {
	return l >= h.level.Level()
}

func (h *handler) Handle(_ context.Context, r slog.Record) error {
	var b strings.Builder
	fmt.Fprintf(&b, "%s\t%s\t%s\t%s", r.Time.UTC().Format("2006-01-02T15:04:05Z"), r.Level, h.opID, r.Message)
	for _, a := range h.attrs {
		fmt.Fprintf(&b, "\t%s=%v", a.Key, a.Value)
	}
	r.Attrs(func(a slog.Attr) bool {
		fmt.Fprintf(&b, "\t%s=%v", a.Key, a.Value)
		return true
	})
	b.WriteByte('\n')

	h.mu.Lock()
	defer h.mu.Unlock()
	_, err := io.WriteString(h.w, b.String())
	return err
}

func (h *handler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &handler{
		mu:    h.mu,
		w:     h.w,
		level: h.level,
		opID:  h.opID,
		attrs: append(append([]slog.Attr{}, h.attrs...), attrs...),
	}
}

func (h *handler) WithGroup(string) slog.Handler { return h }

// ParseLevel maps a config level name to a slog level. Unknown names are info.
func ParseLevel(name string) slog.Level {
	var l slog.Level
	if err := l.UnmarshalText([]byte(strings.TrimSpace(name))); err != nil {
		return slog.LevelInfo
	}
	return l
}

// NewWriterLogger creates a logger writing to w with a fresh operation ID.
func NewWriterLogger(w io.Writer, level slog.Level) *Logger {
	h := &handler{mu: &sync.Mutex{}, w: w, level: level, opID: uuid.New().String()}
	return &Logger{l: slog.New(h)}
}

// New creates a logger writing to logDir/font-manager.log and to stderr.
// The caller must Close the returned logger.
func New(logDir string, level slog.Level) (*Logger, error) {
	if err := os.MkdirAll(logDir, 0755); err != nil {
		return nil, fmt.Errorf("creating log directory: %w", err)
	}

	f, err := os.OpenFile(filepath.Join(logDir, "font-manager.log"), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, fmt.Errorf("opening log file: %w", err)
	}

	logger := NewWriterLogger(io.MultiWriter(f, os.Stderr), level)
	logger.f = f
	return logger, nil
}

// Logger adapts *slog.Logger to fm.Logger.
type Logger struct {
	l *slog.Logger
	f *os.File
}

func (a *Logger) Debug(msg string, args ...any) { a.l.Debug(msg, args...) }
func (a *Logger) Info(msg string, args ...any)  { a.l.Info(msg, args...) }
func (a *Logger) Warn(msg string, args ...any)  { a.l.Warn(msg, args...) }
func (a *Logger) Error(msg string, args ...any) { a.l.Error(msg, args...) }

// Slog exposes the underlying slog logger.
func (a *Logger) Slog() *slog.Logger { return a.l }

// Close closes the log file, if any.
func (a *Logger) Close() error {
	if a.f == nil {
		return nil
	}
	return a.f.Close()
}
