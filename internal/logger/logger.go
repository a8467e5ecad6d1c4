// Package logger is the process-wide slog logger. Messages written as
// "[component] text" are logged as text with a component attribute.
package logger

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"
)

var levels = map[string]slog.Level{
	"debug":   slog.LevelDebug,
	"info":    slog.LevelInfo,
	"warn":    slog.LevelWarn,
	"warning": slog.LevelWarn,
	"error":   slog.LevelError,
}

type sink struct {
	mu     sync.RWMutex
	level  slog.LevelVar
	w      io.Writer
	json   bool
	logger *slog.Logger
}

var std = newSink(os.Stdout)

func newSink(w io.Writer) *sink {
	s := &sink{w: w}
	s.rebuild()
	return s
}

// rebuild must run with mu held for writing, or before s is shared.
func (s *sink) rebuild() {
	if s.w == nil {
		s.w = os.Stdout
	}
	opts := &slog.HandlerOptions{Level: &s.level}
	var h slog.Handler = slog.NewTextHandler(s.w, opts)
	if s.json {
		h = slog.NewJSONHandler(s.w, opts)
	}
	s.logger = slog.New(h)
}

func (s *sink) get() *slog.Logger {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.logger
}

func SetOutput(w io.Writer) {
	std.mu.Lock()
	std.w = w
	std.rebuild()
	std.mu.Unlock()
}

// SetJSON switches between the text and JSON slog handlers.
func SetJSON(enabled bool) {
	std.mu.Lock()
	std.json = enabled
	std.rebuild()
	std.mu.Unlock()
}

// SetLevel accepts debug, info, warn or error; anything else means info.
func SetLevel(level string) {
	lvl, ok := levels[strings.ToLower(strings.TrimSpace(level))]
	if !ok {
		lvl = slog.LevelInfo
	}
	std.level.Set(lvl)
}

// Level reports the active level in the form SetLevel accepts.
func Level() string {
	return strings.ToLower(std.level.Level().String())
}

func emit(level slog.Level, format string, v ...any) {
	l := std.get()
	msg := fmt.Sprintf(format, v...)
	if component, rest, ok := splitComponent(msg); ok {
		l.Log(context.Background(), level, rest, slog.String("component", component))
		return
	}
	l.Log(context.Background(), level, msg)
}

func splitComponent(msg string) (string, string, bool) {
	if !strings.HasPrefix(msg, "[") {
		return "", msg, false
	}
	end := strings.IndexByte(msg, ']')
	if end <= 1 || strings.ContainsAny(msg[1:end], " \t") {
		return "", msg, false
	}
	return msg[1:end], strings.TrimSpace(msg[end+1:]), true
}

func Debugf(format string, v ...any) { emit(slog.LevelDebug, format, v...) }

func Infof(format string, v ...any) { emit(slog.LevelInfo, format, v...) }

func Warnf(format string, v ...any) { emit(slog.LevelWarn, format, v...) }

func Errorf(format string, v ...any) { emit(slog.LevelError, format, v...) }

// InfoBlock logs a multi-line block one line per record.
func InfoBlock(block string) {
	block = strings.TrimSpace(block)
	if block == "" {
		return
	}
	for _, line := range strings.Split(block, "\n") {
		Infof("%s", line)
	}
}
