package logger

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// TeeFile appends every record to path as well as stdout. The returned
// closer restores stdout-only output.
func TeeFile(path string) (io.Closer, error) {
	if path == "" {
		return nopCloser{}, nil
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create log dir: %w", err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open log file: %w", err)
	}
	SetOutput(io.MultiWriter(os.Stdout, f))
	return &teeCloser{f: f}, nil
}

type teeCloser struct{ f *os.File }

func (t *teeCloser) Close() error {
	SetOutput(os.Stdout)
	return t.f.Close()
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
