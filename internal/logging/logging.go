// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package logging builds the zap logger and manages the run log file that
// the HTTP surface shows and clears.
package logging

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/pdiddy/report-engine/pkg/types"
)

// New returns a production JSON logger on stderr. When cfg.File is set,
// every entry is also written to that file in console format. verbose
// forces the debug level.
func New(cfg types.LogConfig, verbose bool) (*zap.Logger, *RunLog, error) {
	return build(cfg, verbose, zapcore.Lock(os.Stderr))
}

func build(cfg types.LogConfig, verbose bool, stderr zapcore.WriteSyncer) (*zap.Logger, *RunLog, error) {
	level := zapcore.InfoLevel
	if cfg.Level != "" {
		l, err := zapcore.ParseLevel(cfg.Level)
		if err != nil {
			return nil, nil, fmt.Errorf("parsing log level: %w", err)
		}
		level = l
	}
	if verbose {
		level = zapcore.DebugLevel
	}
	enabler := zap.NewAtomicLevelAt(level)

	cores := []zapcore.Core{
		zapcore.NewCore(zapcore.NewJSONEncoder(zap.NewProductionEncoderConfig()), stderr, enabler),
	}

	var runLog *RunLog
	if cfg.File != "" {
		var err error
		runLog, err = OpenRunLog(cfg.File)
		if err != nil {
			return nil, nil, err
		}
		enc := zap.NewDevelopmentEncoderConfig()
		enc.EncodeLevel = zapcore.CapitalLevelEncoder
		cores = append(cores, zapcore.NewCore(zapcore.NewConsoleEncoder(enc), zapcore.AddSync(runLog), enabler))
	}

	return zap.New(zapcore.NewTee(cores...), zap.AddCaller()), runLog, nil
}

// RunLog is an append-only log file that can be read back and truncated
// while the process writes to it.
type RunLog struct {
	Path string

	mu sync.Mutex
	f  *os.File
}

// OpenRunLog opens path for appending, creating it and its directory.
func OpenRunLog(path string) (*RunLog, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("creating log directory: %w", err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("opening run log: %w", err)
	}
	return &RunLog{Path: path, f: f}, nil
}

func (r *RunLog) Write(p []byte) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.f.Write(p)
}

// Read returns up to the last maxBytes of the log. maxBytes <= 0 reads it
// all. A missing file reads as empty.
func (r *RunLog) Read(maxBytes int64) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	f, err := os.Open(r.Path)
	if errors.Is(err, fs.ErrNotExist) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("opening run log: %w", err)
	}
	defer f.Close()

	if maxBytes > 0 {
		info, err := f.Stat()
		if err != nil {
			return "", err
		}
		if info.Size() > maxBytes {
			if _, err := f.Seek(info.Size()-maxBytes, io.SeekStart); err != nil {
				return "", err
			}
		}
	}
	data, err := io.ReadAll(f)
	if err != nil {
		return "", fmt.Errorf("reading run log: %w", err)
	}
	return string(data), nil
}

// Clear truncates the log. Later writes land at the start of the file.
func (r *RunLog) Clear() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.f.Truncate(0); err != nil {
		return fmt.Errorf("clearing run log: %w", err)
	}
	return nil
}

// Close closes the file.
func (r *RunLog) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.f.Close()
}
