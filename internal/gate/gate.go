// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package gate checks that sibling engines have produced new output since a
// recorded baseline before a report run may start.
package gate

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"go.yaml.in/yaml/v3"

	"github.com/pdiddy/report-engine/internal/store"
	"github.com/pdiddy/report-engine/pkg/types"
)

// ErrNotReady is matched by every *NotReadyError.
var ErrNotReady = errors.New("upstream inputs not ready")

// NotReadyError carries the readiness diagnostic of a failed check.
type NotReadyError struct {
	Result types.ReadinessResult
}

func (e *NotReadyError) Error() string {
	return fmt.Sprintf("upstream inputs not ready: missing %s", strings.Join(e.Result.Missing, ", "))
}

// Is reports whether target is ErrNotReady.
func (e *NotReadyError) Is(target error) bool { return target == ErrNotReady }

// Gate compares watched directories against a persisted baseline.
type Gate struct {
	// BaselinePath is the YAML file holding the baseline.
	BaselinePath string

	// Dirs maps an engine name to its output directory.
	Dirs map[string]string

	// ExtraFile must exist for the gate to open. Empty skips the check.
	ExtraFile string

	now func() time.Time
}

// New returns a gate for cfg.
func New(cfg types.GateConfig) *Gate {
	return &Gate{
		BaselinePath: cfg.BaselineFile,
		Dirs:         cfg.Dirs,
		ExtraFile:    cfg.ExtraFile,
		now:          time.Now,
	}
}

// Snapshot scans every watched directory.
func (g *Gate) Snapshot() (map[string]types.DirSnapshot, error) {
	out := make(map[string]types.DirSnapshot, len(g.Dirs))
	for name, dir := range g.Dirs {
		snap, err := scanDir(dir)
		if err != nil {
			return nil, err
		}
		out[name] = snap
	}
	return out, nil
}

// scanDir counts the non-hidden regular files directly in dir. A missing
// directory counts as empty.
func scanDir(dir string) (types.DirSnapshot, error) {
	snap := types.DirSnapshot{Path: dir}
	entries, err := os.ReadDir(dir)
	if errors.Is(err, fs.ErrNotExist) {
		return snap, nil
	}
	if err != nil {
		return snap, fmt.Errorf("reading %s: %w", dir, err)
	}
	for _, e := range entries {
		if !e.Type().IsRegular() || strings.HasPrefix(e.Name(), ".") {
			continue
		}
		info, err := e.Info()
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return snap, fmt.Errorf("stat %s: %w", e.Name(), err)
		}
		snap.Count++
		if info.ModTime().After(snap.LatestModTime) {
			snap.LatestModTime = info.ModTime()
			snap.LatestFile = filepath.Join(dir, e.Name())
		}
	}
	return snap, nil
}

// Load reads the persisted baseline. A missing file yields an empty baseline.
func (g *Gate) Load() (types.FileBaseline, error) {
	var b types.FileBaseline
	data, err := os.ReadFile(g.BaselinePath)
	if errors.Is(err, fs.ErrNotExist) {
		return types.FileBaseline{Dirs: map[string]types.DirSnapshot{}}, nil
	}
	if err != nil {
		return b, fmt.Errorf("reading baseline %s: %w", g.BaselinePath, err)
	}
	if err := yaml.Unmarshal(data, &b); err != nil {
		return b, fmt.Errorf("parsing baseline %s: %w", g.BaselinePath, err)
	}
	if b.Dirs == nil {
		b.Dirs = map[string]types.DirSnapshot{}
	}
	return b, nil
}

// InitializeBaseline records the current state when no baseline is
// persisted yet and returns the baseline in effect.
func (g *Gate) InitializeBaseline() (types.FileBaseline, error) {
	if _, err := os.Stat(g.BaselinePath); err == nil {
		return g.Load()
	}
	return g.ResetBaseline()
}

// ResetBaseline records and persists the current state of every watched
// directory, replacing any previous baseline.
func (g *Gate) ResetBaseline() (types.FileBaseline, error) {
	dirs, err := g.Snapshot()
	if err != nil {
		return types.FileBaseline{}, err
	}
	b := types.FileBaseline{Dirs: dirs, RecordedAt: g.now().UTC()}

	data, err := yaml.Marshal(b)
	if err != nil {
		return b, fmt.Errorf("marshaling baseline: %w", err)
	}
	if dir := filepath.Dir(g.BaselinePath); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return b, fmt.Errorf("creating baseline directory: %w", err)
		}
	}
	if err := store.WriteFileAtomic(g.BaselinePath, data); err != nil {
		return b, fmt.Errorf("writing baseline: %w", err)
	}
	return b, nil
}

// CheckReady compares the watched directories with the baseline. A
// directory is ready when it holds more files than recorded or a file newer
// than the newest recorded one.
func (g *Gate) CheckReady() (types.ReadinessResult, error) {
	base, err := g.Load()
	if err != nil {
		return types.ReadinessResult{}, err
	}
	current, err := g.Snapshot()
	if err != nil {
		return types.ReadinessResult{}, err
	}

	res := types.ReadinessResult{
		NewFilesFound:  map[string]string{},
		BaselineCounts: make(map[string]int, len(current)),
		CurrentCounts:  make(map[string]int, len(current)),
		LatestFiles:    make(map[string]string, len(current)),
		ExtraFile:      g.ExtraFile,
	}

	names := make([]string, 0, len(current))
	for name := range current {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		cur, was := current[name], base.Dirs[name]
		res.BaselineCounts[name] = was.Count
		res.CurrentCounts[name] = cur.Count
		if cur.LatestFile != "" {
			res.LatestFiles[name] = cur.LatestFile
		}
		if cur.Count > was.Count || (cur.Count > 0 && cur.LatestModTime.After(was.LatestModTime)) {
			res.NewFilesFound[name] = cur.LatestFile
		} else {
			res.Missing = append(res.Missing, name)
		}
	}

	res.ExtraFileExists = true
	if g.ExtraFile != "" {
		if info, err := os.Stat(g.ExtraFile); err != nil || info.IsDir() {
			res.ExtraFileExists = false
			res.Missing = append(res.Missing, g.ExtraFile)
		}
	}

	res.Ready = len(res.Missing) == 0
	return res, nil
}

// Require returns a *NotReadyError when CheckReady does not pass.
func (g *Gate) Require() (types.ReadinessResult, error) {
	res, err := g.CheckReady()
	if err != nil {
		return res, err
	}
	if !res.Ready {
		return res, &NotReadyError{Result: res}
	}
	return res, nil
}
