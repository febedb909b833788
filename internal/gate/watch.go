// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package gate

import (
	"context"
	"fmt"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"

	"github.com/pdiddy/report-engine/pkg/types"
)

// Wait blocks until CheckReady passes or ctx is done. It re-checks on every
// filesystem event in the watched directories and at least once per
// interval, which also picks up directories created after Wait started.
func (g *Gate) Wait(ctx context.Context, interval time.Duration, logger *zap.Logger) (types.ReadinessResult, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if interval <= 0 {
		interval = 5 * time.Second
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return types.ReadinessResult{}, fmt.Errorf("creating watcher: %w", err)
	}
	defer watcher.Close()

	watched := make(map[string]bool)
	watch := func() {
		for name, dir := range g.Dirs {
			if watched[dir] {
				continue
			}
			if err := watcher.Add(dir); err == nil {
				watched[dir] = true
				logger.Debug("watching directory", zap.String("engine", name), zap.String("dir", dir))
			}
		}
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		watch()
		res, err := g.CheckReady()
		if err != nil {
			return res, err
		}
		if res.Ready {
			return res, nil
		}

		select {
		case <-ctx.Done():
			return res, ctx.Err()
		case ev, ok := <-watcher.Events:
			if !ok {
				return res, fmt.Errorf("watcher closed")
			}
			logger.Debug("input change", zap.String("file", ev.Name), zap.String("op", ev.Op.String()))
		case err, ok := <-watcher.Errors:
			if !ok {
				return res, fmt.Errorf("watcher closed")
			}
			logger.Warn("watcher error", zap.Error(err))
		case <-ticker.C:
		}
	}
}
