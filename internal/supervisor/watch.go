package supervisor

import (
	"context"
	"path/filepath"
	"strings"

	"fleetmgr/pkg/logging"

	"github.com/fsnotify/fsnotify"
)

// WatchPIDDir watches pidDir for externally-deleted PID files — an
// instance killed out-of-band by something other than this supervisor —
// and calls onRemoved with the instance name (the PID file's base name,
// without the .pid suffix) for each one. It runs until ctx is canceled.
func WatchPIDDir(ctx context.Context, pidDir string, onRemoved func(name string)) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer watcher.Close()

	if err := watcher.Add(pidDir); err != nil {
		return err
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if event.Op&fsnotify.Remove == 0 {
				continue
			}
			name := instanceNameFromPIDFile(event.Name)
			logging.Warn(subsystem, "pid file for %s removed externally, instance may be orphaned", name)
			onRemoved(name)
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			logging.Warn(subsystem, "pid directory watch error: %s", err)
		}
	}
}

func instanceNameFromPIDFile(path string) string {
	return strings.TrimSuffix(filepath.Base(path), ".pid")
}
