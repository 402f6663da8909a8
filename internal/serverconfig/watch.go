package serverconfig

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

const watchDebounce = 200 * time.Millisecond

// Watch reports changes to the file on disk until ctx ends. Bursts of
// events are coalesced; a pending signal is never duplicated. The parent
// directory is watched so atomic replacements are seen.
func (e *Editor) Watch(ctx context.Context) (<-chan struct{}, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create watcher: %w", err)
	}
	if err := watcher.Add(filepath.Dir(e.path)); err != nil {
		_ = watcher.Close()
		return nil, fmt.Errorf("failed to watch %s: %w", e.path, err)
	}

	out := make(chan struct{}, 1)
	go e.observe(ctx, watcher, out)
	return out, nil
}

func (e *Editor) observe(ctx context.Context, watcher *fsnotify.Watcher, out chan<- struct{}) {
	defer close(out)
	defer func() { _ = watcher.Close() }()

	base := filepath.Base(e.path)
	timer := time.NewTimer(watchDebounce)
	timer.Stop()
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return

		case event, ok := <-watcher.Events:
			if !ok {
				return
			}
			if filepath.Base(event.Name) != base || event.Op == fsnotify.Chmod {
				continue
			}
			timer.Reset(watchDebounce)

		case <-timer.C:
			select {
			case out <- struct{}{}:
			default:
			}

		case err, ok := <-watcher.Errors:
			if !ok {
				return
			}
			e.logger.Warn("Configuration watcher error", zap.Error(err))
		}
	}
}
