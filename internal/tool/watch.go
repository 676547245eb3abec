package tool

import (
	"context"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

const watchDebounce = 200 * time.Millisecond

// WatchBinary watches the directory holding the CLI binary and calls onChange
// after the binary is created, rewritten, renamed or removed. Installers
// usually replace the file rather than write it in place, so the directory is
// watched instead of the file. Bursts are coalesced into one call.
func WatchBinary(ctx context.Context, path string, onChange func()) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}

	dir := filepath.Dir(path)
	if err := watcher.Add(dir); err != nil {
		watcher.Close()
		return err
	}

	go runWatcher(ctx, watcher, filepath.Base(path), onChange)

	slog.Info("cli watcher started", "path", path)
	return nil
}

func runWatcher(ctx context.Context, watcher *fsnotify.Watcher, name string, onChange func()) {
	defer watcher.Close()

	var mu sync.Mutex
	var pending *time.Timer

	trigger := func() {
		mu.Lock()
		defer mu.Unlock()
		if pending != nil {
			pending.Stop()
		}
		pending = time.AfterFunc(watchDebounce, onChange)
	}

	for {
		select {
		case <-ctx.Done():
			mu.Lock()
			if pending != nil {
				pending.Stop()
			}
			mu.Unlock()
			return

		case event, ok := <-watcher.Events:
			if !ok {
				return
			}
			if filepath.Base(event.Name) != name {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Remove|fsnotify.Rename|fsnotify.Chmod) != 0 {
				slog.Debug("cli watcher", "op", event.Op.String(), "file", event.Name)
				trigger()
			}

		case err, ok := <-watcher.Errors:
			if !ok {
				return
			}
			slog.Warn("cli watcher error", "err", err)
		}
	}
}
