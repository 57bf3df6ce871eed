package sweep

import (
	"context"
	"log"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/dealflowhq/dealflow/internal/escalation"
)

const reloadDebounce = 500 * time.Millisecond

// WatchPolicy hot-reloads the escalation policy when the file changes.
// Blocks until the context is cancelled. A file that fails to parse is
// logged and the previous policy stays active.
func (s *Sweeper) WatchPolicy(ctx context.Context, path string) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer func() { _ = watcher.Close() }() // Best effort cleanup

	// Watch the directory: editors replace files rather than write in place.
	if err := watcher.Add(filepath.Dir(path)); err != nil {
		return err
	}

	base := filepath.Base(path)
	var debounceTimer *time.Timer
	for {
		select {
		case <-ctx.Done():
			if debounceTimer != nil {
				debounceTimer.Stop()
			}
			return ctx.Err()
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
				continue
			}
			if filepath.Base(event.Name) != base {
				continue
			}
			if debounceTimer != nil {
				debounceTimer.Stop()
			}
			debounceTimer = time.AfterFunc(reloadDebounce, func() {
				s.reloadPolicy(path)
			})
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			log.Printf("sweep: policy watcher: %v", err)
		}
	}
}

func (s *Sweeper) reloadPolicy(path string) {
	policy, err := escalation.LoadPolicy(path)
	if err != nil {
		log.Printf("sweep: policy reload failed, keeping previous: %v", err)
		return
	}
	s.SetPolicy(policy)
	log.Printf("sweep: policy reloaded from %s", path)
}
