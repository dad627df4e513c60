package authz

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
)

// reloadDelay coalesces bursts of file events into one reload.
const reloadDelay = 250 * time.Millisecond

func (a *Authorizer) watch() error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}

	err = filepath.WalkDir(a.cfg.PolicyDir, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return watcher.Add(path)
		}
		return nil
	})
	if err != nil {
		_ = watcher.Close()
		return fmt.Errorf("failed to watch policy directory: %w", err)
	}

	a.watcher = watcher
	a.stop = make(chan struct{})
	a.wg.Add(1)
	go a.processEvents(watcher)

	a.logger.WithField("dir", a.cfg.PolicyDir).Info("Watching authorization policies")
	return nil
}

func (a *Authorizer) processEvents(watcher *fsnotify.Watcher) {
	defer a.wg.Done()

	var timer *time.Timer
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	for {
		select {
		case <-a.stop:
			return

		case event, ok := <-watcher.Events:
			if !ok {
				return
			}
			if !strings.HasSuffix(event.Name, ".rego") {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Remove|fsnotify.Rename) == 0 {
				continue
			}

			a.logger.WithFields(map[string]interface{}{
				"file": event.Name,
				"op":   event.Op.String(),
			}).Debug("Policy file changed")

			if timer != nil {
				timer.Stop()
			}
			timer = time.AfterFunc(reloadDelay, func() {
				if err := a.Reload(context.Background()); err != nil {
					a.logger.WithError(err).Error("Failed to reload policies, keeping previous set")
				}
			})

		case err, ok := <-watcher.Errors:
			if !ok {
				return
			}
			a.logger.WithError(err).Error("Watcher error")
		}
	}
}
