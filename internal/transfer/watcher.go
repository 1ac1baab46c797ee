package transfer

import (
	"context"
	"fmt"

	"github.com/fsnotify/fsnotify"

	"testrig/pkg/logging"
)

// Watcher observes the served root directory and logs artifact changes, so
// operators can see which images appear and disappear while the rig runs.
type Watcher struct {
	fsw  *fsnotify.Watcher
	root string
}

// NewWatcher starts watching root.
func NewWatcher(root string) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("creating root watcher: %w", err)
	}
	if err := fsw.Add(root); err != nil {
		fsw.Close()
		return nil, fmt.Errorf("watching %s: %w", root, err)
	}
	return &Watcher{fsw: fsw, root: root}, nil
}

// Run consumes filesystem events until the context is cancelled.
func (w *Watcher) Run(ctx context.Context) error {
	defer w.fsw.Close()
	logging.Info("Transfer", "watching artifact root %s", w.root)

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-w.fsw.Events:
			if !ok {
				return nil
			}
			switch {
			case event.Has(fsnotify.Create):
				logging.Info("Transfer", "artifact appeared: %s", event.Name)
			case event.Has(fsnotify.Remove) || event.Has(fsnotify.Rename):
				logging.Info("Transfer", "artifact removed: %s", event.Name)
			case event.Has(fsnotify.Write):
				logging.Debug("Transfer", "artifact updated: %s", event.Name)
			}
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return nil
			}
			logging.Error("Transfer", err, "root watcher error")
		}
	}
}
