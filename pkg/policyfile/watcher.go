package policyfile

import (
	"context"
	"fmt"
	"path/filepath"
	"runtime/debug"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/sirupsen/logrus"

	"github.com/platinummonkey/ratchet/pkg/rbac"
)

// debounceDelay coalesces bursts of filesystem events into one reload.
// Editors and atomic-rename writers emit several events per save.
const debounceDelay = 300 * time.Millisecond

// Watcher reapplies a policy file through a Manager whenever the file
// changes on disk. Reloads that fail to parse or apply are logged and
// the previously applied policy stays in effect.
type Watcher struct {
	path    string
	manager *rbac.Manager
	logger  *logrus.Logger

	fsw       *fsnotify.Watcher
	closeOnce sync.Once
}

// NewWatcher creates a watcher for the policy file at path. The watch
// is placed on the file's directory rather than the file itself, so
// editors that replace the file on save do not orphan the watch.
func NewWatcher(path string, manager *rbac.Manager, logger *logrus.Logger) (*Watcher, error) {
	if logger == nil {
		logger = logrus.New()
	}
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create watcher: %w", err)
	}
	dir := filepath.Dir(path)
	if err := fsw.Add(dir); err != nil {
		fsw.Close()
		return nil, fmt.Errorf("failed to watch %s: %w", dir, err)
	}
	return &Watcher{
		path:    filepath.Clean(path),
		manager: manager,
		logger:  logger,
		fsw:     fsw,
	}, nil
}

// Start begins watching on a background goroutine and returns
// immediately. Watching stops when ctx is canceled or Close is called.
func (w *Watcher) Start(ctx context.Context) {
	go w.run(ctx)
}

func (w *Watcher) run(ctx context.Context) {
	defer func() {
		if rec := recover(); rec != nil {
			w.logger.Errorf("policy watcher panic: %v\n%s", rec, debug.Stack())
		}
	}()

	var pending <-chan time.Time
	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != w.path {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			pending = time.After(debounceDelay)
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			w.logger.Warnf("policy watcher error: %v", err)
		case <-pending:
			pending = nil
			w.reload(ctx)
		}
	}
}

func (w *Watcher) reload(ctx context.Context) {
	file, err := Load(w.path)
	if err != nil {
		w.logger.Warnf("policy reload failed, keeping last good policy: %v", err)
		return
	}
	if err := file.Apply(ctx, w.manager); err != nil {
		w.logger.Warnf("policy apply failed, keeping last good policy: %v", err)
		return
	}
	w.logger.Infof("policy reloaded from %s (%d roles, %d users)", w.path, len(file.Roles), len(file.Users))
}

// Close stops the watcher. It is safe to call more than once.
func (w *Watcher) Close() error {
	var err error
	w.closeOnce.Do(func() {
		err = w.fsw.Close()
	})
	return err
}
