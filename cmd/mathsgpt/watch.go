package main

import (
	"context"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// configWatcher calls onChange after the config file settles following a
// write. Editors often replace the file, so the directory is watched.
type configWatcher struct {
	watcher  *fsnotify.Watcher
	path     string
	debounce time.Duration
	onChange func()
	logger   *slog.Logger

	stopOnce sync.Once
	stopCh   chan struct{}
	doneCh   chan struct{}
}

func watchConfig(ctx context.Context, path string, logger *slog.Logger, onChange func()) (*configWatcher, error) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		w.Close()
		return nil, err
	}
	if err := w.Add(filepath.Dir(abs)); err != nil {
		w.Close()
		return nil, err
	}
	cw := &configWatcher{
		watcher:  w,
		path:     abs,
		debounce: 300 * time.Millisecond,
		onChange: onChange,
		logger:   logger,
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
	}
	go cw.run(ctx)
	logger.Debug("watching config file", "path", abs)
	return cw, nil
}

func (cw *configWatcher) run(ctx context.Context) {
	defer close(cw.doneCh)

	var timer *time.Timer
	var fire <-chan time.Time
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case <-cw.stopCh:
			return
		case event, ok := <-cw.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != cw.path {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Rename) {
				continue
			}
			if timer == nil {
				timer = time.NewTimer(cw.debounce)
			} else {
				timer.Reset(cw.debounce)
			}
			fire = timer.C
		case err, ok := <-cw.watcher.Errors:
			if !ok {
				return
			}
			cw.logger.Warn("config watcher error", "error", err)
		case <-fire:
			fire = nil
			cw.onChange()
		}
	}
}

// Stop ends the watch and waits for the event loop to exit.
func (cw *configWatcher) Stop() {
	cw.stopOnce.Do(func() {
		close(cw.stopCh)
		<-cw.doneCh
		if err := cw.watcher.Close(); err != nil {
			cw.logger.Warn("closing config watcher", "error", err)
		}
	})
}
