package config

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// Watcher reloads the config file when it changes on disk and hands the new,
// validated config to a callback. Reloads within the cooldown window are
// dropped so editors writing in several steps trigger one reload, not five.
type Watcher struct {
	path     string
	cooldown time.Duration
	watcher  *fsnotify.Watcher
	onUpdate func(AppConfig)
	onError  func(error)

	mu         sync.Mutex
	lastReload time.Time

	stopOnce sync.Once
	stopChan chan struct{}
	doneChan chan struct{}
}

// NewWatcher sets up an fsnotify watch on path. onUpdate receives every
// successfully reloaded config; onError (optional) receives reload and watch
// failures.
func NewWatcher(path string, cooldown time.Duration, onUpdate func(AppConfig), onError func(error)) (*Watcher, error) {
	if onUpdate == nil {
		return nil, fmt.Errorf("onUpdate callback is required")
	}
	if cooldown <= 0 {
		cooldown = 2 * time.Second
	}
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create watcher: %w", err)
	}
	if err := fsw.Add(path); err != nil {
		fsw.Close()
		return nil, fmt.Errorf("watch config file: %w", err)
	}
	return &Watcher{
		path:     path,
		cooldown: cooldown,
		watcher:  fsw,
		onUpdate: onUpdate,
		onError:  onError,
		stopChan: make(chan struct{}),
		doneChan: make(chan struct{}),
	}, nil
}

// Start begins watching in a background goroutine until ctx ends or Stop is called.
func (w *Watcher) Start(ctx context.Context) {
	go w.loop(ctx)
}

// Stop ends the watch and releases the fsnotify handle.
func (w *Watcher) Stop() error {
	w.stopOnce.Do(func() { close(w.stopChan) })
	select {
	case <-w.doneChan:
	case <-time.After(time.Second):
	}
	return w.watcher.Close()
}

func (w *Watcher) loop(ctx context.Context) {
	defer close(w.doneChan)
	for {
		select {
		case <-ctx.Done():
			return
		case <-w.stopChan:
			return
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) != 0 {
				w.reload()
			}
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.reportError(fmt.Errorf("config watch: %w", err))
		}
	}
}

func (w *Watcher) reload() {
	w.mu.Lock()
	if time.Since(w.lastReload) < w.cooldown {
		w.mu.Unlock()
		return
	}
	w.lastReload = time.Now()
	w.mu.Unlock()

	cfg, err := LoadWithEnvOverrides(w.path)
	if err != nil {
		// The running config stays in effect until a valid file shows up.
		w.reportError(fmt.Errorf("config reload rejected: %w", err))
		return
	}
	w.onUpdate(cfg)
}

func (w *Watcher) reportError(err error) {
	if w.onError != nil {
		w.onError(err)
	}
}
