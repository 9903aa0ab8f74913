package audio

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// Progress is a point-in-time snapshot of an active stream.
type Progress struct {
	StreamID string
	Kind     Kind
	State    State
	Target   string
	Bytes    int64
	Elapsed  time.Duration
}

// Watcher polls a Manager and reports the progress of its active streams.
type Watcher struct {
	mu      sync.RWMutex
	logger  *slog.Logger
	manager *Manager

	// Polling interval
	pollInterval time.Duration

	onProgress func(Progress)

	// Control channels
	stopCh chan struct{}
	doneCh chan struct{}

	running bool
}

// NewWatcher creates a progress watcher for m.
func NewWatcher(m *Manager, logger *slog.Logger) *Watcher {
	if logger == nil {
		logger = slog.Default()
	}

	return &Watcher{
		logger:       logger,
		manager:      m,
		pollInterval: 500 * time.Millisecond,
		stopCh:       make(chan struct{}),
		doneCh:       make(chan struct{}),
	}
}

// SetPollInterval sets how often progress is sampled.
func (w *Watcher) SetPollInterval(interval time.Duration) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.pollInterval = interval
}

// SetProgressCallback sets the function receiving progress snapshots.
func (w *Watcher) SetProgressCallback(cb func(Progress)) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.onProgress = cb
}

// Start begins polling.
func (w *Watcher) Start(ctx context.Context) error {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return nil
	}
	w.running = true
	w.stopCh = make(chan struct{})
	w.doneCh = make(chan struct{})
	interval := w.pollInterval
	w.mu.Unlock()

	go w.watchLoop(ctx, interval)

	w.logger.Debug("progress watcher started", "interval", interval)
	return nil
}

// Stop stops polling and waits for the loop to exit.
func (w *Watcher) Stop() {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return
	}
	w.running = false
	close(w.stopCh)
	w.mu.Unlock()

	<-w.doneCh
	w.logger.Debug("progress watcher stopped")
}

// IsRunning returns whether the watcher is currently running.
func (w *Watcher) IsRunning() bool {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.running
}

func (w *Watcher) watchLoop(ctx context.Context, interval time.Duration) {
	defer close(w.doneCh)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-w.stopCh:
			return
		case <-ticker.C:
			w.report()
		}
	}
}

// report samples the active streams and invokes the callback for each.
func (w *Watcher) report() {
	w.mu.RLock()
	cb := w.onProgress
	w.mu.RUnlock()

	if cb == nil {
		return
	}

	for _, s := range []*Stream{w.manager.Playback(), w.manager.Recording()} {
		if s == nil {
			continue
		}
		cb(Progress{
			StreamID: s.ID(),
			Kind:     s.Kind(),
			State:    s.State(),
			Target:   s.Target(),
			Bytes:    s.Bytes(),
			Elapsed:  s.Elapsed(),
		})
	}
}
