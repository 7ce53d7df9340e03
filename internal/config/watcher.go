package config

import (
	"context"
	"crypto/sha256"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"
)

const defaultWatchInterval = 5 * time.Second

// fingerprint identifies one version of the watched file. Stat fields are
// compared first so unchanged files are never read.
type fingerprint struct {
	modTime time.Time
	size    int64
	sum     [sha256.Size]byte
}

func (f fingerprint) sameStat(info os.FileInfo) bool {
	return f.modTime.Equal(info.ModTime()) && f.size == info.Size()
}

// Watcher polls a config file and calls onChange each time its content
// becomes a different valid [Config]. Edits that fail to parse or validate
// are reported once through the error handler and the previous config stays
// current.
type Watcher struct {
	path     string
	interval time.Duration
	onChange func(old, new *Config)
	onError  func(error)

	mu       sync.Mutex
	current  *Config
	applied  fingerprint
	rejected fingerprint

	done     chan struct{}
	stopOnce sync.Once
}

// WatcherOption configures a [Watcher].
type WatcherOption func(*Watcher)

// WithInterval sets the polling interval. The default is 5 seconds.
func WithInterval(d time.Duration) WatcherOption {
	return func(w *Watcher) {
		if d > 0 {
			w.interval = d
		}
	}
}

// WithErrorHandler replaces the default handler, which logs a warning, for
// files that cannot be read or hold an invalid config.
func WithErrorHandler(fn func(error)) WatcherOption {
	return func(w *Watcher) {
		if fn != nil {
			w.onError = fn
		}
	}
}

// NewWatcher loads path once and returns a watcher holding that config.
// Polling starts with [Watcher.Run].
func NewWatcher(path string, onChange func(old, new *Config), opts ...WatcherOption) (*Watcher, error) {
	w := &Watcher{
		path:     path,
		interval: defaultWatchInterval,
		onChange: onChange,
		done:     make(chan struct{}),
		onError: func(err error) {
			slog.Warn("config watcher: keeping previous config", "path", path, "err", err)
		},
	}
	for _, opt := range opts {
		opt(w)
	}

	cfg, fp, err := w.read()
	if err != nil {
		return nil, fmt.Errorf("config: watcher initial load: %w", err)
	}
	w.current, w.applied = cfg, fp
	return w, nil
}

// Current returns the most recently applied config.
func (w *Watcher) Current() *Config {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.current
}

// Stop makes a running [Watcher.Run] return. Safe to call more than once.
func (w *Watcher) Stop() {
	w.stopOnce.Do(func() { close(w.done) })
}

// Run polls every interval until ctx is cancelled or Stop is called.
func (w *Watcher) Run(ctx context.Context) error {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-w.done:
			return nil
		case <-ticker.C:
			w.poll()
		}
	}
}

func (w *Watcher) poll() {
	info, err := os.Stat(w.path)
	if err != nil {
		// Editors that save by rename briefly remove the file.
		slog.Debug("config watcher: stat failed", "path", w.path, "err", err)
		return
	}

	w.mu.Lock()
	unchanged := w.applied.sameStat(info) || w.rejected.sameStat(info)
	w.mu.Unlock()
	if unchanged {
		return
	}

	cfg, fp, err := w.read()
	w.mu.Lock()
	switch {
	case err != nil:
		w.rejected = fp
		w.mu.Unlock()
		w.onError(err)
		return
	case fp.sum == w.applied.sum:
		w.applied = fp
		w.mu.Unlock()
		return
	}
	old := w.current
	w.current, w.applied, w.rejected = cfg, fp, fingerprint{}
	w.mu.Unlock()

	slog.Info("config watcher: configuration reloaded", "path", w.path)
	if w.onChange != nil {
		w.onChange(old, cfg)
	}
}

// read loads and validates the file. The fingerprint is filled whenever the
// file could be read, even if the config is invalid.
func (w *Watcher) read() (*Config, fingerprint, error) {
	info, err := os.Stat(w.path)
	if err != nil {
		return nil, fingerprint{}, err
	}
	data, err := os.ReadFile(w.path)
	if err != nil {
		return nil, fingerprint{}, err
	}
	fp := fingerprint{modTime: info.ModTime(), size: info.Size(), sum: sha256.Sum256(data)}

	cfg, err := loadBytes(data)
	if err != nil {
		return nil, fp, err
	}
	return cfg, fp, nil
}
