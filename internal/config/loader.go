package config

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/fsnotify/fsnotify"
)

// DefaultConfigDir is the well-known directory scanned for per-device
// configuration files.
const DefaultConfigDir = "/etc/iptsd"

// LoadForDevice scans every regular file directly inside dir, decoding
// each as TOML and keeping the first whose [Device] section matches
// vendor/product. If dir doesn't exist, or no file matches, it returns
// Default() rather than an error.
func LoadForDevice(dir string, vendor, product uint16) (*Config, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return Default(), nil
		}
		return nil, fmt.Errorf("config: read dir %s: %w", dir, err)
	}

	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}

		path := filepath.Join(dir, entry.Name())
		cfg := Default()
		if _, err := toml.DecodeFile(path, cfg); err != nil {
			continue
		}

		if cfg.Matches(vendor, product) {
			return cfg, nil
		}
	}

	return Default(), nil
}

// Loader watches the config directory for changes and, on each change,
// re-resolves the config for its (vendor, product) pair through
// LoadForDevice, invoking registered callbacks with the reloaded
// Config: a debounced fsnotify directory watch with callback dispatch.
type Loader struct {
	dir     string
	vendor  uint16
	product uint16

	mu     sync.RWMutex
	config *Config

	onChange []func(*Config)

	watcher *fsnotify.Watcher
	ctx     context.Context
	cancel  context.CancelFunc
}

// NewLoader creates a loader that watches dir for changes and keeps
// resolving the config for (vendor, product) on every change.
func NewLoader(dir string, vendor, product uint16) *Loader {
	ctx, cancel := context.WithCancel(context.Background())
	return &Loader{
		dir:     dir,
		vendor:  vendor,
		product: product,
		ctx:     ctx,
		cancel:  cancel,
	}
}

// Load resolves and validates the current configuration.
func (l *Loader) Load() (*Config, error) {
	cfg, err := LoadForDevice(l.dir, l.vendor, l.product)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	l.mu.Lock()
	l.config = cfg
	l.mu.Unlock()
	return cfg, nil
}

// Config returns the most recently loaded configuration.
func (l *Loader) Config() *Config {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.config
}

// OnChange registers a callback invoked after a successful reload.
func (l *Loader) OnChange(fn func(*Config)) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.onChange = append(l.onChange, fn)
}

// Watch starts watching the config directory; on a write or create event it
// debounces briefly, then reloads and fires OnChange callbacks. Reload
// errors are swallowed (the previous, already-validated Config stays
// in effect) since a half-written file is a transient condition, not a
// fatal one.
func (l *Loader) Watch() error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("config: create watcher: %w", err)
	}
	if err := watcher.Add(l.dir); err != nil {
		watcher.Close()
		return fmt.Errorf("config: watch dir %s: %w", l.dir, err)
	}
	l.watcher = watcher

	go l.watchLoop()
	return nil
}

func (l *Loader) watchLoop() {
	var timer *time.Timer
	const debounce = 100 * time.Millisecond

	for {
		select {
		case <-l.ctx.Done():
			return
		case event, ok := <-l.watcher.Events:
			if !ok {
				return
			}
			if !(event.Has(fsnotify.Write) || event.Has(fsnotify.Create)) {
				continue
			}
			if timer != nil {
				timer.Stop()
			}
			timer = time.AfterFunc(debounce, func() { l.reload() })
		case _, ok := <-l.watcher.Errors:
			if !ok {
				return
			}
		}
	}
}

func (l *Loader) reload() {
	cfg, err := l.Load()
	if err != nil {
		return
	}

	l.mu.RLock()
	callbacks := append([]func(*Config){}, l.onChange...)
	l.mu.RUnlock()

	for _, fn := range callbacks {
		fn(cfg)
	}
}

// Close stops watching and releases the underlying fsnotify watcher.
func (l *Loader) Close() error {
	l.cancel()
	if l.watcher != nil {
		return l.watcher.Close()
	}
	return nil
}
