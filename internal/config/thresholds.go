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

	"github.com/iamgideonidoko/sentinel/pkg/logger"
	"github.com/iamgideonidoko/sentinel/pkg/risk"
)

// thresholdsFile is the on-disk layout:
//
//	[thresholds]
//	low = 0.3
//	medium = 0.6
//	high = 0.8
//	critical = 0.9
type thresholdsFile struct {
	Thresholds risk.Thresholds `toml:"thresholds"`
}

// LoadThresholdsFile reads thresholds from a TOML file. Keys missing from the
// file keep their value from base.
func LoadThresholdsFile(path string, base risk.Thresholds) (risk.Thresholds, error) {
	file := thresholdsFile{Thresholds: base}
	if _, err := toml.DecodeFile(path, &file); err != nil {
		return base, fmt.Errorf("failed to decode thresholds file: %w", err)
	}
	if err := file.Thresholds.Validate(); err != nil {
		return base, err
	}
	return file.Thresholds, nil
}

// SaveThresholdsFile writes thresholds atomically via a temp file and rename.
func SaveThresholdsFile(path string, t risk.Thresholds) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), ".thresholds-*.toml")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if err := toml.NewEncoder(tmp).Encode(thresholdsFile{Thresholds: t}); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to encode thresholds: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}

type ThresholdSetter interface {
	Get() risk.Thresholds
	Set(risk.Thresholds) error
}

// ThresholdsWatcher reloads the thresholds file into a store whenever it changes.
// Invalid files are logged and ignored, leaving the previous thresholds active.
type ThresholdsWatcher struct {
	path     string
	store    ThresholdSetter
	watcher  *fsnotify.Watcher
	debounce time.Duration
	reloaded chan risk.Thresholds
	wg       sync.WaitGroup
}

func NewThresholdsWatcher(path string, store ThresholdSetter, debounce time.Duration) (*ThresholdsWatcher, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, err
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create watcher: %w", err)
	}

	// Watch the directory so editors that replace the file are still seen.
	if err := watcher.Add(filepath.Dir(abs)); err != nil {
		watcher.Close()
		return nil, fmt.Errorf("failed to watch %s: %w", filepath.Dir(abs), err)
	}

	return &ThresholdsWatcher{
		path:     abs,
		store:    store,
		watcher:  watcher,
		debounce: debounce,
		reloaded: make(chan risk.Thresholds, 1),
	}, nil
}

// Reloaded delivers thresholds after each successful reload. Slow readers miss
// intermediate values.
func (w *ThresholdsWatcher) Reloaded() <-chan risk.Thresholds {
	return w.reloaded
}

// Reload applies the current file contents to the store.
func (w *ThresholdsWatcher) Reload() error {
	t, err := LoadThresholdsFile(w.path, w.store.Get())
	if err != nil {
		return err
	}
	if err := w.store.Set(t); err != nil {
		return err
	}

	select {
	case w.reloaded <- t:
	default:
	}
	return nil
}

// Start processes file events until ctx is cancelled.
func (w *ThresholdsWatcher) Start(ctx context.Context) {
	w.wg.Add(1)
	go w.run(ctx)
}

func (w *ThresholdsWatcher) run(ctx context.Context) {
	defer w.wg.Done()

	var timer *time.Timer
	var fire <-chan time.Time

	for {
		select {
		case <-ctx.Done():
			if timer != nil {
				timer.Stop()
			}
			return

		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != w.path {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Rename) {
				continue
			}
			if timer == nil {
				timer = time.NewTimer(w.debounce)
			} else {
				timer.Reset(w.debounce)
			}
			fire = timer.C

		case <-fire:
			fire = nil
			if err := w.Reload(); err != nil {
				logger.Warn("Ignoring thresholds file change", map[string]any{
					"path":  w.path,
					"error": err.Error(),
				})
				continue
			}

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			logger.Error("Thresholds watcher error", map[string]any{"error": err.Error()})
		}
	}
}

func (w *ThresholdsWatcher) Close() error {
	err := w.watcher.Close()
	w.wg.Wait()
	return err
}
