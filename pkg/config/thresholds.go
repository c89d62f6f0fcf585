package config

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"
	"gopkg.in/yaml.v3"

	"github.com/dp-govee/S-iot-awsiotlogsv2/pkg/observability"
	"github.com/dp-govee/S-iot-awsiotlogsv2/pkg/report"
)

// thresholdsFile is the YAML layout of the severity ladder file:
//
//	errors:
//	  attention: 1000
//	  warning: 10000
//	  critical: 50000
type thresholdsFile struct {
	Errors report.Thresholds `yaml:"errors"`
}

// LoadThresholds reads the severity ladder from a YAML file. Keys absent from
// the file keep their default values.
func LoadThresholds(path string) (report.Thresholds, error) {
	if path == "" {
		return report.DefaultThresholds(), nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return report.DefaultThresholds(), fmt.Errorf("failed to read thresholds file: %w", err)
	}

	doc := thresholdsFile{Errors: report.DefaultThresholds()}
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return report.DefaultThresholds(), fmt.Errorf("failed to parse thresholds file: %w", err)
	}
	if err := doc.Errors.Validate(); err != nil {
		return report.DefaultThresholds(), fmt.Errorf("invalid thresholds file: %w", err)
	}
	return doc.Errors, nil
}

// ThresholdWatcher serves the current severity ladder and reloads it when the
// backing file changes. An invalid edit keeps the previous ladder.
type ThresholdWatcher struct {
	path   string
	logger *observability.Logger

	mu      sync.RWMutex
	current report.Thresholds
}

// NewThresholdWatcher loads path once. An empty path serves the defaults
func NewThresholdWatcher(path string, logger *observability.Logger) (*ThresholdWatcher, error) {
	t, err := LoadThresholds(path)
	if err != nil {
		return nil, err
	}
	return &ThresholdWatcher{path: path, logger: logger, current: t}, nil
}

// Current returns the active ladder
func (w *ThresholdWatcher) Current() report.Thresholds {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.current
}

// Reload re-reads the file and swaps the ladder if it is valid
func (w *ThresholdWatcher) Reload() error {
	t, err := LoadThresholds(w.path)
	if err != nil {
		return err
	}
	w.mu.Lock()
	w.current = t
	w.mu.Unlock()
	return nil
}

// Run watches the file until ctx is done. The parent directory is watched so
// that editors replacing the file by rename are noticed.
func (w *ThresholdWatcher) Run(ctx context.Context) error {
	if w.path == "" {
		<-ctx.Done()
		return nil
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}
	defer watcher.Close()

	if err := watcher.Add(filepath.Dir(w.path)); err != nil {
		return fmt.Errorf("failed to watch %s: %w", w.path, err)
	}

	target := filepath.Clean(w.path)
	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != target {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			if err := w.Reload(); err != nil {
				w.logger.WithError(err).Warn("Keeping previous severity thresholds")
				continue
			}
			w.logger.WithField("thresholds", w.Current()).Info("Severity thresholds reloaded")
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			w.logger.WithError(err).Warn("Thresholds watcher error")
		}
	}
}
