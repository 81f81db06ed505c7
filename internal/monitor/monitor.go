// Package monitor watches a drop folder for new outgoing documents and
// extracts the supplier key from each filename.
package monitor

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/faizalindrak/mass-email-sender-desktop/internal/model"
)

// SentSubfolder is created inside the watched folder; successfully
// dispatched files are moved there.
const SentSubfolder = "sent"

// Event is one detected file ready for dispatch.
type Event struct {
	// Path is the absolute path of the detected file.
	Path string

	// Key is the supplier key extracted from the filename.
	Key string
}

// Monitor watches a single folder and emits an Event for every new
// file whose extension is allowed and whose name yields a key.
type Monitor struct {
	folder  string
	pattern *regexp.Regexp
	exts    map[string]bool
	log     *slog.Logger
	events  chan Event
}

// New validates the configuration, compiles the key pattern, and
// ensures the sent/ subfolder exists.
func New(cfg model.MonitorConfig, logger *slog.Logger) (*Monitor, error) {
	info, err := os.Stat(cfg.Folder)
	if err != nil {
		return nil, fmt.Errorf("monitor folder %s: %w", cfg.Folder, err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("monitor folder %s is not a directory", cfg.Folder)
	}

	pattern, err := regexp.Compile(cfg.KeyPattern)
	if err != nil {
		return nil, fmt.Errorf("compiling key pattern %q: %w", cfg.KeyPattern, err)
	}

	if err := os.MkdirAll(filepath.Join(cfg.Folder, SentSubfolder), 0o755); err != nil {
		return nil, fmt.Errorf("creating sent folder: %w", err)
	}

	exts := make(map[string]bool, len(cfg.Extensions))
	for _, ext := range cfg.Extensions {
		exts[strings.ToLower(ext)] = true
	}

	return &Monitor{
		folder:  cfg.Folder,
		pattern: pattern,
		exts:    exts,
		log:     logger,
		events:  make(chan Event, 16),
	}, nil
}

// Events returns the channel of detected files.
func (m *Monitor) Events() <-chan Event {
	return m.events
}

// SentPath returns where a dispatched file should be moved.
func (m *Monitor) SentPath(path string) string {
	return filepath.Join(m.folder, SentSubfolder, filepath.Base(path))
}

// Run watches the folder until ctx is cancelled. Files are emitted
// only once their size has stopped changing, so a writer mid-copy is
// never dispatched.
func (m *Monitor) Run(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("creating watcher: %w", err)
	}
	defer watcher.Close()

	if err := watcher.Add(m.folder); err != nil {
		return fmt.Errorf("watching %s: %w", m.folder, err)
	}

	m.log.Info("monitoring folder", "folder", m.folder)

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if event.Op.Has(fsnotify.Create) || event.Op.Has(fsnotify.Rename) {
				go m.process(ctx, event.Name)
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			m.log.Error("watcher error", "error", err)
		}
	}
}

// process screens a candidate path and emits it once stable.
func (m *Monitor) process(ctx context.Context, path string) {
	name := filepath.Base(path)

	if len(m.exts) > 0 && !m.exts[strings.ToLower(filepath.Ext(name))] {
		m.log.Debug("skipping file with disallowed extension", "name", name)
		return
	}

	key, ok := m.ExtractKey(name)
	if !ok {
		m.log.Warn("no key found in filename", "name", name)
		return
	}

	if !m.waitStable(ctx, path) {
		return
	}

	m.log.Info("file detected", "name", name, "key", key)
	select {
	case m.events <- Event{Path: path, Key: key}:
	case <-ctx.Done():
	}
}

// ExtractKey applies the key pattern to a filename: the first capture
// group if present, else the whole match.
func (m *Monitor) ExtractKey(filename string) (string, bool) {
	match := m.pattern.FindStringSubmatch(filename)
	if match == nil {
		return "", false
	}
	if len(match) > 1 {
		return match[1], true
	}
	return match[0], true
}

// waitStable polls the file size until two consecutive reads agree,
// so partially copied files are not dispatched. Returns false if the
// file vanished or ctx ended first.
func (m *Monitor) waitStable(ctx context.Context, path string) bool {
	var lastSize int64 = -1
	for i := 0; i < 50; i++ {
		select {
		case <-ctx.Done():
			return false
		case <-time.After(100 * time.Millisecond):
		}

		info, err := os.Stat(path)
		if err != nil {
			return false
		}
		if info.Size() == lastSize {
			return true
		}
		lastSize = info.Size()
	}
	m.log.Warn("file never stabilized", "path", path)
	return false
}
