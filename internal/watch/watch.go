// Package watch publishes restart commands on the control channel when
// files under the configured paths change. It runs inside the
// supervisor as a durable worker, so restart dispatch never touches it.
package watch

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/Paintersrp/warden/internal/control"
	"github.com/Paintersrp/warden/internal/events"
)

const defaultDebounce = 300 * time.Millisecond

// Config describes what to watch and where to publish.
type Config struct {
	Paths     []string
	Debounce  time.Duration
	Publisher control.Publisher
	Events    chan<- events.Event
}

// Watcher observes the filesystem and emits restart orders addressed to
// all transient workers, with the changed files as payload.
type Watcher struct {
	cfg Config
}

// New validates the configuration and constructs a watcher.
func New(cfg Config) (*Watcher, error) {
	if len(cfg.Paths) == 0 {
		return nil, fmt.Errorf("watch: at least one path is required")
	}
	if cfg.Publisher == nil {
		return nil, fmt.Errorf("watch: publisher is required")
	}
	if cfg.Debounce <= 0 {
		cfg.Debounce = defaultDebounce
	}
	return &Watcher{cfg: cfg}, nil
}

// Run watches until the context is cancelled. Changes arriving within
// the debounce window are coalesced into a single restart order.
func (w *Watcher) Run(ctx context.Context) error {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("watch: %w", err)
	}
	defer fsw.Close()

	for _, path := range w.cfg.Paths {
		if err := addRecursive(fsw, path); err != nil {
			return err
		}
	}

	changed := make(map[string]struct{})
	var flush <-chan time.Time

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-fsw.Events:
			if !ok {
				return nil
			}
			if ev.Op.Has(fsnotify.Create) {
				if info, err := os.Stat(ev.Name); err == nil && info.IsDir() {
					_ = addRecursive(fsw, ev.Name)
				}
			}
			if !ev.Op.Has(fsnotify.Write) && !ev.Op.Has(fsnotify.Create) &&
				!ev.Op.Has(fsnotify.Remove) && !ev.Op.Has(fsnotify.Rename) {
				continue
			}
			changed[ev.Name] = struct{}{}
			if flush == nil {
				flush = time.After(w.cfg.Debounce)
			}
		case err, ok := <-fsw.Errors:
			if !ok {
				return nil
			}
			events.Send(w.cfg.Events, "Reloader", events.TypeError, "watch error", err)
		case <-flush:
			w.publish(changed)
			changed = make(map[string]struct{})
			flush = nil
		}
	}
}

func (w *Watcher) publish(changed map[string]struct{}) {
	if len(changed) == 0 {
		return
	}
	files := make([]string, 0, len(changed))
	for f := range changed {
		files = append(files, f)
	}
	sort.Strings(files)
	msg := control.MessageAllProcesses + ":" + strings.Join(files, ",")
	if err := w.cfg.Publisher.Publish(msg); err != nil {
		events.Send(w.cfg.Events, "Reloader", events.TypeError, "publish restart order", err)
		return
	}
	events.Send(w.cfg.Events, "Reloader", events.TypeLog,
		fmt.Sprintf("detected changes in %d file(s), restarting workers", len(files)), nil)
}

func addRecursive(fsw *fsnotify.Watcher, root string) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return fmt.Errorf("watch %s: %w", path, err)
		}
		if !d.IsDir() {
			return nil
		}
		if name := d.Name(); name != "." && strings.HasPrefix(name, ".") {
			return filepath.SkipDir
		}
		if err := fsw.Add(path); err != nil {
			return fmt.Errorf("watch %s: %w", path, err)
		}
		return nil
	})
}
