package planfile

import (
	"errors"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

// Change is a debounced edit of one plan file. Plan is set when the file
// decoded cleanly; Err is set when it could not be read or decoded. Removed
// files are reported with Removed and neither.
type Change struct {
	Path    string
	Plan    Plan
	Err     error
	Removed bool
}

// Watcher monitors a directory for plan file edits using fsnotify.
type Watcher struct {
	Dir     string
	Changes <-chan Change // Read-only external channel

	changes  chan Change // Internal write channel
	done     chan struct{}
	watcher  *fsnotify.Watcher
	debounce time.Duration
}

// NewWatcher creates a watcher for dir. Edits to the same file within
// debounce of each other are reported once.
func NewWatcher(dir string, debounce time.Duration) (*Watcher, error) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if debounce <= 0 {
		debounce = 100 * time.Millisecond
	}

	ch := make(chan Change, 16)
	return &Watcher{
		Dir:      dir,
		Changes:  ch,
		changes:  ch,
		done:     make(chan struct{}),
		watcher:  fw,
		debounce: debounce,
	}, nil
}

// Start begins watching the directory.
func (w *Watcher) Start() error {
	if err := w.watcher.Add(w.Dir); err != nil {
		w.watcher.Close()
		return err
	}
	go w.loop()
	return nil
}

// Stop closes the watcher and the Changes channel.
func (w *Watcher) Stop() {
	w.watcher.Close()
	<-w.done // Wait for loop to exit
	close(w.changes)
}

// Scan loads every plan file currently in the directory, in name order.
func (w *Watcher) Scan() []Change {
	entries, err := os.ReadDir(w.Dir)
	if err != nil {
		return []Change{{Path: w.Dir, Err: err}}
	}
	var out []Change
	for _, e := range entries {
		path := filepath.Join(w.Dir, e.Name())
		if e.IsDir() || !isPlanFile(path) {
			continue
		}
		out = append(out, load(path))
	}
	return out
}

func (w *Watcher) loop() {
	defer close(w.done)

	// Debounce: track last event time per file.
	pending := make(map[string]time.Time)
	tick := w.debounce / 2
	if tick <= 0 {
		tick = w.debounce
	}
	ticker := time.NewTicker(tick)
	defer ticker.Stop()

	for {
		select {
		case event, ok := <-w.watcher.Events:
			if !ok {
				// Drain pending on close.
				for file := range pending {
					w.changes <- load(file)
				}
				return
			}
			if !isPlanFile(event.Name) {
				continue
			}
			if event.Has(fsnotify.Write) || event.Has(fsnotify.Create) ||
				event.Has(fsnotify.Remove) || event.Has(fsnotify.Rename) {
				pending[event.Name] = time.Now()
			}

		case <-ticker.C:
			now := time.Now()
			for file, t := range pending {
				if now.Sub(t) >= w.debounce {
					w.changes <- load(file)
					delete(pending, file)
				}
			}

		case _, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			// Watch errors are non-fatal; the next event retries.
		}
	}
}

func isPlanFile(path string) bool {
	if _, err := FormatOf(path); err != nil {
		return false
	}
	base := filepath.Base(path)
	// Editor swap and hidden files.
	return base[0] != '.' && base[0] != '~'
}

func load(path string) Change {
	plan, err := Load(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return Change{Path: path, Removed: true}
		}
		return Change{Path: path, Err: err}
	}
	return Change{Path: path, Plan: plan}
}
