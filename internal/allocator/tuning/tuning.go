// Package tuning loads BrkAllocator's bump/brk tuning constants from an
// optional on-disk JSON file, and can hot-reload them on change so a
// long-running host process picks up new values without a restart.
//
// A BrkAllocator never has its tuning swapped mid-lifetime (spec.md §5
// keeps the bookkeeper single-threaded and non-reentrant); the watcher
// is meant for the next allocator instantiation, not for mutating a live
// one.
package tuning

import (
	"encoding/json"
	"fmt"
	"os"
	"sync"

	"github.com/fsnotify/fsnotify"

	"github.com/orizon-lang/orizon/internal/allocator"
)

// File is the on-disk shape of a tuning override, matching
// cmd/orizon-config's struct-tagged JSON config style.
type File struct {
	InitialCapacity uintptr `json:"initial_capacity"`
	BrkMin          uintptr `json:"brk_min"`
	BrkMultiplier   uintptr `json:"brk_multiplier"`
	BrkMinExtra     uintptr `json:"brk_min_extra"`
}

// Load reads a tuning file, falling back to allocator.DefaultTuning for
// any zero-valued field so a partial override file is legal.
func Load(path string) (allocator.BrkTuning, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return allocator.BrkTuning{}, fmt.Errorf("tuning: failed to read %q: %w", path, err)
	}

	var f File
	if err := json.Unmarshal(data, &f); err != nil {
		return allocator.BrkTuning{}, fmt.Errorf("tuning: failed to parse %q: %w", path, err)
	}

	return merge(f), nil
}

// merge overlays a File's non-zero fields onto the defaults.
func merge(f File) allocator.BrkTuning {
	t := allocator.DefaultTuning()

	if f.InitialCapacity != 0 {
		t.InitialCapacity = f.InitialCapacity
	}

	if f.BrkMin != 0 {
		t.BrkMin = f.BrkMin
	}

	if f.BrkMultiplier != 0 {
		t.BrkMultiplier = f.BrkMultiplier
	}

	if f.BrkMinExtra != 0 {
		t.BrkMinExtra = f.BrkMinExtra
	}

	return t
}

// Watcher watches a tuning file and keeps a BrkTuning value current,
// reloading whenever the file is written. Callers read Current() when
// constructing the next BrkAllocator; it does not reach into any
// allocator already running.
type Watcher struct {
	mu      sync.RWMutex
	current allocator.BrkTuning
	path    string
	watcher *fsnotify.Watcher
}

// NewWatcher loads path once and starts watching it for further writes.
func NewWatcher(path string) (*Watcher, error) {
	initial, err := Load(path)
	if err != nil {
		return nil, err
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("tuning: failed to start watcher: %w", err)
	}

	if err := fsw.Add(path); err != nil {
		fsw.Close()

		return nil, fmt.Errorf("tuning: failed to watch %q: %w", path, err)
	}

	w := &Watcher{
		current: initial,
		path:    path,
		watcher: fsw,
	}

	go w.run()

	return w, nil
}

// run drains the fsnotify event stream until Close is called.
func (w *Watcher) run() {
	for {
		select {
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}

			if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}

			t, err := Load(w.path)
			if err != nil {
				fmt.Fprintf(os.Stderr, "tuning: reload of %s failed: %v\n", w.path, err)

				continue
			}

			w.mu.Lock()
			w.current = t
			w.mu.Unlock()
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}

			fmt.Fprintf(os.Stderr, "tuning: watcher error on %s: %v\n", w.path, err)
		}
	}
}

// Current returns the most recently loaded tuning.
func (w *Watcher) Current() allocator.BrkTuning {
	w.mu.RLock()
	defer w.mu.RUnlock()

	return w.current
}

// Close stops watching the file.
func (w *Watcher) Close() error {
	return w.watcher.Close()
}
