// Package tempfile keeps track of local files created while a job runs
package tempfile

import (
	"errors"
	"fmt"
	"os"
	"sync"

	"github.com/UnendingLoop/ImageServer/internal/model"
)

// Tracker records temporary paths of one job run and removes them on PurgeAll.
// It is safe for concurrent use and can be reused after a purge.
type Tracker struct {
	dir   string
	mu    sync.Mutex
	paths []string
	known map[string]bool
}

// New creates a tracker whose Create places files into dir (os.TempDir() if empty).
func New(dir string) *Tracker {
	return &Tracker{dir: dir, known: make(map[string]bool)}
}

// Track adds path to the set. Tracking the same path twice is a no-op.
func (t *Tracker) Track(path string) {
	if path == "" {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.known[path] {
		return
	}
	t.known[path] = true
	t.paths = append(t.paths, path)
}

// Create makes a new empty temp file and tracks it before returning.
func (t *Tracker) Create(pattern string) (*os.File, error) {
	f, err := os.CreateTemp(t.dir, pattern)
	if err != nil {
		return nil, fmt.Errorf("failed to create temp file: %w", err)
	}
	t.Track(f.Name())
	return f, nil
}

// Paths returns a snapshot of tracked paths in tracking order.
func (t *Tracker) Paths() []string {
	t.mu.Lock()
	defer t.mu.Unlock()

	res := make([]string, len(t.paths))
	copy(res, t.paths)
	return res
}

// PurgeAll removes every tracked file and clears the set. A file that is already
// gone is not an error; any other failure is returned as a cleanup warning.
func (t *Tracker) PurgeAll() []error {
	t.mu.Lock()
	paths := t.paths
	t.paths = nil
	t.known = make(map[string]bool)
	t.mu.Unlock()

	var warnings []error
	for _, p := range paths {
		if err := os.Remove(p); err != nil && !errors.Is(err, os.ErrNotExist) {
			warnings = append(warnings, fmt.Errorf("%w: failed to remove %q: %v", model.ErrCleanupWarning, p, err))
		}
	}
	return warnings
}
