// Package tempfiles tracks rendered output files so orphaned artifacts
// can be garbage-collected even when a session is abandoned. The
// registry is an explicitly constructed instance passed to its users,
// not ambient global state.
package tempfiles

import (
	"log/slog"
	"os"
	"sort"
	"sync"
)

// Registry is a concurrent set of file paths pending cleanup. It is
// safe for registration from the orchestrator and the pipeline without
// any session-level lock.
type Registry struct {
	mu     sync.Mutex
	paths  map[string]struct{}
	logger *slog.Logger
}

func NewRegistry(logger *slog.Logger) *Registry {
	return &Registry{
		paths:  make(map[string]struct{}),
		logger: logger,
	}
}

// Register adds a path to the cleanup set. Registering the same path
// twice is a no-op.
func (r *Registry) Register(path string) {
	if path == "" {
		return
	}
	r.mu.Lock()
	r.paths[path] = struct{}{}
	r.mu.Unlock()
}

// Release stops tracking a path without deleting the file. Used when a
// render is promoted to a kept artifact.
func (r *Registry) Release(path string) {
	r.mu.Lock()
	delete(r.paths, path)
	r.mu.Unlock()
}

// Remove deletes the file and stops tracking it. A missing file is not
// an error.
func (r *Registry) Remove(path string) error {
	r.mu.Lock()
	delete(r.paths, path)
	r.mu.Unlock()

	err := os.Remove(path)
	if err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

// Sweep deletes every tracked file and returns how many were removed.
func (r *Registry) Sweep() int {
	r.mu.Lock()
	paths := make([]string, 0, len(r.paths))
	for p := range r.paths {
		paths = append(paths, p)
	}
	r.paths = make(map[string]struct{})
	r.mu.Unlock()

	removed := 0
	for _, p := range paths {
		err := os.Remove(p)
		switch {
		case err == nil:
			removed++
		case os.IsNotExist(err):
			// already gone
		default:
			if r.logger != nil {
				r.logger.Warn("failed to remove tracked file", "path", p, "error", err)
			}
		}
	}

	if r.logger != nil && removed > 0 {
		r.logger.Info("swept temporary files", "removed", removed)
	}
	return removed
}

// Tracked returns the currently tracked paths, sorted.
func (r *Registry) Tracked() []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	paths := make([]string, 0, len(r.paths))
	for p := range r.paths {
		paths = append(paths, p)
	}
	sort.Strings(paths)
	return paths
}
