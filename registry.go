package kvfs

import (
	"os"
	"path"
	"sort"
	"sync"
	"syscall"
)

// dirRegistry records the directories created through a FileSystem. The
// cache has no notion of directories, so this is the only place where an
// empty directory exists. The root is always present and never stored.
type dirRegistry struct {
	mu   sync.RWMutex
	dirs map[string]struct{}
}

func newDirRegistry() *dirRegistry {
	return &dirRegistry{dirs: make(map[string]struct{})}
}

// Has reports whether p is a registered directory.
func (r *dirRegistry) Has(p string) bool {
	if p == "/" {
		return true
	}
	r.mu.RLock()
	_, ok := r.dirs[p]
	r.mu.RUnlock()
	return ok
}

// Mkdir registers p. If the parent of p is not registered, Mkdir fails with
// ErrNotFound unless recursive is set, in which case every missing ancestor
// is registered as well. isFile reports whether the cache holds an entry at
// a path; it is asked, under the registry lock, about p and every ancestor
// about to be registered, so a directory never hides a file. A file at p
// fails with os.ErrExist and a file at an ancestor with syscall.ENOTDIR.
// On failure nothing is registered, and the returned path names the path
// the error is about.
func (r *dirRegistry) Mkdir(p string, recursive bool, isFile func(string) (bool, error)) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	// p first, then each unregistered ancestor up to the first registered one
	var missing []string
	for q := p; !r.has(q); q = path.Dir(q) {
		missing = append(missing, q)
	}
	if len(missing) == 0 {
		return "", nil
	}

	for i, q := range missing {
		if i == 1 && !recursive {
			return q, ErrNotFound
		}
		if isFile == nil {
			continue
		}
		file, err := isFile(q)
		if err != nil {
			return q, err
		}
		if file && i == 0 {
			return q, os.ErrExist
		}
		if file {
			return q, syscall.ENOTDIR
		}
	}

	for _, q := range missing {
		r.dirs[q] = struct{}{}
	}
	return "", nil
}

// Write runs write unless p is a registered directory, in which case it
// fails with syscall.EISDIR. Mkdir waits for write to return.
func (r *dirRegistry) Write(p string, write func() error) error {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if r.has(p) {
		return syscall.EISDIR
	}
	return write()
}

// Remove unregisters p and reports whether it was registered.
func (r *dirRegistry) Remove(p string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.dirs[p]; !ok {
		return false
	}
	delete(r.dirs, p)
	return true
}

// Children returns the names of the registered directories directly below p.
func (r *dirRegistry) Children(p string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var names []string
	for d := range r.dirs {
		if path.Dir(d) == p {
			names = append(names, path.Base(d))
		}
	}
	return names
}

// Below returns every registered directory at or below p, deepest first.
func (r *dirRegistry) Below(p string) []string {
	r.mu.RLock()
	var dirs []string
	for d := range r.dirs {
		if isWithin(d, p) {
			dirs = append(dirs, d)
		}
	}
	r.mu.RUnlock()

	sort.Slice(dirs, func(i, j int) bool {
		if len(dirs[i]) != len(dirs[j]) {
			return len(dirs[i]) > len(dirs[j])
		}
		return dirs[i] < dirs[j]
	})
	return dirs
}

// Len returns the number of registered directories, not counting the root.
func (r *dirRegistry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.dirs)
}

// has must be called with r.mu held.
func (r *dirRegistry) has(p string) bool {
	if p == "/" {
		return true
	}
	_, ok := r.dirs[p]
	return ok
}

// isWithin reports whether p is dir or lies below it.
func isWithin(p, dir string) bool {
	if dir == "/" || p == dir {
		return true
	}
	return len(p) > len(dir) && p[:len(dir)] == dir && p[len(dir)] == '/'
}
