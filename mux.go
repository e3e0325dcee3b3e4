package kvfs

import (
	"fmt"
	"os"
	"strings"
	"sync"

	"github.com/absfs/absfs"
	"github.com/spf13/afero"
)

// Mux routes names to file systems by scheme. Names of the form
// "scheme://path" whose scheme has been registered are served by the
// registered Filer; every other name is served by the disk file system.
type Mux struct {
	mu     sync.RWMutex
	filers map[string]absfs.Filer
	disk   afero.Fs
}

// NewMux returns a Mux that falls back to disk. A nil disk means the
// operating system's file system.
func NewMux(disk afero.Fs) *Mux {
	if disk == nil {
		disk = afero.NewOsFs()
	}
	return &Mux{
		filers: make(map[string]absfs.Filer),
		disk:   disk,
	}
}

// Register serves scheme with filer. Registering the same filer twice is a
// no-op; registering a different one for a taken scheme fails.
func (m *Mux) Register(scheme string, filer absfs.Filer) error {
	if scheme == "" || filer == nil {
		return ErrInvalidArgument
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	if cur, ok := m.filers[scheme]; ok {
		if cur == filer {
			return nil
		}
		return fmt.Errorf("%s: %w", scheme, errSchemeRegistered)
	}
	m.filers[scheme] = filer
	return nil
}

// Lookup returns the Filer registered for scheme.
func (m *Mux) Lookup(scheme string) (absfs.Filer, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	filer, ok := m.filers[scheme]
	return filer, ok
}

// Disk returns the fallback file system.
func (m *Mux) Disk() afero.Fs {
	return m.disk
}

// resolve returns the Filer serving name and the path to hand it, or a nil
// Filer when name belongs to the disk.
func (m *Mux) resolve(name string) (absfs.Filer, string) {
	scheme, rest, ok := splitScheme(name)
	if !ok {
		return nil, name
	}
	filer, ok := m.Lookup(scheme)
	if !ok {
		return nil, name
	}
	return filer, "/" + strings.TrimLeft(rest, "/")
}

// ReadFile reads the named file from whichever file system serves it.
func (m *Mux) ReadFile(name string) ([]byte, error) {
	if filer, p := m.resolve(name); filer != nil {
		return filer.ReadFile(p)
	}
	return afero.ReadFile(m.disk, name)
}

// Stat describes the named file from whichever file system serves it.
func (m *Mux) Stat(name string) (os.FileInfo, error) {
	if filer, p := m.resolve(name); filer != nil {
		return filer.Stat(p)
	}
	return m.disk.Stat(name)
}

// Exists reports whether Stat succeeds for name.
func (m *Mux) Exists(name string) bool {
	_, err := m.Stat(name)
	return err == nil
}
