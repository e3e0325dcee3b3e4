package kvfs

import (
	"io"
	"os"
)

// Dir is an open directory listing. The names are taken when the directory
// is opened; entries created or removed afterwards are not reflected.
type Dir struct {
	path   string
	names  []string
	pos    int
	closed bool
}

// OpenDir lists the direct children of the named directory: the cache
// entries one level below it and the registered subdirectories. A path that
// is neither a registered directory nor the parent of any entry does not
// exist; the root always does.
func (fs *FileSystem) OpenDir(name string) (*Dir, error) {
	p, err := fs.cleanPath(name)
	if err != nil {
		return nil, &os.PathError{Op: "opendir", Path: name, Err: err}
	}
	dir, err := fs.openDir(p)
	if err != nil {
		return nil, &os.PathError{Op: "opendir", Path: name, Err: err}
	}
	return dir, nil
}

func (fs *FileSystem) openDir(p string) (*Dir, error) {
	names, err := fs.list(p)
	if err != nil {
		return nil, err
	}
	if len(names) == 0 && !fs.dirs.Has(p) {
		return nil, fs.notDirErr(p)
	}
	return &Dir{path: p, names: names}, nil
}

// Path returns the cleaned path of the directory.
func (d *Dir) Path() string {
	return d.path
}

// Read returns the next name in the listing, or io.EOF once every name has
// been returned.
func (d *Dir) Read() (string, error) {
	if d.closed {
		return "", os.ErrClosed
	}
	if d.pos >= len(d.names) {
		return "", io.EOF
	}
	name := d.names[d.pos]
	d.pos++
	return name, nil
}

// Rewind moves back to the first name.
func (d *Dir) Rewind() error {
	if d.closed {
		return os.ErrClosed
	}
	d.pos = 0
	return nil
}

// Close releases the listing.
func (d *Dir) Close() error {
	if d.closed {
		return os.ErrClosed
	}
	d.closed = true
	d.names = nil
	return nil
}

// next returns up to n names that have not been read yet, or all of them
// when n <= 0.
func (d *Dir) next(n int) []string {
	rest := d.names[d.pos:]
	if n > 0 && n < len(rest) {
		rest = rest[:n]
	}
	d.pos += len(rest)
	return rest
}
