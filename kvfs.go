package kvfs

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path"
	"sort"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/absfs/absfs"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/absfs/kvfs/kv"
)

// DefaultTimeout bounds every cache call unless WithTimeout is used.
const DefaultTimeout = 5 * time.Second

type initState int

const (
	stateNew initState = iota
	stateReady
	stateFailed
)

// FileSystem implements absfs.FileSystem on top of a kv.Store. File contents
// are kept in the store; directories are kept in memory by the FileSystem
// itself.
type FileSystem struct {
	store   kv.Store
	scheme  string
	timeout time.Duration
	dirs    *dirRegistry
	mux     *Mux
	log     logrus.FieldLogger

	mu      sync.Mutex
	cwd     string
	state   initState
	initErr error
}

var _ absfs.FileSystem = (*FileSystem)(nil)

// Option configures a FileSystem.
type Option func(*FileSystem)

// WithScheme sets the scheme of the URLs the file system answers to, and the
// prefix of its cache keys.
func WithScheme(scheme string) Option {
	return func(fs *FileSystem) {
		fs.scheme = scheme
	}
}

// WithTimeout bounds each call to the cache.
func WithTimeout(d time.Duration) Option {
	return func(fs *FileSystem) {
		if d > 0 {
			fs.timeout = d
		}
	}
}

// WithLogger sets the logger. By default nothing is logged.
func WithLogger(l logrus.FieldLogger) Option {
	return func(fs *FileSystem) {
		if l != nil {
			fs.log = l
		}
	}
}

// WithMux makes Initialize register the file system in m under its scheme.
func WithMux(m *Mux) Option {
	return func(fs *FileSystem) {
		fs.mux = m
	}
}

// New creates a FileSystem backed by store. A nil store is allowed and makes
// Initialize fail with ErrBackendUnavailable.
func New(store kv.Store, opts ...Option) *FileSystem {
	quiet := logrus.New()
	quiet.SetOutput(io.Discard)

	fs := &FileSystem{
		store:   store,
		scheme:  DefaultScheme,
		timeout: DefaultTimeout,
		dirs:    newDirRegistry(),
		log:     quiet,
		cwd:     "/",
	}
	for _, opt := range opts {
		opt(fs)
	}
	fs.log = fs.log.WithFields(logrus.Fields{
		"scheme":   fs.scheme,
		"instance": uuid.NewString(),
	})
	return fs
}

// Initialize checks that the cache can be reached and, on the first success,
// registers the file system in its Mux. It is safe to call repeatedly: the
// outcome of the first call is kept for the life of the file system, so once
// Initialize has failed every later call, and every operation that needs the
// cache, fails with an error wrapping ErrBackendUnavailable.
func (fs *FileSystem) Initialize() error {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	switch fs.state {
	case stateReady:
		return nil
	case stateFailed:
		return fs.initErr
	}

	err := fs.probe()
	if err == nil && fs.mux != nil {
		err = fs.mux.Register(fs.scheme, fs)
	}
	if err != nil {
		fs.state = stateFailed
		fs.initErr = err
		fs.log.WithField("action", "initialize").WithError(err).Warn("cache file system unavailable")
		return err
	}

	fs.state = stateReady
	fs.log.WithField("action", "initialize").Info("cache file system ready")
	return nil
}

func (fs *FileSystem) probe() error {
	if fs.store == nil {
		return fmt.Errorf("%w: no cache client", ErrBackendUnavailable)
	}
	ctx, cancel := fs.context()
	defer cancel()
	if err := fs.store.Ping(ctx); err != nil {
		return fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}
	return nil
}

// Initialized reports whether Initialize has succeeded.
func (fs *FileSystem) Initialized() bool {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	return fs.state == stateReady
}

func (fs *FileSystem) context() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), fs.timeout)
}

// backend returns the store, or the reason it must not be used.
func (fs *FileSystem) backend() (kv.Store, error) {
	fs.mu.Lock()
	state, err := fs.state, fs.initErr
	fs.mu.Unlock()

	if state == stateFailed {
		return nil, err
	}
	if fs.store == nil {
		return nil, ErrBackendUnavailable
	}
	return fs.store, nil
}

// get loads the entry of the cleaned path p. A missing entry is reported as
// ErrNotFound.
func (fs *FileSystem) get(p string) ([]byte, error) {
	store, err := fs.backend()
	if err != nil {
		return nil, err
	}
	ctx, cancel := fs.context()
	defer cancel()

	data, err := store.Get(ctx, fs.key(p))
	if errors.Is(err, kv.ErrNotFound) {
		return nil, ErrNotFound
	}
	return data, err
}

func (fs *FileSystem) set(p string, data []byte) error {
	store, err := fs.backend()
	if err != nil {
		return err
	}
	ctx, cancel := fs.context()
	defer cancel()
	return store.Set(ctx, fs.key(p), data)
}

// setFile is set for regular files: it fails with syscall.EISDIR when p is
// a directory, including one created while the value is being stored.
func (fs *FileSystem) setFile(p string, data []byte) error {
	return fs.dirs.Write(p, func() error {
		return fs.set(p, data)
	})
}

func (fs *FileSystem) del(key string) error {
	store, err := fs.backend()
	if err != nil {
		return err
	}
	ctx, cancel := fs.context()
	defer cancel()
	return store.Delete(ctx, key)
}

func (fs *FileSystem) exists(p string) (bool, error) {
	store, err := fs.backend()
	if err != nil {
		return false, err
	}
	ctx, cancel := fs.context()
	defer cancel()
	return store.Exists(ctx, fs.key(p))
}

func (fs *FileSystem) keys(prefix string) ([]string, error) {
	store, err := fs.backend()
	if err != nil {
		return nil, err
	}
	ctx, cancel := fs.context()
	defer cancel()
	return store.Keys(ctx, prefix)
}

// list returns the sorted names of the direct children of the directory p:
// the entries whose key has no further separator after the directory prefix,
// and the registered directories whose parent is p.
func (fs *FileSystem) list(p string) ([]string, error) {
	prefix := fs.childPrefix(p)
	keys, err := fs.keys(prefix)
	if err != nil {
		return nil, err
	}

	seen := make(map[string]struct{})
	for _, k := range keys {
		name := k[len(prefix):]
		if name == "" || strings.Contains(name, "/") {
			continue
		}
		seen[name] = struct{}{}
	}
	for _, name := range fs.dirs.Children(p) {
		seen[name] = struct{}{}
	}

	names := make([]string, 0, len(seen))
	for name := range seen {
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}

// Cwd returns the directory relative paths are resolved against.
func (fs *FileSystem) Cwd() string {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	return fs.cwd
}

// Chdir changes the current directory. The target must be a registered
// directory.
func (fs *FileSystem) Chdir(name string) error {
	p, err := fs.cleanPath(name)
	if err != nil {
		return &os.PathError{Op: "chdir", Path: name, Err: err}
	}
	if !fs.dirs.Has(p) {
		return &os.PathError{Op: "chdir", Path: name, Err: fs.notDirErr(p)}
	}
	fs.mu.Lock()
	fs.cwd = p
	fs.mu.Unlock()
	return nil
}

// Getwd returns the current working directory, the error value is always `nil`.
func (fs *FileSystem) Getwd() (dir string, err error) {
	return fs.Cwd(), nil
}

// TempDir returns "/tmp". The directory is not created.
func (fs *FileSystem) TempDir() string {
	return "/tmp"
}

// notDirErr explains why the unregistered path p is not a directory.
func (fs *FileSystem) notDirErr(p string) error {
	ok, err := fs.exists(p)
	if err != nil {
		return err
	}
	if ok {
		return syscall.ENOTDIR
	}
	return ErrNotFound
}

// Stat returns a FileInfo describing the named file or directory. If there is
// an error, it will be of type *os.PathError.
func (fs *FileSystem) Stat(name string) (os.FileInfo, error) {
	p, err := fs.cleanPath(name)
	if err == nil {
		var info os.FileInfo
		info, err = fs.stat(p)
		if err == nil {
			return info, nil
		}
	}
	return nil, &os.PathError{Op: "stat", Path: name, Err: err}
}

func (fs *FileSystem) stat(p string) (os.FileInfo, error) {
	if fs.dirs.Has(p) {
		return &fileInfo{path.Base(p), newStat(KindDir, 0)}, nil
	}
	data, err := fs.get(p)
	if err != nil {
		return nil, err
	}
	return &fileInfo{path.Base(p), newStat(KindFile, int64(len(data)))}, nil
}

// Open is a convenience function that opens a file in read only mode.
func (fs *FileSystem) Open(name string) (absfs.File, error) {
	return fs.OpenFile(name, os.O_RDONLY, 0)
}

// Create opens a file for reading and writing, discarding its previous
// contents when it is first flushed.
func (fs *FileSystem) Create(name string) (absfs.File, error) {
	return fs.OpenFile(name, os.O_CREATE|os.O_RDWR|os.O_TRUNC, 0666)
}

// OpenFile opens the named file with the given flags. perm is ignored. If
// there is an error, it will be of type *os.PathError.
//
// Flags select one of three behaviours:
//
//   - O_TRUNC starts from an empty buffer without reading the cache; the
//     stored value is replaced only when the file is flushed or closed.
//   - O_APPEND loads the current value, if any, and positions the file at
//     its end.
//   - otherwise the current value is loaded and the file is positioned at
//     the start. A missing value is an error unless O_CREATE is given.
//
// Directories can be opened read only to list them.
func (fs *FileSystem) OpenFile(name string, flag int, perm os.FileMode) (absfs.File, error) {
	f, err := fs.openFile(name, flag)
	if err != nil {
		return &absfs.InvalidFile{Path: name}, err
	}
	return f, nil
}

// OpenMode opens the named file with a stream mode such as "r", "wb" or
// "a+"; see ParseMode.
func (fs *FileSystem) OpenMode(name, mode string) (*File, error) {
	flag, err := ParseMode(mode)
	if err != nil {
		return nil, &os.PathError{Op: "open", Path: name, Err: err}
	}
	return fs.openFile(name, flag)
}

func (fs *FileSystem) openFile(name string, flag int) (*File, error) {
	pathErr := &os.PathError{Op: "open", Path: name}

	p, err := fs.cleanPath(name)
	if err != nil {
		pathErr.Err = err
		return nil, pathErr
	}

	access := flag & absfs.O_ACCESS
	truncate := flag&os.O_TRUNC != 0
	exclusive := flag&os.O_CREATE != 0 && flag&os.O_EXCL != 0

	if fs.dirs.Has(p) {
		if access != os.O_RDONLY || truncate || exclusive {
			pathErr.Err = syscall.EISDIR
			return nil, pathErr
		}
		dir, err := fs.openDir(p)
		if err != nil {
			pathErr.Err = err
			return nil, pathErr
		}
		return &File{fs: fs, name: name, path: p, flags: flag, dir: dir}, nil
	}

	if truncate && access == os.O_RDONLY {
		pathErr.Err = ErrInvalidArgument
		return nil, pathErr
	}

	f := &File{fs: fs, name: name, path: p, flags: flag}
	if truncate {
		// the cache is left untouched until the first flush
		if exclusive {
			ok, err := fs.exists(p)
			if err != nil {
				pathErr.Err = err
				return nil, pathErr
			}
			if ok {
				pathErr.Err = os.ErrExist
				return nil, pathErr
			}
		}
		return f, nil
	}

	data, err := fs.get(p)
	switch {
	case err == nil:
		if exclusive {
			pathErr.Err = os.ErrExist
			return nil, pathErr
		}
		f.data = data
	case errors.Is(err, ErrNotFound) && flag&os.O_CREATE != 0:
	default:
		pathErr.Err = err
		return nil, pathErr
	}

	if flag&os.O_APPEND != 0 {
		f.offset = int64(len(f.data))
	}
	return f, nil
}

// ReadFile reads the named file and returns its contents.
func (fs *FileSystem) ReadFile(name string) ([]byte, error) {
	pathErr := &os.PathError{Op: "readfile", Path: name}
	p, err := fs.cleanPath(name)
	if err != nil {
		pathErr.Err = err
		return nil, pathErr
	}
	if fs.dirs.Has(p) {
		pathErr.Err = syscall.EISDIR
		return nil, pathErr
	}
	data, err := fs.get(p)
	if err != nil {
		pathErr.Err = err
		return nil, pathErr
	}
	return data, nil
}

// WriteFile stores data as the contents of the named file, replacing any
// previous contents. perm is ignored.
func (fs *FileSystem) WriteFile(name string, data []byte, perm os.FileMode) error {
	pathErr := &os.PathError{Op: "writefile", Path: name}
	p, err := fs.cleanPath(name)
	if err != nil {
		pathErr.Err = err
		return pathErr
	}
	if fs.dirs.Has(p) {
		pathErr.Err = syscall.EISDIR
		return pathErr
	}
	if err := fs.setFile(p, data); err != nil {
		pathErr.Err = err
		return pathErr
	}
	return nil
}

// Truncate changes the size of the named file, padding it with zeros when
// it grows. If there is an error, it will be of type *os.PathError.
func (fs *FileSystem) Truncate(name string, size int64) error {
	pathErr := &os.PathError{Op: "truncate", Path: name}
	p, err := fs.cleanPath(name)
	if err != nil {
		pathErr.Err = err
		return pathErr
	}
	if size < 0 {
		pathErr.Err = ErrInvalidArgument
		return pathErr
	}
	if fs.dirs.Has(p) {
		pathErr.Err = syscall.EISDIR
		return pathErr
	}
	data, err := fs.get(p)
	if err != nil {
		pathErr.Err = err
		return pathErr
	}
	if err := fs.setFile(p, resize(data, size)); err != nil {
		pathErr.Err = err
		return pathErr
	}
	return nil
}

// resize returns data cut or zero padded to size bytes.
func resize(data []byte, size int64) []byte {
	if int64(len(data)) >= size {
		return data[:size]
	}
	grown := make([]byte, size)
	copy(grown, data)
	return grown
}

// Mkdir creates the named directory. Its parent must already exist. Creating
// a directory that already exists is not an error. perm is ignored.
func (fs *FileSystem) Mkdir(name string, perm os.FileMode) error {
	return fs.MkdirMode(name, false)
}

// MkdirAll creates the named directory along with any missing parents.
// perm is ignored.
func (fs *FileSystem) MkdirAll(name string, perm os.FileMode) error {
	return fs.MkdirMode(name, true)
}

// MkdirMode creates the named directory. If the parent is missing, MkdirMode
// fails with ErrNotFound unless recursive is set, in which case every missing
// ancestor is created too. A file in the way fails with os.ErrExist at the
// named path and with syscall.ENOTDIR at an ancestor. If there is an error,
// it will be of type *os.PathError.
func (fs *FileSystem) MkdirMode(name string, recursive bool) error {
	pathErr := &os.PathError{Op: "mkdir", Path: name}
	p, err := fs.cleanPath(name)
	if err != nil {
		pathErr.Err = err
		return pathErr
	}
	if at, err := fs.dirs.Mkdir(p, recursive, fs.exists); err != nil {
		pathErr.Err = err
		if at != p {
			pathErr.Path = at
		}
		return pathErr
	}
	fs.log.WithFields(logrus.Fields{"action": "mkdir", "path": p}).Debug("directory created")
	return nil
}

// Rmdir removes the named directory, which must be empty. The root can not
// be removed. If there is an error, it will be of type *os.PathError.
func (fs *FileSystem) Rmdir(name string) error {
	return fs.rmdir("rmdir", name)
}

func (fs *FileSystem) rmdir(op, name string) error {
	pathErr := &os.PathError{Op: op, Path: name}
	p, err := fs.cleanPath(name)
	if err != nil {
		pathErr.Err = err
		return pathErr
	}
	if p == "/" {
		pathErr.Err = os.ErrPermission
		return pathErr
	}
	if !fs.dirs.Has(p) {
		pathErr.Err = fs.notDirErr(p)
		return pathErr
	}

	names, err := fs.list(p)
	if err != nil {
		pathErr.Err = err
		return pathErr
	}
	if len(names) > 0 {
		pathErr.Err = ErrNotEmpty
		return pathErr
	}

	fs.dirs.Remove(p)
	fs.log.WithFields(logrus.Fields{"action": "rmdir", "path": p}).Debug("directory removed")
	return nil
}

// Unlink deletes the named file. If there is an error, it will be of type
// *os.PathError.
func (fs *FileSystem) Unlink(name string) error {
	return fs.unlink("unlink", name)
}

func (fs *FileSystem) unlink(op, name string) error {
	pathErr := &os.PathError{Op: op, Path: name}
	p, err := fs.cleanPath(name)
	if err != nil {
		pathErr.Err = err
		return pathErr
	}
	if fs.dirs.Has(p) {
		pathErr.Err = syscall.EISDIR
		return pathErr
	}

	ok, err := fs.exists(p)
	if err != nil {
		pathErr.Err = err
		return pathErr
	}
	if !ok {
		pathErr.Err = ErrNotFound
		return pathErr
	}
	if err := fs.del(fs.key(p)); err != nil {
		pathErr.Err = err
		return pathErr
	}
	fs.log.WithFields(logrus.Fields{"action": "unlink", "path": p}).Debug("file removed")
	return nil
}

// Remove removes the named file or (empty) directory. If there is an error,
// it will be of type *os.PathError.
func (fs *FileSystem) Remove(name string) error {
	p, err := fs.cleanPath(name)
	if err != nil {
		return &os.PathError{Op: "remove", Path: name, Err: err}
	}
	if fs.dirs.Has(p) {
		return fs.rmdir("remove", name)
	}
	return fs.unlink("remove", name)
}

// RemoveAll removes path and any children it contains, both cache entries
// and registered directories. It removes everything it can but returns the
// first error it encounters. If the path does not exist, RemoveAll returns
// nil (no error). Removing "/" empties the file system.
func (fs *FileSystem) RemoveAll(name string) error {
	pathErr := &os.PathError{Op: "removeall", Path: name}
	p, err := fs.cleanPath(name)
	if err != nil {
		pathErr.Err = err
		return pathErr
	}

	keys, err := fs.keys(fs.childPrefix(p))
	if err != nil {
		pathErr.Err = err
		return pathErr
	}
	if p != "/" {
		keys = append(keys, fs.key(p))
	}

	var first error
	for _, k := range keys {
		if err := fs.del(k); err != nil && first == nil {
			first = err
		}
	}
	for _, d := range fs.dirs.Below(p) {
		fs.dirs.Remove(d)
	}
	if first != nil {
		pathErr.Err = first
		return pathErr
	}
	return nil
}

// Rename moves the file at oldpath to newpath, replacing any file already
// there. Directories can not be renamed. The value is written under the new
// key before the old key is deleted; the two steps are not atomic. If there
// is an error, it will be of type *os.LinkError.
func (fs *FileSystem) Rename(oldpath, newpath string) error {
	linkErr := &os.LinkError{Op: "rename", Old: oldpath, New: newpath}

	src, err := fs.cleanPath(oldpath)
	if err != nil {
		linkErr.Err = err
		return linkErr
	}
	dst, err := fs.cleanPath(newpath)
	if err != nil {
		linkErr.Err = err
		return linkErr
	}
	if fs.dirs.Has(src) {
		linkErr.Err = ErrUnsupported
		return linkErr
	}
	if fs.dirs.Has(dst) {
		linkErr.Err = syscall.EISDIR
		return linkErr
	}

	data, err := fs.get(src)
	if err != nil {
		linkErr.Err = err
		return linkErr
	}
	if src == dst {
		return nil
	}
	if err := fs.setFile(dst, data); err != nil {
		linkErr.Err = err
		return linkErr
	}
	if err := fs.del(fs.key(src)); err != nil {
		linkErr.Err = err
		return linkErr
	}
	fs.log.WithFields(logrus.Fields{"action": "rename", "path": src, "target": dst}).Debug("file renamed")
	return nil
}

// ReadDir reads the named directory and returns a list of directory entries
// sorted by filename.
func (filesystem *FileSystem) ReadDir(name string) ([]fs.DirEntry, error) {
	p, err := filesystem.cleanPath(name)
	if err != nil {
		return nil, &os.PathError{Op: "readdir", Path: name, Err: err}
	}
	dir, err := filesystem.openDir(p)
	if err != nil {
		return nil, &os.PathError{Op: "readdir", Path: name, Err: err}
	}
	infos, err := filesystem.infos(p, dir.names)
	if err != nil {
		return nil, &os.PathError{Op: "readdir", Path: name, Err: err}
	}

	entries := make([]fs.DirEntry, 0, len(infos))
	for _, info := range infos {
		entries = append(entries, fs.FileInfoToDirEntry(info))
	}
	return entries, nil
}

// infos stats the children names of the directory p. Children removed since
// the names were listed are skipped.
func (fs *FileSystem) infos(p string, names []string) ([]os.FileInfo, error) {
	infos := make([]os.FileInfo, 0, len(names))
	for _, name := range names {
		info, err := fs.stat(path.Join(p, name))
		if errors.Is(err, ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		infos = append(infos, info)
	}
	return infos, nil
}

// Sub returns an fs.FS corresponding to the subtree rooted at dir.
func (filesystem *FileSystem) Sub(dir string) (fs.FS, error) {
	p, err := filesystem.cleanPath(dir)
	if err != nil {
		return nil, &os.PathError{Op: "sub", Path: dir, Err: err}
	}
	return absfs.FilerToFS(filesystem, p)
}

// Chmod is accepted for existing paths and has no effect: the cache keeps no
// permissions.
func (fs *FileSystem) Chmod(name string, mode os.FileMode) error {
	return fs.touch("chmod", name)
}

// Chtimes is accepted for existing paths and has no effect: the cache keeps
// no timestamps.
func (fs *FileSystem) Chtimes(name string, atime time.Time, mtime time.Time) error {
	return fs.touch("chtimes", name)
}

// Chown is accepted for existing paths and has no effect: the cache keeps no
// ownership.
func (fs *FileSystem) Chown(name string, uid, gid int) error {
	return fs.touch("chown", name)
}

func (fs *FileSystem) touch(op, name string) error {
	p, err := fs.cleanPath(name)
	if err != nil {
		return &os.PathError{Op: op, Path: name, Err: err}
	}
	if fs.dirs.Has(p) {
		return nil
	}
	ok, err := fs.exists(p)
	if err == nil && !ok {
		err = ErrNotFound
	}
	if err != nil {
		return &os.PathError{Op: op, Path: name, Err: err}
	}
	return nil
}
