package kvfs

import (
	"io"
	"io/fs"
	"os"
	"path"
	"syscall"

	"github.com/absfs/absfs"
	"github.com/sirupsen/logrus"
)

// File is an open cache entry. The whole value is held in memory while the
// file is open and written back in one piece by Flush, Sync and Close. A
// File is not safe for concurrent use.
//
// A File opened on a directory can only be listed.
type File struct {
	fs     *FileSystem
	name   string
	path   string
	flags  int
	data   []byte
	offset int64
	dir    *Dir
	closed bool
}

var _ absfs.File = (*File)(nil)

func (f *File) Name() string {
	return f.name
}

func (f *File) readable() bool {
	return f.flags&absfs.O_ACCESS != os.O_WRONLY
}

func (f *File) writable() bool {
	return f.flags&absfs.O_ACCESS != os.O_RDONLY
}

// check returns the error an operation on f must fail with, if any.
func (f *File) check(op string, write bool) error {
	var err error
	switch {
	case f.closed:
		err = os.ErrClosed
	case f.dir != nil:
		err = syscall.EISDIR
	case write && !f.writable():
		err = os.ErrPermission
	case !write && !f.readable():
		err = os.ErrPermission
	default:
		return nil
	}
	return &os.PathError{Op: op, Path: f.name, Err: err}
}

func (f *File) Read(b []byte) (n int, err error) {
	if err := f.check("read", false); err != nil {
		return 0, err
	}
	if f.offset >= int64(len(f.data)) {
		return 0, io.EOF
	}
	n = copy(b, f.data[f.offset:])
	f.offset += int64(n)
	return n, nil
}

// ReadAt reads from off without moving the file offset.
func (f *File) ReadAt(b []byte, off int64) (n int, err error) {
	if err := f.check("readat", false); err != nil {
		return 0, err
	}
	if off < 0 {
		return 0, &os.PathError{Op: "readat", Path: f.name, Err: ErrInvalidArgument}
	}
	if off >= int64(len(f.data)) {
		return 0, io.EOF
	}
	n = copy(b, f.data[off:])
	if n < len(b) {
		return n, io.EOF
	}
	return n, nil
}

// Write writes at the offset, growing the file as needed. A gap left by
// seeking past the end is filled with zeros. Files opened with O_APPEND
// always write at the end.
func (f *File) Write(p []byte) (n int, err error) {
	if err := f.check("write", true); err != nil {
		return 0, err
	}
	if f.flags&os.O_APPEND != 0 {
		f.offset = int64(len(f.data))
	}
	n = f.writeAt(p, f.offset)
	f.offset += int64(n)
	return n, nil
}

// WriteAt writes at off without moving the file offset.
func (f *File) WriteAt(b []byte, off int64) (n int, err error) {
	if err := f.check("writeat", true); err != nil {
		return 0, err
	}
	if off < 0 {
		return 0, &os.PathError{Op: "writeat", Path: f.name, Err: ErrInvalidArgument}
	}
	return f.writeAt(b, off), nil
}

func (f *File) writeAt(p []byte, off int64) int {
	end := off + int64(len(p))
	if end > int64(len(f.data)) {
		f.data = resize(f.data, end)
	}
	return copy(f.data[off:], p)
}

func (f *File) WriteString(s string) (int, error) {
	return f.Write([]byte(s))
}

// Seek sets the offset for the next Read or Write. Seeking past the end is
// allowed; seeking before the start is not.
func (f *File) Seek(offset int64, whence int) (ret int64, err error) {
	if f.closed {
		return 0, &os.PathError{Op: "seek", Path: f.name, Err: os.ErrClosed}
	}

	var next int64
	switch whence {
	case io.SeekStart:
		next = offset
	case io.SeekCurrent:
		next = f.offset + offset
	case io.SeekEnd:
		next = int64(len(f.data)) + offset
	default:
		return f.offset, &os.PathError{Op: "seek", Path: f.name, Err: ErrInvalidArgument}
	}
	if next < 0 {
		return f.offset, &os.PathError{Op: "seek", Path: f.name, Err: ErrInvalidArgument}
	}
	f.offset = next
	return f.offset, nil
}

// Tell returns the current offset.
func (f *File) Tell() int64 {
	return f.offset
}

// EOF reports whether the offset is at or past the end of the file.
func (f *File) EOF() bool {
	return f.offset >= int64(len(f.data))
}

// Flush stores the whole buffer as the value of the entry. It does nothing
// for read only files and directories, and leaves the offset alone.
func (f *File) Flush() error {
	if f.closed {
		return &os.PathError{Op: "flush", Path: f.name, Err: os.ErrClosed}
	}
	return f.flush()
}

func (f *File) flush() error {
	if f.dir != nil || !f.writable() {
		return nil
	}
	if err := f.fs.setFile(f.path, f.data); err != nil {
		return &os.PathError{Op: "flush", Path: f.name, Err: err}
	}
	f.fs.log.WithFields(logrus.Fields{
		"action": "flush",
		"path":   f.path,
		"size":   len(f.data),
	}).Debug("entry stored")
	return nil
}

// Sync is Flush.
func (f *File) Sync() error {
	return f.Flush()
}

// Close flushes the file and releases its buffer. Every later operation
// fails with os.ErrClosed.
func (f *File) Close() error {
	if f.closed {
		return &os.PathError{Op: "close", Path: f.name, Err: os.ErrClosed}
	}
	err := f.flush()
	f.closed = true
	f.data = nil
	if f.dir != nil {
		f.dir.Close()
	}
	return err
}

func (f *File) Stat() (os.FileInfo, error) {
	if f.closed {
		return nil, &os.PathError{Op: "stat", Path: f.name, Err: os.ErrClosed}
	}
	if f.dir != nil {
		return &fileInfo{path.Base(f.path), newStat(KindDir, 0)}, nil
	}
	return &fileInfo{path.Base(f.path), newStat(KindFile, int64(len(f.data)))}, nil
}

// Truncate changes the size of the buffer. The offset is not moved.
func (f *File) Truncate(size int64) error {
	if err := f.check("truncate", true); err != nil {
		return err
	}
	if size < 0 {
		return &os.PathError{Op: "truncate", Path: f.name, Err: ErrInvalidArgument}
	}
	f.data = resize(f.data, size)
	return nil
}

// Readdir returns the FileInfo of up to n entries of a directory. With n > 0
// it returns io.EOF at the end of the listing; with n <= 0 it returns all
// remaining entries and a nil error.
func (f *File) Readdir(n int) ([]os.FileInfo, error) {
	names, err := f.readdirnames("readdir", n)
	if err != nil {
		return nil, err
	}
	infos, err := f.fs.infos(f.path, names)
	if err != nil {
		return nil, &os.PathError{Op: "readdir", Path: f.name, Err: err}
	}
	return infos, nil
}

// Readdirnames is like Readdir but returns names only.
func (f *File) Readdirnames(n int) ([]string, error) {
	return f.readdirnames("readdirnames", n)
}

func (f *File) readdirnames(op string, n int) ([]string, error) {
	switch {
	case f.closed:
		return nil, &os.PathError{Op: op, Path: f.name, Err: os.ErrClosed}
	case f.dir == nil:
		return nil, &os.PathError{Op: op, Path: f.name, Err: syscall.ENOTDIR}
	}
	names := f.dir.next(n)
	if n > 0 && len(names) == 0 {
		return nil, io.EOF
	}
	return append([]string(nil), names...), nil
}

// ReadDir is like Readdir but returns fs.DirEntry values.
func (f *File) ReadDir(n int) ([]fs.DirEntry, error) {
	infos, err := f.Readdir(n)
	if err != nil {
		return nil, err
	}
	entries := make([]fs.DirEntry, len(infos))
	for i, info := range infos {
		entries[i] = fs.FileInfoToDirEntry(info)
	}
	return entries, nil
}
