package kvfs

import (
	"os"
	"time"
)

// Kind tells files and directories apart in Stat.
type Kind uint8

const (
	KindFile Kind = iota
	KindDir
)

func (k Kind) String() string {
	if k == KindDir {
		return "dir"
	}
	return "file"
}

// Permission bits reported for every entry. The cache stores none.
const (
	FileMode = os.FileMode(0777)
	DirMode  = os.ModeDir | 0777
)

// BlockSize is the block size reported by Stat.
const BlockSize = 512

// Stat is the metadata kvfs can report for an entry. It is returned by the
// Sys method of the os.FileInfo values produced by this package.
//
// The cache keeps no timestamps, so all three times are the time of the
// call.
type Stat struct {
	Kind    Kind
	Size    int64
	Blocks  int64
	Blksize int64
	Atime   time.Time
	Mtime   time.Time
	Ctime   time.Time
}

func newStat(kind Kind, size int64) *Stat {
	now := time.Now()
	st := &Stat{
		Kind:    kind,
		Size:    size,
		Blksize: BlockSize,
		Atime:   now,
		Mtime:   now,
		Ctime:   now,
	}
	if kind == KindFile {
		st.Blocks = blocks(size)
	}
	return st
}

// blocks returns ceil((size+512)/512).
func blocks(size int64) int64 {
	return (size + BlockSize + BlockSize - 1) / BlockSize
}

// fileInfo implements os.FileInfo.
type fileInfo struct {
	name string
	stat *Stat
}

func (i *fileInfo) Name() string {
	return i.name
}

func (i *fileInfo) Size() int64 {
	return i.stat.Size
}

func (i *fileInfo) Mode() os.FileMode {
	if i.stat.Kind == KindDir {
		return DirMode
	}
	return FileMode
}

func (i *fileInfo) ModTime() time.Time {
	return i.stat.Mtime
}

func (i *fileInfo) IsDir() bool {
	return i.stat.Kind == KindDir
}

func (i *fileInfo) Sys() interface{} {
	return i.stat
}
