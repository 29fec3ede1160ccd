package filedriver

import (
	"fmt"
	"os"

	"github.com/vfdswmr/pagebuf/pagebuffer"
)

// LocalFile is a pagebuffer.FileDriver backed by two *os.File handles,
// one per pagebuffer.Kind, with cross-process advisory locking on the
// metadata file (spec §3A's cross-process exclusivity). Grounded on
// storage/memfile.go's StorageFile shape applied to a real file, and
// on storage/filelock_unix.go/filelock_windows.go for the lock; the
// teacher never needed a standalone "local file" adapter because its
// Pager talks to *os.File directly, but FileDriver here is a
// first-class collaborator interface, not folded into the engine.
type LocalFile struct {
	meta, raw *os.File
	lock      *fileLock
	lockPath  string
}

// OpenLocalFile opens (creating if necessary) the metadata and raw
// data files at the given paths.
func OpenLocalFile(metaPath, rawPath string) (*LocalFile, error) {
	meta, err := os.OpenFile(metaPath, os.O_CREATE|os.O_RDWR, 0o644)
	if err != nil {
		return nil, fmt.Errorf("filedriver: open metadata file: %w", err)
	}
	raw, err := os.OpenFile(rawPath, os.O_CREATE|os.O_RDWR, 0o644)
	if err != nil {
		meta.Close()
		return nil, fmt.Errorf("filedriver: open raw data file: %w", err)
	}
	return &LocalFile{meta: meta, raw: raw, lockPath: metaPath}, nil
}

func (f *LocalFile) fileFor(kind pagebuffer.Kind) *os.File {
	if kind == pagebuffer.Metadata {
		return f.meta
	}
	return f.raw
}

func (f *LocalFile) Read(kind pagebuffer.Kind, addr int64, buf []byte) error {
	n, err := f.fileFor(kind).ReadAt(buf, addr)
	if n == len(buf) {
		return nil
	}
	for i := n; i < len(buf); i++ {
		buf[i] = 0
	}
	return err
}

func (f *LocalFile) Write(kind pagebuffer.Kind, addr int64, buf []byte) error {
	_, err := f.fileFor(kind).WriteAt(buf, addr)
	return err
}

func (f *LocalFile) EOA(kind pagebuffer.Kind) int64 {
	fi, err := f.fileFor(kind).Stat()
	if err != nil {
		return 0
	}
	return fi.Size()
}

func (f *LocalFile) SetEOA(kind pagebuffer.Kind, addr int64) error {
	return f.fileFor(kind).Truncate(addr)
}

func (f *LocalFile) EOF(kind pagebuffer.Kind) int64 {
	return f.EOA(kind)
}

func (f *LocalFile) Lock(writable bool) error {
	l, err := lockFile(f.lockPath)
	if err != nil {
		return err
	}
	f.lock = l
	return nil
}

func (f *LocalFile) Unlock() error {
	if f.lock == nil {
		return nil
	}
	err := f.lock.unlock()
	f.lock = nil
	return err
}

func (f *LocalFile) Truncate(closing bool) error {
	if err := f.meta.Sync(); err != nil {
		return err
	}
	if err := f.raw.Sync(); err != nil {
		return err
	}
	if !closing {
		return nil
	}
	if err := f.meta.Close(); err != nil {
		return err
	}
	return f.raw.Close()
}
