//go:build !windows

package filedriver

import (
	"fmt"
	"os"

	"golang.org/x/sys/unix"
)

// fileLock is an OS-level advisory lock on a side ".lock" file next to
// the data file, same shape as storage/filelock_unix.go. The Unix side
// is ported from that file's raw syscall.Flock to golang.org/x/sys/
// unix.Flock, adopted as the pack's maintained syscall surface in
// place of the frozen stdlib syscall package (see DESIGN.md).
type fileLock struct {
	file *os.File
}

func lockFile(path string) (*fileLock, error) {
	lockPath := path + ".lock"
	f, err := os.OpenFile(lockPath, os.O_CREATE|os.O_RDWR, 0o644)
	if err != nil {
		return nil, fmt.Errorf("filedriver: cannot open lock file: %w", err)
	}
	if err := unix.Flock(int(f.Fd()), unix.LOCK_EX|unix.LOCK_NB); err != nil {
		f.Close()
		return nil, fmt.Errorf("filedriver: %q is locked by another process", path)
	}
	return &fileLock{file: f}, nil
}

func (fl *fileLock) unlock() error {
	if fl.file == nil {
		return nil
	}
	unix.Flock(int(fl.file.Fd()), unix.LOCK_UN)
	name := fl.file.Name()
	err := fl.file.Close()
	os.Remove(name)
	return err
}
