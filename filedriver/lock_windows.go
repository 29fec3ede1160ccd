//go:build windows

package filedriver

import (
	"fmt"
	"os"

	"golang.org/x/sys/windows"
)

// fileLock is the Windows counterpart of lock_unix.go, ported onto
// golang.org/x/sys/windows.LockFileEx/UnlockFileEx the same way
// lock_unix.go replaced raw stdlib syscall.Flock with x/sys/unix.Flock:
// x/sys already wraps this module's exact advisory whole-file exclusive
// lock need, so there is no reason to keep hand-rolled kernel32 DLL
// plumbing around it.
type fileLock struct {
	file *os.File
}

func lockFile(path string) (*fileLock, error) {
	lockPath := path + ".lock"
	f, err := os.OpenFile(lockPath, os.O_CREATE|os.O_RDWR, 0o644)
	if err != nil {
		return nil, fmt.Errorf("filedriver: cannot open lock file: %w", err)
	}

	ol := new(windows.Overlapped)
	flags := uint32(windows.LOCKFILE_EXCLUSIVE_LOCK | windows.LOCKFILE_FAIL_IMMEDIATELY)
	if err := windows.LockFileEx(windows.Handle(f.Fd()), flags, 0, 1, 0, ol); err != nil {
		f.Close()
		return nil, fmt.Errorf("filedriver: %q is locked by another process", path)
	}
	return &fileLock{file: f}, nil
}

func (fl *fileLock) unlock() error {
	if fl.file == nil {
		return nil
	}
	ol := new(windows.Overlapped)
	windows.UnlockFileEx(windows.Handle(fl.file.Fd()), 0, 1, 0, ol)
	name := fl.file.Name()
	err := fl.file.Close()
	os.Remove(name)
	return err
}
