//go:build !windows

package nativelog

import (
	"os"
	"path/filepath"

	"golang.org/x/sys/unix"
)

func withProcessLogLock(run func() error) error {
	lockPath := filepath.Join(ResolveDir(), ".nativelog.lock")
	f, err := os.OpenFile(lockPath, os.O_CREATE|os.O_RDWR, logFilePerm)
	if err != nil {
		return err
	}
	defer f.Close()

	if err := unix.Flock(int(f.Fd()), unix.LOCK_EX); err != nil {
		return err
	}
	defer func() {
		_ = unix.Flock(int(f.Fd()), unix.LOCK_UN)
	}()

	return run()
}
