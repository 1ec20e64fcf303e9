//go:build windows

package nativelog

import (
	"errors"
	"fmt"
	"sync"

	"golang.org/x/sys/windows"
)

// A named kernel mutex serializes rotation across every process writing the
// same log directory.
const logMutexName = `Global\echo-core-go-nativelog-lock`

var logMutex struct {
	once   sync.Once
	handle windows.Handle
	err    error
}

func withProcessLogLock(run func() error) error {
	handle, err := logMutexHandle()
	if err != nil {
		return err
	}

	event, err := windows.WaitForSingleObject(handle, windows.INFINITE)
	if err != nil {
		return err
	}
	// WAIT_ABANDONED means a holder died; the mutex is ours regardless.
	if event != windows.WAIT_OBJECT_0 && event != windows.WAIT_ABANDONED {
		return fmt.Errorf("process log lock: wait returned %#x", event)
	}
	defer windows.ReleaseMutex(handle)

	return run()
}

func logMutexHandle() (windows.Handle, error) {
	logMutex.once.Do(func() {
		name, err := windows.UTF16PtrFromString(logMutexName)
		if err != nil {
			logMutex.err = err
			return
		}
		handle, err := windows.CreateMutex(nil, false, name)
		if errors.Is(err, windows.ERROR_ALREADY_EXISTS) {
			// Another process created it first; the handle is still usable.
			err = nil
		}
		if err != nil {
			logMutex.err = err
			return
		}
		logMutex.handle = handle
	})

	switch {
	case logMutex.err != nil:
		return 0, logMutex.err
	case logMutex.handle == 0:
		return 0, errors.New("process log lock handle missing")
	}
	return logMutex.handle, nil
}
