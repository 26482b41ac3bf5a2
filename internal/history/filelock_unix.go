//go:build unix

package history

import (
	"os"

	"golang.org/x/sys/unix"
)

// acquireFileLock takes an exclusive advisory lock, blocking until any
// other holder releases it. The lock file is separate from the history
// file so the atomic rename never invalidates the held lock.
func acquireFileLock(path string) (*os.File, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0o644)
	if err != nil {
		return nil, err
	}
	if err := unix.Flock(int(f.Fd()), unix.LOCK_EX); err != nil {
		f.Close()
		return nil, err
	}
	return f, nil
}

func releaseFileLock(f *os.File) {
	unix.Flock(int(f.Fd()), unix.LOCK_UN)
	f.Close()
}
