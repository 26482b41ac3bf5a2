//go:build windows

package history

import "os"

// Windows gets no cross-process lock; the in-process mutex still
// serializes appends, which covers the single-CLI case.
func acquireFileLock(path string) (*os.File, error) {
	return os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0o644)
}

func releaseFileLock(f *os.File) {
	f.Close()
}
