// Package filelock provides a process-wide, per-path locking discipline so
// concurrent stations never interleave writes to the same configuration or
// performance-record file (spec.md §5).
package filelock

import (
	"os"
	"sync"
)

var registry sync.Map // map[string]*sync.Mutex

func lockFor(path string) *sync.Mutex {
	v, _ := registry.LoadOrStore(path, &sync.Mutex{})
	return v.(*sync.Mutex)
}

// WithLock serializes fn against any other WithLock call for the same path.
func WithLock(path string, fn func() error) error {
	mu := lockFor(path)
	mu.Lock()
	defer mu.Unlock()
	return fn()
}

// AtomicWriteFile writes data to path atomically: write to a temp file in
// the same directory, fsync, then rename over the destination. Callers
// wanting cross-station mutual exclusion should wrap this in WithLock.
func AtomicWriteFile(path string, data []byte, perm os.FileMode) error {
	tmp, err := os.CreateTemp(dirOf(path), ".tmp-*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Chmod(tmpName, perm); err != nil {
		return err
	}
	return os.Rename(tmpName, path)
}

func dirOf(path string) string {
	for i := len(path) - 1; i >= 0; i-- {
		if path[i] == '/' {
			return path[:i]
		}
	}
	return "."
}
