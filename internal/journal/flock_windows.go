//go:build windows

package journal

import "os"

// Windows lacks flock; the appender's mutex plus O_CREATE semantics are the
// only exclusion. Single-writer-per-vault is assumed on this platform.
func lockFile(f *os.File) error {
	return nil
}

func unlockFile(f *os.File) error {
	return nil
}
