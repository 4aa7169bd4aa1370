//go:build !windows

// Package singleinstance provides single instance control for the daemon.
package singleinstance

import (
	"fmt"
	"os"
	"path/filepath"

	"golang.org/x/sys/unix"

	"github.com/dsifry/metarelay/internal/appinfo"
)

// AcquireLock takes an advisory flock on a lock file next to the local store.
// A second daemon sharing the same data directory would race on cursor
// advancement, so it is refused rather than queued.
//
// Returns:
//   - release: function to call when shutting down (use with defer)
//   - ok: true if lock was acquired, false if another instance holds it
//   - err: error if something went wrong
func AcquireLock(dataDir string) (release func(), ok bool, err error) {
	path := filepath.Join(dataDir, appinfo.DirName+".lock")

	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0600)
	if err != nil {
		return nil, false, fmt.Errorf("open lock file: %w", err)
	}

	if err := unix.Flock(int(f.Fd()), unix.LOCK_EX|unix.LOCK_NB); err != nil {
		f.Close()
		if err == unix.EWOULDBLOCK {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("lock %q: %w", path, err)
	}

	return func() {
		unix.Flock(int(f.Fd()), unix.LOCK_UN)
		f.Close()
	}, true, nil
}
