//go:build !windows

package report

import (
	"fmt"
	"time"

	"golang.org/x/sys/unix"
)

// acquireFlock takes an exclusive lock on path, retrying every 100ms for up to 1s.
func acquireFlock(path string) (int, error) {
	fd, err := unix.Open(path, unix.O_CREAT|unix.O_RDWR, 0644)
	if err != nil {
		return -1, fmt.Errorf("open lock file: %w", err)
	}

	deadline := time.Now().Add(time.Second)
	for {
		if err = unix.Flock(fd, unix.LOCK_EX|unix.LOCK_NB); err == nil {
			return fd, nil
		}
		if time.Now().After(deadline) {
			_ = unix.Close(fd)
			return -1, fmt.Errorf("lock %s: timed out after 1s: %w", path, err)
		}
		time.Sleep(100 * time.Millisecond)
	}
}

func releaseFlock(fd int) {
	_ = unix.Flock(fd, unix.LOCK_UN)
	_ = unix.Close(fd)
}
