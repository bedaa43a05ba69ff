//go:build windows

package report

import (
	"fmt"
	"os"
	"time"
)

// acquireFlock holds an open handle on path as the lock. Retries every 100ms
// for up to 1s.
func acquireFlock(path string) (int, error) {
	deadline := time.Now().Add(time.Second)
	for {
		f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0644)
		if err == nil {
			return int(f.Fd()), nil
		}
		if time.Now().After(deadline) {
			return -1, fmt.Errorf("lock %s: timed out after 1s: %w", path, err)
		}
		time.Sleep(100 * time.Millisecond)
	}
}

func releaseFlock(fd int) {
	_ = os.NewFile(uintptr(fd), "").Close()
}
