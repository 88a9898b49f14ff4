//go:build deadlock

package backend

import (
	"sync"

	"github.com/sasha-s/go-deadlock"
)

// defaultLocker returns a mutex that reports lock-order inversions and
// long waits when built with -tags deadlock.
func defaultLocker() sync.Locker {
	return &deadlock.Mutex{}
}
