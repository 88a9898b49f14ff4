//go:build !deadlock

package backend

import "sync"

func defaultLocker() sync.Locker {
	return &sync.Mutex{}
}
