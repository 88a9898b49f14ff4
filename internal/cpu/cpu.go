// Package cpu binds worker goroutines to OS threads and, where the
// platform allows it, to a single CPU core.
package cpu

import "runtime"

// Count returns the number of logical CPUs usable by the process.
func Count() int {
	return runtime.NumCPU()
}

// LockThread wires the calling goroutine to its current OS thread.
// When pin is set the thread is also restricted to one core chosen from
// slot. The returned function undoes the lock and must be deferred by
// the same goroutine.
func LockThread(slot int, pin bool) (release func(), err error) {
	runtime.LockOSThread()
	release = runtime.UnlockOSThread

	if !pin {
		return release, nil
	}
	if err := pinToCore(coreFor(slot)); err != nil {
		return release, err
	}
	return release, nil
}

// coreFor maps an arbitrary slot number onto [0, Count()).
func coreFor(slot int) int {
	n := Count()
	if slot < 0 {
		slot = -slot
	}
	return slot % n
}
