//go:build linux

package cpu

import "golang.org/x/sys/unix"

// pinToCore restricts the current OS thread to core.
// The caller must hold runtime.LockOSThread.
func pinToCore(core int) error {
	var mask unix.CPUSet
	mask.Zero()
	mask.Set(core)

	// 0 = calling thread
	return unix.SchedSetaffinity(0, &mask)
}
