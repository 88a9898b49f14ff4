//go:build windows

package cpu

import "golang.org/x/sys/windows"

var (
	kernel32              = windows.NewLazySystemDLL("kernel32.dll")
	setThreadAffinityMask = kernel32.NewProc("SetThreadAffinityMask")
)

// pinToCore restricts the current OS thread to core.
// The caller must hold runtime.LockOSThread.
func pinToCore(core int) error {
	mask := uintptr(1) << uint(core)
	prev, _, err := setThreadAffinityMask.Call(uintptr(windows.CurrentThread()), mask)
	if prev == 0 {
		return err
	}
	return nil
}
