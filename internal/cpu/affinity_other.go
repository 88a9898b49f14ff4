//go:build !linux && !windows

package cpu

import "errors"

// errPinUnsupported is returned where the OS offers no thread affinity API
// (macOS only exposes affinity hints).
var errPinUnsupported = errors.New("cpu pinning is not supported on this platform")

func pinToCore(int) error {
	return errPinUnsupported
}
