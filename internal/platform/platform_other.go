//go:build !linux

package platform

// NewBackend reports that no input backend exists for this platform.
// Offline commands (compile, verify, simulate) still work everywhere.
func NewBackend() (Backend, error) {
	return nil, ErrUnsupported
}
