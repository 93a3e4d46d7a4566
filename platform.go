//go:build linux && amd64

package gopervisor

import (
	"errors"
	"io/fs"

	"golang.org/x/sys/unix"
)

// Supported returns true if the KVM control device exists and this
// process may open it.
func Supported() (bool, error) {
	err := unix.Access(devicePath, unix.R_OK|unix.W_OK)
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, fs.ErrNotExist) || errors.Is(err, unix.ENOENT):
		// No device node: KVM absent or the module is not loaded.
		return false, nil
	case errors.Is(err, unix.EACCES):
		// Present but this process lacks rights to it.
		return false, nil
	default:
		return false, err
	}
}
