//go:build linux && amd64

package gopervisor

import (
	"syscall"

	"golang.org/x/sys/unix"
)

// hostcalls is the seam every privileged host operation goes through.
// Production code uses osHostcalls; tests substitute a scripted fake so
// the setup validation and the run loop are exercised without /dev/kvm.
type hostcalls interface {
	ioctl(fd uintptr, req uintptr, arg uintptr) (uintptr, error)
	mmap(fd int, length int) ([]byte, error)
	munmap(b []byte) error
	close(fd uintptr) error
}

type osHostcalls struct{}

func (osHostcalls) ioctl(fd uintptr, req uintptr, arg uintptr) (uintptr, error) {
	ret, _, errno := unix.Syscall(unix.SYS_IOCTL, fd, req, arg)
	if errno != 0 {
		return ret, errnoErr(errno)
	}
	return ret, nil
}

func (osHostcalls) mmap(fd int, length int) ([]byte, error) {
	return unix.Mmap(fd, 0, length, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
}

func (osHostcalls) munmap(b []byte) error {
	return unix.Munmap(b)
}

func (osHostcalls) close(fd uintptr) error {
	return unix.Close(int(fd))
}

// https://github.com/golang/sys/blob/master/unix/syscall_unix.go#L33
func errnoErr(e syscall.Errno) error {
	switch e {
	case 0:
		return nil
	case unix.EAGAIN:
		return syscall.EAGAIN
	case unix.EINVAL:
		return syscall.EINVAL
	case unix.ENOENT:
		return syscall.ENOENT
	case unix.EINTR:
		return syscall.EINTR
	}
	return e
}
