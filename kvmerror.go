package gopervisor

import (
	"errors"
	"fmt"
	"syscall"
)

// The error taxonomy. Every failure returned by this package wraps exactly
// one of these sentinels, so callers dispatch with errors.Is. None of the
// setup-phase conditions are retryable: a half-initialized VM or vCPU has
// no recovery state, so the caller is expected to abort.
var (
	// ErrDeviceUnavailable means /dev/kvm could not be opened (absent,
	// module not loaded, or insufficient permissions).
	ErrDeviceUnavailable = errors.New("kvm device unavailable")

	// ErrUnsupportedAPIVersion means the kernel reported an API version
	// other than APIVersion. All structure layouts used here are pinned to
	// that version, so no further operation is safe.
	ErrUnsupportedAPIVersion = errors.New("unsupported kvm api version")

	// ErrCreationFailed means the kernel rejected VM or vCPU creation.
	ErrCreationFailed = errors.New("creation failed")

	// ErrInvalidMemoryRegion means a region failed local validation
	// (alignment, size, overlap) before any kernel call was made.
	ErrInvalidMemoryRegion = errors.New("invalid memory region")

	// ErrRegistrationFailed means the kernel rejected the memory region.
	ErrRegistrationFailed = errors.New("memory registration failed")

	// ErrMappingFailed means the run-page size query or the shared
	// mapping over the vCPU descriptor failed.
	ErrMappingFailed = errors.New("run page mapping failed")

	// ErrInvalidRegisterState means the kernel rejected a register file,
	// typically an inconsistent segment/control-register combination.
	ErrInvalidRegisterState = errors.New("invalid register state")

	// ErrProgramTooLarge means a guest program does not fit in the region
	// at the requested load offset. The region is left unmodified.
	ErrProgramTooLarge = errors.New("program too large for region")

	// ErrFatalExit means the run loop stopped on an exit reason it does
	// not handle. The raw reason is preserved in the returned ExitFatal.
	ErrFatalExit = errors.New("fatal guest exit")

	// ErrClosed means the handle was already closed.
	ErrClosed = errors.New("handle is closed")

	// ErrUnknownOp means the injected ioctl table has no code for a
	// required operation.
	ErrUnknownOp = errors.New("operation missing from ioctl table")
)

// Error reports a failed monitor operation: the stage that failed, the
// taxonomy sentinel it maps to, and the raw kernel errno when the failure
// came out of a system call (Errno is 0 for purely local failures).
// Detail, when set, carries stage-specific context such as the version
// the kernel actually reported.
type Error struct {
	Stage  string
	Err    error
	Detail string
	Errno  syscall.Errno
}

func (e *Error) Error() string {
	s := fmt.Sprintf("kvm: %s: %v", e.Stage, e.Err)
	if e.Detail != "" {
		s += ": " + e.Detail
	}
	if e.Errno != 0 {
		s += ": " + e.Errno.Error()
	}
	return s
}

func (e *Error) Unwrap() error { return e.Err }

// stageErr builds an *Error, extracting the errno when err carries one.
func stageErr(stage string, sentinel, err error) *Error {
	var errno syscall.Errno
	errors.As(err, &errno)
	return &Error{Stage: stage, Err: sentinel, Errno: errno}
}
