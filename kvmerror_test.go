package gopervisor

import (
	"errors"
	"syscall"
	"testing"
)

func TestErrorMessage(t *testing.T) {
	tests := []struct {
		name string
		err  *Error
		want string
	}{
		{
			name: "bare",
			err:  &Error{Stage: "create-vm", Err: ErrCreationFailed},
			want: "kvm: create-vm: creation failed",
		},
		{
			name: "with detail",
			err: &Error{
				Stage:  "api-version",
				Err:    ErrUnsupportedAPIVersion,
				Detail: "kernel reported 11, built against 12",
			},
			want: "kvm: api-version: unsupported kvm api version: kernel reported 11, built against 12",
		},
		{
			name: "with errno",
			err:  &Error{Stage: "open-device", Err: ErrDeviceUnavailable, Errno: syscall.ENOENT},
			want: "kvm: open-device: kvm device unavailable: no such file or directory",
		},
		{
			name: "detail and errno",
			err: &Error{
				Stage:  "register-region",
				Err:    ErrRegistrationFailed,
				Detail: "slot 0",
				Errno:  syscall.EINVAL,
			},
			want: "kvm: register-region: memory registration failed: slot 0: invalid argument",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.err.Error(); got != tt.want {
				t.Errorf("Error() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestErrorUnwrap(t *testing.T) {
	err := &Error{Stage: "run", Err: ErrFatalExit}
	if !errors.Is(err, ErrFatalExit) {
		t.Error("errors.Is should match the wrapped sentinel")
	}
	if errors.Is(err, ErrCreationFailed) {
		t.Error("errors.Is matched an unrelated sentinel")
	}
}

func TestStageErrExtractsErrno(t *testing.T) {
	err := stageErr("create-vcpu", ErrCreationFailed, syscall.EBUSY)
	if err.Errno != syscall.EBUSY {
		t.Errorf("Errno = %v, want EBUSY", err.Errno)
	}
	if !errors.Is(err, ErrCreationFailed) {
		t.Error("sentinel not preserved")
	}

	// A non-errno cause leaves Errno zero.
	err = stageErr("open-device", ErrDeviceUnavailable, errors.New("boom"))
	if err.Errno != 0 {
		t.Errorf("Errno = %v, want 0 for non-syscall cause", err.Errno)
	}
}
