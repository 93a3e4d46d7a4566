//go:build linux && amd64

package gopervisor

import (
	"fmt"
	"runtime"
	"time"

	"github.com/mikalstill/gopervisor/ioctls"
)

// PortHandler services a recognized guest port write. It receives one
// width-sized chunk per trapped repetition, in order. Returning an error
// stops the run loop.
type PortHandler func(dir IODir, data []byte) error

// Run transfers control to the vCPU and blocks until it traps or halts.
// This is the monitor's only suspension point and is not cancellable: a
// hung guest blocks the caller. The returned Exit is decoded from the
// shared run page immediately, so it stays valid across later resumes.
func (c *VCPU) Run() (Exit, error) {
	if c == nil {
		return nil, &Error{Stage: "run", Err: ErrClosed}
	}

	c.closeMu.Lock()
	defer c.closeMu.Unlock()
	if c.closed {
		return nil, &Error{Stage: "run", Err: ErrClosed}
	}

	req, err := opCode(c.table, ioctls.Run, "run")
	if err != nil {
		return nil, err
	}

	start := time.Now()
	_, err = c.sys.ioctl(c.fd, req, 0)
	recordRun(time.Since(start))
	if err != nil {
		return nil, stageErr("run", ErrFatalExit, err)
	}

	return c.decodeExit(), nil
}

// decodeExit reads the exit reason the kernel left in the run page and
// folds it into the closed Exit set. Every reason this monitor does not
// service becomes ExitFatal with the raw reason preserved.
func (c *VCPU) decodeExit() Exit {
	reason := ExitReason(c.run.exitReason)
	switch reason {
	case ExitReasonHlt:
		recordHaltExit()
		return ExitHalt{}

	case ExitReasonIO:
		info := c.run.io()
		recordIOExit()
		return ExitIO{
			Port:  info.Port,
			Dir:   IODir(info.Direction),
			Size:  info.Size,
			Count: info.Count,
			Data:  c.run.ioData(),
		}

	case ExitReasonUnknown:
		return ExitFatal{Reason: reason, Hardware: c.run.hardwareExitReason()}

	case ExitReasonFailEntry:
		return ExitFatal{Reason: reason, Hardware: c.run.entryFailureReason()}

	case ExitReasonInternalError:
		return ExitFatal{Reason: reason, Hardware: uint64(c.run.internal().Suberror)}

	default:
		return ExitFatal{Reason: reason}
	}
}

// RunLoop resumes the vCPU until it halts or hits an exit the monitor
// does not handle. Guest port writes to a port with a registered handler
// are serviced and execution continues where it trapped; a write to any
// other port, a port read, or any other exit kind ends the session with
// ErrFatalExit and the raw reason — unknown traps are never silently
// ignored, since that could mask a broken guest or a monitor bug.
//
// The loop terminates on the first fatal exit; there is no retry.
func (c *VCPU) RunLoop(ports map[uint16]PortHandler) (Exit, error) {
	// KVM expects all run ioctls for a vCPU to come from one thread.
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()

	for {
		exit, err := c.Run()
		if err != nil {
			return exit, err
		}

		switch e := exit.(type) {
		case ExitHalt:
			return e, nil

		case ExitIO:
			handler, ok := ports[e.Port]
			if !ok || e.Dir != IOOut {
				recordFatalExit()
				return e, &Error{
					Stage:  "run",
					Err:    ErrFatalExit,
					Detail: fmt.Sprintf("unhandled %v access to port %#x", e.Dir, e.Port),
				}
			}
			width := int(e.Size)
			for i := 0; i < int(e.Count); i++ {
				if err := handler(e.Dir, e.Data[i*width:(i+1)*width]); err != nil {
					return e, err
				}
			}

		case ExitFatal:
			recordFatalExit()
			return e, &Error{Stage: "run", Err: ErrFatalExit, Detail: e.String()}
		}
	}
}
