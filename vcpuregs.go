//go:build linux && amd64

package gopervisor

import (
	"unsafe"

	"github.com/mikalstill/gopervisor/ioctls"
)

func (c *VCPU) regIoctl(op ioctls.Op, stage string, arg unsafe.Pointer) error {
	if c == nil {
		return &Error{Stage: stage, Err: ErrClosed}
	}

	c.closeMu.Lock()
	defer c.closeMu.Unlock()
	if c.closed {
		return &Error{Stage: stage, Err: ErrClosed}
	}

	req, err := opCode(c.table, op, stage)
	if err != nil {
		return err
	}
	if _, err := c.sys.ioctl(c.fd, req, uintptr(arg)); err != nil {
		recordSetupError()
		return stageErr(stage, ErrInvalidRegisterState, err)
	}

	recordRegisterOp()
	return nil
}

// Regs reads the general-register file.
func (c *VCPU) Regs() (Regs, error) {
	var regs Regs
	err := c.regIoctl(ioctls.GetRegs, "get-regs", unsafe.Pointer(&regs))
	return regs, err
}

// SetRegs writes the general-register file.
func (c *VCPU) SetRegs(regs Regs) error {
	return c.regIoctl(ioctls.SetRegs, "set-regs", unsafe.Pointer(&regs))
}

// Sregs reads the special-register file.
func (c *VCPU) Sregs() (Sregs, error) {
	var sregs Sregs
	err := c.regIoctl(ioctls.GetSregs, "get-sregs", unsafe.Pointer(&sregs))
	return sregs, err
}

// SetSregs writes the special-register file. The caller owns the whole
// file: paged or long-mode configurations are as valid here as the flat
// one InitFlat installs.
func (c *VCPU) SetSregs(sregs Sregs) error {
	return c.regIoctl(ioctls.SetSregs, "set-sregs", unsafe.Pointer(&sregs))
}

// InitFlat establishes the flat unpaged addressing model and the initial
// execution state: code starts at entry with the stack at stack, both
// guest physical addresses inside the registered region. The special
// registers are committed before the general registers, since the
// instruction pointer only means what the addressing mode says it means;
// both are committed here, before the first resume.
//
// The flow is read-modify-write: the kernel's reset state is fetched and
// only the segment bases and selectors are flattened, so the remaining
// mode bits keep their architecturally defined reset values (paging and
// protection disabled in CR0).
func (c *VCPU) InitFlat(entry, stack uint64) error {
	sregs, err := c.Sregs()
	if err != nil {
		return err
	}

	flatten(&sregs.CS)
	flatten(&sregs.DS)
	flatten(&sregs.ES)
	flatten(&sregs.SS)
	if err := c.SetSregs(sregs); err != nil {
		return err
	}

	return c.SetRegs(Regs{
		RIP:    entry,
		RSP:    stack,
		RFLAGS: rflagsReserved,
	})
}
