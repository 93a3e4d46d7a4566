//go:build !linux || !amd64

package gopervisor

import "github.com/mikalstill/gopervisor/ioctls"

// KVM only exists on Linux; these stubs keep the package compiling
// elsewhere so callers can probe Supported() and fail cleanly.

var errNotSupported = &Error{
	Stage:  "platform",
	Err:    ErrDeviceUnavailable,
	Detail: "kvm is only available on linux/amd64",
}

// Supported returns false on platforms without KVM.
func Supported() (bool, error) {
	return false, nil
}

// System is the capability handle; unavailable on this platform.
type System struct{}

// VM is a virtual machine; unavailable on this platform.
type VM struct{}

// VCPU is a virtual CPU; unavailable on this platform.
type VCPU struct{}

// Region is a guest memory region; unavailable on this platform.
type Region struct{}

// PortHandler services a recognized guest port write.
type PortHandler func(dir IODir, data []byte) error

func Open(table ioctls.Table) (*System, error) {
	return nil, errNotSupported
}

func (s *System) APIVersion() int { return 0 }
func (s *System) CreateVM() (*VM, error) { return nil, errNotSupported }
func (s *System) Close() error { return nil }

func NewRegion(size int, guestBase uint64) (*Region, error) {
	return nil, errNotSupported
}

func (r *Region) Size() uint64 { return 0 }
func (r *Region) Base() uint64 { return 0 }
func (r *Region) Slot() uint32 { return 0 }
func (r *Region) Bytes() []byte { return nil }
func (r *Region) Load(program []byte, off uint64) error { return errNotSupported }
func (r *Region) ReadAt(p []byte, off int64) (int, error) {
	return 0, errNotSupported
}
func (r *Region) WriteAt(p []byte, off int64) (int, error) {
	return 0, errNotSupported
}
func (r *Region) Close() error { return nil }

func (vm *VM) Register(r *Region) error { return errNotSupported }
func (vm *VM) NewVCPU(id int) (*VCPU, error) { return nil, errNotSupported }
func (vm *VM) Close() error { return nil }

func (c *VCPU) ID() int { return 0 }
func (c *VCPU) Regs() (Regs, error) { return Regs{}, errNotSupported }
func (c *VCPU) SetRegs(regs Regs) error { return errNotSupported }
func (c *VCPU) Sregs() (Sregs, error) { return Sregs{}, errNotSupported }
func (c *VCPU) SetSregs(sregs Sregs) error { return errNotSupported }
func (c *VCPU) InitFlat(entry, stack uint64) error {
	return errNotSupported
}
func (c *VCPU) Run() (Exit, error) { return nil, errNotSupported }
func (c *VCPU) RunLoop(ports map[uint16]PortHandler) (Exit, error) {
	return nil, errNotSupported
}
func (c *VCPU) Close() error { return nil }
