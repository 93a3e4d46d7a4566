//go:build linux && amd64

package gopervisor

import (
	"fmt"
	"os"
	"runtime"
	"sync"
	"time"
	"unsafe"

	"golang.org/x/sys/unix"

	"github.com/mikalstill/gopervisor/ioctls"
)

// APIVersion is the KVM API version this monitor is built against. Every
// kernel-shared structure layout here is pinned to it, so Open refuses to
// proceed when the kernel reports anything else.
const APIVersion = 12

const devicePath = "/dev/kvm"

// System is the capability handle: an open connection to /dev/kvm that
// has passed the API-version handshake. All other entities derive from it
// and must not outlive it.
type System struct {
	file    *os.File
	fd      uintptr
	version int
	table   ioctls.Table
	sys     hostcalls
	closed  bool
	closeMu sync.Mutex
}

// VM owns a VM descriptor, its registered memory regions, and any vCPUs
// created from it.
type VM struct {
	fd      uintptr
	kvmFd   uintptr // for the vCPU run-page size query
	table   ioctls.Table
	sys     hostcalls
	regions []*Region
	closed  bool
	closeMu sync.Mutex
}

// VCPU owns a vCPU descriptor and its kernel-shared run page.
type VCPU struct {
	fd      uintptr
	id      int
	raw     []byte   // the shared mapping, kernel-reported size
	run     *runPage // borrowed view over raw
	table   ioctls.Table
	sys     hostcalls
	closed  bool
	closeMu sync.Mutex
}

// opCode resolves op through the injected table.
func opCode(t ioctls.Table, op ioctls.Op, stage string) (uintptr, error) {
	code, ok := t.Code(op)
	if !ok {
		return 0, &Error{Stage: stage, Err: ErrUnknownOp, Detail: op.String()}
	}
	return code, nil
}

// Open opens the KVM control device and performs the API-version
// handshake. On a version mismatch it fails with ErrUnsupportedAPIVersion
// before any further kernel call is made.
func Open(table ioctls.Table) (*System, error) {
	f, err := os.OpenFile(devicePath, os.O_RDWR|unix.O_CLOEXEC, 0)
	if err != nil {
		return nil, stageErr("open-device", ErrDeviceUnavailable, err)
	}

	s, err := newSystem(f.Fd(), table, osHostcalls{})
	if err != nil {
		f.Close()
		return nil, err
	}
	s.file = f

	// Safety net in case Close() is not called.
	runtime.SetFinalizer(s, (*System).finalize)

	return s, nil
}

// newSystem runs the handshake over an already-open control descriptor.
// Split from Open so tests can drive it with fake hostcalls.
func newSystem(fd uintptr, table ioctls.Table, sys hostcalls) (*System, error) {
	if table == nil {
		return nil, &Error{Stage: "open-device", Err: ErrUnknownOp, Detail: "nil table"}
	}
	req, err := opCode(table, ioctls.GetAPIVersion, "api-version")
	if err != nil {
		return nil, err
	}

	version, err := sys.ioctl(fd, req, 0)
	if err != nil {
		return nil, stageErr("api-version", ErrDeviceUnavailable, err)
	}
	if int(version) != APIVersion {
		return nil, &Error{
			Stage:  "api-version",
			Err:    ErrUnsupportedAPIVersion,
			Detail: fmt.Sprintf("kernel reported %d, built against %d", version, APIVersion),
		}
	}

	return &System{fd: fd, version: int(version), table: table, sys: sys}, nil
}

// APIVersion returns the version the kernel reported during the
// handshake. It always equals the APIVersion constant on a live System.
func (s *System) APIVersion() int {
	return s.version
}

// CreateVM creates a new virtual machine.
func (s *System) CreateVM() (*VM, error) {
	if s == nil {
		return nil, &Error{Stage: "create-vm", Err: ErrClosed}
	}

	s.closeMu.Lock()
	defer s.closeMu.Unlock()
	if s.closed {
		return nil, &Error{Stage: "create-vm", Err: ErrClosed}
	}

	start := time.Now()
	defer func() {
		recordVMCreate(time.Since(start))
	}()

	req, err := opCode(s.table, ioctls.CreateVM, "create-vm")
	if err != nil {
		return nil, err
	}
	fd, err := s.sys.ioctl(s.fd, req, 0)
	if err != nil {
		recordSetupError()
		return nil, stageErr("create-vm", ErrCreationFailed, err)
	}

	vm := &VM{fd: fd, kvmFd: s.fd, table: s.table, sys: s.sys}
	runtime.SetFinalizer(vm, (*VM).finalize)

	return vm, nil
}

// Close releases the control device. Idempotent. All VMs and vCPUs
// derived from this System must be closed first.
func (s *System) Close() error {
	if s == nil {
		return nil
	}

	s.closeMu.Lock()
	defer s.closeMu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	runtime.SetFinalizer(s, nil)

	if s.file != nil {
		return s.file.Close()
	}
	return nil
}

func (s *System) finalize() {
	if s == nil {
		return
	}
	if s.closeMu.TryLock() {
		defer s.closeMu.Unlock()
		if !s.closed {
			s.closed = true
			if s.file != nil {
				s.file.Close()
			}
		}
	}
}

// NewVCPU creates the vCPU with the given logical index and maps its
// run page. The mapping size is queried from the capability handle, never
// assumed, and the page is mapped exactly once per vCPU.
func (vm *VM) NewVCPU(id int) (*VCPU, error) {
	if vm == nil {
		return nil, &Error{Stage: "create-vcpu", Err: ErrClosed}
	}

	vm.closeMu.Lock()
	defer vm.closeMu.Unlock()
	if vm.closed {
		return nil, &Error{Stage: "create-vcpu", Err: ErrClosed}
	}

	req, err := opCode(vm.table, ioctls.CreateVCPU, "create-vcpu")
	if err != nil {
		return nil, err
	}
	fd, err := vm.sys.ioctl(vm.fd, req, uintptr(id))
	if err != nil {
		recordSetupError()
		return nil, stageErr("create-vcpu", ErrCreationFailed, err)
	}

	run, raw, err := vm.mapRunPage(fd)
	if err != nil {
		vm.sys.close(fd)
		return nil, err
	}

	c := &VCPU{fd: fd, id: id, raw: raw, run: run, table: vm.table, sys: vm.sys}
	runtime.SetFinalizer(c, (*VCPU).finalize)

	recordVCPUCreate()
	return c, nil
}

// mapRunPage queries the kernel for the run-page mapping size and maps
// that many bytes shared over the vCPU descriptor.
func (vm *VM) mapRunPage(vcpuFd uintptr) (*runPage, []byte, error) {
	req, err := opCode(vm.table, ioctls.GetVCPUMMapSize, "map-run-page")
	if err != nil {
		return nil, nil, err
	}
	size, err := vm.sys.ioctl(vm.kvmFd, req, 0)
	if err != nil {
		recordSetupError()
		return nil, nil, stageErr("map-run-page", ErrMappingFailed, err)
	}
	if uintptr(size) < unsafe.Sizeof(runPage{}) {
		return nil, nil, &Error{
			Stage:  "map-run-page",
			Err:    ErrMappingFailed,
			Detail: fmt.Sprintf("kernel-reported size %d is smaller than the run structure", size),
		}
	}

	raw, err := vm.sys.mmap(int(vcpuFd), int(size))
	if err != nil {
		recordSetupError()
		return nil, nil, stageErr("map-run-page", ErrMappingFailed, err)
	}

	return (*runPage)(unsafe.Pointer(&raw[0])), raw, nil
}

// Close destroys the VM. Idempotent. Closing the VM invalidates all of
// its vCPUs; regions may only be released afterwards.
func (vm *VM) Close() error {
	if vm == nil {
		return nil
	}

	vm.closeMu.Lock()
	defer vm.closeMu.Unlock()
	if vm.closed {
		return nil
	}
	vm.closed = true
	runtime.SetFinalizer(vm, nil)

	for _, r := range vm.regions {
		r.registered = false
	}
	vm.regions = nil

	if err := vm.sys.close(vm.fd); err != nil {
		return stageErr("close-vm", ErrCreationFailed, err)
	}

	recordVMDestroy()
	return nil
}

func (vm *VM) finalize() {
	if vm == nil {
		return
	}
	if vm.closeMu.TryLock() {
		defer vm.closeMu.Unlock()
		if !vm.closed {
			vm.closed = true
			vm.sys.close(vm.fd)
		}
	}
}

// ID returns the vCPU's logical index.
func (c *VCPU) ID() int {
	return c.id
}

// Close unmaps the run page and destroys the vCPU. Idempotent.
func (c *VCPU) Close() error {
	if c == nil {
		return nil
	}

	c.closeMu.Lock()
	defer c.closeMu.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true
	runtime.SetFinalizer(c, nil)

	c.run = nil
	if c.raw != nil {
		if err := c.sys.munmap(c.raw); err != nil {
			c.raw = nil
			return stageErr("close-vcpu", ErrMappingFailed, err)
		}
		c.raw = nil
	}
	if err := c.sys.close(c.fd); err != nil {
		return stageErr("close-vcpu", ErrCreationFailed, err)
	}

	recordVCPUDestroy()
	return nil
}

func (c *VCPU) finalize() {
	if c == nil {
		return
	}
	if c.closeMu.TryLock() {
		defer c.closeMu.Unlock()
		if !c.closed {
			c.closed = true
			if c.raw != nil {
				c.sys.munmap(c.raw)
				c.raw = nil
			}
			c.run = nil
			c.sys.close(c.fd)
		}
	}
}
