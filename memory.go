//go:build linux && amd64

package gopervisor

import (
	"fmt"
	"io"
	"runtime"
	"sync"
	"unsafe"

	"golang.org/x/sys/unix"

	"github.com/mikalstill/gopervisor/ioctls"
)

var (
	cachedPageSize int
	cachedPageMask uint64 // addr & mask == 0 means aligned
	pageSizeOnce   sync.Once
)

func pageSize() int {
	pageSizeOnce.Do(func() {
		cachedPageSize = unix.Getpagesize()
		cachedPageMask = uint64(cachedPageSize - 1)
	})
	return cachedPageSize
}

func isPageAligned(addr uint64) bool {
	pageSize()
	return addr&cachedPageMask == 0
}

// userspaceMemoryRegion mirrors struct kvm_userspace_memory_region from
// <linux/kvm.h>.
type userspaceMemoryRegion struct {
	Slot          uint32
	Flags         uint32
	GuestPhysAddr uint64
	MemorySize    uint64
	UserspaceAddr uint64
}

// Region is a host-owned buffer that backs a range of guest physical
// address space. The buffer is an anonymous shared mapping rather than a
// Go slice from make(): the kernel retains the host address after
// registration, so the memory must stay at a fixed location for the
// lifetime of the VM, and the Go runtime makes no such promise for
// managed allocations.
type Region struct {
	buf        []byte
	base       uint64
	slot       uint32
	registered bool
	closed     bool
	closeMu    sync.Mutex
}

// NewRegion allocates a region of the given size backing guest physical
// addresses [guestBase, guestBase+size). Size must be a nonzero multiple
// of the page size and guestBase must be page-aligned.
func NewRegion(size int, guestBase uint64) (*Region, error) {
	if size <= 0 || !isPageAligned(uint64(size)) {
		return nil, &Error{
			Stage:  "allocate-region",
			Err:    ErrInvalidMemoryRegion,
			Detail: fmt.Sprintf("size %d is not a positive multiple of the page size (%d)", size, pageSize()),
		}
	}
	if !isPageAligned(guestBase) {
		return nil, &Error{
			Stage:  "allocate-region",
			Err:    ErrInvalidMemoryRegion,
			Detail: fmt.Sprintf("guest base %#x is not page-aligned (page size %d)", guestBase, pageSize()),
		}
	}

	buf, err := unix.Mmap(-1, 0, size,
		unix.PROT_READ|unix.PROT_WRITE,
		unix.MAP_SHARED|unix.MAP_ANONYMOUS)
	if err != nil {
		return nil, stageErr("allocate-region", ErrCreationFailed, err)
	}

	r := &Region{buf: buf, base: guestBase}
	runtime.SetFinalizer(r, (*Region).finalize)

	return r, nil
}

// Size returns the region's length in bytes.
func (r *Region) Size() uint64 {
	return uint64(len(r.buf))
}

// Base returns the guest physical address the region starts at.
func (r *Region) Base() uint64 {
	return r.base
}

// Slot returns the VM slot the region was registered into. Only
// meaningful after a successful Register.
func (r *Region) Slot() uint32 {
	return r.slot
}

// Bytes returns the host view of the region. The guest reads and writes
// the same memory while running, so the slice must not be touched during
// an in-flight resume.
func (r *Region) Bytes() []byte {
	return r.buf
}

// Load copies a guest program into the region at the given offset. This
// is a plain host-memory write: the buffer is the backing store the
// kernel reads as guest physical memory, so the bytes are visible to the
// guest immediately with no further kernel call. A program that does not
// fit fails with ErrProgramTooLarge and leaves the region unmodified.
func (r *Region) Load(program []byte, offset uint64) error {
	if r == nil || r.buf == nil {
		return &Error{Stage: "load-program", Err: ErrClosed}
	}
	if offset > r.Size() || uint64(len(program)) > r.Size()-offset {
		return &Error{
			Stage: "load-program",
			Err:   ErrProgramTooLarge,
			Detail: fmt.Sprintf("%d bytes at offset %#x exceed region size %#x",
				len(program), offset, r.Size()),
		}
	}

	copy(r.buf[offset:], program)

	recordProgramLoad()
	return nil
}

// ReadAt implements io.ReaderAt over the region's host buffer.
func (r *Region) ReadAt(p []byte, off int64) (int, error) {
	if r == nil || r.buf == nil {
		return 0, &Error{Stage: "read-region", Err: ErrClosed}
	}
	if off < 0 || off >= int64(len(r.buf)) {
		return 0, io.EOF
	}
	n := copy(p, r.buf[off:])
	if n < len(p) {
		return n, io.EOF
	}
	return n, nil
}

// WriteAt implements io.WriterAt over the region's host buffer. Writes
// never extend the region.
func (r *Region) WriteAt(p []byte, off int64) (int, error) {
	if r == nil || r.buf == nil {
		return 0, &Error{Stage: "write-region", Err: ErrClosed}
	}
	if off < 0 || off > int64(len(r.buf)) {
		return 0, &Error{Stage: "write-region", Err: ErrInvalidMemoryRegion,
			Detail: fmt.Sprintf("offset %d outside region of size %d", off, len(r.buf))}
	}
	n := copy(r.buf[off:], p)
	if n < len(p) {
		return n, io.ErrShortWrite
	}
	return n, nil
}

// Close releases the host buffer. The region must not be registered with
// a live VM: the kernel holds the host address until the VM goes away.
func (r *Region) Close() error {
	if r == nil {
		return nil
	}

	r.closeMu.Lock()
	defer r.closeMu.Unlock()
	if r.closed {
		return nil
	}
	if r.registered {
		return &Error{Stage: "close-region", Err: ErrInvalidMemoryRegion,
			Detail: "region is still registered with a VM"}
	}
	r.closed = true
	runtime.SetFinalizer(r, nil)

	buf := r.buf
	r.buf = nil
	return unix.Munmap(buf)
}

func (r *Region) finalize() {
	if r == nil {
		return
	}
	if r.closeMu.TryLock() {
		defer r.closeMu.Unlock()
		if !r.closed && !r.registered && r.buf != nil {
			r.closed = true
			unix.Munmap(r.buf)
			r.buf = nil
		}
	}
}

// overlaps reports whether two guest physical ranges intersect.
func overlaps(aBase, aSize, bBase, bSize uint64) bool {
	return aBase < bBase+bSize && bBase < aBase+aSize
}

// Register installs the region as guest physical address space. All local
// preconditions (alignment, size, overlap with previously registered
// regions) are checked before the kernel is involved; violations fail
// with ErrInvalidMemoryRegion and never reach the registration call.
// Slots are assigned sequentially per VM. After a successful return the
// kernel holds the region's host address: the buffer must not be moved or
// freed until the VM is closed.
func (vm *VM) Register(r *Region) error {
	if vm == nil {
		return &Error{Stage: "register-region", Err: ErrClosed}
	}

	vm.closeMu.Lock()
	defer vm.closeMu.Unlock()
	if vm.closed {
		return &Error{Stage: "register-region", Err: ErrClosed}
	}

	if r == nil || r.buf == nil {
		return &Error{Stage: "register-region", Err: ErrInvalidMemoryRegion,
			Detail: "nil or closed region"}
	}
	if r.registered {
		return &Error{Stage: "register-region", Err: ErrInvalidMemoryRegion,
			Detail: "region is already registered"}
	}
	if !isPageAligned(r.base) || r.Size() == 0 || !isPageAligned(r.Size()) {
		return &Error{Stage: "register-region", Err: ErrInvalidMemoryRegion,
			Detail: fmt.Sprintf("base %#x / size %#x not page-aligned", r.base, r.Size())}
	}
	for _, prev := range vm.regions {
		if overlaps(r.base, r.Size(), prev.base, prev.Size()) {
			return &Error{Stage: "register-region", Err: ErrInvalidMemoryRegion,
				Detail: fmt.Sprintf("range [%#x, %#x) overlaps slot %d", r.base, r.base+r.Size(), prev.slot)}
		}
	}

	req, err := opCode(vm.table, ioctls.SetUserMemoryRegion, "register-region")
	if err != nil {
		return err
	}

	slot := uint32(len(vm.regions))
	mr := userspaceMemoryRegion{
		Slot:          slot,
		GuestPhysAddr: r.base,
		MemorySize:    r.Size(),
		UserspaceAddr: uint64(uintptr(unsafe.Pointer(&r.buf[0]))),
	}
	if _, err := vm.sys.ioctl(vm.fd, req, uintptr(unsafe.Pointer(&mr))); err != nil {
		recordSetupError()
		return stageErr("register-region", ErrRegistrationFailed, err)
	}

	r.slot = slot
	r.registered = true
	vm.regions = append(vm.regions, r)

	recordRegionRegister()
	return nil
}
