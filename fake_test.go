//go:build linux && amd64

package gopervisor

import (
	"syscall"
	"testing"
	"unsafe"

	"github.com/mikalstill/gopervisor/ioctls"
)

// fakeHost is a scripted hostcalls implementation so setup validation and
// the run loop can be exercised without /dev/kvm. Each KVM_RUN consumes
// the next step, which mutates the shared run page the way the kernel
// would before returning to userspace.
type fakeHost struct {
	table      ioctls.Table
	apiVersion uintptr
	mmapSize   int

	nextFd uintptr
	runRaw []byte

	regs       Regs
	sregs      Sregs
	memRegions []userspaceMemoryRegion

	steps []func(*runPage)
	calls []string

	errs map[ioctls.Op]error
}

const fakeKvmFd = 3

// fakeIODataOffset is where scripted I/O exits place their data inside
// the run page, past the end of the structured prefix.
const fakeIODataOffset = 2400

func newFakeHost() *fakeHost {
	return &fakeHost{
		table:      ioctls.Native(),
		apiVersion: APIVersion,
		mmapSize:   0x1000,
		nextFd:     100,
		errs:       map[ioctls.Op]error{},
	}
}

func (f *fakeHost) op(req uintptr) ioctls.Op {
	for op := ioctls.Op(0); op < ioctls.NumOps; op++ {
		if code, ok := f.table.Code(op); ok && code == req {
			return op
		}
	}
	return -1
}

func (f *fakeHost) ioctl(fd uintptr, req uintptr, arg uintptr) (uintptr, error) {
	op := f.op(req)
	f.calls = append(f.calls, op.String())
	if err := f.errs[op]; err != nil {
		return 0, err
	}

	switch op {
	case ioctls.GetAPIVersion:
		return f.apiVersion, nil
	case ioctls.CreateVM, ioctls.CreateVCPU:
		f.nextFd++
		return f.nextFd, nil
	case ioctls.GetVCPUMMapSize:
		return uintptr(f.mmapSize), nil
	case ioctls.SetUserMemoryRegion:
		f.memRegions = append(f.memRegions, *(*userspaceMemoryRegion)(unsafe.Pointer(arg)))
		return 0, nil
	case ioctls.GetRegs:
		*(*Regs)(unsafe.Pointer(arg)) = f.regs
		return 0, nil
	case ioctls.SetRegs:
		f.regs = *(*Regs)(unsafe.Pointer(arg))
		return 0, nil
	case ioctls.GetSregs:
		*(*Sregs)(unsafe.Pointer(arg)) = f.sregs
		return 0, nil
	case ioctls.SetSregs:
		f.sregs = *(*Sregs)(unsafe.Pointer(arg))
		return 0, nil
	case ioctls.Run:
		if len(f.steps) == 0 {
			return 0, syscall.EINVAL
		}
		step := f.steps[0]
		f.steps = f.steps[1:]
		step((*runPage)(unsafe.Pointer(&f.runRaw[0])))
		return 0, nil
	}

	return 0, syscall.ENOTTY
}

func (f *fakeHost) mmap(fd int, length int) ([]byte, error) {
	f.runRaw = make([]byte, length)
	return f.runRaw, nil
}

func (f *fakeHost) munmap(b []byte) error { return nil }

func (f *fakeHost) close(fd uintptr) error { return nil }

// runCalls returns how many KVM_RUN ioctls the fake has seen.
func (f *fakeHost) runCalls() int {
	n := 0
	for _, c := range f.calls {
		if c == ioctls.Run.String() {
			n++
		}
	}
	return n
}

func newFakeSystem(t *testing.T, f *fakeHost) *System {
	t.Helper()
	s, err := newSystem(fakeKvmFd, f.table, f)
	if err != nil {
		t.Fatalf("newSystem failed: %v", err)
	}
	return s
}

func newFakeVCPU(t *testing.T, f *fakeHost) *VCPU {
	t.Helper()
	vm, err := newFakeSystem(t, f).CreateVM()
	if err != nil {
		t.Fatalf("CreateVM failed: %v", err)
	}
	vcpu, err := vm.NewVCPU(0)
	if err != nil {
		t.Fatalf("NewVCPU failed: %v", err)
	}
	return vcpu
}

// Scripted run steps.

func stepHalt() func(*runPage) {
	return func(r *runPage) {
		r.exitReason = uint32(ExitReasonHlt)
	}
}

func stepIO(dir IODir, port uint16, size uint8, data []byte) func(*runPage) {
	return func(r *runPage) {
		r.exitReason = uint32(ExitReasonIO)
		info := exitIOInfo{
			Direction:  uint8(dir),
			Size:       size,
			Port:       port,
			Count:      uint32(len(data)) / uint32(size),
			DataOffset: fakeIODataOffset,
		}
		*(*exitIOInfo)(unsafe.Pointer(&r.exitData[0])) = info

		dst := unsafe.Slice((*byte)(unsafe.Pointer(uintptr(unsafe.Pointer(r))+fakeIODataOffset)), len(data))
		copy(dst, data)
	}
}

func stepFatal(reason ExitReason, hardware uint64) func(*runPage) {
	return func(r *runPage) {
		r.exitReason = uint32(reason)
		*(*uint64)(unsafe.Pointer(&r.exitData[0])) = hardware
	}
}
