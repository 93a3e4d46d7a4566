//go:build linux && amd64

package gopervisor

import "unsafe"

// runPage mirrors struct kvm_run from <linux/kvm.h>: the kernel-shared
// run-status structure mapped over the vCPU descriptor. The kernel writes
// exit information here before returning from a run; the monitor may fill
// in follow-up data before resuming. It is a borrowed view over
// kernel-owned memory and must only be touched between resumes.
type runPage struct {
	// in
	requestInterruptWindow uint8
	immediateExit          uint8
	_                      [6]uint8

	// out
	exitReason                 uint32
	readyForInterruptInjection uint8
	ifFlag                     uint8
	flags                      uint16

	// in (pre_kvm_run), out (post_kvm_run)
	cr8      uint64
	apicBase uint64

	// the kvm_run exit-reason union
	exitData [256]byte

	kvmValidRegs uint64
	kvmDirtyRegs uint64

	syncRegs [2048]byte
}

// exitIOInfo mirrors the io member of the kvm_run exit union.
type exitIOInfo struct {
	Direction  uint8
	Size       uint8
	Port       uint16
	Count      uint32
	DataOffset uint64 // relative to the start of the run page
}

// exitInternalInfo mirrors the internal member of the kvm_run exit union.
type exitInternalInfo struct {
	Suberror uint32
	NData    uint32
	Data     [16]uint64
}

func (k *runPage) io() exitIOInfo {
	return *(*exitIOInfo)(unsafe.Pointer(&k.exitData[0]))
}

// ioData copies out the bytes a trapped port access transferred. They
// live inside the run page at the kernel-reported offset, so they must be
// copied before the next resume overwrites them.
func (k *runPage) ioData() []byte {
	io := k.io()
	n := int(io.Size) * int(io.Count)
	if n == 0 {
		return nil
	}

	src := unsafe.Slice((*byte)(unsafe.Pointer(uintptr(unsafe.Pointer(k))+uintptr(io.DataOffset))), n)
	data := make([]byte, n)
	copy(data, src)

	return data
}

func (k *runPage) hardwareExitReason() uint64 {
	return *(*uint64)(unsafe.Pointer(&k.exitData[0]))
}

func (k *runPage) entryFailureReason() uint64 {
	return *(*uint64)(unsafe.Pointer(&k.exitData[0]))
}

func (k *runPage) internal() exitInternalInfo {
	return *(*exitInternalInfo)(unsafe.Pointer(&k.exitData[0]))
}
