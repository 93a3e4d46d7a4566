// Package ioctls supplies the table mapping named KVM operations to the
// kernel-assigned ioctl request codes. The monitor core treats the table
// as opaque input: it names the operation it wants and looks the integer
// up here, never hard-coding or re-deriving request numbers.
//
// The values in table_gen.go are extracted from <linux/kvm.h> by the
// generator under gen/ and checked in, the same arrangement the original
// pypervisor used for its _ioctls module.
package ioctls

//go:generate sh -c "go run ./gen > table_gen.go"

// Op names a KVM operation.
type Op int

const (
	GetAPIVersion Op = iota
	CreateVM
	CheckExtension
	GetVCPUMMapSize
	CreateVCPU
	SetUserMemoryRegion
	GetRegs
	SetRegs
	GetSregs
	SetSregs
	Run

	// NumOps is the number of named operations; every Table must cover
	// all of them.
	NumOps
)

var opNames = [NumOps]string{
	GetAPIVersion:       "KVM_GET_API_VERSION",
	CreateVM:            "KVM_CREATE_VM",
	CheckExtension:      "KVM_CHECK_EXTENSION",
	GetVCPUMMapSize:     "KVM_GET_VCPU_MMAP_SIZE",
	CreateVCPU:          "KVM_CREATE_VCPU",
	SetUserMemoryRegion: "KVM_SET_USER_MEMORY_REGION",
	GetRegs:             "KVM_GET_REGS",
	SetRegs:             "KVM_SET_REGS",
	GetSregs:            "KVM_GET_SREGS",
	SetSregs:            "KVM_SET_SREGS",
	Run:                 "KVM_RUN",
}

func (op Op) String() string {
	if op >= 0 && op < NumOps {
		return opNames[op]
	}
	return "KVM_OP_INVALID"
}

// Table maps operations to ioctl request codes. A Table is environment
// data, not logic: regenerate it rather than editing it.
type Table map[Op]uintptr

// Code returns the request code for op and whether the table defines it.
func (t Table) Code(op Op) (uintptr, bool) {
	code, ok := t[op]
	return code, ok
}

// Complete reports whether the table defines every named operation.
func (t Table) Complete() bool {
	for op := Op(0); op < NumOps; op++ {
		if _, ok := t[op]; !ok {
			return false
		}
	}
	return true
}
