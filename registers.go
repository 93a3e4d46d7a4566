package gopervisor

// Regs mirrors struct kvm_regs: the vCPU's general-register file.
type Regs struct {
	RAX, RBX, RCX, RDX uint64
	RSI, RDI, RSP, RBP uint64
	R8, R9, R10, R11   uint64
	R12, R13, R14, R15 uint64
	RIP, RFLAGS        uint64
}

// Segment mirrors struct kvm_segment.
type Segment struct {
	Base     uint64
	Limit    uint32
	Selector uint16
	Type     uint8
	Present  uint8
	DPL      uint8
	DB       uint8
	S        uint8
	L        uint8
	G        uint8
	AVL      uint8
	Unusable uint8
	_        uint8
}

// Descriptor mirrors struct kvm_dtable: a GDT or IDT pointer.
type Descriptor struct {
	Base  uint64
	Limit uint16
	_     [3]uint16
}

const numInterrupts = 256

// Sregs mirrors struct kvm_sregs: the special-register file establishing
// the vCPU's addressing and protection mode.
type Sregs struct {
	CS, DS, ES, FS, GS, SS  Segment
	TR, LDT                 Segment
	GDT, IDT                Descriptor
	CR0, CR2, CR3, CR4, CR8 uint64
	EFER                    uint64
	ApicBase                uint64
	InterruptBitmap         [(numInterrupts + 63) / 64]uint64
}

// RFLAGS bit 1 is reserved and must always be set.
const rflagsReserved = 0x2

// flatten puts a segment at base 0 with selector 0, which in unpaged real
// mode makes linear addresses equal physical addresses.
func flatten(s *Segment) {
	s.Base = 0
	s.Selector = 0
}
