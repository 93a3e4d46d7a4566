package gopervisor

import "fmt"

// ExitReason is the raw exit_reason value the kernel writes to the shared
// run page before returning control. The ordering matches
// <linux/kvm.h> KVM_EXIT_*.
type ExitReason uint32

const (
	ExitReasonUnknown ExitReason = iota
	ExitReasonException
	ExitReasonIO
	ExitReasonHypercall
	ExitReasonDebug
	ExitReasonHlt
	ExitReasonMmio
	ExitReasonIrqWindowOpen
	ExitReasonShutdown
	ExitReasonFailEntry
	ExitReasonIntr
	ExitReasonSetTpr
	ExitReasonTprAccess
	ExitReasonS390Sieic
	ExitReasonS390Reset
	ExitReasonDcr
	ExitReasonNmi
	ExitReasonInternalError
	ExitReasonOsi
	ExitReasonPaprHcall
	ExitReasonS390Ucontrol
	ExitReasonWatchdog
	ExitReasonS390Tsch
	ExitReasonEpr
	ExitReasonSystemEvent
	ExitReasonS390Stsi
	ExitReasonIoapicEoi
	ExitReasonHyperv
)

var exitReasonNames = map[ExitReason]string{
	ExitReasonUnknown:       "unknown",
	ExitReasonException:     "exception",
	ExitReasonIO:            "io",
	ExitReasonHypercall:     "hypercall",
	ExitReasonDebug:         "debug",
	ExitReasonHlt:           "hlt",
	ExitReasonMmio:          "mmio",
	ExitReasonIrqWindowOpen: "irq-window-open",
	ExitReasonShutdown:      "shutdown",
	ExitReasonFailEntry:     "fail-entry",
	ExitReasonIntr:          "intr",
	ExitReasonInternalError: "internal-error",
	ExitReasonSystemEvent:   "system-event",
}

func (r ExitReason) String() string {
	if name, ok := exitReasonNames[r]; ok {
		return name
	}
	return fmt.Sprintf("exit-reason-%d", uint32(r))
}

// IODir is the direction of a trapped guest port access.
type IODir uint8

const (
	IOIn  IODir = 0
	IOOut IODir = 1
)

func (d IODir) String() string {
	if d == IOIn {
		return "in"
	}
	return "out"
}

// Exit describes why control returned from the vCPU to the monitor. It is
// a closed set: ExitHalt, ExitIO or ExitFatal. Dispatch with a type
// switch; anything the monitor does not recognize arrives as ExitFatal
// rather than silently falling through.
type Exit interface {
	isExit()
}

// ExitHalt is the expected successful termination: the guest executed a
// halting instruction.
type ExitHalt struct{}

// ExitIO is a trapped guest port access. Data holds Size bytes per
// repetition, Count repetitions, exactly as the kernel placed them in the
// run page (copied out, so it stays valid across resumes).
type ExitIO struct {
	Port  uint16
	Dir   IODir
	Size  uint8
	Count uint32
	Data  []byte
}

// ExitFatal is any exit the monitor does not handle: shutdown, entry
// failure, internal error, or an unrecognized reason. Reason is the raw
// kernel-reported value; Hardware carries the reason-specific detail word
// when the kernel provides one (hardware exit reason, entry failure
// reason, or internal-error suberror).
type ExitFatal struct {
	Reason   ExitReason
	Hardware uint64
}

func (ExitHalt) isExit()  {}
func (ExitIO) isExit()    {}
func (ExitFatal) isExit() {}

func (e ExitFatal) String() string {
	return fmt.Sprintf("fatal exit: %v (hardware detail %#x)", e.Reason, e.Hardware)
}
