// Package gopervisor is a minimal virtual machine monitor built on the
// Linux KVM API.
//
// It drives /dev/kvm to boot a single vCPU over a registered
// guest-physical memory region and runs a trap-and-handle loop until the
// guest halts. It is the Go successor to the pypervisor experiment and,
// like it, leans heavily on https://lwn.net/Articles/658511/.
//
// # Requirements
//
//   - Linux on amd64 with KVM enabled (kvm_intel or kvm_amd loaded)
//   - read/write access to /dev/kvm (root or membership in the kvm group)
//   - KVM API version 12 (the stable version; checked at Open)
//
// # Basic Usage
//
// Check whether KVM is available:
//
//	ok, err := gopervisor.Supported()
//	if err != nil || !ok {
//		log.Fatal("KVM not available on this system")
//	}
//
// Open the capability handle and create a VM. The ioctl request-code
// table is injected here; the monitor never hard-codes request numbers:
//
//	sys, err := gopervisor.Open(ioctls.Native())
//	if err != nil {
//		log.Fatal(err)
//	}
//	defer sys.Close()
//
// Guest memory is an anonymous shared mapping so the kernel sees a stable
// host address for the lifetime of the VM. It is allocated before the VM
// so the deferred Close runs after the VM releases the registration:
//
//	region, err := gopervisor.NewRegion(0x1000, 0) // 4 KiB at guest phys 0
//	if err != nil {
//		log.Fatal(err)
//	}
//	defer region.Close()
//
//	vm, err := sys.CreateVM()
//	if err != nil {
//		log.Fatal(err)
//	}
//	defer vm.Close()
//
//	if err := vm.Register(region); err != nil {
//		log.Fatal(err)
//	}
//	if err := region.Load(guestCode, 0); err != nil {
//		log.Fatal(err)
//	}
//
// Create the vCPU, establish flat unpaged addressing, and run:
//
//	vcpu, err := vm.NewVCPU(0)
//	if err != nil {
//		log.Fatal(err)
//	}
//	defer vcpu.Close()
//
//	if err := vcpu.InitFlat(0x0, 0x800); err != nil {
//		log.Fatal(err)
//	}
//
//	exit, err := vcpu.RunLoop(map[uint16]gopervisor.PortHandler{
//		0x3f8: func(dir gopervisor.IODir, data []byte) error {
//			fmt.Print(string(data))
//			return nil
//		},
//	})
//
// RunLoop returns on ExitHalt (normal guest termination) or ExitFatal
// (any exit the monitor does not recognize, with the raw reason kept for
// diagnosis).
//
// # Error Handling
//
// All failures wrap a sentinel from the package taxonomy
// (ErrCreationFailed, ErrInvalidMemoryRegion, ...) usable with errors.Is.
// Kernel failures additionally carry the failing stage and raw errno via
// *Error.
//
// # Resource Management
//
// Systems, VMs, vCPUs and Regions must be explicitly closed with Close().
// Finalizers provide safety-net cleanup. A Region's host buffer must stay
// alive and unmoved while registered, which is why regions are allocated
// with mmap rather than make().
//
// # Platform Support
//
// Linux amd64 only. Other platforms return "not supported" errors.
package gopervisor
