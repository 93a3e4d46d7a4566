/*
Copyright © 2025 mikalstill

Permission is hereby granted, free of charge, to any person obtaining a copy
of this software and associated documentation files (the "Software"), to deal
in the Software without restriction, including without limitation the rights
to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
copies of the Software, and to permit persons to whom the Software is
furnished to do so, subject to the following conditions:

The above copyright notice and this permission notice shall be included in
all copies or substantial portions of the Software.

THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN
THE SOFTWARE.
*/
package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"golang.org/x/sys/unix"

	"github.com/mikalstill/gopervisor"
	"github.com/mikalstill/gopervisor/ioctls"
)

var (
	memSize     int
	guestBase   uint64
	loadOffset  uint64
	entryPoint  uint64
	stackPtr    uint64
	serialPorts []uint
	dumpRegs    bool
	showMetrics bool
)

func init() {
	rootCmd.AddCommand(runCmd)
	runCmd.Flags().IntVar(&memSize, "mem-size", 4096, "Guest memory size (bytes, page multiple)")
	runCmd.Flags().Uint64Var(&guestBase, "base", 0, "Guest physical base of the memory region")
	runCmd.Flags().Uint64Var(&loadOffset, "load-offset", 0, "Offset within the region to load the program at")
	runCmd.Flags().Uint64VarP(&entryPoint, "entry", "e", 0, "Guest physical entry point")
	runCmd.Flags().Uint64Var(&stackPtr, "stack", 0, "Initial stack pointer (default: top of region minus 16)")
	runCmd.Flags().UintSliceVarP(&serialPorts, "port", "p", []uint{0x3f8}, "Ports whose writes are echoed to stdout")
	runCmd.Flags().BoolVar(&dumpRegs, "dump-regs", false, "Dump the register files after the guest stops")
	runCmd.Flags().BoolVar(&showMetrics, "metrics", false, "Print monitor metrics as JSON after the guest stops")
}

var runCmd = &cobra.Command{
	Use:   "run [program-file]",
	Short: "Run a flat binary as a real-mode KVM guest",
	Long: `Run a flat binary as a real-mode KVM guest.

The program is loaded into an anonymous memory region registered as guest
physical memory, the vCPU is started in flat unpaged real mode, and
execution continues until the guest halts or hits an exit the monitor does
not handle. Guest writes to the listed ports are echoed to stdout.

The program can be provided as a file argument or on stdin.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runGuest,
}

func runGuest(cmd *cobra.Command, args []string) error {
	var program []byte
	var err error
	if len(args) > 0 {
		program, err = os.ReadFile(args[0])
		if err != nil {
			return fmt.Errorf("reading program: %w", err)
		}
	} else {
		program, err = io.ReadAll(os.Stdin)
		if err != nil {
			return fmt.Errorf("reading program from stdin: %w", err)
		}
	}
	if len(program) == 0 {
		return fmt.Errorf("no program provided")
	}

	page := unix.Getpagesize()
	if memSize <= 0 || memSize%page != 0 {
		return fmt.Errorf("mem-size must be a positive multiple of the page size (%d bytes)", page)
	}
	if stackPtr == 0 {
		stackPtr = guestBase + uint64(memSize) - 16
	}

	ports := map[uint16]gopervisor.PortHandler{}
	for _, p := range serialPorts {
		if p > 0xffff {
			return fmt.Errorf("port %#x out of range", p)
		}
		ports[uint16(p)] = func(dir gopervisor.IODir, data []byte) error {
			_, err := os.Stdout.Write(data)
			return err
		}
	}

	sys, err := gopervisor.Open(ioctls.Native())
	if err != nil {
		return fmt.Errorf("opening /dev/kvm: %w", err)
	}
	defer sys.Close()
	log.WithField("api_version", sys.APIVersion()).Debug("opened kvm")

	region, err := gopervisor.NewRegion(memSize, guestBase)
	if err != nil {
		return fmt.Errorf("allocating guest memory: %w", err)
	}
	defer region.Close()

	vm, err := sys.CreateVM()
	if err != nil {
		return fmt.Errorf("creating vm: %w", err)
	}
	defer vm.Close()

	if err := vm.Register(region); err != nil {
		return fmt.Errorf("registering guest memory: %w", err)
	}
	log.WithFields(log.Fields{
		"base": fmt.Sprintf("%#x", region.Base()),
		"size": region.Size(),
		"slot": region.Slot(),
	}).Debug("registered guest memory")

	if err := region.Load(program, loadOffset); err != nil {
		return fmt.Errorf("loading program: %w", err)
	}
	log.WithFields(log.Fields{
		"bytes":  len(program),
		"offset": fmt.Sprintf("%#x", loadOffset),
	}).Debug("loaded program")

	vcpu, err := vm.NewVCPU(0)
	if err != nil {
		return fmt.Errorf("creating vcpu: %w", err)
	}
	defer vcpu.Close()

	if err := vcpu.InitFlat(entryPoint, stackPtr); err != nil {
		return fmt.Errorf("initializing vcpu: %w", err)
	}
	log.WithFields(log.Fields{
		"entry": fmt.Sprintf("%#x", entryPoint),
		"stack": fmt.Sprintf("%#x", stackPtr),
	}).Debug("vcpu in flat real mode")

	exit, runErr := vcpu.RunLoop(ports)

	if dumpRegs {
		if err := dumpRegisters(vcpu); err != nil {
			log.WithError(err).Warn("register dump failed")
		}
	}
	if showMetrics {
		out, err := json.MarshalIndent(gopervisor.GetMetrics(), "", "  ")
		if err != nil {
			return err
		}
		fmt.Println(string(out))
	}

	if runErr != nil {
		return fmt.Errorf("guest stopped: %w", runErr)
	}
	log.WithField("exit", fmt.Sprintf("%T", exit)).Debug("guest halted")
	return nil
}
