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
	"fmt"
	"os"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"golang.org/x/sys/unix"

	"github.com/mikalstill/gopervisor"
	"github.com/mikalstill/gopervisor/ioctls"
)

// demoProgram adds AL and BL, emits the digit and a newline on the
// serial port, then halts.
var demoProgram = []byte{
	0xba, 0xf8, 0x03, // mov dx, 0x3f8
	0x00, 0xd8, // add al, bl
	0x04, '0', // add al, '0'
	0xee,       // out dx, al
	0xb0, '\n', // mov al, '\n'
	0xee, // out dx, al
	0xf4, // hlt
}

var demoA, demoB uint64

func init() {
	rootCmd.AddCommand(demoCmd)
	demoCmd.Flags().Uint64Var(&demoA, "a", 2, "First addend (0-4)")
	demoCmd.Flags().Uint64Var(&demoB, "b", 2, "Second addend (0-4)")
}

var demoCmd = &cobra.Command{
	Use:   "demo",
	Short: "Run the built-in guest that adds two numbers over the serial port",
	RunE: func(cmd *cobra.Command, args []string) error {
		if demoA > 4 || demoB > 4 {
			return fmt.Errorf("addends must be 0-4 so the sum stays a single digit")
		}

		sys, err := gopervisor.Open(ioctls.Native())
		if err != nil {
			return fmt.Errorf("opening /dev/kvm: %w", err)
		}
		defer sys.Close()

		page := unix.Getpagesize()
		region, err := gopervisor.NewRegion(page, 0)
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
		if err := region.Load(demoProgram, 0); err != nil {
			return fmt.Errorf("loading program: %w", err)
		}

		vcpu, err := vm.NewVCPU(0)
		if err != nil {
			return fmt.Errorf("creating vcpu: %w", err)
		}
		defer vcpu.Close()

		if err := vcpu.InitFlat(0, uint64(page)-16); err != nil {
			return fmt.Errorf("initializing vcpu: %w", err)
		}

		regs, err := vcpu.Regs()
		if err != nil {
			return fmt.Errorf("reading registers: %w", err)
		}
		regs.RAX, regs.RBX = demoA, demoB
		if err := vcpu.SetRegs(regs); err != nil {
			return fmt.Errorf("seeding addends: %w", err)
		}
		log.WithFields(log.Fields{"a": demoA, "b": demoB}).Debug("addends seeded")

		_, err = vcpu.RunLoop(map[uint16]gopervisor.PortHandler{
			0x3f8: func(dir gopervisor.IODir, data []byte) error {
				_, err := os.Stdout.Write(data)
				return err
			},
		})
		if err != nil {
			return fmt.Errorf("guest stopped: %w", err)
		}
		return nil
	},
}
