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

	"github.com/olekukonko/tablewriter"

	"github.com/mikalstill/gopervisor"
)

// dumpRegisters prints both register files as tables, the general
// registers first and then the segment state that defines the addressing
// mode.
func dumpRegisters(vcpu *gopervisor.VCPU) error {
	regs, err := vcpu.Regs()
	if err != nil {
		return err
	}
	sregs, err := vcpu.Sregs()
	if err != nil {
		return err
	}

	general := tablewriter.NewWriter(os.Stdout)
	general.SetHeader([]string{"Register", "Value"})
	for _, r := range []struct {
		name  string
		value uint64
	}{
		{"RAX", regs.RAX}, {"RBX", regs.RBX}, {"RCX", regs.RCX}, {"RDX", regs.RDX},
		{"RSI", regs.RSI}, {"RDI", regs.RDI}, {"RSP", regs.RSP}, {"RBP", regs.RBP},
		{"R8", regs.R8}, {"R9", regs.R9}, {"R10", regs.R10}, {"R11", regs.R11},
		{"R12", regs.R12}, {"R13", regs.R13}, {"R14", regs.R14}, {"R15", regs.R15},
		{"RIP", regs.RIP}, {"RFLAGS", regs.RFLAGS},
	} {
		general.Append([]string{r.name, fmt.Sprintf("%#016x", r.value)})
	}
	general.Render()

	segments := tablewriter.NewWriter(os.Stdout)
	segments.SetHeader([]string{"Segment", "Base", "Limit", "Selector"})
	for _, s := range []struct {
		name string
		seg  gopervisor.Segment
	}{
		{"CS", sregs.CS}, {"DS", sregs.DS}, {"ES", sregs.ES},
		{"FS", sregs.FS}, {"GS", sregs.GS}, {"SS", sregs.SS},
	} {
		segments.Append([]string{
			s.name,
			fmt.Sprintf("%#x", s.seg.Base),
			fmt.Sprintf("%#x", s.seg.Limit),
			fmt.Sprintf("%#x", s.seg.Selector),
		})
	}
	segments.Render()

	control := tablewriter.NewWriter(os.Stdout)
	control.SetHeader([]string{"Control", "Value"})
	for _, c := range []struct {
		name  string
		value uint64
	}{
		{"CR0", sregs.CR0}, {"CR2", sregs.CR2}, {"CR3", sregs.CR3},
		{"CR4", sregs.CR4}, {"CR8", sregs.CR8}, {"EFER", sregs.EFER},
	} {
		control.Append([]string{c.name, fmt.Sprintf("%#x", c.value)})
	}
	control.Render()

	return nil
}
