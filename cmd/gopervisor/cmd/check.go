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
	"errors"
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/mikalstill/gopervisor"
	"github.com/mikalstill/gopervisor/ioctls"
)

func init() {
	rootCmd.AddCommand(checkCmd)
}

var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "Check KVM availability and API version",
	RunE: func(cmd *cobra.Command, args []string) error {
		ok, err := gopervisor.Supported()
		if err != nil {
			return fmt.Errorf("probing /dev/kvm: %w", err)
		}
		if !ok {
			fmt.Printf("kvm support: %s\n", color.RedString("no"))
			return nil
		}
		fmt.Printf("kvm support: %s\n", color.GreenString("yes"))

		sys, err := gopervisor.Open(ioctls.Native())
		if err != nil {
			if errors.Is(err, gopervisor.ErrUnsupportedAPIVersion) {
				fmt.Printf("api version: %s (%v)\n", color.RedString("unsupported"), err)
				return nil
			}
			return fmt.Errorf("opening /dev/kvm: %w", err)
		}
		defer sys.Close()

		fmt.Printf("api version: %s\n", color.GreenString("%d", sys.APIVersion()))
		return nil
	},
}
