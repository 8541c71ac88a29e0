// ocdctl - command-line client for the Z8 Encore on-chip debugger port.
//
// It connects over serial or a TCP tunnel, stops and runs the CPU,
// single-steps, manages breakpoints, reads and writes memory, programs
// flash from Intel HEX images, and runs unattended flash endurance cycles.
package main

import (
	"fmt"
	"os"

	"github.com/z8ocd/ocdctl/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
