package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

var breakpointCmd = &cobra.Command{
	Use:   "breakpoint",
	Short: "Manage software breakpoints",
}

var breakpointSetCmd = &cobra.Command{
	Use:   "set <address>",
	Short: "Set a breakpoint at the given address",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		addr, err := parseHexU16(args[0])
		if err != nil {
			return fmt.Errorf("invalid address: %w", err)
		}

		ctx, cancel := signalContext()
		defer cancel()

		sess, link, err := openSession(ctx)
		if err != nil {
			return err
		}
		defer link.Close()

		if err := sess.SetBreakpoint(ctx, addr); err != nil {
			return fmt.Errorf("failed to set breakpoint: %w", err)
		}
		printInfo("breakpoint set at 0x%04X\n", addr)
		return nil
	},
}

var breakpointRemoveCmd = &cobra.Command{
	Use:   "remove <address>",
	Short: "Remove a breakpoint at the given address",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		addr, err := parseHexU16(args[0])
		if err != nil {
			return fmt.Errorf("invalid address: %w", err)
		}

		ctx, cancel := signalContext()
		defer cancel()

		sess, link, err := openSession(ctx)
		if err != nil {
			return err
		}
		defer link.Close()

		if err := sess.RemoveBreakpoint(ctx, addr); err != nil {
			return fmt.Errorf("failed to remove breakpoint: %w", err)
		}
		printInfo("breakpoint removed at 0x%04X\n", addr)
		return nil
	},
}

var breakpointListCmd = &cobra.Command{
	Use:   "list",
	Short: "List active breakpoints",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := signalContext()
		defer cancel()

		sess, link, err := openSession(ctx)
		if err != nil {
			return err
		}
		defer link.Close()

		n := sess.NumBreakpoints()
		if n == 0 {
			fmt.Println("No breakpoints set.")
			return nil
		}
		for i := 0; i < n; i++ {
			addr, err := sess.Breakpoint(i)
			if err != nil {
				return err
			}
			fmt.Printf("  0x%04X\n", addr)
		}
		return nil
	},
}

func init() {
	breakpointCmd.AddCommand(breakpointSetCmd)
	breakpointCmd.AddCommand(breakpointRemoveCmd)
	breakpointCmd.AddCommand(breakpointListCmd)
	rootCmd.AddCommand(breakpointCmd)
}
