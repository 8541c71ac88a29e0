package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/z8ocd/ocdctl/internal/session"
)

// waitStopped polls until sess reports the device stopped or ctx is
// cancelled. RunTo, and Next when PC sits on a call, only plant a
// breakpoint and resume the device; the caller has to wait for the
// target to actually trap back into debug mode before anything that
// requires Stopped, like RdPC, will succeed.
func waitStopped(ctx context.Context, sess *session.Session) error {
	const pollInterval = 10 * time.Millisecond
	for {
		running, err := sess.IsRunning(ctx)
		if err != nil {
			return err
		}
		if !running {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(pollInterval):
		}
	}
}

// stopCmd stops CPU execution and enters debug mode.
var stopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Stop the CPU and enter debug mode",
	Long: `Stop the CPU from processing instructions and enter debug mode.

Example:
  ocdctl stop`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := signalContext()
		defer cancel()

		sess, link, err := openSession(ctx)
		if err != nil {
			return err
		}
		defer link.Close()

		if err := sess.Stop(ctx); err != nil {
			return fmt.Errorf("failed to stop CPU: %w", err)
		}
		printInfo("CPU stopped.\n")
		return nil
	},
}

// runCmd resumes CPU execution.
var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Resume CPU execution",
	Long: `Resume CPU execution from debug mode.

Example:
  ocdctl run`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := signalContext()
		defer cancel()

		sess, link, err := openSession(ctx)
		if err != nil {
			return err
		}
		defer link.Close()

		if err := sess.Run(ctx); err != nil {
			return fmt.Errorf("failed to resume CPU: %w", err)
		}
		printInfo("CPU running.\n")
		return nil
	},
}

// runToCmd resumes execution until a breakpoint address is reached.
var runToCmd = &cobra.Command{
	Use:   "run-to <address>",
	Short: "Resume execution until the given address is reached",
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

		if err := sess.RunTo(ctx, addr); err != nil {
			return fmt.Errorf("failed to run to 0x%04X: %w", addr, err)
		}
		printInfo("running to 0x%04X\n", addr)
		return nil
	},
}

// stepCmd single-steps one instruction.
var stepCmd = &cobra.Command{
	Use:   "step",
	Short: "Single-step one instruction",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := signalContext()
		defer cancel()

		sess, link, err := openSession(ctx)
		if err != nil {
			return err
		}
		defer link.Close()

		if err := sess.Step(ctx); err != nil {
			return fmt.Errorf("step failed: %w", err)
		}

		pc, err := sess.RdPC(ctx)
		if err != nil {
			return fmt.Errorf("failed to read PC: %w", err)
		}
		printInfo("PC = 0x%04X\n", pc)
		return nil
	},
}

// nextCmd steps one instruction, running past call instructions instead of
// into them.
var nextCmd = &cobra.Command{
	Use:   "next",
	Short: "Step over the instruction at PC, skipping call targets",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := signalContext()
		defer cancel()

		sess, link, err := openSession(ctx)
		if err != nil {
			return err
		}
		defer link.Close()

		if err := sess.Next(ctx); err != nil {
			return fmt.Errorf("next failed: %w", err)
		}
		if err := waitStopped(ctx, sess); err != nil {
			return fmt.Errorf("waiting for next to reach target: %w", err)
		}

		pc, err := sess.RdPC(ctx)
		if err != nil {
			return fmt.Errorf("failed to read PC: %w", err)
		}
		printInfo("PC = 0x%04X\n", pc)
		return nil
	},
}

// resetCmd pulses the device reset line and waits for it to come back.
var resetCmd = &cobra.Command{
	Use:   "reset",
	Short: "Reset the target chip",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := signalContext()
		defer cancel()

		sess, link, err := openSession(ctx)
		if err != nil {
			return err
		}
		defer link.Close()

		if err := sess.ResetChip(ctx); err != nil {
			return fmt.Errorf("reset failed: %w", err)
		}
		printInfo("device reset.\n")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(stopCmd)
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(runToCmd)
	rootCmd.AddCommand(stepCmd)
	rootCmd.AddCommand(nextCmd)
	rootCmd.AddCommand(resetCmd)
}
