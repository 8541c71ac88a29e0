package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/z8ocd/ocdctl/internal/endurance"
	"github.com/z8ocd/ocdctl/internal/util"
)

var (
	enduranceMaxCycles    int
	enduranceVerifyRepeat int
	enduranceMailTo       string
	enduranceStateFile    string
	enduranceReportFile   string
	enduranceFollow       bool
)

// enduranceCmd runs the crash-resumable flash-endurance supervisor.
var enduranceCmd = &cobra.Command{
	Use:   "endurance",
	Short: "Run unattended flash erase/program/verify endurance cycles",
	Long: `Run flash memory through repeated mass-erase, blank-check, program, and
verify cycles to characterize wear-out. The cycle count is checkpointed to
a state file every 10 cycles, so a killed or crashed run resumes where it
left off.

WARNING: this wears out flash. Only run it against hardware you intend to
retire or whose endurance you are specifically characterizing.

Example:
  ocdctl endurance --max-cycles 10000 --state cycle.state`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runEndurance()
	},
}

func init() {
	rootCmd.AddCommand(enduranceCmd)

	enduranceCmd.Flags().IntVarP(&enduranceMaxCycles, "max-cycles", "l", 0, "stop after this many cycles (0 = run until 3 consecutive errors or Ctrl-C)")
	enduranceCmd.Flags().IntVarP(&enduranceVerifyRepeat, "verify-repeat", "v", 0, "CRC verify repeats per cycle (0 = use ocdctl.ini)")
	enduranceCmd.Flags().StringVarP(&enduranceMailTo, "mail-to", "m", "", "mail status updates to this address")
	enduranceCmd.Flags().StringVarP(&enduranceStateFile, "state", "s", "", "cycle-count state file (default from ocdctl.ini)")
	enduranceCmd.Flags().StringVar(&enduranceReportFile, "report", "", "write a YAML run summary here on exit")
	enduranceCmd.Flags().BoolVar(&enduranceFollow, "follow", false, "tail the cycle count of a run in another process via its state file, instead of running cycles")
}

func runEndurance() error {
	if enduranceMaxCycles != 0 {
		cfg.MaxCycles = enduranceMaxCycles
	}
	if enduranceVerifyRepeat != 0 {
		cfg.VerifyRepeat = enduranceVerifyRepeat
	}
	if enduranceMailTo != "" {
		cfg.MailTo = enduranceMailTo
	}
	if enduranceStateFile != "" {
		cfg.StateFile = enduranceStateFile
	}

	if enduranceFollow {
		ctx, cancel := signalContext()
		defer cancel()
		return endurance.Follow(ctx, cfg.StateFile, func(n uint32) {
			printInfo("cycle %d\n", n)
		})
	}

	if !util.ConfirmDanger("You are about to run flash endurance cycling; this wears out flash permanently") {
		printInfo("Operation cancelled.\n")
		return nil
	}

	ctx, cancel := signalContext()
	defer cancel()

	link, err := endurance.Connect(ctx, *cfg, logger)
	if err != nil {
		return fmt.Errorf("failed to connect: %w", err)
	}
	defer link.Close()

	sess := sessionOverLink(link)

	sv := endurance.New(*cfg, sess, link, logger)
	if err := sv.Configure(ctx); err != nil {
		return fmt.Errorf("failed to configure device: %w", err)
	}
	if err := sv.OpenState(cfg.StateFile); err != nil {
		return fmt.Errorf("failed to open state file: %w", err)
	}
	defer sv.CloseState()

	printInfo("resuming at cycle %d\n", sv.Cycle())

	runErr := sv.Run(ctx)

	if enduranceReportFile != "" {
		if err := sv.WriteReport(enduranceReportFile); err != nil {
			printError("failed to write report: %v", err)
		}
	}

	if runErr != nil {
		return fmt.Errorf("endurance run failed: %w", runErr)
	}
	printInfo("endurance run finished at cycle %d\n", sv.Cycle())
	return nil
}
