package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

var revisionCmd = &cobra.Command{
	Use:   "revision",
	Short: "Read the debug port revision code",
	Long: `Query the on-chip debugger's revision register.

Example:
  ocdctl revision`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := signalContext()
		defer cancel()

		sess, link, err := openSession(ctx)
		if err != nil {
			return err
		}
		defer link.Close()

		rev, err := sess.DbgRev(ctx)
		if err != nil {
			return fmt.Errorf("failed to read revision: %w", err)
		}

		fmt.Printf("0x%04X\n", rev)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(revisionCmd)
}
