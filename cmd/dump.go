package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/z8ocd/ocdctl/internal/util"
)

var (
	dumpAddress string
	dumpCount   string
)

var dumpCmd = &cobra.Command{
	Use:   "dump",
	Short: "Read and display program memory from the attached device",
	Long: `Read a block of program memory and display it in hex dump format.

Example:
  ocdctl dump --address 1000 --count 100`,
	RunE: func(cmd *cobra.Command, args []string) error {
		addr, err := parseHexU16(dumpAddress)
		if err != nil {
			return fmt.Errorf("invalid address: %w", err)
		}
		count, err := parseHexU16(dumpCount)
		if err != nil {
			return fmt.Errorf("invalid count: %w", err)
		}

		ctx, cancel := signalContext()
		defer cancel()

		sess, link, err := openSession(ctx)
		if err != nil {
			return err
		}
		defer link.Close()

		data, err := sess.RdMem(ctx, addr, int(count))
		if err != nil {
			return fmt.Errorf("failed to read memory: %w", err)
		}

		util.HexDump(data, uint32(addr))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(dumpCmd)

	dumpCmd.Flags().StringVar(&dumpAddress, "address", "0", "starting address (hex)")
	dumpCmd.Flags().StringVar(&dumpCount, "count", "10", "number of bytes to read (hex)")
}
