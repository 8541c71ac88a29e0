package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var uploadAddress string

// uploadCmd writes a raw binary file to the device's external data memory
// (not program flash).
var uploadCmd = &cobra.Command{
	Use:   "upload <binfile>",
	Short: "Write a raw binary file to external data memory",
	Long: `Write a raw binary file to the device's external data memory at the
given address. This does not touch program flash; use "flash" for that.

Example:
  ocdctl upload buffer.bin --address 0000`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		addr, err := parseHexU16(uploadAddress)
		if err != nil {
			return fmt.Errorf("invalid address: %w", err)
		}

		data, err := os.ReadFile(args[0])
		if err != nil {
			return fmt.Errorf("failed to read %s: %w", args[0], err)
		}

		ctx, cancel := signalContext()
		defer cancel()

		sess, link, err := openSession(ctx)
		if err != nil {
			return err
		}
		defer link.Close()

		printInfo("writing %d bytes to data memory at 0x%04X...\n", len(data), addr)
		const chunkSize = 256
		for offset := 0; offset < len(data); offset += chunkSize {
			end := offset + chunkSize
			if end > len(data) {
				end = len(data)
			}
			if err := sess.WrData(ctx, addr+uint16(offset), data[offset:end]); err != nil {
				return fmt.Errorf("write failed at 0x%04X: %w", addr+uint16(offset), err)
			}
		}

		printInfo("upload complete.\n")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(uploadCmd)
	uploadCmd.Flags().StringVar(&uploadAddress, "address", "0000", "starting address (hex)")
}
