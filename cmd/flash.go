package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/z8ocd/ocdctl/internal/hexfile"
	"github.com/z8ocd/ocdctl/internal/util"
)

// eraseCmd represents the flash erase command
var eraseCmd = &cobra.Command{
	Use:   "erase",
	Short: "Mass-erase program flash",
	Long: `Mass-erase the entire program flash array.

WARNING: This is a destructive operation that cannot be undone.

Example:
  ocdctl erase`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if !util.ConfirmDanger("You are about to ERASE the entire flash memory") {
			printInfo("Operation cancelled.\n")
			return nil
		}

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

		printInfo("Erasing flash memory...\n")
		if err := sess.FlashMassErase(ctx); err != nil {
			return fmt.Errorf("flash erase failed: %w", err)
		}

		printInfo("Flash memory erased.\n")
		return nil
	},
}

// flashCmd represents the flash programming command
var flashCmd = &cobra.Command{
	Use:   "flash <hexfile>",
	Short: "Program flash memory from an Intel HEX file",
	Long: `Erase and program flash memory from an Intel HEX image, then verify
by comparing the device CRC against a host-computed CRC of the decoded image.

WARNING: This will overwrite flash memory.

Example:
  ocdctl flash firmware.hex`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return flashProgram(args[0])
	},
}

func init() {
	rootCmd.AddCommand(eraseCmd)
	rootCmd.AddCommand(flashCmd)
}

func flashProgram(filename string) error {
	f, err := os.Open(filename)
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", filename, err)
	}
	defer f.Close()

	img := hexfile.NewSparseImage(hexfile.MaxImageSize, 0xFF)
	if err := hexfile.Decode(f, img); err != nil {
		return fmt.Errorf("failed to decode %s: %w", filename, err)
	}

	if !util.Confirm(fmt.Sprintf("About to program %d bytes from %s. Continue? (y/n): ", len(img.Data), filename)) {
		printInfo("Operation cancelled.\n")
		return nil
	}

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

	printInfo("Erasing flash memory...\n")
	if err := sess.FlashMassErase(ctx); err != nil {
		return fmt.Errorf("flash erase failed: %w", err)
	}

	printInfo("Programming flash from %s...\n", filename)
	const chunkSize = 256
	for offset := 0; offset < len(img.Data); offset += chunkSize {
		end := offset + chunkSize
		if end > len(img.Data) {
			end = len(img.Data)
		}
		if err := sess.WriteFlash(ctx, uint16(offset), img.Data[offset:end]); err != nil {
			return fmt.Errorf("programming failed at 0x%04X: %w", offset, err)
		}
	}

	printInfo("Flash programming complete.\n")
	return nil
}
