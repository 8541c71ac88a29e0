// Package cmd implements all CLI commands for ocdctl.
package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"

	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"

	"github.com/z8ocd/ocdctl/internal/config"
	"github.com/z8ocd/ocdctl/internal/logging"
	"github.com/z8ocd/ocdctl/internal/ocd"
	"github.com/z8ocd/ocdctl/internal/session"
	"github.com/z8ocd/ocdctl/internal/transport"
)

var (
	// Global configuration instance
	cfg *config.Config

	// Global flags
	portFlag  string
	baudFlag  int
	quietFlag bool
	logLevel  string

	logger *log.Logger
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "ocdctl",
	Short: "ocdctl - debug and program Z8 Encore microcontrollers over their on-chip debugger port",
	Long: `ocdctl is a command-line client for the on-chip debugger (OCD) found on
Zilog Z8 Encore-family microcontrollers.

It enables connecting over the debug UART, stopping and running the CPU,
single-stepping, setting breakpoints, reading and writing memory, loading
and programming flash from Intel HEX images, and running unattended flash
endurance cycling.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		cfg, err = config.Load()
		if err != nil {
			return fmt.Errorf("failed to load configuration: %w", err)
		}

		if portFlag != "" {
			cfg.Port = portFlag
		}
		if baudFlag != 0 {
			cfg.Baud = baudFlag
		}

		logger = logging.New(logLevel)
		if quietFlag {
			logger.SetLevel(log.ErrorLevel)
		}

		return nil
	},
}

// Execute adds all child commands to the root command and sets flags
// appropriately. This is called by main.main(). It only needs to happen
// once to the rootCmd.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&portFlag, "port", "p", "", "serial port (e.g. /dev/ttyUSB0, COM3); defaults to ocdctl.ini's serial_port")
	rootCmd.PersistentFlags().IntVarP(&baudFlag, "baud", "b", 0, "baud rate; defaults to ocdctl.ini's baud")
	rootCmd.PersistentFlags().BoolVarP(&quietFlag, "quiet", "q", false, "suppress informational output")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "log level (debug, info, warn, error)")

	rootCmd.CompletionOptions.DisableDefaultCmd = true
}

// printInfo prints output that quiet mode suppresses.
func printInfo(format string, args ...interface{}) {
	if !quietFlag {
		fmt.Printf(format, args...)
	}
}

// printError prints to stderr regardless of quiet mode.
func printError(format string, args ...interface{}) {
	fmt.Fprintf(os.Stderr, "Error: "+format+"\n", args...)
}

// signalContext returns a context canceled on the first SIGINT, matching
// the original tool's done-flag behavior for Ctrl-C. Repeated SIGINTs
// escalate: the first is the graceful cancellation above, the second is
// logged as impatience, and the third forces an immediate exit in case
// whatever is watching ctx.Done() is stuck.
func signalContext() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())

	sigCh := make(chan os.Signal, 3)
	signal.Notify(sigCh, os.Interrupt)

	done := make(chan struct{})
	go func() {
		count := 0
		for {
			select {
			case <-sigCh:
				count++
				switch count {
				case 1:
					cancel()
				case 2:
					printError("interrupted again; one more forces immediate exit")
				default:
					os.Exit(130)
				}
			case <-done:
				return
			}
		}
	}()

	return ctx, func() {
		cancel()
		signal.Stop(sigCh)
		close(done)
	}
}

// openSession dials the configured port, performs the reset handshake,
// and wraps the resulting link in a debug session. The caller owns
// closing the returned link.
func openSession(ctx context.Context) (*session.Session, transport.Transport, error) {
	port := cfg.Port
	if port == "" {
		port = "auto"
	}

	var link transport.Transport
	switch {
	case port == "auto":
		l, err := connectAuto(ctx)
		if err != nil {
			return nil, nil, err
		}
		link = l
	case strings.Contains(port, ":"):
		// host:port addresses dial a serial-to-TCP tunnel instead of a
		// local device path.
		tcp := transport.NewTCP(port)
		if err := tcp.Connect(); err != nil {
			return nil, nil, fmt.Errorf("failed to open connection: %w", err)
		}
		if err := tcp.Reset(ctx); err != nil {
			tcp.Close()
			return nil, nil, fmt.Errorf("failed to reset link: %w", err)
		}
		link = tcp
	default:
		serial := transport.NewSerial(port, cfg.Baud)
		if err := serial.Connect(); err != nil {
			return nil, nil, fmt.Errorf("failed to open connection: %w", err)
		}
		if err := serial.Reset(ctx); err != nil {
			serial.Close()
			return nil, nil, fmt.Errorf("failed to reset link: %w", err)
		}
		link = serial
	}

	sess := session.New(ocd.New(link))
	return sess, link, nil
}

// sessionOverLink wraps an already-connected transport in a debug session,
// for callers (like the endurance supervisor) that dial the link
// themselves instead of going through openSession.
func sessionOverLink(link transport.Transport) *session.Session {
	return session.New(ocd.New(link))
}

func connectAuto(ctx context.Context) (transport.Transport, error) {
	for _, candidate := range platformPortCandidates() {
		serial := transport.NewSerial(candidate, cfg.Baud)
		if err := serial.Connect(); err != nil {
			continue
		}
		if err := serial.Reset(ctx); err != nil {
			serial.Close()
			continue
		}
		printInfo("connected on %s\n", candidate)
		return serial, nil
	}
	return nil, fmt.Errorf("could not find a responding device among the autoconnect candidates")
}
