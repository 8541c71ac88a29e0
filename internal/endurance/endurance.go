// Package endurance implements the crash-resumable supervisor that
// drives continuous mass-erase/blank-check/program/verify cycles against
// a target device to characterize flash wear-out.
package endurance

import (
	"context"
	"fmt"
	"math/rand"
	"os"
	"time"

	"github.com/charmbracelet/log"

	"github.com/z8ocd/ocdctl/internal/config"
	"github.com/z8ocd/ocdctl/internal/crc16"
	"github.com/z8ocd/ocdctl/internal/ocderr"
	"github.com/z8ocd/ocdctl/internal/session"
	"github.com/z8ocd/ocdctl/internal/transport"
)

const maxErrorRetry = 3
const stateSaveInterval = 10
const mailProgressInterval = 10000

// Supervisor drives the endurance loop described in Run. It owns the
// session, the host pattern buffer, and the open state file for its
// lifetime.
type Supervisor struct {
	cfg    config.Config
	sess   *session.Session
	link   transport.Transport
	logger *log.Logger
	mailer Mailer

	memSize uint32
	buff    []byte
	blank   []byte

	cycle      uint32
	errorCount int

	stateFile *os.File
	statePath string

	runDuration time.Duration
}

// New constructs a Supervisor over an already-connected session.
func New(cfg config.Config, sess *session.Session, link transport.Transport, logger *log.Logger) *Supervisor {
	return &Supervisor{
		cfg:    cfg,
		sess:   sess,
		link:   link,
		logger: logger,
		mailer: SendmailMailer{},
	}
}

// Connect implements the autoconnect protocol: for "auto" it walks a
// platform candidate list, otherwise it dials the named port directly.
// On each candidate it requires both a successful transport connect and
// a successful link reset before accepting it.
func Connect(ctx context.Context, cfg config.Config, logger *log.Logger) (transport.Transport, error) {
	candidates := []string{cfg.Port}
	if cfg.Port == "auto" {
		candidates = platformCandidates()
		logger.Info("autoconnecting", "candidates", candidates)
	}

	var lastErr error
	for _, candidate := range candidates {
		link := transport.NewSerial(candidate, cfg.Baud)
		if err := link.Connect(); err != nil {
			lastErr = err
			continue
		}
		if err := link.Reset(ctx); err != nil {
			link.Close()
			lastErr = err
			continue
		}
		logger.Info("connected", "port", candidate)
		return link, nil
	}
	if lastErr == nil {
		lastErr = ocderr.New(ocderr.LinkNotOpen, "no candidate ports configured")
	}
	return nil, ocderr.Wrap(ocderr.LinkNotOpen, "could not connect to device", lastErr)
}

func platformCandidates() []string {
	// Unix-like default; Windows builds of this tool would substitute
	// com1..com4 at this seam.
	return []string{"/dev/ttyS0", "/dev/ttyS1", "/dev/ttyS2", "/dev/ttyS3"}
}

// Configure stops the device, resets it, and caches the program memory
// size, readying the supervisor for Run.
func (sv *Supervisor) Configure(ctx context.Context) error {
	if err := sv.sess.Stop(ctx); err != nil {
		return err
	}
	if err := sv.sess.ResetChip(ctx); err != nil {
		return err
	}
	memSize, err := sv.sess.MemSize(ctx)
	if err != nil {
		return err
	}
	sv.memSize = memSize
	sv.buff = make([]byte, memSize)
	sv.blank = make([]byte, memSize)
	for i := range sv.blank {
		sv.blank[i] = 0xFF
	}
	return nil
}

// OpenState opens the state file read-write without truncating, so a
// prior cycle count survives a restart; it is created if absent. This
// replaces the original tool's "w+" open, which truncated the file
// before ever reading it back.
func (sv *Supervisor) OpenState(path string) error {
	sv.statePath = path
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0o644)
	if err != nil {
		return ocderr.Wrap(ocderr.IoError, "open state file", err)
	}
	sv.stateFile = f

	var n uint32
	if _, err := fmt.Fscanln(f, &n); err == nil {
		sv.cycle = n
	}
	return nil
}

// SaveState rewrites the cycle counter in place and fsyncs it.
func (sv *Supervisor) SaveState() error {
	if sv.stateFile == nil {
		return nil
	}
	if _, err := sv.stateFile.Seek(0, 0); err != nil {
		return ocderr.Wrap(ocderr.IoError, "seek state file", err)
	}
	if _, err := fmt.Fprintf(sv.stateFile, "%d\n", sv.cycle); err != nil {
		return ocderr.Wrap(ocderr.IoError, "write state file", err)
	}
	if err := sv.stateFile.Sync(); err != nil {
		return ocderr.Wrap(ocderr.IoError, "fsync state file", err)
	}
	return nil
}

// CloseState saves and closes the state file.
func (sv *Supervisor) CloseState() error {
	if sv.stateFile == nil {
		return nil
	}
	saveErr := sv.SaveState()
	closeErr := sv.stateFile.Close()
	sv.stateFile = nil
	if saveErr != nil {
		return saveErr
	}
	return closeErr
}

// Cycle returns the current cycle counter.
func (sv *Supervisor) Cycle() uint32 { return sv.cycle }

func (sv *Supervisor) mailStatus(subject, detail string) {
	if sv.cfg.MailTo == "" {
		return
	}
	if err := sv.mailer.Send(sv.cfg.MailTo, sv.cycle, subject, detail); err != nil {
		sv.logger.Warn("mail failed", "err", err)
	}
}

func (sv *Supervisor) eraseDevice(ctx context.Context) error {
	if err := sv.sess.FlashMassErase(ctx); err != nil {
		sv.mailStatus("error during mass erase", err.Error())
		return err
	}
	return nil
}

func (sv *Supervisor) blankCheck(ctx context.Context) error {
	blankCRC := crc16.CCITT(0x0000, sv.blank)
	for i := 0; i < sv.cfg.VerifyRepeat; i++ {
		crc, err := sv.sess.RdCRC(ctx)
		if err != nil {
			sv.errorCount++
			sv.mailStatus("error reading crc", err.Error())
			return err
		}
		if crc != blankCRC {
			sv.errorCount++
			sv.mailStatus("blank check failed", "CRC mismatch")
			return ocderr.New(ocderr.VerifyFailed, "blank check: CRC mismatch")
		}
	}
	return nil
}

// fillPattern fills buff with the pattern selected by cycle mod 4,
// always forcing byte 0 to 0xFF so the reset vector cannot land in an
// illegal opcode.
func fillPattern(buff []byte, cycle uint32, rng *rand.Rand) {
	switch cycle % 4 {
	case 0: // checkerboard
		for addr := range buff {
			if addr&1 != 0 {
				buff[addr] = 0x55
			} else {
				buff[addr] = 0xAA
			}
		}
	case 1: // reverse checkerboard
		for addr := range buff {
			if addr&1 != 0 {
				buff[addr] = 0xAA
			} else {
				buff[addr] = 0x55
			}
		}
	case 2: // zeros
		for addr := range buff {
			buff[addr] = 0x00
		}
	case 3: // random
		rng.Read(buff)
	}
	buff[0] = 0xFF
}

func (sv *Supervisor) programDevice(ctx context.Context) error {
	if err := sv.sess.WrMem(ctx, 0x0000, sv.buff); err != nil {
		sv.errorCount++
		sv.mailStatus("programming failure", err.Error())
		return err
	}
	return nil
}

func (sv *Supervisor) verifyDevice(ctx context.Context, buffCRC uint16) error {
	for i := 0; i < sv.cfg.VerifyRepeat; i++ {
		crc, err := sv.sess.RdCRC(ctx)
		if err != nil {
			sv.errorCount++
			sv.mailStatus("error reading crc", err.Error())
			return err
		}
		if crc != buffCRC {
			sv.errorCount++
			sv.mailStatus("program verify failed", "CRC mismatch")
			return ocderr.New(ocderr.VerifyFailed, "program verify: CRC mismatch")
		}
	}
	return nil
}

// recover retries reset_link, stop, reset_chip up to maxErrorRetry
// times after a transport fault, mailing each attempt's failure.
func (sv *Supervisor) recover(ctx context.Context) error {
	var lastErr error
	for retry := 0; retry < maxErrorRetry; retry++ {
		lastErr = sv.link.Reset(ctx)
		if lastErr == nil {
			lastErr = sv.sess.Stop(ctx)
		}
		if lastErr == nil {
			lastErr = sv.sess.ResetChip(ctx)
		}
		if lastErr == nil {
			return nil
		}
		sv.mailStatus("communication error", lastErr.Error())
	}
	return lastErr
}

// Run executes cycles until max_cycles is reached, three consecutive
// cycles fail, or ctx is canceled. On any exit it mass-erases the
// device, matching the original tool's cleanup-on-exit behavior; the
// caller is responsible for saving and closing state afterward.
func (sv *Supervisor) Run(ctx context.Context) error {
	start := time.Now()
	defer func() { sv.runDuration = time.Since(start) }()

	rng := rand.New(rand.NewSource(int64(sv.cycle) + 1))
	sv.mailStatus("started", "")

	var runErr error
	for {
		if ctx.Err() != nil {
			break
		}
		if sv.errorCount >= 3 {
			break
		}
		if sv.cfg.MaxCycles > 0 && int(sv.cycle) >= sv.cfg.MaxCycles {
			break
		}

		if sv.cycle%stateSaveInterval == 0 {
			if err := sv.SaveState(); err != nil {
				sv.logger.Warn("save state failed", "err", err)
			}
		}
		if sv.cycle != 0 && sv.cycle%mailProgressInterval == 0 {
			sv.mailStatus("running", "")
		}

		if runErr != nil {
			if recoverErr := sv.recover(ctx); recoverErr != nil {
				sv.finish(ctx)
				return recoverErr
			}
			runErr = nil
		}

		if runErr = sv.eraseDevice(ctx); runErr != nil {
			sv.errorCount++
			sv.logger.Error("cycle erase failed", "cycle", sv.cycle, "err", runErr)
			continue
		}

		if runErr = sv.blankCheck(ctx); runErr != nil {
			sv.logger.Error("cycle blank check failed", "cycle", sv.cycle, "err", runErr)
			continue
		}

		fillPattern(sv.buff, sv.cycle, rng)
		buffCRC := crc16.CCITT(0x0000, sv.buff)

		if runErr = sv.programDevice(ctx); runErr != nil {
			sv.logger.Error("cycle program failed", "cycle", sv.cycle, "err", runErr)
			continue
		}

		if runErr = sv.verifyDevice(ctx, buffCRC); runErr != nil {
			sv.logger.Error("cycle verify failed", "cycle", sv.cycle, "err", runErr)
			continue
		}

		sv.cycle++
		sv.errorCount = 0
		sv.logger.Info("cycle complete", "cycle", sv.cycle)
	}

	sv.finish(ctx)
	return nil
}

// finish runs the exit sequence common to every way Run stops: a final
// mass erase, then a "finished" status mail, regardless of whether the
// run stopped on max-cycles, a 3-error abort, context cancellation, or an
// unrecoverable communication error.
func (sv *Supervisor) finish(ctx context.Context) {
	if err := sv.eraseDevice(ctx); err != nil {
		sv.logger.Warn("final erase failed", "err", err)
	}
	sv.mailStatus("finished", "")
}
