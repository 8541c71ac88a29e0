package session

import (
	"context"

	"github.com/z8ocd/ocdctl/internal/crc16"
	"github.com/z8ocd/ocdctl/internal/ocderr"
)

// flashControlAddr is the base of the flash-interface control register;
// writing across it invalidates the device CRC cache because flash
// contents may change underneath the host without a wr_mem call.
const flashControlAddr = 0x0FF0

// Flash unlock/lock magic sequence and page-erase trigger, written to the
// flash-control register to arm the program/erase state machine before a
// write and disarm it after.
const (
	flashUnlockSeq1 = 0x73
	flashUnlockSeq2 = 0x8C
	flashLockValue  = 0x00
	flashPageErase  = 0x02
	flashMassErase  = 0x04
)

func (s *Session) flashUnlock(ctx context.Context) error {
	return s.WrRegs(ctx, flashControlAddr, []byte{flashUnlockSeq1, flashUnlockSeq2})
}

func (s *Session) flashLock(ctx context.Context) error {
	return s.WrRegs(ctx, flashControlAddr, []byte{flashLockValue})
}

// WriteFlash writes data at addr, verifying every target cell was
// erased (0xFF) beforehand, then confirms the write by comparing a
// device CRC read against the host CRC of the freshly updated shadow.
// A verify failure leaves the bytes written but reports VerifyFailed;
// the caller decides whether to mass-erase and retry.
func (s *Session) WriteFlash(ctx context.Context, addr uint16, data []byte) error {
	if err := s.requireStopped(ctx, "write_flash"); err != nil {
		return err
	}
	if err := s.requireUnprotected(ctx, "write_flash"); err != nil {
		return err
	}

	for i := range data {
		if s.mainMem[int(addr)+i] != 0xFF {
			return ocderr.New(ocderr.InvalidArgument, "write_flash: target cell not erased")
		}
	}

	if err := s.flashUnlock(ctx); err != nil {
		return err
	}

	writeErr := s.WrMem(ctx, addr, data)

	if lockErr := s.flashLock(ctx); lockErr != nil && writeErr == nil {
		writeErr = lockErr
	}
	if writeErr != nil {
		return writeErr
	}

	memSize, err := s.MemSize(ctx)
	if err != nil {
		return err
	}
	wantCRC := crc16.CCITT(0x0000, s.mainMem[:memSize])

	gotCRC, err := s.RdCRC(ctx)
	if err != nil {
		return err
	}
	if gotCRC != wantCRC {
		return ocderr.New(ocderr.VerifyFailed, "write_flash: device CRC does not match host shadow")
	}

	return nil
}

// FlashMassErase erases the entire flash array, filling the host shadow
// back to 0xFF, and clears any resulting read-protect latch by resetting
// the chip — the device can only drop read protect via mass erase
// followed by a reset.
func (s *Session) FlashMassErase(ctx context.Context) error {
	if err := s.requireStopped(ctx, "flash_mass_erase"); err != nil {
		return err
	}

	if err := s.flashUnlock(ctx); err != nil {
		return err
	}
	if err := s.WrRegs(ctx, flashControlAddr, []byte{flashMassErase}); err != nil {
		return err
	}
	if err := s.flashLock(ctx); err != nil {
		return err
	}

	for i := range s.mainMem {
		s.mainMem[i] = 0xFF
	}
	s.invalidate(cachePC | cacheCRC | cacheMemCRC)

	protected, err := s.isProtected(ctx)
	if err != nil {
		return err
	}
	if protected {
		return s.ResetChip(ctx)
	}
	return nil
}
