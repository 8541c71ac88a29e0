// Package session implements the debug-session engine: a cached shadow of
// device state layered over internal/ocd, enforcing stopped/running and
// read-protect preconditions, and driving run/stop/step/next/run-to,
// breakpoints, and flash programming.
package session

import (
	"context"
	"time"

	"github.com/z8ocd/ocdctl/internal/crc16"
	"github.com/z8ocd/ocdctl/internal/ocd"
	"github.com/z8ocd/ocdctl/internal/ocderr"
)

// cacheBits tracks which fields of the shadow currently agree with the
// device. Each bit has exactly one invalidation rule, enforced by the
// methods below rather than left to callers.
type cacheBits uint16

const (
	cacheDbgRev cacheBits = 1 << iota
	cacheDbgCtl
	cacheDbgStat
	cachePC
	cacheCRC
	cacheMemCRC
	cacheMemSize
)

// Shadow is what the host believes about the attached device.
type Shadow struct {
	DbgRev      uint16
	DbgCtl      uint8
	DbgStat     uint8
	PC          uint16
	CRC         uint16
	MemCRC      uint16
	MemSizeCode uint8
	MemSize     uint32
	SysClkHz    uint32

	valid cacheBits
}

// breakpoint is one entry in the session's breakpoint table.
type breakpoint struct {
	address  uint16
	original uint8
}

// Session is the debug-session engine. It owns the device shadow, the
// three memory buffers, and the breakpoint table; every mutation of
// device state flows through its methods so cache invalidation stays
// correct.
type Session struct {
	framer *ocd.Framer

	shadow Shadow

	mainMem [MainMemSize]byte
	infoMem [InfoMemSize]byte
	regMem  [RegMemSize]byte

	breakpoints []breakpoint
	tbreak      uint16 // 0 means "none set"
	hasTbreak   bool
}

// New creates a session over an already-connected framer. The shadow
// starts fully invalid; memory shadows start filled with 0xFF, matching
// the device's erased state.
func New(framer *ocd.Framer) *Session {
	s := &Session{framer: framer}
	for i := range s.mainMem {
		s.mainMem[i] = 0xFF
	}
	for i := range s.infoMem {
		s.infoMem[i] = 0xFF
	}
	return s
}

// FlushCache invalidates every cached field.
func (s *Session) FlushCache() {
	s.shadow.valid = 0
}

func (s *Session) invalidate(bits cacheBits) {
	s.shadow.valid &^= bits
}

func (s *Session) cacheDbgRev(ctx context.Context) error {
	if s.shadow.valid&cacheDbgRev != 0 {
		return nil
	}
	rev, err := s.framer.RdDbgRev(ctx)
	if err != nil {
		return err
	}
	s.shadow.DbgRev = rev
	s.shadow.valid |= cacheDbgRev
	return nil
}

func (s *Session) cacheDbgCtl(ctx context.Context) error {
	if s.shadow.valid&cacheDbgCtl != 0 {
		return nil
	}
	ctl, err := s.framer.RdDbgCtl(ctx)
	if err != nil {
		return err
	}
	s.shadow.DbgCtl = ctl
	s.shadow.valid |= cacheDbgCtl
	return nil
}

func (s *Session) cacheDbgStat(ctx context.Context) error {
	if s.shadow.valid&cacheDbgStat != 0 {
		return nil
	}
	stat, err := s.framer.RdDbgStat(ctx)
	if err != nil {
		return err
	}
	s.shadow.DbgStat = stat
	s.shadow.valid |= cacheDbgStat
	return nil
}

func (s *Session) cachePC(ctx context.Context) error {
	if s.shadow.valid&cachePC != 0 {
		return nil
	}
	pc, err := s.framer.RdPC(ctx)
	if err != nil {
		return err
	}
	s.shadow.PC = pc
	s.shadow.valid |= cachePC
	return nil
}

func (s *Session) cacheMemSize(ctx context.Context) error {
	if s.shadow.valid&cacheMemSize != 0 {
		return nil
	}
	if err := s.cacheDbgRev(ctx); err != nil {
		return err
	}
	code, err := s.framer.RdMemSize(ctx)
	if err != nil {
		return err
	}
	s.shadow.MemSizeCode = code
	s.shadow.MemSize = decodeMemSize(s.shadow.DbgRev, code)
	s.shadow.valid |= cacheMemSize
	return nil
}

// MemSize returns the program memory size in bytes, reading and caching
// the device's memory-size register on first use.
func (s *Session) MemSize(ctx context.Context) (uint32, error) {
	if err := s.cacheMemSize(ctx); err != nil {
		return 0, err
	}
	return s.shadow.MemSize, nil
}

// caps returns the capability table for the device's cached revision;
// callers must have called cacheDbgRev first.
func (s *Session) caps() RevisionCaps {
	return capsFor(s.shadow.DbgRev)
}

// isStopped reports whether the device is in debug mode.
func (s *Session) isStopped(ctx context.Context) (bool, error) {
	if err := s.cacheDbgCtl(ctx); err != nil {
		return false, err
	}
	return s.shadow.DbgCtl&ocd.DbgCtlMode != 0, nil
}

// isProtected reports whether memory read-protect is latched.
func (s *Session) isProtected(ctx context.Context) (bool, error) {
	if err := s.cacheDbgStat(ctx); err != nil {
		return false, err
	}
	return s.shadow.DbgStat&ocd.DbgStatRdProtect != 0, nil
}

func (s *Session) requireStopped(ctx context.Context, op string) error {
	stopped, err := s.isStopped(ctx)
	if err != nil {
		return err
	}
	if !stopped {
		return ocderr.New(ocderr.DeviceRunning, op+": device is running")
	}
	return nil
}

func (s *Session) requireUnprotected(ctx context.Context, op string) error {
	protected, err := s.isProtected(ctx)
	if err != nil {
		return err
	}
	if protected {
		return ocderr.New(ocderr.ReadProtected, op+": memory read protect is enabled")
	}
	return nil
}

// ResetLink accounts for a link reset by invalidating every cached field;
// it does not reset the transport itself.
func (s *Session) ResetLink(ctx context.Context) error {
	s.FlushCache()
	// The transport's own Reset is invoked by the caller (it lives one
	// layer down, on the link the framer wraps); this method only
	// accounts for the session-visible consequences.
	return nil
}

// Stop puts the device into debug mode if it is not already there, and
// clears any outstanding temporary breakpoint.
func (s *Session) Stop(ctx context.Context) error {
	if s.shadow.valid&cacheDbgCtl != 0 && s.shadow.DbgCtl&ocd.DbgCtlMode != 0 {
		return s.clearTbreak(ctx)
	}

	s.invalidate(cacheDbgCtl)
	if err := s.cacheDbgCtl(ctx); err != nil {
		return err
	}

	if s.shadow.DbgCtl&ocd.DbgCtlMode == 0 {
		ctl := uint8(ocd.DbgCtlMode | ocd.DbgCtlBrkEn)
		if err := s.framer.WrDbgCtl(ctx, ctl); err != nil {
			return err
		}
		s.invalidate(cacheDbgCtl)
		if err := s.cacheDbgCtl(ctx); err != nil {
			return err
		}
		if s.shadow.DbgCtl != ctl {
			return ocderr.New(ocderr.VerifyFailed, "write debug control register: readback verify failed")
		}
	}

	return s.clearTbreak(ctx)
}

func (s *Session) clearTbreak(ctx context.Context) error {
	if !s.hasTbreak {
		return nil
	}
	addr := s.tbreak
	s.hasTbreak = false
	s.tbreak = 0
	return s.RemoveBreakpoint(ctx, addr)
}

// Run puts the device into run mode, single-stepping past a breakpoint
// planted on the current PC first.
func (s *Session) Run(ctx context.Context) error {
	stopped, err := s.isStopped(ctx)
	if err != nil {
		return err
	}
	if !stopped {
		return nil
	}

	if err := s.cacheDbgRev(ctx); err != nil {
		return err
	}
	caps := s.caps()
	if !caps.CanRunProtected {
		protected, err := s.isProtected(ctx)
		if err != nil {
			return err
		}
		if protected {
			return ocderr.New(ocderr.ReadProtected, "cannot enter run mode: memory read protect is enabled")
		}
	}

	if err := s.cachePC(ctx); err != nil {
		return err
	}
	if s.BreakpointSet(s.shadow.PC) {
		if err := s.Step(ctx); err != nil {
			return err
		}
	}

	s.invalidate(cachePC | cacheCRC)
	ctl := uint8(ocd.DbgCtlBrkEn | ocd.DbgCtlBrkAck)
	if err := s.framer.WrDbgCtl(ctx, ctl); err != nil {
		return err
	}
	s.shadow.DbgCtl = ctl
	s.shadow.valid |= cacheDbgCtl
	return nil
}

// RunTo runs until addr is reached, planting a hardware or temporary
// software breakpoint depending on revision capability.
func (s *Session) RunTo(ctx context.Context, addr uint16) error {
	stopped, err := s.isStopped(ctx)
	if err != nil {
		return err
	}
	if !stopped {
		return ocderr.New(ocderr.DeviceRunning, "run_to: device is running")
	}
	if err := s.requireUnprotected(ctx, "run_to"); err != nil {
		return err
	}

	if err := s.cachePC(ctx); err != nil {
		return err
	}
	if s.BreakpointSet(s.shadow.PC) {
		if err := s.Step(ctx); err != nil {
			return err
		}
	}

	if err := s.cacheDbgRev(ctx); err != nil {
		return err
	}
	caps := s.caps()
	ctl := uint8(ocd.DbgCtlBrkEn | ocd.DbgCtlBrkAck)

	if !caps.HasHWBreakpoint {
		if s.hasTbreak {
			return ocderr.New(ocderr.InvalidArgument, "run_to: a temporary breakpoint is already outstanding")
		}
		if s.BreakpointSet(addr) {
			// A permanent breakpoint already traps addr; ride it instead of
			// planting a duplicate, and leave hasTbreak clear so reaching
			// it doesn't remove the caller's own breakpoint afterward.
		} else {
			if err := s.SetBreakpoint(ctx, addr); err != nil {
				return err
			}
			s.tbreak = addr
			s.hasTbreak = true
		}
	} else {
		if err := s.framer.WrCntr(ctx, addr); err != nil {
			return err
		}
		ctl |= ocd.DbgCtlBrkPC
	}

	s.invalidate(cachePC | cacheCRC)
	if err := s.framer.WrDbgCtl(ctx, ctl); err != nil {
		return err
	}
	s.shadow.DbgCtl = ctl
	s.shadow.valid |= cacheDbgCtl
	return nil
}

// RunClks runs for exactly clks target clock cycles using the
// clock-counter breakpoint, unavailable on revisions 0x0100/0x0110.
func (s *Session) RunClks(ctx context.Context, clks uint16) error {
	stopped, err := s.isStopped(ctx)
	if err != nil {
		return err
	}
	if !stopped {
		return ocderr.New(ocderr.DeviceRunning, "run_clks: device is running")
	}
	if err := s.requireUnprotected(ctx, "run_clks"); err != nil {
		return err
	}
	if err := s.cacheDbgRev(ctx); err != nil {
		return err
	}
	if !s.caps().HasCntrBreakpoint {
		return ocderr.New(ocderr.UnsupportedByRevision, "run_clks: hardware version does not support clock runtime")
	}

	if err := s.framer.WrCntr(ctx, clks); err != nil {
		return err
	}
	cntr, err := s.framer.RdCntr(ctx)
	if err != nil {
		return err
	}
	if cntr != clks {
		return ocderr.New(ocderr.VerifyFailed, "write counter: readback verify failed")
	}

	ctl := uint8(ocd.DbgCtlBrkEn | ocd.DbgCtlBrkAck | ocd.DbgCtlBrkCntr)
	s.invalidate(cachePC | cacheCRC)
	if err := s.framer.WrDbgCtl(ctx, ctl); err != nil {
		return err
	}
	s.shadow.DbgCtl = ctl
	s.shadow.valid |= cacheDbgCtl
	return nil
}

// IsRunning polls whether the device is still executing, clearing a
// spent temporary breakpoint the moment it observes the device stopped.
func (s *Session) IsRunning(ctx context.Context) (bool, error) {
	if s.shadow.valid&cacheDbgCtl != 0 && s.shadow.DbgCtl&ocd.DbgCtlMode != 0 {
		return false, nil
	}
	if s.shadow.valid&cacheDbgCtl != 0 {
		ack, err := s.framer.RdAck(ctx)
		if err != nil {
			return false, err
		}
		if !ack {
			return true, nil
		}
	}

	s.invalidate(cacheDbgCtl)
	if err := s.cacheDbgCtl(ctx); err != nil {
		return false, err
	}
	if s.shadow.DbgCtl&ocd.DbgCtlMode != 0 {
		if s.hasTbreak {
			addr := s.tbreak
			s.hasTbreak = false
			s.tbreak = 0
			if err := s.RemoveBreakpoint(ctx, addr); err != nil {
				return false, err
			}
		}
		return false, nil
	}
	return true, nil
}

// Step single-steps the instruction at PC, stepping off a software
// breakpoint's stashed opcode when PC sits on one, and applying the
// revision 0x0100 IRQCTL dance where required.
func (s *Session) Step(ctx context.Context) error {
	if err := s.requireStopped(ctx, "step"); err != nil {
		return err
	}
	if err := s.requireUnprotected(ctx, "step"); err != nil {
		return err
	}
	if err := s.cacheDbgRev(ctx); err != nil {
		return err
	}

	if s.caps().NeedsIRQCtlDance {
		return s.stepWithIRQCtlDance(ctx)
	}
	return s.stepPlain(ctx)
}

func (s *Session) stepPlain(ctx context.Context) error {
	if err := s.cachePC(ctx); err != nil {
		return err
	}
	if bp, ok := s.findBreakpoint(s.shadow.PC); ok {
		s.invalidate(cachePC | cacheCRC)
		return s.framer.StufInst(ctx, bp.original)
	}
	s.invalidate(cachePC | cacheCRC)
	return s.framer.StepInst(ctx)
}

func (s *Session) stepWithIRQCtlDance(ctx context.Context) error {
	if err := s.cachePC(ctx); err != nil {
		return err
	}

	if bp, ok := s.findBreakpoint(s.shadow.PC); ok {
		irqctl, err := s.framer.RdRegs(ctx, irqctlAddr, 1)
		if err != nil {
			return err
		}
		masterWasSet := irqctl[0]&irqctlMasterBit != 0
		if masterWasSet {
			cleared := irqctl[0] &^ irqctlMasterBit
			if err := s.framer.WrRegs(ctx, irqctlAddr, []byte{cleared}); err != nil {
				return err
			}
		}

		s.invalidate(cachePC | cacheCRC)
		if err := s.framer.StufInst(ctx, bp.original); err != nil {
			return err
		}

		if masterWasSet && bp.original != diOpcode {
			return s.framer.WrRegs(ctx, irqctlAddr, irqctl)
		}
		return nil
	}

	irqctl, err := s.framer.RdRegs(ctx, irqctlAddr, 1)
	if err != nil {
		return err
	}
	masterWasSet := irqctl[0]&irqctlMasterBit != 0
	if masterWasSet {
		cleared := irqctl[0] &^ irqctlMasterBit
		if err := s.framer.WrRegs(ctx, irqctlAddr, []byte{cleared}); err != nil {
			return err
		}
	}

	opcode, err := s.framer.RdMem(ctx, s.shadow.PC, 1)
	if err != nil {
		return err
	}

	s.invalidate(cachePC | cacheCRC)
	if err := s.framer.StepInst(ctx); err != nil {
		return err
	}

	if masterWasSet && opcode[0] != diOpcode {
		return s.framer.WrRegs(ctx, irqctlAddr, irqctl)
	}
	return nil
}

// Next steps over the instruction at PC: a long or indirect call gets a
// run-to planted past it, anything else falls through to Step.
func (s *Session) Next(ctx context.Context) error {
	if err := s.requireStopped(ctx, "next"); err != nil {
		return err
	}
	if err := s.requireUnprotected(ctx, "next"); err != nil {
		return err
	}

	if err := s.cachePC(ctx); err != nil {
		return err
	}
	opcode, err := s.framer.RdMem(ctx, s.shadow.PC, 1)
	if err != nil {
		return err
	}

	var target uint16
	switch opcode[0] {
	case opcodeCallDA:
		target = s.shadow.PC + 3
	case opcodeCallIRR:
		target = s.shadow.PC + 2
	}

	if target != 0 {
		return s.RunTo(ctx, target)
	}
	return s.Step(ctx)
}

// ResetChip pulses the chip-reset bit and polls DBG_CTL until RST
// clears, or fails with ResetTimeout after 5 seconds.
func (s *Session) ResetChip(ctx context.Context) error {
	if err := s.cacheDbgCtl(ctx); err != nil {
		return err
	}
	if err := s.framer.WrDbgCtl(ctx, s.shadow.DbgCtl|ocd.DbgCtlRst); err != nil {
		return err
	}

	s.FlushCache()
	deadline := time.Now().Add(resetTimeoutSeconds * time.Second)
	for {
		select {
		case <-ctx.Done():
			return ocderr.Wrap(ocderr.ResetTimeout, "reset chip: canceled", ctx.Err())
		case <-time.After(resetPollInterval * time.Millisecond):
		}

		s.invalidate(cacheDbgCtl)
		if err := s.cacheDbgCtl(ctx); err != nil {
			return err
		}
		if s.shadow.DbgCtl&ocd.DbgCtlRst == 0 {
			return nil
		}
		if time.Now().After(deadline) {
			return ocderr.New(ocderr.ResetTimeout, "reset chip: timeout waiting for reset to finish")
		}
	}
}

// RdPC returns the cached program counter, refreshing it if needed.
func (s *Session) RdPC(ctx context.Context) (uint16, error) {
	if err := s.requireStopped(ctx, "rd_pc"); err != nil {
		return 0, err
	}
	if err := s.requireUnprotected(ctx, "rd_pc"); err != nil {
		return 0, err
	}
	if err := s.cachePC(ctx); err != nil {
		return 0, err
	}
	return s.shadow.PC, nil
}

// WrPC writes and verifies the program counter.
func (s *Session) WrPC(ctx context.Context, addr uint16) error {
	if err := s.requireStopped(ctx, "wr_pc"); err != nil {
		return err
	}
	if err := s.requireUnprotected(ctx, "wr_pc"); err != nil {
		return err
	}

	s.invalidate(cachePC)
	if err := s.framer.WrPC(ctx, addr); err != nil {
		return err
	}
	if err := s.cachePC(ctx); err != nil {
		return err
	}
	if s.shadow.PC != addr {
		return ocderr.New(ocderr.VerifyFailed, "write program counter: readback verify failed")
	}
	return nil
}

// RdRegs reads n bytes from the register file starting at addr.
func (s *Session) RdRegs(ctx context.Context, addr uint16, n int) ([]byte, error) {
	if err := s.requireStopped(ctx, "rd_regs"); err != nil {
		return nil, err
	}
	if addr < PeripheralBase {
		if err := s.requireUnprotected(ctx, "rd_regs"); err != nil {
			return nil, err
		}
	}
	if int(addr)+n > RegMemSize {
		return nil, ocderr.New(ocderr.InvalidAddressRange, "rd_regs: invalid address range")
	}
	return s.framer.RdRegs(ctx, addr, n)
}

// WrRegs writes data to the register file starting at addr, verifying
// the RAM portion of the range via readback (peripheral registers in
// [PeripheralBase, RegMemSize) are not readback-verified).
func (s *Session) WrRegs(ctx context.Context, addr uint16, data []byte) error {
	if err := s.requireStopped(ctx, "wr_regs"); err != nil {
		return err
	}
	if int(addr)+len(data) > RegMemSize {
		return ocderr.New(ocderr.InvalidAddressRange, "wr_regs: invalid address range")
	}
	if addr < PeripheralBase {
		if err := s.requireUnprotected(ctx, "wr_regs"); err != nil {
			return err
		}
	}

	if int(addr) <= flashControlAddr && int(addr)+len(data) > flashControlAddr {
		s.invalidate(cacheCRC)
	}

	if err := s.framer.WrRegs(ctx, addr, data); err != nil {
		return err
	}

	verifyLen := len(data)
	if int(addr) >= PeripheralBase {
		verifyLen = 0
	} else if int(addr)+verifyLen > PeripheralBase {
		verifyLen = PeripheralBase - int(addr)
	}
	if verifyLen == 0 {
		return nil
	}

	readback, err := s.framer.RdRegs(ctx, addr, verifyLen)
	if err != nil {
		return err
	}
	for i := 0; i < verifyLen; i++ {
		if readback[i] != data[i] {
			return ocderr.New(ocderr.VerifyFailed, "write register file: readback verify failed")
		}
	}
	return nil
}

// RdMem reads n bytes of program memory starting at addr, refreshing
// the host shadow with whatever the device reports.
func (s *Session) RdMem(ctx context.Context, addr uint16, n int) ([]byte, error) {
	if err := s.requireStopped(ctx, "rd_mem"); err != nil {
		return nil, err
	}
	if err := s.requireUnprotected(ctx, "rd_mem"); err != nil {
		return nil, err
	}
	data, err := s.framer.RdMem(ctx, addr, n)
	if err != nil {
		return nil, err
	}
	copy(s.mainMem[addr:], data)
	s.invalidate(cacheMemCRC)
	return data, nil
}

// WrMem writes data to program memory starting at addr.
func (s *Session) WrMem(ctx context.Context, addr uint16, data []byte) error {
	if err := s.requireStopped(ctx, "wr_mem"); err != nil {
		return err
	}
	if err := s.requireUnprotected(ctx, "wr_mem"); err != nil {
		return err
	}
	s.invalidate(cachePC | cacheCRC | cacheMemCRC)
	if err := s.framer.WrMem(ctx, addr, data); err != nil {
		return err
	}
	copy(s.mainMem[addr:], data)
	return nil
}

// RdData reads n bytes of external data memory starting at addr.
func (s *Session) RdData(ctx context.Context, addr uint16, n int) ([]byte, error) {
	if err := s.requireStopped(ctx, "rd_data"); err != nil {
		return nil, err
	}
	if err := s.requireUnprotected(ctx, "rd_data"); err != nil {
		return nil, err
	}
	return s.framer.RdData(ctx, addr, n)
}

// WrData writes data to external data memory starting at addr.
func (s *Session) WrData(ctx context.Context, addr uint16, data []byte) error {
	if err := s.requireStopped(ctx, "wr_data"); err != nil {
		return err
	}
	if err := s.requireUnprotected(ctx, "wr_data"); err != nil {
		return err
	}
	return s.framer.WrData(ctx, addr, data)
}

// RdCRC returns the device-computed CRC over all of program memory.
func (s *Session) RdCRC(ctx context.Context) (uint16, error) {
	if err := s.requireStopped(ctx, "rd_crc"); err != nil {
		return 0, err
	}
	return s.framer.RdCRC(ctx)
}

// RdCntr returns the run-counter register.
func (s *Session) RdCntr(ctx context.Context) (uint16, error) {
	if err := s.requireStopped(ctx, "rd_cntr"); err != nil {
		return 0, err
	}
	return s.framer.RdCntr(ctx)
}

// ShadowMemCRC computes the host CRC-CCITT over the first n bytes of the
// main memory shadow, caching it until the shadow is next mutated.
func (s *Session) ShadowMemCRC(n uint32) uint16 {
	if s.shadow.valid&cacheMemCRC != 0 {
		return s.shadow.MemCRC
	}
	s.shadow.MemCRC = crc16.CCITT(0x0000, s.mainMem[:n])
	s.shadow.valid |= cacheMemCRC
	return s.shadow.MemCRC
}

// DbgRev returns the cached debugger silicon revision, caching it first
// if necessary. It never changes except across a link reset.
func (s *Session) DbgRev(ctx context.Context) (uint16, error) {
	if err := s.cacheDbgRev(ctx); err != nil {
		return 0, err
	}
	return s.shadow.DbgRev, nil
}
