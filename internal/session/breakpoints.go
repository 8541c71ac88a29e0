package session

import (
	"context"

	"github.com/z8ocd/ocdctl/internal/ocderr"
)

// breakOpcode is the instruction byte the debugger core substitutes at a
// software breakpoint address; executing it traps back into debug mode.
const breakOpcode uint8 = 0x00

func (s *Session) findBreakpoint(addr uint16) (breakpoint, bool) {
	for _, bp := range s.breakpoints {
		if bp.address == addr {
			return bp, true
		}
	}
	return breakpoint{}, false
}

// BreakpointSet reports whether a breakpoint table entry exists at addr.
func (s *Session) BreakpointSet(addr uint16) bool {
	_, ok := s.findBreakpoint(addr)
	return ok
}

// NumBreakpoints returns how many breakpoints are currently set.
func (s *Session) NumBreakpoints() int {
	return len(s.breakpoints)
}

// Breakpoint returns the address of the i'th breakpoint in table order.
func (s *Session) Breakpoint(i int) (uint16, error) {
	if i < 0 || i >= len(s.breakpoints) {
		return 0, ocderr.New(ocderr.InvalidArgument, "breakpoint: index out of range")
	}
	return s.breakpoints[i].address, nil
}

// SetBreakpoint stashes the instruction byte at addr and overwrites it
// with the debug-break opcode. Setting a breakpoint at an address that
// already has one refuses the duplicate, unlike RemoveBreakpoint's
// idempotent removal.
func (s *Session) SetBreakpoint(ctx context.Context, addr uint16) error {
	if s.BreakpointSet(addr) {
		return ocderr.New(ocderr.InvalidArgument, "set_breakpoint: breakpoint already set at this address")
	}

	if err := s.cacheMemSize(ctx); err != nil {
		return err
	}
	if uint32(addr) >= s.shadow.MemSize {
		return ocderr.New(ocderr.InvalidAddressRange, "set_breakpoint: address outside program memory")
	}

	original, err := s.framer.RdMem(ctx, addr, 1)
	if err != nil {
		return err
	}

	if err := s.framer.WrMem(ctx, addr, []byte{breakOpcode}); err != nil {
		return err
	}

	s.mainMem[addr] = breakOpcode
	s.invalidate(cacheMemCRC)
	s.breakpoints = append(s.breakpoints, breakpoint{address: addr, original: original[0]})
	return nil
}

// RemoveBreakpoint restores the stashed instruction byte at addr and
// drops the table entry. An address with no breakpoint is a silent
// no-op, matching the idempotent removal the supervisor and run_to both
// depend on when cleaning up after themselves.
func (s *Session) RemoveBreakpoint(ctx context.Context, addr uint16) error {
	idx := -1
	for i, bp := range s.breakpoints {
		if bp.address == addr {
			idx = i
			break
		}
	}
	if idx < 0 {
		return nil
	}

	original := s.breakpoints[idx].original
	if err := s.framer.WrMem(ctx, addr, []byte{original}); err != nil {
		return err
	}
	s.mainMem[addr] = original
	s.invalidate(cacheMemCRC)

	s.breakpoints = append(s.breakpoints[:idx], s.breakpoints[idx+1:]...)
	return nil
}
