package session

// MemSizeTableKind selects which of the two memory-size decode tables a
// revision uses.
type MemSizeTableKind int

const (
	MemSizeTableGeneral MemSizeTableKind = iota
	MemSizeTableLegacy
)

// RevisionCaps consolidates the scattered switch(dbgrev) dispatch the
// original client sprinkled through nearly every method into one table
// consulted wherever behavior depends on silicon revision.
type RevisionCaps struct {
	// HasHWBreakpoint is true for revisions with a hardware PC-compare
	// breakpoint (BRK_PC); false means run_to/next must plant a temporary
	// software breakpoint instead.
	HasHWBreakpoint bool

	// HasCntrBreakpoint is true for revisions that support run_clks's
	// clock-counter breakpoint (BRK_CNTR).
	HasCntrBreakpoint bool

	// NeedsIRQCtlDance is true only for revision 0x0100, which has a
	// pending-interrupt erratum: stepping must save, clear, step, and
	// restore the IRQCTL master-enable bit around the stepped instruction.
	NeedsIRQCtlDance bool

	// MemSizeTableKind picks the memory-size decode table.
	MemSizeTableKind MemSizeTableKind

	// CanRunProtected is false for early revisions that cannot reenter run
	// mode while memory read-protect is latched.
	CanRunProtected bool
}

// capsFor returns the capability set for a given dbg_rev. Unknown
// revisions get the most capable (newest) profile, matching the original
// client's default-case behavior in its memory_size() switch.
func capsFor(rev uint16) RevisionCaps {
	switch rev {
	case 0x0100, 0x0110:
		return RevisionCaps{
			HasHWBreakpoint:   false,
			HasCntrBreakpoint: false,
			NeedsIRQCtlDance:  rev == 0x0100,
			MemSizeTableKind:  memSizeTableKindFor(rev),
			CanRunProtected:   false,
		}
	case 0x0120:
		return RevisionCaps{
			HasHWBreakpoint:   true,
			HasCntrBreakpoint: true,
			NeedsIRQCtlDance:  false,
			MemSizeTableKind:  memSizeTableKindFor(rev),
			CanRunProtected:   false,
		}
	default:
		return RevisionCaps{
			HasHWBreakpoint:   true,
			HasCntrBreakpoint: true,
			NeedsIRQCtlDance:  false,
			MemSizeTableKind:  memSizeTableKindFor(rev),
			CanRunProtected:   true,
		}
	}
}

func memSizeTableKindFor(rev uint16) MemSizeTableKind {
	if isLegacyRevision(rev) {
		return MemSizeTableLegacy
	}
	return MemSizeTableGeneral
}
