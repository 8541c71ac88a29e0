package session

// Register-file geometry. The low 0xF00 bytes are general-purpose RAM
// mapped into the register file; [0xF00, 0x1000) is the peripheral
// control-register window, which stays reachable even when memory
// read-protect is latched.
const (
	MainMemSize    = 0x10000 // program memory, up to 64 KiB
	InfoMemSize    = 0x0100  // one info page
	RegMemSize     = 0x1000  // register file
	PeripheralBase = 0x0F00
)

// IRQCTL holds the interrupt master-enable bit (0x80) in its high bit.
// Only silicon revision 0x0100 needs it saved/cleared/restored around a
// step, to dodge a pending-interrupt erratum in that revision's core.
const (
	irqctlAddr       = 0x0FC0
	irqctlMasterBit  = 0x80
	diOpcode    uint8 = 0x23 // DI: disable interrupts
)

// Opcodes next() recognizes as calls worth stepping over rather than into.
const (
	opcodeCallDA  uint8 = 0xD6 // call da  (3-byte instruction)
	opcodeCallIRR uint8 = 0xD4 // call irr (2-byte instruction)
)

// resetPollInterval and resetTimeoutSeconds bound reset_chip's poll loop;
// the device typically clears DBG_CTL.RST within 10ms.
const resetPollInterval = 5 // milliseconds
const resetTimeoutSeconds = 5
