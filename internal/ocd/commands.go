// Package ocd implements the on-chip debugger's byte-level framing: one
// opcode-plus-payload transaction per named operation, with the
// transmit-echo check living one layer down in transport.Transport.Write.
package ocd

// Opcodes understood by the on-chip debugger. Each selects a single
// register, memory region, or control action; most take no payload beyond
// the register's own width.
const (
	opRdDbgRev  = 0x00
	opRdDbgCtl  = 0x01
	opWrDbgCtl  = 0x02
	opRdDbgStat = 0x03
	opRdPC      = 0x04
	opWrPC      = 0x05
	opRdCntr    = 0x06
	opWrCntr    = 0x07
	opRdCRC     = 0x08
	opRdMemSize = 0x09
	opRdRegs    = 0x0a
	opWrRegs    = 0x0b
	opRdData    = 0x0c
	opWrData    = 0x0d
	opRdMem     = 0x0e
	opWrMem     = 0x0f
	opStepInst  = 0x10
	opStufInst  = 0x11
	opRdAck     = 0x12
)

// Debug control register bits (DBG_CTL).
const (
	DbgCtlMode    = 0x01 // DBG_MODE: device is stopped
	DbgCtlBrkEn   = 0x02 // BRK_EN
	DbgCtlBrkAck  = 0x04 // BRK_ACK
	DbgCtlBrkPC   = 0x08 // BRK_PC: hardware PC-compare breakpoint armed
	DbgCtlBrkCntr = 0x10 // BRK_CNTR: hardware clock-counter breakpoint armed
	DbgCtlRst     = 0x20 // RST: pulse to reset the chip
)

// Debug status register bits (DBG_STAT).
const (
	DbgStatStopped   = 0x01 // stopped at a breakpoint
	DbgStatRdProtect = 0x02 // read protect latched
)
