package session

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/z8ocd/ocdctl/internal/crc16"
	"github.com/z8ocd/ocdctl/internal/ocd"
	"github.com/z8ocd/ocdctl/internal/ocderr"
	"github.com/z8ocd/ocdctl/internal/transport"
)

// Wire opcodes, mirrored here from internal/ocd/commands.go (unexported
// there) so the fake device below can dispatch on them.
const (
	wireRdDbgRev  = 0x00
	wireRdDbgCtl  = 0x01
	wireWrDbgCtl  = 0x02
	wireRdDbgStat = 0x03
	wireRdPC      = 0x04
	wireWrPC      = 0x05
	wireRdCntr    = 0x06
	wireWrCntr    = 0x07
	wireRdCRC     = 0x08
	wireRdMemSize = 0x09
	wireRdRegs    = 0x0a
	wireWrRegs    = 0x0b
	wireRdData    = 0x0c
	wireWrData    = 0x0d
	wireRdMem     = 0x0e
	wireWrMem     = 0x0f
	wireStepInst  = 0x10
	wireStufInst  = 0x11
	wireRdAck     = 0x12
)

// fakeDevice simulates just enough of the on-chip debugger's register
// file and memory to drive the session engine through its state machine
// in tests, dispatching on the opcode byte like the real silicon would.
type fakeDevice struct {
	dbgRev  uint16
	dbgCtl  uint8
	dbgStat uint8
	pc      uint16
	cntr    uint16
	memSize uint8
	mem     [MainMemSize]byte
	regs    [RegMemSize]byte
}

func newFakeDevice(rev uint16) *fakeDevice {
	d := &fakeDevice{dbgRev: rev, dbgCtl: ocd.DbgCtlMode}
	for i := range d.mem {
		d.mem[i] = 0xFF
	}
	return d
}

func le16(v uint16) []byte { return []byte{byte(v), byte(v >> 8)} }

func (d *fakeDevice) respond(written []byte) []byte {
	opcode := written[0]
	payload := written[1:]
	echo := append([]byte(nil), written...)

	switch opcode {
	case wireRdDbgRev:
		return append(echo, le16(d.dbgRev)...)
	case wireRdDbgCtl:
		return append(echo, d.dbgCtl)
	case wireWrDbgCtl:
		d.dbgCtl = payload[0]
		return echo
	case wireRdDbgStat:
		return append(echo, d.dbgStat)
	case wireRdPC:
		return append(echo, le16(d.pc)...)
	case wireWrPC:
		d.pc = uint16(payload[0]) | uint16(payload[1])<<8
		return echo
	case wireRdCntr:
		return append(echo, le16(d.cntr)...)
	case wireWrCntr:
		d.cntr = uint16(payload[0]) | uint16(payload[1])<<8
		return echo
	case wireRdCRC:
		size := decodeMemSize(d.dbgRev, d.memSize)
		return append(echo, le16(crc16.CCITT(0x0000, d.mem[:size]))...)
	case wireRdMemSize:
		return append(echo, d.memSize)
	case wireRdRegs:
		addr := uint16(payload[0]) | uint16(payload[1])<<8
		n := int(uint16(payload[2]) | uint16(payload[3])<<8)
		return append(echo, d.regs[addr:int(addr)+n]...)
	case wireWrRegs:
		addr := uint16(payload[0]) | uint16(payload[1])<<8
		n := int(uint16(payload[2]) | uint16(payload[3])<<8)
		copy(d.regs[addr:int(addr)+n], payload[4:4+n])
		return echo
	case wireRdMem:
		addr := uint16(payload[0]) | uint16(payload[1])<<8
		n := int(uint16(payload[2]) | uint16(payload[3])<<8)
		return append(echo, d.mem[addr:int(addr)+n]...)
	case wireWrMem:
		addr := uint16(payload[0]) | uint16(payload[1])<<8
		n := int(uint16(payload[2]) | uint16(payload[3])<<8)
		copy(d.mem[addr:int(addr)+n], payload[4:4+n])
		return echo
	case wireStepInst:
		d.pc++
		return echo
	case wireStufInst:
		return echo
	case wireRdAck:
		return append(echo, 1)
	default:
		return echo
	}
}

func newTestSession(t *testing.T, rev uint16) (*Session, *fakeDevice, *transport.Fake) {
	t.Helper()
	dev := newFakeDevice(rev)
	fake := transport.NewFake()
	if err := fake.Reset(context.Background()); err != nil {
		t.Fatalf("fake reset: %v", err)
	}
	fake.Responder = dev.respond
	s := New(ocd.New(fake))
	return s, dev, fake
}

func TestStopWritesDbgModeAndBrkEn(t *testing.T) {
	ctx := context.Background()
	s, dev, _ := newTestSession(t, 0x0130)
	dev.dbgCtl = 0x00 // running

	if err := s.Stop(ctx); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	want := uint8(ocd.DbgCtlMode | ocd.DbgCtlBrkEn)
	if dev.dbgCtl != want {
		t.Fatalf("device dbgctl = 0x%02X, want 0x%02X", dev.dbgCtl, want)
	}
}

func TestWrPCThenRdPCRoundTrip(t *testing.T) {
	ctx := context.Background()
	s, _, _ := newTestSession(t, 0x0130)

	if err := s.WrPC(ctx, 0x4242); err != nil {
		t.Fatalf("WrPC: %v", err)
	}
	s.invalidate(cachePC)
	got, err := s.RdPC(ctx)
	if err != nil {
		t.Fatalf("RdPC: %v", err)
	}
	if got != 0x4242 {
		t.Fatalf("RdPC = 0x%04X, want 0x4242", got)
	}
}

func TestWrRegsThenRdRegsRoundTrip(t *testing.T) {
	ctx := context.Background()
	s, _, _ := newTestSession(t, 0x0130)

	data := []byte{0x01, 0x02, 0x03, 0x04}
	require.NoError(t, s.WrRegs(ctx, 0x0010, data))
	got, err := s.RdRegs(ctx, 0x0010, len(data))
	require.NoError(t, err)
	assert.Equal(t, data, got)
}

func TestSetBreakpointThenRemoveBreakpointRestoresOpcode(t *testing.T) {
	ctx := context.Background()
	s, dev, _ := newTestSession(t, 0x0130)
	dev.memSize = 0x05 // 32 KiB via general table, large enough for addr below
	dev.mem[0x1000] = 0xC9

	require.NoError(t, s.SetBreakpoint(ctx, 0x1000))
	assert.Equal(t, breakOpcode, dev.mem[0x1000])
	assert.True(t, s.BreakpointSet(0x1000))

	require.NoError(t, s.RemoveBreakpoint(ctx, 0x1000))
	assert.Equal(t, byte(0xC9), dev.mem[0x1000])
	assert.False(t, s.BreakpointSet(0x1000))
}

func TestSetBreakpointOnDuplicateAddressIsRefused(t *testing.T) {
	ctx := context.Background()
	s, dev, _ := newTestSession(t, 0x0130)
	dev.memSize = 0x05
	dev.mem[0x1000] = 0xC9

	require.NoError(t, s.SetBreakpoint(ctx, 0x1000))

	err := s.SetBreakpoint(ctx, 0x1000)
	assert.True(t, ocderr.Is(err, ocderr.InvalidArgument), "SetBreakpoint on duplicate address = %v, want InvalidArgument", err)
}

func TestRemoveBreakpointOnMissingAddressIsSilentNoOp(t *testing.T) {
	ctx := context.Background()
	s, _, _ := newTestSession(t, 0x0130)

	if err := s.RemoveBreakpoint(ctx, 0x2000); err != nil {
		t.Fatalf("RemoveBreakpoint on unset address: %v", err)
	}
}

func TestRunClksWritesComputedCtlWithBrkCntrSet(t *testing.T) {
	// Open question resolution: run_clks must write the byte it actually
	// computed, not an uninitialized local; BRK_CNTR must end up set.
	ctx := context.Background()
	s, dev, _ := newTestSession(t, 0x0130)

	if err := s.RunClks(ctx, 1000); err != nil {
		t.Fatalf("RunClks: %v", err)
	}
	if dev.dbgCtl&ocd.DbgCtlBrkCntr == 0 {
		t.Fatalf("device dbgctl = 0x%02X, want BRK_CNTR (0x%02X) set", dev.dbgCtl, ocd.DbgCtlBrkCntr)
	}
	if dev.cntr != 1000 {
		t.Fatalf("device cntr = %d, want 1000", dev.cntr)
	}
}

func TestRunClksUnsupportedOnLegacyRevision(t *testing.T) {
	ctx := context.Background()
	s, _, _ := newTestSession(t, 0x0100)

	err := s.RunClks(ctx, 1000)
	if !ocderr.Is(err, ocderr.UnsupportedByRevision) {
		t.Fatalf("RunClks on rev 0x0100 = %v, want UnsupportedByRevision", err)
	}
}

func TestStepOverSoftwareBreakpointOnLegacyRevisionRestoresIRQCtl(t *testing.T) {
	// Scenario: rev 0x0100, PC sits on a software breakpoint whose stashed
	// opcode is 0x2F (EI), IRQCTL master bit set. Step must clear IRQCTL,
	// stuf_inst the original opcode, then restore IRQCTL because 0x2F is
	// not the disable-interrupts opcode.
	ctx := context.Background()
	s, dev, _ := newTestSession(t, 0x0100)
	dev.dbgCtl = ocd.DbgCtlMode
	dev.regs[irqctlAddr] = 0x80
	dev.mem[0x0200] = 0x2F
	dev.pc = 0x0200

	if err := s.SetBreakpoint(ctx, 0x0200); err != nil {
		t.Fatalf("SetBreakpoint: %v", err)
	}
	s.invalidate(cachePC)

	if err := s.Step(ctx); err != nil {
		t.Fatalf("Step: %v", err)
	}
	if dev.regs[irqctlAddr] != 0x80 {
		t.Fatalf("device IRQCTL = 0x%02X after step, want restored 0x80", dev.regs[irqctlAddr])
	}
}

func TestRunToOnLegacyRevisionPlantsTemporaryBreakpoint(t *testing.T) {
	ctx := context.Background()
	s, dev, _ := newTestSession(t, 0x0100)
	dev.memSize = 0x05
	dev.dbgCtl = ocd.DbgCtlMode
	dev.mem[0x0300] = 0xAB
	dev.pc = 0x0000

	require.NoError(t, s.RunTo(ctx, 0x0300))
	assert.True(t, s.BreakpointSet(0x0300), "RunTo on legacy revision did not plant a breakpoint at the target")
	assert.True(t, s.hasTbreak)
	assert.Equal(t, uint16(0x0300), s.tbreak)
}

func TestRunToOnLegacyRevisionRidesExistingBreakpointWithoutDuplicating(t *testing.T) {
	ctx := context.Background()
	s, dev, _ := newTestSession(t, 0x0100)
	dev.memSize = 0x05
	dev.dbgCtl = ocd.DbgCtlMode
	dev.mem[0x0300] = 0xAB
	dev.pc = 0x0000

	require.NoError(t, s.SetBreakpoint(ctx, 0x0300))
	require.NoError(t, s.RunTo(ctx, 0x0300))

	assert.True(t, s.BreakpointSet(0x0300))
	assert.False(t, s.hasTbreak, "RunTo must not mark a pre-existing breakpoint as its own temporary one")
}

func TestRunToOnModernRevisionUsesHardwareCounterBreakpoint(t *testing.T) {
	ctx := context.Background()
	s, dev, _ := newTestSession(t, 0x0130)
	dev.dbgCtl = ocd.DbgCtlMode

	if err := s.RunTo(ctx, 0x1234); err != nil {
		t.Fatalf("RunTo: %v", err)
	}
	if s.BreakpointSet(0x1234) {
		t.Fatal("RunTo on modern revision should not plant a software breakpoint")
	}
	if dev.cntr != 0x1234 {
		t.Fatalf("device cntr = 0x%04X, want 0x1234", dev.cntr)
	}
	if dev.dbgCtl&ocd.DbgCtlBrkPC == 0 {
		t.Fatal("device dbgctl missing BRK_PC after RunTo on modern revision")
	}
}

func TestFlashWriteThenReadBack(t *testing.T) {
	ctx := context.Background()
	s, dev, _ := newTestSession(t, 0x0130)
	dev.memSize = 0x05 // 32 KiB

	if err := s.WriteFlash(ctx, 0x0010, []byte{0x42}); err != nil {
		t.Fatalf("WriteFlash: %v", err)
	}
	got, err := s.RdMem(ctx, 0x0010, 1)
	if err != nil {
		t.Fatalf("RdMem: %v", err)
	}
	if got[0] != 0x42 {
		t.Fatalf("RdMem = 0x%02X, want 0x42", got[0])
	}
}

func TestFlashWriteRefusesNonErasedCell(t *testing.T) {
	ctx := context.Background()
	s, dev, _ := newTestSession(t, 0x0130)
	dev.memSize = 0x05
	s.mainMem[0x0020] = 0x11 // not erased

	err := s.WriteFlash(ctx, 0x0020, []byte{0x42})
	if !ocderr.Is(err, ocderr.InvalidArgument) {
		t.Fatalf("WriteFlash on non-erased cell = %v, want InvalidArgument", err)
	}
}

func TestRdMemRequiresStopped(t *testing.T) {
	ctx := context.Background()
	s, dev, _ := newTestSession(t, 0x0130)
	dev.dbgCtl = 0x00 // running

	_, err := s.RdMem(ctx, 0x0000, 1)
	if !ocderr.Is(err, ocderr.DeviceRunning) {
		t.Fatalf("RdMem while running = %v, want DeviceRunning", err)
	}
}
