package ocd

import (
	"context"
	"encoding/binary"

	"github.com/z8ocd/ocdctl/internal/transport"
)

// Framer maps named debug operations onto opcode-plus-payload byte
// sequences over a transport.Transport. Every method here is a single,
// atomic transaction: it owns the wire for its duration because the
// transport's echo check assumes exclusive access.
//
// Multi-byte register and counter values are little-endian on the wire, to
// match the target CPU's own layout; this is the one place that
// convention is allowed to leak above the transport.
type Framer struct {
	link transport.Transport
}

// New wraps a transport.Transport with the OCD opcode layer.
func New(link transport.Transport) *Framer {
	return &Framer{link: link}
}

func (f *Framer) transact(ctx context.Context, opcode byte, payload []byte, replyLen int) ([]byte, error) {
	frame := make([]byte, 0, 1+len(payload))
	frame = append(frame, opcode)
	frame = append(frame, payload...)
	if err := f.link.Write(ctx, frame); err != nil {
		return nil, err
	}
	if replyLen == 0 {
		return nil, nil
	}
	reply := make([]byte, replyLen)
	if err := f.link.Read(ctx, reply); err != nil {
		return nil, err
	}
	return reply, nil
}

// RdDbgRev reads the debugger silicon revision.
func (f *Framer) RdDbgRev(ctx context.Context) (uint16, error) {
	reply, err := f.transact(ctx, opRdDbgRev, nil, 2)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint16(reply), nil
}

// RdDbgCtl reads the debug control register.
func (f *Framer) RdDbgCtl(ctx context.Context) (uint8, error) {
	reply, err := f.transact(ctx, opRdDbgCtl, nil, 1)
	if err != nil {
		return 0, err
	}
	return reply[0], nil
}

// WrDbgCtl writes the debug control register.
func (f *Framer) WrDbgCtl(ctx context.Context, v uint8) error {
	_, err := f.transact(ctx, opWrDbgCtl, []byte{v}, 0)
	return err
}

// RdDbgStat reads the debug status register.
func (f *Framer) RdDbgStat(ctx context.Context) (uint8, error) {
	reply, err := f.transact(ctx, opRdDbgStat, nil, 1)
	if err != nil {
		return 0, err
	}
	return reply[0], nil
}

// RdPC reads the program counter.
func (f *Framer) RdPC(ctx context.Context) (uint16, error) {
	reply, err := f.transact(ctx, opRdPC, nil, 2)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint16(reply), nil
}

// WrPC writes the program counter.
func (f *Framer) WrPC(ctx context.Context, pc uint16) error {
	payload := make([]byte, 2)
	binary.LittleEndian.PutUint16(payload, pc)
	_, err := f.transact(ctx, opWrPC, payload, 0)
	return err
}

// RdCntr reads the run-counter register used for breakpoint timing.
func (f *Framer) RdCntr(ctx context.Context) (uint16, error) {
	reply, err := f.transact(ctx, opRdCntr, nil, 2)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint16(reply), nil
}

// WrCntr writes the run-counter register.
func (f *Framer) WrCntr(ctx context.Context, v uint16) error {
	payload := make([]byte, 2)
	binary.LittleEndian.PutUint16(payload, v)
	_, err := f.transact(ctx, opWrCntr, payload, 0)
	return err
}

// RdCRC reads the device-computed CRC-CCITT over all of program memory.
// This can be slow: the device walks the entire flash to compute it.
func (f *Framer) RdCRC(ctx context.Context) (uint16, error) {
	reply, err := f.transact(ctx, opRdCRC, nil, 2)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint16(reply), nil
}

// RdMemSize reads the raw memory-size code; the caller decodes it with the
// revision-appropriate table.
func (f *Framer) RdMemSize(ctx context.Context) (uint8, error) {
	reply, err := f.transact(ctx, opRdMemSize, nil, 1)
	if err != nil {
		return 0, err
	}
	return reply[0], nil
}

// RdRegs reads n bytes from the register file starting at addr.
func (f *Framer) RdRegs(ctx context.Context, addr uint16, n int) ([]byte, error) {
	payload := make([]byte, 4)
	binary.LittleEndian.PutUint16(payload[0:2], addr)
	binary.LittleEndian.PutUint16(payload[2:4], uint16(n))
	return f.transact(ctx, opRdRegs, payload, n)
}

// WrRegs writes data to the register file starting at addr.
func (f *Framer) WrRegs(ctx context.Context, addr uint16, data []byte) error {
	payload := make([]byte, 4+len(data))
	binary.LittleEndian.PutUint16(payload[0:2], addr)
	binary.LittleEndian.PutUint16(payload[2:4], uint16(len(data)))
	copy(payload[4:], data)
	_, err := f.transact(ctx, opWrRegs, payload, 0)
	return err
}

// RdData reads n bytes of external data memory starting at addr.
func (f *Framer) RdData(ctx context.Context, addr uint16, n int) ([]byte, error) {
	payload := make([]byte, 4)
	binary.LittleEndian.PutUint16(payload[0:2], addr)
	binary.LittleEndian.PutUint16(payload[2:4], uint16(n))
	return f.transact(ctx, opRdData, payload, n)
}

// WrData writes data to external data memory starting at addr.
func (f *Framer) WrData(ctx context.Context, addr uint16, data []byte) error {
	payload := make([]byte, 4+len(data))
	binary.LittleEndian.PutUint16(payload[0:2], addr)
	binary.LittleEndian.PutUint16(payload[2:4], uint16(len(data)))
	copy(payload[4:], data)
	_, err := f.transact(ctx, opWrData, payload, 0)
	return err
}

// RdMem reads n bytes of program memory starting at addr.
func (f *Framer) RdMem(ctx context.Context, addr uint16, n int) ([]byte, error) {
	payload := make([]byte, 4)
	binary.LittleEndian.PutUint16(payload[0:2], addr)
	binary.LittleEndian.PutUint16(payload[2:4], uint16(n))
	return f.transact(ctx, opRdMem, payload, n)
}

// WrMem writes data to program memory starting at addr.
func (f *Framer) WrMem(ctx context.Context, addr uint16, data []byte) error {
	payload := make([]byte, 4+len(data))
	binary.LittleEndian.PutUint16(payload[0:2], addr)
	binary.LittleEndian.PutUint16(payload[2:4], uint16(len(data)))
	copy(payload[4:], data)
	_, err := f.transact(ctx, opWrMem, payload, 0)
	return err
}

// StepInst single-steps the currently loaded instruction.
func (f *Framer) StepInst(ctx context.Context) error {
	_, err := f.transact(ctx, opStepInst, nil, 0)
	return err
}

// StufInst force-executes opcode as the next instruction without fetching
// it from memory — used to step over a software breakpoint's patched byte.
func (f *Framer) StufInst(ctx context.Context, opcode uint8) error {
	_, err := f.transact(ctx, opStufInst, []byte{opcode}, 0)
	return err
}

// RdAck performs a non-blocking probe for a break acknowledge: it returns
// true once the device has stopped, and false while it is still running
// (including when no byte is waiting). Unlike the other operations this may
// be issued while the device executes.
func (f *Framer) RdAck(ctx context.Context) (bool, error) {
	avail, err := f.link.Available()
	if err != nil {
		return false, err
	}
	if !avail {
		return false, nil
	}
	reply, err := f.transact(ctx, opRdAck, nil, 1)
	if err != nil {
		return false, err
	}
	return reply[0] != 0, nil
}
