package transport

import (
	"context"
	"time"

	"go.bug.st/serial"

	"github.com/z8ocd/ocdctl/internal/ocderr"
)

const autobaudCharacter = 0x80

// Serial is a Transport backed by a real serial port, with host TX and RX
// electrically tied together — every transmitted byte is expected back on
// the wire, which Write relies on for its echo check.
type Serial struct {
	port   serial.Port
	device string
	baud   int
	readTO time.Duration
	isOpen bool
	isUp   bool
}

// NewSerial builds a Serial transport for device at the given baud rate.
// The read timeout is derived from baud the way the original on-chip
// debugger client computes it: 65536*1000/baud/4 milliseconds (a quarter
// of the time 65536 bit-times take at this baud), rounded up, plus 100 ms.
func NewSerial(device string, baud int) *Serial {
	timeoutMS := (65536*1000+4*baud-1)/(4*baud) + 100
	return &Serial{
		device: device,
		baud:   baud,
		readTO: time.Duration(timeoutMS) * time.Millisecond,
	}
}

// Connect opens the underlying serial port and configures 8-N-1, no flow
// control. It does not perform the reset handshake; call Reset for that.
func (s *Serial) Connect() error {
	mode := &serial.Mode{
		BaudRate: s.baud,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	}

	port, err := serial.Open(s.device, mode)
	if err != nil {
		return ocderr.Wrap(ocderr.LinkNotOpen, "open serial port "+s.device, err)
	}
	if err := port.SetReadTimeout(s.readTO); err != nil {
		port.Close()
		return ocderr.Wrap(ocderr.LinkNotOpen, "set read timeout", err)
	}

	s.port = port
	s.isOpen = true
	return nil
}

func (s *Serial) Open() bool { return s.isOpen }
func (s *Serial) Up() bool   { return s.isUp }

func (s *Serial) Close() error {
	if s.port == nil {
		return nil
	}
	s.isOpen = false
	s.isUp = false
	err := s.port.Close()
	s.port = nil
	return err
}

// Reset drives a line break longer than nine bit-times, flushes anything
// pending, marks the link up, then sends the autobaud byte so the target
// can lock its receiver on a known bit pattern.
func (s *Serial) Reset(ctx context.Context) error {
	if !s.isOpen {
		return ocderr.New(ocderr.LinkNotOpen, "reset on-chip debugger link: serial port not open")
	}

	s.isUp = false

	if err := s.port.ResetInputBuffer(); err != nil {
		return ocderr.Wrap(ocderr.IoError, "flush input before reset", err)
	}

	bitTime := time.Second / time.Duration(s.baud)
	breakDuration := 10 * bitTime
	if err := s.port.Break(breakDuration); err != nil {
		return ocderr.Wrap(ocderr.IoError, "drive line break", err)
	}
	if err := s.port.ResetInputBuffer(); err != nil {
		return ocderr.Wrap(ocderr.IoError, "flush input after break", err)
	}

	s.isUp = true

	return s.Write(ctx, []byte{autobaudCharacter})
}

func (s *Serial) Available() (bool, error) {
	if !s.isOpen {
		return false, ocderr.New(ocderr.LinkNotOpen, "serial port not open")
	}
	if !s.isUp {
		return false, ocderr.New(ocderr.LinkDown, "link needs to be reset first")
	}
	n, err := s.port.ReadableBytes()
	if err != nil {
		return false, ocderr.Wrap(ocderr.IoError, "poll readable bytes", err)
	}
	return n > 0, nil
}

// Read blocks until buf is filled or the configured timeout elapses.
func (s *Serial) Read(ctx context.Context, buf []byte) error {
	if !s.isOpen {
		return ocderr.New(ocderr.LinkNotOpen, "cannot read from on-chip debugger: serial port not open")
	}
	if !s.isUp {
		return ocderr.New(ocderr.LinkDown, "cannot read from on-chip debugger: link needs to be reset first")
	}

	total := 0
	for total < len(buf) {
		if err := ctx.Err(); err != nil {
			s.isUp = false
			return ocderr.Wrap(ocderr.Timeout, "read cancelled", err)
		}
		n, err := s.port.Read(buf[total:])
		if err != nil {
			s.isUp = false
			return ocderr.Wrap(ocderr.ShortRead, "serial read error", err)
		}
		if n == 0 {
			s.isUp = false
			if total > 0 {
				return ocderr.New(ocderr.ShortRead, "read from on-chip debugger failed: characters lost")
			}
			return ocderr.New(ocderr.Timeout, "read from on-chip debugger failed: serial port read timeout")
		}
		total += n
	}
	return nil
}

// Write transmits buf, then reads back len(buf) bytes and compares them
// against what was sent. A mismatch means the target drove the line at the
// same time the host did — a bus collision.
func (s *Serial) Write(ctx context.Context, buf []byte) error {
	if !s.isOpen {
		return ocderr.New(ocderr.LinkNotOpen, "cannot write to on-chip debugger: serial port not open")
	}
	if !s.isUp {
		return ocderr.New(ocderr.LinkDown, "cannot write to on-chip debugger: link needs to be reset first")
	}

	total := 0
	for total < len(buf) {
		n, err := s.port.Write(buf[total:])
		if err != nil {
			s.isUp = false
			return ocderr.Wrap(ocderr.IoError, "serial write error", err)
		}
		total += n
	}

	echo := make([]byte, len(buf))
	if err := s.Read(ctx, echo); err != nil {
		return err
	}
	for i := range buf {
		if echo[i] != buf[i] {
			s.isUp = false
			return ocderr.New(ocderr.BusCollision, "write to on-chip debugger failed: transmit collision detected")
		}
	}

	return nil
}
