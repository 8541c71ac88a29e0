package transport

import (
	"context"

	"github.com/z8ocd/ocdctl/internal/ocderr"
)

// Fake is an in-memory Transport that simulates a device on the other end
// of the wire. Tests install a Responder to compute the bytes the
// "device" echoes/returns for each Write, including deliberately corrupting
// the echo to exercise BusCollision handling.
type Fake struct {
	isOpen bool
	isUp   bool

	// Responder, if set, is invoked on every Write with the bytes the host
	// transmitted. It returns the bytes that should come back on Read —
	// normally the same bytes (a perfect echo) followed by any response
	// payload queued separately via QueueRead.
	Responder func(written []byte) (echo []byte)

	readQueue [][]byte

	// ResetErr, when non-nil, is returned by Reset instead of succeeding.
	ResetErr error

	writes [][]byte
}

// NewFake returns a Fake transport that is open but not yet up (mirrors a
// freshly connected, not-yet-reset link).
func NewFake() *Fake {
	return &Fake{isOpen: true}
}

// QueueRead appends bytes that will be returned by the next Read calls
// after the echo for a pending Write has been consumed. Used to simulate a
// response payload following the echoed request.
func (f *Fake) QueueRead(b []byte) {
	f.readQueue = append(f.readQueue, append([]byte(nil), b...))
}

// Writes returns every byte slice transmitted so far, for assertions.
func (f *Fake) Writes() [][]byte { return f.writes }

func (f *Fake) Open() bool { return f.isOpen }
func (f *Fake) Up() bool   { return f.isUp }

func (f *Fake) Close() error {
	f.isOpen = false
	f.isUp = false
	return nil
}

func (f *Fake) Reset(ctx context.Context) error {
	if f.ResetErr != nil {
		return f.ResetErr
	}
	f.isUp = true
	return nil
}

func (f *Fake) Available() (bool, error) {
	return len(f.readQueue) > 0, nil
}

func (f *Fake) Read(ctx context.Context, buf []byte) error {
	if len(f.readQueue) == 0 {
		return ocderr.New(ocderr.Timeout, "read from on-chip debugger failed: serial port read timeout")
	}
	next := f.readQueue[0]
	if len(next) < len(buf) {
		return ocderr.New(ocderr.ShortRead, "read from on-chip debugger failed: characters lost")
	}
	copy(buf, next[:len(buf)])
	remainder := next[len(buf):]
	if len(remainder) == 0 {
		f.readQueue = f.readQueue[1:]
	} else {
		f.readQueue[0] = remainder
	}
	return nil
}

func (f *Fake) Write(ctx context.Context, buf []byte) error {
	f.writes = append(f.writes, append([]byte(nil), buf...))

	echo := buf
	if f.Responder != nil {
		echo = f.Responder(buf)
	}
	f.QueueRead(echo)

	readBack := make([]byte, len(buf))
	if err := f.Read(ctx, readBack); err != nil {
		return err
	}
	for i := range buf {
		if readBack[i] != buf[i] {
			f.isUp = false
			return ocderr.New(ocderr.BusCollision, "write to on-chip debugger failed: transmit collision detected")
		}
	}
	return nil
}
