package transport

import (
	"context"
	"net"
	"time"

	"github.com/z8ocd/ocdctl/internal/ocderr"
)

// TCP is a Transport backed by a network socket, used when the on-chip
// debugger is reached through a serial-to-TCP tunnel rather than a direct
// serial port. The echo-check contract is identical: the tunnel is expected
// to relay the host's own transmitted bytes back exactly as a tied-together
// serial line would.
type TCP struct {
	addr   string
	conn   net.Conn
	isOpen bool
	isUp   bool
}

// NewTCP builds a TCP transport for the given host:port tunnel address.
func NewTCP(addr string) *TCP {
	return &TCP{addr: addr}
}

// Connect dials the tunnel.
func (t *TCP) Connect() error {
	conn, err := net.DialTimeout("tcp", t.addr, 10*time.Second)
	if err != nil {
		return ocderr.Wrap(ocderr.LinkNotOpen, "dial tunnel "+t.addr, err)
	}
	t.conn = conn
	t.isOpen = true
	return nil
}

func (t *TCP) Open() bool { return t.isOpen }
func (t *TCP) Up() bool   { return t.isUp }

func (t *TCP) Close() error {
	if t.conn == nil {
		return nil
	}
	t.isOpen = false
	t.isUp = false
	err := t.conn.Close()
	t.conn = nil
	return err
}

// Reset has no physical line-break equivalent over a TCP tunnel; it simply
// marks the link up and sends the autobaud byte, trusting the bridge at the
// far end to have already synchronized (or to resynchronize on receipt of
// 0x80, same as a real serial target).
func (t *TCP) Reset(ctx context.Context) error {
	if !t.isOpen {
		return ocderr.New(ocderr.LinkNotOpen, "reset on-chip debugger link: tunnel not open")
	}
	t.isUp = true
	return t.Write(ctx, []byte{autobaudCharacter})
}

func (t *TCP) Available() (bool, error) {
	if !t.isOpen || !t.isUp {
		return false, ocderr.New(ocderr.LinkDown, "tunnel not ready")
	}
	if err := t.conn.SetReadDeadline(time.Now()); err != nil {
		return false, ocderr.Wrap(ocderr.IoError, "poll tunnel", err)
	}
	defer t.conn.SetReadDeadline(time.Time{})
	var probe [1]byte
	n, err := t.conn.Read(probe[:])
	if n > 0 {
		return true, nil
	}
	if nerr, ok := err.(net.Error); ok && nerr.Timeout() {
		return false, nil
	}
	return false, nil
}

func (t *TCP) Read(ctx context.Context, buf []byte) error {
	if !t.isOpen {
		return ocderr.New(ocderr.LinkNotOpen, "cannot read from on-chip debugger: tunnel not open")
	}
	if !t.isUp {
		return ocderr.New(ocderr.LinkDown, "cannot read from on-chip debugger: link needs to be reset first")
	}

	if dl, ok := ctx.Deadline(); ok {
		t.conn.SetReadDeadline(dl)
	} else {
		t.conn.SetReadDeadline(time.Now().Add(30 * time.Second))
	}

	total := 0
	for total < len(buf) {
		n, err := t.conn.Read(buf[total:])
		if err != nil {
			t.isUp = false
			return ocderr.Wrap(ocderr.ShortRead, "tunnel read error", err)
		}
		if n == 0 {
			t.isUp = false
			return ocderr.New(ocderr.Timeout, "tunnel read timeout")
		}
		total += n
	}
	return nil
}

func (t *TCP) Write(ctx context.Context, buf []byte) error {
	if !t.isOpen {
		return ocderr.New(ocderr.LinkNotOpen, "cannot write to on-chip debugger: tunnel not open")
	}
	if !t.isUp {
		return ocderr.New(ocderr.LinkDown, "cannot write to on-chip debugger: link needs to be reset first")
	}

	total := 0
	for total < len(buf) {
		n, err := t.conn.Write(buf[total:])
		if err != nil {
			t.isUp = false
			return ocderr.Wrap(ocderr.IoError, "tunnel write error", err)
		}
		total += n
	}

	echo := make([]byte, len(buf))
	if err := t.Read(ctx, echo); err != nil {
		return err
	}
	for i := range buf {
		if echo[i] != buf[i] {
			t.isUp = false
			return ocderr.New(ocderr.BusCollision, "write to on-chip debugger failed: transmit collision detected")
		}
	}
	return nil
}
