// Package transport provides the byte-oriented duplex link beneath the OCD
// framer. Implementations include a serial port (the normal case: host
// TX/RX tied together so every transmitted byte echoes back) and a TCP
// tunnel (for a remote serial-to-network bridge). Both satisfy Transport,
// the capability set named in the design notes: reset, open?, up?,
// available?, read, write.
package transport

import "context"

// Transport is the capability set the OCD framer needs from the wire. It
// intentionally says nothing about baud, device paths, or sockets — those
// are constructor-time concerns of the concrete implementations.
type Transport interface {
	// Reset resynchronizes with the target: a line break longer than nine
	// bit-times (serial; TCP has no break and keeps its existing
	// connection), then the autobaud byte.
	Reset(ctx context.Context) error

	// Open reports whether the underlying resource has been acquired.
	Open() bool

	// Up reports whether the link has completed its reset handshake and is
	// currently believed good. Any read/write fault clears it.
	Up() bool

	// Available performs a non-blocking poll for readable bytes.
	Available() (bool, error)

	// Read blocks until len(buf) bytes arrive or the timeout elapses.
	Read(ctx context.Context, buf []byte) error

	// Write transmits buf, then immediately reads back len(buf) bytes and
	// compares them byte-for-byte against what was sent. This is the
	// echo check: every higher protocol layer relies on it to detect bus
	// collisions.
	Write(ctx context.Context, buf []byte) error

	// Close releases the underlying resource.
	Close() error
}
