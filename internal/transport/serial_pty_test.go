//go:build linux || darwin

package transport

import (
	"context"
	"testing"
	"time"

	"github.com/creack/pty"
	"github.com/stretchr/testify/require"
)

// TestSerialOverPTYEchoRoundTrip drives Serial against a real tty instead of
// the in-memory fake, so the echo-collision check in Write exercises actual
// termios framing rather than a hand-rolled loopback.
func TestSerialOverPTYEchoRoundTrip(t *testing.T) {
	master, tty, err := pty.Open()
	require.NoError(t, err)
	defer master.Close()
	defer tty.Close()

	go func() {
		buf := make([]byte, 64)
		for {
			n, err := master.Read(buf)
			if err != nil {
				return
			}
			if _, err := master.Write(buf[:n]); err != nil {
				return
			}
		}
	}()

	s := NewSerial(tty.Name(), 9600)
	require.NoError(t, s.Connect())
	defer s.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	require.NoError(t, s.Reset(ctx))

	err = s.Write(ctx, []byte{0xAB, 0xCD})
	require.NoError(t, err)
}
