package ocd

import (
	"context"
	"testing"

	"github.com/z8ocd/ocdctl/internal/ocderr"
	"github.com/z8ocd/ocdctl/internal/transport"
)

func TestRdDbgRevRoundTrip(t *testing.T) {
	fake := transport.NewFake()
	fake.Reset(context.Background())

	fake.Responder = func(written []byte) []byte {
		// echo the opcode byte, then append the two-byte reply
		return append(append([]byte(nil), written...), 0x24, 0x01)
	}

	f := New(fake)
	rev, err := f.RdDbgRev(context.Background())
	if err != nil {
		t.Fatalf("RdDbgRev: %v", err)
	}
	if rev != 0x0124 {
		t.Fatalf("RdDbgRev = 0x%04X, want 0x0124", rev)
	}
}

func TestWriteBusCollision(t *testing.T) {
	fake := transport.NewFake()
	fake.Reset(context.Background())

	// Corrupt a single echoed byte to simulate the target driving the
	// line at the same time the host did.
	fake.Responder = func(written []byte) []byte {
		corrupted := append([]byte(nil), written...)
		corrupted[len(corrupted)-1] ^= 0x01
		return corrupted
	}

	f := New(fake)
	err := f.WrPC(context.Background(), 0x1234)
	if !ocderr.Is(err, ocderr.BusCollision) {
		t.Fatalf("WrPC with corrupted echo = %v, want BusCollision", err)
	}
	if fake.Up() {
		t.Fatal("link.Up() should be false after a bus collision")
	}
}

func TestRdRegsRoundTrip(t *testing.T) {
	fake := transport.NewFake()
	fake.Reset(context.Background())

	want := []byte{0xDE, 0xAD, 0xBE, 0xEF}
	fake.Responder = func(written []byte) []byte {
		return append(append([]byte(nil), written...), want...)
	}

	f := New(fake)
	got, err := f.RdRegs(context.Background(), 0x0010, len(want))
	if err != nil {
		t.Fatalf("RdRegs: %v", err)
	}
	if string(got) != string(want) {
		t.Fatalf("RdRegs = %x, want %x", got, want)
	}
}
