package hexfile

import (
	"bytes"
	"strings"
	"testing"

	"github.com/z8ocd/ocdctl/internal/ocderr"
)

func TestEncodeDecodeRoundTrip(t *testing.T) {
	img := NewSparseImage(0x10001, 0xFF)
	img.Data[0x0000] = 0xAA
	img.Data[0x0001] = 0x55
	img.Data[0x10000] = 0x33

	var buf bytes.Buffer
	if err := Encode(&buf, img); err != nil {
		t.Fatalf("Encode: %v", err)
	}

	decoded := NewSparseImage(len(img.Data), 0xFF)
	if err := Decode(&buf, decoded); err != nil {
		t.Fatalf("Decode: %v", err)
	}

	for addr := range img.Data {
		if decoded.Data[addr] != img.Data[addr] {
			t.Fatalf("decoded[0x%X] = 0x%02X, want 0x%02X", addr, decoded.Data[addr], img.Data[addr])
		}
	}
}

func TestDecodeRejectsChecksumMismatch(t *testing.T) {
	img := NewSparseImage(16, 0xFF)
	// Valid-looking record with a deliberately wrong checksum byte.
	err := Decode(strings.NewReader(":01000000AAFF\n"), img)
	if !ocderr.Is(err, ocderr.HexCorrupt) {
		t.Fatalf("Decode with bad checksum = %v, want HexCorrupt", err)
	}
}

func TestDecodeRejectsOverlappingWrites(t *testing.T) {
	img := NewSparseImage(16, 0xFF)
	src := ":01000000AA55\n:0100000001FE\n"
	err := Decode(strings.NewReader(src), img)
	if !ocderr.Is(err, ocderr.HexOverlap) {
		t.Fatalf("Decode with overlapping records = %v, want HexOverlap", err)
	}
}

func TestDecodeRejectsOddNibbleCount(t *testing.T) {
	img := NewSparseImage(16, 0xFF)
	err := Decode(strings.NewReader(":0100000AA55\n"), img)
	if !ocderr.Is(err, ocderr.HexCorrupt) {
		t.Fatalf("Decode with odd nibble count = %v, want HexCorrupt", err)
	}
}

func TestEncodeInsertsExtendedLinearAddressAt64KiBBoundary(t *testing.T) {
	img := NewSparseImage(0x10010, 0xFF)
	img.Data[0x10000] = 0x42

	var buf bytes.Buffer
	if err := Encode(&buf, img); err != nil {
		t.Fatalf("Encode: %v", err)
	}
	if !strings.Contains(buf.String(), ":02000004") {
		t.Fatal("Encode output missing extended linear address record at 64 KiB boundary")
	}
	if !strings.HasSuffix(strings.TrimRight(buf.String(), "\n"), ":00000001FF") {
		t.Fatal("Encode output missing terminating EOF record :00000001FF")
	}
}
