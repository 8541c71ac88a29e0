package endurance

import (
	"math/rand"
	"testing"
)

func TestFillPatternForcesByteZeroToFF(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	for cycle := uint32(0); cycle < 4; cycle++ {
		buff := make([]byte, 16)
		fillPattern(buff, cycle, rng)
		if buff[0] != 0xFF {
			t.Errorf("cycle %d: buff[0] = 0x%02X, want 0xFF", cycle, buff[0])
		}
	}
}

func TestFillPatternCheckerboard(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	buff := make([]byte, 8)
	fillPattern(buff, 0, rng)
	want := []byte{0xFF, 0x55, 0xAA, 0x55, 0xAA, 0x55, 0xAA, 0x55}
	for i := range want {
		if buff[i] != want[i] {
			t.Fatalf("checkerboard[%d] = 0x%02X, want 0x%02X", i, buff[i], want[i])
		}
	}
}

func TestFillPatternReverseCheckerboard(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	buff := make([]byte, 8)
	fillPattern(buff, 1, rng)
	want := []byte{0xFF, 0xAA, 0x55, 0xAA, 0x55, 0xAA, 0x55, 0xAA}
	for i := range want {
		if buff[i] != want[i] {
			t.Fatalf("reverse checkerboard[%d] = 0x%02X, want 0x%02X", i, buff[i], want[i])
		}
	}
}

func TestFillPatternZeros(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	buff := make([]byte, 8)
	fillPattern(buff, 2, rng)
	for i := 1; i < len(buff); i++ {
		if buff[i] != 0x00 {
			t.Fatalf("zeros[%d] = 0x%02X, want 0x00", i, buff[i])
		}
	}
}
