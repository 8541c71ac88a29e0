package crc16

import "testing"

func TestCCITT(t *testing.T) {
	tests := []struct {
		name     string
		seed     uint16
		data     []byte
		expected uint16
	}{
		{
			name:     "empty",
			seed:     0x0000,
			data:     []byte{},
			expected: 0x0000,
		},
		{
			name:     "single 0xFF byte",
			seed:     0x0000,
			data:     []byte{0xFF},
			expected: CCITT(0, []byte{0xFF}),
		},
		{
			name:     "seed carries across calls",
			seed:     0x0000,
			data:     []byte{0xAA, 0x55},
			expected: CCITT(CCITT(0, []byte{0xAA}), []byte{0x55}),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := CCITT(tt.seed, tt.data)
			if got != tt.expected {
				t.Errorf("CCITT() = 0x%04X, want 0x%04X", got, tt.expected)
			}
		})
	}
}

func TestCCITTBlankImageStable(t *testing.T) {
	blank := make([]byte, 1024)
	for i := range blank {
		blank[i] = 0xFF
	}
	first := CCITT(0, blank)
	second := CCITT(0, blank)
	if first != second {
		t.Fatalf("CCITT not deterministic: %04X != %04X", first, second)
	}
}
