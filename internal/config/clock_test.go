package config

import "testing"

func TestParseClockFrequency(t *testing.T) {
	got, err := ParseClockFrequency("18.432M")
	if err != nil {
		t.Fatalf("ParseClockFrequency(18.432M): %v", err)
	}
	if got != 18_432_000 {
		t.Fatalf("ParseClockFrequency(18.432M) = %d, want 18432000", got)
	}
}

func TestParseClockFrequencyRejectsBelowFloor(t *testing.T) {
	if _, err := ParseClockFrequency("10k"); err == nil {
		t.Fatal("ParseClockFrequency(10k) succeeded, want error (below 20kHz floor)")
	}
}

func TestParseClockFrequencyRejectsAboveCeiling(t *testing.T) {
	if _, err := ParseClockFrequency("100MHz"); err == nil {
		t.Fatal("ParseClockFrequency(100MHz) succeeded, want error (above 65MHz ceiling)")
	}
}

func TestParseClockFrequencyPlainHz(t *testing.T) {
	got, err := ParseClockFrequency("20000")
	if err != nil {
		t.Fatalf("ParseClockFrequency(20000): %v", err)
	}
	if got != 20_000 {
		t.Fatalf("ParseClockFrequency(20000) = %d, want 20000", got)
	}
}
