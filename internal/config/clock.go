package config

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/z8ocd/ocdctl/internal/ocderr"
)

const (
	minClockHz = 20_000
	maxClockHz = 65_000_000
)

// ParseClockFrequency parses a target crystal frequency such as
// "18.432M", "20000", or "16MHz" into a value in Hz, accepting the
// suffixes k/K (×1000) and M (×1,000,000) and an optional trailing "Hz",
// and enforcing the [20kHz, 65MHz] range the debug protocol's baud and
// timing derivations assume.
func ParseClockFrequency(s string) (uint32, error) {
	trimmed := strings.TrimSpace(s)
	trimmed = strings.TrimSuffix(trimmed, "Hz")
	if trimmed == "" {
		return 0, ocderr.New(ocderr.InvalidArgument, "clock frequency: empty value")
	}

	multiplier := 1.0
	switch trimmed[len(trimmed)-1] {
	case 'k', 'K':
		multiplier = 1_000
		trimmed = trimmed[:len(trimmed)-1]
	case 'M':
		multiplier = 1_000_000
		trimmed = trimmed[:len(trimmed)-1]
	}

	value, err := strconv.ParseFloat(trimmed, 64)
	if err != nil {
		return 0, ocderr.Wrap(ocderr.InvalidArgument, fmt.Sprintf("clock frequency: invalid number %q", s), err)
	}

	hz := value * multiplier
	if hz < minClockHz || hz > maxClockHz {
		return 0, ocderr.New(ocderr.InvalidArgument,
			fmt.Sprintf("clock frequency %q (%.0f Hz) outside allowed range [%d, %d] Hz", s, hz, minClockHz, maxClockHz))
	}

	return uint32(hz), nil
}
