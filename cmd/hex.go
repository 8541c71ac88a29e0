package cmd

import "strconv"

// parseHexU16 parses a hex string (no 0x prefix expected) as a uint16
// address or count, the way every memory-touching subcommand's flags do.
func parseHexU16(s string) (uint16, error) {
	v, err := strconv.ParseUint(s, 16, 16)
	if err != nil {
		return 0, err
	}
	return uint16(v), nil
}
