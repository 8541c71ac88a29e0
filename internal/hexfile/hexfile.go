// Package hexfile decodes and encodes the Intel-HEX record format used to
// move firmware images between the host and program-memory shadows.
package hexfile

import (
	"bufio"
	"fmt"
	"io"
	"strings"

	"github.com/z8ocd/ocdctl/internal/ocderr"
)

// MaxImageSize is the full 16-bit address space a device's flash can
// occupy; callers size a SparseImage to this unless they know the
// device's actual, possibly smaller, flash size up front.
const MaxImageSize = 0x10000

// Record types recognized on decode.
const (
	recData                = 0x00
	recEndOfFile           = 0x01
	recExtendedSegmentAddr = 0x02
	recStartSegmentAddr    = 0x03
	recExtendedLinearAddr  = 0x04
	recStartLinearAddr     = 0x05
)

// SparseImage is a fixed-size byte buffer pre-filled with a sentinel
// value; Decode refuses to write twice to the same cell, which is how
// overlapping hex records are detected.
type SparseImage struct {
	Data []byte
	Fill byte
}

// NewSparseImage allocates an image of the given size, pre-filled with
// fill (0xFF for flash, matching the erased state).
func NewSparseImage(size int, fill byte) *SparseImage {
	img := &SparseImage{Data: make([]byte, size), Fill: fill}
	for i := range img.Data {
		img.Data[i] = fill
	}
	return img
}

// Decode reads Intel-HEX records from r into img, starting from whatever
// fill state img is already in (so repeated Decode calls against the
// same image still catch overlaps across files).
func Decode(r io.Reader, img *SparseImage) error {
	sba, lba := uint32(0), uint32(0)
	scanner := bufio.NewScanner(r)
	lineNo := 0

	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if line[0] != ':' {
			return ocderr.New(ocderr.HexCorrupt, fmt.Sprintf("hexfile corrupt at line %d: missing ':'", lineNo))
		}

		raw, err := decodeNibbles(line[1:])
		if err != nil {
			return ocderr.Wrap(ocderr.HexCorrupt, fmt.Sprintf("hexfile corrupt at line %d", lineNo), err)
		}
		if len(raw) < 5 {
			return ocderr.New(ocderr.HexCorrupt, fmt.Sprintf("hexfile corrupt at line %d: record too short", lineNo))
		}

		var checksum uint8
		for _, b := range raw {
			checksum += b
		}
		if checksum != 0x00 {
			return ocderr.New(ocderr.HexCorrupt, fmt.Sprintf("hexfile corrupt at line %d: checksum mismatch", lineNo))
		}

		size := raw[0]
		drlo := uint16(raw[1])<<8 | uint16(raw[2])
		typ := raw[3]

		if int(size) != len(raw)-5 {
			return ocderr.New(ocderr.HexCorrupt, fmt.Sprintf("hexfile corrupt at line %d: length field mismatch", lineNo))
		}
		data := raw[4 : 4+size]

		switch typ {
		case recData:
			for i := 0; i < int(size); i++ {
				var address uint32
				if sba != 0 {
					address = (sba << 4) + (uint32(drlo)+uint32(i))%0x10000
				} else {
					address = ((lba << 16) | uint32(drlo)) + uint32(i)
				}
				if int(address) >= len(img.Data) {
					return ocderr.New(ocderr.HexOverlap, fmt.Sprintf("hexfile line %d: memory out of range at 0x%X", lineNo, address))
				}
				if img.Data[address] != img.Fill {
					return ocderr.New(ocderr.HexOverlap, fmt.Sprintf("hexfile line %d: overlapping data at 0x%X", lineNo, address))
				}
				img.Data[address] = data[i]
			}

		case recEndOfFile:
			if drlo != 0 || size != 0 {
				return ocderr.New(ocderr.HexCorrupt, fmt.Sprintf("hexfile corrupt at line %d: malformed EOF record", lineNo))
			}
			return nil

		case recExtendedSegmentAddr:
			if drlo != 0 || size != 2 {
				return ocderr.New(ocderr.HexCorrupt, fmt.Sprintf("hexfile corrupt at line %d: malformed segment address record", lineNo))
			}
			sba = uint32(data[0])<<8 | uint32(data[1])
			lba = 0

		case recStartSegmentAddr:
			if drlo != 0 || size != 4 {
				return ocderr.New(ocderr.HexCorrupt, fmt.Sprintf("hexfile corrupt at line %d: malformed start segment record", lineNo))
			}

		case recExtendedLinearAddr:
			if drlo != 0 || size != 2 {
				return ocderr.New(ocderr.HexCorrupt, fmt.Sprintf("hexfile corrupt at line %d: malformed linear address record", lineNo))
			}
			lba = uint32(data[0])<<8 | uint32(data[1])
			sba = 0

		case recStartLinearAddr:
			if drlo != 0 || size != 4 {
				return ocderr.New(ocderr.HexCorrupt, fmt.Sprintf("hexfile corrupt at line %d: malformed start linear record", lineNo))
			}

		default:
			return ocderr.New(ocderr.HexCorrupt, fmt.Sprintf("hexfile corrupt at line %d: unknown record type 0x%02X", lineNo, typ))
		}
	}
	if err := scanner.Err(); err != nil {
		return ocderr.Wrap(ocderr.IoError, "hexfile read failed", err)
	}
	return nil
}

func decodeNibbles(s string) ([]byte, error) {
	if len(s)%2 != 0 {
		return nil, fmt.Errorf("odd number of hex nibbles")
	}
	out := make([]byte, len(s)/2)
	for i := 0; i < len(out); i++ {
		hi, err := nibble(s[2*i])
		if err != nil {
			return nil, err
		}
		lo, err := nibble(s[2*i+1])
		if err != nil {
			return nil, err
		}
		out[i] = hi<<4 | lo
	}
	return out, nil
}

func nibble(c byte) (byte, error) {
	switch {
	case c >= '0' && c <= '9':
		return c - '0', nil
	case c >= 'A' && c <= 'F':
		return c - 'A' + 10, nil
	case c >= 'a' && c <= 'f':
		return c - 'a' + 10, nil
	default:
		return 0, fmt.Errorf("invalid hex digit %q", c)
	}
}

// Encode writes img to w as Intel-HEX, in 16-byte records aligned to
// 16-byte boundaries, inserting an extended-linear-address record at
// every 64 KiB boundary and terminating with an end-of-file record.
func Encode(w io.Writer, img *SparseImage) error {
	bw := bufio.NewWriter(w)
	lba := ^uint32(0) // force an extended-linear-address record before the first data record

	offset := uint32(0)
	remaining := len(img.Data)
	for remaining > 0 {
		if offset>>16 != lba {
			lba = offset >> 16
			if err := writeRecord(bw, 0x0000, recExtendedLinearAddr, []byte{byte(lba >> 8), byte(lba)}); err != nil {
				return err
			}
		}

		size := 16 - int(offset%16)
		if size > remaining {
			size = remaining
		}
		if err := writeRecord(bw, uint16(offset), recData, img.Data[offset:int(offset)+size]); err != nil {
			return err
		}

		offset += uint32(size)
		remaining -= size
	}

	if err := writeRecord(bw, 0x0000, recEndOfFile, nil); err != nil {
		return err
	}
	return bw.Flush()
}

func writeRecord(w *bufio.Writer, addr uint16, typ uint8, data []byte) error {
	size := uint8(len(data))
	checksum := size + uint8(addr>>8) + uint8(addr) + typ
	for _, b := range data {
		checksum += b
	}
	checksum = -checksum

	if _, err := fmt.Fprintf(w, ":%02X%04X%02X", size, addr, typ); err != nil {
		return ocderr.Wrap(ocderr.IoError, "hexfile write failed", err)
	}
	for _, b := range data {
		if _, err := fmt.Fprintf(w, "%02X", b); err != nil {
			return ocderr.Wrap(ocderr.IoError, "hexfile write failed", err)
		}
	}
	if _, err := fmt.Fprintf(w, "%02X\n", checksum); err != nil {
		return ocderr.Wrap(ocderr.IoError, "hexfile write failed", err)
	}
	return nil
}
