package binfile

import (
	"bufio"
	"encoding/hex"
	"fmt"
	"io"
	"strings"

	"mspcore/internal/errs"
)

// ExtractIHEX parses an Intel HEX stream, ported line-for-line from
// original_source/formats/ihex.c (the formats/ directory version is
// canonical; the root ihex.c is an older duplicate — see DESIGN.md).
//
// Record types 00 (data), 01 (EOF) and 03 (start segment address) are
// handled; 01/03 are silently ignored, matching feed_line exactly. Type
// 02 sets a 16-byte segment base (shifted left 4), type 04 a 64 KiB
// linear base (shifted left 16); any other type is a skippable warning,
// not an error, per spec §4.2's "unknown HEX record types" rule.
func ExtractIHEX(r io.Reader, warn func(string), emit Sink) error {
	scanner := bufio.NewScanner(r)
	lno := 0
	var segmentOffset uint32

	for scanner.Scan() {
		lno++
		line := strings.TrimRight(scanner.Text(), " \t\r\n")
		if line == "" {
			continue
		}
		if line[0] != ':' {
			warnf(warn, "ihex: line %d: invalid start marker", lno)
			continue
		}
		raw, err := hex.DecodeString(line[1:])
		if err != nil {
			return errs.NewBinfile("ihex", lno, "malformed hex digits")
		}
		if err := feedIHEXLine(raw, lno, &segmentOffset, warn, emit); err != nil {
			return errs.NewBinfile("ihex", lno, err.Error())
		}
	}
	return scanner.Err()
}

func feedIHEXLine(data []byte, lno int, segmentOffset *uint32, warn func(string), emit Sink) error {
	if len(data) < 5 {
		return nil
	}

	// Verify checksum: cksum = ~(sum(data[:-1]) - 1) & 0xff, the
	// original's formula, which equals the two's complement of the sum
	// modulo 256.
	var sum byte
	for _, b := range data[:len(data)-1] {
		sum += b
	}
	cksum := ^(sum - 1)
	if data[len(data)-1] != cksum {
		return errs.NewUsage("ihex", "invalid checksum")
	}

	typ := data[3]
	address := uint32(data[1])<<8 | uint32(data[2])
	payload := data[4 : len(data)-1]

	switch typ {
	case 0x00:
		chunk := Chunk{Addr: address + *segmentOffset, Data: append([]byte(nil), payload...)}
		return emit(chunk)

	case 0x01, 0x03:
		// EOF / start-segment-address: accepted, carries nothing to extract.

	case 0x02:
		if len(payload) != 2 {
			return errs.NewUsage("ihex", "invalid 02 record")
		}
		*segmentOffset = (uint32(payload[0])<<8 | uint32(payload[1])) << 4

	case 0x04:
		if len(payload) != 2 {
			return errs.NewUsage("ihex", "invalid 04 record")
		}
		*segmentOffset = (uint32(payload[0])<<8 | uint32(payload[1])) << 16

	default:
		warnf(warn, "ihex: unknown record type: 0x%02x", typ)
	}
	return nil
}

func warnf(warn func(string), format string, args ...any) {
	if warn == nil {
		return
	}
	warn(fmt.Sprintf(format, args...))
}
