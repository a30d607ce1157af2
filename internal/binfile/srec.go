package binfile

import (
	"bufio"
	"encoding/hex"
	"io"
	"strings"

	"mspcore/internal/errs"
)

// ExtractSRecord parses a Motorola S-record stream, ported from
// original_source/formats/srec.c. Only S1/S2/S3 carry data (2/3/4-byte
// addresses respectively); S0/S5/S7/S8/S9 are checksum-verified but
// produce no chunk, matching srec_extract exactly.
func ExtractSRecord(r io.Reader, emit Sink) error {
	scanner := bufio.NewScanner(r)
	lno := 0

	for scanner.Scan() {
		lno++
		line := strings.TrimRight(scanner.Text(), " \t\r\n")
		if line == "" {
			continue
		}
		if line[0] != 'S' {
			return errs.NewBinfile("srec", lno, "garbage on line")
		}
		if len(line) < 4 {
			return errs.NewBinfile("srec", lno, "line too short")
		}

		bytes, err := hex.DecodeString(line[2:])
		if err != nil {
			return errs.NewBinfile("srec", lno, "malformed hex digits")
		}
		if len(bytes) < 2 {
			return errs.NewBinfile("srec", lno, "too few bytes")
		}
		count := int(bytes[0]) + 1
		if count != len(bytes) {
			return errs.NewBinfile("srec", lno, "byte count mismatch")
		}

		var sum byte
		for _, b := range bytes[:len(bytes)-1] {
			sum += b
		}
		if ^sum != bytes[len(bytes)-1] {
			return errs.NewBinfile("srec", lno, "checksum error")
		}

		typ := line[1]
		if typ >= '1' && typ <= '3' {
			addrBytes := int(typ-'1') + 2
			if len(bytes) < addrBytes+2 {
				return errs.NewBinfile("srec", lno, "too few address bytes")
			}
			var addr uint32
			for i := 0; i < addrBytes; i++ {
				addr = addr<<8 | uint32(bytes[i+1])
			}
			data := bytes[addrBytes+1 : len(bytes)-1]
			if err := emit(Chunk{Addr: addr, Data: append([]byte(nil), data...)}); err != nil {
				return errs.NewBinfile("srec", lno, err.Error())
			}
		}
	}
	return scanner.Err()
}
