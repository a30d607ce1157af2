package binfile

import (
	"bufio"
	"io"
	"strconv"
	"strings"

	"mspcore/internal/errs"
)

// ExtractTIText parses a TI-TXT image stream, ported from
// original_source/titext.c. An address line ("@hhhh") sets the current
// address; a data line is whitespace-separated hex byte pairs emitted
// at that address, after which the address advances by the number of
// bytes emitted. A data line is capped at 64 bytes (data[64] in the
// original); exceeding it is a hard parse error, not truncation.
func ExtractTIText(r io.Reader, emit Sink) error {
	scanner := bufio.NewScanner(r)
	address := uint32(0)
	lno := 0

	for scanner.Scan() {
		lno++
		line := scanner.Text()
		switch {
		case isAddressLine(line):
			v, err := strconv.ParseUint(strings.TrimSpace(line[1:]), 16, 32)
			if err != nil {
				return errs.NewBinfile("titext", lno, "bad address line")
			}
			address = uint32(v)

		case isDataLine(line):
			data, err := parseDataLine(line)
			if err != nil {
				return errs.NewBinfile("titext", lno, err.Error())
			}
			if len(data) > 0 {
				if err := emit(Chunk{Addr: address, Data: data}); err != nil {
					return errs.NewBinfile("titext", lno, err.Error())
				}
			}
			address += uint32(len(data))
		}
	}
	return scanner.Err()
}

func isHexDigit(c byte) bool {
	return (c >= '0' && c <= '9') || (c >= 'A' && c <= 'F') || (c >= 'a' && c <= 'f')
}

func isAddressLine(s string) bool {
	if s == "" || s[0] != '@' {
		return false
	}
	rest := s[1:]
	i := 0
	for i < len(rest) && !isSpaceByte(rest[i]) {
		if !isHexDigit(rest[i]) {
			return false
		}
		i++
	}
	if i == 0 {
		return false
	}
	for ; i < len(rest); i++ {
		if !isSpaceByte(rest[i]) {
			return false
		}
	}
	return true
}

func isDataLine(s string) bool {
	for i := 0; i < len(s); i++ {
		if !(isHexDigit(s[i]) || isSpaceByte(s[i])) {
			return false
		}
	}
	return true
}

func isSpaceByte(c byte) bool {
	return c == ' ' || c == '\t' || c == '\r' || c == '\n'
}

func parseDataLine(s string) ([]byte, error) {
	var data []byte
	value := 0
	digits := 0

	flush := func() error {
		if digits == 0 {
			return nil
		}
		if len(data) >= 64 {
			return errs.NewUsage("titext", "too many data bytes")
		}
		data = append(data, byte(value))
		value, digits = 0, 0
		return nil
	}

	for i := 0; i < len(s); i++ {
		c := s[i]
		if isSpaceByte(c) {
			if err := flush(); err != nil {
				return nil, err
			}
			continue
		}
		if digits >= 2 {
			return nil, errs.NewUsage("titext", "too many digits in hex value")
		}
		var x int
		switch {
		case c >= '0' && c <= '9':
			x = int(c - '0')
		case c >= 'A' && c <= 'F':
			x = int(c-'A') + 10
		case c >= 'a' && c <= 'f':
			x = int(c-'a') + 10
		}
		value = value<<4 | x
		digits++
	}
	if err := flush(); err != nil {
		return nil, err
	}
	return data, nil
}
