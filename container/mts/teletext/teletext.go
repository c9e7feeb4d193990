/*
NAME
  teletext.go

DESCRIPTION
  teletext.go provides construction of EN 300 472 / EN 301 775 teletext PES
  packets from WST teletext lines received in OP-47 VANC packets.

LICENSE
  Copyright (C) 2024 the Australian Ocean Lab (AusOcean). All Rights Reserved.

  The Software and all intellectual property rights associated
  therewith, including but not limited to copyrights, trademarks,
  patents, and trade secrets, are and will remain the exclusive
  property of the Australian Ocean Lab (AusOcean).
*/

// Package teletext builds DVB teletext PES packets.
package teletext

import (
	"errors"
	"fmt"

	"github.com/ausocean/vanc/anc"
	"github.com/ausocean/vanc/container/mts/pes"
)

// PES layout. The header is padded with stuffing to 45 bytes so that,
// with the data identifier, 3 or 7 data units fill exactly 1 or 2 transport
// packet payloads.
const (
	headerDataLen  = 0x24
	headerSize     = pes.HeaderSize + headerDataLen
	ptsSize        = 5
	stuffSize      = headerDataLen - ptsSize
	UnitSize       = 46
	MaxLines       = 5
	smallUnits     = 3
	largeUnits     = 7
	dataIdentifier = 0x10 // EBU data, EN 300 472.
)

// Data unit fields.
const (
	UnitIDTeletext  = 0x03 // EBU teletext non-subtitle data.
	UnitIDStuffing  = 0xff
	unitLength      = 0x2c
	framingCode     = 0x27
	lineFieldMarker = 0xc0 // Reserved bits of the field parity/line offset byte.
	fieldParityBit  = 0x20
)

var (
	ErrTooManyLines   = errors.New("too many teletext lines for one PES packet")
	ErrLengthMismatch = errors.New("teletext PES length does not match PES_packet_length")
)

// ReverseTable maps a byte to its bit reversal.
var ReverseTable [256]byte

func init() {
	for i := range ReverseTable {
		var r byte
		for b := 0; b < 8; b++ {
			if i&(1<<uint(b)) != 0 {
				r |= 0x80 >> uint(b)
			}
		}
		ReverseTable[i] = r
	}
}

// Size returns the size of the PES packet Build produces for n lines.
func Size(n int) int {
	units := smallUnits
	if n > smallUnits {
		units = largeUnits
	}
	return headerSize + 1 + units*UnitSize
}

// Build appends to buf[:0] a teletext PES packet carrying lines, stamped
// with pts. If reverse is true the 4-byte header (unit ID, length, field/line
// and framing code) and line data of each teletext unit are bit reversed, as
// required when the source delivers teletext bytes MSB first. Stuffing units
// are never reversed.
func Build(buf []byte, lines []anc.TeletextLine, pts uint64, reverse bool) ([]byte, error) {
	if len(lines) > MaxLines {
		return nil, fmt.Errorf("%w: %d", ErrTooManyLines, len(lines))
	}
	size := Size(len(lines))
	units := (size - headerSize - 1) / UnitSize

	stuff := make([]byte, stuffSize)
	for i := range stuff {
		stuff[i] = 0xff
	}
	hdr := pes.Packet{
		StreamID:     pes.PrivateStream1SID,
		Length:       uint16(size - pes.StartSize),
		DAI:          true,
		PDI:          pes.PTSOnly,
		HeaderLength: headerDataLen,
		PTS:          pts,
		Stuff:        stuff,
		Data:         []byte{dataIdentifier},
	}
	buf = hdr.Bytes(buf)

	for _, l := range lines {
		lf := byte(lineFieldMarker) | byte(l.Line&0x1f)
		if l.Field1 {
			lf |= fieldParityBit
		}
		for _, b := range [...]byte{UnitIDTeletext, unitLength, lf, framingCode} {
			buf = append(buf, maybeReverse(b, reverse))
		}
		for _, b := range l.Data {
			buf = append(buf, maybeReverse(b, reverse))
		}
	}
	for i := len(lines); i < units; i++ {
		buf = append(buf, UnitIDStuffing, unitLength)
		for j := 0; j < unitLength; j++ {
			buf = append(buf, 0xff)
		}
	}

	err := checkLength(buf)
	if err != nil {
		return nil, err
	}
	return buf, nil
}

// checkLength checks that the length of PES packet b matches its
// PES_packet_length field.
func checkLength(b []byte) error {
	if len(b) < pes.StartSize {
		return fmt.Errorf("%w: %d byte packet", ErrLengthMismatch, len(b))
	}
	declared := int(b[4])<<8 | int(b[5])
	if len(b)-pes.StartSize != declared {
		return fmt.Errorf("%w: built %d, declared %d", ErrLengthMismatch, len(b)-pes.StartSize, declared)
	}
	return nil
}

func maybeReverse(b byte, reverse bool) byte {
	if reverse {
		return ReverseTable[b]
	}
	return b
}
