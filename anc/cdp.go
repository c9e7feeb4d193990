/*
NAME
  cdp.go

DESCRIPTION
  cdp.go provides decoding of CEA-708 caption distribution packets (CDP) as
  carried in VANC according to SMPTE 334-2.

LICENSE
  Copyright (C) 2024 the Australian Ocean Lab (AusOcean). All Rights Reserved.

  The Software and all intellectual property rights associated
  therewith, including but not limited to copyrights, trademarks,
  patents, and trade secrets, are and will remain the exclusive
  property of the Australian Ocean Lab (AusOcean).
*/

package anc

import (
	"encoding/binary"
	"fmt"

	"github.com/pkg/errors"
)

// CDP section identifiers.
const (
	cdpIdentifier  = 0x9669
	cdpTimeCodeID  = 0x71
	cdpCCDataID    = 0x72
	cdpSvcInfoID   = 0x73
	cdpFooterID    = 0x74
	cdpHeaderSize  = 7
	cdpFooterSize  = 4
	cdpTimeCodeLen = 5
)

// CDP flag bits.
const (
	cdpTimeCodePresent = 0x80
	cdpCCDataPresent   = 0x40
)

// cc_type values of a cc_data triple.
const (
	CCTypeNTSCField1 = 0
	CCTypeNTSCField2 = 1
	CCTypeDTVCCData  = 2
	CCTypeDTVCCStart = 3
)

var (
	ErrCDPIdentifier = errors.New("bad CDP identifier")
	ErrCDPLength     = errors.New("bad CDP length")
	ErrCDPChecksum   = errors.New("bad CDP checksum")
)

// CDP is a decoded caption distribution packet.
type CDP struct {
	FrameRate byte
	Flags     byte
	Sequence  uint16
	TimeCode  []byte

	// CCData holds the cc_data triples of the packet,
	// i.e. marker/valid/type, data 1, data 2.
	CCData []byte
}

// CCTriple is a single cc_data construct.
type CCTriple struct {
	Valid bool
	Type  byte
	Data  [2]byte
}

// Triples returns the cc_data constructs of c.
func (c *CDP) Triples() []CCTriple {
	t := make([]CCTriple, 0, len(c.CCData)/3)
	for i := 0; i+2 < len(c.CCData); i += 3 {
		t = append(t, CCTriple{
			Valid: c.CCData[i]&0x04 != 0,
			Type:  c.CCData[i] & 0x03,
			Data:  [2]byte{c.CCData[i+1], c.CCData[i+2]},
		})
	}
	return t
}

// DecodeCDP decodes a CDP from ancillary user data words.
func DecodeCDP(b []byte) (*CDP, error) {
	if len(b) < cdpHeaderSize+cdpFooterSize {
		return nil, ErrCDPLength
	}
	if binary.BigEndian.Uint16(b) != cdpIdentifier {
		return nil, ErrCDPIdentifier
	}
	l := int(b[2])
	if l < cdpHeaderSize+cdpFooterSize || l > len(b) {
		return nil, fmt.Errorf("%w: %d", ErrCDPLength, l)
	}
	b = b[:l]
	var sum byte
	for _, v := range b {
		sum += v
	}
	if sum != 0 {
		return nil, ErrCDPChecksum
	}

	c := &CDP{
		FrameRate: b[3] >> 4,
		Flags:     b[4],
		Sequence:  binary.BigEndian.Uint16(b[5:]),
	}
	off := cdpHeaderSize
	if c.Flags&cdpTimeCodePresent != 0 {
		if off+cdpTimeCodeLen > l || b[off] != cdpTimeCodeID {
			return nil, errors.Wrap(ErrCDPLength, "time code section")
		}
		c.TimeCode = b[off+1 : off+cdpTimeCodeLen]
		off += cdpTimeCodeLen
	}
	if c.Flags&cdpCCDataPresent != 0 {
		if off+2 > l || b[off] != cdpCCDataID {
			return nil, errors.Wrap(ErrCDPLength, "ccdata section")
		}
		n := int(b[off+1] & 0x1f)
		off += 2
		if off+3*n > l {
			return nil, errors.Wrap(ErrCDPLength, "cc_data triples")
		}
		c.CCData = b[off : off+3*n]
	}
	return c, nil
}

// EncodeCDP returns a CDP carrying the given cc_data triples, for a frame
// rate code and sequence counter.
func EncodeCDP(frameRate byte, seq uint16, ccData []byte) []byte {
	n := len(ccData) / 3
	b := []byte{0x96, 0x69, 0, frameRate<<4 | 0x0f, cdpCCDataPresent | 0x03}
	b = binary.BigEndian.AppendUint16(b, seq)
	b = append(b, cdpCCDataID, 0xe0|byte(n))
	b = append(b, ccData[:3*n]...)
	b = append(b, cdpFooterID)
	b = binary.BigEndian.AppendUint16(b, seq)
	b = append(b, 0) // Checksum.
	b[2] = byte(len(b))
	var sum byte
	for _, v := range b {
		sum += v
	}
	b[len(b)-1] = -sum
	return b
}
