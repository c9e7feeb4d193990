/*
NAME
  sdp.go

DESCRIPTION
  sdp.go provides decoding of OP-47 subtitling distribution packets (SDP),
  which carry WST teletext lines in VANC (SMPTE RDD 8).

LICENSE
  Copyright (C) 2024 the Australian Ocean Lab (AusOcean). All Rights Reserved.

  The Software and all intellectual property rights associated
  therewith, including but not limited to copyrights, trademarks,
  patents, and trade secrets, are and will remain the exclusive
  property of the Australian Ocean Lab (AusOcean).
*/

package anc

import (
	"fmt"

	"github.com/pkg/errors"
)

// SDP layout constants.
const (
	sdpIdent1       = 0x51
	sdpIdent2       = 0x15
	sdpFormatWST    = 0x02
	sdpHeaderSize   = 9 // Identifier, length, format code and 5 descriptors.
	sdpDescriptors  = 5
	sdpPacketSize   = 45
	sdpFooterID     = 0x74
	sdpFooterSize   = 4
	sdpRunIn        = 0x55
	sdpFramingCode  = 0x27
	TeletextLineLen = 42
)

var (
	ErrSDPIdentifier = errors.New("bad SDP identifier")
	ErrSDPLength     = errors.New("bad SDP length")
	ErrSDPFormat     = errors.New("unsupported SDP format code")
)

// TeletextLine is one WST teletext line carried in an SDP.
type TeletextLine struct {
	Line   int  // VBI line offset.
	Field1 bool // True for the first field.
	Data   [TeletextLineLen]byte
}

// SDP is a decoded subtitling distribution packet.
type SDP struct {
	Lines    []TeletextLine
	Sequence uint16
}

// DecodeSDP decodes an SDP from ancillary user data words.
func DecodeSDP(b []byte) (*SDP, error) {
	if len(b) < sdpHeaderSize+sdpFooterSize {
		return nil, ErrSDPLength
	}
	if b[0] != sdpIdent1 || b[1] != sdpIdent2 {
		return nil, ErrSDPIdentifier
	}
	l := int(b[2])
	if l > len(b) || l < sdpHeaderSize+sdpFooterSize {
		return nil, fmt.Errorf("%w: %d", ErrSDPLength, l)
	}
	if b[3] != sdpFormatWST {
		return nil, fmt.Errorf("%w: 0x%02x", ErrSDPFormat, b[3])
	}

	s := &SDP{}
	off := sdpHeaderSize
	for i := 0; i < sdpDescriptors; i++ {
		d := b[4+i]
		if d == 0 {
			continue
		}
		if off+sdpPacketSize > l {
			return nil, errors.Wrapf(ErrSDPLength, "packet %d", i)
		}
		pkt := b[off : off+sdpPacketSize]
		off += sdpPacketSize
		if pkt[0] != sdpRunIn || pkt[1] != sdpRunIn || pkt[2] != sdpFramingCode {
			continue
		}
		tl := TeletextLine{Line: int(d & 0x1f), Field1: d&0x80 != 0}
		copy(tl.Data[:], pkt[3:])
		s.Lines = append(s.Lines, tl)
	}
	if off+sdpFooterSize <= l && b[off] == sdpFooterID {
		s.Sequence = uint16(b[off+1])<<8 | uint16(b[off+2])
	}
	return s, nil
}

// EncodeSDP returns SDP user data words carrying up to 5 teletext lines.
func EncodeSDP(lines []TeletextLine, seq uint16) []byte {
	if len(lines) > sdpDescriptors {
		lines = lines[:sdpDescriptors]
	}
	b := []byte{sdpIdent1, sdpIdent2, 0, sdpFormatWST, 0, 0, 0, 0, 0}
	for i, tl := range lines {
		d := byte(tl.Line & 0x1f)
		if tl.Field1 {
			d |= 0x80
		}
		b[4+i] = d
		b = append(b, sdpRunIn, sdpRunIn, sdpFramingCode)
		b = append(b, tl.Data[:]...)
	}
	b = append(b, sdpFooterID, byte(seq>>8), byte(seq), 0)
	b[2] = byte(len(b))
	var sum byte
	for _, v := range b {
		sum += v
	}
	b[len(b)-1] = -sum
	return b
}
