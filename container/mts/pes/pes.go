/*
NAME
  pes.go -

DESCRIPTION
  pes.go provides encoding of packetized elementary stream (PES) packets as
  used to carry ancillary data (SMPTE 2038, EN 300 472 teletext) in MPEG-TS.

AUTHOR
  Saxon A. Nelson-Milton <saxon.milton@gmail.com>

LICENSE
  Copyright (C) 2024 the Australian Ocean Lab (AusOcean). All Rights Reserved.

  The Software and all intellectual property rights associated
  therewith, including but not limited to copyrights, trademarks,
  patents, and trade secrets, are and will remain the exclusive
  property of the Australian Ocean Lab (AusOcean).
*/

// Package pes provides encoding of PES packets.
package pes

import (
	"github.com/Comcast/gots"
)

// MaxPesSize is the largest PES packet we expect to produce.
const MaxPesSize = 64 * 1 << 10

// PTS DTS indicator values.
const (
	NoPTS     = 0
	PTSOnly   = 2
	PTSAndDTS = 3
)

// Sizes of the fixed parts of a PES packet.
const (
	// StartSize is the size of the start code, stream ID and length fields,
	// i.e. the bytes not counted by the PES packet length.
	StartSize = 6

	// HeaderSize is the size of the fixed header, up to and including the
	// header data length field.
	HeaderSize = 9

	ptsSize = 5
)

// Packet describes a PES packet.
type Packet struct {
	StreamID     byte   // Type of stream
	Length       uint16 // Pes packet length in bytes after this field; if 0, computed by Bytes.
	SC           byte   // Scrambling control
	Priority     bool   // Priority Indicator
	DAI          bool   // Data alginment indicator
	Copyright    bool   // Copyright indicator
	Original     bool   // Original data indicator
	PDI          byte   // PTS DTS indicator
	ESCRF        bool   // Elementary stream clock reference flag
	ESRF         bool   // Elementary stream rate reference flag
	DSMTMF       bool   // Dsm trick mode flag
	ACIF         bool   // Additional copy info flag
	CRCF         bool   // Not sure
	EF           bool   // Extension flag
	HeaderLength byte   // Pes header data length; if 0, computed by Bytes.
	PTS          uint64 // Presentation time stamp
	Stuff        []byte // Stuffing bytes
	Data         []byte // Pes packet data
}

// Bytes appends the encoded packet to buf[:0] and returns it. Header data
// length and packet length are computed when left zero.
func (p *Packet) Bytes(buf []byte) []byte {
	hdrLen := p.HeaderLength
	if hdrLen == 0 {
		hdrLen = byte(len(p.Stuff))
		if p.PDI == PTSOnly {
			hdrLen += ptsSize
		}
	}
	length := p.Length
	if length == 0 {
		length = uint16(HeaderSize - StartSize + int(hdrLen) + len(p.Data))
	}

	buf = buf[:0]
	buf = append(buf,
		0x00, 0x00, 0x01,
		p.StreamID,
		byte(length>>8),
		byte(length),
		(0x2<<6 | p.SC<<4 | boolByte(p.Priority)<<3 | boolByte(p.DAI)<<2 |
			boolByte(p.Copyright)<<1 | boolByte(p.Original)),
		(p.PDI<<6 | boolByte(p.ESCRF)<<5 | boolByte(p.ESRF)<<4 | boolByte(p.DSMTMF)<<3 |
			boolByte(p.ACIF)<<2 | boolByte(p.CRCF)<<1 | boolByte(p.EF)),
		hdrLen,
	)

	if p.PDI == PTSOnly {
		ptsIdx := len(buf)
		buf = append(buf, make([]byte, ptsSize)...)
		gots.InsertPTS(buf[ptsIdx:], p.PTS)
	}
	buf = append(buf, p.Stuff...)
	return append(buf, p.Data...)
}

func boolByte(b bool) byte {
	if b {
		return 1
	}
	return 0
}
