/*
NAME
  rtp.go

DESCRIPTION
  rtp.go provides the RTP packet header and its serialisation.

AUTHOR
  Saxon Nelson-Milton (saxon@ausocean.org)

LICENSE
  Copyright (C) 2024 the Australian Ocean Lab (AusOcean). All Rights Reserved.

  The Software and all intellectual property rights associated
  therewith, including but not limited to copyrights, trademarks,
  patents, and trade secrets, are and will remain the exclusive
  property of the Australian Ocean Lab (AusOcean).
*/

// Package rtp provides RTP packetization of MPEG-TS (RFC 2250) and helpers
// to inspect RTP packets.
package rtp

import (
	"encoding/binary"
)

const (
	rtpVer     = 2  // Version of RTP that this package is compatible with.
	headSize   = 12 // Header size of an rtp packet without CSRCs or extension.
	maxPktSize = headSize + sendSize
)

// Packet holds the fields of an RTP packet (RFC 3550) as sent by this
// package: no CSRCs, extension or padding.
type Packet struct {
	Marker      bool
	PayloadType uint8
	Sequence    uint16
	Timestamp   uint32
	SSRC        uint32
	Payload     []byte
}

// Bytes writes the packet into buf, allocating if buf is too small, and
// returns the written slice.
func (p *Packet) Bytes(buf []byte) []byte {
	n := headSize + len(p.Payload)
	if cap(buf) < n {
		buf = make([]byte, n, max(n, maxPktSize))
	}
	buf = buf[:n]
	buf[0] = rtpVer << 6
	buf[1] = asByte(p.Marker)<<7 | p.PayloadType&0x7f
	binary.BigEndian.PutUint16(buf[2:4], p.Sequence)
	binary.BigEndian.PutUint32(buf[4:8], p.Timestamp)
	binary.BigEndian.PutUint32(buf[8:12], p.SSRC)
	copy(buf[headSize:], p.Payload)
	return buf
}

func asByte(b bool) byte {
	if b {
		return 0x01
	}
	return 0x00
}
