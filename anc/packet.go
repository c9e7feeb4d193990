/*
NAME
  packet.go

DESCRIPTION
  packet.go provides the SMPTE 291 ancillary packet type and functions for
  building and checking 10-bit ancillary data words.

LICENSE
  Copyright (C) 2024 the Australian Ocean Lab (AusOcean). All Rights Reserved.

  The Software and all intellectual property rights associated
  therewith, including but not limited to copyrights, trademarks,
  patents, and trade secrets, are and will remain the exclusive
  property of the Australian Ocean Lab (AusOcean).
*/

// Package anc provides parsing of SMPTE 291 ancillary (VANC) packets from
// unpacked 10-bit sample arrays, dispatch of parsed packets to per type
// callbacks, and reconstruction of sample arrays from vendor block
// structured capture buffers.
package anc

import (
	"encoding/binary"
	"math/bits"
)

// Ancillary data flag words, which begin every packet.
var ADF = [3]uint16{0x000, 0x3ff, 0x3ff}

// Word offsets within a packet's symbol array.
const (
	didIdx    = 3
	sdidIdx   = 4
	dcIdx     = 5
	udwIdx    = 6
	headWords = udwIdx
)

// Word returns the 10-bit ancillary word for the 8-bit value v, i.e. with
// bit 8 set to the even parity of bits 0-7 and bit 9 its inverse.
func Word(v byte) uint16 {
	p := uint16(bits.OnesCount8(v) & 1)
	return uint16(v) | p<<8 | (p^1)<<9
}

// Checksum returns the checksum word for the given words, which should span
// DID through the last user data word.
func Checksum(words []uint16) uint16 {
	var sum uint16
	for _, w := range words {
		sum += w & 0x1ff
	}
	sum &= 0x1ff
	return sum | (^sum&0x100)<<1
}

// Packet is a parsed ancillary packet.
type Packet struct {
	DID         byte
	SDID        byte // Or data block number for type 1 packets.
	DataCount   int
	UDW         []byte // User data words, 8 bits each.
	Checksum    uint16
	ChecksumOK  bool
	LineNr      int
	CNotY       bool // Carried in the chroma channel.
	HorizOffset int

	// Words holds the packet's complete symbol array, from the ADF to the
	// checksum word.
	Words []uint16
}

// Type1 reports whether p is a type 1 packet. Type 1 packets have a DID with
// bit 7 set and carry a data block number in place of an SDID (SMPTE 291).
func (p *Packet) Type1() bool { return p.DID&0x80 != 0 }

// Type returns the kind of payload p carries.
func (p *Packet) Type() Type { return Identify(p.DID, p.SDID) }

// Raw returns p's symbol array as little endian bytes.
func (p *Packet) Raw() []byte {
	b := make([]byte, 2*len(p.Words))
	for i, w := range p.Words {
		binary.LittleEndian.PutUint16(b[2*i:], w)
	}
	return b
}

// Encode returns the symbol array of an ancillary packet with the given
// identifiers and user data: the ADF, DID, SDID, data count, user data words
// and checksum.
func Encode(did, sdid byte, udw []byte) []uint16 {
	w := make([]uint16, 0, headWords+len(udw)+1)
	w = append(w, ADF[:]...)
	w = append(w, Word(did), Word(sdid), Word(byte(len(udw))))
	for _, b := range udw {
		w = append(w, Word(b))
	}
	return append(w, Checksum(w[didIdx:]))
}

// Retag rewrites the DID and SDID of the packet symbol array w in place and
// recomputes its checksum.
func Retag(w []uint16, did, sdid byte) {
	if len(w) < headWords+1 {
		return
	}
	w[didIdx] = Word(did)
	w[sdidIdx] = Word(sdid)
	w[len(w)-1] = Checksum(w[didIdx : len(w)-1])
}

// Type identifies an ancillary payload type.
type Type int

// Payload types.
const (
	TypeUnknown Type = iota
	TypeCEA708
	TypeCEA608
	TypeSCTE104
	TypeCounter
	TypeSDP
	TypeAFD
)

// DID/SDID pairs of known payload types.
const (
	DIDCaptions = 0x61
	SDIDCEA708  = 0x01
	SDIDCEA608  = 0x02
	DIDSCTE104  = 0x41
	SDIDSCTE104 = 0x07
	SDIDAFD     = 0x05
	DIDSDP      = 0x43
	SDIDSDP     = 0x02
	DIDCounter  = 0x52
	SDIDCounter = 0x01
)

// Identify returns the payload type for a DID/SDID pair. SCTE-104 is
// identified for type 1 DIDs as well so that its handler can discard them.
func Identify(did, sdid byte) Type {
	switch {
	case did == DIDCaptions && sdid == SDIDCEA708:
		return TypeCEA708
	case did == DIDCaptions && sdid == SDIDCEA608:
		return TypeCEA608
	case did&0x7f == DIDSCTE104 && sdid == SDIDSCTE104:
		return TypeSCTE104
	case did == DIDSCTE104 && sdid == SDIDAFD:
		return TypeAFD
	case did == DIDSDP && sdid == SDIDSDP:
		return TypeSDP
	case did == DIDCounter && sdid == SDIDCounter:
		return TypeCounter
	default:
		return TypeUnknown
	}
}

func (t Type) String() string {
	switch t {
	case TypeCEA708:
		return "CEA-708"
	case TypeCEA608:
		return "CEA-608"
	case TypeSCTE104:
		return "SCTE-104"
	case TypeCounter:
		return "counter"
	case TypeSDP:
		return "OP-47 SDP"
	case TypeAFD:
		return "AFD"
	default:
		return "unknown"
	}
}
