/*
NAME
  smpte2038.go

DESCRIPTION
  smpte2038.go provides a packetizer for carriage of VANC packets in MPEG-TS
  PES packets according to SMPTE ST 2038.

LICENSE
  Copyright (C) 2024 the Australian Ocean Lab (AusOcean). All Rights Reserved.

  The Software and all intellectual property rights associated
  therewith, including but not limited to copyrights, trademarks,
  patents, and trade secrets, are and will remain the exclusive
  property of the Australian Ocean Lab (AusOcean).
*/

// Package smpte2038 packs the ancillary packets of a video frame into a
// single SMPTE 2038 PES packet.
package smpte2038

import (
	"bytes"
	"errors"
	"fmt"

	"github.com/icza/bitio"

	"github.com/ausocean/vanc/anc"
	"github.com/ausocean/vanc/container/mts/pes"
)

// Bit widths of the fields of an ANC packet record.
const (
	zeroBits     = 6
	lineBits     = 11
	offsetBits   = 12
	wordBits     = 10
	maxLine      = 1<<lineBits - 1
	maxOffset    = 1<<offsetBits - 1
	headerFields = 3 // DID, SDID and data count.
)

var (
	ErrNotOpen  = errors.New("smpte2038 session not open")
	ErrTooLarge = errors.New("smpte2038 payload exceeds PES size")
)

// Session accumulates the ancillary packets of one frame.
type Session struct {
	buf  bytes.Buffer
	w    *bitio.Writer
	n    int
	open bool
	pes  []byte
}

// NewSession returns a new, closed, Session.
func NewSession() *Session {
	return &Session{pes: make([]byte, 0, pes.MaxPesSize)}
}

// Open starts accumulation for a new frame, discarding anything left from a
// session that was not closed.
func (s *Session) Open() {
	s.buf.Reset()
	s.w = bitio.NewWriter(&s.buf)
	s.n = 0
	s.open = true
}

// IsOpen reports whether the session is accepting packets.
func (s *Session) IsOpen() bool { return s.open }

// Len returns the number of packets appended since Open.
func (s *Session) Len() int { return s.n }

// Append adds p to the session.
func (s *Session) Append(p *anc.Packet) error {
	if !s.open {
		return ErrNotOpen
	}
	if len(p.Words) < 7 {
		return fmt.Errorf("packet has %d words, too short", len(p.Words))
	}
	if s.buf.Len()+recordSize(p) > pes.MaxPesSize-pes.HeaderSize-pes.StartSize {
		return ErrTooLarge
	}

	line := p.LineNr
	if line > maxLine || line < 0 {
		line = 0
	}
	off := p.HorizOffset
	if off > maxOffset || off < 0 {
		off = 0
	}

	var bits int
	write := func(v uint64, n uint8) {
		s.w.TryWriteBits(v, n)
		bits += int(n)
	}
	write(0, zeroBits)
	write(uint64(boolBit(p.CNotY)), 1)
	write(uint64(line), lineBits)
	write(uint64(off), offsetBits)
	// DID, SDID, data count, user data words and checksum, as carried.
	for _, w := range p.Words[len(anc.ADF):] {
		write(uint64(w&0x3ff), wordBits)
	}
	if pad := (8 - bits%8) % 8; pad != 0 {
		write(1<<uint(pad)-1, uint8(pad))
	}
	if s.w.TryError != nil {
		return s.w.TryError
	}
	s.n++
	return nil
}

// Close ends the session and returns the PES packet carrying its packets,
// stamped with pts. If no packets were appended, Close returns nil, nil.
// The returned slice is reused by the next Close.
func (s *Session) Close(pts uint64) ([]byte, error) {
	if !s.open {
		return nil, ErrNotOpen
	}
	s.open = false
	if err := s.w.Close(); err != nil {
		return nil, fmt.Errorf("could not flush bit writer: %w", err)
	}
	if s.n == 0 {
		return nil, nil
	}
	pkt := pes.Packet{
		StreamID: pes.PrivateStream1SID,
		DAI:      true,
		PDI:      pes.PTSOnly,
		PTS:      pts,
		Data:     s.buf.Bytes(),
	}
	s.pes = pkt.Bytes(s.pes)
	return s.pes, nil
}

// recordSize returns an upper bound on the encoded size in bytes of p.
func recordSize(p *anc.Packet) int {
	bits := zeroBits + 1 + lineBits + offsetBits + wordBits*(len(p.Words)-len(anc.ADF))
	return (bits + 7) / 8
}

func boolBit(b bool) int {
	if b {
		return 1
	}
	return 0
}
