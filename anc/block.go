/*
NAME
  block.go

DESCRIPTION
  block.go provides reconstruction of ancillary packet symbol arrays from the
  block structured ancillary buffers delivered by IP capture cards. Such a
  buffer starts with a 4 byte header holding the number of blocks, followed
  by the blocks. Each block has an 8 byte header,

    bytes 0-1: line number (little endian)
    byte 2:    DID
    byte 3:    SDID
    byte 4:    data count
    byte 5:    flags (bit 0: carried in chroma)
    bytes 6-7: packed data length in bytes (little endian)

  followed by the packed data: the user data words and checksum word, 10 bits
  each, packed MSB first so that every 4 words occupy 5 bytes.

LICENSE
  Copyright (C) 2024 the Australian Ocean Lab (AusOcean). All Rights Reserved.

  The Software and all intellectual property rights associated
  therewith, including but not limited to copyrights, trademarks,
  patents, and trade secrets, are and will remain the exclusive
  property of the Australian Ocean Lab (AusOcean).
*/

package anc

import (
	"bytes"
	"encoding/binary"
	"fmt"

	"github.com/icza/bitio"
	"github.com/pkg/errors"
)

// Block buffer layout.
const (
	bufHeaderSize   = 4
	BlockHeaderSize = 8
	blockFlagChroma = 0x01
)

var ErrMalformedBlock = errors.New("malformed ancillary block")

// Block is the header of an ancillary block.
type Block struct {
	LineNr    int
	DID       byte
	SDID      byte
	DataCount int
	CNotY     bool
}

// PackedLen returns the number of bytes n 10-bit words pack into.
func PackedLen(n int) int { return (n*10 + 7) / 8 }

// UnpackBlocks reconstructs the packet symbol array of each block in buf and
// passes it to fn along with the block header. Processing stops at the first
// block whose lengths are inconsistent with the buffer; blocks before it will
// have been delivered and ErrMalformedBlock is returned.
func UnpackBlocks(buf []byte, fn func(b Block, words []uint16)) error {
	if len(buf) < bufHeaderSize {
		return errors.Wrap(ErrMalformedBlock, "short buffer header")
	}
	n := int(binary.LittleEndian.Uint16(buf))
	off := bufHeaderSize
	words := make([]uint16, 0, headWords+256)

	for i := 0; i < n; i++ {
		if off+BlockHeaderSize > len(buf) {
			return fmt.Errorf("%w: block %d header at %d past end of buffer (%d)", ErrMalformedBlock, i, off, len(buf))
		}
		h := buf[off : off+BlockHeaderSize]
		b := Block{
			LineNr:    int(binary.LittleEndian.Uint16(h[0:])),
			DID:       h[2],
			SDID:      h[3],
			DataCount: int(h[4]),
			CNotY:     h[5]&blockFlagChroma != 0,
		}
		plen := int(binary.LittleEndian.Uint16(h[6:]))
		off += BlockHeaderSize

		if off+plen > len(buf) {
			return fmt.Errorf("%w: block %d data length %d past end of buffer", ErrMalformedBlock, i, plen)
		}
		nw := b.DataCount + 1 // User data words and checksum.
		if plen < PackedLen(nw) {
			return fmt.Errorf("%w: block %d data length %d too short for %d words", ErrMalformedBlock, i, plen, nw)
		}

		words = append(words[:0], ADF[:]...)
		words = append(words, Word(b.DID), Word(b.SDID), Word(byte(b.DataCount)))
		words = unpack10(words, buf[off:off+plen], nw)
		off += plen

		fn(b, words)
	}
	return nil
}

// unpack10 appends n 10-bit words unpacked from src to dst. Words are packed
// MSB first, so the bit alignment repeats every 4 words and 5 bytes; the
// state tracks which of the 4 alignments the next word has.
func unpack10(dst []uint16, src []byte, n int) []uint16 {
	var i, state int
	for k := 0; k < n; k++ {
		var w uint16
		switch state {
		case 0:
			w = uint16(src[i])<<2 | uint16(src[i+1])>>6
			i++
		case 1:
			w = uint16(src[i]&0x3f)<<4 | uint16(src[i+1])>>4
			i++
		case 2:
			w = uint16(src[i]&0x0f)<<6 | uint16(src[i+1])>>2
			i++
		case 3:
			w = uint16(src[i]&0x03)<<8 | uint16(src[i+1])
			i += 2
		}
		dst = append(dst, w)
		state = (state + 1) % 4
	}
	return dst
}

// pack10 packs 10-bit words MSB first, the inverse of unpack10.
func pack10(words []uint16) []byte {
	var buf bytes.Buffer
	buf.Grow(PackedLen(len(words)))
	w := bitio.NewWriter(&buf)
	for _, v := range words {
		w.TryWriteBits(uint64(v&0x3ff), 10)
	}
	// Writes to a bytes.Buffer cannot fail; Close pads the last byte.
	w.Close()
	return buf.Bytes()
}

// PackBlocks builds a block structured buffer from packet symbol arrays as
// produced by Encode, each paired with its line number.
func PackBlocks(lines []int, pkts [][]uint16) ([]byte, error) {
	if len(lines) != len(pkts) {
		return nil, errors.New("line and packet counts differ")
	}
	buf := binary.LittleEndian.AppendUint16(nil, uint16(len(pkts)))
	buf = append(buf, 0, 0)
	for i, w := range pkts {
		if len(w) < headWords+1 {
			return nil, fmt.Errorf("packet %d too short", i)
		}
		data := pack10(w[udwIdx:])
		buf = binary.LittleEndian.AppendUint16(buf, uint16(lines[i]))
		buf = append(buf, byte(w[didIdx]), byte(w[sdidIdx]), byte(w[dcIdx]), 0)
		buf = binary.LittleEndian.AppendUint16(buf, uint16(len(data)))
		buf = append(buf, data...)
	}
	return buf, nil
}
