/*
NAME
  v210.go

DESCRIPTION
  v210.go provides decoding of V210 packed 10-bit 4:2:2 video lines into
  separate luma and chroma sample planes, for the purpose of extracting
  ancillary data from VANC lines.

LICENSE
  Copyright (C) 2024 the Australian Ocean Lab (AusOcean). All Rights Reserved.

  The Software and all intellectual property rights associated
  therewith, including but not limited to copyrights, trademarks,
  patents, and trade secrets, are and will remain the exclusive
  property of the Australian Ocean Lab (AusOcean).
*/

// Package v210 decodes and encodes V210 packed video lines.
package v210

import (
	"encoding/binary"
	"errors"
	"fmt"
)

// A V210 group packs 6 pixels (6 luma and 6 chroma samples) into 4 little
// endian 32-bit words, 3 10-bit samples per word in the order
// Cb Y Cr Y Cb Y Cr Y Cb Y Cr Y.
const (
	GroupPixels = 6
	GroupBytes  = 16
	wordBytes   = 4
	sampleMask  = 0x3ff
)

var ErrShortBuffer = errors.New("v210 buffer too short for width")

// Stride returns the number of bytes a V210 line of width pixels occupies,
// lines being padded to a multiple of 128 bytes.
func Stride(width int) int {
	return ((width + 47) / 48) * 128
}

// Line holds the decoded samples of a line.
type Line struct {
	Luma   []uint16
	Chroma []uint16
}

// Interleaved returns the samples in multiplexed Cb Y Cr Y order, which is
// how ancillary data is carried on standard definition lines.
func (l *Line) Interleaved() []uint16 {
	out := make([]uint16, 0, len(l.Luma)+len(l.Chroma))
	for i := range l.Luma {
		if i < len(l.Chroma) {
			out = append(out, l.Chroma[i])
		}
		out = append(out, l.Luma[i])
	}
	return out
}

// DecodeLine decodes width pixels of src into dst, reusing dst's slices where
// possible. Widths that are not a multiple of GroupPixels decode only the
// words of the final group that hold the requested pixels; src must contain
// those words or ErrShortBuffer is returned.
func DecodeLine(dst *Line, src []byte, width int) error {
	if width < 0 {
		return fmt.Errorf("invalid width %d", width)
	}
	groups := width / GroupPixels
	rem := width % GroupPixels

	// Components in the final partial group (chroma and luma interleaved),
	// and the words needed to hold them.
	remComps := 2 * rem
	remWords := (remComps + 2) / 3
	need := groups*GroupBytes + remWords*wordBytes
	if len(src) < need {
		return fmt.Errorf("%w: have %d bytes, need %d for width %d", ErrShortBuffer, len(src), need, width)
	}

	dst.Luma = resize(dst.Luma, width)
	dst.Chroma = resize(dst.Chroma, width)

	for g := 0; g < groups; g++ {
		decodeGroup(dst, src[g*GroupBytes:], g*GroupPixels, 2*GroupPixels)
	}
	if rem != 0 {
		decodeGroup(dst, src[groups*GroupBytes:], groups*GroupPixels, remComps)
	}
	return nil
}

// decodeGroup decodes the first comps components of the group at src, writing
// samples from pixel index px.
func decodeGroup(dst *Line, src []byte, px, comps int) {
	var w uint32
	for j := 0; j < comps; j++ {
		if j%3 == 0 {
			w = binary.LittleEndian.Uint32(src[(j/3)*wordBytes:])
		}
		s := uint16(w>>(10*(j%3))) & sampleMask
		if j%2 == 0 {
			dst.Chroma[px+j/2] = s
		} else {
			dst.Luma[px+j/2] = s
		}
	}
}

// Encode packs the luma and chroma samples into V210 groups. Both planes must
// be the same length. The final group is zero padded.
func Encode(luma, chroma []uint16) ([]byte, error) {
	if len(luma) != len(chroma) {
		return nil, fmt.Errorf("plane length mismatch: luma %d, chroma %d", len(luma), len(chroma))
	}
	groups := (len(luma) + GroupPixels - 1) / GroupPixels
	out := make([]byte, groups*GroupBytes)
	comps := 2 * len(luma)
	var w uint32
	for j := 0; j < comps; j++ {
		var s uint16
		if j%2 == 0 {
			s = chroma[j/2]
		} else {
			s = luma[j/2]
		}
		w |= uint32(s&sampleMask) << (10 * (j % 3))
		if j%3 == 2 || j == comps-1 {
			g, k := j/(2*GroupPixels), (j%(2*GroupPixels))/3
			binary.LittleEndian.PutUint32(out[g*GroupBytes+k*wordBytes:], w)
			w = 0
		}
	}
	return out, nil
}

func resize(s []uint16, n int) []uint16 {
	if cap(s) < n {
		return make([]uint16, n)
	}
	return s[:n]
}
