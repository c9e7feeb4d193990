/*
NAME
  teletext_test.go

LICENSE
  Copyright (C) 2024 the Australian Ocean Lab (AusOcean). All Rights Reserved.

  The Software and all intellectual property rights associated
  therewith, including but not limited to copyrights, trademarks,
  patents, and trade secrets, are and will remain the exclusive
  property of the Australian Ocean Lab (AusOcean).
*/

package teletext

import (
	"bytes"
	"errors"
	"testing"

	gotspes "github.com/Comcast/gots/pes"

	"github.com/ausocean/vanc/anc"
)

func TestReverseTable(t *testing.T) {
	tests := map[byte]byte{0x27: 0xe4, 0x01: 0x80, 0x55: 0xaa, 0xff: 0xff, 0x00: 0x00}
	for in, want := range tests {
		if got := ReverseTable[in]; got != want {
			t.Errorf("unexpected reversal of 0x%02x: got: 0x%02x, want: 0x%02x", in, got, want)
		}
	}
}

func lines(n int) []anc.TeletextLine {
	var l []anc.TeletextLine
	for i := 0; i < n; i++ {
		tl := anc.TeletextLine{Line: 7 + i, Field1: i == 0}
		for j := range tl.Data {
			tl.Data[j] = byte(j + i)
		}
		l = append(l, tl)
	}
	return l
}

func TestBuildSizes(t *testing.T) {
	tests := []struct {
		lines int
		size  int
	}{
		{lines: 0, size: 184},
		{lines: 1, size: 184},
		{lines: 3, size: 184},
		{lines: 4, size: 368},
		{lines: 5, size: 368},
	}
	for _, test := range tests {
		b, err := Build(nil, lines(test.lines), 900000, false)
		if err != nil {
			t.Fatalf("%d lines: did not expect error: %v", test.lines, err)
		}
		if len(b) != test.size {
			t.Errorf("%d lines: unexpected size: got: %d, want: %d", test.lines, len(b), test.size)
		}
		if b[headerSize] != dataIdentifier {
			t.Errorf("%d lines: unexpected data identifier: 0x%02x", test.lines, b[headerSize])
		}

		hdr, err := gotspes.NewPESHeader(b)
		if err != nil {
			t.Fatalf("%d lines: could not parse PES header: %v", test.lines, err)
		}
		if hdr.PTS() != 900000 {
			t.Errorf("%d lines: unexpected PTS: %d", test.lines, hdr.PTS())
		}

		// Every data unit must be 46 bytes with length 0x2c; real lines
		// first, then stuffing.
		for u := 0; u < (test.size-headerSize-1)/UnitSize; u++ {
			unit := b[headerSize+1+u*UnitSize:]
			wantID := byte(UnitIDTeletext)
			if u >= test.lines {
				wantID = UnitIDStuffing
			}
			if unit[0] != wantID || unit[1] != unitLength {
				t.Errorf("%d lines: unit %d: unexpected header % x", test.lines, u, unit[:2])
			}
		}
	}
}

func TestBuildUnitContent(t *testing.T) {
	l := lines(1)
	for _, reverse := range []bool{false, true} {
		b, err := Build(nil, l, 0, reverse)
		if err != nil {
			t.Fatalf("did not expect error: %v", err)
		}
		unit := b[headerSize+1:]
		wantHdr := []byte{UnitIDTeletext, unitLength, 0xc0 | 0x20 | 7, 0x27}
		wantD := l[0].Data[5]
		if reverse {
			wantHdr = []byte{0xc0, 0x34, 0xe7, 0xe4}
			wantD = ReverseTable[l[0].Data[5]]
		}
		if !bytes.Equal(unit[:4], wantHdr) {
			t.Errorf("reverse %v: unexpected unit header: got: % x, want: % x", reverse, unit[:4], wantHdr)
		}
		if unit[4+5] != wantD {
			t.Errorf("reverse %v: unexpected unit data: got: 0x%02x, want: 0x%02x", reverse, unit[9], wantD)
		}

		// Stuffing units are left as is.
		stuffing := unit[UnitSize:]
		if stuffing[0] != UnitIDStuffing || stuffing[1] != unitLength {
			t.Errorf("reverse %v: unexpected stuffing header: % x", reverse, stuffing[:2])
		}
	}
}

func TestCheckLength(t *testing.T) {
	b, err := Build(nil, lines(2), 0, false)
	if err != nil {
		t.Fatalf("did not expect error: %v", err)
	}
	if err := checkLength(b); err != nil {
		t.Errorf("did not expect error for built packet: %v", err)
	}
	tests := [][]byte{b[:len(b)-1], append(b, 0xff), b[:3]}
	for i, test := range tests {
		if err := checkLength(test); !errors.Is(err, ErrLengthMismatch) {
			t.Errorf("test %d: did not get expected error: got: %v, want: %v", i, err, ErrLengthMismatch)
		}
	}
}

func TestBuildTooManyLines(t *testing.T) {
	if _, err := Build(nil, lines(6), 0, false); !errors.Is(err, ErrTooManyLines) {
		t.Errorf("did not get expected error: got: %v, want: %v", err, ErrTooManyLines)
	}
}
