/*
NAME
  stream_test.go

LICENSE
  Copyright (C) 2024 the Australian Ocean Lab (AusOcean). All Rights Reserved.

  The Software and all intellectual property rights associated
  therewith, including but not limited to copyrights, trademarks,
  patents, and trade secrets, are and will remain the exclusive
  property of the Australian Ocean Lab (AusOcean).
*/

package ingest

import (
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/ausocean/vanc/container/mts/psi"
	"github.com/ausocean/vanc/ingest/config"
)

func TestStreamTable(t *testing.T) {
	st := NewStreamTable(testStreams)
	want := StreamTable{
		{ID: 1, Type: TypeMisc, Format: config.FormatDVBTableSection, PID: 0x100},
		{ID: 2, Type: TypeMisc, Format: config.FormatSMPTE2038, PID: 0x101},
		{ID: 3, Type: TypeMisc, Format: config.FormatDVBTableSection, PID: 0x102},
		{ID: 4, Type: TypeSubtitle, Format: config.FormatDVBTeletext, PID: 0x103},
	}
	if !cmp.Equal(st, want) {
		t.Fatalf("unexpected table\n%s", cmp.Diff(want, st))
	}

	tests := []struct {
		typ      StreamType
		format   uint8
		instance int
		wantID   int
		wantOK   bool
	}{
		{TypeMisc, config.FormatDVBTableSection, 0, 1, true},
		{TypeMisc, config.FormatDVBTableSection, 1, 3, true},
		{TypeMisc, config.FormatDVBTableSection, 2, 0, false},
		{TypeMisc, config.FormatSMPTE2038, 0, 2, true},
		{TypeSubtitle, config.FormatDVBTeletext, 0, 4, true},
		{TypeMisc, config.FormatDVBTeletext, 0, 0, false},
	}
	for i, test := range tests {
		s, ok := st.Lookup(test.typ, test.format, test.instance)
		if ok != test.wantOK || s.ID != test.wantID {
			t.Errorf("unexpected lookup result for test %d: got: %d %v, want: %d %v", i, s.ID, ok, test.wantID, test.wantOK)
		}
	}

	s, ok := st.ByPID(config.FormatDVBTableSection, 0x102)
	if !ok || s.ID != 3 {
		t.Errorf("unexpected ByPID result: %v %v", s, ok)
	}
	if _, ok := st.ByPID(config.FormatDVBTableSection, 0x101); ok {
		t.Errorf("did not expect SMPTE 2038 stream for SCTE-35 format")
	}
}

func TestMTSStreams(t *testing.T) {
	got := NewStreamTable(testStreams).MTSStreams()
	if len(got) != len(testStreams) {
		t.Fatalf("unexpected stream count: %d", len(got))
	}
	wantTypes := []byte{psi.StreamTypeSCTE35, psi.StreamTypePrivateData, psi.StreamTypeSCTE35, psi.StreamTypePrivateData}
	wantTags := []byte{0x05, 0x05, 0x05, 0x56}
	for i, s := range got {
		if s.ID != i+1 || s.PID != testStreams[i].PID {
			t.Errorf("unexpected identity for stream %d: id %d, pid 0x%x", i, s.ID, s.PID)
		}
		if s.Type != wantTypes[i] {
			t.Errorf("unexpected type for stream %d: got: 0x%x, want: 0x%x", i, s.Type, wantTypes[i])
		}
		if len(s.Descriptors) != 1 || s.Descriptors[0].Tag != wantTags[i] {
			t.Errorf("unexpected descriptors for stream %d: %v", i, s.Descriptors)
		}
	}
	if string(got[0].Descriptors[0].Data) != "CUEI" || string(got[1].Descriptors[0].Data) != "VANC" {
		t.Errorf("unexpected registration descriptors")
	}
}
