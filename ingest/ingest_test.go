/*
NAME
  ingest_test.go

LICENSE
  Copyright (C) 2024 the Australian Ocean Lab (AusOcean). All Rights Reserved.

  The Software and all intellectual property rights associated
  therewith, including but not limited to copyrights, trademarks,
  patents, and trade secrets, are and will remain the exclusive
  property of the Australian Ocean Lab (AusOcean).
*/

package ingest

import (
	"bytes"
	"errors"
	"testing"
	"time"

	gotspes "github.com/Comcast/gots/pes"
	"github.com/google/go-cmp/cmp"

	"github.com/ausocean/vanc/anc"
	"github.com/ausocean/vanc/codec/v210"
	"github.com/ausocean/vanc/container/mts"
	"github.com/ausocean/vanc/container/mts/pes"
	"github.com/ausocean/vanc/container/mts/teletext"
	"github.com/ausocean/vanc/ingest/config"
	"github.com/ausocean/vanc/meta"
	"github.com/ausocean/vanc/scte104"
)

type dumbLogger struct{}

func (dl *dumbLogger) Log(l int8, m string, a ...interface{})  {}
func (dl *dumbLogger) SetLevel(l int8)                         {}
func (dl *dumbLogger) Debug(msg string, args ...interface{})   {}
func (dl *dumbLogger) Info(msg string, args ...interface{})    {}
func (dl *dumbLogger) Warning(msg string, args ...interface{}) {}
func (dl *dumbLogger) Error(msg string, args ...interface{})   {}
func (dl *dumbLogger) Fatal(msg string, args ...interface{})   {}

// sliceQueue records pushed frames; if full is set, pushes fail.
type sliceQueue struct {
	frames []mts.CodedFrame
	full   bool
}

func (q *sliceQueue) Push(f mts.CodedFrame) error {
	if q.full {
		return ErrQueueFull
	}
	q.frames = append(q.frames, f)
	return nil
}

var testStreams = []config.Stream{
	{Format: config.FormatDVBTableSection, PID: 0x100},
	{Format: config.FormatSMPTE2038, PID: 0x101},
	{Format: config.FormatDVBTableSection, PID: 0x102},
	{Format: config.FormatDVBTeletext, PID: 0x103},
}

func newTestIngest(t *testing.T, cfg config.Config) (*Ingest, *sliceQueue) {
	t.Helper()
	cfg.Logger = &dumbLogger{}
	if cfg.Streams == nil {
		cfg.Streams = testStreams
	}
	q := &sliceQueue{}
	in, err := New(cfg, NewStreamTable(cfg.Streams), q)
	if err != nil {
		t.Fatalf("could not create ingest: %v", err)
	}
	return in, q
}

// scte104Packet returns the symbol array of a SCTE-104 packet carrying a
// splice_request with the given indexes.
func scte104Packet(did byte, as uint8, dpi uint16) []uint16 {
	m := &scte104.Message{
		Multi:       true,
		ASIndex:     as,
		DPIPIDIndex: dpi,
		Ops:         []scte104.Operation{{OpID: scte104.OpSpliceRequest, Data: []byte{1, 0, 0, 0, 1, 0, 0x0a, 0, 0x1e, 0, 1, 0, 1, 0}}},
	}
	return anc.Encode(did, anc.SDIDSCTE104, m.Encode())
}

// onLine places packet words in a line of blanking samples.
func onLine(pkts ...[]uint16) []uint16 {
	l := []uint16{0x040, 0x200, 0x040}
	for _, p := range pkts {
		l = append(l, p...)
		l = append(l, 0x040, 0x200)
	}
	return l
}

func processFrame(t *testing.T, in *Ingest, clock int64, lines map[int][]uint16) *RawFrame {
	t.Helper()
	in.StartFrame(clock)
	for nr, words := range lines {
		in.ProcessLine(nr, words, false)
	}
	f := &RawFrame{}
	err := in.FinalizeFrame(f)
	if err != nil {
		t.Fatalf("did not expect error finalizing frame: %v", err)
	}
	return f
}

func TestDefaultRouting(t *testing.T) {
	in, q := newTestIngest(t, config.Config{SCTE104: true})
	pkt := scte104Packet(anc.DIDSCTE104, 5, 80)
	f := processFrame(t, in, 0, map[int][]uint16{10: onLine(pkt)})

	if f.Meta.Len() != 1 {
		t.Fatalf("unexpected item count: got: %d, want: 1", f.Meta.Len())
	}
	it := f.Meta.Item(0)
	if it.Kind() != meta.KindVANCSCTE104 {
		t.Errorf("unexpected kind: %v", it.Kind())
	}
	line, err := it.LineNr()
	if err != nil || line != 10 {
		t.Errorf("unexpected line number: %d, err: %v", line, err)
	}
	id, err := it.OutputStreamID()
	if err != nil || id != 1 {
		t.Errorf("unexpected output stream: %d, err: %v", id, err)
	}
	want := (&anc.Packet{Words: pkt}).Raw()
	if !bytes.Equal(it.Bytes(), want) {
		t.Errorf("unexpected item payload\n%s", cmp.Diff(want, it.Bytes()))
	}
	if len(q.frames) != 0 {
		t.Errorf("did not expect PES, got %d", len(q.frames))
	}
}

func TestFilterRouting(t *testing.T) {
	tests := []struct {
		name    string
		rules   []scte104.Rule
		as      uint8
		dpi     uint16
		want    []int // Output stream IDs attached.
		unresol uint64
	}{
		{
			name:  "single match",
			rules: []scte104.Rule{{PID: 0x102, ASIndex: 5, DPIPIDIndex: 80}},
			as:    5, dpi: 80,
			want: []int{3},
		},
		{
			name: "fan out",
			rules: []scte104.Rule{
				{PID: 0x100, ASIndex: scte104.All, DPIPIDIndex: 80},
				{PID: 0x102, ASIndex: 5, DPIPIDIndex: scte104.All},
			},
			as: 5, dpi: 80,
			want: []int{1, 3},
		},
		{
			name:  "no match",
			rules: []scte104.Rule{{PID: 0x102, ASIndex: 6, DPIPIDIndex: scte104.All}},
			as:    5, dpi: 80,
		},
		{
			name: "unresolved pid skipped",
			rules: []scte104.Rule{
				{PID: 0x1ff, ASIndex: scte104.All, DPIPIDIndex: scte104.All},
				{PID: 0x100, ASIndex: scte104.All, DPIPIDIndex: scte104.All},
			},
			as: 1, dpi: 2,
			want:    []int{1},
			unresol: 1,
		},
		{
			name:  "teletext pid is not a SCTE-35 stream",
			rules: []scte104.Rule{{PID: 0x103, ASIndex: scte104.All, DPIPIDIndex: scte104.All}},
			as:    1, dpi: 2,
			unresol: 1,
		},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			in, _ := newTestIngest(t, config.Config{SCTE104: true, Filters: test.rules})
			f := processFrame(t, in, 0, map[int][]uint16{12: onLine(scte104Packet(anc.DIDSCTE104, test.as, test.dpi))})

			var got []int
			for _, it := range f.Meta.Items() {
				id, err := it.OutputStreamID()
				if err != nil {
					t.Fatalf("did not expect error: %v", err)
				}
				got = append(got, id)
			}
			if !cmp.Equal(got, test.want) {
				t.Errorf("unexpected destinations\n%s", cmp.Diff(test.want, got))
			}
			if in.Stats().Unresolved != test.unresol {
				t.Errorf("unexpected unresolved count: got: %d, want: %d", in.Stats().Unresolved, test.unresol)
			}
		})
	}
}

func TestType1Discard(t *testing.T) {
	filters := []struct {
		name  string
		rules []scte104.Rule
	}{
		{name: "no filters"},
		{name: "wildcard", rules: []scte104.Rule{{PID: 0x100, ASIndex: scte104.All, DPIPIDIndex: scte104.All}}},
		{name: "matching", rules: []scte104.Rule{{PID: 0x102, ASIndex: 5, DPIPIDIndex: 80}}},
	}

	for _, f := range filters {
		for _, s2038 := range []bool{false, true} {
			name := f.name
			if s2038 {
				name += " with SMPTE 2038"
			}
			t.Run(name, func(t *testing.T) {
				in, q := newTestIngest(t, config.Config{SCTE104: true, SMPTE2038: s2038, Filters: f.rules})
				frame := processFrame(t, in, 0, map[int][]uint16{10: onLine(scte104Packet(anc.DIDSCTE104|0x80, 5, 80))})
				if frame.Meta.Len() != 0 || len(q.frames) != 0 {
					t.Errorf("expected nothing attached, got %d items and %d PES", frame.Meta.Len(), len(q.frames))
				}
				st := in.Stats()
				if st.Type1Discarded != 1 {
					t.Errorf("unexpected discard count: got: %d, want: 1", st.Type1Discarded)
				}
				if st.SCTE104 != 0 || st.Attached != 0 {
					t.Errorf("did not expect type 1 packet to be routed, SCTE104: %d, attached: %d", st.SCTE104, st.Attached)
				}
			})
		}
	}
}

func TestSCTE104Disabled(t *testing.T) {
	in, _ := newTestIngest(t, config.Config{SMPTE2038: true})
	f := processFrame(t, in, 0, map[int][]uint16{10: onLine(scte104Packet(anc.DIDSCTE104, 5, 80))})
	if f.Meta.Len() != 0 {
		t.Errorf("expected no items, got %d", f.Meta.Len())
	}
}

func TestNoDefaultStream(t *testing.T) {
	cfg := config.Config{
		SCTE104: true,
		Streams: []config.Stream{{Format: config.FormatSMPTE2038, PID: 0x101}},
	}
	in, _ := newTestIngest(t, cfg)
	f := processFrame(t, in, 0, map[int][]uint16{10: onLine(scte104Packet(anc.DIDSCTE104, 5, 80))})
	if f.Meta.Len() != 0 {
		t.Errorf("expected no items, got %d", f.Meta.Len())
	}
}

func TestStoreFull(t *testing.T) {
	in, _ := newTestIngest(t, config.Config{SCTE104: true})
	var pkts [][]uint16
	for i := 0; i < meta.Capacity+2; i++ {
		pkts = append(pkts, scte104Packet(anc.DIDSCTE104, uint8(i), 1))
	}
	f := processFrame(t, in, 0, map[int][]uint16{10: onLine(pkts...)})
	if f.Meta.Len() != meta.Capacity {
		t.Errorf("unexpected item count: got: %d, want: %d", f.Meta.Len(), meta.Capacity)
	}
	if in.Stats().StoreFull != 2 {
		t.Errorf("unexpected store full count: got: %d, want: 2", in.Stats().StoreFull)
	}
}

func TestFramesIsolated(t *testing.T) {
	in, _ := newTestIngest(t, config.Config{SCTE104: true})
	f1 := processFrame(t, in, 0, map[int][]uint16{10: onLine(scte104Packet(anc.DIDSCTE104, 1, 1))})
	f2 := processFrame(t, in, 1080000, map[int][]uint16{11: onLine(scte104Packet(anc.DIDSCTE104, 2, 2), scte104Packet(anc.DIDSCTE104, 3, 3))})
	f3 := processFrame(t, in, 2160000, nil)

	if f1.Meta.Len() != 1 || f2.Meta.Len() != 2 || f3.Meta.Len() != 0 {
		t.Errorf("unexpected item counts: %d %d %d", f1.Meta.Len(), f2.Meta.Len(), f3.Meta.Len())
	}
	line, _ := f1.Meta.Item(0).LineNr()
	if line != 10 {
		t.Errorf("first frame modified, line: %d", line)
	}
}

func TestUnfinalizedFrameDiscarded(t *testing.T) {
	in, _ := newTestIngest(t, config.Config{SCTE104: true})
	in.StartFrame(0)
	in.ProcessLine(10, onLine(scte104Packet(anc.DIDSCTE104, 1, 1)), false)
	f := processFrame(t, in, 1080000, nil)
	if f.Meta.Len() != 0 {
		t.Errorf("expected no items, got %d", f.Meta.Len())
	}
}

func TestSetFilters(t *testing.T) {
	in, _ := newTestIngest(t, config.Config{SCTE104: true})
	err := in.SetFilters([]scte104.Rule{{PID: 0x102, ASIndex: scte104.All, DPIPIDIndex: scte104.All}})
	if err != nil {
		t.Fatalf("did not expect error: %v", err)
	}
	f := processFrame(t, in, 0, map[int][]uint16{10: onLine(scte104Packet(anc.DIDSCTE104, 1, 1))})
	id, _ := f.Meta.Item(0).OutputStreamID()
	if id != 3 {
		t.Errorf("unexpected output stream: got: %d, want: 3", id)
	}
	if in.Filters().Matches(0) != 1 {
		t.Errorf("unexpected match count: %d", in.Filters().Matches(0))
	}

	rules := make([]scte104.Rule, scte104.MaxRules+1)
	if err := in.SetFilters(rules); !errors.Is(err, scte104.ErrTableFull) {
		t.Errorf("unexpected error: got: %v, want: %v", err, scte104.ErrTableFull)
	}
	if in.Filters().Len() != 1 {
		t.Errorf("table replaced after failed update")
	}
}

func TestSMPTE2038(t *testing.T) {
	in, q := newTestIngest(t, config.Config{SMPTE2038: true, PTSOffset: 10 * time.Second})
	const clock = 27000000
	processFrame(t, in, clock, map[int][]uint16{
		9:  onLine(anc.Encode(0x51, 0x51, []byte{1, 2, 3})),
		10: onLine(scte104Packet(anc.DIDSCTE104, 5, 80)),
	})

	if len(q.frames) != 1 {
		t.Fatalf("unexpected PES count: got: %d, want: 1", len(q.frames))
	}
	f := q.frames[0]
	if f.StreamID != 2 {
		t.Errorf("unexpected stream: got: %d, want: 2", f.StreamID)
	}
	const wantPTS = 11 * 90000
	if f.PTS != wantPTS {
		t.Errorf("unexpected PTS: got: %d, want: %d", f.PTS, wantPTS)
	}
	h, err := gotspes.NewPESHeader(f.Data)
	if err != nil {
		t.Fatalf("could not parse PES header: %v", err)
	}
	if h.StreamId() != pes.PrivateStream1SID || h.PTS() != wantPTS {
		t.Errorf("unexpected PES header: stream id 0x%x, pts %d", h.StreamId(), h.PTS())
	}

	// A frame with no packets produces no PES.
	processFrame(t, in, 2*clock, nil)
	if len(q.frames) != 1 {
		t.Errorf("unexpected PES count after empty frame: %d", len(q.frames))
	}
}

func TestQueueFull(t *testing.T) {
	in, q := newTestIngest(t, config.Config{SMPTE2038: true})
	q.full = true
	in.StartFrame(0)
	in.ProcessLine(9, onLine(anc.Encode(0x51, 0x51, []byte{1})), false)
	err := in.FinalizeFrame(&RawFrame{})
	if !errors.Is(err, ErrQueueFull) {
		t.Errorf("unexpected error: got: %v, want: %v", err, ErrQueueFull)
	}
	if in.Stats().PESDropped != 1 {
		t.Errorf("unexpected drop count: %d", in.Stats().PESDropped)
	}
}

func TestTeletext(t *testing.T) {
	in, q := newTestIngest(t, config.Config{Teletext: true})
	var lines []anc.TeletextLine
	for i := 0; i < 7; i++ {
		l := anc.TeletextLine{Line: 7 + i, Field1: true}
		l.Data[0] = byte(i)
		lines = append(lines, l)
	}
	processFrame(t, in, 0, map[int][]uint16{
		15: onLine(anc.Encode(anc.DIDSDP, anc.SDIDSDP, anc.EncodeSDP(lines[:5], 1))),
		16: onLine(anc.Encode(anc.DIDSDP, anc.SDIDSDP, anc.EncodeSDP(lines[5:], 2))),
	})

	if len(q.frames) != 2 {
		t.Fatalf("unexpected PES count: got: %d, want: 2", len(q.frames))
	}
	wantSizes := []int{teletext.Size(5), teletext.Size(2)}
	for i, f := range q.frames {
		if f.StreamID != 4 {
			t.Errorf("unexpected stream for PES %d: %d", i, f.StreamID)
		}
		if len(f.Data) != wantSizes[i] {
			t.Errorf("unexpected size for PES %d: got: %d, want: %d", i, len(f.Data), wantSizes[i])
		}
	}
}

func TestPatch(t *testing.T) {
	in, _ := newTestIngest(t, config.Config{SCTE104: true, PatchDID: 0x51, PatchSDID: 0x52})
	orig := scte104Packet(anc.DIDSCTE104, 5, 80)
	vendor := append([]uint16(nil), orig...)
	anc.Retag(vendor, 0x51, 0x52)

	f := processFrame(t, in, 0, map[int][]uint16{13: onLine(vendor)})
	if f.Meta.Len() != 1 {
		t.Fatalf("unexpected item count: got: %d, want: 1", f.Meta.Len())
	}
	want := (&anc.Packet{Words: orig}).Raw()
	if !bytes.Equal(f.Meta.Item(0).Bytes(), want) {
		t.Errorf("patched payload not retagged\n%s", cmp.Diff(want, f.Meta.Item(0).Bytes()))
	}
	if in.Stats().Patched != 1 {
		t.Errorf("unexpected patch count: %d", in.Stats().Patched)
	}
}

func TestPatchPairRejected(t *testing.T) {
	for _, pair := range [][2]uint8{{anc.DIDSCTE104, anc.SDIDSCTE104}, {0xc1, 0x07}} {
		cfg := config.Config{Logger: &dumbLogger{}, SCTE104: true, PatchDID: pair[0], PatchSDID: pair[1]}
		_, err := New(cfg, NewStreamTable(testStreams), &sliceQueue{})
		if !errors.Is(err, ErrPatchPair) {
			t.Errorf("unexpected error for patch pair %#x/%#x: got: %v, want: %v", pair[0], pair[1], err, ErrPatchPair)
		}
	}
}

func TestCounter(t *testing.T) {
	in, _ := newTestIngest(t, config.Config{SCTE104: true})
	counter := func(v uint64) []uint16 {
		b := make([]byte, 8)
		for i := range b {
			b[i] = byte(v >> (56 - 8*uint(i)))
		}
		return onLine(anc.Encode(anc.DIDCounter, anc.SDIDCounter, b))
	}
	for _, v := range []uint64{1, 2, 3, 5, 6} {
		processFrame(t, in, 0, map[int][]uint16{9: counter(v)})
	}
	if in.Stats().CounterJumps != 1 {
		t.Errorf("unexpected counter jumps: got: %d, want: 1", in.Stats().CounterJumps)
	}
}

func TestCaptionData(t *testing.T) {
	in, _ := newTestIngest(t, config.Config{SCTE104: true})
	cc := []byte{0xfc, 0x94, 0x2c, 0xfd, 0x80, 0x80, 0xfa, 0x00, 0x00}
	f := processFrame(t, in, 0, map[int][]uint16{9: onLine(anc.Encode(anc.DIDCaptions, anc.SDIDCEA708, anc.EncodeCDP(4, 1, cc)))})
	if !bytes.Equal(f.CCData, cc) {
		t.Errorf("unexpected cc_data\n%s", cmp.Diff(cc, f.CCData))
	}
	f = processFrame(t, in, 0, nil)
	if len(f.CCData) != 0 {
		t.Errorf("cc_data carried into next frame")
	}
}

func TestV210Line(t *testing.T) {
	pkt := scte104Packet(anc.DIDSCTE104, 5, 80)

	t.Run("hd luma", func(t *testing.T) {
		const width = 1920
		luma := make([]uint16, width)
		chroma := make([]uint16, width)
		copy(luma[4:], pkt)
		src, err := v210.Encode(luma, chroma)
		if err != nil {
			t.Fatalf("could not encode line: %v", err)
		}
		in, _ := newTestIngest(t, config.Config{SCTE104: true})
		in.StartFrame(0)
		if err := in.ProcessV210Line(10, src, width); err != nil {
			t.Fatalf("did not expect error: %v", err)
		}
		f := &RawFrame{}
		in.FinalizeFrame(f)
		if f.Meta.Len() != 1 {
			t.Errorf("unexpected item count: got: %d, want: 1", f.Meta.Len())
		}
	})

	t.Run("sd interleaved", func(t *testing.T) {
		const width = 720
		words := make([]uint16, 2*width)
		copy(words[8:], pkt)
		luma := make([]uint16, width)
		chroma := make([]uint16, width)
		for i := 0; i < width; i++ {
			chroma[i] = words[2*i]
			luma[i] = words[2*i+1]
		}
		src, err := v210.Encode(luma, chroma)
		if err != nil {
			t.Fatalf("could not encode line: %v", err)
		}
		in, _ := newTestIngest(t, config.Config{SCTE104: true})
		in.StartFrame(0)
		if err := in.ProcessV210Line(10, src, width); err != nil {
			t.Fatalf("did not expect error: %v", err)
		}
		f := &RawFrame{}
		in.FinalizeFrame(f)
		if f.Meta.Len() != 1 {
			t.Errorf("unexpected item count: got: %d, want: 1", f.Meta.Len())
		}
	})
}

func TestBlocks(t *testing.T) {
	buf, err := anc.PackBlocks([]int{10, 11}, [][]uint16{
		scte104Packet(anc.DIDSCTE104, 1, 1),
		scte104Packet(anc.DIDSCTE104, 2, 2),
	})
	if err != nil {
		t.Fatalf("could not pack blocks: %v", err)
	}
	in, _ := newTestIngest(t, config.Config{SCTE104: true})
	in.StartFrame(0)
	if err := in.ProcessBlocks(buf); err != nil {
		t.Fatalf("did not expect error: %v", err)
	}
	f := &RawFrame{}
	in.FinalizeFrame(f)
	if f.Meta.Len() != 2 {
		t.Fatalf("unexpected item count: got: %d, want: 2", f.Meta.Len())
	}
	for i, want := range []int{10, 11} {
		l, _ := f.Meta.Item(i).LineNr()
		if l != want {
			t.Errorf("unexpected line for item %d: got: %d, want: %d", i, l, want)
		}
	}
}
